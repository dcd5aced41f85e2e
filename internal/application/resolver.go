package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/monoklix/mkx-cli/internal/domain"
	"github.com/monoklix/mkx-cli/internal/ports"
)

// Resolver decides which credential a call uses. Resolution order, stopping
// at the first hit: explicit (mid-workflow pin), cached personal token,
// personal token fetched fresh from the durable store (backfilling the
// cache). It never substitutes a shared pool token implicitly; claiming
// from the pool is a separate, user-initiated operation.
type Resolver struct {
	cache    ports.ProfileCache
	profiles ports.ProfileStore
	logger   *slog.Logger
}

func NewResolver(cache ports.ProfileCache, profiles ports.ProfileStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{cache: cache, profiles: profiles, logger: logger}
}

func (r *Resolver) Resolve(ctx context.Context, session domain.Session, explicit *domain.Credential) (domain.Credential, error) {
	if explicit != nil && !explicit.Empty() {
		credential := *explicit
		if credential.Source == "" {
			credential.Source = domain.CredentialExplicit
		}
		return credential, nil
	}

	if cached, err := r.cache.Get(ctx); err == nil {
		if token := strings.TrimSpace(cached.PersonalAuthToken); token != "" {
			return domain.Credential{
				Token:   token,
				Source:  domain.CredentialPersonal,
				OwnerID: cached.ID,
			}, nil
		}
	} else if !errors.Is(err, domain.ErrProfileNotFound) {
		r.logger.Warn("profile cache read failed", "error", err)
	}

	profile, err := r.profiles.GetProfile(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			return domain.Credential{}, domain.ErrNoCredential
		}
		return domain.Credential{}, fmt.Errorf("fetch profile: %w", err)
	}

	token := strings.TrimSpace(profile.PersonalAuthToken)
	if token == "" {
		return domain.Credential{}, domain.ErrNoCredential
	}

	// Write-through so the next resolution skips the durable store.
	if err := r.cache.Put(ctx, profile); err != nil {
		r.logger.Warn("profile cache backfill failed", "error", err)
	}

	return domain.Credential{
		Token:   token,
		Source:  domain.CredentialPersonal,
		OwnerID: profile.ID,
	}, nil
}
