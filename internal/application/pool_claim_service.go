package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/monoklix/mkx-cli/internal/domain"
	"github.com/monoklix/mkx-cli/internal/ports"
)

// PoolClaimService turns a shared pool token into the user's personal
// token. The claim is explicit and user-initiated; nothing in the call
// path ever claims implicitly.
type PoolClaimService struct {
	pool     ports.PoolStore
	profiles ports.ProfileStore
	cache    ports.ProfileCache
	logger   *slog.Logger
}

func NewPoolClaimService(pool ports.PoolStore, profiles ports.ProfileStore, cache ports.ProfileCache, logger *slog.Logger) *PoolClaimService {
	if logger == nil {
		logger = slog.Default()
	}

	return &PoolClaimService{pool: pool, profiles: profiles, cache: cache, logger: logger}
}

// Claim atomically takes one usage slot on the given pool token and, on
// success, assigns the token to the user's profile. A token at its ceiling
// is a normal outcome (ErrPoolSlotUnavailable), not a failure. If the
// assignment fails after the increment succeeded, the slot stays consumed:
// there is no compensating decrement, and the inconsistency is logged for
// manual correction.
func (s *PoolClaimService) Claim(ctx context.Context, userID, token string) (domain.Credential, error) {
	granted, err := s.pool.IncrementIfAvailable(ctx, token)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("claim pool token: %w", err)
	}
	if !granted {
		return domain.Credential{}, domain.ErrPoolSlotUnavailable
	}

	profile, err := s.profiles.AssignPersonalToken(ctx, userID, token)
	if err != nil {
		s.logger.Error("pool accounting inconsistency: usage incremented but assignment failed, manual correction needed",
			"user", userID, "error", err)
		return domain.Credential{}, fmt.Errorf("assign claimed token: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, profile); err != nil {
			s.logger.Warn("profile cache refresh failed after claim", "error", err)
		}
	}

	return domain.Credential{
		Token:   token,
		Source:  domain.CredentialPool,
		OwnerID: userID,
	}, nil
}

// ClaimFirstAvailable walks the pool in listing order and claims the first
// token with remaining capacity. Tokens already at their ceiling are
// skipped without an increment attempt; a token that reaches its ceiling
// between the listing and the claim just moves the walk to the next
// candidate.
func (s *PoolClaimService) ClaimFirstAvailable(ctx context.Context, userID string, pool domain.TokenPool) (domain.Credential, error) {
	tokens, err := s.pool.ListTokens(ctx, pool)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("list pool tokens: %w", err)
	}

	for _, candidate := range tokens {
		if candidate.Exhausted() {
			continue
		}

		credential, err := s.Claim(ctx, userID, candidate.Token)
		if err == nil {
			return credential, nil
		}
		if errors.Is(err, domain.ErrPoolSlotUnavailable) || errors.Is(err, domain.ErrPoolTokenNotFound) {
			continue
		}
		return domain.Credential{}, err
	}

	return domain.Credential{}, domain.ErrPoolSlotUnavailable
}
