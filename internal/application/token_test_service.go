package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/monoklix/mkx-cli/internal/domain"
	"github.com/monoklix/mkx-cli/internal/ports"
)

const probePrompt = "a single red apple on a white table"

// TokenTestService checks whether a token is actually accepted by the
// proxy by issuing real generation calls with it. Probes always pass the
// token explicitly, so the resolver never falls back to the user's own
// credential and probe failures never emit failure diagnostics. Transient
// probe failures are retried under the retry policy; content-policy
// rejections and other semantic failures settle the verdict immediately.
type TokenTestService struct {
	imagen *ImagenService
	veo    *VeoService
	pool   ports.PoolStore
	retry  *RetryPolicy
	logger *slog.Logger
}

func NewTokenTestService(imagen *ImagenService, veo *VeoService, pool ports.PoolStore, logger *slog.Logger) *TokenTestService {
	if logger == nil {
		logger = slog.Default()
	}

	return &TokenTestService{
		imagen: imagen,
		veo:    veo,
		pool:   pool,
		retry:  DefaultRetryPolicy(),
		logger: logger,
	}
}

// TokenTestResult is the outcome of probing one token against one service.
type TokenTestResult struct {
	Token   string
	Service domain.ServiceType
	OK      bool
	Detail  string
}

// TestToken probes the token against the requested service ("imagen",
// "veo", or "all") on the given server. The video probe only starts a
// generation; it never polls or downloads.
func (s *TokenTestService) TestToken(
	ctx context.Context,
	session domain.Session,
	token, service, serverURL string,
) ([]TokenTestResult, error) {
	if token == "" {
		return nil, fmt.Errorf("no token to test")
	}

	pin := domain.PinnedContext{
		ServerURL: serverURL,
		Credential: domain.Credential{
			Token:  token,
			Source: domain.CredentialExplicit,
		},
	}

	var results []TokenTestResult

	if service == "all" || service == "imagen" {
		results = append(results, s.probeImagen(ctx, session, token, pin))
	}
	if service == "all" || service == "veo" {
		results = append(results, s.probeVeo(ctx, session, token, pin))
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("unknown service %q (want imagen, veo, or all)", service)
	}

	return results, nil
}

// ScanPool probes every token in the pool in listing order, including
// exhausted ones: a probe checks validity, not remaining capacity. The
// scan aborts between candidates when ctx is cancelled.
func (s *TokenTestService) ScanPool(
	ctx context.Context,
	session domain.Session,
	pool domain.TokenPool,
	service, serverURL string,
) ([]TokenTestResult, error) {
	tokens, err := s.pool.ListTokens(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("list pool tokens: %w", err)
	}

	var results []TokenTestResult
	for i, candidate := range tokens {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		s.logger.Info("probing pool token",
			"pool", pool, "index", i+1, "total", len(tokens))
		probed, err := s.TestToken(ctx, session, candidate.Token, service, serverURL)
		if err != nil {
			return results, err
		}
		results = append(results, probed...)
	}

	return results, nil
}

func (s *TokenTestService) probeImagen(ctx context.Context, session domain.Session, token string, pin domain.PinnedContext) TokenTestResult {
	result := TokenTestResult{Token: token, Service: domain.ServiceImagen}

	err := s.retry.Execute(ctx, func() error {
		_, genErr := s.imagen.Generate(ctx, session, probePrompt, ImagenConfig{AspectRatio: "1:1"}, pin, nil)
		return genErr
	})
	if err != nil {
		result.Detail = err.Error()
		return result
	}

	result.OK = true
	result.Detail = "generation accepted"
	return result
}

func (s *TokenTestService) probeVeo(ctx context.Context, session domain.Session, token string, pin domain.PinnedContext) TokenTestResult {
	result := TokenTestResult{Token: token, Service: domain.ServiceVeo}

	var operations []any
	err := s.retry.Execute(ctx, func() error {
		var genErr error
		operations, _, genErr = s.veo.StartGeneration(ctx, session, VideoRequest{
			Prompt:      probePrompt,
			AspectRatio: "16:9",
		}, "", pin, nil)
		return genErr
	})
	if err != nil {
		result.Detail = err.Error()
		return result
	}

	result.OK = true
	result.Detail = fmt.Sprintf("generation started (%d operations)", len(operations))
	return result
}
