package ports

import (
	"context"
	"time"

	"github.com/monoklix/mkx-cli/internal/domain"
)

// PoolStore holds the shared token pools. IncrementIfAvailable is the only
// way usage counts advance: it must be atomic with respect to concurrent
// claimants and must never push a count past its ceiling.
type PoolStore interface {
	ListTokens(ctx context.Context, pool domain.TokenPool) ([]domain.PoolToken, error)
	AddToken(ctx context.Context, token domain.PoolToken) error
	RemoveToken(ctx context.Context, token string) error
	// IncrementIfAvailable advances the token's usage count by one only if
	// it is still under its ceiling. It returns false (with a nil error)
	// when the ceiling was already reached, and domain.ErrPoolTokenNotFound
	// when the token is not in any pool.
	IncrementIfAvailable(ctx context.Context, token string) (bool, error)
}

// AdmissionController reserves advisory per-server generation slots. A
// failed or refused reservation is never a hard gate; callers log it and
// proceed.
type AdmissionController interface {
	AcquireSlot(ctx context.Context, serverURL string, cooldown time.Duration) error
}
