package ports

import (
	"context"

	"github.com/monoklix/mkx-cli/internal/domain"
)

// ProfileStore is the durable user record store.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (domain.Profile, error)
	// AssignPersonalToken writes the token onto the user's profile and
	// returns the updated record.
	AssignPersonalToken(ctx context.Context, userID, token string) (domain.Profile, error)
}

// ProfileCache is the fast local copy of the current user's profile,
// consulted before the durable store and refreshed write-through whenever
// the durable record changes.
type ProfileCache interface {
	Get(ctx context.Context) (domain.Profile, error)
	Put(ctx context.Context, profile domain.Profile) error
}
