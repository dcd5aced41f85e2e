package domain

import (
	"fmt"
	"strings"
	"time"
)

// TokenPool names a shared-token table. Veo and Imagen tokens live in
// separate pools because a token valid for one backend is not necessarily
// valid for the other.
type TokenPool string

const (
	PoolVeo    TokenPool = "veo"
	PoolImagen TokenPool = "imagen"
)

func (p TokenPool) Valid() bool {
	return p == PoolVeo || p == PoolImagen
}

// PoolToken is a shared credential with a bounded usage ceiling. The usage
// count is only ever advanced through the store's atomic
// increment-if-available operation; reading the count and writing it back
// from application code would race against concurrent claimants.
type PoolToken struct {
	Token        string
	Pool         TokenPool
	CreatedAt    time.Time
	UsageCount   int
	UsageCeiling int
}

func (t PoolToken) Exhausted() bool {
	return t.UsageCount >= t.UsageCeiling
}

func (t PoolToken) Validate() error {
	if strings.TrimSpace(t.Token) == "" {
		return fmt.Errorf("token is required")
	}
	if !t.Pool.Valid() {
		return fmt.Errorf("unsupported pool %q", t.Pool)
	}
	if t.UsageCeiling <= 0 {
		return fmt.Errorf("usage ceiling must be positive")
	}
	return nil
}
