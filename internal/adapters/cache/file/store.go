// Package file is the fast local profile cache: a small TOML file holding
// the current user, read before any durable-store round trip and rewritten
// whenever the durable record changes.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/monoklix/mkx-cli/internal/domain"
	"github.com/monoklix/mkx-cli/internal/ports"
)

const (
	cacheFileMode   = 0o600
	cacheDirMode    = 0o700
	tempFilePattern = ".current-user-*.toml.tmp"
)

type Store struct {
	path string
}

var _ ports.ProfileCache = (*Store)(nil)

func NewStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("cache path is empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve cache path: %w", err)
	}

	return &Store{path: filepath.Clean(absPath)}, nil
}

type userSchema struct {
	ID                string `toml:"id"`
	Username          string `toml:"username"`
	Role              string `toml:"role"`
	PersonalAuthToken string `toml:"personal_auth_token"`
}

func (s *Store) Get(ctx context.Context) (domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return domain.Profile{}, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Profile{}, domain.ErrProfileNotFound
		}
		return domain.Profile{}, fmt.Errorf("read cache file: %w", err)
	}

	var user userSchema
	if err := toml.Unmarshal(data, &user); err != nil {
		return domain.Profile{}, fmt.Errorf("decode cache file: %w", err)
	}
	if strings.TrimSpace(user.ID) == "" {
		return domain.Profile{}, domain.ErrProfileNotFound
	}

	return domain.Profile{
		ID:                user.ID,
		Username:          user.Username,
		Role:              domain.Role(user.Role),
		PersonalAuthToken: user.PersonalAuthToken,
	}, nil
}

func (s *Store) Put(ctx context.Context, profile domain.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := toml.Marshal(userSchema{
		ID:                profile.ID,
		Username:          profile.Username,
		Role:              string(profile.Role),
		PersonalAuthToken: profile.PersonalAuthToken,
	})
	if err != nil {
		return fmt.Errorf("encode cache file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), cacheDirMode); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(s.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp cache file: %w", err)
	}
	if err := tempFile.Chmod(cacheFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp cache file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp cache file: %w", err)
	}

	if err := os.Rename(tempName, s.path); err != nil {
		return fmt.Errorf("replace cache file: %w", err)
	}
	cleanup = false

	return nil
}
