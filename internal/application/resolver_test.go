package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monoklix/mkx-cli/internal/domain"
)

func TestResolveExplicitWinsOverEverything(t *testing.T) {
	t.Parallel()

	cache := &fakeCache{profile: domain.Profile{ID: "u1", PersonalAuthToken: "cached-token"}, loaded: true}
	profiles := newFakeProfiles(domain.Profile{ID: "u1", PersonalAuthToken: "stored-token"})
	resolver := NewResolver(cache, profiles, nil)

	explicit := &domain.Credential{Token: "pinned-token", Source: domain.CredentialExplicit}
	credential, err := resolver.Resolve(context.Background(), domain.Session{UserID: "u1"}, explicit)

	require.NoError(t, err)
	assert.Equal(t, "pinned-token", credential.Token)
	assert.Equal(t, domain.CredentialExplicit, credential.Source)
	assert.Zero(t, profiles.gets, "explicit credential must not touch the store")
}

func TestResolveExplicitDefaultsSource(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(&fakeCache{}, newFakeProfiles(), nil)

	credential, err := resolver.Resolve(context.Background(), domain.Session{UserID: "u1"},
		&domain.Credential{Token: "raw"})

	require.NoError(t, err)
	assert.Equal(t, domain.CredentialExplicit, credential.Source)
}

func TestResolvePrefersCacheOverStore(t *testing.T) {
	t.Parallel()

	cache := &fakeCache{profile: domain.Profile{ID: "u1", PersonalAuthToken: "cached-token"}, loaded: true}
	profiles := newFakeProfiles(domain.Profile{ID: "u1", PersonalAuthToken: "stored-token"})
	resolver := NewResolver(cache, profiles, nil)

	credential, err := resolver.Resolve(context.Background(), domain.Session{UserID: "u1"}, nil)

	require.NoError(t, err)
	assert.Equal(t, "cached-token", credential.Token)
	assert.Equal(t, domain.CredentialPersonal, credential.Source)
	assert.Zero(t, profiles.gets)
}

func TestResolveFallsBackToStoreAndBackfillsCache(t *testing.T) {
	t.Parallel()

	cache := &fakeCache{}
	profiles := newFakeProfiles(domain.Profile{ID: "u1", PersonalAuthToken: "stored-token"})
	resolver := NewResolver(cache, profiles, nil)

	credential, err := resolver.Resolve(context.Background(), domain.Session{UserID: "u1"}, nil)

	require.NoError(t, err)
	assert.Equal(t, "stored-token", credential.Token)
	assert.Equal(t, domain.CredentialPersonal, credential.Source)
	assert.Equal(t, 1, cache.puts, "store hit must backfill the cache")

	// Second resolution is served from the cache.
	_, err = resolver.Resolve(context.Background(), domain.Session{UserID: "u1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, profiles.gets)
}

func TestResolveNoTokenAnywhere(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cache    *fakeCache
		profiles *fakeProfiles
	}{
		{
			name:     "unknown user",
			cache:    &fakeCache{},
			profiles: newFakeProfiles(),
		},
		{
			name:     "profile exists without token",
			cache:    &fakeCache{},
			profiles: newFakeProfiles(domain.Profile{ID: "u1"}),
		},
		{
			name:     "cached profile has blank token",
			cache:    &fakeCache{profile: domain.Profile{ID: "u1", PersonalAuthToken: "  "}, loaded: true},
			profiles: newFakeProfiles(domain.Profile{ID: "u1"}),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			resolver := NewResolver(tc.cache, tc.profiles, nil)
			_, err := resolver.Resolve(context.Background(), domain.Session{UserID: "u1"}, nil)
			assert.ErrorIs(t, err, domain.ErrNoCredential)
		})
	}
}

func TestResolveCacheErrorFallsThroughToStore(t *testing.T) {
	t.Parallel()

	cache := &fakeCache{getErr: errors.New("disk unreadable")}
	profiles := newFakeProfiles(domain.Profile{ID: "u1", PersonalAuthToken: "stored-token"})
	resolver := NewResolver(cache, profiles, nil)

	credential, err := resolver.Resolve(context.Background(), domain.Session{UserID: "u1"}, nil)

	require.NoError(t, err)
	assert.Equal(t, "stored-token", credential.Token)
}

func TestResolveStoreFailureIsNotMaskedAsMissing(t *testing.T) {
	t.Parallel()

	profiles := newFakeProfiles()
	profiles.getErr = errors.New("connection refused")
	resolver := NewResolver(&fakeCache{}, profiles, nil)

	_, err := resolver.Resolve(context.Background(), domain.Session{UserID: "u1"}, nil)

	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNoCredential)
}
