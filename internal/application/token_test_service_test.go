package application

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monoklix/mkx-cli/internal/domain"
)

func newTestTokenService(serverURL string, pool *fakePool) (*TokenTestService, *captureSink) {
	sink := &captureSink{}
	exec := newTestExecutor(serverURL, nil, sink)
	imagen := NewImagenService(exec, nil, nil, nil)
	veo := NewVeoService(exec, nil, nil, nil, nil)
	service := NewTokenTestService(imagen, veo, pool, nil)
	// Single attempt by default; retry behavior has its own tests.
	service.retry = fastPolicy(1)
	return service, sink
}

func TestTestTokenProbesBothServices(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var paths, bearers []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		bearers = append(bearers, r.Header.Get("Authorization"))
		mu.Unlock()
		if r.URL.Path == "/api/veo/generate" {
			w.Write([]byte(`{"operations":[{"operation":{"name":"op-1"}}]}`))
			return
		}
		w.Write([]byte(`{"result":"ok"}`))
	}))
	defer server.Close()

	service, _ := newTestTokenService(server.URL, nil)

	results, err := service.TestToken(context.Background(), domain.Session{UserID: "u1"},
		"probe-token", "all", server.URL)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, domain.ServiceImagen, results[0].Service)
	assert.True(t, results[0].OK)
	assert.Equal(t, domain.ServiceVeo, results[1].Service)
	assert.True(t, results[1].OK)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/api/imagen/generate", "/api/veo/generate"}, paths)
	for _, bearer := range bearers {
		assert.Equal(t, "Bearer probe-token", bearer, "probes must use the token under test")
	}
}

func TestTestTokenReportsRejection(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid token"}}`))
	}))
	defer server.Close()

	service, sink := newTestTokenService(server.URL, nil)

	results, err := service.TestToken(context.Background(), domain.Session{UserID: "u1"},
		"bad-token", "imagen", server.URL)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].OK)
	assert.Contains(t, results[0].Detail, "invalid token")
	// Probe failures stay out of the diagnostics pipeline.
	assert.Empty(t, sink.recorded())
}

func TestTestTokenRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		failing := calls == 1
		mu.Unlock()

		if failing {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"error":{"message":"upstream timeout"}}`))
			return
		}
		w.Write([]byte(`{"result":"ok"}`))
	}))
	defer server.Close()

	service, _ := newTestTokenService(server.URL, nil)
	service.retry = fastPolicy(3)

	results, err := service.TestToken(context.Background(), domain.Session{UserID: "u1"},
		"probe-token", "imagen", server.URL)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].OK)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls, "transient failure must be retried before the verdict")
}

func TestTestTokenDoesNotRetryContentPolicy(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"prompt was blocked"}}`))
	}))
	defer server.Close()

	service, _ := newTestTokenService(server.URL, nil)
	service.retry = fastPolicy(3)

	results, err := service.TestToken(context.Background(), domain.Session{UserID: "u1"},
		"probe-token", "imagen", server.URL)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].OK)
	assert.Contains(t, results[0].Detail, "blocked")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls, "content policy settles the verdict on the first attempt")
}

func TestTestTokenValidatesInput(t *testing.T) {
	t.Parallel()

	service, _ := newTestTokenService("http://unused.invalid", nil)

	_, err := service.TestToken(context.Background(), domain.Session{UserID: "u1"}, "", "all", "http://s")
	assert.Error(t, err)

	_, err = service.TestToken(context.Background(), domain.Session{UserID: "u1"}, "tok", "midi", "http://s")
	assert.Error(t, err)
}

func TestScanPoolProbesEveryToken(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var bearers []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		bearers = append(bearers, r.Header.Get("Authorization"))
		mu.Unlock()
		w.Write([]byte(`{"result":"ok"}`))
	}))
	defer server.Close()

	pool := poolWith(
		domain.PoolToken{Token: "t-1", Pool: domain.PoolImagen, UsageCeiling: 5},
		domain.PoolToken{Token: "t-2", Pool: domain.PoolImagen, UsageCount: 5, UsageCeiling: 5},
	)
	service, _ := newTestTokenService(server.URL, pool)

	results, err := service.ScanPool(context.Background(), domain.Session{UserID: "u1"},
		domain.PoolImagen, "imagen", server.URL)

	require.NoError(t, err)
	require.Len(t, results, 2, "exhausted tokens are still probed for validity")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Bearer t-1", "Bearer t-2"}, bearers)
}

func TestScanPoolStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	pool := poolWith(
		domain.PoolToken{Token: "t-1", Pool: domain.PoolVeo, UsageCeiling: 5},
		domain.PoolToken{Token: "t-2", Pool: domain.PoolVeo, UsageCeiling: 5},
	)
	service, _ := newTestTokenService("http://unused.invalid", pool)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := service.ScanPool(ctx, domain.Session{UserID: "u1"}, domain.PoolVeo, "veo", "http://s")

	assert.ErrorIs(t, err, context.Canceled)
}
