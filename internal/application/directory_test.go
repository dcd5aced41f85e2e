package application

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monoklix/mkx-cli/internal/domain"
)

var staticServers = []domain.ServerEndpoint{
	{ID: "main", URL: "http://main.example.com"},
	{ID: "backup", URL: "http://backup.example.com", Tags: []string{domain.TagIOS}},
	{ID: "premium", URL: "http://premium.example.com", Tags: []string{domain.TagVIP}},
}

func TestListHidesVIPServersFromMembers(t *testing.T) {
	t.Parallel()

	directory := NewDirectory(staticServers, "", nil, nil)

	visible := directory.List(context.Background(), domain.Session{UserID: "u1", Role: domain.RoleMember})

	require.Len(t, visible, 2)
	for _, endpoint := range visible {
		assert.False(t, endpoint.HasTag(domain.TagVIP))
	}
}

func TestListShowsVIPServersToElevatedRoles(t *testing.T) {
	t.Parallel()

	directory := NewDirectory(staticServers, "", nil, nil)

	for _, role := range []domain.Role{domain.RoleVIP, domain.RoleAdmin} {
		visible := directory.List(context.Background(), domain.Session{UserID: "u1", Role: role})
		assert.Len(t, visible, 3, "role %s", role)
	}
}

func TestListMergesRemoteForElevated(t *testing.T) {
	t.Parallel()

	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id":"main","url":"http://main.example.com"},
			{"id":"fresh","url":"http://fresh.example.com"},
			{"id":"broken","url":""}
		]`))
	}))
	defer remote.Close()

	directory := NewDirectory(staticServers, remote.URL, nil, nil)

	visible := directory.List(context.Background(), domain.Session{UserID: "u1", Role: domain.RoleAdmin})

	urls := make([]string, 0, len(visible))
	for _, endpoint := range visible {
		urls = append(urls, endpoint.URL)
	}
	// Static entries first, remote duplicates and invalid entries dropped.
	assert.Equal(t, []string{
		"http://main.example.com",
		"http://backup.example.com",
		"http://premium.example.com",
		"http://fresh.example.com",
	}, urls)
}

func TestListRemoteNotFetchedForMembers(t *testing.T) {
	t.Parallel()

	fetched := false
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetched = true
		w.Write([]byte(`[]`))
	}))
	defer remote.Close()

	directory := NewDirectory(staticServers, remote.URL, nil, nil)
	directory.List(context.Background(), domain.Session{UserID: "u1", Role: domain.RoleMember})

	assert.False(t, fetched)
}

func TestListFallsBackToStaticOnRemoteFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "malformed payload",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"not":"a list"}`))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			remote := httptest.NewServer(tc.handler)
			defer remote.Close()

			directory := NewDirectory(staticServers, remote.URL, nil, nil)
			visible := directory.List(context.Background(), domain.Session{UserID: "u1", Role: domain.RoleAdmin})

			assert.Len(t, visible, len(staticServers))
		})
	}
}
