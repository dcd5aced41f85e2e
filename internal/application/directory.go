package application

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/monoklix/mkx-cli/internal/domain"
)

// Directory lists the proxy servers a caller may use. The static list from
// config is the source of truth; elevated callers may additionally merge a
// dynamically fetched list, and any failure there falls back to the static
// list. The directory never fails closed to empty.
type Directory struct {
	static     []domain.ServerEndpoint
	refreshURL string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewDirectory(static []domain.ServerEndpoint, refreshURL string, httpClient *http.Client, logger *slog.Logger) *Directory {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Directory{
		static:     static,
		refreshURL: refreshURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// List returns the endpoints visible to the session's role. VIP-tagged
// endpoints are hidden from non-elevated callers. Deterministic for a given
// caller and static config.
func (d *Directory) List(ctx context.Context, session domain.Session) []domain.ServerEndpoint {
	servers := d.static
	if session.Role.Elevated() && d.refreshURL != "" {
		if remote, err := d.fetchRemote(ctx); err != nil {
			d.logger.Warn("dynamic server list unavailable, using static list", "error", err)
		} else {
			servers = mergeEndpoints(servers, remote)
		}
	}

	visible := make([]domain.ServerEndpoint, 0, len(servers))
	for _, endpoint := range servers {
		if endpoint.HasTag(domain.TagVIP) && !session.Role.Elevated() {
			continue
		}
		visible = append(visible, endpoint)
	}

	return visible
}

type remoteEndpoint struct {
	ID   string   `json:"id"`
	URL  string   `json:"url"`
	Tags []string `json:"tags"`
}

func (d *Directory) fetchRemote(ctx context.Context) ([]domain.ServerEndpoint, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.refreshURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching server list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server list returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading server list: %w", err)
	}

	var remote []remoteEndpoint
	if err := json.Unmarshal(body, &remote); err != nil {
		return nil, fmt.Errorf("decoding server list: %w", err)
	}

	endpoints := make([]domain.ServerEndpoint, 0, len(remote))
	for _, entry := range remote {
		endpoint := domain.ServerEndpoint{
			ID:   domain.ServerID(entry.ID),
			URL:  entry.URL,
			Tags: entry.Tags,
		}
		if err := endpoint.Validate(); err != nil {
			continue
		}
		endpoints = append(endpoints, endpoint)
	}

	return endpoints, nil
}

func mergeEndpoints(static, remote []domain.ServerEndpoint) []domain.ServerEndpoint {
	merged := make([]domain.ServerEndpoint, 0, len(static)+len(remote))
	seen := make(map[string]struct{}, len(static)+len(remote))

	for _, endpoint := range static {
		seen[endpoint.URL] = struct{}{}
		merged = append(merged, endpoint)
	}
	for _, endpoint := range remote {
		if _, ok := seen[endpoint.URL]; ok {
			continue
		}
		seen[endpoint.URL] = struct{}{}
		merged = append(merged, endpoint)
	}

	return merged
}
