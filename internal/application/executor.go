package application

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/monoklix/mkx-cli/internal/domain"
	"github.com/monoklix/mkx-cli/internal/ports"
)

const defaultSlotCooldown = 10 * time.Second

// Executor performs one proxied call: it resolves the target server and
// credential, acquires an advisory generation slot, issues the HTTP call,
// classifies the outcome, and hands the pinned (server, credential) pair
// back to the caller so multi-step workflows can stay on the exact pair
// that minted their media IDs.
type Executor struct {
	resolver      *Resolver
	admission     ports.AdmissionController
	sink          ports.ActivitySink
	httpClient    *http.Client
	logger        *slog.Logger
	defaultServer string
	slotCooldown  time.Duration
}

func NewExecutor(
	resolver *Resolver,
	admission ports.AdmissionController,
	sink ports.ActivitySink,
	httpClient *http.Client,
	defaultServer string,
	logger *slog.Logger,
) *Executor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if sink == nil {
		sink = ports.NopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		resolver:      resolver,
		admission:     admission,
		sink:          sink,
		httpClient:    httpClient,
		logger:        logger,
		defaultServer: defaultServer,
		slotCooldown:  defaultSlotCooldown,
	}
}

// ExecuteOptions tune a single call.
type ExecuteOptions struct {
	// Credential forces a specific credential (mid-workflow pin). When nil
	// the resolver's usual order applies.
	Credential *domain.Credential
	// ServerURL forces a specific server (mid-workflow pin). When empty the
	// session's selected server or the configured default applies.
	ServerURL string
	// Kind gates admission control and failure diagnostics.
	Kind domain.OperationKind
	// Label names the operation in diagnostics, e.g. "IMAGEN GENERATE".
	Label string
	// OnStatus receives short human-readable progress updates.
	OnStatus func(status string)
}

// Result carries the decoded response plus the pinned context every
// follow-up call in the same workflow must reuse.
type Result struct {
	Data   map[string]any
	Pinned domain.PinnedContext
}

func (e *Executor) Execute(
	ctx context.Context,
	operationPath string,
	service domain.ServiceType,
	body any,
	session domain.Session,
	opts ExecuteOptions,
) (Result, error) {
	server := e.resolveServer(session, opts.ServerURL)
	if server == "" {
		return Result{}, domain.ErrNoServers
	}

	if opts.Kind == domain.KindGeneration && e.admission != nil {
		notify(opts.OnStatus, "Queueing...")
		if err := e.admission.AcquireSlot(ctx, server, e.slotCooldown); err != nil {
			// Admission control is advisory: a failed reservation means no
			// artificial delay was applied, never an aborted call.
			e.logger.Warn("generation slot request failed, proceeding", "server", server, "error", err)
		}
		notify(opts.OnStatus, "Processing...")
	}

	credential, err := e.resolver.Resolve(ctx, session, opts.Credential)
	if err != nil {
		return Result{}, err
	}

	data, err := e.post(ctx, server, operationPath, service, body, credential, session)
	if err != nil {
		e.recordFailure(session, opts, credential, err)
		return Result{}, err
	}

	return Result{
		Data: data,
		Pinned: domain.PinnedContext{
			ServerURL:  server,
			Credential: credential,
		},
	}, nil
}

func (e *Executor) resolveServer(session domain.Session, override string) string {
	if override != "" {
		return override
	}
	if session.SelectedServer != "" {
		return session.SelectedServer
	}
	return e.defaultServer
}

func (e *Executor) post(
	ctx context.Context,
	server, operationPath string,
	service domain.ServiceType,
	body any,
	credential domain.Credential,
	session domain.Session,
) (map[string]any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/%s%s", server, service, operationPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential.Token)
	req.Header.Set("x-user-username", session.UsernameOrUnknown())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	data := decodeTolerant(raw, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := errorMessage(data, resp.StatusCode)
		if isContentPolicyResponse(resp.StatusCode, message) {
			return nil, &domain.ContentPolicyError{StatusCode: resp.StatusCode, Message: message}
		}
		return nil, fmt.Errorf("proxy call failed (%d): %s", resp.StatusCode, message)
	}

	return data, nil
}

// decodeTolerant never swallows a non-JSON response silently: a body that
// fails to parse is wrapped in a synthetic error envelope embedding the
// truncated raw text and the HTTP status.
func decodeTolerant(raw []byte, status int) map[string]any {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err == nil && data != nil {
		return data
	}

	text := string(raw)
	if len(text) > 100 {
		text = text[:100]
	}
	return map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf("proxy returned non-JSON (%d): %s", status, text),
		},
	}
}

func errorMessage(data map[string]any, status int) string {
	if errObj, ok := data["error"].(map[string]any); ok {
		if msg, ok := errObj["message"].(string); ok && msg != "" {
			return msg
		}
	}
	if msg, ok := data["message"].(string); ok && msg != "" {
		return msg
	}
	return fmt.Sprintf("API call failed (%d)", status)
}

func isContentPolicyResponse(status int, message string) bool {
	if status == http.StatusBadRequest {
		return true
	}
	lower := strings.ToLower(message)
	return strings.Contains(lower, "safety") || strings.Contains(lower, "blocked")
}

// recordFailure emits an async diagnostic entry, except for status checks,
// content-policy failures (the caller surfaces those verbatim), and calls
// made with an explicitly supplied credential.
func (e *Executor) recordFailure(session domain.Session, opts ExecuteOptions, credential domain.Credential, err error) {
	if opts.Credential != nil || opts.Kind == domain.KindStatus || domain.IsContentPolicy(err) {
		return
	}

	e.sink.Record(domain.LogEntry{
		UserID: session.UserID,
		Model:  opts.Label,
		Prompt: fmt.Sprintf("Failed using %s token", credential.Source),
		Output: err.Error(),
		Status: domain.LogError,
		Error:  err.Error(),
	})
}

func notify(onStatus func(string), status string) {
	if onStatus != nil {
		onStatus(status)
	}
}
