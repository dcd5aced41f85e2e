package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoCredential means no personal credential could be resolved. It is
	// actionable by the user (configure a token) and is never retried.
	ErrNoCredential = errors.New("no personal token configured: set one with 'mkx token set'")

	// ErrPoolSlotUnavailable is the normal negative outcome of an atomic
	// pool claim: the usage ceiling was reached, possibly by a concurrent
	// claimant. Callers try the next candidate token.
	ErrPoolSlotUnavailable = errors.New("token usage ceiling reached")

	ErrProfileNotFound   = errors.New("profile not found")
	ErrPoolTokenNotFound = errors.New("pool token not found")
	ErrNoServers         = errors.New("no servers available")
)

// ContentPolicyError is a non-retriable rejection caused by the request's
// content (HTTP 400 or a safety/blocked marker in the message), as opposed
// to infrastructure health. Retrying it is forbidden: the cause is
// semantic, not transient.
type ContentPolicyError struct {
	StatusCode int
	Message    string
}

func (e *ContentPolicyError) Error() string {
	return fmt.Sprintf("[%d] %s", e.StatusCode, e.Message)
}

// IsContentPolicy classifies an error as a content-policy failure, either
// structurally or by message inspection for errors that crossed a string
// boundary.
func IsContentPolicy(err error) bool {
	if err == nil {
		return false
	}
	var cpe *ContentPolicyError
	if errors.As(err, &cpe) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "safety") ||
		strings.Contains(msg, "blocked") ||
		strings.Contains(msg, "[400]")
}
