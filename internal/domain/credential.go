package domain

import (
	"fmt"
	"strings"
)

type CredentialSource string

const (
	// CredentialExplicit is a caller-supplied token, scoped to one call or
	// one pinned workflow.
	CredentialExplicit CredentialSource = "explicit"
	// CredentialPersonal is the token stored on the user's own profile.
	CredentialPersonal CredentialSource = "personal"
	// CredentialPool is a shared token claimed from a usage-limited pool.
	CredentialPool CredentialSource = "pool"
)

// Credential is an opaque bearer token plus where it came from. The token
// value is never interpreted locally; it is only forwarded to proxy servers.
type Credential struct {
	Token   string
	Source  CredentialSource
	OwnerID string
}

func (c Credential) Empty() bool {
	return strings.TrimSpace(c.Token) == ""
}

// Redacted returns a loggable form of the token: its last six characters.
func (c Credential) Redacted() string {
	token := strings.TrimSpace(c.Token)
	if len(token) <= 6 {
		return "..." + token
	}
	return "..." + token[len(token)-6:]
}

func (c Credential) Validate() error {
	if c.Empty() {
		return fmt.Errorf("token is required")
	}
	switch c.Source {
	case CredentialExplicit, CredentialPersonal, CredentialPool:
		return nil
	default:
		return fmt.Errorf("unsupported credential source %q", c.Source)
	}
}

// PinnedContext is the (server, credential) pair fixed by the first
// successful call of a multi-step workflow. Media IDs and in-flight
// operations are only meaningful to the server and credential that minted
// them, so every later call in the workflow must carry this pair unchanged.
type PinnedContext struct {
	ServerURL  string
	Credential Credential
}

func (p PinnedContext) Pinned() bool {
	return p.ServerURL != "" && !p.Credential.Empty()
}
