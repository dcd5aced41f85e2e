package domain

import (
	"fmt"
	"strings"
)

type ServerID string

// Capability tags carried by directory entries. Tags gate visibility:
// a VIP endpoint is only listed for elevated roles.
const (
	TagVIP = "vip"
	TagIOS = "ios"
)

// ServerEndpoint is an immutable proxy directory entry. Endpoints are
// constructed once from static config (optionally merged with a dynamic
// list for privileged callers) and selected by filtering, never mutated.
type ServerEndpoint struct {
	ID   ServerID
	URL  string
	Tags []string
}

func (e ServerEndpoint) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

func (e ServerEndpoint) Validate() error {
	if strings.TrimSpace(string(e.ID)) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(e.URL) == "" {
		return fmt.Errorf("url is required")
	}
	return nil
}

// ServiceType selects the proxy API family an operation belongs to.
type ServiceType string

const (
	ServiceImagen ServiceType = "imagen"
	ServiceVeo    ServiceType = "veo"
)

// OperationKind classifies an operation for admission control and
// diagnostics. Generation-class calls acquire an advisory rate-limit slot
// first; status checks skip both the slot and failure diagnostics.
type OperationKind string

const (
	KindGeneration OperationKind = "generation"
	KindUpload     OperationKind = "upload"
	KindStatus     OperationKind = "status"
)
