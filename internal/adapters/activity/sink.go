// Package activity implements the fire-and-forget outcome recorder.
// Recording never blocks a workflow: entries go into a buffered channel and
// a single background goroutine drains them into the durable log store.
// When the buffer is full the entry is dropped, not waited on.
package activity

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/monoklix/mkx-cli/internal/domain"
	"github.com/monoklix/mkx-cli/internal/ports"
)

const (
	defaultBufferSize = 64
	maxOutputLength   = 500
	appendTimeout     = 5 * time.Second
)

// Intermediate progress chatter that has no value in the durable log.
// Final successes and errors always go through.
var verboseMarkers = []string{
	"Checking video status",
	"Starting video generation",
	"Uploading reference image",
	"Cropping reference image",
	"In progress...",
}

type Sink struct {
	store   ports.LogStore
	logger  *slog.Logger
	clock   ports.Clock
	entries chan domain.LogEntry
	done    chan struct{}
	once    sync.Once
}

var _ ports.ActivitySink = (*Sink)(nil)

func NewSink(store ports.LogStore, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}

	sink := &Sink{
		store:   store,
		logger:  logger,
		clock:   ports.SystemClock{},
		entries: make(chan domain.LogEntry, defaultBufferSize),
		done:    make(chan struct{}),
	}
	go sink.drain()

	return sink
}

// Record enqueues an entry for persistence. It never blocks and never
// reports failure to the caller; a full buffer drops the entry.
func (s *Sink) Record(entry domain.LogEntry) {
	if entry.ID == "" {
		entry.ID = "log-" + uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.clock.Now().UTC()
	}
	if len(entry.Output) > maxOutputLength {
		entry.Output = entry.Output[:maxOutputLength] + "..."
	}

	select {
	case s.entries <- entry:
	default:
		s.logger.Debug("activity buffer full, dropping entry", "model", entry.Model)
	}
}

// Close stops accepting entries and waits for the buffer to flush.
func (s *Sink) Close() {
	s.once.Do(func() {
		close(s.entries)
		<-s.done
	})
}

func (s *Sink) drain() {
	defer close(s.done)
	for entry := range s.entries {
		if isVerbose(entry) {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		if err := s.store.AppendLog(ctx, entry); err != nil {
			// Logging must never break the primary flow; note it and move on.
			s.logger.Debug("activity append failed", "error", err)
		}
		cancel()
	}
}

func isVerbose(entry domain.LogEntry) bool {
	for _, marker := range verboseMarkers {
		if strings.Contains(entry.Output, marker) {
			return true
		}
	}
	return false
}
