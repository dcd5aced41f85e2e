package ports

import (
	"context"
	"time"

	"github.com/monoklix/mkx-cli/internal/domain"
)

// ActivitySink records workflow outcomes without ever blocking or failing
// the caller. Implementations buffer and drop rather than wait.
type ActivitySink interface {
	Record(entry domain.LogEntry)
}

// LogStore is the durable end of the activity pipeline.
type LogStore interface {
	AppendLog(ctx context.Context, entry domain.LogEntry) error
}

// NopSink discards every entry. Useful as a default and in tests.
type NopSink struct{}

func (NopSink) Record(domain.LogEntry) {}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
