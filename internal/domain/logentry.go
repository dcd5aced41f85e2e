package domain

import "time"

type LogStatus string

const (
	LogSuccess LogStatus = "Success"
	LogError   LogStatus = "Error"
)

// LogEntry is one append-only activity record. Entries are emitted through
// an asynchronous sink and must never block or fail the workflow that
// produced them.
type LogEntry struct {
	ID         string
	UserID     string
	Model      string
	Prompt     string
	Output     string
	TokenCount int
	Status     LogStatus
	Error      string
	Timestamp  time.Time
}
