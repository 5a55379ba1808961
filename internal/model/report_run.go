package model

import "time"

// RunStatus is the lifecycle state of a report run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	// RunStatusNoReport means the conversation ended but no message had the
	// shape of a final report.
	RunStatusNoReport RunStatus = "no_report"
	RunStatusFailed   RunStatus = "failed"
)

func (s RunStatus) Terminal() bool {
	return s != RunStatusRunning
}

// ReportRun is the archived outcome of one report conversation.
type ReportRun struct {
	ID           int64      `json:"id,string"`
	Company      string     `json:"company"`
	Status       RunStatus  `json:"status"`
	Phase        string     `json:"phase,omitempty"`
	StopReason   string     `json:"stop_reason,omitempty"`
	MessageCount int32      `json:"message_count"`
	Report       *string    `json:"report,omitempty"`
	MarkdownPath *string    `json:"markdown_path,omitempty"`
	Error        *string    `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// RunOutcome carries the fields written when a run finishes.
type RunOutcome struct {
	Status       RunStatus
	Phase        string
	StopReason   string
	MessageCount int32
	Report       *string
	MarkdownPath *string
}

// Citation is a source the researcher consulted.
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}
