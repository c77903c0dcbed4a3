package models

// Bug-report entry kinds.
const (
	BugEntryInitial = "initial"
	BugEntryDetail  = "detail"
)

// BugReportEntry is one utterance captured while a bug report is being collected.
type BugReportEntry struct {
	Kind      string  `json:"type"`
	Text      string  `json:"text"`
	Timestamp float64 `json:"timestamp"`
	TurnID    string  `json:"turn_id,omitempty"`
}

// BugReport is a completed report as persisted on the session and published downstream.
type BugReport struct {
	SessionID       string           `json:"session_id"`
	ReportID        string           `json:"report_id"`
	FlaggedTurnID   string           `json:"flagged_turn_id,omitempty"`
	CapturedMessage string           `json:"captured_message,omitempty"`
	Entries         []BugReportEntry `json:"entries"`
	StartedAt       float64          `json:"started_at"`
	CompletedAt     float64          `json:"completed_at"`
}
