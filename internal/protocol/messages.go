package protocol

import "time"

// Transcript represents recognizer output broadcast on the bus. Partial
// entries are interim hypotheses subject to revision by later fragments;
// final entries are the recognizer's last hypothesis for an utterance.
type Transcript struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	Partial    bool      `json:"partial"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence,omitempty"`
}

// TranscriptView is the merged display state for one dictation session.
// Revision increments on every visible change; Truncated tells the UI that
// older words were dropped to honor the character budget.
type TranscriptView struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Truncated bool      `json:"truncated"`
	Revision  int       `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	SubjectTranscriptPartial = "stt.text.partial"
	SubjectTranscriptFinal   = "stt.text.final"
	SubjectViewPrefix        = "dictation.view"
)

// ViewSubject returns the per-session subject TranscriptView updates are
// published on.
func ViewSubject(sessionID string) string {
	return SubjectViewPrefix + "." + sessionID
}
