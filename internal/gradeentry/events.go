package gradeentry

import "time"

// EventType names a session lifecycle event.
type EventType string

const (
	EventSaved          EventType = "saved"
	EventAutoSaved      EventType = "autosaved"
	EventSaveFailed     EventType = "save_failed"
	EventAutoSaveFailed EventType = "autosave_failed"
	EventClosed         EventType = "closed"
)

// Event is pushed to session observers after saves and on close.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
	Records   int       `json:"records,omitempty"`
	Message   string    `json:"message,omitempty"`
}
