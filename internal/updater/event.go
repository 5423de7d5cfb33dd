package updater

import (
	"time"

	"github.com/tinoosan/fota/internal/data"
)

// Event is a lifecycle notification emitted by the Engine.
//
// Every event of one polling cycle carries the same Cycle id. Progress is set
// only on EventProgress; Err only on EventUpdateError. CheckFinished closes a
// cycle that did not enter Updating and carries its Outcome.
type Event struct {
	Type     EventType           `json:"type"`
	Cycle    string              `json:"cycle,omitempty"`
	At       time.Time           `json:"at"`
	Current  string              `json:"current,omitempty"`
	Remote   string              `json:"remote,omitempty"`
	Progress *data.Progress      `json:"progress,omitempty"`
	Outcome  data.AttemptOutcome `json:"outcome,omitempty"`
	Err      string              `json:"error,omitempty"`
}

// EventType defines the set of events the Engine may emit.
type EventType string

const (
	EventCheckStarted   EventType = "CheckStarted"
	EventCheckFinished  EventType = "CheckFinished"
	EventUpdateStarted  EventType = "UpdateStarted"
	EventProgress       EventType = "Progress"
	EventUpdateComplete EventType = "UpdateComplete"
	EventUpdateError    EventType = "UpdateError"
)
