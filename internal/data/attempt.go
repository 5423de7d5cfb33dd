package data

import (
	"encoding/json"
	"io"
	"time"
)

// Attempt records one polling cycle. ID is the cycle id assigned by the
// updater, so every lifecycle event of a cycle maps to the same attempt.
type Attempt struct {
	ID             string         `json:"id"`
	StartedAt      time.Time      `json:"startedAt"`
	FinishedAt     *time.Time     `json:"finishedAt,omitempty"`
	CurrentVersion string         `json:"currentVersion"`
	RemoteVersion  string         `json:"remoteVersion,omitempty"`
	Outcome        AttemptOutcome `json:"outcome"`
	BytesWritten   int64          `json:"bytesWritten,omitempty"`
	TotalBytes     int64          `json:"totalBytes,omitempty"`
	Error          string         `json:"error,omitempty"`
}

type Attempts []*Attempt

type AttemptOutcome string

const (
	OutcomeChecking    AttemptOutcome = "checking"
	OutcomeUpToDate    AttemptOutcome = "up_to_date"
	OutcomeDeferred    AttemptOutcome = "deferred"
	OutcomeDownloading AttemptOutcome = "downloading"
	OutcomeInstalled   AttemptOutcome = "installed"
	OutcomeFailed      AttemptOutcome = "failed"
)

// Terminal reports whether no further events are expected for the outcome.
func (o AttemptOutcome) Terminal() bool {
	switch o {
	case OutcomeUpToDate, OutcomeDeferred, OutcomeInstalled, OutcomeFailed:
		return true
	}
	return false
}

func (a *Attempts) ToJSON(w io.Writer) error { return json.NewEncoder(w).Encode(a) }

func (a *Attempt) ToJSON(w io.Writer) error { return json.NewEncoder(w).Encode(a) }

// Clone returns a deep copy so callers cannot mutate repository state.
func (a *Attempt) Clone() *Attempt {
	if a == nil {
		return nil
	}
	c := *a
	if a.FinishedAt != nil {
		t := *a.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// Clone returns a deep copy of the slice and its elements.
func (as Attempts) Clone() Attempts {
	out := make(Attempts, 0, len(as))
	for _, a := range as {
		out = append(out, a.Clone())
	}
	return out
}
