package data

import (
	"encoding/json"
	"io"
	"time"
)

// Phase is the coordinator state.
type Phase string

const (
	PhaseIdle       Phase = "Idle"
	PhaseWaiting    Phase = "Waiting"
	PhasePolling    Phase = "Polling"
	PhaseSleeping   Phase = "Sleeping"
	PhaseUpdating   Phase = "Updating"
	PhaseRestarting Phase = "Restarting"
)

// Progress is the transient state of one transfer attempt.
type Progress struct {
	Written int64 `json:"written"`
	Total   int64 `json:"total"`
}

// Done reports whether every expected byte was written.
func (p Progress) Done() bool { return p.Total > 0 && p.Written >= p.Total }

// Status is a point-in-time snapshot of the updater, served by the control API.
type Status struct {
	Running        bool      `json:"running"`
	Phase          Phase     `json:"phase"`
	CurrentVersion string    `json:"currentVersion"`
	LastCheck      time.Time `json:"lastCheck,omitempty"`
	LastError      string    `json:"lastError,omitempty"`
	Retries        int       `json:"retries"`
	ForcePending   bool      `json:"forcePending"`
	Staggered      bool      `json:"staggered"`
	RolloutBucket  uint8     `json:"rolloutBucket"`
	RolloutPercent uint8     `json:"rolloutPercent"`
}

func (s *Status) ToJSON(w io.Writer) error { return json.NewEncoder(w).Encode(s) }
