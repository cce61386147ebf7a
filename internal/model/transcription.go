package model

import (
	"encoding/json"
	"time"
)

// Model routing constants for recognition backends.
const (
	ModelAuto = "auto"
)

// Job event types published on a registration's event stream.
const (
	EventPending = "pending"
	EventFinal   = "final"
	EventError   = "error"
)

// TranscriptionUpdate is a progress or result event for a recognition job.
// The payload is produced by the recognition backend and forwarded untouched.
type TranscriptionUpdate struct {
	JobID   int64           `json:"job_id"`
	Pending bool            `json:"pending"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Registration identifies one caller's interest in a job. A job ID may be
// registered again after it resolves or is superseded; every registration gets
// its own RegistrationID.
type Registration struct {
	JobID          int64     `json:"id"`
	RegistrationID string    `json:"registration_id"`
	Model          string    `json:"model"`
	CreatedAt      time.Time `json:"created_at"`
}

// JobEvent is a single event delivered to a registration's listeners.
type JobEvent struct {
	Type           string          `json:"type"`
	JobID          int64           `json:"job_id"`
	RegistrationID string          `json:"registration_id"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// Terminal reports whether no further events follow this one.
func (e JobEvent) Terminal() bool {
	return e.Type != EventPending
}

// QuotaUpdate is the speech recognition trial notification sent to listeners.
type QuotaUpdate struct {
	MaxDurationSeconds    int32 `json:"max_duration_seconds"`
	WeeklyLimit           int32 `json:"weekly_limit"`
	RemainingTries        int32 `json:"remaining_tries"`
	CooldownUntilUnixTime int64 `json:"cooldown_until_unix_time"`
}
