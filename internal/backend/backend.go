package backend

import (
	"context"

	"github.com/seantiz/scribe/internal/model"
)

// Backend is the interface that all recognition backends must implement.
type Backend interface {
	// Transcribe recognizes the audio described by spec. Progress and the
	// final result are reported through emit; the JobID of emitted updates is
	// filled in by the caller. A backend that returns nil without emitting a
	// final update leaves the job to its timeout.
	Transcribe(ctx context.Context, spec JobSpec, emit func(model.TranscriptionUpdate)) error

	// Capabilities reports what models this backend serves.
	Capabilities() Capabilities
}

// JobSpec describes a recognition job handed to a backend.
type JobSpec struct {
	ID       int64  `json:"id"`
	Model    string `json:"model"`
	AudioURL string `json:"audio_url"`

	// MaxDurationS is the longest audio the current quota allows, zero when
	// unlimited.
	MaxDurationS int32 `json:"max_duration_s"`
}

// Capabilities describes what a backend supports.
type Capabilities struct {
	Name           string   `json:"name"`
	Models         []string `json:"models"`
	MaxConcurrency int      `json:"max_concurrency"`
}
