package backend

import (
	"context"
	"encoding/json"
	"time"

	"github.com/seantiz/scribe/internal/model"
)

// Step is one update a Scripted backend emits.
type Step struct {
	Delay   time.Duration
	Pending bool
	Text    string
}

// Scripted is a Backend that replays a fixed sequence of steps. It backs the
// test server and the end-to-end tests.
type Scripted struct {
	Name  string
	Steps []Step

	// Err, when set, is returned after the steps have been emitted.
	Err error
}

var _ Backend = (*Scripted)(nil)

// Transcribe emits each step after its delay, stopping early when ctx ends.
func (s *Scripted) Transcribe(ctx context.Context, spec JobSpec, emit func(model.TranscriptionUpdate)) error {
	for _, st := range s.Steps {
		if st.Delay > 0 {
			t := time.NewTimer(st.Delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		payload, err := json.Marshal(map[string]string{"text": st.Text})
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		emit(model.TranscriptionUpdate{JobID: spec.ID, Pending: st.Pending, Payload: payload})
	}
	return s.Err
}

func (s *Scripted) Capabilities() Capabilities {
	return Capabilities{
		Name:           s.Name,
		Models:         []string{s.Name},
		MaxConcurrency: 0,
	}
}
