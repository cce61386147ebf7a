package backend

import (
	"context"

	"github.com/seantiz/scribe/internal/model"
)

// External is a Backend for recognizers that run outside the process and
// report through the updates API. Transcribe only holds the job open until it
// resolves.
type External struct{}

var _ Backend = External{}

func (External) Transcribe(ctx context.Context, _ JobSpec, _ func(model.TranscriptionUpdate)) error {
	<-ctx.Done()
	return nil
}

func (External) Capabilities() Capabilities {
	return Capabilities{Name: "external", Models: []string{"external"}}
}
