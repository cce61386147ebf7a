// testserver starts a Scribe API server with scripted backends for E2E testing.
// Usage: go run ./cmd/testserver
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/seantiz/scribe/internal/api"
	"github.com/seantiz/scribe/internal/backend"
	"github.com/seantiz/scribe/internal/engine"
	"github.com/seantiz/scribe/internal/session"
	"github.com/seantiz/scribe/internal/store"
)

func main() {
	addr := ":8080"
	if v := os.Getenv("SCRIBE_LISTEN_ADDR"); v != "" {
		addr = v
	}

	reg := backend.NewRegistry()
	reg.Register("stub-whisper", &backend.Scripted{
		Name: "stub-whisper",
		Steps: []backend.Step{
			{Delay: 200 * time.Millisecond, Pending: true, Text: "hello"},
			{Delay: 200 * time.Millisecond, Pending: true, Text: "hello wor"},
			{Delay: 200 * time.Millisecond, Text: "hello world"},
		},
	})
	reg.Register("stub-broken", &backend.Scripted{
		Name:  "stub-broken",
		Steps: []backend.Step{{Delay: 100 * time.Millisecond, Pending: true, Text: "hel"}},
		Err:   errors.New("stub transcriber crashed"),
	})
	reg.Register("external", backend.External{})

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	eng, err := engine.New(engine.Options{
		Store:      store.NewMemoryStore(),
		Registry:   reg,
		Session:    session.NewSwitch(true, false),
		JobTimeout: 5 * time.Second,
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("failed to create engine: %v", err)
	}
	if err := eng.Load(context.Background()); err != nil {
		log.Fatalf("failed to load quota: %v", err)
	}

	srv := api.NewServer(addr, reg, eng, logger)

	logger.Info("testserver: starting", "addr", addr)
	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
