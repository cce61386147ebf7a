package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seantiz/scribe/internal/api"
	"github.com/seantiz/scribe/internal/backend"
	"github.com/seantiz/scribe/internal/engine"
	"github.com/seantiz/scribe/internal/session"
	"github.com/seantiz/scribe/internal/store"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Scribe HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "HTTP listen address; overrides SCRIBE_LISTEN_ADDR")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}

	logger.Info("scribe: starting",
		"listen_addr", cfg.ListenAddr,
		"store", cfg.Store,
		"store_path", cfg.StorePath,
		"job_timeout", cfg.JobTimeout.String(),
		"session", cfg.Session,
	)

	sess, err := session.Parse(cfg.Session)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	kv, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer kv.Close()

	reg := backend.NewRegistry()
	reg.Register("external", backend.External{})

	eng, err := engine.New(engine.Options{
		Store:      kv,
		Registry:   reg,
		Session:    sess,
		JobTimeout: cfg.JobTimeout,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	if err := eng.Load(ctx); err != nil {
		return fmt.Errorf("load quota: %w", err)
	}

	srv := api.NewServer(cfg.ListenAddr, reg, eng, logger)
	runErr := srv.Run()
	// Close is idempotent; Run has already closed the engine on a clean shutdown.
	if err := eng.Close(context.Background()); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
