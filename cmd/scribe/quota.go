package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/scribe/internal/coordinator"
	"github.com/seantiz/scribe/internal/quota"
	"github.com/seantiz/scribe/internal/store"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Inspect the speech recognition trial quota",
}

var quotaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted quota state",
	RunE:  runQuotaShow,
}

func init() {
	quotaCmd.AddCommand(quotaShowCmd)
}

func runQuotaShow(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	kv, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer kv.Close()

	data, err := kv.Get(ctx, coordinator.TrialKey)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Fprintln(cmd.OutOrStdout(), "no quota state persisted")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read quota: %w", err)
	}

	var st quota.State
	if err := st.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("decode quota: %w", err)
	}
	st.Normalize(time.Now().Unix())

	out, err := json.MarshalIndent(st.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
