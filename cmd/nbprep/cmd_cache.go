package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"nbprep/internal/cache"
	"nbprep/internal/preprocess"
)

func (a *app) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the execution cache of test notebooks",
	}
	cmd.AddCommand(a.cacheRecordCmd(), a.cacheStatsCmd(), a.cachePruneCmd())
	return cmd
}

func (a *app) openCacheStore() (*cache.SQLiteStore, error) {
	root, err := preprocess.ResolveRoot(a.dir, a.layout())
	if err != nil {
		return nil, err
	}
	return cache.OpenSQLite(a.cfg.CachePath(root))
}

func (a *app) cacheRecordCmd() *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "record <notebook...>",
		Short: "Record outputs of executed test notebooks",
		Long: `Stores the outputs and execution counts of executed test notebooks so
that later pre-processing runs can carry them into regenerated test
notebooks whose cells did not change.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openCacheStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if runID == "" {
				runID = uuid.NewString()
			}
			for _, path := range args {
				e, err := cache.Record(store, path, runID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "recorded %s %s\n", path, dimStyle.Render(e.Key[:12]))
			}
			subheading(cmd.OutOrStdout(), fmt.Sprintf("run %s: %d notebooks", runID, len(args)))
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "Identifier of the test run (default: random)")
	return cmd
}

func (a *app) cacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show execution cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openCacheStore()
			if err != nil {
				return err
			}
			defer store.Close()
			st, err := store.Stats()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "database: %s\n", store.Path())
			fmt.Fprintf(w, "entries:  %d\n", st.Entries)
			if !st.LastRecorded.IsZero() {
				fmt.Fprintf(w, "last run: %s\n", st.LastRecorded.Local().Format(time.RFC3339))
			}
			return nil
		},
	}
}

func (a *app) cachePruneCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old execution cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openCacheStore()
			if err != nil {
				return err
			}
			defer store.Close()
			n, err := store.Prune(time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Remove entries recorded longer ago than this")
	return cmd
}
