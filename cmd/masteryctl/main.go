package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"mastery-tracker/internal/constants"
	"mastery-tracker/internal/domain"
	fxmodules "mastery-tracker/internal/fx"
	"mastery-tracker/internal/service"
	"mastery-tracker/internal/view"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

type app struct {
	store *service.Store
	db    *sql.DB
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var a app

	root := &cobra.Command{
		Use:           "masteryctl",
		Short:         "Operate the mastery tracker database from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			fxApp := fx.New(
				fxmodules.Core,
				fx.NopLogger,
				fx.Populate(&a.store, &a.db),
			)
			if err := fxApp.Err(); err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}
			// commands drive loads themselves
			a.store.Restore(cmd.Context())
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			a.store.Close()
			return a.db.Close()
		},
	}

	root.AddCommand(
		newBuildIndexCmd(&a),
		newSetKeyCmd(&a),
		newStatusCmd(&a),
		newHistoryCmd(&a),
	)
	return root
}

func newBuildIndexCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "build-index",
		Short: "Fetch the full achievement catalog and rebuild the mastery id index",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), constants.BuildTimeout)
			defer cancel()

			done := make(chan struct{})
			go reportBuildProgress(cmd, a.store, done)
			err := a.store.BuildDatabase(ctx)
			close(done)
			if err != nil {
				return err
			}

			snap := a.store.Snapshot()
			fmt.Fprintf(cmd.OutOrStdout(), "index built at %s\n", time.UnixMilli(snap.IndexTimestamp).UTC().Format(time.RFC3339))
			return nil
		},
	}
}

func reportBuildProgress(cmd *cobra.Command, store *service.Store, done <-chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	last := service.BuildProgress{}
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			p := store.Snapshot().BuildProgress
			if p != last && p.Total > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "batches %d/%d\n", p.Completed, p.Total)
				last = p
			}
		}
	}
}

func newSetKeyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-key <api-key>",
		Short: "Store an API key and load account progress with it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.SubmitKey(args[0]); err != nil {
				return err
			}
			a.store.Wait()
			snap := a.store.Snapshot()
			if snap.LoadError != "" {
				return fmt.Errorf("%s", snap.LoadError)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "key accepted, %d/%d mastery points earned\n", snap.Points.Earned, snap.Points.Total)
			return nil
		},
	}
}

// statusFilters overlays the flags the user set on the saved settings.
func statusFilters(cmd *cobra.Command, saved domain.FilterSettings, hideCompleted bool, goal string) (domain.FilterSettings, error) {
	filters := saved
	if cmd.Flags().Changed("hide-completed") {
		completion := view.CompletionAll
		if hideCompleted {
			completion = view.CompletionIncomplete
		}
		if err := completion.Apply(&filters); err != nil {
			return saved, err
		}
	}
	if cmd.Flags().Changed("goal") {
		if err := view.Goal(goal).Apply(&filters); err != nil {
			return saved, err
		}
	}
	return filters, nil
}

func newStatusCmd(a *app) *cobra.Command {
	var hideCompleted bool
	var goal string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Load achievements and print per-region progress",
		Long:  "Load achievements and print per-region progress. Flags override the saved filters for this run only.",
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := statusFilters(cmd, a.store.Snapshot().Filters, hideCompleted, goal)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), constants.LoadTimeout)
			defer cancel()
			if err := a.store.Refresh(ctx); err != nil {
				return fmt.Errorf("%s", service.ErrorMessage(err))
			}

			snap := a.store.SnapshotWithFilters(filters)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}

			if b, ok := a.store.LatestBuild(cmd.Context()); ok {
				fmt.Fprintf(out, "last index build: %s (%s, %d ids)\n", b.StartedAt.UTC().Format(time.RFC3339), b.Status, b.IDCount)
			}
			fmt.Fprintf(out, "mastery points: %d/%d\n", snap.Points.Earned, snap.Points.Total)
			for _, r := range snap.Regions {
				mark := " "
				if r.IsComplete {
					mark = "x"
				}
				fmt.Fprintf(out, "[%s] %-8s %7s  (%d shown)\n", mark, r.Region, r.Ratio(), r.DisplayedCount)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&hideCompleted, "hide-completed", false, "only list incomplete achievements")
	cmd.Flags().StringVar(&goal, "goal", string(view.GoalRequired), "ratio denominator: required or all")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full state as JSON")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent index builds",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, b := range a.store.BuildHistory(cmd.Context(), limit) {
				fmt.Fprintf(out, "%s  %-9s  %5d ids  %s  %s\n",
					b.ID, b.Status, b.IDCount, b.StartedAt.UTC().Format(time.RFC3339), b.Error)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of builds to show")
	return cmd
}
