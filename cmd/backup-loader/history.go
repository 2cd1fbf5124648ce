package main

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luizfilipeschaeffer/market-dashboard/internal/journal"
)

type historyOptions struct {
	limit int
	run   string
	clear bool
}

func newHistoryCmd(a *app) *cobra.Command {
	var o historyOptions

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previous runs recorded in the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if err := a.load(cmd); err != nil {
				return err
			}
			defer a.log.Sync()
			return runHistory(cmd, a, o)
		},
	}

	cmd.Flags().IntVar(&o.limit, "limit", 20, "number of runs to list (0 lists all)")
	cmd.Flags().StringVar(&o.run, "run", "", "show the records of one run")
	cmd.Flags().BoolVar(&o.clear, "clear", false, "delete every recorded run")
	cmd.MarkFlagsMutuallyExclusive("clear", "run")
	return cmd
}

func runHistory(cmd *cobra.Command, a *app, o historyOptions) error {
	if a.cfg.Journal.Path == "" {
		return errors.New("no journal configured: pass --journal or set journal.path")
	}
	j, err := journal.Open(a.cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer j.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	if o.clear {
		if err := j.ClearAll(ctx); err != nil {
			return err
		}
		a.log.Info("journal cleared", zap.String("journal", j.Path()))
		return nil
	}
	if o.run == "" {
		runs, err := j.Runs(ctx, o.limit)
		if err != nil {
			return err
		}
		return journal.WriteRuns(out, runs, time.Now())
	}

	runID, err := j.ResolveRun(ctx, o.run)
	if err != nil {
		return err
	}
	entries, err := j.Entries(ctx, runID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "run %s\n", runID)

	table := uitable.New()
	table.MaxColWidth = 60
	table.Wrap = true
	table.AddRow("KIND", "CLIENT", "LINE", "ID", "RESULT")
	for _, e := range entries {
		result := "ok"
		if !e.OK {
			result = e.Error
		}
		id := "-"
		if e.RemoteID != 0 {
			id = fmt.Sprint(e.RemoteID)
		}
		table.AddRow(e.Kind, e.Name, e.Row, id, result)
	}
	_, err = fmt.Fprintln(out, table)
	return err
}
