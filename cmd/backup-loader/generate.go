package main

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luizfilipeschaeffer/market-dashboard/internal/generate"
)

type generateOptions struct {
	output string
	opts   generate.Options
}

func newGenerateCmd(a *app) *cobra.Command {
	o := generateOptions{opts: generate.DefaultOptions()}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic CSV file with random clients and backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if err := a.load(cmd); err != nil {
				return err
			}
			defer a.log.Sync()
			o.opts.SuccessToken = a.cfg.Upload.SuccessToken
			return runGenerate(cmd, a, o)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.output, "output", "o", "", "output file (default: stdout)")
	f.IntVar(&o.opts.Clients, "clients", o.opts.Clients, "number of clients")
	f.IntVar(&o.opts.MinBackups, "min-backups", o.opts.MinBackups, "minimum backups per client")
	f.IntVar(&o.opts.MaxBackups, "max-backups", o.opts.MaxBackups, "maximum backups per client")
	f.Float64Var(&o.opts.SuccessRate, "success-rate", o.opts.SuccessRate, "share of successful backups, 0 to 1")
	f.IntVar(&o.opts.Days, "days", o.opts.Days, "days the backups are spread over, ending today")
	f.Uint64Var(&o.opts.Seed, "seed", o.opts.Seed, "random seed; equal seeds produce equal files")

	return cmd
}

func runGenerate(cmd *cobra.Command, a *app, o generateOptions) error {
	var w io.Writer = cmd.OutOrStdout()
	if o.output != "" {
		f, err := os.Create(o.output)
		if err != nil {
			return errors.Wrapf(err, "creating %s", o.output)
		}
		defer f.Close()
		w = f
	}

	backups, err := generate.Write(w, o.opts)
	if err != nil {
		return err
	}
	a.log.Info("dataset generated",
		zap.String("clients", humanize.Comma(int64(o.opts.Clients))),
		zap.String("backups", humanize.Comma(int64(backups))),
		zap.String("output", o.output))
	return nil
}
