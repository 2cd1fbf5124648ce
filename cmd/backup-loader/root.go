package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/luizfilipeschaeffer/market-dashboard/internal/config"
	"github.com/luizfilipeschaeffer/market-dashboard/internal/csvparse"
	"github.com/luizfilipeschaeffer/market-dashboard/internal/gateway"
	"github.com/luizfilipeschaeffer/market-dashboard/internal/ingest"
	"github.com/luizfilipeschaeffer/market-dashboard/internal/journal"
	"github.com/luizfilipeschaeffer/market-dashboard/internal/logging"
	"github.com/luizfilipeschaeffer/market-dashboard/internal/progress"
	"github.com/luizfilipeschaeffer/market-dashboard/internal/report"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	log        *zap.Logger
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.Setup(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	return nil
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	cmd := &cobra.Command{
		Use:   "backup-loader <csv-file>",
		Short: "Upload clients and their backups from a CSV file to the dashboard API",
		Long: `Reads a CSV file with the columns

  id,name,email,cnpj,active,inclusionDate,backupsJson

creates every client through POST /api/clients and then every backup of the
clients that were created through POST /api/backups. The backupsJson column
holds a JSON array and must be quoted.`,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if err := a.load(cmd); err != nil {
				return err
			}
			defer a.log.Sync()
			return runUpload(cmd, a, args[0])
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (default: backup-loader.yaml in . or ./config)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "console", "log format: console, json")
	pf.String("journal", "", "SQLite file recording every run (empty disables it)")

	f := cmd.Flags()
	f.String("api-url", "http://localhost:8080", "base URL of the dashboard API")
	f.String("policy", "phased", "upload policy: phased or interleaved")
	f.Bool("validate", false, "validate every row and upload nothing if any row is invalid")
	f.Int("max-errors", report.DefaultMaxErrors, "errors listed in the report (0 lists all)")
	f.Int("client-batch-size", 0, "clients per batch (default 10, or 5 with --policy interleaved)")
	f.Int("backup-batch-size", 20, "backups created concurrently")
	f.Duration("client-delay", 0, "pause between client batches (default 100ms, or 200ms with --policy interleaved)")
	f.Duration("backup-delay", 0, "pause between backup batches (default from config)")
	f.Int("retries", 1, "attempts per request on 429/502/503/504")
	f.Float64("rate-limit", 0, "maximum requests per second (0 disables it)")

	for key, name := range map[string]string{
		"log.level":    "log-level",
		"log.format":   "log-format",
		"journal.path": "journal",
	} {
		_ = a.v.BindPFlag(key, pf.Lookup(name))
	}
	for key, name := range map[string]string{
		"api.base_url":             "api-url",
		"upload.policy":            "policy",
		"upload.validate":          "validate",
		"report.max_errors":        "max-errors",
		"upload.client_batch_size": "client-batch-size",
		"upload.backup_batch_size": "backup-batch-size",
		"upload.client_delay":      "client-delay",
		"upload.backup_delay":      "backup-delay",
		"api.retry_attempts":       "retries",
		"api.rate_limit":           "rate-limit",
	} {
		_ = a.v.BindPFlag(key, f.Lookup(name))
	}

	cmd.AddCommand(newGenerateCmd(a), newHistoryCmd(a))
	return cmd
}

func runUpload(cmd *cobra.Command, a *app, path string) error {
	cfg := a.cfg
	policy, err := ingest.ParsePolicy(cfg.Upload.Policy)
	if err != nil {
		return err
	}

	gw, err := gateway.New(gateway.Config{
		BaseURL:         cfg.API.BaseURL,
		Timeout:         cfg.API.Timeout,
		RetryAttempts:   cfg.API.RetryAttempts,
		RetryDelay:      cfg.API.RetryDelay,
		RateLimit:       cfg.API.RateLimit,
		Burst:           cfg.API.Burst,
		BreakerFailures: cfg.API.BreakerFailures,
		BreakerCooldown: cfg.API.BreakerCooldown,
		Logger:          a.log,
	})
	if err != nil {
		return err
	}

	coord := ingest.New(gw, ingest.Config{
		Policy:          policy,
		ClientBatchSize: cfg.Upload.ClientBatchSize,
		ClientDelay:     cfg.Upload.ClientDelay,
		BackupBatchSize: cfg.Upload.BackupBatchSize,
		BackupDelay:     cfg.Upload.BackupDelay,
		ClientPause:     cfg.Upload.ClientPause,
		BackupPause:     cfg.Upload.BackupPause,
		SuccessToken:    cfg.Upload.SuccessToken,
	}, progress.NewZapSink(a.log))

	a.log.Info("starting upload",
		zap.String("file", path),
		zap.String("api", cfg.API.BaseURL),
		zap.String("policy", string(policy)),
		zap.Bool("validate", cfg.Upload.Validate))

	ctx := cmd.Context()
	var sum *ingest.Summary
	if cfg.Upload.Validate {
		sum, err = runValidated(cmd, coord, path)
	} else {
		sum, err = coord.RunFile(ctx, path)
	}
	if sum == nil {
		return err
	}

	if rerr := report.Render(cmd.OutOrStdout(), sum.Stats, report.Options{MaxErrors: cfg.Report.MaxErrors}); rerr != nil {
		return errors.Wrap(rerr, "writing report")
	}
	if st := sum.Stats; st.Failed() {
		a.log.Warn("upload finished with failures",
			zap.Int64("clients_failed", st.ClientsFailed),
			zap.Int64("backups_failed", st.BackupsFailed),
			zap.Int64("backups_skipped", st.BackupsSkipped))
	} else {
		a.log.Info("upload finished", zap.Int64("clients", st.ClientsCreated), zap.Int64("backups", st.BackupsCreated))
	}
	recordRun(cmd, a, path, sum)
	return err
}

func runValidated(cmd *cobra.Command, coord *ingest.Coordinator, path string) (*ingest.Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(csvparse.ErrFileNotFound, "%s", path)
		}
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	sum, err := coord.RunValidated(cmd.Context(), f, nil)
	var verr *ingest.ValidationError
	if errors.As(err, &verr) {
		printIssues(cmd.ErrOrStderr(), verr.Issues)
		return nil, errors.Newf("%d validation errors, nothing was uploaded", len(verr.Issues))
	}
	return sum, err
}

func printIssues(w io.Writer, issues []string) {
	fmt.Fprintf(w, "Validation failed (%d errors):\n", len(issues))
	for _, issue := range issues {
		fmt.Fprintf(w, "  - %s\n", issue)
	}
}

// recordRun stores sum in the journal when one is configured. Journal
// problems are logged and never fail the run.
func recordRun(cmd *cobra.Command, a *app, path string, sum *ingest.Summary) {
	if a.cfg.Journal.Path == "" {
		return
	}
	j, err := journal.Open(a.cfg.Journal.Path)
	if err != nil {
		a.log.Warn("could not open journal", zap.Error(err))
		return
	}
	defer j.Close()

	if err := j.Record(cmd.Context(), path, sum); err != nil {
		a.log.Warn("could not record run", zap.Error(err))
		return
	}
	a.log.Info("run recorded", zap.String("run", sum.Stats.RunID), zap.String("journal", j.Path()))
}
