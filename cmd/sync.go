package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openswoop/rosterwatch/pkg/app"
	"github.com/openswoop/rosterwatch/pkg/canvas"
	"github.com/openswoop/rosterwatch/pkg/database"
	"github.com/openswoop/rosterwatch/pkg/metrics"
	"github.com/openswoop/rosterwatch/pkg/notify"
)

var dryRun bool

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync [term]",
	Short: "Record instructor changes for a term",
	Long: `This command takes a Canvas enrollment term id, fetches the instructors
of every course in that term and logs the differences from the previous run.
The first run for a term only records a baseline.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		termArg(args)
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runSync(cmd.Context())
	},
}

func runSync(ctx context.Context) (err error) {
	client := canvas.NewClient(canvas.Config{
		BaseURL:     cfg.Canvas.BaseURL,
		AccountID:   cfg.Canvas.AccountID,
		Token:       cfg.Canvas.Token,
		Timeout:     cfg.Canvas.Timeout,
		PerPage:     cfg.Canvas.PerPage,
		MaxAttempts: cfg.Canvas.MaxAttempts,
		RetryWait:   cfg.Canvas.RetryWait,
		UserAgent:   cfg.Canvas.UserAgent,
	})

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	snapshots, err := snapshotStore(cfg, db)
	if err != nil {
		return err
	}

	opts := app.Options{
		Workers:       cfg.Fetch.Workers,
		DryRun:        dryRun,
		FailOnPartial: cfg.Fetch.FailOnPartial,
	}

	// Mirror the change log to BigQuery when a project is configured
	if cfg.BigQuery.Project != "" && !dryRun {
		bq, err := database.NewBigQuery(ctx, cfg.BigQuery.Project, cfg.BigQuery.Dataset)
		if err != nil {
			return err
		}
		defer bq.Close()
		opts.Mirror = bq
	}
	if cfg.PubSub.Project != "" && !dryRun {
		ps, err := notify.NewPubSub(ctx, cfg.PubSub.Project, cfg.PubSub.Topic)
		if err != nil {
			return err
		}
		defer ps.Close()
		opts.Notifier = ps
	}

	summary, err := app.NewSyncer(client, snapshots, db, opts).Run(ctx, cfg.Term)
	if cfg.Metrics.Textfile != "" {
		writeMetrics(summary, err)
	}
	if err != nil {
		return err
	}

	for _, f := range summary.Failures {
		log.Debug().Err(f.Err).Str("course_id", f.Course.ID).Msg("Course skipped")
	}
	return nil
}

func writeMetrics(summary app.Summary, runErr error) {
	run := metrics.NewRun()
	run.Record(metrics.Stats{
		Term:      summary.Term,
		Courses:   summary.Courses,
		Failed:    summary.Failed,
		Added:     summary.Added,
		Removed:   summary.Removed,
		Duration:  summary.Duration,
		Succeeded: runErr == nil || errors.Is(runErr, app.ErrPartialFetch),
		Finished:  time.Now(),
	})
	if err := run.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		log.Error().Err(err).Str("path", cfg.Metrics.Textfile).Msg("Failed to write metrics")
	}
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute changes without saving them (default: false)")
	syncCmd.Flags().Int("workers", 8, "Number of courses fetched concurrently")
	syncCmd.Flags().Bool("fail-on-partial", false, "Exit with status 2 when some courses could not be fetched")
	bindFlag("fetch.workers", syncCmd.Flags().Lookup("workers"))
	bindFlag("fetch.fail_on_partial", syncCmd.Flags().Lookup("fail-on-partial"))
}
