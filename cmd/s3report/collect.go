package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/thannaske/s3report/pkg/ceph"
	"github.com/thannaske/s3report/pkg/collector"
	"github.com/thannaske/s3report/pkg/config"
	"github.com/thannaske/s3report/pkg/db"
	"github.com/thannaske/s3report/pkg/models"
	"github.com/thannaske/s3report/pkg/storage/awss3"
	"github.com/thannaske/s3report/pkg/storage/minio"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect bucket usage and store the daily report",
	Long: `List every bucket, sum its objects and sizes and write the report
s3-usage-YYYY-MM-DD.json into the report bucket. Running twice on the same
UTC day overwrites the earlier report. The result is printed as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := collectOnce(cmd.Context(), cmd.OutOrStdout())
		return err
	},
}

// newStorage creates the storage driver selected in cfg
func newStorage(ctx context.Context, cfg models.Config) (collector.Storage, error) {
	switch cfg.Driver {
	case models.DriverMinio:
		return minio.New(cfg)
	case models.DriverCeph:
		return ceph.NewStorage(ctx, cfg)
	case models.DriverAWS:
		return awss3.NewFromConfig(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, cfg.Driver)
	}
}

// openHistory opens the history database. Collection works without it.
func openHistory(path string) *db.DB {
	if path == "" {
		return nil
	}
	database, err := db.NewDB(path)
	if err != nil {
		logger.Warn().Err(err).Str("db", path).Msg("history database unavailable")
		return nil
	}
	if err := database.InitDB(); err != nil {
		logger.Warn().Err(err).Str("db", path).Msg("history database unavailable")
		database.Close()
		return nil
	}
	return database
}

// collectOnce runs one collection and writes the result or failure JSON to out
func collectOnce(ctx context.Context, out io.Writer) (models.Result, error) {
	enc := json.NewEncoder(out)

	fail := func(err error) (models.Result, error) {
		_ = enc.Encode(collector.FailureResult())
		return models.Result{}, err
	}

	if err := config.Validate(cfg); err != nil {
		return fail(err)
	}

	storage, err := newStorage(ctx, cfg)
	if err != nil {
		return fail(fmt.Errorf("error initializing storage: %w", err))
	}

	opts := collector.Options{
		Concurrency: cfg.Concurrency,
		Prefix:      cfg.ReportPrefix,
		Logger:      &logger,
	}
	database := openHistory(cfg.DBPath)
	if database != nil {
		defer database.Close()
		opts.Recorder = database
	}

	res, err := collector.New(storage, opts).Collect(ctx)
	if err != nil {
		return fail(err)
	}

	if database != nil {
		averageMonthEnd(database, res.GeneratedAt)
	}

	if err := enc.Encode(res); err != nil {
		return res, err
	}
	return res, nil
}

// averageMonthEnd calculates the monthly averages when the run at t fell on
// the last day of its month, so list has data
func averageMonthEnd(database *db.DB, t time.Time) {
	t = t.UTC()
	if t.Day() != getDaysInMonth(t.Year(), int(t.Month())) {
		return
	}
	if err := database.CalculateMonthlyAverages(t.Year(), int(t.Month())); err != nil {
		logger.Warn().Err(err).Msg("error calculating monthly averages")
		return
	}
	logger.Info().Int("year", t.Year()).Int("month", int(t.Month())).Msg("monthly averages calculated")
}

// getDaysInMonth returns the number of days in a month
func getDaysInMonth(year, month int) int {
	// day 0 of the next month is the last day of this one
	t := time.Date(year, time.Month(month+1), 0, 0, 0, 0, 0, time.UTC)
	return t.Day()
}

func init() {
	rootCmd.AddCommand(collectCmd)
}
