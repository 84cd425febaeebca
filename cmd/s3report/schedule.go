package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/thannaske/s3report/pkg/config"
	"github.com/thannaske/s3report/pkg/scheduler"
)

var runImmediately bool

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Collect bucket usage on a cron schedule",
	Long: `Stay in the foreground and run collect whenever the cron expression
(evaluated in UTC) fires. Stops on SIGINT or SIGTERM after the running
collection, if any, has finished.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		task := func(ctx context.Context) error {
			_, err := collectOnce(ctx, cmd.OutOrStdout())
			return err
		}

		// a signal stops scheduling but lets a running collection finish
		s, err := scheduler.New(context.WithoutCancel(ctx), cfg.Schedule, task, logger)
		if err != nil {
			return err
		}
		s.Start()

		if runImmediately {
			if err := s.RunNow(); err != nil {
				logger.Warn().Err(err).Msg("failed to trigger immediate run")
			}
		}

		<-ctx.Done()
		logger.Info().Msg("shutting down scheduler")
		return s.Shutdown()
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().String("schedule", config.DefaultSchedule, "cron expression, UTC")
	scheduleCmd.Flags().BoolVar(&runImmediately, "now", false, "also collect once right after starting")
	if err := v.BindPFlag("schedule", scheduleCmd.Flags().Lookup("schedule")); err != nil {
		panic(err)
	}
}
