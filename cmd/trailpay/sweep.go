package main

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/trailpay/internal/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func sweepCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run every scheduler job once and exit",
		Long: `Run the scheduler jobs a single time:

  replay_failed_events     re-run failed webhook deliveries through the idempotency guard
  retry_transfer_metadata  re-resolve transfers whose guide could not be found
  alert_stale_refunds      alert operators about refunds stuck in pending

Suitable for cron when the in-process scheduler is disabled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var sched *scheduler.Scheduler
			app := fx.New(
				coreModules(),
				domainModules(),
				scheduler.Module,
				fx.Decorate(func(cfg scheduler.Config) scheduler.Config {
					cfg.Enabled = false
					return cfg
				}),
				fx.Populate(&sched),
			)
			if err := app.Err(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := app.Start(ctx); err != nil {
				return err
			}

			runErr := sched.RunOnce(ctx)
			stopErr := app.Stop(context.WithoutCancel(ctx))
			return errors.Join(runErr, stopErr)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall deadline for the sweep")
	return cmd
}
