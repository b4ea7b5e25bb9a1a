package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ikpa/internal/amqp"
	"ikpa/internal/cli"
	"ikpa/internal/scheduler"
)

func workerCmd() *cobra.Command {
	var runNow string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume background jobs and run the scheduled batches",
		Long: "Consumes debrief, audit and export jobs from AMQP when AMQP_URL is set,\n" +
			"and runs the hourly commitment settlement and the weekly subscription audit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadAndValidateConfig()
			if err != nil {
				return err
			}
			logger := cli.SetupLogger(cfg)
			logger.Info("Starting ikpa worker")

			app, err := cli.Bootstrap(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()
			app.Caches.StartCleanup(time.Minute)

			var locker scheduler.Locker = scheduler.NewLocalLocker()
			if cfg.RedisURL != "" {
				rl, err := scheduler.NewRedisLockerFromURL(cfg.RedisURL)
				if err != nil {
					return err
				}
				defer rl.Close()
				pingCtx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
				err = rl.Ping(pingCtx)
				cancel()
				if err != nil {
					return fmt.Errorf("ping redis: %w", err)
				}
				locker = rl
				logger.Info("Using Redis job locks")
			} else {
				logger.Info("Redis disabled - job locks are process-local")
			}

			sched := scheduler.New(scheduler.Config{Locker: locker, LockTTL: cfg.CronLockTTL})

			// Each settled contract gets a debrief.
			requestDebrief := func(ctx context.Context, userID, contractID int64) error {
				job, err := amqp.NewJob(amqp.JobDebriefRequested, userID, amqp.DebriefPayload{ContractID: contractID})
				if err != nil {
					return err
				}
				_, err = app.Jobs.Dispatch(ctx, job)
				return err
			}
			settle := scheduler.SettlementJob(app.Commitments, cfg.CronBatchConcurrency, time.Now, requestDebrief)
			if err := sched.Add(scheduler.JobCommitmentSettlement, scheduler.SpecCommitmentSettlement, settle); err != nil {
				return err
			}

			audit := scheduler.SharkAuditJob(app.Store, cfg.CronBatchConcurrency, func(ctx context.Context, userID int64) error {
				job, err := amqp.NewJob(amqp.JobSharkAudit, userID, nil)
				if err != nil {
					return err
				}
				_, err = app.Jobs.Dispatch(ctx, job)
				return err
			})
			if err := sched.Add(scheduler.JobSharkWeeklyAudit, scheduler.SpecSharkWeeklyAudit, audit); err != nil {
				return err
			}

			if runNow != "" {
				ran, err := sched.RunNow(cmd.Context(), runNow)
				if err != nil {
					return err
				}
				if !ran {
					logger.Warn("Job not run, lock held elsewhere", "job", runNow)
				}
				return nil
			}

			ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
				logger.Info("Shutting down worker...")
				sched.Stop()
			})

			if app.Broker != nil {
				go func() {
					err := app.Broker.Consume(ctx, app.Worker.Handle)
					if err != nil && !errors.Is(err, context.Canceled) {
						logger.Error("Message consumption failed", "error", err)
					}
				}()
			} else {
				logger.Info("Skipping AMQP message consumption - no broker configured")
			}

			sched.Start()
			cli.WaitForShutdown(ctx, done)
			logger.Info("Worker shutdown complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&runNow, "run-now", "",
		fmt.Sprintf("run one job immediately and exit (%s or %s)",
			scheduler.JobCommitmentSettlement, scheduler.JobSharkWeeklyAudit))
	return cmd
}
