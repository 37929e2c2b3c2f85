// Command reconciler drains the payment reconciliation queue on a schedule,
// retrying entitlement mutations that failed after a verified payment.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"server/internal/entitlement"
	"server/internal/infra"
	"server/internal/payments"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	runner := infra.NewSQLRunner(dbpool, logger)
	users := entitlement.NewPGStore(runner)
	reconciler := payments.NewReconciler(users, logger)

	c := cron.New()
	_, err = c.AddFunc(cfg.ReconcileSchedule, func() {
		if err := reconciler.Sweep(ctx, cfg.ReconcileBatch); err != nil {
			logger.Error().Err(err).Msg("reconciliation sweep failed")
		}
	})
	if err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.ReconcileSchedule).Msg("invalid reconcile schedule")
	}

	logger.Info().Str("schedule", cfg.ReconcileSchedule).Int("batch", cfg.ReconcileBatch).
		Msg("reconciler started")
	c.Start()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	// Let an in-flight sweep finish before exiting.
	<-c.Stop().Done()
	logger.Info().Msg("reconciler stopped")
}
