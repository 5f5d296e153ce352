package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/bootstrap"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/config"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/logger"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/service"
)

func main() {
	once := flag.Bool("once", false, "run a single reconciliation and sweep, then exit")
	flag.Parse()

	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	logger.Setup(config.LogLevel(), config.LogFile(), config.AppMode())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, "reconciler")
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer app.Close()

	tick(ctx, app.Services)
	if *once {
		return
	}

	interval := config.ReconcileInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Info().Dur("interval", interval).Msg("reconciler running")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reconciler stopping")
			return
		case <-ticker.C:
			tick(ctx, app.Services)
		}
	}
}

func tick(ctx context.Context, svcs *service.Services) {
	if _, err := svcs.Maintenance.Sweep(ctx); err != nil {
		log.Error().Err(err).Msg("maintenance sweep failed")
	}
	if _, err := svcs.Reconciliation.RunReconciliation(ctx); err != nil {
		log.Error().Err(err).Msg("reconciliation failed")
	}
}
