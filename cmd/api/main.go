package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/bootstrap"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/config"
	httpHandlers "github.com/ANIKETSHETTY47/grid-integrity-core/internal/http"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/logger"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	logger.Setup(config.LogLevel(), config.LogFile(), config.AppMode())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, "api")
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer app.Close()

	server := fiber.New(fiber.Config{
		AppName:               "grid-integrity-core",
		ErrorHandler:          httpHandlers.ErrorHandler,
		DisableStartupMessage: true,
	})
	server.Use(recover.New())

	httpHandlers.Register(server, app.Services)
	httpHandlers.RegisterMetrics(server, app.Registry)

	go func() {
		<-ctx.Done()
		if err := server.Shutdown(); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}()

	addr := config.APIAddr()
	log.Info().Str("addr", addr).Str("control_channel", config.ControlChannel()).Msg("api listening")
	if err := server.Listen(addr); err != nil {
		log.Error().Err(err).Msg("server exit")
	}
}
