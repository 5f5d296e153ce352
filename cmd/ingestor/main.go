package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/bootstrap"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/config"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/logger"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/messaging"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	logger.Setup(config.LogLevel(), config.LogFile(), config.AppMode())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, "ingestor")
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer app.Close()

	client, err := messaging.NewClient(config.MQTTBroker(), config.MQTTClientID()+"-ingestor")
	if err != nil {
		log.Fatal().Err(err).Msg("mqtt connect")
	}
	defer client.Disconnect()

	topic := config.TelemetryTopic()
	handler := func(topic string, payload []byte) error {
		return app.Services.Telemetry.FromMQTT(ctx, topic, payload)
	}
	if err := client.Subscribe(topic, 1, handler); err != nil {
		log.Fatal().Err(err).Msg("subscribe failed")
	}

	log.Info().Str("topic", topic).Msg("ingestor running; Ctrl+C to stop")
	<-ctx.Done()
	log.Info().Msg("ingestor stopping")
}
