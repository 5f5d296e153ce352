// Package bootstrap wires configuration, storage, messaging and cloud
// collaborators into the service layer for the binaries in cmd/.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/cache"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/cloud"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/config"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/database"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/messaging"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/metrics"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/repository"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/service"
)

type App struct {
	DB       *sqlx.DB
	Services *service.Services
	Registry *prometheus.Registry

	closers []func()
}

func (a *App) onClose(f func()) { a.closers = append(a.closers, f) }

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func Options() service.Options {
	return service.Options{
		FraudWindow:         config.FraudWindow(),
		FraudThreshold:      config.FraudThreshold(),
		IncidentCooldown:    config.IncidentCooldown(),
		SendTimeout:         config.DispatchSendTimeout(),
		DispatchParallelism: config.DispatchParallelism(),
		ReconcileWindow:     config.ReconcileWindow(),
		ReconcileMaxGap:     config.ReconcileMaxGap(),
		MeterOfflineAfter:   config.MeterOfflineAfter(),
	}
}

// Build connects to the database, applies the schema and assembles the
// services. name distinguishes MQTT client ids between binaries.
func Build(ctx context.Context, name string) (*App, error) {
	app := &App{Registry: prometheus.NewRegistry()}
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	db, err := database.Connect()
	if err != nil {
		return nil, fmt.Errorf("db connect failed: %w", err)
	}
	app.DB = db
	app.onClose(func() { db.Close() })

	if err := database.Migrate(ctx, db); err != nil {
		app.Close()
		return nil, err
	}

	c, err := cache.NewCache(10 * time.Minute)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("cache: %w", err)
	}
	app.onClose(c.Close)

	repos := repository.New(db)
	deps := service.Deps{
		Repos:     repos,
		Cache:     c,
		Incidents: repos,
		Tickets:   repos,
		Metrics:   metrics.New(app.Registry),
		Options:   Options(),
	}

	control, err := controlChannel(app, name)
	if err != nil {
		app.Close()
		return nil, err
	}
	deps.Control = control

	rdb := messaging.NewRedisClient(config.RedisAddr(), config.RedisPassword(), config.RedisDB())
	app.onClose(func() { rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", config.RedisAddr()).Msg("redis unreachable; zone notifications will fail until it recovers")
	}
	notifiers := messaging.MultiNotifier{messaging.NewStreamNotifier(rdb)}

	if config.UseCloudServices() {
		cfg, err := cloud.LoadConfig(ctx, config.AWSRegion())
		if err != nil {
			app.Close()
			return nil, err
		}
		deps.Incidents = cloud.NewDynamoDBClient(cfg, config.IncidentTable())
		deps.Tickets = cloud.NewLambdaClient(cfg, config.AuditLambda())
		deps.Archiver = cloud.NewS3Client(cfg, config.S3Bucket())
		if arn := config.SNSTopicArn(); arn != "" {
			notifiers = append(notifiers, cloud.NewSNSClient(cfg, arn))
		}
		log.Info().Str("region", config.AWSRegion()).Msg("cloud services enabled")
	}
	deps.Notifier = notifiers

	app.Services = service.New(deps)
	return app, nil
}

func controlChannel(app *App, name string) (service.ControlChannel, error) {
	switch mode := config.ControlChannel(); mode {
	case "mqtt":
		client, err := messaging.NewClient(config.MQTTBroker(), config.MQTTClientID()+"-"+name+"-control")
		if err != nil {
			return nil, err
		}
		app.onClose(client.Disconnect)
		return messaging.NewControlChannel(client)
	case "simulated", "":
		return messaging.NewSimulatedChannel(config.SimulatedSuccessRate(), config.SimulatedMaxLatency(), time.Now().UnixNano()), nil
	default:
		return nil, fmt.Errorf("unknown CONTROL_CHANNEL %q", mode)
	}
}
