package main

import (
	"context"
	"encoding/json"
	"flag"
	"math/rand"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/config"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/domain"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/logger"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/messaging"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/service"
)

type meterSim struct {
	id       string
	tampered bool
	shed     bool
}

// reading produces a plausible grid sample. Tampered meters under-report
// active power while their metrology channels stay truthful.
func (m *meterSim) reading(rnd *rand.Rand) service.TelemetryInput {
	voltage := 225 + rnd.Float64()*10
	load := 800 + rnd.Float64()*1200
	if m.shed {
		load = 150 + rnd.Float64()*100
	}
	pf := 0.92 + rnd.Float64()*0.06
	current := load / pf / voltage
	power := load
	if m.tampered {
		power *= 0.55
	}
	return service.TelemetryInput{
		MeterID:      m.id,
		Voltage:      &voltage,
		Current:      &current,
		Power:        &power,
		EnergySource: domain.SourceGrid,
	}
}

func main() {
	meters := flag.String("meters", "meter-001,meter-002,meter-003", "comma separated meter ids")
	tamper := flag.String("tamper", "", "comma separated meter ids that under-report power")
	interval := flag.Duration("interval", 5*time.Second, "telemetry period per meter")
	ackRate := flag.Float64("ack-rate", 0.95, "probability that a control message is acknowledged")
	flag.Parse()

	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	logger.Setup(config.LogLevel(), config.LogFile(), config.AppMode())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := messaging.NewClient(config.MQTTBroker(), config.MQTTClientID()+"-simulator")
	if err != nil {
		log.Fatal().Err(err).Msg("mqtt connect")
	}
	defer client.Disconnect()

	tampered := map[string]bool{}
	for _, id := range strings.Split(*tamper, ",") {
		tampered[strings.TrimSpace(id)] = true
	}
	fleet := map[string]*meterSim{}
	for _, id := range strings.Split(*meters, ",") {
		if id = strings.TrimSpace(id); id != "" {
			fleet[id] = &meterSim{id: id, tampered: tampered[id]}
		}
	}

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	events := make(chan domain.ControlMessage, 1024)

	onControl := func(topic string, payload []byte) error {
		var msg domain.ControlMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return err
		}
		if !enqueue(events, msg) {
			log.Warn().Str("meter_id", msg.MeterID).Str("command_id", msg.CommandID).Msg("control backlog full, dropping command")
		}
		return nil
	}
	if err := client.Subscribe("meters/+/control", 1, onControl); err != nil {
		log.Fatal().Err(err).Msg("subscribe failed")
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	log.Info().Int("meters", len(fleet)).Dur("interval", *interval).Msg("simulator running")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("simulation done")
			return

		case msg := <-events:
			m, ok := fleet[msg.MeterID]
			if !ok {
				continue
			}
			ack := domain.ControlAck{CommandID: msg.CommandID, MeterID: msg.MeterID, OK: rnd.Float64() < *ackRate}
			if ack.OK {
				m.shed = msg.CommandType == domain.CommandShedHeavyLoads
			} else {
				ack.Error = "relay did not respond"
			}
			payload, _ := json.Marshal(ack)
			if err := client.Publish(ctx, messaging.AckTopic(msg.MeterID), 1, payload); err != nil {
				log.Error().Err(err).Str("meter_id", msg.MeterID).Msg("ack publish failed")
			}

		case <-ticker.C:
			for _, m := range fleet {
				payload, _ := json.Marshal(m.reading(rnd))
				if err := client.Publish(ctx, config.TelemetryTopic(), 0, payload); err != nil {
					log.Error().Err(err).Str("meter_id", m.id).Msg("telemetry publish failed")
				}
			}
		}
	}
}

// enqueue hands msg to the main loop without blocking the mqtt callback
// goroutine. A dropped command surfaces as a delivery timeout on the
// dispatcher side.
func enqueue(events chan<- domain.ControlMessage, msg domain.ControlMessage) bool {
	select {
	case events <- msg:
		return true
	default:
		return false
	}
}
