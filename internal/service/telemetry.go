package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/domain"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/metrics"
)

type TelemetryInput struct {
	MeterID      string              `json:"meterId"`
	Voltage      *float64            `json:"voltage,omitempty"`
	Current      *float64            `json:"current,omitempty"`
	Power        *float64            `json:"power,omitempty"`
	EnergySource domain.EnergySource `json:"energySource"`
}

func (in TelemetryInput) validate() error {
	if err := validateMeterID(in.MeterID); err != nil {
		return err
	}
	fields := []struct {
		name string
		v    *float64
	}{{"voltage", in.Voltage}, {"current", in.Current}, {"power", in.Power}}
	for _, f := range fields {
		if f.v != nil && *f.v < 0 {
			return domain.Invalid(f.name, "must not be negative")
		}
	}
	if !in.EnergySource.Valid() {
		return domain.Invalid("energySource", fmt.Sprintf("unknown source %q", in.EnergySource))
	}
	return nil
}

type IngestResult struct {
	DataID        string `json:"dataId"`
	FraudDetected bool   `json:"fraudDetected"`
}

type TelemetryService struct {
	registry  *Registry
	samples   TelemetryStore
	detector  *FraudDetector
	incidents IncidentReporter
	metrics   *metrics.Metrics
	log       zerolog.Logger
	now       func() time.Time

	// cooldown suppresses repeat incidents of the same classification for a
	// meter. Zero files one per positive detection.
	cooldown time.Duration
	mu       sync.Mutex
	filed    map[string]time.Time
}

func NewTelemetryService(registry *Registry, samples TelemetryStore, detector *FraudDetector,
	incidents IncidentReporter, cooldown time.Duration, m *metrics.Metrics, log zerolog.Logger) *TelemetryService {
	return &TelemetryService{
		registry:  registry,
		samples:   samples,
		detector:  detector,
		incidents: incidents,
		metrics:   m,
		log:       log,
		now:       time.Now,
		cooldown:  cooldown,
		filed:     make(map[string]time.Time),
	}
}

// Ingest persists a sample, refreshes the meter's liveness and, for grid
// samples carrying power, runs the fraud detector. Detection and incident
// failures never undo the persisted sample.
func (s *TelemetryService) Ingest(ctx context.Context, in TelemetryInput) (IngestResult, error) {
	if err := in.validate(); err != nil {
		return IngestResult{}, err
	}
	meter, err := s.registry.Topology(ctx, in.MeterID)
	if err != nil {
		return IngestResult{}, err
	}

	now := s.now()
	sample := &domain.TelemetrySample{
		MeterID:      in.MeterID,
		Timestamp:    now,
		Voltage:      in.Voltage,
		Current:      in.Current,
		PowerW:       in.Power,
		EnergySource: in.EnergySource,
	}
	if err := s.samples.InsertSample(ctx, sample); err != nil {
		return IngestResult{}, fmt.Errorf("insert sample: %w", err)
	}
	s.metrics.Ingested(string(in.EnergySource))

	if err := s.registry.MarkOnline(ctx, in.MeterID, now); err != nil {
		// the sample is stored; the maintenance sweep catches up liveness
		s.log.Warn().Err(err).Str("meter_id", in.MeterID).Str("data_id", sample.ID).Msg("liveness update failed")
	}

	res := IngestResult{DataID: sample.ID}
	if in.Power == nil || in.EnergySource != domain.SourceGrid {
		return res, nil
	}

	a, err := s.detector.Assess(ctx, in.MeterID, *in.Power)
	if err != nil {
		s.log.Warn().Err(err).Str("meter_id", in.MeterID).Msg("fraud detection failed")
		return res, nil
	}
	if !a.Suspected {
		return res, nil
	}

	res.FraudDetected = true
	s.metrics.Flagged("window")
	s.report(ctx, domain.Incident{
		MeterID: in.MeterID,
		HomeID:  meter.HomeID,
		Description: fmt.Sprintf("reported power diverges %.1f%% from metrology over %d samples (current %.1f W)",
			a.Divergence*100, a.Samples, a.CurrentPowerW),
		Classification: domain.IncidentSuspectedFraud,
	})
	return res, nil
}

// RunSignatureCheck compares the meter against its device inventory and files
// an UNDER_REPORTING incident on a positive result.
func (s *TelemetryService) RunSignatureCheck(ctx context.Context, meterID string) (SignatureCheck, error) {
	if err := validateMeterID(meterID); err != nil {
		return SignatureCheck{}, err
	}
	meter, err := s.registry.Topology(ctx, meterID)
	if err != nil {
		return SignatureCheck{}, err
	}
	c, err := s.detector.CheckDeviceSignatures(ctx, meterID)
	if err != nil {
		return c, err
	}
	if c.UnderReporting {
		s.metrics.Flagged("signature")
		s.report(ctx, domain.Incident{
			MeterID: meterID,
			HomeID:  meter.HomeID,
			Description: fmt.Sprintf("meter reads %.1f W against %.1f W of active devices",
				c.MeterPowerW, c.DeviceSumW),
			Classification: domain.IncidentUnderReporting,
		})
	}
	return c, nil
}

func (s *TelemetryService) report(ctx context.Context, inc domain.Incident) {
	if s.incidents == nil {
		return
	}
	key := inc.MeterID + "/" + inc.Classification
	now := s.now()
	if s.cooling(key, now) {
		s.log.Debug().Str("meter_id", inc.MeterID).Str("classification", inc.Classification).Msg("incident suppressed during cool-down")
		return
	}
	if err := s.incidents.ReportIncident(detached(ctx), inc); err != nil {
		s.log.Error().Err(err).
			Str("meter_id", inc.MeterID).
			Str("classification", inc.Classification).
			Msg("failed to report incident")
		return
	}
	s.mu.Lock()
	s.filed[key] = now
	s.mu.Unlock()
}

func (s *TelemetryService) cooling(key string, now time.Time) bool {
	if s.cooldown <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.filed[key]
	return ok && now.Sub(last) < s.cooldown
}

// FromMQTT ingests one telemetry payload received on topic.
func (s *TelemetryService) FromMQTT(ctx context.Context, topic string, payload []byte) error {
	var in TelemetryInput
	if err := json.Unmarshal(payload, &in); err != nil {
		return fmt.Errorf("decode telemetry on %s: %w", topic, err)
	}
	res, err := s.Ingest(ctx, in)
	if err != nil {
		return err
	}
	if res.FraudDetected {
		s.log.Warn().Str("meter_id", in.MeterID).Str("data_id", res.DataID).Msg("suspected fraud")
	}
	return nil
}
