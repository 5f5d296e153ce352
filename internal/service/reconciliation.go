package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/domain"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/metrics"
)

var errNoInjectedEnergy = errors.New("no injected energy measured")

type ReconciliationService struct {
	registry *Registry
	store    ReconciliationStore
	tickets  AuditTicketer
	archiver RunArchiver
	window   time.Duration
	maxGap   time.Duration
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time
}

func NewReconciliationService(registry *Registry, store ReconciliationStore, tickets AuditTicketer, archiver RunArchiver,
	o Options, m *metrics.Metrics, log zerolog.Logger) *ReconciliationService {
	s := &ReconciliationService{
		registry: registry,
		store:    store,
		tickets:  tickets,
		archiver: archiver,
		window:   o.ReconcileWindow,
		maxGap:   o.ReconcileMaxGap,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
	if s.window <= 0 {
		s.window = 24 * time.Hour
	}
	if s.maxGap <= 0 {
		s.maxGap = 15 * time.Minute
	}
	return s
}

// RunReconciliation compares injected against billed energy for every zone
// over the trailing window. A zone that cannot be computed is logged and
// omitted. Cancellation stops before the next zone and the run is closed
// with the results committed so far.
func (s *ReconciliationService) RunReconciliation(ctx context.Context) (domain.RunSummary, error) {
	started := s.now()
	since := started.Add(-s.window)

	zones, err := s.registry.Zones(ctx)
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("list zones: %w", err)
	}
	runID, err := s.store.CreateRun(ctx, started)
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("create run: %w", err)
	}

	log := s.log.With().Str("run_id", runID).Logger()
	summary := domain.RunSummary{RunID: runID}
	var results []domain.ReconciliationResult

	for _, z := range zones {
		if ctx.Err() != nil {
			log.Warn().Err(ctx.Err()).Int("zones_analyzed", summary.ZonesAnalyzed).Msg("reconciliation interrupted")
			break
		}
		res, err := s.reconcileZone(ctx, runID, z.ID, since, started)
		if err != nil {
			s.metrics.ReconcileFailed()
			log.Error().Err(err).Str("zone_id", z.ID).Msg("zone omitted from run")
			continue
		}
		results = append(results, res)
		summary.ZonesAnalyzed++
		summary.TotalDelta += res.DeltaKWh
		s.metrics.Reconciled(string(res.Severity))

		if res.Severity != domain.SeverityNormal {
			summary.AnomaliesFound++
			s.openTicket(ctx, log, res)
		}
	}

	wctx := detached(ctx)
	finished := s.now()
	if err := s.store.FinishRun(wctx, summary, finished); err != nil {
		return summary, fmt.Errorf("finish run %s: %w", runID, err)
	}
	if s.archiver != nil {
		if err := s.archiver.ArchiveRun(wctx, summary, results, finished); err != nil {
			log.Error().Err(err).Msg("failed to archive run")
		}
	}

	log.Info().
		Int("zones_analyzed", summary.ZonesAnalyzed).
		Int("anomalies", summary.AnomaliesFound).
		Float64("total_delta_kwh", summary.TotalDelta).
		Msg("reconciliation finished")
	return summary, nil
}

func (s *ReconciliationService) reconcileZone(ctx context.Context, runID, zoneID string, since, until time.Time) (domain.ReconciliationResult, error) {
	injected, ok, err := s.store.ZoneInjectedEnergy(ctx, zoneID, since, until)
	if err != nil {
		return domain.ReconciliationResult{}, fmt.Errorf("injected energy: %w", err)
	}
	if !ok || injected <= 0 {
		return domain.ReconciliationResult{}, errNoInjectedEnergy
	}
	billed, err := s.store.ZoneBilledEnergy(ctx, zoneID, since, s.maxGap)
	if err != nil {
		return domain.ReconciliationResult{}, fmt.Errorf("billed energy: %w", err)
	}

	res := domain.NewReconciliationResult(runID, zoneID, injected, billed, s.now())
	if err := s.store.InsertResult(ctx, &res); err != nil {
		return domain.ReconciliationResult{}, fmt.Errorf("insert result: %w", err)
	}
	return res, nil
}

func (s *ReconciliationService) openTicket(ctx context.Context, log zerolog.Logger, res domain.ReconciliationResult) {
	if s.tickets == nil {
		return
	}
	t := domain.AuditTicket{ZoneID: res.ZoneID, Severity: res.Severity, EstimatedLossKWh: res.DeltaKWh}
	if err := s.tickets.OpenAuditTicket(detached(ctx), t); err != nil {
		log.Error().Err(err).Str("zone_id", res.ZoneID).Msg("failed to open audit ticket")
	}
}

// RecordInjectedEnergy stores an upstream feeder measurement for the zone.
func (s *ReconciliationService) RecordInjectedEnergy(ctx context.Context, zoneID string, kwh float64, measuredAt time.Time, source string) (*domain.InjectedEnergyReading, error) {
	if err := validateZoneID(zoneID); err != nil {
		return nil, err
	}
	if math.IsNaN(kwh) || math.IsInf(kwh, 0) || kwh < 0 {
		return nil, domain.Invalid("energyKwh", "must be a non-negative number")
	}
	if err := s.registry.RequireZone(ctx, zoneID); err != nil {
		return nil, err
	}
	if measuredAt.IsZero() {
		measuredAt = s.now()
	}
	if source == "" {
		source = "feeder"
	}
	rd := &domain.InjectedEnergyReading{ZoneID: zoneID, MeasuredAt: measuredAt, EnergyKWh: kwh, Source: source}
	if err := s.store.InsertInjectedEnergy(ctx, rd); err != nil {
		return nil, fmt.Errorf("insert injected energy: %w", err)
	}
	return rd, nil
}

func (s *ReconciliationService) ListResults(ctx context.Context, runID string) ([]domain.ReconciliationResult, error) {
	if runID == "" {
		return nil, domain.Invalid("runId", "empty")
	}
	return s.store.ListResults(ctx, runID)
}
