package service

import (
	"context"
	"regexp"
	"time"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/cache"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/domain"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/logger"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/metrics"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/repository"
)

type MeterStore interface {
	GetMeter(ctx context.Context, meterID string) (*domain.Meter, error)
	PatchMeter(ctx context.Context, meterID string, p repository.MeterPatch) error
	ZoneExists(ctx context.Context, zoneID string) (bool, error)
	ZoneMeters(ctx context.Context, zoneID string, onlineOnly bool) ([]domain.Meter, error)
	ListZones(ctx context.Context) ([]domain.Zone, error)
	MarkStaleOffline(ctx context.Context, cutoff time.Time) (int64, error)
}

type TelemetryStore interface {
	InsertSample(ctx context.Context, s *domain.TelemetrySample) error
	WindowSamples(ctx context.Context, meterID string, source domain.EnergySource, since time.Time) ([]domain.TelemetrySample, error)
	LatestPowerSample(ctx context.Context, meterID string) (*domain.TelemetrySample, error)
}

type SignatureInventory interface {
	ActiveSignatures(ctx context.Context, meterID string) ([]domain.DeviceSignature, error)
}

type QuotaStore interface {
	ActiveQuota(ctx context.Context, meterID string, now time.Time) (*domain.QuotaRecord, error)
	TouchQuotaSync(ctx context.Context, quotaID int64, now time.Time) error
	ConsumeQuota(ctx context.Context, meterID string, wh int64, now time.Time) (*domain.QuotaRecord, error)
	ExpireQuotas(ctx context.Context, now time.Time) (int64, error)
}

type CommandStore interface {
	CreateCommand(ctx context.Context, c *domain.DispatchCommand) error
	CompleteCommand(ctx context.Context, id string, delivered int, status domain.DispatchStatus, at time.Time) error
	GetCommand(ctx context.Context, id string) (*domain.DispatchCommand, error)
	ListCommands(ctx context.Context, zoneID string, limit int) ([]domain.DispatchCommand, error)
}

type ReconciliationStore interface {
	CreateRun(ctx context.Context, startedAt time.Time) (string, error)
	FinishRun(ctx context.Context, s domain.RunSummary, finishedAt time.Time) error
	InsertResult(ctx context.Context, res *domain.ReconciliationResult) error
	ListResults(ctx context.Context, runID string) ([]domain.ReconciliationResult, error)
	InsertInjectedEnergy(ctx context.Context, rd *domain.InjectedEnergyReading) error
	ZoneInjectedEnergy(ctx context.Context, zoneID string, since, until time.Time) (float64, bool, error)
	ZoneBilledEnergy(ctx context.Context, zoneID string, since time.Time, maxGap time.Duration) (float64, error)
}

type IncidentReporter interface {
	ReportIncident(ctx context.Context, inc domain.Incident) error
}

type AuditTicketer interface {
	OpenAuditTicket(ctx context.Context, t domain.AuditTicket) error
}

type ZoneNotifier interface {
	NotifyZone(ctx context.Context, z domain.ZoneNotification) error
}

type ControlChannel interface {
	Send(ctx context.Context, msg domain.ControlMessage) error
}

type RunArchiver interface {
	ArchiveRun(ctx context.Context, s domain.RunSummary, results []domain.ReconciliationResult, at time.Time) error
}

// Options carries tunables read from configuration.
type Options struct {
	FraudWindow         time.Duration
	FraudThreshold      float64
	IncidentCooldown    time.Duration
	SendTimeout         time.Duration
	DispatchParallelism int
	ReconcileWindow     time.Duration
	ReconcileMaxGap     time.Duration
	MeterOfflineAfter   time.Duration
}

func DefaultOptions() Options {
	return Options{
		FraudWindow:         time.Hour,
		FraudThreshold:      0.15,
		IncidentCooldown:    time.Hour,
		SendTimeout:         5 * time.Second,
		DispatchParallelism: 32,
		ReconcileWindow:     24 * time.Hour,
		ReconcileMaxGap:     15 * time.Minute,
		MeterOfflineAfter:   15 * time.Minute,
	}
}

// Deps wires the services to their stores and collaborators. Archiver may
// be nil.
type Deps struct {
	Repos     *repository.Repos
	Cache     *cache.Cache
	Control   ControlChannel
	Notifier  ZoneNotifier
	Incidents IncidentReporter
	Tickets   AuditTicketer
	Archiver  RunArchiver
	Metrics   *metrics.Metrics
	Options   Options
}

type Services struct {
	Repos          *repository.Repos
	Registry       *Registry
	Telemetry      *TelemetryService
	Fraud          *FraudDetector
	Quota          *QuotaService
	Dispatch       *DispatchService
	Reconciliation *ReconciliationService
	Maintenance    *MaintenanceService
}

func New(d Deps) *Services {
	o := d.Options
	registry := NewRegistry(d.Repos, d.Cache)
	fraud := NewFraudDetector(d.Repos, d.Repos, o.FraudWindow, o.FraudThreshold)
	return &Services{
		Repos:          d.Repos,
		Registry:       registry,
		Fraud:          fraud,
		Telemetry:      NewTelemetryService(registry, d.Repos, fraud, d.Incidents, o.IncidentCooldown, d.Metrics, logger.Component("telemetry")),
		Quota:          NewQuotaService(registry, d.Repos, d.Metrics, logger.Component("quota")),
		Dispatch:       NewDispatchService(registry, d.Repos, d.Control, d.Notifier, o, d.Metrics, logger.Component("dispatch")),
		Reconciliation: NewReconciliationService(registry, d.Repos, d.Tickets, d.Archiver, o, d.Metrics, logger.Component("reconciliation")),
		Maintenance:    NewMaintenanceService(registry, d.Repos, o.MeterOfflineAfter, logger.Component("maintenance")),
	}
}

var meterIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

func validateMeterID(id string) error {
	if !meterIDPattern.MatchString(id) {
		return domain.Invalid("meterId", "malformed identifier")
	}
	return nil
}

func validateZoneID(id string) error {
	if !meterIDPattern.MatchString(id) {
		return domain.Invalid("zoneId", "malformed identifier")
	}
	return nil
}

// detached keeps values of ctx but outlives its cancellation; used for writes
// that must land once the side effects they record have happened.
func detached(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
