package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// MaintenanceService runs the periodic housekeeping of the ledger and the
// meter registry.
type MaintenanceService struct {
	registry     *Registry
	quotas       QuotaStore
	offlineAfter time.Duration
	log          zerolog.Logger
	now          func() time.Time
}

func NewMaintenanceService(registry *Registry, quotas QuotaStore, offlineAfter time.Duration, log zerolog.Logger) *MaintenanceService {
	if offlineAfter <= 0 {
		offlineAfter = 15 * time.Minute
	}
	return &MaintenanceService{registry: registry, quotas: quotas, offlineAfter: offlineAfter, log: log, now: time.Now}
}

type SweepReport struct {
	QuotasExpired int64 `json:"quotasExpired"`
	MetersOffline int64 `json:"metersOffline"`
}

// Sweep expires lapsed quotas and marks silent meters OFFLINE. Both steps
// run even when the other fails.
func (s *MaintenanceService) Sweep(ctx context.Context) (SweepReport, error) {
	now := s.now()
	var (
		r    SweepReport
		errs []error
		err  error
	)

	if r.QuotasExpired, err = s.quotas.ExpireQuotas(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("expire quotas: %w", err))
	}
	if r.MetersOffline, err = s.registry.MarkStaleOffline(ctx, now.Add(-s.offlineAfter)); err != nil {
		errs = append(errs, fmt.Errorf("mark stale meters: %w", err))
	}

	s.log.Info().
		Int64("quotas_expired", r.QuotasExpired).
		Int64("meters_offline", r.MetersOffline).
		Msg("maintenance sweep")
	return r, errors.Join(errs...)
}
