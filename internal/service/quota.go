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

// QuotaService is the prepaid kWh ledger. Linearizability per meter is
// provided by the store.
type QuotaService struct {
	registry *Registry
	store    QuotaStore
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time
}

func NewQuotaService(registry *Registry, store QuotaStore, m *metrics.Metrics, log zerolog.Logger) *QuotaService {
	return &QuotaService{registry: registry, store: store, metrics: m, log: log, now: time.Now}
}

func validKWh(field string, v float64, allowZero bool) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return domain.Invalid(field, "not a finite number")
	}
	if v < 0 || (v == 0 && !allowZero) {
		return domain.Invalid(field, "must be positive")
	}
	return nil
}

func (s *QuotaService) CheckQuota(ctx context.Context, meterID string, requiredKWh float64) (domain.QuotaStatus, error) {
	if err := validateMeterID(meterID); err != nil {
		return domain.QuotaStatus{}, err
	}
	if err := validKWh("requiredKwh", requiredKWh, true); err != nil {
		return domain.QuotaStatus{}, err
	}
	if _, err := s.registry.Topology(ctx, meterID); err != nil {
		return domain.QuotaStatus{}, err
	}

	now := s.now()
	q, err := s.store.ActiveQuota(ctx, meterID, now)
	if err != nil {
		return domain.QuotaStatus{}, fmt.Errorf("load quota for %s: %w", meterID, err)
	}
	if q == nil {
		return domain.QuotaStatus{}, nil
	}

	if err := s.store.TouchQuotaSync(ctx, q.ID, now); err != nil {
		s.log.Warn().Err(err).Int64("quota_id", q.ID).Msg("failed to refresh last sync")
	}

	return domain.QuotaStatus{
		HasQuota:      true,
		AvailableKWh:  q.Available(),
		TotalQuotaKWh: domain.WhToKWh(q.QuotaWh),
		CanConsume:    q.AvailableWh() >= domain.KWhToWh(requiredKWh),
		ExpiresAt:     q.ExpiresAt,
	}, nil
}

// ConsumeQuota debits kwh from the meter's active allowance. The debit is all
// or nothing: on QuotaExceededError the ledger is unchanged.
func (s *QuotaService) ConsumeQuota(ctx context.Context, meterID string, kwh float64) (domain.ConsumeResult, error) {
	if err := validateMeterID(meterID); err != nil {
		return domain.ConsumeResult{}, err
	}
	if err := validKWh("kwh", kwh, false); err != nil {
		return domain.ConsumeResult{}, err
	}
	wh := domain.KWhToWh(kwh)
	if wh <= 0 {
		return domain.ConsumeResult{}, domain.Invalid("kwh", "below the 1 Wh ledger resolution")
	}
	if _, err := s.registry.Topology(ctx, meterID); err != nil {
		return domain.ConsumeResult{}, err
	}

	q, err := s.store.ConsumeQuota(ctx, meterID, wh, s.now())
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			s.metrics.Consumed("exceeded")
			return domain.ConsumeResult{}, err
		}
		s.metrics.Consumed("error")
		return domain.ConsumeResult{}, fmt.Errorf("consume quota for %s: %w", meterID, err)
	}

	s.metrics.Consumed("ok")
	res := domain.ConsumeResult{
		ConsumedKWh:    domain.WhToKWh(wh),
		AvailableKWh:   q.Available(),
		QuotaExhausted: !q.IsActive,
	}
	if res.QuotaExhausted {
		s.log.Info().Str("meter_id", meterID).Int64("quota_id", q.ID).Msg("quota exhausted")
	}
	return res, nil
}

func (s *QuotaService) ExpireQuotas(ctx context.Context) (int64, error) {
	return s.store.ExpireQuotas(ctx, s.now())
}
