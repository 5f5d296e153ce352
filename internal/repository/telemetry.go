package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/domain"
)

func (r *Repos) InsertSample(ctx context.Context, s *domain.TelemetrySample) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO telemetry_samples (id, meter_id, ts, voltage, current, power_w, energy_source)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.MeterID, s.Timestamp, s.Voltage, s.Current, s.PowerW, string(s.EnergySource))
	return err
}

// WindowSamples returns the meter's samples of one source taken at or after
// since, oldest first.
func (r *Repos) WindowSamples(ctx context.Context, meterID string, source domain.EnergySource, since time.Time) ([]domain.TelemetrySample, error) {
	var out []domain.TelemetrySample
	err := r.db.SelectContext(ctx, &out,
		`SELECT id, meter_id, ts, voltage, current, power_w, energy_source
		 FROM telemetry_samples
		 WHERE meter_id = $1 AND energy_source = $2 AND ts >= $3
		 ORDER BY ts`, meterID, string(source), since)
	return out, err
}

// LatestPowerSample returns the newest sample carrying a power reading, or
// nil when the meter never reported power.
func (r *Repos) LatestPowerSample(ctx context.Context, meterID string) (*domain.TelemetrySample, error) {
	var s domain.TelemetrySample
	err := r.db.GetContext(ctx, &s,
		`SELECT id, meter_id, ts, voltage, current, power_w, energy_source
		 FROM telemetry_samples
		 WHERE meter_id = $1 AND power_w IS NOT NULL
		 ORDER BY ts DESC LIMIT 1`, meterID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ZoneBilledEnergy integrates grid power of every meter in the zone since the
// given time. Each sample is held until the meter's next sample, with the
// hold capped at maxGap. Result is in kWh.
func (r *Repos) ZoneBilledEnergy(ctx context.Context, zoneID string, since time.Time, maxGap time.Duration) (float64, error) {
	var kwh float64
	err := r.db.GetContext(ctx, &kwh,
		`SELECT COALESCE(SUM(s.power_w * LEAST(EXTRACT(EPOCH FROM (s.next_ts - s.ts)), $3)), 0) / 3600000.0
		 FROM (
		     SELECT t.power_w, t.ts, LEAD(t.ts) OVER (PARTITION BY t.meter_id ORDER BY t.ts) AS next_ts
		     FROM telemetry_samples t
		     JOIN meters m ON m.id = t.meter_id
		     JOIN homes h ON h.id = m.home_id
		     WHERE h.zone_id = $1 AND t.ts >= $2 AND t.energy_source = 'GRID' AND t.power_w IS NOT NULL
		 ) s
		 WHERE s.next_ts IS NOT NULL`, zoneID, since, maxGap.Seconds())
	return kwh, err
}
