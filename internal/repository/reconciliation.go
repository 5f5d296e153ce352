package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/domain"
)

func (r *Repos) CreateRun(ctx context.Context, startedAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reconciliation_runs (id, started_at) VALUES ($1, $2)`, id, startedAt)
	return id, err
}

func (r *Repos) FinishRun(ctx context.Context, s domain.RunSummary, finishedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE reconciliation_runs
		 SET finished_at = $2, zones_analyzed = $3, anomalies_found = $4, total_delta_kwh = $5
		 WHERE id = $1`, s.RunID, finishedAt, s.ZonesAnalyzed, s.AnomaliesFound, s.TotalDelta)
	return err
}

func (r *Repos) InsertResult(ctx context.Context, res *domain.ReconciliationResult) error {
	return r.db.GetContext(ctx, &res.ID,
		`INSERT INTO reconciliation_results (run_id, zone_id, injected_kwh, billed_kwh, delta_kwh,
		     delta_percent, severity, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		res.RunID, res.ZoneID, res.InjectedKWh, res.BilledKWh, res.DeltaKWh,
		res.DeltaPercent, string(res.Severity), res.CreatedAt)
}

func (r *Repos) ListResults(ctx context.Context, runID string) ([]domain.ReconciliationResult, error) {
	var out []domain.ReconciliationResult
	err := r.db.SelectContext(ctx, &out,
		`SELECT id, run_id, zone_id, injected_kwh, billed_kwh, delta_kwh, delta_percent, severity, created_at
		 FROM reconciliation_results WHERE run_id = $1 ORDER BY zone_id`, runID)
	return out, err
}

func (r *Repos) InsertInjectedEnergy(ctx context.Context, rd *domain.InjectedEnergyReading) error {
	return r.db.GetContext(ctx, &rd.ID,
		`INSERT INTO injected_energy_readings (zone_id, measured_at, energy_kwh, source)
		 VALUES ($1, $2, $3, $4) RETURNING id`, rd.ZoneID, rd.MeasuredAt, rd.EnergyKWh, rd.Source)
}

// ZoneInjectedEnergy sums upstream measurements for the zone in [since, until).
// ok is false when the feed has no reading in the window.
func (r *Repos) ZoneInjectedEnergy(ctx context.Context, zoneID string, since, until time.Time) (kwh float64, ok bool, err error) {
	var row struct {
		Total float64 `db:"total"`
		Count int     `db:"n"`
	}
	err = r.db.GetContext(ctx, &row,
		`SELECT COALESCE(SUM(energy_kwh), 0) AS total, COUNT(*) AS n
		 FROM injected_energy_readings
		 WHERE zone_id = $1 AND measured_at >= $2 AND measured_at < $3`, zoneID, since, until)
	if err != nil {
		return 0, false, err
	}
	return row.Total, row.Count > 0, nil
}
