package domain

import "time"

type Severity string

const (
	SeverityNormal   Severity = "NORMAL"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

const (
	WarningThresholdPercent  = 10.0
	CriticalThresholdPercent = 15.0
)

// Classify maps a loss percentage to a severity. Both thresholds are
// exclusive: exactly 10% is NORMAL and exactly 15% is WARNING.
func Classify(deltaPercent float64) Severity {
	switch {
	case deltaPercent > CriticalThresholdPercent:
		return SeverityCritical
	case deltaPercent > WarningThresholdPercent:
		return SeverityWarning
	default:
		return SeverityNormal
	}
}

type ReconciliationRun struct {
	ID             string     `db:"id" json:"id"`
	StartedAt      time.Time  `db:"started_at" json:"started_at"`
	FinishedAt     *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	ZonesAnalyzed  int        `db:"zones_analyzed" json:"zones_analyzed"`
	AnomaliesFound int        `db:"anomalies_found" json:"anomalies_found"`
	TotalDeltaKWh  float64    `db:"total_delta_kwh" json:"total_delta_kwh"`
}

type ReconciliationResult struct {
	ID           int64     `db:"id" json:"id"`
	RunID        string    `db:"run_id" json:"run_id"`
	ZoneID       string    `db:"zone_id" json:"zone_id"`
	InjectedKWh  float64   `db:"injected_kwh" json:"injected_kwh"`
	BilledKWh    float64   `db:"billed_kwh" json:"billed_kwh"`
	DeltaKWh     float64   `db:"delta_kwh" json:"delta_kwh"`
	DeltaPercent float64   `db:"delta_percent" json:"delta_percent"`
	Severity     Severity  `db:"severity" json:"severity"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// NewReconciliationResult computes delta and severity. injected must be > 0.
func NewReconciliationResult(runID, zoneID string, injected, billed float64, at time.Time) ReconciliationResult {
	delta := injected - billed
	pct := delta * 100 / injected
	return ReconciliationResult{
		RunID:        runID,
		ZoneID:       zoneID,
		InjectedKWh:  injected,
		BilledKWh:    billed,
		DeltaKWh:     delta,
		DeltaPercent: pct,
		Severity:     Classify(pct),
		CreatedAt:    at,
	}
}

type RunSummary struct {
	RunID          string  `json:"runId"`
	ZonesAnalyzed  int     `json:"zonesAnalyzed"`
	AnomaliesFound int     `json:"anomaliesFound"`
	TotalDelta     float64 `json:"totalDelta"`
}
