package domain

import (
	"math"
	"time"
)

// The ledger is kept in whole watt-hours. kWh amounts are converted at the
// API edge.
const WhPerKWh = 1000

// KWhToWh rounds a kWh amount to the nearest watt-hour.
func KWhToWh(kwh float64) int64 { return int64(math.Round(kwh * WhPerKWh)) }

func WhToKWh(wh int64) float64 { return float64(wh) / WhPerKWh }

// QuotaRecord is a prepaid allowance. At most one record per meter is
// active; ConsumedWh never exceeds QuotaWh.
type QuotaRecord struct {
	ID         int64      `db:"id" json:"id"`
	MeterID    string     `db:"meter_id" json:"meter_id"`
	QuotaWh    int64      `db:"quota_wh" json:"quota_wh"`
	ConsumedWh int64      `db:"consumed_wh" json:"consumed_wh"`
	ExpiresAt  *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	IsActive   bool       `db:"is_active" json:"is_active"`
	LastSync   *time.Time `db:"last_sync" json:"last_sync,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

func (q *QuotaRecord) AvailableWh() int64 {
	if q == nil || !q.IsActive {
		return 0
	}
	if a := q.QuotaWh - q.ConsumedWh; a > 0 {
		return a
	}
	return 0
}

// Available is the remaining allowance in kWh.
func (q *QuotaRecord) Available() float64 { return WhToKWh(q.AvailableWh()) }

func (q *QuotaRecord) Expired(now time.Time) bool {
	return q.ExpiresAt != nil && !q.ExpiresAt.After(now)
}

// Consume applies wh to the record in place. It either applies the whole
// amount or returns a QuotaExceededError and leaves the record untouched.
// Reaching the allocation deactivates the record in the same step.
func (q *QuotaRecord) Consume(wh int64, now time.Time) error {
	if !q.IsActive || q.Expired(now) || q.ConsumedWh+wh > q.QuotaWh {
		return QuotaExceededError{MeterID: q.MeterID, RequestedKWh: WhToKWh(wh), AvailableKWh: q.Available()}
	}
	q.ConsumedWh += wh
	if q.ConsumedWh >= q.QuotaWh {
		q.IsActive = false
	}
	q.LastSync = &now
	return nil
}

type QuotaStatus struct {
	HasQuota      bool       `json:"hasQuota"`
	AvailableKWh  float64    `json:"availableKwh"`
	TotalQuotaKWh float64    `json:"totalQuotaKwh"`
	CanConsume    bool       `json:"canConsume"`
	ExpiresAt     *time.Time `json:"expiresAt"`
}

type ConsumeResult struct {
	ConsumedKWh    float64 `json:"consumedKwh"`
	AvailableKWh   float64 `json:"availableKwh"`
	QuotaExhausted bool    `json:"quotaExhausted"`
}
