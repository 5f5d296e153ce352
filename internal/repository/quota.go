package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/domain"
)

const quotaColumns = `id, meter_id, quota_wh, consumed_wh, expires_at, is_active, last_sync, created_at`

const activeQuotaQuery = `SELECT ` + quotaColumns + ` FROM quota_records
	WHERE meter_id = $1 AND is_active AND (expires_at IS NULL OR expires_at > $2)
	ORDER BY created_at DESC, id DESC LIMIT 1`

// ActiveQuota returns the newest active, unexpired record, or nil.
func (r *Repos) ActiveQuota(ctx context.Context, meterID string, now time.Time) (*domain.QuotaRecord, error) {
	var q domain.QuotaRecord
	err := r.db.GetContext(ctx, &q, activeQuotaQuery, meterID, now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *Repos) TouchQuotaSync(ctx context.Context, quotaID int64, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE quota_records SET last_sync = $2 WHERE id = $1`, quotaID, now)
	return err
}

// ConsumeQuota debits wh from the meter's active record. The record row is
// locked for the duration of the transaction so concurrent debits on the same
// meter serialize; debits on other meters do not contend.
func (r *Repos) ConsumeQuota(ctx context.Context, meterID string, wh int64, now time.Time) (*domain.QuotaRecord, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin consume: %w", err)
	}
	defer tx.Rollback()

	var q domain.QuotaRecord
	err = tx.GetContext(ctx, &q, activeQuotaQuery+` FOR UPDATE`, meterID, now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.QuotaExceededError{MeterID: meterID, RequestedKWh: domain.WhToKWh(wh)}
	}
	if err != nil {
		return nil, fmt.Errorf("lock quota: %w", err)
	}

	if err := q.Consume(wh, now); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE quota_records SET consumed_wh = $2, is_active = $3, last_sync = $4 WHERE id = $1`,
		q.ID, q.ConsumedWh, q.IsActive, now); err != nil {
		return nil, fmt.Errorf("update quota: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit consume: %w", err)
	}
	return &q, nil
}

// ExpireQuotas deactivates active records whose expiry has passed.
func (r *Repos) ExpireQuotas(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE quota_records SET is_active = FALSE
		 WHERE is_active AND expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
