package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/domain"
)

type Repos struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Repos { return &Repos{db: db} }

func (r *Repos) ListZones(ctx context.Context) ([]domain.Zone, error) {
	var out []domain.Zone
	err := r.db.SelectContext(ctx, &out, `SELECT id, name FROM zones ORDER BY id`)
	return out, err
}

func (r *Repos) ZoneExists(ctx context.Context, zoneID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM zones WHERE id = $1)`, zoneID)
	return exists, err
}

const meterColumns = `m.id, m.home_id, h.zone_id, m.status, m.last_seen`

func (r *Repos) GetMeter(ctx context.Context, meterID string) (*domain.Meter, error) {
	var m domain.Meter
	err := r.db.GetContext(ctx, &m,
		`SELECT `+meterColumns+` FROM meters m JOIN homes h ON h.id = m.home_id WHERE m.id = $1`, meterID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("meter", meterID)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ZoneMeters lists the meters of every home in the zone.
func (r *Repos) ZoneMeters(ctx context.Context, zoneID string, onlineOnly bool) ([]domain.Meter, error) {
	var out []domain.Meter
	err := r.db.SelectContext(ctx, &out,
		`SELECT `+meterColumns+` FROM meters m JOIN homes h ON h.id = m.home_id
		 WHERE h.zone_id = $1 AND ($2 = FALSE OR m.status = 'ONLINE')
		 ORDER BY m.id`, zoneID, onlineOnly)
	return out, err
}

// MeterPatch holds optional meter fields. Only set fields are written.
type MeterPatch struct {
	Status   *domain.MeterStatus
	LastSeen *time.Time
}

func (p MeterPatch) validate() error {
	if p.Status == nil && p.LastSeen == nil {
		return domain.Invalid("patch", "no fields set")
	}
	if p.Status != nil && *p.Status != domain.MeterOnline && *p.Status != domain.MeterOffline {
		return domain.Invalid("status", string(*p.Status))
	}
	if p.LastSeen != nil && p.LastSeen.IsZero() {
		return domain.Invalid("last_seen", "zero time")
	}
	return nil
}

func (r *Repos) PatchMeter(ctx context.Context, meterID string, p MeterPatch) error {
	if err := p.validate(); err != nil {
		return err
	}
	var (
		sets []string
		args = []any{meterID}
	)
	if p.Status != nil {
		args = append(args, string(*p.Status))
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if p.LastSeen != nil {
		args = append(args, *p.LastSeen)
		sets = append(sets, fmt.Sprintf("last_seen = $%d", len(args)))
	}
	res, err := r.db.ExecContext(ctx, `UPDATE meters SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("meter", meterID)
	}
	return nil
}

// MarkStaleOffline flips online meters not seen since cutoff to OFFLINE.
func (r *Repos) MarkStaleOffline(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE meters SET status = 'OFFLINE'
		 WHERE status = 'ONLINE' AND (last_seen IS NULL OR last_seen < $1)`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repos) ActiveSignatures(ctx context.Context, meterID string) ([]domain.DeviceSignature, error) {
	var out []domain.DeviceSignature
	err := r.db.SelectContext(ctx, &out,
		`SELECT id, meter_id, device_name, power_w, is_active, activated_at
		 FROM device_signatures WHERE meter_id = $1 AND is_active ORDER BY id`, meterID)
	return out, err
}

// ReportIncident files an incident in the local incidents table.
func (r *Repos) ReportIncident(ctx context.Context, inc domain.Incident) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO incidents (meter_id, home_id, description, classification) VALUES ($1, $2, $3, $4)`,
		inc.MeterID, inc.HomeID, inc.Description, inc.Classification)
	return err
}

// OpenAuditTicket files a ticket in the local audit_tickets table.
func (r *Repos) OpenAuditTicket(ctx context.Context, t domain.AuditTicket) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_tickets (zone_id, severity, estimated_loss_kwh) VALUES ($1, $2, $3)`,
		t.ZoneID, string(t.Severity), t.EstimatedLossKWh)
	return err
}
