package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/domain"
)

const commandColumns = `id, zone_id, command_type, target_relays, initiated_by, meters_targeted,
	meters_delivered, status, created_at, completed_at`

func (r *Repos) CreateCommand(ctx context.Context, c *domain.DispatchCommand) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO dispatch_commands (id, zone_id, command_type, target_relays, initiated_by,
		     meters_targeted, meters_delivered, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.ZoneID, string(c.CommandType), c.TargetRelays, c.InitiatedBy,
		c.MetersTargeted, c.MetersDelivered, string(c.Status), c.CreatedAt)
	return err
}

// CompleteCommand records the final outcome. It only applies to a PENDING
// command, so a second completion fails instead of rewriting the audit row.
func (r *Repos) CompleteCommand(ctx context.Context, id string, delivered int, status domain.DispatchStatus, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE dispatch_commands SET meters_delivered = $2, status = $3, completed_at = $4
		 WHERE id = $1 AND status = 'PENDING'`, id, delivered, string(status), at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("command %s is not pending", id)
	}
	return nil
}

func (r *Repos) GetCommand(ctx context.Context, id string) (*domain.DispatchCommand, error) {
	var c domain.DispatchCommand
	err := r.db.GetContext(ctx, &c, `SELECT `+commandColumns+` FROM dispatch_commands WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("dispatch command", id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repos) ListCommands(ctx context.Context, zoneID string, limit int) ([]domain.DispatchCommand, error) {
	var out []domain.DispatchCommand
	err := r.db.SelectContext(ctx, &out,
		`SELECT `+commandColumns+` FROM dispatch_commands WHERE zone_id = $1
		 ORDER BY created_at DESC LIMIT $2`, zoneID, limit)
	return out, err
}
