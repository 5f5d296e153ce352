package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/cache"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/domain"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/repository"
)

// Registry is the meter registry. Topology (meter -> home -> zone) is
// cached; status and liveness always come from the store.
type Registry struct {
	store MeterStore
	cache *cache.Cache
}

func NewRegistry(store MeterStore, c *cache.Cache) *Registry {
	return &Registry{store: store, cache: c}
}

func meterKey(id string) string { return "meter:" + id }

// Topology returns the meter with its home and zone. Status fields of a
// cached entry may be stale.
func (r *Registry) Topology(ctx context.Context, meterID string) (*domain.Meter, error) {
	if r.cache != nil {
		if v, ok := r.cache.Get(meterKey(meterID)); ok {
			if m, ok := v.(domain.Meter); ok {
				return &m, nil
			}
		}
	}
	m, err := r.store.GetMeter(ctx, meterID)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Set(meterKey(meterID), *m)
	}
	return m, nil
}

// MarkOnline records a sign of life from the meter.
func (r *Registry) MarkOnline(ctx context.Context, meterID string, at time.Time) error {
	status := domain.MeterOnline
	if err := r.store.PatchMeter(ctx, meterID, repository.MeterPatch{Status: &status, LastSeen: &at}); err != nil {
		return fmt.Errorf("mark meter %s online: %w", meterID, err)
	}
	return nil
}

func (r *Registry) RequireZone(ctx context.Context, zoneID string) error {
	ok, err := r.store.ZoneExists(ctx, zoneID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NotFound("zone", zoneID)
	}
	return nil
}

func (r *Registry) OnlineMeters(ctx context.Context, zoneID string) ([]domain.Meter, error) {
	return r.store.ZoneMeters(ctx, zoneID, true)
}

func (r *Registry) Zones(ctx context.Context) ([]domain.Zone, error) {
	return r.store.ListZones(ctx)
}

func (r *Registry) MarkStaleOffline(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.store.MarkStaleOffline(ctx, cutoff)
}
