package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/domain"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/repository"
)

var errBoom = errors.New("boom")

// memStore is an in-memory stand-in for repository.Repos.
type memStore struct {
	mu sync.Mutex

	zones    []domain.Zone
	meters   map[string]domain.Meter
	samples  []domain.TelemetrySample
	sigs     map[string][]domain.DeviceSignature
	quotas   []*domain.QuotaRecord
	commands map[string]*domain.DispatchCommand
	runs     map[string]domain.RunSummary
	results  []domain.ReconciliationResult
	injected map[string]float64
	billed   map[string]float64
	readings []domain.InjectedEnergyReading

	incidents []domain.Incident
	tickets   []domain.AuditTicket

	completions  int
	nextID       int
	insertErr    error
	patchErr     error
	incidentErr  error
	billedHook   func(zoneID string)
	windowErr    error
	touchedQuota []int64
}

func newMemStore() *memStore {
	return &memStore{
		meters:   map[string]domain.Meter{},
		sigs:     map[string][]domain.DeviceSignature{},
		commands: map[string]*domain.DispatchCommand{},
		runs:     map[string]domain.RunSummary{},
		injected: map[string]float64{},
		billed:   map[string]float64{},
	}
}

func (m *memStore) addZone(id string) {
	m.zones = append(m.zones, domain.Zone{ID: id, Name: "Zone " + id})
}

func (m *memStore) addMeter(id, zone string, status domain.MeterStatus) {
	m.meters[id] = domain.Meter{ID: id, HomeID: "home-" + id, ZoneID: zone, Status: status}
}

func (m *memStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

// MeterStore

func (m *memStore) GetMeter(_ context.Context, id string) (*domain.Meter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt, ok := m.meters[id]
	if !ok {
		return nil, domain.NotFound("meter", id)
	}
	return &mt, nil
}

func (m *memStore) PatchMeter(_ context.Context, id string, p repository.MeterPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.patchErr != nil {
		return m.patchErr
	}
	mt, ok := m.meters[id]
	if !ok {
		return domain.NotFound("meter", id)
	}
	if p.Status != nil {
		mt.Status = *p.Status
	}
	if p.LastSeen != nil {
		t := *p.LastSeen
		mt.LastSeen = &t
	}
	m.meters[id] = mt
	return nil
}

func (m *memStore) ZoneExists(_ context.Context, zoneID string) (bool, error) {
	for _, z := range m.zones {
		if z.ID == zoneID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ZoneMeters(_ context.Context, zoneID string, onlineOnly bool) ([]domain.Meter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Meter
	for _, mt := range m.meters {
		if mt.ZoneID == zoneID && (!onlineOnly || mt.Status == domain.MeterOnline) {
			out = append(out, mt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ListZones(context.Context) ([]domain.Zone, error) {
	return m.zones, nil
}

func (m *memStore) MarkStaleOffline(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, mt := range m.meters {
		if mt.Status == domain.MeterOnline && (mt.LastSeen == nil || mt.LastSeen.Before(cutoff)) {
			mt.Status = domain.MeterOffline
			m.meters[id] = mt
			n++
		}
	}
	return n, nil
}

// TelemetryStore and SignatureInventory

func (m *memStore) InsertSample(_ context.Context, s *domain.TelemetrySample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	s.ID = m.id("sample")
	m.samples = append(m.samples, *s)
	return nil
}

func (m *memStore) WindowSamples(_ context.Context, meterID string, source domain.EnergySource, since time.Time) ([]domain.TelemetrySample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.windowErr != nil {
		return nil, m.windowErr
	}
	var out []domain.TelemetrySample
	for _, s := range m.samples {
		if s.MeterID == meterID && s.EnergySource == source && !s.Timestamp.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) LatestPowerSample(_ context.Context, meterID string) (*domain.TelemetrySample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *domain.TelemetrySample
	for i := range m.samples {
		s := m.samples[i]
		if s.MeterID != meterID || s.PowerW == nil {
			continue
		}
		if latest == nil || !s.Timestamp.Before(latest.Timestamp) {
			latest = &s
		}
	}
	return latest, nil
}

func (m *memStore) ActiveSignatures(_ context.Context, meterID string) ([]domain.DeviceSignature, error) {
	var out []domain.DeviceSignature
	for _, s := range m.sigs[meterID] {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

// QuotaStore

func (m *memStore) active(meterID string, now time.Time) *domain.QuotaRecord {
	var best *domain.QuotaRecord
	for _, q := range m.quotas {
		if q.MeterID != meterID || !q.IsActive || q.Expired(now) {
			continue
		}
		if best == nil || q.CreatedAt.After(best.CreatedAt) {
			best = q
		}
	}
	return best
}

func (m *memStore) ActiveQuota(_ context.Context, meterID string, now time.Time) (*domain.QuotaRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.active(meterID, now)
	if q == nil {
		return nil, nil
	}
	cp := *q
	return &cp, nil
}

func (m *memStore) TouchQuotaSync(_ context.Context, id int64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touchedQuota = append(m.touchedQuota, id)
	for _, q := range m.quotas {
		if q.ID == id {
			q.LastSync = &now
		}
	}
	return nil
}

func (m *memStore) ConsumeQuota(_ context.Context, meterID string, wh int64, now time.Time) (*domain.QuotaRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.active(meterID, now)
	if q == nil {
		return nil, domain.QuotaExceededError{MeterID: meterID, RequestedKWh: domain.WhToKWh(wh)}
	}
	next := *q
	if err := next.Consume(wh, now); err != nil {
		return nil, err
	}
	*q = next
	return &next, nil
}

func (m *memStore) ExpireQuotas(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, q := range m.quotas {
		if q.IsActive && q.Expired(now) {
			q.IsActive = false
			n++
		}
	}
	return n, nil
}

// CommandStore

func (m *memStore) CreateCommand(_ context.Context, c *domain.DispatchCommand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.id("cmd")
	cp := *c
	m.commands[c.ID] = &cp
	return nil
}

func (m *memStore) CompleteCommand(_ context.Context, id string, delivered int, status domain.DispatchStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.commands[id]
	if !ok || c.Status != domain.DispatchPending {
		return fmt.Errorf("command %s is not pending", id)
	}
	m.completions++
	c.MetersDelivered = delivered
	c.Status = status
	c.CompletedAt = &at
	return nil
}

func (m *memStore) GetCommand(_ context.Context, id string) (*domain.DispatchCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.commands[id]
	if !ok {
		return nil, domain.NotFound("dispatch command", id)
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) ListCommands(_ context.Context, zoneID string, limit int) ([]domain.DispatchCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DispatchCommand
	for _, c := range m.commands {
		if c.ZoneID == zoneID && len(out) < limit {
			out = append(out, *c)
		}
	}
	return out, nil
}

// ReconciliationStore

func (m *memStore) CreateRun(context.Context, time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id("run"), nil
}

func (m *memStore) FinishRun(ctx context.Context, s domain.RunSummary, _ time.Time) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[s.RunID] = s
	return nil
}

func (m *memStore) InsertResult(ctx context.Context, res *domain.ReconciliationResult) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	res.ID = int64(len(m.results) + 1)
	m.results = append(m.results, *res)
	return nil
}

func (m *memStore) ListResults(_ context.Context, runID string) ([]domain.ReconciliationResult, error) {
	var out []domain.ReconciliationResult
	for _, r := range m.results {
		if r.RunID == runID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) InsertInjectedEnergy(_ context.Context, rd *domain.InjectedEnergyReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rd.ID = int64(len(m.readings) + 1)
	m.readings = append(m.readings, *rd)
	return nil
}

func (m *memStore) ZoneInjectedEnergy(_ context.Context, zoneID string, _, _ time.Time) (float64, bool, error) {
	kwh, ok := m.injected[zoneID]
	return kwh, ok, nil
}

func (m *memStore) ZoneBilledEnergy(_ context.Context, zoneID string, _ time.Time, _ time.Duration) (float64, error) {
	if m.billedHook != nil {
		m.billedHook(zoneID)
	}
	return m.billed[zoneID], nil
}

// Collaborators

func (m *memStore) ReportIncident(_ context.Context, inc domain.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incidentErr != nil {
		return m.incidentErr
	}
	m.incidents = append(m.incidents, inc)
	return nil
}

func (m *memStore) OpenAuditTicket(_ context.Context, t domain.AuditTicket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets = append(m.tickets, t)
	return nil
}

type fakeControl struct {
	mu    sync.Mutex
	fail map[string]bool
	hang map[string]bool
	sent []domain.ControlMessage
}

func (f *fakeControl) Send(ctx context.Context, msg domain.ControlMessage) error {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	fail, hang := f.fail[msg.MeterID], f.hang[msg.MeterID]
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
		return fmt.Errorf("%w: %v", domain.ErrDeliveryFailure, ctx.Err())
	}
	if fail {
		return domain.ErrDeliveryFailure
	}
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []domain.ZoneNotification
	err  error
}

func (f *fakeNotifier) NotifyZone(_ context.Context, z domain.ZoneNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, z)
	return f.err
}

type fakeArchiver struct {
	summaries []domain.RunSummary
	results   [][]domain.ReconciliationResult
}

func (f *fakeArchiver) ArchiveRun(_ context.Context, s domain.RunSummary, results []domain.ReconciliationResult, _ time.Time) error {
	f.summaries = append(f.summaries, s)
	f.results = append(f.results, results)
	return nil
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

var nop = zerolog.Nop()

func ptr(v float64) *float64 { return &v }
