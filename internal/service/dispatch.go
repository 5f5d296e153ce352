package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/domain"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/metrics"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type DispatchRequest struct {
	ZoneID       string             `json:"zoneId"`
	CommandType  domain.CommandType `json:"commandType"`
	TargetRelays domain.RelaySet    `json:"targetRelays,omitempty"`
	InitiatedBy  string             `json:"initiatedBy,omitempty"`
}

func (r DispatchRequest) validate() error {
	if err := validateZoneID(r.ZoneID); err != nil {
		return err
	}
	if !r.CommandType.Valid() {
		return domain.Invalid("commandType", fmt.Sprintf("unknown command %q", r.CommandType))
	}
	for _, relay := range r.TargetRelays {
		if !relay.Valid() {
			return domain.Invalid("targetRelays", fmt.Sprintf("unknown relay %q", relay))
		}
	}
	return nil
}

type DispatchService struct {
	registry    *Registry
	commands    CommandStore
	control     ControlChannel
	notifier    ZoneNotifier
	sendTimeout time.Duration
	parallelism int
	metrics     *metrics.Metrics
	log         zerolog.Logger
	now         func() time.Time
}

func NewDispatchService(registry *Registry, commands CommandStore, control ControlChannel, notifier ZoneNotifier,
	o Options, m *metrics.Metrics, log zerolog.Logger) *DispatchService {
	s := &DispatchService{
		registry:    registry,
		commands:    commands,
		control:     control,
		notifier:    notifier,
		sendTimeout: o.SendTimeout,
		parallelism: o.DispatchParallelism,
		metrics:     m,
		log:         log,
		now:         time.Now,
	}
	if s.sendTimeout <= 0 {
		s.sendTimeout = 5 * time.Second
	}
	if s.parallelism <= 0 {
		s.parallelism = 32
	}
	return s
}

// Dispatch sends a load command to every online meter in the zone. The
// command is persisted as PENDING before the first send and completed exactly
// once; per-meter failures are counted, not returned.
func (s *DispatchService) Dispatch(ctx context.Context, req DispatchRequest) (domain.DispatchResult, error) {
	if err := req.validate(); err != nil {
		return domain.DispatchResult{}, err
	}
	if err := s.registry.RequireZone(ctx, req.ZoneID); err != nil {
		return domain.DispatchResult{}, err
	}
	meters, err := s.registry.OnlineMeters(ctx, req.ZoneID)
	if err != nil {
		return domain.DispatchResult{}, fmt.Errorf("list meters of zone %s: %w", req.ZoneID, err)
	}

	relays := domain.EffectiveRelays(req.CommandType, req.TargetRelays)
	cmd := &domain.DispatchCommand{
		ZoneID:         req.ZoneID,
		CommandType:    req.CommandType,
		TargetRelays:   relays,
		InitiatedBy:    req.InitiatedBy,
		MetersTargeted: len(meters),
		Status:         domain.DispatchPending,
		CreatedAt:      s.now(),
	}
	if cmd.InitiatedBy == "" {
		cmd.InitiatedBy = "system"
	}
	if err := s.commands.CreateCommand(ctx, cmd); err != nil {
		return domain.DispatchResult{}, fmt.Errorf("create command: %w", err)
	}

	log := s.log.With().Str("command_id", cmd.ID).Str("zone_id", req.ZoneID).Logger()
	log.Info().Str("command_type", string(req.CommandType)).Int("meters", len(meters)).Msg("dispatching")

	delivered := s.fanOut(ctx, log, cmd, meters)
	status := domain.DeriveDispatchStatus(len(meters), delivered)

	// Completion and notification outlive caller cancellation.
	wctx := detached(ctx)
	if err := s.commands.CompleteCommand(wctx, cmd.ID, delivered, status, s.now()); err != nil {
		return domain.DispatchResult{}, fmt.Errorf("complete command %s: %w", cmd.ID, err)
	}
	s.metrics.CommandDone(string(status))
	s.notify(wctx, log, cmd)

	return domain.DispatchResult{
		CommandID:       cmd.ID,
		MetersTargeted:  len(meters),
		MetersDelivered: delivered,
		Status:          status,
	}, nil
}

func (s *DispatchService) fanOut(ctx context.Context, log zerolog.Logger, cmd *domain.DispatchCommand, meters []domain.Meter) int {
	var delivered atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(s.parallelism)
	for _, m := range meters {
		msg := domain.ControlMessage{
			CommandID:   cmd.ID,
			MeterID:     m.ID,
			CommandType: cmd.CommandType,
			Relays:      cmd.TargetRelays,
			IssuedAt:    cmd.CreatedAt,
		}
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, s.sendTimeout)
			defer cancel()
			start := time.Now()
			err := s.control.Send(sctx, msg)
			s.metrics.Sent(err == nil, time.Since(start).Seconds())
			if err != nil {
				log.Warn().Err(err).Str("meter_id", msg.MeterID).Msg("control send failed")
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(delivered.Load())
}

func (s *DispatchService) notify(ctx context.Context, log zerolog.Logger, cmd *domain.DispatchCommand) {
	if s.notifier == nil {
		return
	}
	n := domain.ZoneNotification{
		ZoneID:    cmd.ZoneID,
		CommandID: cmd.ID,
		SentAt:    s.now(),
	}
	if cmd.CommandType == domain.CommandShedHeavyLoads {
		n.Event = domain.EventLoadShed
		n.Message = "Heavy loads are being shed in your zone to protect the grid."
	} else {
		n.Event = domain.EventLoadRestored
		n.Message = "Power has been restored in your zone."
	}
	if err := s.notifier.NotifyZone(ctx, n); err != nil {
		log.Error().Err(err).Msg("zone notification failed")
	}
}

func (s *DispatchService) GetCommand(ctx context.Context, id string) (*domain.DispatchCommand, error) {
	if id == "" {
		return nil, domain.Invalid("id", "empty")
	}
	return s.commands.GetCommand(ctx, id)
}

// ListCommands returns the zone's most recent commands, newest first.
func (s *DispatchService) ListCommands(ctx context.Context, zoneID string, limit int) ([]domain.DispatchCommand, error) {
	if err := validateZoneID(zoneID); err != nil {
		return nil, err
	}
	if err := s.registry.RequireZone(ctx, zoneID); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	return s.commands.ListCommands(ctx, zoneID, limit)
}
