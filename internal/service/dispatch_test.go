package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/domain"
)

func newDispatch(store *memStore, control *fakeControl, notifier *fakeNotifier) *DispatchService {
	o := DefaultOptions()
	o.SendTimeout = 50 * time.Millisecond
	o.DispatchParallelism = 4
	s := NewDispatchService(NewRegistry(store, nil), store, control, notifier, o, nil, nop)
	s.now = fixedClock(now)
	return s
}

func zoneWithMeters(online, offline int) *memStore {
	store := newMemStore()
	store.addZone("z1")
	for i := 0; i < online; i++ {
		store.addMeter(fmt.Sprintf("on-%d", i), "z1", domain.MeterOnline)
	}
	for i := 0; i < offline; i++ {
		store.addMeter(fmt.Sprintf("off-%d", i), "z1", domain.MeterOffline)
	}
	return store
}

func TestDispatch_PartialDelivery(t *testing.T) {
	store := zoneWithMeters(4, 1)
	control := &fakeControl{fail: map[string]bool{"on-2": true}}
	notifier := &fakeNotifier{}

	res, err := newDispatch(store, control, notifier).Dispatch(context.Background(), DispatchRequest{
		ZoneID: "z1", CommandType: domain.CommandShedHeavyLoads, InitiatedBy: "operator-7",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.MetersTargeted)
	assert.Equal(t, 3, res.MetersDelivered)
	assert.Equal(t, domain.DispatchPartial, res.Status)

	require.Len(t, control.sent, 4)
	for _, msg := range control.sent {
		assert.NotEqual(t, "off-0", msg.MeterID)
		assert.Equal(t, domain.RelaySet{domain.RelayPower}, msg.Relays)
		assert.Equal(t, res.CommandID, msg.CommandID)
	}

	cmd := store.commands[res.CommandID]
	assert.Equal(t, domain.DispatchPartial, cmd.Status)
	assert.Equal(t, 4, cmd.MetersTargeted)
	assert.Equal(t, 3, cmd.MetersDelivered)
	assert.Equal(t, "operator-7", cmd.InitiatedBy)
	assert.Equal(t, domain.RelaySet{domain.RelayPower}, cmd.TargetRelays)
	assert.Equal(t, 1, store.completions)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, domain.EventLoadShed, notifier.sent[0].Event)
	assert.Equal(t, "z1", notifier.sent[0].ZoneID)
}

func TestDispatch_RestoreAllDelivered(t *testing.T) {
	store := zoneWithMeters(3, 0)
	control := &fakeControl{}
	notifier := &fakeNotifier{}

	res, err := newDispatch(store, control, notifier).Dispatch(context.Background(), DispatchRequest{
		ZoneID: "z1", CommandType: domain.CommandRestore,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DispatchDelivered, res.Status)
	assert.Equal(t, domain.RelaySet{domain.RelayPower, domain.RelayLightsPlugs, domain.RelayEssential}, control.sent[0].Relays)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, domain.EventLoadRestored, notifier.sent[0].Event)
	assert.Equal(t, "system", store.commands[res.CommandID].InitiatedBy)
}

func TestDispatch_ExplicitRelays(t *testing.T) {
	store := zoneWithMeters(1, 0)
	control := &fakeControl{}

	_, err := newDispatch(store, control, &fakeNotifier{}).Dispatch(context.Background(), DispatchRequest{
		ZoneID: "z1", CommandType: domain.CommandShedHeavyLoads,
		TargetRelays: domain.RelaySet{domain.RelayLightsPlugs},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RelaySet{domain.RelayLightsPlugs}, control.sent[0].Relays)
}

func TestDispatch_TimeoutCountsAsFailure(t *testing.T) {
	store := zoneWithMeters(2, 0)
	control := &fakeControl{hang: map[string]bool{"on-0": true}}

	start := time.Now()
	res, err := newDispatch(store, control, &fakeNotifier{}).Dispatch(context.Background(), DispatchRequest{
		ZoneID: "z1", CommandType: domain.CommandShedHeavyLoads,
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, res.MetersDelivered)
	assert.Equal(t, domain.DispatchPartial, res.Status)
}

func TestDispatch_NoOnlineMeters(t *testing.T) {
	store := zoneWithMeters(0, 2)
	control := &fakeControl{}
	notifier := &fakeNotifier{}

	res, err := newDispatch(store, control, notifier).Dispatch(context.Background(), DispatchRequest{
		ZoneID: "z1", CommandType: domain.CommandShedHeavyLoads,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.MetersTargeted)
	assert.Equal(t, domain.DispatchFailed, res.Status)
	assert.Empty(t, control.sent)
	assert.Len(t, notifier.sent, 1)
}

func TestDispatch_NotificationFailureIgnored(t *testing.T) {
	store := zoneWithMeters(1, 0)
	notifier := &fakeNotifier{err: errBoom}

	res, err := newDispatch(store, &fakeControl{}, notifier).Dispatch(context.Background(), DispatchRequest{
		ZoneID: "z1", CommandType: domain.CommandShedHeavyLoads,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DispatchDelivered, res.Status)
}

func TestDispatch_CancelledCallerStillCompletes(t *testing.T) {
	store := zoneWithMeters(2, 0)
	control := &fakeControl{hang: map[string]bool{"on-0": true, "on-1": true}}
	notifier := &fakeNotifier{}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	res, err := newDispatch(store, control, notifier).Dispatch(ctx, DispatchRequest{
		ZoneID: "z1", CommandType: domain.CommandShedHeavyLoads,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DispatchFailed, res.Status)
	assert.Equal(t, domain.DispatchFailed, store.commands[res.CommandID].Status)
	assert.Len(t, notifier.sent, 1)
}

func TestDispatch_Rejections(t *testing.T) {
	store := zoneWithMeters(1, 0)
	s := newDispatch(store, &fakeControl{}, &fakeNotifier{})

	_, err := s.Dispatch(context.Background(), DispatchRequest{ZoneID: "nowhere", CommandType: domain.CommandRestore})
	var nf domain.NotFoundError
	assert.True(t, errors.As(err, &nf))

	var ve domain.ValidationError
	_, err = s.Dispatch(context.Background(), DispatchRequest{ZoneID: "z1", CommandType: "EXPLODE"})
	assert.True(t, errors.As(err, &ve))
	_, err = s.Dispatch(context.Background(), DispatchRequest{
		ZoneID: "z1", CommandType: domain.CommandRestore, TargetRelays: domain.RelaySet{"HVAC"},
	})
	assert.True(t, errors.As(err, &ve))

	assert.Empty(t, store.commands)
}

func TestListCommands(t *testing.T) {
	store := zoneWithMeters(1, 0)
	s := newDispatch(store, &fakeControl{}, &fakeNotifier{})
	for i := 0; i < 3; i++ {
		_, err := s.Dispatch(context.Background(), DispatchRequest{ZoneID: "z1", CommandType: domain.CommandRestore})
		require.NoError(t, err)
	}

	cmds, err := s.ListCommands(context.Background(), "z1", 0)
	require.NoError(t, err)
	assert.Len(t, cmds, 3)

	cmds, err = s.ListCommands(context.Background(), "z1", 2)
	require.NoError(t, err)
	assert.Len(t, cmds, 2)

	got, err := s.GetCommand(context.Background(), cmds[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DispatchDelivered, got.Status)

	_, err = s.GetCommand(context.Background(), "missing")
	var nf domain.NotFoundError
	assert.True(t, errors.As(err, &nf))
}
