package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/domain"
)

func newTelemetry(store *memStore) *TelemetryService {
	registry := NewRegistry(store, nil)
	s := NewTelemetryService(registry, store, newDetector(store), store, 0, nil, nop)
	s.now = fixedClock(now)
	return s
}

func TestIngest_Validation(t *testing.T) {
	store := newMemStore()
	store.addMeter("m1", "z1", domain.MeterOffline)
	s := newTelemetry(store)

	tests := []struct {
		name  string
		in    TelemetryInput
		field string
	}{
		{"malformed id", TelemetryInput{MeterID: "bad id!", EnergySource: domain.SourceGrid}, "meterId"},
		{"empty id", TelemetryInput{EnergySource: domain.SourceGrid}, "meterId"},
		{"negative power", TelemetryInput{MeterID: "m1", Power: ptr(-1), EnergySource: domain.SourceGrid}, "power"},
		{"negative voltage", TelemetryInput{MeterID: "m1", Voltage: ptr(-230), EnergySource: domain.SourceGrid}, "voltage"},
		{"unknown source", TelemetryInput{MeterID: "m1", EnergySource: "WIND"}, "energySource"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Ingest(context.Background(), tt.in)
			var ve domain.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	assert.Empty(t, store.samples)
	assert.Equal(t, domain.MeterOffline, store.meters["m1"].Status)
}

func TestIngest_UnknownMeter(t *testing.T) {
	store := newMemStore()
	_, err := newTelemetry(store).Ingest(context.Background(), TelemetryInput{MeterID: "ghost", EnergySource: domain.SourceGrid})

	var nf domain.NotFoundError
	assert.True(t, errors.As(err, &nf))
	assert.Empty(t, store.samples)
}

func TestIngest_PersistsAndMarksOnline(t *testing.T) {
	store := newMemStore()
	store.addMeter("m1", "z1", domain.MeterOffline)

	res, err := newTelemetry(store).Ingest(context.Background(), TelemetryInput{
		MeterID: "m1", Voltage: ptr(230), Current: ptr(1), Power: ptr(220), EnergySource: domain.SourceGrid,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.DataID)
	assert.False(t, res.FraudDetected)

	require.Len(t, store.samples, 1)
	assert.Equal(t, now, store.samples[0].Timestamp)
	m := store.meters["m1"]
	assert.Equal(t, domain.MeterOnline, m.Status)
	require.NotNil(t, m.LastSeen)
	assert.Equal(t, now, *m.LastSeen)
}

func TestIngest_FraudRaisesIncident(t *testing.T) {
	store := newMemStore()
	store.addMeter("m1", "z1", domain.MeterOnline)
	for i, p := range []float64{100, 105} {
		store.samples = append(store.samples, gridSample("m1", time.Duration(2-i)*time.Minute, p, p*0.5, 1))
	}

	res, err := newTelemetry(store).Ingest(context.Background(), TelemetryInput{
		MeterID: "m1", Voltage: ptr(230), Current: ptr(0.43), Power: ptr(49), EnergySource: domain.SourceGrid,
	})
	require.NoError(t, err)
	assert.True(t, res.FraudDetected)
	require.Len(t, store.incidents, 1)
	assert.Equal(t, domain.IncidentSuspectedFraud, store.incidents[0].Classification)
	assert.Equal(t, "home-m1", store.incidents[0].HomeID)
}

func TestIngest_IncidentCooldown(t *testing.T) {
	store := newMemStore()
	store.addMeter("m1", "z1", domain.MeterOnline)
	for i, p := range []float64{100, 105} {
		store.samples = append(store.samples, gridSample("m1", time.Duration(2-i)*time.Minute, p, p*0.5, 1))
	}
	s := newTelemetry(store)
	s.cooldown = time.Hour
	clock := now
	s.now = func() time.Time { return clock }

	low := TelemetryInput{MeterID: "m1", Voltage: ptr(230), Current: ptr(0.43), Power: ptr(49), EnergySource: domain.SourceGrid}
	for i := 0; i < 3; i++ {
		res, err := s.Ingest(context.Background(), low)
		require.NoError(t, err)
		assert.True(t, res.FraudDetected, "sample %d", i+1)
	}
	assert.Len(t, store.incidents, 1)

	clock = now.Add(time.Hour)
	res, err := s.Ingest(context.Background(), low)
	require.NoError(t, err)
	assert.True(t, res.FraudDetected)
	assert.Len(t, store.incidents, 2)
}

func TestIngest_IncidentRetriedAfterFailure(t *testing.T) {
	store := newMemStore()
	store.addMeter("m1", "z1", domain.MeterOnline)
	for i, p := range []float64{100, 105} {
		store.samples = append(store.samples, gridSample("m1", time.Duration(2-i)*time.Minute, p, p*0.5, 1))
	}
	s := newTelemetry(store)
	s.cooldown = time.Hour
	low := TelemetryInput{MeterID: "m1", Voltage: ptr(230), Current: ptr(0.43), Power: ptr(49), EnergySource: domain.SourceGrid}

	store.incidentErr = errBoom
	_, err := s.Ingest(context.Background(), low)
	require.NoError(t, err)

	store.incidentErr = nil
	_, err = s.Ingest(context.Background(), low)
	require.NoError(t, err)
	assert.Len(t, store.incidents, 1)
}

func TestIngest_LivenessFailureKeepsSample(t *testing.T) {
	store := newMemStore()
	store.addMeter("m1", "z1", domain.MeterOffline)
	store.patchErr = errBoom

	res, err := newTelemetry(store).Ingest(context.Background(), TelemetryInput{
		MeterID: "m1", Voltage: ptr(230), Current: ptr(1), Power: ptr(220), EnergySource: domain.SourceGrid,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.DataID)
	require.Len(t, store.samples, 1)
	assert.Equal(t, res.DataID, store.samples[0].ID)
	assert.Equal(t, domain.MeterOffline, store.meters["m1"].Status)
}

func TestIngest_IncidentFailureSwallowed(t *testing.T) {
	store := newMemStore()
	store.addMeter("m1", "z1", domain.MeterOnline)
	store.incidentErr = errBoom
	for i, p := range []float64{100, 105} {
		store.samples = append(store.samples, gridSample("m1", time.Duration(2-i)*time.Minute, p, p*0.5, 1))
	}

	res, err := newTelemetry(store).Ingest(context.Background(), TelemetryInput{
		MeterID: "m1", Voltage: ptr(230), Current: ptr(0.43), Power: ptr(49), EnergySource: domain.SourceGrid,
	})
	require.NoError(t, err)
	assert.True(t, res.FraudDetected)
	assert.Len(t, store.samples, 3)
}

func TestIngest_DetectionSkippedOffGrid(t *testing.T) {
	store := newMemStore()
	store.addMeter("m1", "z1", domain.MeterOnline)
	store.windowErr = errBoom

	res, err := newTelemetry(store).Ingest(context.Background(), TelemetryInput{
		MeterID: "m1", Power: ptr(300), EnergySource: domain.SourceSolar,
	})
	require.NoError(t, err)
	assert.False(t, res.FraudDetected)

	// detector errors are swallowed on the grid path
	res, err = newTelemetry(store).Ingest(context.Background(), TelemetryInput{
		MeterID: "m1", Power: ptr(300), EnergySource: domain.SourceGrid,
	})
	require.NoError(t, err)
	assert.False(t, res.FraudDetected)
	assert.Len(t, store.samples, 2)
}

func TestIngest_InsertFailure(t *testing.T) {
	store := newMemStore()
	store.addMeter("m1", "z1", domain.MeterOffline)
	store.insertErr = errBoom

	_, err := newTelemetry(store).Ingest(context.Background(), TelemetryInput{MeterID: "m1", EnergySource: domain.SourceGrid})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, domain.MeterOffline, store.meters["m1"].Status)
}

func TestFromMQTT(t *testing.T) {
	store := newMemStore()
	store.addMeter("m1", "z1", domain.MeterOffline)
	s := newTelemetry(store)

	err := s.FromMQTT(context.Background(), "energy/telemetry",
		[]byte(`{"meterId":"m1","voltage":230,"current":1.2,"power":270,"energySource":"GRID"}`))
	require.NoError(t, err)
	require.Len(t, store.samples, 1)
	assert.Equal(t, 270.0, *store.samples[0].PowerW)

	assert.Error(t, s.FromMQTT(context.Background(), "energy/telemetry", []byte(`{not json`)))
}

func TestRunSignatureCheck_RaisesUnderReporting(t *testing.T) {
	store := newMemStore()
	store.addMeter("m1", "z1", domain.MeterOnline)
	store.sigs["m1"] = []domain.DeviceSignature{{MeterID: "m1", DeviceName: "heater", PowerW: 2000, IsActive: true}}
	store.samples = append(store.samples, domain.TelemetrySample{MeterID: "m1", Timestamp: now, PowerW: ptr(500), EnergySource: domain.SourceGrid})

	c, err := newTelemetry(store).RunSignatureCheck(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, c.UnderReporting)
	assert.Equal(t, 2000.0, c.DeviceSumW)
	require.Len(t, store.incidents, 1)
	assert.Equal(t, domain.IncidentUnderReporting, store.incidents[0].Classification)
}
