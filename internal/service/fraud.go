package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/domain"
)

// FraudDetector compares two independent views of a meter's consumption.
//
// The reference index is the apparent energy seen by the metrology channels
// (voltage x current). Modeled consumption is the active power the meter
// reports. An honest meter differs from its reference only by the load's
// power factor; a tampered power register drifts well below it.
type FraudDetector struct {
	samples    TelemetryStore
	signatures SignatureInventory
	window     time.Duration
	threshold  float64
	now        func() time.Time
}

func NewFraudDetector(samples TelemetryStore, signatures SignatureInventory, window time.Duration, threshold float64) *FraudDetector {
	if window <= 0 {
		window = time.Hour
	}
	if threshold <= 0 {
		threshold = 0.15
	}
	return &FraudDetector{samples: samples, signatures: signatures, window: window, threshold: threshold, now: time.Now}
}

type Assessment struct {
	MeterID            string  `json:"meterId"`
	CurrentPowerW      float64 `json:"currentPowerW"`
	Samples            int     `json:"samples"`
	ReferenceIndex     float64 `json:"referenceIndex"`
	ModeledConsumption float64 `json:"modeledConsumption"`
	Divergence         float64 `json:"divergence"`
	Suspected          bool    `json:"suspected"`
}

// Assess evaluates grid samples in the trailing window. Samples missing any
// of power, voltage or current do not qualify; fewer than two qualifying
// samples never flag.
func (d *FraudDetector) Assess(ctx context.Context, meterID string, currentPower float64) (Assessment, error) {
	a := Assessment{MeterID: meterID, CurrentPowerW: currentPower}

	samples, err := d.samples.WindowSamples(ctx, meterID, domain.SourceGrid, d.now().Add(-d.window))
	if err != nil {
		return a, fmt.Errorf("load window for %s: %w", meterID, err)
	}

	for _, s := range samples {
		if s.PowerW == nil || s.Voltage == nil || s.Current == nil {
			continue
		}
		a.Samples++
		a.ReferenceIndex += *s.Voltage * *s.Current
		a.ModeledConsumption += *s.PowerW
	}
	if a.Samples < 2 || a.ReferenceIndex <= 0 {
		return a, nil
	}

	a.Divergence = (a.ReferenceIndex - a.ModeledConsumption) / a.ReferenceIndex
	a.Suspected = a.Divergence > d.threshold
	return a, nil
}

func (d *FraudDetector) Evaluate(ctx context.Context, meterID string, currentPower float64) (bool, error) {
	a, err := d.Assess(ctx, meterID, currentPower)
	return a.Suspected, err
}

type SignatureCheck struct {
	MeterID        string  `json:"meterId"`
	DeviceSumW     float64 `json:"deviceSumW"`
	MeterPowerW    float64 `json:"meterPowerW"`
	UnderReporting bool    `json:"underReporting"`
}

// CheckDeviceSignatures compares the power of the meter's active device
// signatures with its latest reading. A reading more than threshold below
// the device sum marks an under-reporting register.
func (d *FraudDetector) CheckDeviceSignatures(ctx context.Context, meterID string) (SignatureCheck, error) {
	c := SignatureCheck{MeterID: meterID}

	sigs, err := d.signatures.ActiveSignatures(ctx, meterID)
	if err != nil {
		return c, fmt.Errorf("load signatures for %s: %w", meterID, err)
	}
	for _, s := range sigs {
		c.DeviceSumW += s.PowerW
	}
	if c.DeviceSumW <= 0 {
		return c, nil
	}

	latest, err := d.samples.LatestPowerSample(ctx, meterID)
	if err != nil {
		return c, fmt.Errorf("load latest reading for %s: %w", meterID, err)
	}
	if latest == nil {
		return c, nil
	}
	c.MeterPowerW = *latest.PowerW
	c.UnderReporting = (c.DeviceSumW-c.MeterPowerW)/c.DeviceSumW > d.threshold
	return c, nil
}
