package domain

import (
	"time"
)

type Zone struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

type MeterStatus string

const (
	MeterOnline  MeterStatus = "ONLINE"
	MeterOffline MeterStatus = "OFFLINE"
)

type Meter struct {
	ID       string      `db:"id" json:"id"`
	HomeID   string      `db:"home_id" json:"home_id"`
	ZoneID   string      `db:"zone_id" json:"zone_id"`
	Status   MeterStatus `db:"status" json:"status"`
	LastSeen *time.Time  `db:"last_seen" json:"last_seen,omitempty"`
}

type EnergySource string

const (
	SourceGrid    EnergySource = "GRID"
	SourceSolar   EnergySource = "SOLAR"
	SourceBattery EnergySource = "BATTERY"
)

func (s EnergySource) Valid() bool {
	switch s {
	case SourceGrid, SourceSolar, SourceBattery:
		return true
	}
	return false
}

// TelemetrySample is append-only. Nil measurements were not reported.
type TelemetrySample struct {
	ID           string       `db:"id" json:"id"`
	MeterID      string       `db:"meter_id" json:"meter_id"`
	Timestamp    time.Time    `db:"ts" json:"timestamp"`
	Voltage      *float64     `db:"voltage" json:"voltage,omitempty"`
	Current      *float64     `db:"current" json:"current,omitempty"`
	PowerW       *float64     `db:"power_w" json:"power_w,omitempty"`
	EnergySource EnergySource `db:"energy_source" json:"energy_source"`
}

type DeviceSignature struct {
	ID          int64     `db:"id" json:"id"`
	MeterID     string    `db:"meter_id" json:"meter_id"`
	DeviceName  string    `db:"device_name" json:"device_name"`
	PowerW      float64   `db:"power_w" json:"power_w"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	ActivatedAt time.Time `db:"activated_at" json:"activated_at"`
}

// InjectedEnergyReading is an upstream (feeder side) measurement of energy
// delivered into a zone, independent of meter telemetry.
type InjectedEnergyReading struct {
	ID         int64     `db:"id" json:"id"`
	ZoneID     string    `db:"zone_id" json:"zone_id"`
	MeasuredAt time.Time `db:"measured_at" json:"measured_at"`
	EnergyKWh  float64   `db:"energy_kwh" json:"energy_kwh"`
	Source     string    `db:"source" json:"source"`
}

type Incident struct {
	MeterID        string `json:"meter_id"`
	HomeID         string `json:"home_id"`
	Description    string `json:"description"`
	Classification string `json:"classification"`
}

const (
	IncidentSuspectedFraud = "SUSPECTED_FRAUD"
	IncidentUnderReporting = "UNDER_REPORTING"
)

// AlertSeverity grades an incident for the alerting desk.
func (i Incident) AlertSeverity() string {
	switch i.Classification {
	case IncidentSuspectedFraud:
		return "high"
	case IncidentUnderReporting:
		return "medium"
	default:
		return "low"
	}
}

type AuditTicket struct {
	ZoneID           string   `json:"zone_id"`
	Severity         Severity `json:"severity"`
	EstimatedLossKWh float64  `json:"estimated_loss_kwh"`
}
