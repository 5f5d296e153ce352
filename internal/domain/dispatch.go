package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

type CommandType string

const (
	CommandShedHeavyLoads CommandType = "SHED_HEAVY_LOADS"
	CommandRestore        CommandType = "RESTORE"
)

func (c CommandType) Valid() bool {
	return c == CommandShedHeavyLoads || c == CommandRestore
}

type Relay string

const (
	RelayPower       Relay = "POWER"
	RelayLightsPlugs Relay = "LIGHTS_PLUGS"
	RelayEssential   Relay = "ESSENTIAL"
)

func (r Relay) Valid() bool {
	switch r {
	case RelayPower, RelayLightsPlugs, RelayEssential:
		return true
	}
	return false
}

// RelaySet is stored as a comma separated TEXT column.
type RelaySet []Relay

func (s RelaySet) Contains(r Relay) bool {
	for _, x := range s {
		if x == r {
			return true
		}
	}
	return false
}

func (s RelaySet) Value() (driver.Value, error) {
	parts := make([]string, len(s))
	for i, r := range s {
		parts[i] = string(r)
	}
	return strings.Join(parts, ","), nil
}

func (s *RelaySet) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("relay set: unsupported type %T", src)
	}
	*s = nil
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			*s = append(*s, Relay(p))
		}
	}
	return nil
}

// EffectiveRelays resolves the circuits a command acts on. Without an
// explicit set, shedding only touches the POWER circuit and a restore
// re-enables every circuit.
func EffectiveRelays(cmd CommandType, target RelaySet) RelaySet {
	if len(target) > 0 {
		return target
	}
	if cmd == CommandShedHeavyLoads {
		return RelaySet{RelayPower}
	}
	return RelaySet{RelayPower, RelayLightsPlugs, RelayEssential}
}

type DispatchStatus string

const (
	DispatchPending   DispatchStatus = "PENDING"
	DispatchDelivered DispatchStatus = "DELIVERED"
	DispatchPartial   DispatchStatus = "PARTIAL"
	DispatchFailed    DispatchStatus = "FAILED"
)

// DeriveDispatchStatus maps delivery counts to the final command status.
func DeriveDispatchStatus(targeted, delivered int) DispatchStatus {
	switch {
	case delivered == 0:
		return DispatchFailed
	case delivered == targeted:
		return DispatchDelivered
	default:
		return DispatchPartial
	}
}

type DispatchCommand struct {
	ID              string         `db:"id" json:"id"`
	ZoneID          string         `db:"zone_id" json:"zone_id"`
	CommandType     CommandType    `db:"command_type" json:"command_type"`
	TargetRelays    RelaySet       `db:"target_relays" json:"target_relays"`
	InitiatedBy     string         `db:"initiated_by" json:"initiated_by"`
	MetersTargeted  int            `db:"meters_targeted" json:"meters_targeted"`
	MetersDelivered int            `db:"meters_delivered" json:"meters_delivered"`
	Status          DispatchStatus `db:"status" json:"status"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	CompletedAt     *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
}

// ControlMessage is what a meter receives for one dispatch.
type ControlMessage struct {
	CommandID   string      `json:"command_id"`
	MeterID     string      `json:"meter_id"`
	CommandType CommandType `json:"command_type"`
	Relays      RelaySet    `json:"relays"`
	IssuedAt    time.Time   `json:"issued_at"`
}

// ControlAck is the meter's acknowledgement of a ControlMessage.
type ControlAck struct {
	CommandID string `json:"command_id"`
	MeterID   string `json:"meter_id"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

type DispatchResult struct {
	CommandID       string         `json:"commandId"`
	MetersTargeted  int            `json:"metersTargeted"`
	MetersDelivered int            `json:"metersDelivered"`
	Status          DispatchStatus `json:"status"`
}

type ZoneNotification struct {
	ZoneID    string    `json:"zone_id"`
	Event     string    `json:"event"`
	Message   string    `json:"message"`
	CommandID string    `json:"command_id"`
	SentAt    time.Time `json:"sent_at"`
}

const (
	EventLoadShed     = "LOAD_SHED"
	EventLoadRestored = "LOAD_RESTORED"
)
