package device

import (
	"fmt"
	"time"

	"github.com/ecosync/core/internal/protocol"
)

// Kind classifies a device on the bus.
type Kind string

const (
	KindController Kind = "controller"
	KindMixer      Kind = "mixer"
	KindThermostat Kind = "thermostat"
)

// ID identifies one device. The controller is always index 0; mixers and
// thermostats are numbered from 1 in controller reporting order.
type ID struct {
	Kind  Kind `json:"kind"`
	Index int  `json:"index"`
}

// Controller is the ID of the boiler controller itself.
var Controller = ID{Kind: KindController}

// MixerID returns the ID of mixer circuit n (1-based).
func MixerID(n int) ID { return ID{Kind: KindMixer, Index: n} }

// ThermostatID returns the ID of room thermostat n (1-based).
func ThermostatID(n int) ID { return ID{Kind: KindThermostat, Index: n} }

func (id ID) String() string {
	if id.Kind == KindController {
		return string(KindController)
	}
	return fmt.Sprintf("%s.%d", id.Kind, id.Index)
}

// ParseID parses the String form back into an ID.
func ParseID(s string) (ID, error) {
	if s == string(KindController) {
		return Controller, nil
	}
	var index int
	if _, err := fmt.Sscanf(s, "mixer.%d", &index); err == nil && index > 0 {
		return MixerID(index), nil
	}
	if _, err := fmt.Sscanf(s, "thermostat.%d", &index); err == nil && index > 0 {
		return ThermostatID(index), nil
	}
	return ID{}, fmt.Errorf("device: invalid id %q", s)
}

// Parameter is one tunable setting with the range the device enforces.
type Parameter struct {
	Index int     `json:"index"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// InRange reports whether v is acceptable for this parameter.
func (p Parameter) InRange(v float64) bool {
	return v >= p.Min && v <= p.Max
}

// Identity is the controller's hardware identity as discovered at
// startup.
type Identity struct {
	UID      string                   `json:"uid"`
	Product  string                   `json:"product"`
	Versions []protocol.ModuleVersion `json:"versions,omitempty"`
	Modules  []string                 `json:"modules,omitempty"`
}

// Snapshot is a copied view of one device, safe to retain and serialise
// after the store moves on.
type Snapshot struct {
	ID         ID                   `json:"id"`
	Identity   *Identity            `json:"identity,omitempty"`
	State      protocol.DeviceState `json:"-"`
	StateName  string               `json:"state,omitempty"`
	Sensors    map[string]float64   `json:"sensors,omitempty"`
	Flags      map[string]bool      `json:"flags,omitempty"`
	Parameters []Parameter          `json:"parameters,omitempty"`
	Alerts     []AlertEvent         `json:"alerts,omitempty"`
	LastSeen   time.Time            `json:"last_seen"`
}

// AlertEvent is a controller fault with resolved name and lifetime.
// EndedAt is the zero time while the fault is active.
type AlertEvent struct {
	Code      int       `json:"code"`
	Name      string    `json:"name"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// Active reports whether the alert has not ended.
func (a AlertEvent) Active() bool { return a.EndedAt.IsZero() }

// EventType classifies store events.
type EventType string

const (
	EventDeviceAdded      EventType = "device_added"
	EventDeviceRemoved    EventType = "device_removed"
	EventSensorChanged    EventType = "sensor_changed"
	EventFlagChanged      EventType = "flag_changed"
	EventStateChanged     EventType = "state_changed"
	EventParameterChanged EventType = "parameter_changed"
	EventScheduleChanged  EventType = "schedule_changed"
	EventAlertRaised      EventType = "alert_raised"
	EventAlertCleared     EventType = "alert_cleared"
	EventConnection       EventType = "connection"
)

// Event is one state change notification. Name identifies the sensor,
// flag or parameter for value events; Value carries the new value, whose
// concrete type depends on the event type.
type Event struct {
	Type   EventType `json:"type"`
	Device ID        `json:"device"`
	Name   string    `json:"name,omitempty"`
	Value  any       `json:"value,omitempty"`
	Time   time.Time `json:"time"`
}
