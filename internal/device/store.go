package device

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ecosync/core/internal/infrastructure/logging"
	"github.com/ecosync/core/internal/protocol"
)

const (
	// eventBuffer sizes the internal notification queue; subscriberBuffer
	// sizes each subscriber channel.
	eventBuffer      = 256
	subscriberBuffer = 64
)

// deviceState is the mutable record behind one device. Guarded by the
// store mutex.
type deviceState struct {
	id       ID
	identity *Identity
	state    protocol.DeviceState
	hasState bool

	sensors map[string]float64
	// notified tracks the last value published per sensor, the reference
	// point for the deadband comparison.
	notified map[string]float64
	flags    map[string]bool

	params     map[string]Parameter
	paramOrder []string

	schedules map[protocol.ScheduleType]*protocol.Schedule
	alerts    []AlertEvent

	lastSeen time.Time
}

// Store is the canonical device state store.
//
// Thread safety: all methods are safe for concurrent use. Events are
// dispatched by a single notifier goroutine, so each subscriber observes
// changes in publication order.
type Store struct {
	deadband float64
	log      *logging.Logger
	now      func() time.Time

	mu      sync.RWMutex
	devices map[ID]*deviceState
	subs    map[string]chan Event
	meter   *FuelMeter
	closed  bool

	events chan Event
	done   chan struct{}
}

// NewStore returns a running store. Deadband is the minimum float sensor
// delta published to subscribers.
func NewStore(deadband float64, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Store{
		deadband: deadband,
		log:      logger.With("component", "store"),
		now:      time.Now,
		devices:  make(map[ID]*deviceState),
		subs:     make(map[string]chan Event),
		meter:    NewFuelMeter(),
		events:   make(chan Event, eventBuffer),
		done:     make(chan struct{}),
	}
	go s.notify()
	return s
}

// Close stops event dispatch and closes all subscriber channels.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.events)
	<-s.done
	return nil
}

// notify fans events out to subscribers. A slow subscriber loses events
// rather than stalling the bus poller.
func (s *Store) notify() {
	defer close(s.done)
	for ev := range s.events {
		s.mu.RLock()
		for id, ch := range s.subs {
			select {
			case ch <- ev:
			default:
				s.log.Warn("subscriber lagging, event dropped",
					"subscriber", id, "event", ev.Type)
			}
		}
		s.mu.RUnlock()
	}

	s.mu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()
}

// publish queues an event for dispatch. Callers hold the store lock; the
// buffered channel keeps this non-blocking in all but pathological cases.
func (s *Store) publish(ev Event) {
	if s.closed {
		return
	}
	ev.Time = s.now()
	select {
	case s.events <- ev:
	default:
		s.log.Warn("event queue full, event dropped", "event", ev.Type)
	}
}

// Subscribe registers an event listener and returns its ID and channel.
// The channel closes on Unsubscribe or store Close.
func (s *Store) Subscribe() (string, <-chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan Event, subscriberBuffer)
	if s.closed {
		close(ch)
		return id, ch
	}
	s.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (s *Store) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

// Meter returns the host-side fuel meter.
func (s *Store) Meter() *FuelMeter { return s.meter }

// get returns the device record, creating it (and publishing
// EventDeviceAdded) on first sight. Callers hold the write lock.
func (s *Store) get(id ID) *deviceState {
	d, ok := s.devices[id]
	if !ok {
		d = &deviceState{
			id:        id,
			sensors:   make(map[string]float64),
			notified:  make(map[string]float64),
			flags:     make(map[string]bool),
			params:    make(map[string]Parameter),
			schedules: make(map[protocol.ScheduleType]*protocol.Schedule),
		}
		s.devices[id] = d
		s.publish(Event{Type: EventDeviceAdded, Device: id})
		s.log.Info("device added", "device", id.String())
	}
	d.lastSeen = s.now()
	return d
}

// setSensor stores the value and publishes it when it has moved at least
// the deadband from the last published value.
func (s *Store) setSensor(d *deviceState, name string, value float64) {
	d.sensors[name] = value
	last, seen := d.notified[name]
	if seen && math.Abs(value-last) < s.deadband {
		return
	}
	d.notified[name] = value
	s.publish(Event{Type: EventSensorChanged, Device: d.id, Name: name, Value: value})
}

func (s *Store) setFlag(d *deviceState, name string, value bool) {
	old, seen := d.flags[name]
	d.flags[name] = value
	if seen && old == value {
		return
	}
	s.publish(Event{Type: EventFlagChanged, Device: d.id, Name: name, Value: value})
}

func (s *Store) setState(d *deviceState, state protocol.DeviceState) {
	if d.hasState && d.state == state {
		return
	}
	d.state = state
	d.hasState = true
	s.publish(Event{Type: EventStateChanged, Device: d.id, Value: state.String()})
}

// ApplySensorSnapshot folds a full telemetry block into the store,
// creating the controller and any newly reported sub-devices.
func (s *Store) ApplySensorSnapshot(snap *protocol.SensorSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.get(Controller)
	s.setState(c, snap.State)
	s.setSensor(c, "heating_temp", snap.HeatingTemp)
	s.setSensor(c, "water_heater_temp", snap.WaterHeaterTemp)
	s.setSensor(c, "exhaust_temp", snap.ExhaustTemp)
	s.setSensor(c, "outside_temp", snap.OutsideTemp)
	s.setSensor(c, "return_temp", snap.ReturnTemp)
	s.setSensor(c, "feeder_temp", snap.FeederTemp)
	s.setSensor(c, "heating_target", float64(snap.HeatingTarget))
	s.setSensor(c, "water_heater_target", float64(snap.WaterHeaterTarget))
	s.setSensor(c, "fan_power", snap.FanPower)
	s.setSensor(c, "load", float64(snap.LoadPercent))
	s.setSensor(c, "fuel_level", snap.FuelLevel)
	s.setSensor(c, "fuel_consumption", snap.FuelConsumption)
	s.setSensor(c, "boiler_power", snap.BoilerPower)
	s.setSensor(c, "fuel_burned", s.meter.Total())

	s.setFlag(c, "heating_pump", snap.HeatingPump)
	s.setFlag(c, "water_heater_pump", snap.WaterHeaterPump)
	s.setFlag(c, "circulation_pump", snap.CirculationPump)
	s.setFlag(c, "fan", snap.Fan)
	s.setFlag(c, "feeder", snap.Feeder)
	s.setFlag(c, "lighter", snap.Lighter)

	if c.identity == nil {
		c.identity = &Identity{}
	}
	c.identity.Modules = moduleNames(snap.Modules)

	for i, m := range snap.Mixers {
		d := s.get(MixerID(i + 1))
		s.setSensor(d, "mixer_temp", m.Temp)
		s.setSensor(d, "mixer_target", float64(m.TargetTemp))
		s.setFlag(d, "pump", m.Pump)
	}
	for i, t := range snap.Thermostats {
		d := s.get(ThermostatID(i + 1))
		s.setSensor(d, "current_temp", t.Temp)
		s.setSensor(d, "target_temp", t.TargetTemp)
		s.setFlag(d, "contacts", t.ContactsClosed)
		s.setFlag(d, "schedule", t.ScheduleEnabled)
	}
}

// ApplyRegulatorSnapshot folds an unsolicited regulator broadcast into
// the controller record.
func (s *Store) ApplyRegulatorSnapshot(snap *protocol.RegulatorSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.get(Controller)
	s.setState(c, snap.State)
	s.setSensor(c, "heating_temp", snap.HeatingTemp)
	s.setSensor(c, "water_heater_temp", snap.WaterHeaterTemp)
	s.setSensor(c, "outside_temp", snap.OutsideTemp)
	s.setSensor(c, "heating_target", float64(snap.HeatingTarget))
	s.setSensor(c, "fuel_level", snap.FuelLevel)
}

// SetIdentity records the controller's UID and product name.
func (s *Store) SetIdentity(ident *protocol.DeviceIdentity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.get(Controller)
	if c.identity == nil {
		c.identity = &Identity{}
	}
	c.identity.UID = ident.UID
	c.identity.Product = ident.Product
}

// SetVersions records module firmware versions on the controller.
func (s *Store) SetVersions(versions []protocol.ModuleVersion) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.get(Controller)
	if c.identity == nil {
		c.identity = &Identity{}
	}
	c.identity.Versions = versions
}

// SetParameters replaces a device's parameter set, publishing changes for
// values that differ from what was previously known.
func (s *Store) SetParameters(id ID, params []Parameter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.get(id)
	order := make([]string, 0, len(params))
	for _, p := range params {
		old, seen := d.params[p.Name]
		d.params[p.Name] = p
		order = append(order, p.Name)
		if !seen || old.Value != p.Value {
			s.publish(Event{Type: EventParameterChanged, Device: id, Name: p.Name, Value: p.Value})
		}
	}
	d.paramOrder = order
}

// SetParameterValue updates a single known parameter after a confirmed
// device write.
func (s *Store) SetParameterValue(id ID, name string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}
	p, ok := d.params[name]
	if !ok {
		return ErrParameterNotFound
	}
	if p.Value != value {
		p.Value = value
		d.params[name] = p
		s.publish(Event{Type: EventParameterChanged, Device: id, Name: name, Value: value})
	}
	return nil
}

// Parameter returns one parameter of a device.
func (s *Store) Parameter(id ID, name string) (Parameter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[id]
	if !ok {
		return Parameter{}, ErrDeviceNotFound
	}
	p, ok := d.params[name]
	if !ok {
		return Parameter{}, ErrParameterNotFound
	}
	return p, nil
}

// SetSchedule stores a schedule on the controller.
func (s *Store) SetSchedule(sched *protocol.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.get(Controller)
	cp := *sched
	c.schedules[sched.Type] = &cp
	s.publish(Event{Type: EventScheduleChanged, Device: Controller, Name: sched.Type.String()})
}

// Schedule returns a copy of a stored schedule.
func (s *Store) Schedule(typ protocol.ScheduleType) (*protocol.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.devices[Controller]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	sched, ok := c.schedules[typ]
	if !ok {
		return nil, ErrScheduleNotFound
	}
	cp := *sched
	return &cp, nil
}

// ApplyAlerts reconciles the controller's alert list against the stored
// one, publishing raise and clear events for the differences.
func (s *Store) ApplyAlerts(alerts []protocol.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.get(Controller)

	type key struct {
		code  int
		start time.Time
	}
	known := make(map[key]*AlertEvent, len(c.alerts))
	for i := range c.alerts {
		a := &c.alerts[i]
		known[key{a.Code, a.StartedAt}] = a
	}

	for _, a := range alerts {
		k := key{a.Code, a.From}
		if existing, ok := known[k]; ok {
			if existing.Active() && !a.Ongoing() {
				existing.EndedAt = a.To
				s.publish(Event{Type: EventAlertCleared, Device: Controller,
					Name: existing.Name, Value: *existing})
			}
			continue
		}
		ev := AlertEvent{
			Code:      a.Code,
			Name:      protocol.AlertName(a.Code),
			StartedAt: a.From,
			EndedAt:   a.To,
		}
		c.alerts = append(c.alerts, ev)
		if ev.Active() {
			s.publish(Event{Type: EventAlertRaised, Device: Controller,
				Name: ev.Name, Value: ev})
		}
	}
}

// SetConnected publishes link state changes as events attached to the
// controller.
func (s *Store) SetConnected(up bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(Event{Type: EventConnection, Device: Controller, Value: up})
}

// SyncDevices removes devices that a completed discovery pass no longer
// reports. The controller itself is never removed.
func (s *Store) SyncDevices(present []ID) {
	keep := make(map[ID]bool, len(present)+1)
	keep[Controller] = true
	for _, id := range present {
		keep[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.devices {
		if !keep[id] {
			delete(s.devices, id)
			s.publish(Event{Type: EventDeviceRemoved, Device: id})
			s.log.Info("device removed", "device", id.String())
		}
	}
}

// Device returns a snapshot of one device.
func (s *Store) Device(id ID) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[id]
	if !ok {
		return Snapshot{}, ErrDeviceNotFound
	}
	return s.snapshot(d), nil
}

// Devices returns snapshots of all known devices, controller first, then
// mixers and thermostats by index.
func (s *Store) Devices() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Snapshot, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, s.snapshot(d))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID.Kind != out[j].ID.Kind {
			return kindRank(out[i].ID.Kind) < kindRank(out[j].ID.Kind)
		}
		return out[i].ID.Index < out[j].ID.Index
	})
	return out
}

func kindRank(k Kind) int {
	switch k {
	case KindController:
		return 0
	case KindMixer:
		return 1
	default:
		return 2
	}
}

// snapshot deep-copies a device record. Callers hold at least the read
// lock.
func (s *Store) snapshot(d *deviceState) Snapshot {
	snap := Snapshot{
		ID:       d.id,
		LastSeen: d.lastSeen,
		Sensors:  make(map[string]float64, len(d.sensors)),
		Flags:    make(map[string]bool, len(d.flags)),
	}
	if d.hasState {
		snap.State = d.state
		snap.StateName = d.state.String()
	}
	if d.identity != nil {
		ident := *d.identity
		snap.Identity = &ident
	}
	for k, v := range d.sensors {
		snap.Sensors[k] = v
	}
	for k, v := range d.flags {
		snap.Flags[k] = v
	}
	if len(d.paramOrder) > 0 {
		snap.Parameters = make([]Parameter, 0, len(d.paramOrder))
		for _, name := range d.paramOrder {
			if p, ok := d.params[name]; ok {
				snap.Parameters = append(snap.Parameters, p)
			}
		}
	}
	if len(d.alerts) > 0 {
		snap.Alerts = append([]AlertEvent(nil), d.alerts...)
	}
	return snap
}

func moduleNames(set protocol.ModuleSet) []string {
	mods := set.Modules()
	names := make([]string, len(mods))
	for i, m := range mods {
		names[i] = m.String()
	}
	return names
}
