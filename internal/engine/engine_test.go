package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ecosync/core/internal/device"
	"github.com/ecosync/core/internal/protocol"
)

// controllerSim answers requests the way a live ecoMAX would, tracking
// what it received so tests can assert on bus traffic.
type controllerSim struct {
	mu sync.Mutex

	snapshot     protocol.SensorSnapshot
	params       []protocol.ParameterValue
	mixerParams  []protocol.ParameterValue
	thermParams  []protocol.ParameterValue
	alerts       []protocol.Alert
	acceptWrites bool

	received []*protocol.Frame
}

func newControllerSim() *controllerSim {
	return &controllerSim{
		snapshot: protocol.SensorSnapshot{
			State:           protocol.StateWorking,
			HeatingTemp:     60,
			FuelConsumption: 3.6,
			Modules:         protocol.ModuleSet{protocol.ModuleA: true},
			Mixers:          []protocol.MixerReading{{Temp: 35, TargetTemp: 40}},
			Thermostats:     []protocol.ThermostatReading{{Temp: 21, TargetTemp: 22}},
		},
		params: []protocol.ParameterValue{
			{Index: 29, Value: 60, Min: 40, Max: 85},
			{Index: 40, Value: 50, Min: 30, Max: 70},
		},
		mixerParams: []protocol.ParameterValue{
			{Index: 0, Value: 40, Min: 20, Max: 55},
		},
		thermParams: []protocol.ParameterValue{
			{Index: 4, Value: 22, Min: 10, Max: 30},
		},
		acceptWrites: true,
	}
}

func (s *controllerSim) respond(f *protocol.Frame) *protocol.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, f)

	var payload []byte
	switch f.Type {
	case protocol.TypeCheckDevice:
		payload = []byte{1}
	case protocol.TypeUID:
		payload = protocol.EncodeDeviceIdentity(&protocol.DeviceIdentity{
			UID: "SIM0001", Product: "ecoMAX 850P2-C",
		})
	case protocol.TypeProgramVersion:
		payload = protocol.EncodeProgramVersionResponse([]protocol.ModuleVersion{
			{Module: protocol.ModuleA, Major: 1, Minor: 13, Patch: 6},
		})
	case protocol.TypeSensorData:
		payload = protocol.EncodeSensorSnapshot(&s.snapshot)
	case protocol.TypeParameters:
		payload = protocol.EncodeParametersResponse(int(f.Payload[0]), s.params)
	case protocol.TypeMixerParameters:
		payload = protocol.EncodeIndexedParametersResponse(int(f.Payload[0]), 0, s.mixerParams)
	case protocol.TypeThermostatParameters:
		payload = protocol.EncodeIndexedParametersResponse(int(f.Payload[0]), 0, s.thermParams)
	case protocol.TypeSchedules:
		payload = protocol.EncodeSchedule(&protocol.Schedule{
			Type: protocol.ScheduleType(f.Payload[0]), Enabled: true,
		})
	case protocol.TypeAlerts:
		payload = protocol.EncodeAlertsResponse(s.alerts)
	case protocol.TypeSetParameter:
		payload = protocol.EncodeWriteResponse(int(f.Payload[0]), s.acceptWrites)
	case protocol.TypeSetMixerParameter, protocol.TypeSetThermostatParameter:
		payload = protocol.EncodeWriteResponse(int(f.Payload[1]), s.acceptWrites)
	case protocol.TypeSetSchedule, protocol.TypeControl:
		payload = protocol.EncodeWriteResponse(0, s.acceptWrites)
	}

	return &protocol.Frame{
		Recipient: protocol.AddressEcoNet,
		Sender:    protocol.AddressEcoMax,
		Version:   protocol.ProtocolVersion,
		Type:      f.Type.ResponseType(),
		Payload:   payload,
	}
}

// countReceived returns how many frames of the given type the sim saw.
func (s *controllerSim) countReceived(typ protocol.FrameType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.received {
		if f.Type == typ {
			n++
		}
	}
	return n
}

// fakeLink hands every request straight to the sim.
type fakeLink struct {
	sim       *controllerSim
	connected bool

	// beforeRespond, when set, runs before the sim answers. Used to
	// observe write concurrency.
	beforeRespond func(f *protocol.Frame)
}

func (l *fakeLink) Connected() bool { return l.connected }

func (l *fakeLink) Request(ctx context.Context, f *protocol.Frame) (*protocol.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.beforeRespond != nil {
		l.beforeRespond(f)
	}
	return l.sim.respond(f), nil
}

// newTestEngine wires an engine to a simulated controller with poll
// loops effectively disabled; tests drive exchanges directly.
func newTestEngine(t *testing.T, sim *controllerSim) (*Engine, *device.Store) {
	t.Helper()

	store := device.NewStore(0.1, nil)
	t.Cleanup(func() { store.Close() })

	e, err := New(Deps{
		Link:              &fakeLink{sim: sim, connected: true},
		Store:             store,
		TelemetryInterval: time.Hour,
		ParameterInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e, store
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDiscover_PopulatesStore(t *testing.T) {
	sim := newControllerSim()
	sim.alerts = []protocol.Alert{
		{Code: 7, From: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	e, store := newTestEngine(t, sim)

	e.discover(context.Background())

	devices := store.Devices()
	if len(devices) != 3 {
		t.Fatalf("device count = %d, want 3 (controller, mixer, thermostat)", len(devices))
	}

	c, err := store.Device(device.Controller)
	if err != nil {
		t.Fatalf("Device(controller) error: %v", err)
	}
	if c.Identity == nil || c.Identity.UID != "SIM0001" {
		t.Errorf("identity = %+v, want UID SIM0001", c.Identity)
	}
	if len(c.Identity.Versions) != 1 || c.Identity.Versions[0].Version() != "1.13.6" {
		t.Errorf("versions = %+v", c.Identity.Versions)
	}
	if c.StateName != "working" {
		t.Errorf("state = %q, want working", c.StateName)
	}

	p, err := store.Parameter(device.Controller, "heating_target_temp")
	if err != nil {
		t.Fatalf("Parameter() error: %v", err)
	}
	if p.Value != 60 || p.Min != 40 || p.Max != 85 {
		t.Errorf("heating_target_temp = %+v", p)
	}

	if _, err := store.Parameter(device.MixerID(1), "mixer_target_temp"); err != nil {
		t.Errorf("mixer parameter missing: %v", err)
	}
	if _, err := store.Parameter(device.ThermostatID(1), "day_target_temp"); err != nil {
		t.Errorf("thermostat parameter missing: %v", err)
	}

	for _, typ := range []protocol.ScheduleType{protocol.ScheduleHeating, protocol.ScheduleWaterHeater} {
		if _, err := store.Schedule(typ); err != nil {
			t.Errorf("schedule %s missing: %v", typ, err)
		}
	}

	if len(c.Alerts) != 1 || c.Alerts[0].Name != "no_fuel" {
		t.Errorf("alerts = %+v, want one no_fuel", c.Alerts)
	}
}

func TestDiscover_Idempotent(t *testing.T) {
	sim := newControllerSim()
	e, store := newTestEngine(t, sim)

	e.discover(context.Background())
	first := store.Devices()

	e.discover(context.Background())
	second := store.Devices()

	if len(first) != len(second) {
		t.Fatalf("device count changed across discoveries: %d then %d", len(first), len(second))
	}
}

func TestDiscover_RemovesVanishedSubDevices(t *testing.T) {
	sim := newControllerSim()
	e, store := newTestEngine(t, sim)

	e.discover(context.Background())
	if _, err := store.Device(device.ThermostatID(1)); err != nil {
		t.Fatalf("thermostat missing after first discovery: %v", err)
	}

	// Thermostat unplugged before the next discovery.
	sim.mu.Lock()
	sim.snapshot.Thermostats = nil
	sim.mu.Unlock()

	e.discover(context.Background())

	if _, err := store.Device(device.ThermostatID(1)); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("Device(thermostat.1) = %v, want ErrDeviceNotFound", err)
	}
	if _, err := store.Device(device.MixerID(1)); err != nil {
		t.Errorf("mixer must survive: %v", err)
	}
}

func TestPolling_RefreshesTelemetry(t *testing.T) {
	sim := newControllerSim()

	store := device.NewStore(0.1, nil)
	t.Cleanup(func() { store.Close() })

	e, err := New(Deps{
		Link:              &fakeLink{sim: sim, connected: true},
		Store:             store,
		TelemetryInterval: 5 * time.Millisecond,
		ParameterInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { e.Close() })

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	waitFor(t, "several telemetry polls", func() bool {
		return sim.countReceived(protocol.TypeSensorData) >= 3
	})

	sim.mu.Lock()
	sim.snapshot.HeatingTemp = 72
	sim.mu.Unlock()

	waitFor(t, "updated telemetry in store", func() bool {
		c, err := store.Device(device.Controller)
		return err == nil && c.Sensors["heating_temp"] == 72
	})
}

func TestMeterAccrual(t *testing.T) {
	sim := newControllerSim()
	sim.snapshot.FuelConsumption = 3600 // kg/h, so 1 kg/s
	e, store := newTestEngine(t, sim)

	// Drive applySnapshot with a controlled clock.
	base := time.Now()
	times := []time.Time{base, base.Add(2 * time.Second), base.Add(3 * time.Second)}
	i := 0
	e.now = func() time.Time { ts := times[i]; i++; return ts }

	for range times {
		e.applySnapshot(&sim.snapshot)
	}

	// First sample anchors, the next two accrue 2s and 1s at 1 kg/s.
	if got := store.Meter().Total(); got < 2.99 || got > 3.01 {
		t.Errorf("meter total = %v kg, want 3", got)
	}

	c, _ := store.Device(device.Controller)
	if c.Sensors["fuel_burned"] != store.Meter().Total() {
		t.Errorf("fuel_burned sensor = %v, want meter total %v",
			c.Sensors["fuel_burned"], store.Meter().Total())
	}
}

func TestWriteParameter_Accepted(t *testing.T) {
	sim := newControllerSim()
	e, store := newTestEngine(t, sim)
	e.discover(context.Background())

	if err := e.WriteParameter(context.Background(), device.Controller, "heating_target_temp", 65); err != nil {
		t.Fatalf("WriteParameter() error: %v", err)
	}

	p, _ := store.Parameter(device.Controller, "heating_target_temp")
	if p.Value != 65 {
		t.Errorf("store value = %v, want 65", p.Value)
	}
	if got := sim.countReceived(protocol.TypeSetParameter); got != 1 {
		t.Errorf("set_parameter requests = %d, want 1", got)
	}
}

func TestWriteParameter_OutOfRangeNeverTransmits(t *testing.T) {
	sim := newControllerSim()
	e, store := newTestEngine(t, sim)
	e.discover(context.Background())

	err := e.WriteParameter(context.Background(), device.Controller, "heating_target_temp", 90)
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("WriteParameter() error = %v, want ErrOutOfRange", err)
	}

	if got := sim.countReceived(protocol.TypeSetParameter); got != 0 {
		t.Errorf("set_parameter requests = %d, want 0 for local rejection", got)
	}

	p, _ := store.Parameter(device.Controller, "heating_target_temp")
	if p.Value != 60 {
		t.Errorf("store value = %v, want unchanged 60", p.Value)
	}
}

func TestWriteParameter_DeviceRejection(t *testing.T) {
	sim := newControllerSim()
	e, store := newTestEngine(t, sim)
	e.discover(context.Background())

	sim.mu.Lock()
	sim.acceptWrites = false
	sim.mu.Unlock()

	err := e.WriteParameter(context.Background(), device.Controller, "heating_target_temp", 65)
	if !errors.Is(err, ErrWriteRejected) {
		t.Fatalf("WriteParameter() error = %v, want ErrWriteRejected", err)
	}

	p, _ := store.Parameter(device.Controller, "heating_target_temp")
	if p.Value != 60 {
		t.Errorf("store value = %v, want unchanged 60 after rejection", p.Value)
	}
}

func TestWriteParameter_UnknownNames(t *testing.T) {
	sim := newControllerSim()
	e, _ := newTestEngine(t, sim)
	e.discover(context.Background())

	if err := e.WriteParameter(context.Background(), device.Controller, "warp_drive", 1); !errors.Is(err, device.ErrParameterNotFound) {
		t.Errorf("unknown parameter error = %v, want ErrParameterNotFound", err)
	}
	if err := e.WriteParameter(context.Background(), device.MixerID(7), "mixer_target_temp", 1); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("unknown device error = %v, want ErrDeviceNotFound", err)
	}
}

func TestWriteParameter_MixerUsesWireIndex(t *testing.T) {
	sim := newControllerSim()
	e, _ := newTestEngine(t, sim)
	e.discover(context.Background())

	if err := e.WriteParameter(context.Background(), device.MixerID(1), "mixer_target_temp", 45); err != nil {
		t.Fatalf("WriteParameter() error: %v", err)
	}

	sim.mu.Lock()
	defer sim.mu.Unlock()
	var frame *protocol.Frame
	for _, f := range sim.received {
		if f.Type == protocol.TypeSetMixerParameter {
			frame = f
		}
	}
	if frame == nil {
		t.Fatal("no set_mixer_parameter request seen")
	}
	if frame.Payload[0] != 0 {
		t.Errorf("wire mixer index = %d, want 0 for mixer.1", frame.Payload[0])
	}
}

func TestWrites_SerialisedPerDevice(t *testing.T) {
	sim := newControllerSim()

	store := device.NewStore(0.1, nil)
	t.Cleanup(func() { store.Close() })

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0

	fl := &fakeLink{sim: sim, connected: true}
	fl.beforeRespond = func(f *protocol.Frame) {
		if f.Type != protocol.TypeSetParameter {
			return
		}
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
	}

	e, err := New(Deps{
		Link:              fl,
		Store:             store,
		TelemetryInterval: time.Hour,
		ParameterInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	e.discover(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.WriteParameter(context.Background(), device.Controller, "heating_target_temp", 62); err != nil {
				t.Errorf("WriteParameter() error: %v", err)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if maxInFlight != 1 {
		t.Errorf("max in-flight writes per device = %d, want 1", maxInFlight)
	}
}

func TestWriteSchedule(t *testing.T) {
	sim := newControllerSim()
	e, store := newTestEngine(t, sim)
	e.discover(context.Background())

	sched := &protocol.Schedule{Type: protocol.ScheduleHeating, Enabled: true}
	if err := device.SetScheduleWindow(sched, 0, 12, 44, true); err != nil {
		t.Fatalf("SetScheduleWindow() error: %v", err)
	}

	if err := e.WriteSchedule(context.Background(), sched); err != nil {
		t.Fatalf("WriteSchedule() error: %v", err)
	}

	got, err := store.Schedule(protocol.ScheduleHeating)
	if err != nil {
		t.Fatalf("Schedule() error: %v", err)
	}
	if !got.Slots[0][12] {
		t.Error("written schedule not stored")
	}
}

func TestSetControl(t *testing.T) {
	sim := newControllerSim()
	e, _ := newTestEngine(t, sim)

	if err := e.SetControl(context.Background(), true); err != nil {
		t.Fatalf("SetControl() error: %v", err)
	}
	if got := sim.countReceived(protocol.TypeControl); got != 1 {
		t.Errorf("control requests = %d, want 1", got)
	}
}

func TestHandleFrame_UnsolicitedTelemetry(t *testing.T) {
	sim := newControllerSim()
	e, store := newTestEngine(t, sim)

	snap := sim.snapshot
	snap.HeatingTemp = 68
	e.HandleFrame(&protocol.Frame{
		Sender:  protocol.AddressEcoMax,
		Type:    protocol.TypeSensorDataResponse,
		Payload: protocol.EncodeSensorSnapshot(&snap),
	})

	c, err := store.Device(device.Controller)
	if err != nil {
		t.Fatalf("Device() error: %v", err)
	}
	if c.Sensors["heating_temp"] != 68 {
		t.Errorf("heating_temp = %v, want 68", c.Sensors["heating_temp"])
	}

	e.HandleFrame(&protocol.Frame{
		Sender: protocol.AddressEcoMax,
		Type:   protocol.TypeRegulatorData,
		Payload: protocol.EncodeRegulatorSnapshot(&protocol.RegulatorSnapshot{
			State:       protocol.StateSupervision,
			HeatingTemp: 66,
		}),
	})

	c, _ = store.Device(device.Controller)
	if c.StateName != "supervision" {
		t.Errorf("state = %q, want supervision after regulator broadcast", c.StateName)
	}
	if c.Sensors["heating_temp"] != 66 {
		t.Errorf("heating_temp = %v, want 66", c.Sensors["heating_temp"])
	}
}

func TestHandleFrame_CorruptPayloadIgnored(t *testing.T) {
	sim := newControllerSim()
	e, store := newTestEngine(t, sim)

	e.HandleFrame(&protocol.Frame{
		Sender:  protocol.AddressEcoMax,
		Type:    protocol.TypeSensorDataResponse,
		Payload: []byte{0x01, 0x02},
	})

	if got := len(store.Devices()); got != 0 {
		t.Errorf("devices after corrupt frame = %d, want 0", got)
	}
}
