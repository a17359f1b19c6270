package protocol

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestSensorSnapshot_RoundTrip(t *testing.T) {
	want := &SensorSnapshot{
		State:             StateWorking,
		HeatingTemp:       64.5,
		WaterHeaterTemp:   51.25,
		ExhaustTemp:       121.5,
		OutsideTemp:       -3.5,
		ReturnTemp:        48,
		FeederTemp:        29.75,
		HeatingTarget:     65,
		WaterHeaterTarget: 50,
		HeatingPump:       true,
		Fan:               true,
		Feeder:            true,
		FanPower:          42,
		LoadPercent:       76,
		FuelLevel:         58.5,
		FuelConsumption:   3.25,
		BoilerPower:       18.5,
		Modules:           ModuleSet{ModuleA: true, ModuleEcoSter: true, ModulePanel: true},
		Mixers: []MixerReading{
			{Temp: 38.5, TargetTemp: 40, Pump: true},
			{Temp: 22, TargetTemp: 35},
		},
		Thermostats: []ThermostatReading{
			{Temp: 21.5, TargetTemp: 22, ContactsClosed: true, ScheduleEnabled: true},
		},
	}

	got, err := DecodeSensorSnapshot(EncodeSensorSnapshot(want))
	if err != nil {
		t.Fatalf("DecodeSensorSnapshot() error: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestSensorSnapshot_NoSubDevices(t *testing.T) {
	got, err := DecodeSensorSnapshot(EncodeSensorSnapshot(&SensorSnapshot{
		State:   StateOff,
		Modules: ModuleSet{ModuleA: true},
	}))
	if err != nil {
		t.Fatalf("DecodeSensorSnapshot() error: %v", err)
	}
	if len(got.Mixers) != 0 || len(got.Thermostats) != 0 {
		t.Errorf("expected no sub-devices, got %d mixers, %d thermostats",
			len(got.Mixers), len(got.Thermostats))
	}
}

func TestSensorSnapshot_Truncated(t *testing.T) {
	full := EncodeSensorSnapshot(&SensorSnapshot{
		State:   StateWorking,
		Mixers:  []MixerReading{{Temp: 30}},
		Modules: ModuleSet{},
	})

	for _, n := range []int{0, 1, 10, len(full) - 1} {
		if _, err := DecodeSensorSnapshot(full[:n]); err == nil {
			t.Errorf("DecodeSensorSnapshot() with %d bytes: expected error", n)
		}
	}
}

func TestSensorSnapshot_CountExceedsPayload(t *testing.T) {
	payload := EncodeSensorSnapshot(&SensorSnapshot{Modules: ModuleSet{}})
	// Claim five mixers with no mixer data present.
	payload[len(payload)-2] = 5

	if _, err := DecodeSensorSnapshot(payload); !errors.Is(err, ErrBadCount) {
		t.Errorf("DecodeSensorSnapshot() error = %v, want ErrBadCount", err)
	}
}

func TestRegulatorSnapshot_RoundTrip(t *testing.T) {
	want := &RegulatorSnapshot{
		State:           StateSupervision,
		HeatingTemp:     58.25,
		WaterHeaterTemp: 47.5,
		OutsideTemp:     2.25,
		HeatingTarget:   60,
		FuelLevel:       33.5,
	}

	got, err := DecodeRegulatorSnapshot(EncodeRegulatorSnapshot(want))
	if err != nil {
		t.Fatalf("DecodeRegulatorSnapshot() error: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestParameters_RoundTrip(t *testing.T) {
	want := []ParameterValue{
		{Index: 4, Value: 61, Min: 40, Max: 85},
		{Index: 5, Value: 3, Min: 0, Max: 10},
		{Index: 6, Value: 100, Min: 0, Max: 200},
	}

	got, err := DecodeParametersResponse(EncodeParametersResponse(4, want))
	if err != nil {
		t.Fatalf("DecodeParametersResponse() error: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestParameters_BadCount(t *testing.T) {
	payload := EncodeParametersResponse(0, []ParameterValue{{Value: 1}})
	payload[1] = 10 // claim ten parameters

	if _, err := DecodeParametersResponse(payload); !errors.Is(err, ErrBadCount) {
		t.Errorf("DecodeParametersResponse() error = %v, want ErrBadCount", err)
	}
}

func TestIndexedParameters_RoundTrip(t *testing.T) {
	want := []ParameterValue{{Index: 0, Value: 40, Min: 20, Max: 55}}

	device, got, err := DecodeIndexedParametersResponse(
		EncodeIndexedParametersResponse(2, 0, want))
	if err != nil {
		t.Fatalf("DecodeIndexedParametersResponse() error: %v", err)
	}
	if device != 2 {
		t.Errorf("device = %d, want 2", device)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestWriteResponse_RoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		index    int
		accepted bool
	}{
		{name: "accepted", index: 29, accepted: true},
		{name: "rejected", index: 7, accepted: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index, accepted, err := DecodeWriteResponse(EncodeWriteResponse(tt.index, tt.accepted))
			if err != nil {
				t.Fatalf("DecodeWriteResponse() error: %v", err)
			}
			if index != tt.index || accepted != tt.accepted {
				t.Errorf("got (%d, %v), want (%d, %v)", index, accepted, tt.index, tt.accepted)
			}
		})
	}
}

func TestSchedule_RoundTrip(t *testing.T) {
	want := &Schedule{
		Type:    ScheduleHeating,
		Enabled: true,
	}
	// Weekdays 06:00-22:00 on the day preset.
	for day := 0; day < 5; day++ {
		for slot := 12; slot < 44; slot++ {
			want.Slots[day][slot] = true
		}
	}
	// Weekend all day.
	for day := 5; day < 7; day++ {
		for slot := 0; slot < ScheduleSlots; slot++ {
			want.Slots[day][slot] = true
		}
	}

	got, err := DecodeSchedule(EncodeSchedule(want))
	if err != nil {
		t.Fatalf("DecodeSchedule() error: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestSchedule_PayloadSize(t *testing.T) {
	payload := EncodeSchedule(&Schedule{Type: ScheduleWaterHeater})
	if want := 2 + scheduleBitmapLen; len(payload) != want {
		t.Errorf("payload size = %d, want %d", len(payload), want)
	}
}

func TestDeviceIdentity_RoundTrip(t *testing.T) {
	want := &DeviceIdentity{
		UID:     "D251PAKR3GCBZ1K8G7Z0",
		Product: "ecoMAX 850P2-C",
	}

	got, err := DecodeDeviceIdentity(EncodeDeviceIdentity(want))
	if err != nil {
		t.Fatalf("DecodeDeviceIdentity() error: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestProgramVersion_RoundTrip(t *testing.T) {
	want := []ModuleVersion{
		{Module: ModuleA, Major: 1, Minor: 13, Patch: 6},
		{Module: ModulePanel, Major: 2, Minor: 0, Patch: 1},
	}

	got, err := DecodeProgramVersionResponse(EncodeProgramVersionResponse(want))
	if err != nil {
		t.Fatalf("DecodeProgramVersionResponse() error: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
	if got[0].Version() != "1.13.6" {
		t.Errorf("Version() = %q, want 1.13.6", got[0].Version())
	}
}

func TestAlerts_RoundTrip(t *testing.T) {
	want := []Alert{
		{
			Code: 7,
			From: time.Date(2026, 1, 15, 8, 30, 0, 0, time.UTC),
			To:   time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC),
		},
		{
			Code: 2,
			From: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
			// Ongoing: no end time.
		},
	}

	got, err := DecodeAlertsResponse(EncodeAlertsResponse(want))
	if err != nil {
		t.Fatalf("DecodeAlertsResponse() error: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
	if got[0].Ongoing() {
		t.Error("closed alert reported as ongoing")
	}
	if !got[1].Ongoing() {
		t.Error("open alert not reported as ongoing")
	}
}

func TestDeviceAvailable(t *testing.T) {
	if ok, err := DecodeDeviceAvailable([]byte{1}); err != nil || !ok {
		t.Errorf("DecodeDeviceAvailable([1]) = (%v, %v), want (true, nil)", ok, err)
	}
	if ok, err := DecodeDeviceAvailable([]byte{0}); err != nil || ok {
		t.Errorf("DecodeDeviceAvailable([0]) = (%v, %v), want (false, nil)", ok, err)
	}
	if _, err := DecodeDeviceAvailable(nil); !errors.Is(err, ErrShortPayload) {
		t.Errorf("DecodeDeviceAvailable(nil) error = %v, want ErrShortPayload", err)
	}
}

func TestParamNames(t *testing.T) {
	if got := ControllerParamName(29); got != "heating_target_temp" {
		t.Errorf("ControllerParamName(29) = %q", got)
	}
	if got := ControllerParamName(200); got != "parameter_200" {
		t.Errorf("ControllerParamName(200) = %q, want positional fallback", got)
	}
	if got := ControllerParamIndex("heating_target_temp"); got != 29 {
		t.Errorf("ControllerParamIndex(heating_target_temp) = %d, want 29", got)
	}
	if got := ControllerParamIndex("no_such_param"); got != -1 {
		t.Errorf("ControllerParamIndex(no_such_param) = %d, want -1", got)
	}
	if got := MixerParamName(0); got != "mixer_target_temp" {
		t.Errorf("MixerParamName(0) = %q", got)
	}
	if got := ThermostatParamName(4); got != "day_target_temp" {
		t.Errorf("ThermostatParamName(4) = %q", got)
	}
	if got := AlertName(7); got != "no_fuel" {
		t.Errorf("AlertName(7) = %q", got)
	}
	if got := AlertName(99); got != "alert_99" {
		t.Errorf("AlertName(99) = %q, want fallback", got)
	}
}
