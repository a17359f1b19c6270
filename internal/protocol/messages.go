package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// Payload decoding errors.
var (
	ErrShortPayload = errors.New("protocol: payload too short")
	ErrBadCount     = errors.New("protocol: element count exceeds payload")
)

// alertEpoch is the zero point of on-wire timestamps: seconds since
// 2000-01-01 00:00:00 UTC.
var alertEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// alertOngoing in the "to" field marks an alert that has not ended.
const alertOngoing = 0xFFFFFFFF

// payloadReader walks a payload buffer, remembering the first overrun so
// callers can check once at the end.
type payloadReader struct {
	b   []byte
	off int
	err error
}

func (r *payloadReader) remaining() int { return len(r.b) - r.off }

func (r *payloadReader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.remaining() < n {
		r.err = fmt.Errorf("%w: need %d more bytes at offset %d", ErrShortPayload, n, r.off)
		return false
	}
	return true
}

func (r *payloadReader) byte() byte {
	if !r.need(1) {
		return 0
	}
	v := r.b[r.off]
	r.off++
	return v
}

func (r *payloadReader) uint16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.b[r.off:])
	r.off += 2
	return v
}

func (r *payloadReader) uint32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v
}

func (r *payloadReader) float32() float64 {
	return float64(math.Float32frombits(r.uint32()))
}

func (r *payloadReader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	v := r.b[r.off : r.off+n]
	r.off += n
	return v
}

// payloadWriter builds a payload buffer.
type payloadWriter struct {
	b []byte
}

func (w *payloadWriter) byte(v byte)   { w.b = append(w.b, v) }
func (w *payloadWriter) uint16(v uint16) {
	w.b = binary.LittleEndian.AppendUint16(w.b, v)
}
func (w *payloadWriter) uint32(v uint32) {
	w.b = binary.LittleEndian.AppendUint32(w.b, v)
}
func (w *payloadWriter) float32(v float64) {
	w.uint32(math.Float32bits(float32(v)))
}

// MixerReading is one mixer circuit's slice of a sensor snapshot.
type MixerReading struct {
	Temp       float64
	TargetTemp int
	Pump       bool
}

// ThermostatReading is one room thermostat's slice of a sensor snapshot.
type ThermostatReading struct {
	Temp            float64
	TargetTemp      float64
	ContactsClosed  bool
	ScheduleEnabled bool
}

// SensorSnapshot is the full telemetry block the controller returns for a
// sensor data request (and pushes unsolicited between polls). Mixer and
// thermostat slices are sized by the controller and identify the connected
// sub-devices.
type SensorSnapshot struct {
	State DeviceState

	HeatingTemp     float64
	WaterHeaterTemp float64
	ExhaustTemp     float64
	OutsideTemp     float64
	ReturnTemp      float64
	FeederTemp      float64

	HeatingTarget     int
	WaterHeaterTarget int

	HeatingPump     bool
	WaterHeaterPump bool
	CirculationPump bool
	Fan             bool
	Feeder          bool
	Lighter         bool

	FanPower    float64
	LoadPercent int

	FuelLevel       float64
	FuelConsumption float64
	BoilerPower     float64

	Modules ModuleSet

	Mixers      []MixerReading
	Thermostats []ThermostatReading
}

// Snapshot output flag bits.
const (
	flagHeatingPump = 1 << iota
	flagWaterHeaterPump
	flagCirculationPump
	flagFan
	flagFeeder
	flagLighter
)

// EncodeSensorSnapshot serialises a snapshot to a sensor data response
// payload. Used by the loopback test harness; the production flow only
// decodes.
func EncodeSensorSnapshot(s *SensorSnapshot) []byte {
	var w payloadWriter
	w.byte(byte(s.State))
	w.float32(s.HeatingTemp)
	w.float32(s.WaterHeaterTemp)
	w.float32(s.ExhaustTemp)
	w.float32(s.OutsideTemp)
	w.float32(s.ReturnTemp)
	w.float32(s.FeederTemp)
	w.byte(byte(s.HeatingTarget))
	w.byte(byte(s.WaterHeaterTarget))

	var flags byte
	if s.HeatingPump {
		flags |= flagHeatingPump
	}
	if s.WaterHeaterPump {
		flags |= flagWaterHeaterPump
	}
	if s.CirculationPump {
		flags |= flagCirculationPump
	}
	if s.Fan {
		flags |= flagFan
	}
	if s.Feeder {
		flags |= flagFeeder
	}
	if s.Lighter {
		flags |= flagLighter
	}
	w.byte(flags)

	w.byte(byte(s.FanPower))
	w.byte(byte(s.LoadPercent))
	w.float32(s.FuelLevel)
	w.float32(s.FuelConsumption)
	w.float32(s.BoilerPower)
	w.byte(s.Modules.bits())
	w.byte(byte(len(s.Mixers)))
	w.byte(byte(len(s.Thermostats)))

	for _, m := range s.Mixers {
		w.float32(m.Temp)
		w.byte(byte(m.TargetTemp))
		var f byte
		if m.Pump {
			f = 1
		}
		w.byte(f)
	}
	for _, t := range s.Thermostats {
		w.float32(t.Temp)
		w.float32(t.TargetTemp)
		var f byte
		if t.ContactsClosed {
			f |= 1
		}
		if t.ScheduleEnabled {
			f |= 2
		}
		w.byte(f)
	}
	return w.b
}

// DecodeSensorSnapshot parses a sensor data response payload.
func DecodeSensorSnapshot(payload []byte) (*SensorSnapshot, error) {
	r := payloadReader{b: payload}
	s := &SensorSnapshot{}

	s.State = DeviceState(r.byte())
	s.HeatingTemp = r.float32()
	s.WaterHeaterTemp = r.float32()
	s.ExhaustTemp = r.float32()
	s.OutsideTemp = r.float32()
	s.ReturnTemp = r.float32()
	s.FeederTemp = r.float32()
	s.HeatingTarget = int(r.byte())
	s.WaterHeaterTarget = int(r.byte())

	flags := r.byte()
	s.HeatingPump = flags&flagHeatingPump != 0
	s.WaterHeaterPump = flags&flagWaterHeaterPump != 0
	s.CirculationPump = flags&flagCirculationPump != 0
	s.Fan = flags&flagFan != 0
	s.Feeder = flags&flagFeeder != 0
	s.Lighter = flags&flagLighter != 0

	s.FanPower = float64(r.byte())
	s.LoadPercent = int(r.byte())
	s.FuelLevel = r.float32()
	s.FuelConsumption = r.float32()
	s.BoilerPower = r.float32()
	s.Modules = moduleSetFromBits(r.byte())

	mixerCount := int(r.byte())
	thermostatCount := int(r.byte())
	if r.err != nil {
		return nil, r.err
	}
	if mixerCount*6+thermostatCount*9 > r.remaining() {
		return nil, fmt.Errorf("%w: %d mixers, %d thermostats in %d bytes",
			ErrBadCount, mixerCount, thermostatCount, r.remaining())
	}

	s.Mixers = make([]MixerReading, mixerCount)
	for i := range s.Mixers {
		s.Mixers[i].Temp = r.float32()
		s.Mixers[i].TargetTemp = int(r.byte())
		s.Mixers[i].Pump = r.byte()&1 != 0
	}
	s.Thermostats = make([]ThermostatReading, thermostatCount)
	for i := range s.Thermostats {
		s.Thermostats[i].Temp = r.float32()
		s.Thermostats[i].TargetTemp = r.float32()
		f := r.byte()
		s.Thermostats[i].ContactsClosed = f&1 != 0
		s.Thermostats[i].ScheduleEnabled = f&2 != 0
	}
	if r.err != nil {
		return nil, r.err
	}
	return s, nil
}

// RegulatorSnapshot is the reduced telemetry block broadcast unsolicited
// by the controller between sensor polls.
type RegulatorSnapshot struct {
	State           DeviceState
	HeatingTemp     float64
	WaterHeaterTemp float64
	OutsideTemp     float64
	HeatingTarget   int
	FuelLevel       float64
}

// EncodeRegulatorSnapshot serialises a regulator broadcast payload.
func EncodeRegulatorSnapshot(s *RegulatorSnapshot) []byte {
	var w payloadWriter
	w.byte(byte(s.State))
	w.float32(s.HeatingTemp)
	w.float32(s.WaterHeaterTemp)
	w.float32(s.OutsideTemp)
	w.byte(byte(s.HeatingTarget))
	w.float32(s.FuelLevel)
	return w.b
}

// DecodeRegulatorSnapshot parses a regulator broadcast payload.
func DecodeRegulatorSnapshot(payload []byte) (*RegulatorSnapshot, error) {
	r := payloadReader{b: payload}
	s := &RegulatorSnapshot{}
	s.State = DeviceState(r.byte())
	s.HeatingTemp = r.float32()
	s.WaterHeaterTemp = r.float32()
	s.OutsideTemp = r.float32()
	s.HeatingTarget = int(r.byte())
	s.FuelLevel = r.float32()
	if r.err != nil {
		return nil, r.err
	}
	return s, nil
}

// ParameterValue is one tunable setting with its permitted range as
// reported by the device. Raw wire units; scaling is the caller's concern.
type ParameterValue struct {
	Index int
	Value uint16
	Min   uint16
	Max   uint16
}

// EncodeParametersRequest builds the payload requesting count parameters
// starting at first.
func EncodeParametersRequest(first, count int) []byte {
	return []byte{byte(first), byte(count)}
}

// EncodeParametersResponse serialises a parameter list response payload.
func EncodeParametersResponse(first int, params []ParameterValue) []byte {
	var w payloadWriter
	w.byte(byte(first))
	w.byte(byte(len(params)))
	for _, p := range params {
		w.uint16(p.Value)
		w.uint16(p.Min)
		w.uint16(p.Max)
	}
	return w.b
}

// DecodeParametersResponse parses a parameter list response payload.
// Indexes are absolute: first + position.
func DecodeParametersResponse(payload []byte) ([]ParameterValue, error) {
	r := payloadReader{b: payload}
	first := int(r.byte())
	count := int(r.byte())
	if r.err != nil {
		return nil, r.err
	}
	if count*6 > r.remaining() {
		return nil, fmt.Errorf("%w: %d parameters in %d bytes", ErrBadCount, count, r.remaining())
	}
	params := make([]ParameterValue, count)
	for i := range params {
		params[i].Index = first + i
		params[i].Value = r.uint16()
		params[i].Min = r.uint16()
		params[i].Max = r.uint16()
	}
	if r.err != nil {
		return nil, r.err
	}
	return params, nil
}

// EncodeIndexedParametersRequest builds a mixer or thermostat parameter
// request: the sub-device index followed by the window.
func EncodeIndexedParametersRequest(device, first, count int) []byte {
	return []byte{byte(device), byte(first), byte(count)}
}

// EncodeIndexedParametersResponse serialises a mixer or thermostat
// parameter list response payload.
func EncodeIndexedParametersResponse(device, first int, params []ParameterValue) []byte {
	var w payloadWriter
	w.byte(byte(device))
	w.b = append(w.b, EncodeParametersResponse(first, params)...)
	return w.b
}

// DecodeIndexedParametersResponse parses a mixer or thermostat parameter
// list response, returning the sub-device index and its parameters.
func DecodeIndexedParametersResponse(payload []byte) (int, []ParameterValue, error) {
	if len(payload) < 1 {
		return 0, nil, ErrShortPayload
	}
	params, err := DecodeParametersResponse(payload[1:])
	return int(payload[0]), params, err
}

// Write status codes returned by set-parameter and set-schedule responses.
const (
	WriteAccepted byte = 0x00
	WriteRejected byte = 0x01
)

// EncodeSetParameterRequest builds a controller parameter write payload.
func EncodeSetParameterRequest(index int, value uint16) []byte {
	var w payloadWriter
	w.byte(byte(index))
	w.uint16(value)
	return w.b
}

// EncodeSetIndexedParameterRequest builds a mixer or thermostat parameter
// write payload.
func EncodeSetIndexedParameterRequest(device, index int, value uint16) []byte {
	var w payloadWriter
	w.byte(byte(device))
	w.byte(byte(index))
	w.uint16(value)
	return w.b
}

// DecodeWriteResponse parses the shared [index][status] acknowledgement
// carried by all write responses. It returns whether the device accepted
// the write.
func DecodeWriteResponse(payload []byte) (index int, accepted bool, err error) {
	if len(payload) < 2 {
		return 0, false, ErrShortPayload
	}
	return int(payload[0]), payload[1] == WriteAccepted, nil
}

// EncodeWriteResponse serialises a write acknowledgement payload.
func EncodeWriteResponse(index int, accepted bool) []byte {
	status := WriteRejected
	if accepted {
		status = WriteAccepted
	}
	return []byte{byte(index), status}
}

// ScheduleType selects which circuit a schedule applies to.
type ScheduleType byte

const (
	ScheduleHeating     ScheduleType = 0x00
	ScheduleWaterHeater ScheduleType = 0x01
)

func (t ScheduleType) String() string {
	switch t {
	case ScheduleHeating:
		return "heating"
	case ScheduleWaterHeater:
		return "water_heater"
	default:
		return fmt.Sprintf("schedule(%d)", byte(t))
	}
}

// Schedule slots per day: one per 30 minutes.
const (
	ScheduleDays  = 7
	ScheduleSlots = 48
)

// Schedule is a weekly preset grid. A set slot runs the day preset, a
// clear slot the night preset. Day 0 is Monday.
type Schedule struct {
	Type    ScheduleType
	Enabled bool
	Slots   [ScheduleDays][ScheduleSlots]bool
}

const scheduleBitmapLen = ScheduleDays * ScheduleSlots / 8

// EncodeSchedulesRequest builds the payload requesting one schedule.
func EncodeSchedulesRequest(typ ScheduleType) []byte {
	return []byte{byte(typ)}
}

// EncodeSchedule serialises a schedule, used both for the set-schedule
// request and the schedules response payload.
func EncodeSchedule(s *Schedule) []byte {
	var w payloadWriter
	w.byte(byte(s.Type))
	var enabled byte
	if s.Enabled {
		enabled = 1
	}
	w.byte(enabled)

	bitmap := make([]byte, scheduleBitmapLen)
	for day := 0; day < ScheduleDays; day++ {
		for slot := 0; slot < ScheduleSlots; slot++ {
			if s.Slots[day][slot] {
				bit := day*ScheduleSlots + slot
				bitmap[bit/8] |= 1 << (bit % 8)
			}
		}
	}
	w.b = append(w.b, bitmap...)
	return w.b
}

// DecodeSchedule parses a schedule payload.
func DecodeSchedule(payload []byte) (*Schedule, error) {
	r := payloadReader{b: payload}
	s := &Schedule{}
	s.Type = ScheduleType(r.byte())
	s.Enabled = r.byte() != 0
	bitmap := r.bytes(scheduleBitmapLen)
	if r.err != nil {
		return nil, r.err
	}
	for day := 0; day < ScheduleDays; day++ {
		for slot := 0; slot < ScheduleSlots; slot++ {
			bit := day*ScheduleSlots + slot
			s.Slots[day][slot] = bitmap[bit/8]&(1<<(bit%8)) != 0
		}
	}
	return s, nil
}

// DeviceIdentity is the controller's UID response: a unique hardware
// identifier plus the marketing product name.
type DeviceIdentity struct {
	UID     string
	Product string
}

// EncodeDeviceIdentity serialises a UID response payload.
func EncodeDeviceIdentity(d *DeviceIdentity) []byte {
	var w payloadWriter
	w.byte(byte(len(d.UID)))
	w.b = append(w.b, d.UID...)
	w.byte(byte(len(d.Product)))
	w.b = append(w.b, d.Product...)
	return w.b
}

// DecodeDeviceIdentity parses a UID response payload.
func DecodeDeviceIdentity(payload []byte) (*DeviceIdentity, error) {
	r := payloadReader{b: payload}
	uidLen := int(r.byte())
	uid := r.bytes(uidLen)
	nameLen := int(r.byte())
	name := r.bytes(nameLen)
	if r.err != nil {
		return nil, r.err
	}
	return &DeviceIdentity{UID: string(uid), Product: string(name)}, nil
}

// Module identifies an expansion module slot on the controller.
type Module byte

const (
	ModuleA         Module = 0 // main board
	ModuleB         Module = 1
	ModuleC         Module = 2
	ModuleLambda    Module = 3
	ModuleEcoSter   Module = 4
	ModulePanel     Module = 5
	moduleSlotCount        = 6
)

func (m Module) String() string {
	switch m {
	case ModuleA:
		return "module_a"
	case ModuleB:
		return "module_b"
	case ModuleC:
		return "module_c"
	case ModuleLambda:
		return "ecolambda"
	case ModuleEcoSter:
		return "ecoster"
	case ModulePanel:
		return "panel"
	default:
		return fmt.Sprintf("module(%d)", byte(m))
	}
}

// ModuleSet records which expansion modules the controller reports as
// connected.
type ModuleSet map[Module]bool

func (s ModuleSet) bits() byte {
	var b byte
	for m := Module(0); m < moduleSlotCount; m++ {
		if s[m] {
			b |= 1 << m
		}
	}
	return b
}

// Modules returns the present modules in slot order.
func (s ModuleSet) Modules() []Module {
	var out []Module
	for m := Module(0); m < moduleSlotCount; m++ {
		if s[m] {
			out = append(out, m)
		}
	}
	return out
}

func moduleSetFromBits(b byte) ModuleSet {
	s := make(ModuleSet)
	for m := Module(0); m < moduleSlotCount; m++ {
		if b&(1<<m) != 0 {
			s[m] = true
		}
	}
	return s
}

// ModuleVersion is one module's firmware version.
type ModuleVersion struct {
	Module Module
	Major  int
	Minor  int
	Patch  int
}

// Version formats the firmware version as "major.minor.patch".
func (v ModuleVersion) Version() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// EncodeProgramVersionResponse serialises a firmware version response.
func EncodeProgramVersionResponse(versions []ModuleVersion) []byte {
	var w payloadWriter
	w.byte(byte(len(versions)))
	for _, v := range versions {
		w.byte(byte(v.Module))
		w.byte(byte(v.Major))
		w.byte(byte(v.Minor))
		w.byte(byte(v.Patch))
	}
	return w.b
}

// DecodeProgramVersionResponse parses a firmware version response.
func DecodeProgramVersionResponse(payload []byte) ([]ModuleVersion, error) {
	r := payloadReader{b: payload}
	count := int(r.byte())
	if r.err != nil {
		return nil, r.err
	}
	if count*4 > r.remaining() {
		return nil, fmt.Errorf("%w: %d versions in %d bytes", ErrBadCount, count, r.remaining())
	}
	versions := make([]ModuleVersion, count)
	for i := range versions {
		versions[i].Module = Module(r.byte())
		versions[i].Major = int(r.byte())
		versions[i].Minor = int(r.byte())
		versions[i].Patch = int(r.byte())
	}
	if r.err != nil {
		return nil, r.err
	}
	return versions, nil
}

// Alert is one controller fault record. To is the zero time while the
// alert is still active.
type Alert struct {
	Code int
	From time.Time
	To   time.Time
}

// Ongoing reports whether the alert has not ended yet.
func (a Alert) Ongoing() bool { return a.To.IsZero() }

// EncodeAlertsRequest builds the payload requesting count alert records
// starting at first.
func EncodeAlertsRequest(first, count int) []byte {
	return []byte{byte(first), byte(count)}
}

// EncodeAlertsResponse serialises an alert list response payload.
func EncodeAlertsResponse(alerts []Alert) []byte {
	var w payloadWriter
	w.byte(byte(len(alerts)))
	for _, a := range alerts {
		w.byte(byte(a.Code))
		w.uint32(uint32(a.From.Sub(alertEpoch) / time.Second))
		if a.Ongoing() {
			w.uint32(alertOngoing)
		} else {
			w.uint32(uint32(a.To.Sub(alertEpoch) / time.Second))
		}
	}
	return w.b
}

// DecodeAlertsResponse parses an alert list response payload. Timestamps
// on the wire are seconds since 2000-01-01 UTC.
func DecodeAlertsResponse(payload []byte) ([]Alert, error) {
	r := payloadReader{b: payload}
	count := int(r.byte())
	if r.err != nil {
		return nil, r.err
	}
	if count*9 > r.remaining() {
		return nil, fmt.Errorf("%w: %d alerts in %d bytes", ErrBadCount, count, r.remaining())
	}
	alerts := make([]Alert, count)
	for i := range alerts {
		alerts[i].Code = int(r.byte())
		alerts[i].From = alertEpoch.Add(time.Duration(r.uint32()) * time.Second)
		to := r.uint32()
		if to != alertOngoing {
			alerts[i].To = alertEpoch.Add(time.Duration(to) * time.Second)
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return alerts, nil
}

// EncodeControlRequest builds the payload switching the controller on or
// off.
func EncodeControlRequest(on bool) []byte {
	if on {
		return []byte{1}
	}
	return []byte{0}
}

// DecodeDeviceAvailable parses the check-device response. A non-zero
// status byte means the device is online and accepting requests.
func DecodeDeviceAvailable(payload []byte) (bool, error) {
	if len(payload) < 1 {
		return false, ErrShortPayload
	}
	return payload[0] != 0, nil
}
