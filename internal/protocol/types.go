package protocol

import "fmt"

// Address identifies a bus participant.
type Address byte

// Known bus addresses. AddressEcoNet is the address this service answers
// to; the controller addresses its responses and broadcasts here.
const (
	AddressBroadcast Address = 0x00
	AddressEcoMax    Address = 0x45
	AddressEcoSter   Address = 0x51
	AddressEcoNet    Address = 0x56
)

// String returns a human-readable name for known addresses.
func (a Address) String() string {
	switch a {
	case AddressBroadcast:
		return "broadcast"
	case AddressEcoMax:
		return "ecomax"
	case AddressEcoSter:
		return "ecoster"
	case AddressEcoNet:
		return "econet"
	default:
		return fmt.Sprintf("0x%02X", byte(a))
	}
}

// FrameType identifies the payload carried by a frame. Types below 0x80
// are requests (or unsolicited controller pushes); a response carries the
// request type with the high bit set.
type FrameType byte

const (
	// Unsolicited regulator broadcast, never requested.
	TypeRegulatorData FrameType = 0x08

	// Request types.
	TypeCheckDevice            FrameType = 0x30
	TypeParameters             FrameType = 0x31
	TypeMixerParameters        FrameType = 0x32
	TypeSetParameter           FrameType = 0x33
	TypeSetMixerParameter      FrameType = 0x34
	TypeSensorData             FrameType = 0x35
	TypeSchedules              FrameType = 0x36
	TypeSetSchedule            FrameType = 0x37
	TypeThermostatParameters   FrameType = 0x38
	TypeUID                    FrameType = 0x39
	TypeSetThermostatParameter FrameType = 0x3A
	TypeControl                FrameType = 0x3B
	TypeAlerts                 FrameType = 0x3D
	TypeProgramVersion         FrameType = 0x40

	// Response types (request | 0x80).
	TypeDeviceAvailable             FrameType = 0xB0
	TypeParametersResponse          FrameType = 0xB1
	TypeMixerParametersResponse     FrameType = 0xB2
	TypeSetParameterResponse        FrameType = 0xB3
	TypeSetMixerParameterResponse   FrameType = 0xB4
	TypeSensorDataResponse          FrameType = 0xB5
	TypeSchedulesResponse           FrameType = 0xB6
	TypeSetScheduleResponse         FrameType = 0xB7
	TypeThermostatParamsResponse    FrameType = 0xB8
	TypeUIDResponse                 FrameType = 0xB9
	TypeSetThermostatParamsResponse FrameType = 0xBA
	TypeControlResponse             FrameType = 0xBB
	TypeAlertsResponse              FrameType = 0xBD
	TypeProgramVersionResponse      FrameType = 0xC0
)

// responseBit marks a frame type as a response to the request type it is
// OR-ed onto.
const responseBit = 0x80

// IsResponse reports whether t is a response frame type.
func (t FrameType) IsResponse() bool {
	return t&responseBit != 0
}

// ResponseType returns the response type paired with request type t.
func (t FrameType) ResponseType() FrameType {
	return t | responseBit
}

// IsResponseTo reports whether t is the response paired with request req.
func (t FrameType) IsResponseTo(req FrameType) bool {
	return t == req.ResponseType()
}

func (t FrameType) String() string {
	switch t {
	case TypeRegulatorData:
		return "regulator_data"
	case TypeCheckDevice:
		return "check_device"
	case TypeParameters:
		return "parameters"
	case TypeMixerParameters:
		return "mixer_parameters"
	case TypeSetParameter:
		return "set_parameter"
	case TypeSetMixerParameter:
		return "set_mixer_parameter"
	case TypeSensorData:
		return "sensor_data"
	case TypeSchedules:
		return "schedules"
	case TypeSetSchedule:
		return "set_schedule"
	case TypeThermostatParameters:
		return "thermostat_parameters"
	case TypeUID:
		return "uid"
	case TypeSetThermostatParameter:
		return "set_thermostat_parameter"
	case TypeControl:
		return "control"
	case TypeAlerts:
		return "alerts"
	case TypeProgramVersion:
		return "program_version"
	case TypeDeviceAvailable:
		return "device_available"
	case TypeParametersResponse:
		return "parameters_response"
	case TypeMixerParametersResponse:
		return "mixer_parameters_response"
	case TypeSetParameterResponse:
		return "set_parameter_response"
	case TypeSetMixerParameterResponse:
		return "set_mixer_parameter_response"
	case TypeSensorDataResponse:
		return "sensor_data"
	case TypeSchedulesResponse:
		return "schedules_response"
	case TypeSetScheduleResponse:
		return "set_schedule_response"
	case TypeThermostatParamsResponse:
		return "thermostat_parameters_response"
	case TypeUIDResponse:
		return "uid_response"
	case TypeSetThermostatParamsResponse:
		return "set_thermostat_parameter_response"
	case TypeControlResponse:
		return "control_response"
	case TypeAlertsResponse:
		return "alerts_response"
	case TypeProgramVersionResponse:
		return "program_version_response"
	default:
		return fmt.Sprintf("0x%02X", byte(t))
	}
}

// DeviceState is the controller's operating state as reported in sensor
// and regulator telemetry.
type DeviceState byte

const (
	StateOff           DeviceState = 0
	StateStabilization DeviceState = 1
	StateKindling      DeviceState = 2
	StateWorking       DeviceState = 3
	StateSupervision   DeviceState = 4
	StatePaused        DeviceState = 5
	StateStandby       DeviceState = 6
	StateBurningOff    DeviceState = 7
	StateAlert         DeviceState = 8
)

func (s DeviceState) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateStabilization:
		return "stabilization"
	case StateKindling:
		return "kindling"
	case StateWorking:
		return "working"
	case StateSupervision:
		return "supervision"
	case StatePaused:
		return "paused"
	case StateStandby:
		return "standby"
	case StateBurningOff:
		return "burning_off"
	case StateAlert:
		return "alert"
	default:
		return fmt.Sprintf("unknown(%d)", byte(s))
	}
}
