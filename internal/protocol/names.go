package protocol

import "fmt"

// Parameter name tables. The wire protocol addresses parameters by index
// only; these tables give each known index a stable name so downstream
// consumers never see raw offsets. Unknown indexes fall back to a
// positional name rather than failing, since newer firmware adds
// parameters the tables have not caught up with.

var controllerParamNames = []string{
	0:  "airflow_power_100",
	1:  "airflow_power_50",
	2:  "airflow_power_30",
	3:  "power_100",
	4:  "power_50",
	5:  "power_30",
	6:  "max_fan_boiler_power",
	7:  "min_fan_boiler_power",
	8:  "fuel_feeding_time_100",
	9:  "fuel_feeding_time_50",
	10: "fuel_feeding_time_30",
	11: "fuel_feeding_break_100",
	12: "fuel_feeding_break_50",
	13: "fuel_feeding_break_30",
	14: "cycle_time",
	15: "h2_hysteresis",
	16: "h1_hysteresis",
	17: "heating_hysteresis",
	18: "fuzzy_logic",
	19: "min_fuzzy_logic_power",
	20: "max_fuzzy_logic_power",
	21: "min_boiler_power",
	22: "max_boiler_power",
	23: "min_fan_power",
	24: "max_fan_power",
	25: "reduction_airflow_temp",
	26: "fan_power_gain",
	27: "fuel_flow_correction",
	28: "fuel_calorific_value",
	29: "heating_target_temp",
	30: "min_heating_target_temp",
	31: "max_heating_target_temp",
	32: "heating_pump_enable_temp",
	33: "pause_heating_for_water_heater",
	34: "pause",
	35: "work",
	36: "circulation_control",
	37: "circulation_pause_time",
	38: "circulation_work_time",
	39: "circulation_start_temp",
	40: "water_heater_target_temp",
	41: "min_water_heater_target_temp",
	42: "max_water_heater_target_temp",
	43: "water_heater_work_mode",
	44: "water_heater_hysteresis",
	45: "water_heater_disinfection",
	46: "summer_mode",
	47: "summer_mode_enable_temp",
	48: "summer_mode_disable_temp",
}

var mixerParamNames = []string{
	0: "mixer_target_temp",
	1: "min_mixer_target_temp",
	2: "max_mixer_target_temp",
	3: "low_mixer_target_temp",
	4: "weather_control",
	5: "heating_curve",
	6: "heating_curve_shift",
	7: "mixer_work_mode",
	8: "mixer_off_by_thermostat",
	9: "mixer_summer_work",
}

var thermostatParamNames = []string{
	0: "thermostat_mode",
	1: "party_target_temp",
	2: "holidays_target_temp",
	3: "antifreeze_target_temp",
	4: "day_target_temp",
	5: "night_target_temp",
	6: "thermostat_hysteresis",
}

func nameAt(table []string, index int, fallback string) string {
	if index >= 0 && index < len(table) && table[index] != "" {
		return table[index]
	}
	return fmt.Sprintf("%s_%d", fallback, index)
}

// ControllerParamName returns the name of controller parameter index.
func ControllerParamName(index int) string {
	return nameAt(controllerParamNames, index, "parameter")
}

// MixerParamName returns the name of mixer parameter index.
func MixerParamName(index int) string {
	return nameAt(mixerParamNames, index, "mixer_parameter")
}

// ThermostatParamName returns the name of thermostat parameter index.
func ThermostatParamName(index int) string {
	return nameAt(thermostatParamNames, index, "thermostat_parameter")
}

// ControllerParamIndex returns the index for a named controller
// parameter, or -1 when the name is unknown.
func ControllerParamIndex(name string) int {
	return indexOf(controllerParamNames, name)
}

// MixerParamIndex returns the index for a named mixer parameter, or -1.
func MixerParamIndex(name string) int {
	return indexOf(mixerParamNames, name)
}

// ThermostatParamIndex returns the index for a named thermostat
// parameter, or -1.
func ThermostatParamIndex(name string) int {
	return indexOf(thermostatParamNames, name)
}

func indexOf(table []string, name string) int {
	for i, n := range table {
		if n == name {
			return i
		}
	}
	return -1
}

// AlertName returns a short description for a controller alert code.
func AlertName(code int) string {
	if name, ok := alertNames[code]; ok {
		return name
	}
	return fmt.Sprintf("alert_%d", code)
}

var alertNames = map[int]string{
	0:  "power_loss",
	1:  "boiler_temp_sensor_failure",
	2:  "max_boiler_temp_exceeded",
	3:  "feeder_temp_sensor_failure",
	4:  "max_feeder_temp_exceeded",
	5:  "exhaust_temp_sensor_failure",
	6:  "kindling_failure",
	7:  "no_fuel",
	8:  "feeder_jammed",
	9:  "stb_tripped",
	10: "water_heater_temp_sensor_failure",
	11: "mixer_temp_sensor_failure",
	12: "weather_temp_sensor_failure",
	13: "flame_sensor_failure",
	14: "lambda_probe_failure",
}
