package engine

import (
	"context"

	"github.com/ecosync/core/internal/device"
	"github.com/ecosync/core/internal/protocol"
)

// parameterWindow is how many parameters one request asks for. The
// controller truncates to what it has, so a generous window fetches the
// whole set in one exchange.
const parameterWindow = 255

// discover runs the full refresh sequence. Every step is independent:
// one failed exchange is logged and skipped, the rest still run, and the
// next cycle fills the gap. Re-running discovery converges on the same
// store state.
func (e *Engine) discover(ctx context.Context) {
	if !e.deps.Link.Connected() {
		return
	}
	log := e.log.With("op", "discover")

	available, err := e.checkDevice(ctx)
	if err != nil {
		log.Warn("availability check failed", "error", err)
		return
	}
	if !available {
		log.Warn("controller reports unavailable")
		return
	}

	if ident, err := e.fetchIdentity(ctx); err != nil {
		log.Warn("identity fetch failed", "error", err)
	} else {
		e.deps.Store.SetIdentity(ident)
	}

	if versions, err := e.fetchVersions(ctx); err != nil {
		log.Warn("version fetch failed", "error", err)
	} else {
		e.deps.Store.SetVersions(versions)
	}

	snap, err := e.pollTelemetry(ctx)
	if err != nil {
		log.Warn("sensor poll failed", "error", err)
		return
	}

	if params, err := e.fetchControllerParams(ctx); err != nil {
		log.Warn("controller parameter fetch failed", "error", err)
	} else {
		e.deps.Store.SetParameters(device.Controller, params)
	}

	present := make([]device.ID, 0, len(snap.Mixers)+len(snap.Thermostats))
	for i := range snap.Mixers {
		id := device.MixerID(i + 1)
		present = append(present, id)
		if params, err := e.fetchIndexedParams(ctx, protocol.TypeMixerParameters, i, protocol.MixerParamName); err != nil {
			log.Warn("mixer parameter fetch failed", "mixer", i+1, "error", err)
		} else {
			e.deps.Store.SetParameters(id, params)
		}
	}
	for i := range snap.Thermostats {
		id := device.ThermostatID(i + 1)
		present = append(present, id)
		if params, err := e.fetchIndexedParams(ctx, protocol.TypeThermostatParameters, i, protocol.ThermostatParamName); err != nil {
			log.Warn("thermostat parameter fetch failed", "thermostat", i+1, "error", err)
		} else {
			e.deps.Store.SetParameters(id, params)
		}
	}

	for _, typ := range []protocol.ScheduleType{protocol.ScheduleHeating, protocol.ScheduleWaterHeater} {
		if sched, err := e.fetchSchedule(ctx, typ); err != nil {
			log.Warn("schedule fetch failed", "schedule", typ.String(), "error", err)
		} else {
			e.deps.Store.SetSchedule(sched)
		}
	}

	if alerts, err := e.fetchAlerts(ctx); err != nil {
		log.Warn("alert fetch failed", "error", err)
	} else {
		e.deps.Store.ApplyAlerts(alerts)
	}

	e.deps.Store.SyncDevices(present)
}

func (e *Engine) checkDevice(ctx context.Context) (bool, error) {
	resp, err := e.request(ctx, protocol.TypeCheckDevice, nil)
	if err != nil {
		return false, err
	}
	return protocol.DecodeDeviceAvailable(resp.Payload)
}

func (e *Engine) fetchIdentity(ctx context.Context) (*protocol.DeviceIdentity, error) {
	resp, err := e.request(ctx, protocol.TypeUID, nil)
	if err != nil {
		return nil, err
	}
	return protocol.DecodeDeviceIdentity(resp.Payload)
}

func (e *Engine) fetchVersions(ctx context.Context) ([]protocol.ModuleVersion, error) {
	resp, err := e.request(ctx, protocol.TypeProgramVersion, nil)
	if err != nil {
		return nil, err
	}
	return protocol.DecodeProgramVersionResponse(resp.Payload)
}

func (e *Engine) fetchControllerParams(ctx context.Context) ([]device.Parameter, error) {
	resp, err := e.request(ctx, protocol.TypeParameters,
		protocol.EncodeParametersRequest(0, parameterWindow))
	if err != nil {
		return nil, err
	}
	values, err := protocol.DecodeParametersResponse(resp.Payload)
	if err != nil {
		return nil, err
	}
	return namedParameters(values, protocol.ControllerParamName), nil
}

func (e *Engine) fetchIndexedParams(ctx context.Context, typ protocol.FrameType, wireIndex int, name func(int) string) ([]device.Parameter, error) {
	resp, err := e.request(ctx, typ,
		protocol.EncodeIndexedParametersRequest(wireIndex, 0, parameterWindow))
	if err != nil {
		return nil, err
	}
	_, values, err := protocol.DecodeIndexedParametersResponse(resp.Payload)
	if err != nil {
		return nil, err
	}
	return namedParameters(values, name), nil
}

func (e *Engine) fetchSchedule(ctx context.Context, typ protocol.ScheduleType) (*protocol.Schedule, error) {
	resp, err := e.request(ctx, protocol.TypeSchedules, protocol.EncodeSchedulesRequest(typ))
	if err != nil {
		return nil, err
	}
	return protocol.DecodeSchedule(resp.Payload)
}

func (e *Engine) fetchAlerts(ctx context.Context) ([]protocol.Alert, error) {
	resp, err := e.request(ctx, protocol.TypeAlerts, protocol.EncodeAlertsRequest(0, parameterWindow))
	if err != nil {
		return nil, err
	}
	return protocol.DecodeAlertsResponse(resp.Payload)
}

func namedParameters(values []protocol.ParameterValue, name func(int) string) []device.Parameter {
	params := make([]device.Parameter, len(values))
	for i, v := range values {
		params[i] = device.Parameter{
			Index: v.Index,
			Name:  name(v.Index),
			Value: float64(v.Value),
			Min:   float64(v.Min),
			Max:   float64(v.Max),
		}
	}
	return params
}
