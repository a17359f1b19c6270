package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ecosync/core/internal/device"
	"github.com/ecosync/core/internal/infrastructure/logging"
	"github.com/ecosync/core/internal/protocol"
)

var (
	ErrWriteRejected = errors.New("engine: device rejected write")
	ErrOutOfRange    = errors.New("engine: value out of range")
	ErrUnknownDevice = errors.New("engine: unknown device")
	ErrBadResponse   = errors.New("engine: malformed response")
	ErrDeviceOffline = errors.New("engine: device not available")
	ErrClosed        = errors.New("engine: closed")
)

// Requester is the slice of the link the engine needs. Satisfied by
// *link.Link.
type Requester interface {
	Request(ctx context.Context, frame *protocol.Frame) (*protocol.Frame, error)
	Connected() bool
}

// Deps carries the engine's dependencies and poll timing.
type Deps struct {
	Link   Requester
	Store  *device.Store
	Logger *logging.Logger

	TelemetryInterval time.Duration
	ParameterInterval time.Duration
}

// Engine owns the poll loops and the write coordinator.
type Engine struct {
	deps Deps
	log  *logging.Logger
	now  func() time.Time

	writes *writeCoordinator

	// lastSample anchors fuel meter integration between telemetry
	// samples.
	mu         sync.Mutex
	lastSample time.Time

	kick      chan struct{}
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	started   bool
}

// New validates deps and returns an unstarted engine.
func New(deps Deps) (*Engine, error) {
	if deps.Link == nil {
		return nil, errors.New("engine: link is required")
	}
	if deps.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.TelemetryInterval <= 0 {
		deps.TelemetryInterval = time.Second
	}
	if deps.ParameterInterval <= 0 {
		deps.ParameterInterval = 30 * time.Second
	}

	e := &Engine{
		deps:    deps,
		log:     deps.Logger.With("component", "engine"),
		now:     time.Now,
		kick:    make(chan struct{}, 1),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	e.writes = newWriteCoordinator(e)
	return e, nil
}

// Start launches the poll loops. It returns immediately.
func (e *Engine) Start(ctx context.Context) error {
	select {
	case <-e.closing:
		return ErrClosed
	default:
	}
	e.started = true
	go e.run(ctx)
	return nil
}

// Close stops the loops and fails queued writes.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		close(e.closing)
		e.writes.close()
		if e.started {
			<-e.done
		}
	})
	return nil
}

// TriggerDiscovery schedules a full refresh outside the regular cadence,
// typically after the link reconnects. Non-blocking; discoveries collapse
// if one is already pending.
func (e *Engine) TriggerDiscovery() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	telemetry := time.NewTicker(e.deps.TelemetryInterval)
	defer telemetry.Stop()
	refresh := time.NewTicker(e.deps.ParameterInterval)
	defer refresh.Stop()

	e.discover(ctx)

	for {
		select {
		case <-telemetry.C:
			if _, err := e.pollTelemetry(ctx); err != nil && e.deps.Link.Connected() {
				e.log.Warn("telemetry poll failed", "error", err)
			}
		case <-refresh.C:
			e.discover(ctx)
		case <-e.kick:
			e.discover(ctx)
		case <-ctx.Done():
			return
		case <-e.closing:
			return
		}
	}
}

// request sends one typed request to the controller and returns the
// response frame.
func (e *Engine) request(ctx context.Context, typ protocol.FrameType, payload []byte) (*protocol.Frame, error) {
	return e.deps.Link.Request(ctx, protocol.NewRequest(protocol.AddressEcoMax, typ, payload))
}

// pollTelemetry requests a sensor snapshot and applies it.
func (e *Engine) pollTelemetry(ctx context.Context) (*protocol.SensorSnapshot, error) {
	if !e.deps.Link.Connected() {
		return nil, ErrDeviceOffline
	}
	resp, err := e.request(ctx, protocol.TypeSensorData, nil)
	if err != nil {
		return nil, err
	}
	snap, err := protocol.DecodeSensorSnapshot(resp.Payload)
	if err != nil {
		return nil, err
	}
	e.applySnapshot(snap)
	return snap, nil
}

// applySnapshot accrues the fuel meter for the elapsed interval and folds
// the snapshot into the store. Shared by the poll loop and unsolicited
// frame handling.
func (e *Engine) applySnapshot(snap *protocol.SensorSnapshot) {
	e.mu.Lock()
	now := e.now()
	if !e.lastSample.IsZero() {
		e.deps.Store.Meter().Accrue(snap.FuelConsumption, now.Sub(e.lastSample).Seconds())
	}
	e.lastSample = now
	e.mu.Unlock()

	e.deps.Store.ApplySensorSnapshot(snap)
}

// HandleFrame processes frames the link could not match to a request:
// telemetry the controller pushes on its own schedule.
func (e *Engine) HandleFrame(f *protocol.Frame) {
	switch f.Type {
	case protocol.TypeSensorDataResponse:
		snap, err := protocol.DecodeSensorSnapshot(f.Payload)
		if err != nil {
			e.log.Warn("bad unsolicited sensor frame", "error", err)
			return
		}
		e.applySnapshot(snap)
	case protocol.TypeRegulatorData:
		snap, err := protocol.DecodeRegulatorSnapshot(f.Payload)
		if err != nil {
			e.log.Warn("bad regulator broadcast", "error", err)
			return
		}
		e.deps.Store.ApplyRegulatorSnapshot(snap)
	default:
		e.log.Debug("unexpected unsolicited frame", "type", f.Type.String(), "sender", f.Sender.String())
	}
}

// SetControl switches the controller on or off.
func (e *Engine) SetControl(ctx context.Context, on bool) error {
	resp, err := e.request(ctx, protocol.TypeControl, protocol.EncodeControlRequest(on))
	if err != nil {
		return err
	}
	if _, accepted, err := protocol.DecodeWriteResponse(resp.Payload); err != nil {
		return errors.Join(ErrBadResponse, err)
	} else if !accepted {
		return ErrWriteRejected
	}
	return nil
}
