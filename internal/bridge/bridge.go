package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ecosync/core/internal/device"
	"github.com/ecosync/core/internal/infrastructure/logging"
	"github.com/ecosync/core/internal/infrastructure/mqtt"
)

// commandTimeout bounds how long an MQTT-initiated write may occupy the
// device queue before it is abandoned.
const commandTimeout = 30 * time.Second

var (
	ErrBadCommand = errors.New("bridge: malformed command payload")
	ErrClosed     = errors.New("bridge: closed")
)

// Broker is the slice of the MQTT client the bridge uses. *mqtt.Client
// satisfies it.
type Broker interface {
	PublishRetained(topic string, payload []byte) error
	PublishEvent(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Commander executes inbound commands against the boiler.
type Commander interface {
	WriteParameter(ctx context.Context, id device.ID, name string, value float64) error
	TriggerDiscovery()
}

// Deps carries everything a Bridge needs.
type Deps struct {
	Broker Broker
	Store  *device.Store
	Engine Commander
	Logger *logging.Logger
	QoS    byte
}

// Bridge relays store events to MQTT and MQTT commands to the engine.
type Bridge struct {
	broker Broker
	store  *device.Store
	engine Commander
	logger *logging.Logger
	qos    byte
	topics mqtt.Topics

	subID  string
	events <-chan device.Event

	started atomic.Bool
	closing chan struct{}
	done    chan struct{}
}

// New validates deps and builds a Bridge. Call Start to begin relaying.
func New(deps Deps) (*Bridge, error) {
	if deps.Broker == nil {
		return nil, errors.New("bridge: broker is required")
	}
	if deps.Store == nil {
		return nil, errors.New("bridge: store is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("bridge: engine is required")
	}
	if deps.Logger == nil {
		return nil, errors.New("bridge: logger is required")
	}

	return &Bridge{
		broker:  deps.Broker,
		store:   deps.Store,
		engine:  deps.Engine,
		logger:  deps.Logger.With("component", "bridge"),
		qos:     deps.QoS,
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start subscribes to the command topics and begins relaying store
// events onto state topics.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.broker.Subscribe(b.topics.AllCommandParameters(), b.qos, b.handleParameterCommand); err != nil {
		return fmt.Errorf("bridge: subscribe parameter commands: %w", err)
	}
	if err := b.broker.Subscribe(b.topics.CommandDiscovery(), b.qos, b.handleDiscoveryCommand); err != nil {
		return fmt.Errorf("bridge: subscribe discovery command: %w", err)
	}
	if err := b.broker.Subscribe(b.topics.CommandMeter(), b.qos, b.handleMeterCommand); err != nil {
		return fmt.Errorf("bridge: subscribe meter command: %w", err)
	}

	b.subID, b.events = b.store.Subscribe()
	b.started.Store(true)
	go b.pump(ctx)

	b.logger.Info("mqtt bridge started")
	return nil
}

// Close stops relaying and detaches from the store. Subscriptions on
// the broker remain until the client disconnects.
func (b *Bridge) Close() error {
	select {
	case <-b.closing:
		return ErrClosed
	default:
		close(b.closing)
	}
	if b.started.Load() {
		b.store.Unsubscribe(b.subID)
		<-b.done
	}
	return nil
}

func (b *Bridge) pump(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.closing:
			return
		case ev, ok := <-b.events:
			if !ok {
				return
			}
			b.relay(ev)
		}
	}
}

// valuePayload is the JSON body published on state and parameter topics.
type valuePayload struct {
	Value any       `json:"value"`
	Time  time.Time `json:"time"`
}

func (b *Bridge) relay(ev device.Event) {
	var (
		topic    string
		payload  any
		retained bool
	)

	dev := ev.Device.String()
	switch ev.Type {
	case device.EventSensorChanged, device.EventFlagChanged:
		topic = b.topics.State(dev, ev.Name)
		payload = valuePayload{Value: ev.Value, Time: ev.Time}
		retained = true
	case device.EventStateChanged:
		topic = b.topics.DeviceState(dev)
		payload = valuePayload{Value: ev.Value, Time: ev.Time}
		retained = true
	case device.EventParameterChanged:
		topic = b.topics.Parameter(dev, ev.Name)
		payload = valuePayload{Value: ev.Value, Time: ev.Time}
		retained = true
	case device.EventConnection:
		topic = b.topics.Link()
		payload = valuePayload{Value: ev.Value, Time: ev.Time}
		retained = true
	case device.EventAlertRaised, device.EventAlertCleared:
		topic = b.topics.Event("alert")
		payload = ev
	case device.EventDeviceAdded, device.EventDeviceRemoved:
		topic = b.topics.Event("device")
		payload = ev
	case device.EventScheduleChanged:
		topic = b.topics.Event("schedule")
		payload = ev
	default:
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("marshal event", "type", ev.Type, "error", err)
		return
	}

	if retained {
		err = b.broker.PublishRetained(topic, body)
	} else {
		err = b.broker.PublishEvent(topic, body)
	}
	if err != nil {
		b.logger.Warn("publish failed", "topic", topic, "error", err)
	}
}

// handleParameterCommand processes ecosync/command/param/{device}/{name}
// messages. The payload is either a bare number or {"value": n}.
func (b *Bridge) handleParameterCommand(topic string, payload []byte) error {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 {
		return fmt.Errorf("%w: unexpected topic %q", ErrBadCommand, topic)
	}
	id, err := device.ParseID(parts[3])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadCommand, err)
	}
	name := parts[4]

	value, err := parseValue(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := b.engine.WriteParameter(ctx, id, name, value); err != nil {
		b.logger.Warn("parameter command failed",
			"device", id.String(), "name", name, "value", value, "error", err)
		return err
	}
	b.logger.Info("parameter written via mqtt",
		"device", id.String(), "name", name, "value", value)
	return nil
}

func (b *Bridge) handleDiscoveryCommand(_ string, _ []byte) error {
	b.logger.Info("discovery requested via mqtt")
	b.engine.TriggerDiscovery()
	return nil
}

// meterCommand is the payload of ecosync/command/meter.
type meterCommand struct {
	Action string  `json:"action"`
	Total  float64 `json:"total"`
}

func (b *Bridge) handleMeterCommand(_ string, payload []byte) error {
	var cmd meterCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("%w: %v", ErrBadCommand, err)
	}

	switch cmd.Action {
	case "calibrate":
		b.store.Meter().Calibrate(cmd.Total)
		b.logger.Info("fuel meter calibrated via mqtt", "total", cmd.Total)
	case "reset":
		b.store.Meter().Reset()
		b.logger.Info("fuel meter reset via mqtt")
	default:
		return fmt.Errorf("%w: unknown meter action %q", ErrBadCommand, cmd.Action)
	}
	return nil
}

func parseValue(payload []byte) (float64, error) {
	s := strings.TrimSpace(string(payload))
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	var body struct {
		Value *float64 `json:"value"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || body.Value == nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrBadCommand, s)
	}
	return *body.Value, nil
}
