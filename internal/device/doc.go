// Package device holds the canonical in-memory state of the controller
// and its sub-devices (mixer circuits, room thermostats).
//
// The Store is the single writer-of-record: the engine applies decoded
// telemetry and parameter data to it, and every consumer (HTTP API, MQTT
// bridge, WebSocket stream) reads snapshots from it or subscribes to its
// event stream. State survives only as long as the process; nothing is
// persisted.
//
// # Change notification
//
// Subscribers receive events when state meaningfully changes. Float
// sensor values pass through a deadband filter: a change is published
// only when the value has moved at least the configured delta from the
// last published value, so ADC jitter does not become event traffic. The
// comparison runs against the last notified value, not the previous
// sample, so a slow drift still surfaces once it accumulates past the
// deadband. Discrete values (states, flags, parameters) notify on every
// change.
//
// Devices are created the first time telemetry or discovery identifies
// them and removed only when a discovery pass omits them; a missed poll
// never deletes state.
package device
