// Package engine drives the synchronization cycle between the controller
// and the device state store.
//
// Two loops run against the link. The telemetry loop requests sensor data
// every telemetry interval and folds the response into the store. The
// refresh loop runs the full discovery sequence at the parameter
// interval: device availability, identity, firmware versions, parameter
// sets for the controller and every sub-device, schedules and the alert
// log. Discovery also runs when the link comes up and on demand, and it
// is idempotent; re-running it converges on the same store state.
//
// Writes go through the coordinator, which validates values against the
// device-reported range before anything touches the bus, serialises
// writes per device in FIFO order, and applies the new value to the
// store only after the controller acknowledges it.
//
// Unsolicited sensor and regulator frames pushed by the controller enter
// through HandleFrame and update the store exactly like polled data.
package engine
