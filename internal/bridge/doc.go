// Package bridge connects the device state store to the MQTT broker.
//
// Outbound, it subscribes to the store's event stream and publishes
// sensor values, parameter values, controller state, alerts and device
// lifecycle onto ecosync topics. Value topics are retained so consumers
// joining late see the current state immediately.
//
// Inbound, it subscribes to command topics: parameter writes, discovery
// triggers and fuel meter calibration arrive over MQTT and are routed
// through the engine the same way API requests are, including range
// validation and device acknowledgement.
package bridge
