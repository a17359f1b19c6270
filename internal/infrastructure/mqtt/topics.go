package mqtt

import "fmt"

// TopicPrefix is the root of every ecoSYNC topic.
const TopicPrefix = "ecosync"

// Topics provides builders for ecoSYNC MQTT topics. Using these helpers
// keeps topic naming consistent between the publisher and external
// consumers.
//
//	topics := mqtt.Topics{}
//	topics.State("controller", "heating_temp")
//	// Returns: "ecosync/state/controller/heating_temp"
type Topics struct{}

// SystemStatus is the gateway liveness topic: retained online/offline
// payloads, also the LWT target.
//
// Example: ecosync/system/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// Link is the controller connection state topic.
//
// Example: ecosync/system/link
func (Topics) Link() string {
	return TopicPrefix + "/system/link"
}

// State returns the topic for one sensor or flag value of a device.
//
// Example: ecosync/state/mixer.1/mixer_temp
func (Topics) State(deviceID, name string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, deviceID, name)
}

// DeviceState returns the topic for a device's operating state.
//
// Example: ecosync/state/controller/device_state
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/state/%s/device_state", TopicPrefix, deviceID)
}

// Parameter returns the topic for one parameter value of a device.
//
// Example: ecosync/param/controller/heating_target_temp
func (Topics) Parameter(deviceID, name string) string {
	return fmt.Sprintf("%s/param/%s/%s", TopicPrefix, deviceID, name)
}

// Event returns the topic for a system event type.
//
// Example: ecosync/event/alert
func (Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, eventType)
}

// CommandParameter returns the inbound topic for parameter writes.
//
// Example: ecosync/command/param/controller/heating_target_temp
func (Topics) CommandParameter(deviceID, name string) string {
	return fmt.Sprintf("%s/command/param/%s/%s", TopicPrefix, deviceID, name)
}

// CommandDiscovery is the inbound topic triggering a discovery pass.
//
// Example: ecosync/command/discovery
func (Topics) CommandDiscovery() string {
	return TopicPrefix + "/command/discovery"
}

// CommandMeter is the inbound topic for fuel meter calibrate/reset.
//
// Example: ecosync/command/meter
func (Topics) CommandMeter() string {
	return TopicPrefix + "/command/meter"
}

// AllCommandParameters matches every inbound parameter write.
//
// Pattern: ecosync/command/param/+/+
func (Topics) AllCommandParameters() string {
	return TopicPrefix + "/command/param/+/+"
}

// AllStates matches every published state value.
//
// Pattern: ecosync/state/+/+
func (Topics) AllStates() string {
	return TopicPrefix + "/state/+/+"
}

// AllTopics matches all ecoSYNC traffic. Use with caution.
//
// Pattern: ecosync/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
