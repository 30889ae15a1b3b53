package mqtt

import "fmt"

// TopicPrefix is the base of every topic published or consumed by the
// daemon: caseta/{category}/{id}/{verb}.
const TopicPrefix = "caseta"

// Topics provides builders for the daemon's MQTT topics. Using these
// helpers keeps topic naming consistent between the publisher, the command
// subscriptions and external consumers.
//
//	topics := mqtt.Topics{}
//	topics.DeviceState("5") // "caseta/device/5/state"
type Topics struct{}

// DeviceState returns the retained state topic for a device.
//
// Example: caseta/device/5/state
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefix, deviceID)
}

// DeviceSet returns the command topic that drives a device to a level.
//
// Example: caseta/device/5/set
func (Topics) DeviceSet(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/set", TopicPrefix, deviceID)
}

// SceneActivate returns the command topic that activates a scene.
//
// Example: caseta/scene/23/activate
func (Topics) SceneActivate(sceneID string) string {
	return fmt.Sprintf("%s/scene/%s/activate", TopicPrefix, sceneID)
}

// BridgeStatus returns the daemon status topic, also used for the LWT.
//
// Example: caseta/bridge/status
func (Topics) BridgeStatus() string {
	return fmt.Sprintf("%s/bridge/status", TopicPrefix)
}

// AllDeviceSets returns a pattern matching every device set command.
//
// Pattern: caseta/device/+/set
func (Topics) AllDeviceSets() string {
	return fmt.Sprintf("%s/device/+/set", TopicPrefix)
}

// AllSceneActivations returns a pattern matching every scene activation.
//
// Pattern: caseta/scene/+/activate
func (Topics) AllSceneActivations() string {
	return fmt.Sprintf("%s/scene/+/activate", TopicPrefix)
}
