package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/caseta-leap/internal/caseta"
	mqttclient "github.com/nerrad567/caseta-leap/internal/infrastructure/mqtt"
)

// Bridge operation constants.
const (
	// topicParts is the number of parts in a valid command topic
	// (caseta/device/{id}/set, caseta/scene/{id}/activate).
	topicParts = 4
)

// Bridge orchestrates bidirectional translation between the Caseta Smart
// Bridge and MQTT. It handles:
//   - Receiving commands over MQTT and translating them to LEAP commands
//   - Publishing retained state when zone levels change
//   - Optional telemetry recording for state changes
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt     MQTTClient
	caseta   DeviceController
	recorder Recorder // Optional telemetry recorder
	qos      byte

	// Shutdown coordination
	done     chan struct{}
	stopOnce sync.Once

	// Logger
	logger   Logger
	loggerMu sync.RWMutex
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqttclient.MessageHandler) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// DeviceController is the Caseta-side interface the bridge drives.
// It is satisfied by *caseta.Bridge.
type DeviceController interface {
	// Devices returns a snapshot of all cached devices.
	Devices() []caseta.Device

	// DeviceByID returns a single cached device.
	DeviceByID(deviceID string) (caseta.Device, error)

	// SetValue drives a device's zone to a level 0-100.
	SetValue(deviceID string, level int) error

	// TurnOn drives a device's zone to 100.
	TurnOn(deviceID string) error

	// TurnOff drives a device's zone to 0.
	TurnOff(deviceID string) error

	// ActivateScene triggers a programmed scene.
	ActivateScene(sceneID string) error

	// SceneByID returns a single cached scene.
	SceneByID(sceneID string) (caseta.Scene, error)

	// Subscribe registers a callback fired when the device's level changes.
	Subscribe(deviceID string, callback func())
}

// Recorder records zone level changes and scene activations for telemetry.
// This is optional - if nil, the bridge operates without recording.
// It is satisfied by *influxdb.Client.
type Recorder interface {
	// WriteZoneLevel records a zone level observation.
	WriteZoneLevel(deviceID string, name string, deviceType string, level int)

	// WriteSceneActivation records a scene activation.
	WriteSceneActivation(sceneID string, name string)
}

// Logger is the minimal structured logging interface the bridge needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Controller is the Caseta connection.
	Controller DeviceController

	// QoS is the QoS level for subscriptions and state publishes.
	QoS byte

	// Logger is optional structured logger.
	Logger Logger

	// Recorder is optional telemetry recorder for zone level changes.
	// If nil, the bridge operates without recording.
	Recorder Recorder
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}

	return &Bridge{
		mqtt:     opts.MQTTClient,
		caseta:   opts.Controller,
		recorder: opts.Recorder, // May be nil (optional)
		qos:      opts.QoS,
		done:     make(chan struct{}),
		logger:   opts.Logger,
	}, nil
}

// Start begins bridge operation.
// This subscribes to command topics, registers state callbacks for every
// cached device, and publishes the initial retained state of each device.
func (b *Bridge) Start() error {
	// Subscribe to device set commands
	setTopic := mqttclient.Topics{}.AllDeviceSets()
	if err := b.mqtt.Subscribe(setTopic, b.qos, b.handleMessage); err != nil {
		return fmt.Errorf("subscribe to device commands: %w", err)
	}
	b.logInfo("subscribed to device commands", "topic", setTopic)

	// Subscribe to scene activations
	sceneTopic := mqttclient.Topics{}.AllSceneActivations()
	if err := b.mqtt.Subscribe(sceneTopic, b.qos, b.handleMessage); err != nil {
		return fmt.Errorf("subscribe to scene commands: %w", err)
	}
	b.logInfo("subscribed to scene commands", "topic", sceneTopic)

	// Register state callbacks and publish initial retained state.
	// This covers the devices cached when Start runs; a device added to
	// the hub afterwards is not mirrored until the daemon restarts.
	devices := b.caseta.Devices()
	for _, dev := range devices {
		deviceID := dev.DeviceID
		b.caseta.Subscribe(deviceID, func() {
			b.publishDeviceState(deviceID)
		})
		b.publishState(dev)
	}

	b.logInfo("bridge started", "devices", len(devices))

	return nil
}

// Stop gracefully shuts down the bridge.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.logInfo("bridge stopped")
	})
}

// handleMessage routes incoming MQTT messages to appropriate handlers.
func (b *Bridge) handleMessage(topic string, payload []byte) error {
	select {
	case <-b.done:
		return nil
	default:
	}

	parts := strings.Split(topic, "/")
	if len(parts) != topicParts {
		return fmt.Errorf("invalid topic format: %s", topic)
	}

	category, id, verb := parts[1], parts[2], parts[3]

	switch {
	case category == "device" && verb == "set":
		return b.handleSet(id, payload)
	case category == "scene" && verb == "activate":
		return b.handleSceneActivate(id)
	default:
		return fmt.Errorf("unknown command topic: %s", topic)
	}
}

// handleSet processes a device set command.
func (b *Bridge) handleSet(deviceID string, payload []byte) error {
	var cmd SetMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("parse set command: %w", err)
	}

	switch {
	case cmd.Level != nil:
		b.logDebug("set level", "device_id", deviceID, "level", *cmd.Level)
		return b.caseta.SetValue(deviceID, *cmd.Level)
	case cmd.On != nil && *cmd.On:
		b.logDebug("turn on", "device_id", deviceID)
		return b.caseta.TurnOn(deviceID)
	case cmd.On != nil:
		b.logDebug("turn off", "device_id", deviceID)
		return b.caseta.TurnOff(deviceID)
	default:
		return fmt.Errorf("set command for %s has neither level nor on", deviceID)
	}
}

// handleSceneActivate processes a scene activation command. Activations of
// scenes in the cache are recorded; an unknown scene id is a silent no-op
// on the Caseta side and is not recorded.
func (b *Bridge) handleSceneActivate(sceneID string) error {
	b.logDebug("activate scene", "scene_id", sceneID)
	if err := b.caseta.ActivateScene(sceneID); err != nil {
		return err
	}

	if b.recorder != nil {
		if scene, err := b.caseta.SceneByID(sceneID); err == nil {
			b.recorder.WriteSceneActivation(scene.SceneID, scene.Name)
		}
	}

	return nil
}

// publishDeviceState looks up a device and publishes its retained state.
// Called from the Caseta change callback after a zone update.
func (b *Bridge) publishDeviceState(deviceID string) {
	dev, err := b.caseta.DeviceByID(deviceID)
	if err != nil {
		b.logError("state callback for unknown device", err)
		return
	}
	b.publishState(dev)

	if b.recorder != nil {
		b.recorder.WriteZoneLevel(dev.DeviceID, dev.Name, dev.Type, dev.CurrentState)
	}
}

// publishState publishes a retained state message for a device snapshot.
func (b *Bridge) publishState(dev caseta.Device) {
	msg := newStateMessage(dev)

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}

	topic := mqttclient.Topics{}.DeviceState(dev.DeviceID)
	if err := b.mqtt.Publish(topic, payload, b.qos, true); err != nil {
		b.logError("failed to publish state", err)
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
