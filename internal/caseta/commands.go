package caseta

import (
	"fmt"
	"sort"

	"github.com/nerrad567/caseta-leap/internal/leap"
)

// Devices returns a copy of every cached device, sorted by id.
func (b *Bridge) Devices() []Device {
	return b.devicesWhere(func(*Device) bool { return true })
}

// DevicesByDomain returns all devices whose type belongs to the given
// domain. An unrecognized domain returns an empty result, not an error.
func (b *Bridge) DevicesByDomain(domain string) []Device {
	types, ok := domainTypes[domain]
	if !ok {
		return nil
	}
	return b.DevicesByTypes(types)
}

// DevicesByType returns all devices of one LEAP device type,
// e.g. "WallDimmer".
func (b *Bridge) DevicesByType(deviceType string) []Device {
	return b.devicesWhere(func(d *Device) bool { return d.Type == deviceType })
}

// DevicesByTypes returns all devices matching any of the given LEAP
// device types.
func (b *Bridge) DevicesByTypes(deviceTypes []string) []Device {
	set := make(map[string]struct{}, len(deviceTypes))
	for _, t := range deviceTypes {
		set[t] = struct{}{}
	}
	return b.devicesWhere(func(d *Device) bool {
		_, ok := set[d.Type]
		return ok
	})
}

func (b *Bridge) devicesWhere(match func(*Device) bool) []Device {
	b.mu.RLock()
	devices := make([]Device, 0, len(b.devices))
	for _, d := range b.devices {
		if match(d) {
			devices = append(devices, *d)
		}
	}
	b.mu.RUnlock()

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].DeviceID < devices[j].DeviceID
	})
	return devices
}

// DeviceByID returns a copy of the device with the given id.
func (b *Bridge) DeviceByID(deviceID string) (Device, error) {
	b.mu.RLock()
	d, ok := b.devices[deviceID]
	if !ok {
		b.mu.RUnlock()
		return Device{}, fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
	}
	out := *d
	b.mu.RUnlock()
	return out, nil
}

// Scenes returns a copy of every cached scene, sorted by id.
func (b *Bridge) Scenes() []Scene {
	b.mu.RLock()
	scenes := make([]Scene, 0, len(b.scenes))
	for _, s := range b.scenes {
		scenes = append(scenes, s)
	}
	b.mu.RUnlock()

	sort.Slice(scenes, func(i, j int) bool {
		return scenes[i].SceneID < scenes[j].SceneID
	})
	return scenes
}

// SceneByID returns the scene with the given id.
func (b *Bridge) SceneByID(sceneID string) (Scene, error) {
	b.mu.RLock()
	s, ok := b.scenes[sceneID]
	b.mu.RUnlock()
	if !ok {
		return Scene{}, fmt.Errorf("%w: %q", ErrSceneNotFound, sceneID)
	}
	return s, nil
}

// Value returns the device's last known level (0-100, or LevelUnknown if
// no status push has arrived yet).
func (b *Bridge) Value(deviceID string) (int, error) {
	d, err := b.DeviceByID(deviceID)
	if err != nil {
		return 0, err
	}
	return d.CurrentState, nil
}

// IsOn reports whether the device's level is greater than zero.
func (b *Bridge) IsOn(deviceID string) (bool, error) {
	level, err := b.Value(deviceID)
	if err != nil {
		return false, err
	}
	return level > 0, nil
}

// IsConnected reports whether the session is logged in.
func (b *Bridge) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.loggedIn
}

// SetValue drives the device's zone to the given level (0-100).
//
// A device without a zone is a silent no-op: the call returns without
// sending anything. The command is fire-and-forget - LEAP has no response
// correlation, so the call blocks only until the write is flushed, and the
// resulting level change arrives later as a status push.
func (b *Bridge) SetValue(deviceID string, level int) error {
	if level < 0 || level > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidLevel, level)
	}

	d, err := b.DeviceByID(deviceID)
	if err != nil {
		return err
	}
	if d.Zone == "" {
		// Remotes and sensors drive no load.
		return nil
	}

	msg, err := leap.NewGoToLevelRequest(d.Zone, level)
	if err != nil {
		return err
	}
	return b.send(msg)
}

// TurnOn drives the device to full level.
func (b *Bridge) TurnOn(deviceID string) error {
	return b.SetValue(deviceID, 100)
}

// TurnOff drives the device to zero.
func (b *Bridge) TurnOff(deviceID string) error {
	return b.SetValue(deviceID, 0)
}

// ActivateScene presses and releases the scene's virtual button. An
// unknown scene id is a silent no-op.
func (b *Bridge) ActivateScene(sceneID string) error {
	b.mu.RLock()
	_, ok := b.scenes[sceneID]
	b.mu.RUnlock()
	if !ok {
		return nil
	}

	msg, err := leap.NewPressAndReleaseRequest(sceneID)
	if err != nil {
		return err
	}
	return b.send(msg)
}

// send writes one request on the shared connection, reconnecting first if
// the connection is dead. The login gate ensures a reconnect triggered
// here never races one triggered by the monitor loop.
func (b *Bridge) send(msg leap.Message) error {
	if b.closed() {
		return ErrClosed
	}

	c := b.currentConn()
	if c == nil || !c.Alive() {
		if err := b.login(b.ctx); err != nil {
			return err
		}
		c = b.currentConn()
		if c == nil {
			return leap.ErrNotConnected
		}
	}

	if err := c.WriteMessage(msg); err != nil {
		return err
	}
	b.tx.Add(1)
	return nil
}
