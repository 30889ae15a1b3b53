package mqtt

import (
	"time"

	"github.com/nerrad567/caseta-leap/internal/caseta"
)

// SetMessage is the payload accepted on caseta/device/{id}/set.
//
// Exactly one of Level or On should be set:
//
//	{"level": 50}   dim to 50%
//	{"on": true}    full on
//	{"on": false}   off
type SetMessage struct {
	// Level is the target zone level 0-100.
	Level *int `json:"level,omitempty"`

	// On maps to level 100 (true) or 0 (false).
	On *bool `json:"on,omitempty"`
}

// StateMessage is published retained on caseta/device/{id}/state whenever
// a zone level changes.
type StateMessage struct {
	// DeviceID is the bridge-assigned device identifier.
	DeviceID string `json:"device_id"`

	// Name is the device name as configured in the Lutron app.
	Name string `json:"name"`

	// Type is the Lutron model type (e.g., "WallDimmer").
	Type string `json:"type"`

	// Level is the current zone level 0-100, or -1 when unknown.
	Level int `json:"level"`

	// On is true when the level is greater than zero.
	On bool `json:"on"`

	// Timestamp is when the state was observed (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`
}

// newStateMessage builds a StateMessage from a cached device snapshot.
func newStateMessage(d caseta.Device) StateMessage {
	return StateMessage{
		DeviceID:  d.DeviceID,
		Name:      d.Name,
		Type:      d.Type,
		Level:     d.CurrentState,
		On:        d.CurrentState > 0,
		Timestamp: time.Now().UTC(),
	}
}
