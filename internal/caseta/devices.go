package caseta

import "sort"

// LevelUnknown is the level of a zone-backed device before its first
// status push arrives.
const LevelUnknown = -1

// Device is one entry in the device cache. The id and zone are the trailing
// path segments of the bridge-assigned resource references. Zone is empty
// for devices that drive no controllable load (Pico remotes, sensors);
// those devices never receive status pushes and CurrentState stays
// LevelUnknown for them.
type Device struct {
	DeviceID     string `json:"device_id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Zone         string `json:"zone,omitempty"`
	CurrentState int    `json:"current_state"`
}

// Scene is one programmed virtual button on the bridge. Unprogrammed
// buttons are filtered out at load time.
type Scene struct {
	SceneID string `json:"scene_id"`
	Name    string `json:"name"`
}

// Coarse device domains. A domain groups the fixed LEAP device-type
// vocabulary for callers that think in terms of lights and shades rather
// than Lutron model names.
const (
	DomainLight  = "light"
	DomainSwitch = "switch"
	DomainCover  = "cover"
	DomainSensor = "sensor"
)

// domainTypes is the static partition of LEAP device types into domains.
// Pure classification; nothing is stored per-device.
var domainTypes = map[string][]string{
	DomainLight: {
		"WallDimmer",
		"PlugInDimmer",
	},
	DomainSwitch: {
		"WallSwitch",
	},
	DomainCover: {
		"SerenaHoneycombShade",
		"SerenaRollerShade",
		"TriathlonHoneycombShade",
		"TriathlonRollerShade",
		"QsWirelessShade",
	},
	DomainSensor: {
		"Pico1Button",
		"Pico2Button",
		"Pico2ButtonRaiseLower",
		"Pico3Button",
		"Pico3ButtonRaiseLower",
		"Pico4Button",
		"Pico4ButtonScene",
		"Pico4Button2Group",
		"Pico4ButtonZone",
	},
}

// Domains returns the known domain names, sorted.
func Domains() []string {
	names := make([]string, 0, len(domainTypes))
	for name := range domainTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TypesForDomain returns the LEAP device types belonging to a domain, or
// nil for an unrecognized domain.
func TypesForDomain(domain string) []string {
	types, ok := domainTypes[domain]
	if !ok {
		return nil
	}
	out := make([]string, len(types))
	copy(out, types)
	return out
}
