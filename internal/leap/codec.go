package leap

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Communique types used by this client. The bridge vocabulary is larger;
// only these are interpreted.
const (
	CommuniqueReadRequest   = "ReadRequest"
	CommuniqueCreateRequest = "CreateRequest"
	CommuniqueReadResponse  = "ReadResponse"
)

// Header carries the resource path of a request or response.
type Header struct {
	URL string `json:"Url,omitempty"`
}

// Message is the LEAP envelope: a communique type, a header naming the
// resource, and an optional body whose shape depends on the resource.
type Message struct {
	CommuniqueType string          `json:"CommuniqueType,omitempty"`
	Header         Header          `json:"Header,omitempty"`
	Body           json.RawMessage `json:"Body,omitempty"`
}

// HRef is a reference to a bridge-assigned resource path, e.g. "/zone/3".
type HRef struct {
	Href string `json:"href"`
}

// ID returns the trailing path segment of the reference, which the bridge
// uses as the resource identifier ("/zone/3" -> "3").
func (h HRef) ID() string {
	return TrailingID(h.Href)
}

// TrailingID extracts the text after the last '/' of a resource path.
func TrailingID(href string) string {
	if i := strings.LastIndexByte(href, '/'); i >= 0 {
		return href[i+1:]
	}
	return href
}

// CommandBody is the body of a CreateRequest targeting a commandprocessor.
type CommandBody struct {
	Command Command `json:"Command"`
}

// Command describes a single bridge command.
type Command struct {
	CommandType string             `json:"CommandType"`
	Parameter   []CommandParameter `json:"Parameter,omitempty"`
}

// CommandParameter is a typed command argument.
type CommandParameter struct {
	Type  string `json:"Type"`
	Value int    `json:"Value"`
}

// ZoneStatusBody is the body of a ReadResponse carrying a zone level push.
type ZoneStatusBody struct {
	ZoneStatus *ZoneStatus `json:"ZoneStatus"`
}

// ZoneStatus reports the current level of a single zone.
type ZoneStatus struct {
	Zone  HRef `json:"Zone"`
	Level int  `json:"Level"`
}

// DeviceListBody is the body of the bulk device load response.
type DeviceListBody struct {
	Devices []DeviceEntry `json:"Devices"`
}

// DeviceEntry is one device record as reported by the bridge.
type DeviceEntry struct {
	Href       string `json:"href"`
	Name       string `json:"Name"`
	DeviceType string `json:"DeviceType"`
	LocalZones []HRef `json:"LocalZones,omitempty"`
}

// ButtonListBody is the body of the bulk virtual button load response.
type ButtonListBody struct {
	VirtualButtons []VirtualButtonEntry `json:"VirtualButtons"`
}

// VirtualButtonEntry is one virtual button (scene trigger) record.
type VirtualButtonEntry struct {
	Href         string `json:"href"`
	Name         string `json:"Name"`
	IsProgrammed bool   `json:"IsProgrammed"`
}

// NewReadRequest builds a ReadRequest for the given resource path.
func NewReadRequest(url string) Message {
	return Message{
		CommuniqueType: CommuniqueReadRequest,
		Header:         Header{URL: url},
	}
}

// NewGoToLevelRequest builds the CreateRequest that drives a zone to the
// given level (0-100).
func NewGoToLevelRequest(zoneID string, level int) (Message, error) {
	return newCommandRequest(
		fmt.Sprintf("/zone/%s/commandprocessor", zoneID),
		Command{
			CommandType: "GoToLevel",
			Parameter:   []CommandParameter{{Type: "Level", Value: level}},
		},
	)
}

// NewPressAndReleaseRequest builds the CreateRequest that activates a
// virtual button (scene).
func NewPressAndReleaseRequest(buttonID string) (Message, error) {
	return newCommandRequest(
		fmt.Sprintf("/virtualbutton/%s/commandprocessor", buttonID),
		Command{CommandType: "PressAndRelease"},
	)
}

func newCommandRequest(url string, cmd Command) (Message, error) {
	body, err := json.Marshal(CommandBody{Command: cmd})
	if err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return Message{
		CommuniqueType: CommuniqueCreateRequest,
		Header:         Header{URL: url},
		Body:           body,
	}, nil
}

// Encode serializes a message to its wire form: one JSON object followed
// by CRLF.
func Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return append(data, '\r', '\n'), nil
}

// Decode parses one received line as a message envelope. Trailing line
// terminators are tolerated. A malformed line returns an error wrapping
// ErrDecode; the caller decides whether that is fatal.
func Decode(line []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return msg, nil
}
