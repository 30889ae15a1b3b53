package leap

import "errors"

// Domain errors for the LEAP wire layer.
var (
	// ErrConnectionFailed is returned when the TLS connection to the
	// bridge cannot be established.
	ErrConnectionFailed = errors.New("leap: connection to bridge failed")

	// ErrConnectionReset is returned when the peer drops the connection
	// mid-read or mid-write.
	ErrConnectionReset = errors.New("leap: connection reset")

	// ErrDecode is returned when a received line is not valid JSON.
	ErrDecode = errors.New("leap: decode failed")

	// ErrEncode is returned when a message cannot be serialized.
	ErrEncode = errors.New("leap: encode failed")

	// ErrNotConnected is returned when writing on a closed or dead connection.
	ErrNotConnected = errors.New("leap: not connected")
)
