package caseta

import "errors"

// Domain errors for the session package.
//
// Check with errors.Is():
//
//	if errors.Is(err, caseta.ErrDeviceNotFound) {
//	    // unknown device id
//	}
var (
	// ErrDeviceNotFound is returned when a device id is not in the cache.
	ErrDeviceNotFound = errors.New("caseta: device not found")

	// ErrSceneNotFound is returned when a scene id is not in the cache.
	ErrSceneNotFound = errors.New("caseta: scene not found")

	// ErrInvalidLevel is returned when a level is outside 0-100.
	ErrInvalidLevel = errors.New("caseta: level out of range (must be 0-100)")

	// ErrHostRequired is returned when no bridge host is configured.
	ErrHostRequired = errors.New("caseta: bridge host is required")

	// ErrTLSRequired is returned when no TLS configuration is supplied.
	// The session never opens a plaintext connection.
	ErrTLSRequired = errors.New("caseta: TLS configuration is required")

	// ErrClosed is returned when using a bridge after Close.
	ErrClosed = errors.New("caseta: bridge session closed")
)
