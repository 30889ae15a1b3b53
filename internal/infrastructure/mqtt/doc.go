// Package mqtt wraps paho.mqtt.golang for the optional MQTT surface of the
// daemon.
//
// It provides connection management with automatic reconnection,
// publishing with timeouts, subscription tracking with restore-on-reconnect
// and Last Will and Testament for offline detection. Topic names live in
// topics.go; the translation between device state and MQTT payloads lives
// in internal/bridges/mqtt.
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
package mqtt
