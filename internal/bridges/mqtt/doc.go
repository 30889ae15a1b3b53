// Package mqtt bridges the Caseta Smart Bridge to an MQTT broker.
//
// The bridge publishes retained device state whenever a zone level changes
// and accepts commands over MQTT, translating them into LEAP commands on
// the Smart Bridge connection.
//
// # Topic Scheme
//
//	caseta/device/{id}/state     retained state, published by the bridge
//	caseta/device/{id}/set       command, consumed by the bridge
//	caseta/scene/{id}/activate   command, consumed by the bridge
//	caseta/bridge/status         daemon online/offline (published by the MQTT client)
//
// # Data Flow
//
//	Smart Bridge ──zone update──> caseta.Bridge ──callback──> publish state
//	MQTT set/activate ──handler──> caseta.Bridge ──LEAP──> Smart Bridge
//
// State messages are retained so late subscribers immediately see the
// current level of every zone. Command topics are not retained.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Command handlers run on the
// MQTT client's goroutines; state callbacks run on the Caseta monitor
// goroutine.
package mqtt
