// Package leap implements the wire layer of the Lutron LEAP protocol.
//
// LEAP is a line-delimited JSON protocol spoken by the Caseta Smart Bridge
// over mutual TLS on port 8081. Every message is a single JSON object
// terminated by CRLF:
//
//	{"CommuniqueType":"ReadRequest","Header":{"Url":"/device"}}\r\n
//
// # Responsibilities
//
//   - Encode and decode the message envelope (Codec)
//   - Own the TLS socket: dial, serialized writes, line reads, liveness (Conn)
//
// This package is stateless beyond the socket itself. Session semantics
// (login, caches, event routing) live in internal/caseta.
//
// # Thread Safety
//
// Conn.WriteMessage is safe for concurrent use; writes are serialized by an
// internal mutex. ReadLine must only be called from a single goroutine.
package leap
