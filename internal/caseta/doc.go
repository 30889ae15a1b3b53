// Package caseta maintains a persistent authenticated session with a
// Lutron Caseta Smart Bridge over the LEAP protocol.
//
// One Bridge owns one long-lived mutual-TLS connection. On every (re)connect
// it bulk-loads the bridge's devices and scenes into an in-memory cache and
// requests live status for every zone-backed device. A background monitor
// goroutine then reads pushed messages forever, updating the cache and
// notifying registered subscribers when a zone level changes, whether the
// change came from this client or from a physical remote.
//
// # Architecture
//
//	┌──────────────┐  commands   ┌──────────────┐  CRLF JSON   ┌──────────────┐
//	│   Callers    │────────────►│    Bridge    │◄────────────►│ Smart Bridge │
//	│ (CLI, MQTT)  │◄────────────│  (this pkg)  │   over mTLS  │  LEAP server │
//	└──────────────┘  callbacks  └──────────────┘              └──────────────┘
//
// # Concurrency
//
// The monitor goroutine is the only reader of the connection outside the
// login sequence, and the only mutator of the cache besides login itself.
// Login is guarded by an exclusive gate: a reconnect triggered by a command
// path and one triggered by the monitor never run concurrently; the second
// caller waits for the in-flight attempt and reuses its outcome. Command
// writes are serialized at the transport layer and block only until the
// write is flushed. LEAP provides no response correlation, so commands are
// fire-and-forget and confirmation arrives later as a status push.
//
// # Error Handling
//
// Login failures propagate to the caller (Connect or a command); inside the
// monitor loop they are logged and retried on the next iteration, forever.
// Decode errors and connection resets observed by the monitor are likewise
// absorbed. Lookup misses return ErrDeviceNotFound / ErrSceneNotFound.
package caseta
