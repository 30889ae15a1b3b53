package caseta

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/caseta-leap/internal/leap"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the parameters for a bridge session.
type Config struct {
	// Host is the Smart Bridge hostname or IP.
	Host string

	// Port is the LEAP port. Default: 8081.
	Port int

	// TLS is the pre-configured mutual-TLS context (client certificate,
	// CA pool). Required; see internal/infrastructure/mtls.
	TLS *tls.Config

	// Logger receives session events. Default: no logging.
	Logger Logger
}

// Stats holds operational statistics for a bridge session.
type Stats struct {
	MessagesRx   uint64
	MessagesTx   uint64
	ErrorsTotal  uint64
	Logins       uint64 // Successful login sequences, including the first
	LastActivity time.Time
	Connected    bool
}

// conn is the subset of *leap.Conn the session uses. Tests substitute a
// scripted fake.
type conn interface {
	ReadLine() ([]byte, error)
	WriteMessage(leap.Message) error
	Alive() bool
	Close() error
}

// dialFunc opens a fresh connection to the bridge.
type dialFunc func(ctx context.Context) (conn, error)

// Bridge is a persistent session with one Smart Bridge.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
//   - The device/scene cache is mutated only by login and the monitor
//     goroutine; queries return copies.
//
// Reconnection:
//   - The monitor loop re-runs the login check before every read. A dead
//     connection is replaced and both caches are rebuilt from scratch on
//     the next iteration. The session retries forever, with no backoff.
type Bridge struct {
	host   string
	port   int
	dial   dialFunc
	logger Logger

	// loginMu is the exclusive login gate: one login sequence at a time,
	// concurrent callers wait for the in-flight attempt's outcome.
	loginMu sync.Mutex

	// mu guards the connection handle, the ready flag and both caches.
	mu       sync.RWMutex
	conn     conn
	loggedIn bool
	devices  map[string]*Device
	scenes   map[string]Scene

	// subscribers maps device id to its notification callback.
	subMu       sync.RWMutex
	subscribers map[string]func()

	// Lifecycle. ctx outlives the caller's Connect context; it is
	// cancelled only by Close and bounds reconnect dials.
	ctx    context.Context
	cancel context.CancelFunc
	done   *closeOnce
	wg     sync.WaitGroup

	// Statistics (atomic for performance)
	rx           atomic.Uint64
	tx           atomic.Uint64
	errorsTotal  atomic.Uint64
	logins       atomic.Uint64
	lastActivity atomic.Int64 // Unix timestamp
}

// Connect establishes a session with the bridge.
//
// It performs a blocking first login (connect, bulk-load devices and
// scenes, request live status for every zone-backed device) and then
// starts the event monitor goroutine. The context bounds the first login
// only; the session itself lives until Close.
//
// Parameters:
//   - ctx: Context for the initial login
//   - cfg: Session configuration
//
// Returns:
//   - *Bridge: Logged-in session with the monitor running
//   - error: If configuration is invalid or the first login fails
func Connect(ctx context.Context, cfg Config) (*Bridge, error) {
	if cfg.Host == "" {
		return nil, ErrHostRequired
	}
	if cfg.TLS == nil {
		return nil, ErrTLSRequired
	}
	port := cfg.Port
	if port == 0 {
		port = leap.DefaultPort
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	b := newBridge(cfg.Host, port, logger, func(dialCtx context.Context) (conn, error) {
		return leap.Dial(dialCtx, cfg.Host, port, cfg.TLS)
	})

	if err := b.login(ctx); err != nil {
		b.cancel()
		return nil, err
	}

	b.wg.Add(1)
	go b.monitor()

	return b, nil
}

// newBridge wires the session state without touching the network.
// Split out so tests can inject a fake dialer and drive login directly.
func newBridge(host string, port int, logger Logger, dial dialFunc) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		host:        host,
		port:        port,
		dial:        dial,
		logger:      logger,
		devices:     make(map[string]*Device),
		scenes:      make(map[string]Scene),
		subscribers: make(map[string]func()),
		ctx:         ctx,
		cancel:      cancel,
		done:        newCloseOnce(),
	}
}

// login is the single entry point of the connect/reconnect state machine.
//
// The fast path: if the current connection is alive, return immediately.
// This makes login cheap to call opportunistically before every read.
// Otherwise the stale connection is discarded and a full sequence runs:
// fresh TLS connection, wholesale device reload, wholesale scene reload,
// fire-and-forget status reads for every zone. Any failure leaves the
// session disconnected and propagates; the monitor loop retries on its
// next iteration rather than this method self-retrying.
func (b *Bridge) login(ctx context.Context) error {
	b.loginMu.Lock()
	defer b.loginMu.Unlock()

	b.mu.RLock()
	cur := b.conn
	b.mu.RUnlock()
	if cur != nil && cur.Alive() {
		return nil
	}

	// Discard the stale connection and mark the session not ready.
	b.mu.Lock()
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	b.loggedIn = false
	b.mu.Unlock()

	b.logger.Debug("connecting to bridge", "host", b.host, "port", b.port)
	nc, err := b.dial(ctx)
	if err != nil {
		return err
	}

	devices, err := b.loadDevices(nc)
	if err != nil {
		nc.Close()
		return err
	}

	scenes, err := b.loadScenes(nc)
	if err != nil {
		nc.Close()
		return err
	}

	// Ask the bridge to push current levels for every zone. The responses
	// are consumed later by the monitor loop, not awaited here.
	for _, d := range devices {
		if d.Zone == "" {
			continue
		}
		if err := nc.WriteMessage(leap.NewReadRequest("/zone/" + d.Zone + "/status")); err != nil {
			nc.Close()
			return err
		}
		b.tx.Add(1)
	}

	// Replace both caches wholesale together with the connection. Devices
	// removed from the bridge simply disappear from this generation.
	b.mu.Lock()
	b.conn = nc
	b.devices = devices
	b.scenes = scenes
	b.loggedIn = true
	b.mu.Unlock()

	b.logins.Add(1)
	b.touch()
	b.logger.Info("logged in to bridge",
		"devices", len(devices),
		"scenes", len(scenes),
	)
	return nil
}

// loadDevices bulk-loads the device list: one write, one read.
func (b *Bridge) loadDevices(nc conn) (map[string]*Device, error) {
	body, err := b.request(nc, "/device")
	if err != nil {
		return nil, err
	}

	var list leap.DeviceListBody
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("%w: device list body: %w", leap.ErrDecode, err)
	}

	devices := make(map[string]*Device, len(list.Devices))
	for _, entry := range list.Devices {
		id := leap.TrailingID(entry.Href)
		zone := ""
		if len(entry.LocalZones) > 0 {
			zone = entry.LocalZones[0].ID()
		}
		devices[id] = &Device{
			DeviceID:     id,
			Name:         entry.Name,
			Type:         entry.DeviceType,
			Zone:         zone,
			CurrentState: LevelUnknown,
		}
	}
	return devices, nil
}

// loadScenes bulk-loads the virtual button list, keeping programmed
// buttons only.
func (b *Bridge) loadScenes(nc conn) (map[string]Scene, error) {
	body, err := b.request(nc, "/virtualbutton")
	if err != nil {
		return nil, err
	}

	var list leap.ButtonListBody
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("%w: virtual button body: %w", leap.ErrDecode, err)
	}

	scenes := make(map[string]Scene, len(list.VirtualButtons))
	for _, entry := range list.VirtualButtons {
		if !entry.IsProgrammed {
			continue
		}
		id := leap.TrailingID(entry.Href)
		scenes[id] = Scene{SceneID: id, Name: entry.Name}
	}
	return scenes, nil
}

// request performs one synchronous read request on the login path. LEAP
// has no correlation ids; responses are consumed in read order, which is
// safe here because the monitor is never reading while login holds the
// gate on a connection it has not yet published.
func (b *Bridge) request(nc conn, url string) (json.RawMessage, error) {
	if err := nc.WriteMessage(leap.NewReadRequest(url)); err != nil {
		return nil, err
	}
	b.tx.Add(1)

	line, err := nc.ReadLine()
	if err != nil {
		return nil, err
	}

	msg, err := leap.Decode(line)
	if err != nil {
		return nil, err
	}
	b.rx.Add(1)
	return msg.Body, nil
}

// currentConn returns the published connection handle, or nil.
func (b *Bridge) currentConn() conn {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.conn
}

// closed reports whether Close has been called.
func (b *Bridge) closed() bool {
	select {
	case <-b.done.Done():
		return true
	default:
		return false
	}
}

func (b *Bridge) touch() {
	b.lastActivity.Store(time.Now().Unix())
}

// Subscribe registers a callback invoked whenever the device's zone level
// changes, including changes made by physical remotes. One callback per
// device id; re-registering replaces the previous one. The callback
// receives no arguments and runs on the monitor goroutine - re-query the
// cache for the new value, and do not block.
func (b *Bridge) Subscribe(deviceID string, callback func()) {
	b.subMu.Lock()
	b.subscribers[deviceID] = callback
	b.subMu.Unlock()
}

// Stats returns current operational statistics.
func (b *Bridge) Stats() Stats {
	return Stats{
		MessagesRx:   b.rx.Load(),
		MessagesTx:   b.tx.Load(),
		ErrorsTotal:  b.errorsTotal.Load(),
		Logins:       b.logins.Load(),
		LastActivity: time.Unix(b.lastActivity.Load(), 0),
		Connected:    b.IsConnected(),
	}
}

// Close ends the session: stops the monitor loop, closes the connection
// and waits for the goroutine to finish. Safe to call multiple times.
func (b *Bridge) Close() error {
	b.done.Close()
	b.cancel()

	b.mu.Lock()
	if b.conn != nil {
		b.conn.Close()
	}
	b.loggedIn = false
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("bridge session closed")
	return nil
}
