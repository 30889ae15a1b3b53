package leap

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
)

// DefaultPort is the LEAP server port on the Smart Bridge.
const DefaultPort = 8081

// Conn is one TLS connection to the bridge.
//
// Reads are line-oriented and must come from a single goroutine (the event
// monitor, or login while it holds the session gate). Writes may come from
// any goroutine and are serialized by an internal mutex so a command write
// never interleaves with another write on the socket.
//
// The session layer imposes no I/O timeouts; a hung socket blocks until the
// peer or Close tears it down.
type Conn struct {
	conn net.Conn
	r    *bufio.Reader

	writeMu sync.Mutex

	alive     atomic.Bool
	closeOnce sync.Once
}

// Dial opens a mutual-TLS connection to the bridge. The TLS configuration
// (client certificate, CA pool) is supplied by the caller; see
// internal/infrastructure/mtls. The context bounds the dial only, not the
// lifetime of the connection.
func Dial(ctx context.Context, host string, port int, tlsCfg *tls.Config) (*Conn, error) {
	if port == 0 {
		port = DefaultPort
	}
	dialer := &tls.Dialer{Config: tlsCfg}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, addr, err)
	}

	return NewConn(nc), nil
}

// NewConn wraps an established connection. It exists so the session layer
// and tests can supply a pre-built pipe instead of a real TLS socket.
func NewConn(nc net.Conn) *Conn {
	c := &Conn{
		conn: nc,
		r:    bufio.NewReader(nc),
	}
	c.alive.Store(true)
	return c
}

// ReadLine reads one CRLF-terminated line from the bridge. A clean peer
// close returns io.EOF; any other failure returns an error wrapping
// ErrConnectionReset. Either way the connection is marked dead so the next
// login check replaces it.
func (c *Conn) ReadLine() ([]byte, error) {
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		c.alive.Store(false)
		if errors.Is(err, io.EOF) && len(line) == 0 {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: read: %w", ErrConnectionReset, err)
	}
	return line, nil
}

// WriteMessage encodes and writes one message, blocking until the bytes are
// handed to the kernel. Safe for concurrent use.
func (c *Conn) WriteMessage(msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	return c.Write(data)
}

// Write sends raw bytes on the connection, serialized against other writers.
func (c *Conn) Write(data []byte) error {
	if !c.Alive() {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.conn.Write(data); err != nil {
		c.alive.Store(false)
		return fmt.Errorf("%w: write: %w", ErrConnectionReset, err)
	}
	return nil
}

// Alive reports whether the connection has seen no read or write error and
// is not at end-of-stream.
func (c *Conn) Alive() bool {
	return c.alive.Load()
}

// Close releases the socket. Idempotent; a blocked ReadLine is unblocked
// with an error.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.alive.Store(false)
		err = c.conn.Close()
	})
	return err
}
