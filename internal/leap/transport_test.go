package leap

import (
	"errors"
	"io"
	"net"
	"testing"
)

func pipeConns(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	c := NewConn(client)
	t.Cleanup(func() {
		c.Close()
		server.Close()
	})
	return c, server
}

func TestWriteMessageFrames(t *testing.T) {
	c, server := pipeConns(t)

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 1024)
		n, _ := server.Read(buf)
		done <- buf[:n]
	}()

	if err := c.WriteMessage(NewReadRequest("/device")); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	data := <-done
	if string(data) != `{"CommuniqueType":"ReadRequest","Header":{"Url":"/device"}}`+"\r\n" {
		t.Errorf("wire bytes = %q", data)
	}
}

func TestReadLineReturnsOneLine(t *testing.T) {
	c, server := pipeConns(t)

	go func() {
		server.Write([]byte("{\"CommuniqueType\":\"ReadResponse\"}\r\n{\"CommuniqueType\":\"ReadResponse\"}\r\n"))
	}()

	line, err := c.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine failed: %v", err)
	}
	if string(line) != "{\"CommuniqueType\":\"ReadResponse\"}\r\n" {
		t.Errorf("line = %q", line)
	}
	if !c.Alive() {
		t.Error("connection should still be alive")
	}
}

func TestReadLineEOFOnPeerClose(t *testing.T) {
	c, server := pipeConns(t)

	server.Close()

	_, err := c.ReadLine()
	if !errors.Is(err, io.EOF) && !errors.Is(err, ErrConnectionReset) {
		t.Fatalf("ReadLine error = %v, want EOF or reset", err)
	}
	if c.Alive() {
		t.Error("connection should be dead after read failure")
	}
}

func TestWriteAfterDeadConnection(t *testing.T) {
	c, server := pipeConns(t)
	server.Close()

	// First read observes the failure.
	c.ReadLine()

	err := c.WriteMessage(NewReadRequest("/device"))
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("WriteMessage error = %v, want ErrNotConnected", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	c, _ := pipeConns(t)

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if c.Alive() {
		t.Error("closed connection reports alive")
	}
}
