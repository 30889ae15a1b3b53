package caseta

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/caseta-leap/internal/leap"
)

// fakeConn is a scripted connection. Inbound lines are queued with push();
// outbound messages are recorded for inspection.
type fakeConn struct {
	lines  chan []byte
	closed chan struct{}
	once   sync.Once
	dead   atomic.Bool

	mu     sync.Mutex
	writes []leap.Message
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		lines:  make(chan []byte, 32),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) push(line string) {
	c.lines <- []byte(line + "\r\n")
}

// finish simulates a clean peer close: subsequent reads return EOF.
func (c *fakeConn) finish() {
	close(c.lines)
}

func (c *fakeConn) ReadLine() ([]byte, error) {
	select {
	case line, ok := <-c.lines:
		if !ok {
			c.dead.Store(true)
			return nil, io.EOF
		}
		return line, nil
	case <-c.closed:
		c.dead.Store(true)
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(msg leap.Message) error {
	if c.dead.Load() {
		return leap.ErrNotConnected
	}
	c.mu.Lock()
	c.writes = append(c.writes, msg)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Alive() bool { return !c.dead.Load() }

func (c *fakeConn) Close() error {
	c.once.Do(func() {
		c.dead.Store(true)
		close(c.closed)
	})
	return nil
}

func (c *fakeConn) writtenURLs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	urls := make([]string, len(c.writes))
	for i, msg := range c.writes {
		urls[i] = msg.Header.URL
	}
	return urls
}

// script hands out fake connections in order, one per dial.
type script struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
}

func (s *script) dial(_ context.Context) (conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dials >= len(s.conns) {
		return nil, fmt.Errorf("%w: no more scripted connections", leap.ErrConnectionFailed)
	}
	c := s.conns[s.dials]
	s.dials++
	return c, nil
}

const (
	deviceListLine = `{"CommuniqueType":"ReadResponse","Header":{"Url":"/device"},"Body":{"Devices":[` +
		`{"href":"/device/5","Name":"Lamp","DeviceType":"WallDimmer","LocalZones":[{"href":"/zone/3"}]},` +
		`{"href":"/device/9","Name":"Bedside Remote","DeviceType":"Pico3ButtonRaiseLower"}]}}`

	buttonListLine = `{"CommuniqueType":"ReadResponse","Header":{"Url":"/virtualbutton"},"Body":{"VirtualButtons":[` +
		`{"href":"/virtualbutton/2","Name":"Movie Night","IsProgrammed":true},` +
		`{"href":"/virtualbutton/4","Name":"","IsProgrammed":false}]}}`

	zoneStatusLine = `{"CommuniqueType":"ReadResponse","Body":{"ZoneStatus":{"Zone":{"href":"/zone/3"},"Level":42}}}`
)

// scriptedConn returns a fake connection pre-loaded with the two bulk-load
// responses the login sequence reads.
func scriptedConn() *fakeConn {
	c := newFakeConn()
	c.push(deviceListLine)
	c.push(buttonListLine)
	return c
}

func newTestBridge(t *testing.T, s *script) *Bridge {
	t.Helper()
	b := newBridge("bridge.local", leap.DefaultPort, noopLogger{}, s.dial)
	t.Cleanup(func() { b.Close() })
	return b
}

// loggedInBridge builds a bridge, performs the first login and starts the
// monitor, mirroring Connect.
func loggedInBridge(t *testing.T, s *script) *Bridge {
	t.Helper()
	b := newTestBridge(t, s)
	if err := b.login(context.Background()); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	b.wg.Add(1)
	go b.monitor()
	return b
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestLoginPopulatesCaches(t *testing.T) {
	c := scriptedConn()
	b := newTestBridge(t, &script{conns: []*fakeConn{c}})

	if err := b.login(context.Background()); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	lamp, err := b.DeviceByID("5")
	if err != nil {
		t.Fatalf("DeviceByID(5) failed: %v", err)
	}
	if lamp.Name != "Lamp" || lamp.Type != "WallDimmer" {
		t.Errorf("device 5 = %+v", lamp)
	}
	if lamp.Zone != "3" {
		t.Errorf("device 5 zone = %q, want 3", lamp.Zone)
	}
	if lamp.CurrentState != LevelUnknown {
		t.Errorf("device 5 state = %d, want %d", lamp.CurrentState, LevelUnknown)
	}

	remote, err := b.DeviceByID("9")
	if err != nil {
		t.Fatalf("DeviceByID(9) failed: %v", err)
	}
	if remote.Zone != "" {
		t.Errorf("remote zone = %q, want empty", remote.Zone)
	}

	// Programmed buttons only.
	scenes := b.Scenes()
	if len(scenes) != 1 || scenes[0].SceneID != "2" || scenes[0].Name != "Movie Night" {
		t.Errorf("scenes = %+v", scenes)
	}

	// One bulk load each, then a status read for the single zone.
	want := []string{"/device", "/virtualbutton", "/zone/3/status"}
	got := c.writtenURLs()
	if len(got) != len(want) {
		t.Fatalf("writes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("write[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if !b.IsConnected() {
		t.Error("IsConnected = false after login")
	}
}

func TestLoginIdempotentWhenAlive(t *testing.T) {
	s := &script{conns: []*fakeConn{scriptedConn()}}
	b := newTestBridge(t, s)

	if err := b.login(context.Background()); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	devicesBefore := b.Devices()
	writesBefore := len(s.conns[0].writtenURLs())

	// Second login with a live connection must perform no I/O.
	if err := b.login(context.Background()); err != nil {
		t.Fatalf("second login failed: %v", err)
	}
	if s.dials != 1 {
		t.Errorf("dials = %d, want 1", s.dials)
	}
	if got := len(s.conns[0].writtenURLs()); got != writesBefore {
		t.Errorf("writes after second login = %d, want %d", got, writesBefore)
	}
	devicesAfter := b.Devices()
	if len(devicesAfter) != len(devicesBefore) {
		t.Errorf("cache size changed: %d -> %d", len(devicesBefore), len(devicesAfter))
	}
}

func TestZoneStatusPushUpdatesDeviceAndNotifies(t *testing.T) {
	c := scriptedConn()
	b := loggedInBridge(t, &script{conns: []*fakeConn{c}})

	var calls atomic.Int64
	notified := make(chan struct{}, 8)
	b.Subscribe("5", func() {
		calls.Add(1)
		notified <- struct{}{}
	})

	var remoteCalls atomic.Int64
	b.Subscribe("9", func() { remoteCalls.Add(1) })

	c.push(zoneStatusLine)

	select {
	case <-notified:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber was not notified")
	}

	level, err := b.Value("5")
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if level != 42 {
		t.Errorf("level = %d, want 42", level)
	}

	on, err := b.IsOn("5")
	if err != nil {
		t.Fatalf("IsOn failed: %v", err)
	}
	if !on {
		t.Error("IsOn = false, want true")
	}

	// The zoneless remote is never touched by pushes.
	remote, _ := b.DeviceByID("9")
	if remote.CurrentState != LevelUnknown {
		t.Errorf("remote state = %d, want %d", remote.CurrentState, LevelUnknown)
	}
	if remoteCalls.Load() != 0 {
		t.Errorf("remote callbacks = %d, want 0", remoteCalls.Load())
	}
	if calls.Load() != 1 {
		t.Errorf("callbacks = %d, want exactly 1", calls.Load())
	}
}

func TestMonitorSurvivesMalformedLine(t *testing.T) {
	c := scriptedConn()
	b := loggedInBridge(t, &script{conns: []*fakeConn{c}})

	notified := make(chan struct{}, 1)
	b.Subscribe("5", func() { notified <- struct{}{} })

	c.push(`{garbage`)
	c.push(zoneStatusLine)

	select {
	case <-notified:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not survive a malformed line")
	}
	if b.Stats().ErrorsTotal == 0 {
		t.Error("decode error was not counted")
	}
}

func TestSetValueSendsGoToLevel(t *testing.T) {
	c := scriptedConn()
	b := newTestBridge(t, &script{conns: []*fakeConn{c}})
	if err := b.login(context.Background()); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	loginWrites := len(c.writtenURLs())

	if err := b.SetValue("5", 42); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	c.mu.Lock()
	msg := c.writes[len(c.writes)-1]
	c.mu.Unlock()
	if msg.CommuniqueType != leap.CommuniqueCreateRequest {
		t.Errorf("CommuniqueType = %q, want CreateRequest", msg.CommuniqueType)
	}
	if msg.Header.URL != "/zone/3/commandprocessor" {
		t.Errorf("Url = %q, want /zone/3/commandprocessor", msg.Header.URL)
	}
	if string(msg.Body) != `{"Command":{"CommandType":"GoToLevel","Parameter":[{"Type":"Level","Value":42}]}}` {
		t.Errorf("Body = %s", msg.Body)
	}

	// A device without a zone is a silent no-op.
	if err := b.SetValue("9", 50); err != nil {
		t.Fatalf("SetValue on zoneless device failed: %v", err)
	}
	if got := len(c.writtenURLs()); got != loginWrites+1 {
		t.Errorf("writes = %d, want %d (zoneless set must send nothing)", got, loginWrites+1)
	}

	if err := b.SetValue("404", 10); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("SetValue(unknown) error = %v, want ErrDeviceNotFound", err)
	}
	if err := b.SetValue("5", 101); !errors.Is(err, ErrInvalidLevel) {
		t.Errorf("SetValue(101) error = %v, want ErrInvalidLevel", err)
	}
	if err := b.SetValue("5", -1); !errors.Is(err, ErrInvalidLevel) {
		t.Errorf("SetValue(-1) error = %v, want ErrInvalidLevel", err)
	}
}

func TestTurnOnOffMatchSetValueBoundaries(t *testing.T) {
	c := scriptedConn()
	b := newTestBridge(t, &script{conns: []*fakeConn{c}})
	if err := b.login(context.Background()); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := b.TurnOn("5"); err != nil {
		t.Fatalf("TurnOn failed: %v", err)
	}
	if err := b.SetValue("5", 100); err != nil {
		t.Fatalf("SetValue(100) failed: %v", err)
	}
	if err := b.TurnOff("5"); err != nil {
		t.Fatalf("TurnOff failed: %v", err)
	}
	if err := b.SetValue("5", 0); err != nil {
		t.Fatalf("SetValue(0) failed: %v", err)
	}

	c.mu.Lock()
	n := len(c.writes)
	turnOn, setFull := c.writes[n-4], c.writes[n-3]
	turnOff, setZero := c.writes[n-2], c.writes[n-1]
	c.mu.Unlock()

	if turnOn.Header.URL != setFull.Header.URL || string(turnOn.Body) != string(setFull.Body) {
		t.Errorf("TurnOn %v != SetValue(100) %v", turnOn, setFull)
	}
	if turnOff.Header.URL != setZero.Header.URL || string(turnOff.Body) != string(setZero.Body) {
		t.Errorf("TurnOff %v != SetValue(0) %v", turnOff, setZero)
	}
}

func TestActivateScene(t *testing.T) {
	c := scriptedConn()
	b := newTestBridge(t, &script{conns: []*fakeConn{c}})
	if err := b.login(context.Background()); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	loginWrites := len(c.writtenURLs())

	if err := b.ActivateScene("2"); err != nil {
		t.Fatalf("ActivateScene failed: %v", err)
	}
	c.mu.Lock()
	msg := c.writes[len(c.writes)-1]
	c.mu.Unlock()
	if msg.Header.URL != "/virtualbutton/2/commandprocessor" {
		t.Errorf("Url = %q, want /virtualbutton/2/commandprocessor", msg.Header.URL)
	}
	if string(msg.Body) != `{"Command":{"CommandType":"PressAndRelease"}}` {
		t.Errorf("Body = %s", msg.Body)
	}

	// Unknown scene sends nothing.
	if err := b.ActivateScene("23"); err != nil {
		t.Fatalf("ActivateScene(unknown) failed: %v", err)
	}
	if got := len(c.writtenURLs()); got != loginWrites+1 {
		t.Errorf("writes = %d, want %d (unknown scene must send nothing)", got, loginWrites+1)
	}
}

func TestReconnectRebuildsCacheFromScratch(t *testing.T) {
	first := scriptedConn()

	// Second generation: a different device set entirely.
	second := newFakeConn()
	second.push(`{"CommuniqueType":"ReadResponse","Body":{"Devices":[` +
		`{"href":"/device/7","Name":"Porch","DeviceType":"WallSwitch","LocalZones":[{"href":"/zone/8"}]}]}}`)
	second.push(`{"CommuniqueType":"ReadResponse","Body":{"VirtualButtons":[]}}`)

	s := &script{conns: []*fakeConn{first, second}}
	b := loggedInBridge(t, s)

	// Peer closes; the next login check must reconnect and reload.
	first.finish()

	waitFor(t, "reconnect", func() bool {
		_, err := b.DeviceByID("7")
		return err == nil
	})

	if _, err := b.DeviceByID("5"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("old device survived reconnect: err = %v", err)
	}
	if len(b.Scenes()) != 0 {
		t.Errorf("old scenes survived reconnect: %+v", b.Scenes())
	}
	if s.dials != 2 {
		t.Errorf("dials = %d, want 2", s.dials)
	}
	if got := b.Stats().Logins; got != 2 {
		t.Errorf("logins = %d, want 2", got)
	}
}

func TestDeviceQueries(t *testing.T) {
	c := scriptedConn()
	b := newTestBridge(t, &script{conns: []*fakeConn{c}})
	if err := b.login(context.Background()); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if got := len(b.Devices()); got != 2 {
		t.Errorf("Devices() len = %d, want 2", got)
	}

	lights := b.DevicesByDomain(DomainLight)
	if len(lights) != 1 || lights[0].DeviceID != "5" {
		t.Errorf("DevicesByDomain(light) = %+v", lights)
	}

	sensors := b.DevicesByDomain(DomainSensor)
	if len(sensors) != 1 || sensors[0].DeviceID != "9" {
		t.Errorf("DevicesByDomain(sensor) = %+v", sensors)
	}

	// Unrecognized domain: empty result, not an error.
	if got := b.DevicesByDomain("toaster"); len(got) != 0 {
		t.Errorf("DevicesByDomain(toaster) = %+v, want empty", got)
	}

	if got := b.DevicesByType("WallDimmer"); len(got) != 1 {
		t.Errorf("DevicesByType(WallDimmer) = %+v", got)
	}
	if got := b.DevicesByTypes([]string{"WallDimmer", "Pico3ButtonRaiseLower"}); len(got) != 2 {
		t.Errorf("DevicesByTypes = %+v", got)
	}

	if _, err := b.SceneByID("404"); !errors.Is(err, ErrSceneNotFound) {
		t.Errorf("SceneByID(404) error = %v, want ErrSceneNotFound", err)
	}
	if _, err := b.DeviceByID("404"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("DeviceByID(404) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestConnectValidation(t *testing.T) {
	if _, err := Connect(context.Background(), Config{}); !errors.Is(err, ErrHostRequired) {
		t.Errorf("Connect without host: err = %v, want ErrHostRequired", err)
	}
	if _, err := Connect(context.Background(), Config{Host: "bridge.local"}); !errors.Is(err, ErrTLSRequired) {
		t.Errorf("Connect without TLS: err = %v, want ErrTLSRequired", err)
	}
}

func TestDomainTable(t *testing.T) {
	domains := Domains()
	want := []string{DomainCover, DomainLight, DomainSensor, DomainSwitch}
	if len(domains) != len(want) {
		t.Fatalf("Domains() = %v, want %v", domains, want)
	}
	for i := range want {
		if domains[i] != want[i] {
			t.Errorf("Domains()[%d] = %q, want %q", i, domains[i], want[i])
		}
	}

	if types := TypesForDomain("nope"); types != nil {
		t.Errorf("TypesForDomain(nope) = %v, want nil", types)
	}
	if types := TypesForDomain(DomainLight); len(types) != 2 {
		t.Errorf("TypesForDomain(light) = %v", types)
	}
}
