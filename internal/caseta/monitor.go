package caseta

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/nerrad567/caseta-leap/internal/leap"
)

// monitor is the perpetual read/dispatch loop. Each iteration ensures the
// session is logged in (a no-op while the connection is alive), reads one
// message and routes it. Every failure mode is absorbed: a login error,
// a decode error or a reset connection is logged and the loop continues,
// reconnecting on the next iteration. The loop exits only on Close.
func (b *Bridge) monitor() {
	defer b.wg.Done()

	for {
		if b.closed() {
			return
		}

		if err := b.login(b.ctx); err != nil {
			if b.closed() {
				return
			}
			b.errorsTotal.Add(1)
			b.logger.Warn("login failed, retrying", "error", err)
			continue
		}

		c := b.currentConn()
		if c == nil {
			continue
		}

		line, err := c.ReadLine()
		if err != nil {
			if b.closed() {
				return
			}
			if errors.Is(err, io.EOF) {
				// Peer closed cleanly; the next login check reconnects.
				continue
			}
			b.errorsTotal.Add(1)
			b.logger.Warn("read failed", "error", err)
			continue
		}

		msg, err := leap.Decode(line)
		if err != nil {
			b.errorsTotal.Add(1)
			b.logger.Error("invalid message from bridge", "error", err)
			continue
		}

		b.rx.Add(1)
		b.touch()
		b.handleMessage(msg)
	}
}

// handleMessage routes one inbound message. Only read responses carrying a
// zone status body are interpreted; the rest of the LEAP vocabulary is
// ignored.
func (b *Bridge) handleMessage(msg leap.Message) {
	if msg.CommuniqueType != leap.CommuniqueReadResponse {
		return
	}

	var body leap.ZoneStatusBody
	if err := json.Unmarshal(msg.Body, &body); err != nil || body.ZoneStatus == nil {
		return
	}

	zone := body.ZoneStatus.Zone.ID()
	level := body.ZoneStatus.Level
	b.logger.Debug("zone status", "zone", zone, "level", level)

	// Update every cached device backed by this zone. Devices without a
	// zone are never touched here.
	var changed []string
	b.mu.Lock()
	for id, d := range b.devices {
		if d.Zone != "" && d.Zone == zone {
			d.CurrentState = level
			changed = append(changed, id)
		}
	}
	b.mu.Unlock()

	for _, id := range changed {
		b.notify(id)
	}
}

// notify invokes the subscriber callback for a device, if one is
// registered. Callbacks run synchronously on the monitor goroutine; panics
// are recovered so a bad callback cannot kill the loop.
func (b *Bridge) notify(deviceID string) {
	b.subMu.RLock()
	callback := b.subscribers[deviceID]
	b.subMu.RUnlock()

	if callback == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber callback panic", "device_id", deviceID, "panic", r)
		}
	}()
	callback()
}
