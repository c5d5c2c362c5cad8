// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package agent

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/quayside/internal/config"
	"github.com/tomtom215/quayside/internal/logging"
	"github.com/tomtom215/quayside/internal/protocol"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	// Initialize logging for tests with discard output
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

var errTransportClosed = errors.New("fake transport closed")

// fakeTransport records sent frames and lets tests push frames or drops.
type fakeTransport struct {
	events      TransportEvents
	answerPings bool

	mu      sync.Mutex
	sent    []protocol.Frame
	closed  bool
	// gate, when set, holds every Send until it is closed.
	gate    chan struct{}
	waiting int
}

func (t *fakeTransport) Send(frame []byte) error {
	f, err := protocol.DecodeFrame(frame)
	if err != nil {
		return err
	}
	t.mu.Lock()
	if gate := t.gate; gate != nil {
		t.waiting++
		t.mu.Unlock()
		<-gate
		t.mu.Lock()
		t.waiting--
	}
	if t.closed {
		t.mu.Unlock()
		return errTransportClosed
	}
	t.sent = append(t.sent, f)
	pong := t.answerPings && f.Event == protocol.EventPing
	t.mu.Unlock()

	if pong {
		go t.deliver(protocol.EventPong, protocol.PongPayload{Timestamp: time.Now().UnixMilli()})
	}
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// stall holds sends until the returned release func is called.
func (t *fakeTransport) stall() (release func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	gate := make(chan struct{})
	t.gate = gate
	return func() {
		t.mu.Lock()
		t.gate = nil
		t.mu.Unlock()
		close(gate)
	}
}

// stalled returns how many sends are held by stall.
func (t *fakeTransport) stalled() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.waiting
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// deliver simulates a frame from the hub.
func (t *fakeTransport) deliver(event protocol.EventName, data interface{}) {
	frame, err := protocol.EncodeFrame(event, data)
	if err != nil {
		panic(err)
	}
	t.events.OnFrame(frame)
}

// drop simulates the hub or network closing the connection.
func (t *fakeTransport) drop(err error) {
	_ = t.Close()
	t.events.OnClose(err)
}

// sentEvents returns sent frames except heartbeat pings.
func (t *fakeTransport) sentEvents() []protocol.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []protocol.Frame
	for _, f := range t.sent {
		if f.Event != protocol.EventPing {
			out = append(out, f)
		}
	}
	return out
}

func (t *fakeTransport) pings() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, f := range t.sent {
		if f.Event == protocol.EventPing {
			n++
		}
	}
	return n
}

// fakeDialer hands out fakeTransports. fail, when set, fails every dial.
type fakeDialer struct {
	mu          sync.Mutex
	fail        error
	answerPings func(dial int) bool
	tokens      []string
	transports  []*fakeTransport
}

func (d *fakeDialer) Dial(_ context.Context, _, token string, events TransportEvents) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens = append(d.tokens, token)
	if d.fail != nil {
		return nil, d.fail
	}
	answer := true
	if d.answerPings != nil {
		answer = d.answerPings(len(d.tokens))
	}
	t := &fakeTransport{events: events, answerPings: answer}
	d.transports = append(d.transports, t)
	return t, nil
}

func (d *fakeDialer) setFail(err error) {
	d.mu.Lock()
	d.fail = err
	d.mu.Unlock()
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tokens)
}

func (d *fakeDialer) transport(i int) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.transports) {
		return nil
	}
	return d.transports[i]
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// recorder collects local events.
type recorder struct {
	mu  sync.Mutex
	got []recorded
}

type recorded struct {
	event protocol.EventName
	data  json.RawMessage
}

func newRecorder(a *Agent, events ...protocol.EventName) *recorder {
	r := &recorder{}
	for _, ev := range events {
		ev := ev
		a.On(ev, func(data json.RawMessage) {
			r.mu.Lock()
			r.got = append(r.got, recorded{event: ev, data: data})
			r.mu.Unlock()
		})
	}
	return r
}

func (r *recorder) count(event protocol.EventName) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, g := range r.got {
		if g.event == event {
			n++
		}
	}
	return n
}

func (r *recorder) last(event protocol.EventName) json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.got) - 1; i >= 0; i-- {
		if r.got[i].event == event {
			return r.got[i].data
		}
	}
	return nil
}

func (r *recorder) sequence() []protocol.EventName {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.EventName, len(r.got))
	for i, g := range r.got {
		out[i] = g.event
	}
	return out
}

func testConfig() config.AgentConfig {
	return config.AgentConfig{
		URL:               "ws://hub.test/ws",
		BaseDelay:         10 * time.Millisecond,
		Decay:             2,
		MaxDelay:          40 * time.Millisecond,
		MaxAttempts:       3,
		HeartbeatInterval: 20 * time.Millisecond,
		QueueRetention:    time.Minute,
		QueueMax:          10,
		SleepTick:         time.Hour,
		SleepGap:          2 * time.Hour,
		HandshakeTimeout:  time.Second,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func connectedAgent(t *testing.T, cfg config.AgentConfig, d *fakeDialer, opts ...Option) (*Agent, *recorder) {
	t.Helper()
	a := New(cfg, d, opts...)
	rec := newRecorder(a, protocol.EventConnected, protocol.EventDisconnected,
		protocol.EventConnectionError, protocol.EventReconnectFailed)
	t.Cleanup(a.Disconnect)
	a.Connect("tok")
	waitFor(t, "connected", func() bool { return a.State() == StateConnected })
	return a, rec
}
