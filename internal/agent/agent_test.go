// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/quayside/internal/protocol"
)

func TestNew_Defaults(t *testing.T) {
	a := New(testConfig(), &fakeDialer{})
	if a.State() != StateDisconnected {
		t.Errorf("State() = %s, want disconnected", a.State())
	}

	cfg := withDefaults(testConfig())
	cfg.BaseDelay, cfg.Decay, cfg.MaxDelay, cfg.MaxAttempts = 0, 0, 0, 0
	cfg = withDefaults(cfg)
	if cfg.BaseDelay != 3*time.Second || cfg.Decay != 1.5 || cfg.MaxDelay != 30*time.Second || cfg.MaxAttempts != 10 {
		t.Errorf("withDefaults() = %+v", cfg)
	}
}

func TestInit(t *testing.T) {
	tests := []struct {
		name string
		url  string
		opts []Option
		want bool
	}{
		{"valid ws url", "ws://hub.test/ws", nil, true},
		{"http scheme", "http://hub.test/ws", nil, false},
		{"no host", "ws:///ws", nil, false},
		{"resolver failure", "ws://hub.test/ws", []Option{WithResolver(func(context.Context) (string, error) {
			return "", errors.New("ipc unavailable")
		})}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.URL = tt.url
			d := &fakeDialer{}
			a := New(cfg, d, tt.opts...)
			defer a.Disconnect()

			if got := a.Init(context.Background(), "tok"); got != tt.want {
				t.Fatalf("Init() = %v, want %v", got, tt.want)
			}
			if !tt.want {
				if a.State() != StateDisconnected || d.dials() != 0 {
					t.Errorf("failed Init() must not dial: state=%s dials=%d", a.State(), d.dials())
				}
				return
			}
			waitFor(t, "connected", func() bool { return a.State() == StateConnected })
		})
	}
}

func TestConnect_IsIdempotent(t *testing.T) {
	d := &fakeDialer{}
	a, rec := connectedAgent(t, testConfig(), d)

	a.Connect("other")
	a.Connect("")
	if d.dials() != 1 {
		t.Errorf("dials = %d, want 1", d.dials())
	}
	d.mu.Lock()
	token := d.tokens[0]
	d.mu.Unlock()
	if token != "tok" {
		t.Errorf("token = %q, want tok", token)
	}
	waitFor(t, "connected event", func() bool { return rec.count(protocol.EventConnected) == 1 })
	if a.Attempts() != 0 {
		t.Errorf("Attempts() = %d after connect", a.Attempts())
	}
}

func TestEmit_QueuedWhileOfflineReplayedInOrder(t *testing.T) {
	d := &fakeDialer{}
	a := New(testConfig(), d)
	defer a.Disconnect()

	for i := 1; i <= 2; i++ {
		if err := a.Emit(protocol.EventGoodsUpdate, map[string]interface{}{"type": "scan", "seq": i}); err != nil {
			t.Fatalf("Emit() error = %v", err)
		}
	}
	if a.QueueLen() != 2 {
		t.Fatalf("QueueLen() = %d, want 2", a.QueueLen())
	}

	a.Connect("tok")
	waitFor(t, "connected", func() bool { return a.State() == StateConnected })

	if err := a.Emit(protocol.EventGoodsUpdate, map[string]interface{}{"type": "scan", "seq": 3}); err != nil {
		t.Fatal(err)
	}

	sent := d.transport(0).sentEvents()
	if len(sent) != 3 {
		t.Fatalf("sent %d frames, want 3", len(sent))
	}
	for i, f := range sent {
		var p struct {
			Seq int `json:"seq"`
		}
		if err := json.Unmarshal(f.Data, &p); err != nil {
			t.Fatal(err)
		}
		if f.Event != protocol.EventGoodsUpdate || p.Seq != i+1 {
			t.Errorf("frame %d = %s seq %d, want goods:update seq %d", i, f.Event, p.Seq, i+1)
		}
	}
	if a.QueueLen() != 0 {
		t.Errorf("QueueLen() after flush = %d", a.QueueLen())
	}
}

func TestEmit_StaleEntriesDroppedAtFlush(t *testing.T) {
	clock := newFakeClock()
	d := &fakeDialer{}
	a := New(testConfig(), d, WithClock(clock.Now))
	defer a.Disconnect()

	_ = a.Emit(protocol.EventContainerUpdate, map[string]string{"id": "old"})
	clock.Advance(30 * time.Second)
	_ = a.Emit(protocol.EventContainerUpdate, map[string]string{"id": "recent"})
	clock.Advance(31 * time.Second)

	a.Connect("tok")
	waitFor(t, "connected", func() bool { return a.State() == StateConnected })

	sent := d.transport(0).sentEvents()
	if len(sent) != 1 || !strings.Contains(string(sent[0].Data), "recent") {
		t.Errorf("sent = %v, want only the recent entry", sent)
	}
}

func TestEmit_LocalAndUnknownNames(t *testing.T) {
	d := &fakeDialer{}
	a, rec := connectedAgent(t, testConfig(), d)
	waitFor(t, "connected event", func() bool { return rec.count(protocol.EventConnected) == 1 })

	var localData string
	a.On(protocol.EventConnected, func(data json.RawMessage) { localData = string(data) })

	if err := a.Emit(protocol.EventConnected, map[string]bool{"manual": true}); err != nil {
		t.Fatalf("Emit(local) error = %v", err)
	}
	if localData != `{"manual":true}` {
		t.Errorf("local handler data = %q", localData)
	}

	for _, name := range []protocol.EventName{"vessel:sink", protocol.EventClientUpdated, protocol.EventUserStatus} {
		if err := a.Emit(name, nil); !errors.Is(err, ErrNotInbound) {
			t.Errorf("Emit(%s) error = %v, want ErrNotInbound", name, err)
		}
	}

	if sent := d.transport(0).sentEvents(); len(sent) != 0 {
		t.Errorf("transport received %v, want nothing", sent)
	}
	if a.QueueLen() != 0 {
		t.Errorf("QueueLen() = %d, want 0", a.QueueLen())
	}
}

func TestHubEventsDispatchedLocally(t *testing.T) {
	d := &fakeDialer{}
	a, rec := connectedAgent(t, testConfig(), d)
	updates := newRecorder(a, protocol.EventClientUpdated)
	tr := d.transport(0)

	tr.deliver(protocol.EventClientUpdated, map[string]interface{}{"id": 42, "updatedBy": "Capitaine Haddock"})
	tr.deliver("vessel:sink", nil)
	tr.deliver(protocol.EventConnected, nil) // local names are not accepted from the hub
	tr.events.OnFrame([]byte("not json"))

	if updates.count(protocol.EventClientUpdated) != 1 {
		t.Fatalf("client:updated dispatched %d times, want 1", updates.count(protocol.EventClientUpdated))
	}
	if !strings.Contains(string(updates.last(protocol.EventClientUpdated)), "Capitaine Haddock") {
		t.Errorf("data = %s", updates.last(protocol.EventClientUpdated))
	}
	waitFor(t, "connected event", func() bool { return rec.count(protocol.EventConnected) >= 1 })
	if rec.count(protocol.EventConnected) != 1 {
		t.Errorf("connected dispatched %d times, want 1", rec.count(protocol.EventConnected))
	}
}

func TestReconnect_AfterTransportDrop(t *testing.T) {
	d := &fakeDialer{}
	a, rec := connectedAgent(t, testConfig(), d)
	updates := newRecorder(a, protocol.EventGoodsUpdated)
	first := d.transport(0)
	waitFor(t, "connected event", func() bool { return rec.count(protocol.EventConnected) == 1 })

	first.drop(errors.New("connection reset by peer"))

	var p protocol.DisconnectedPayload
	waitFor(t, "disconnected event", func() bool { return rec.count(protocol.EventDisconnected) == 1 })
	if err := json.Unmarshal(rec.last(protocol.EventDisconnected), &p); err != nil || p.Reason != "connection reset by peer" {
		t.Errorf("disconnected payload = %+v (%v)", p, err)
	}

	waitFor(t, "second connection", func() bool { return d.dials() == 2 && a.State() == StateConnected })
	waitFor(t, "second connected event", func() bool { return rec.count(protocol.EventConnected) == 2 })
	seq := rec.sequence()
	want := []protocol.EventName{protocol.EventConnected, protocol.EventDisconnected, protocol.EventConnected}
	if len(seq) != len(want) {
		t.Fatalf("sequence = %v, want %v", seq, want)
	}
	for i := range want {
		if seq[i] != want[i] {
			t.Errorf("sequence[%d] = %s, want %s", i, seq[i], want[i])
		}
	}
	if a.Attempts() != 0 {
		t.Errorf("Attempts() after reconnect = %d, want 0", a.Attempts())
	}

	// Frames from the old transport are ignored.
	first.deliver(protocol.EventGoodsUpdated, map[string]int{"id": 1})
	first.events.OnClose(errors.New("late close"))
	if updates.count(protocol.EventGoodsUpdated) != 0 || rec.count(protocol.EventDisconnected) != 1 {
		t.Error("callbacks from a replaced transport must be ignored")
	}
	if a.State() != StateConnected {
		t.Errorf("State() = %s, want connected", a.State())
	}
}

func TestReconnect_CeilingEmitsReconnectFailedOnce(t *testing.T) {
	d := &fakeDialer{fail: protocol.Wrap(protocol.KindTransport, "dial failed", errors.New("connection refused"))}
	a := New(testConfig(), d)
	rec := newRecorder(a, protocol.EventConnectionError, protocol.EventReconnectFailed, protocol.EventConnected)
	defer a.Disconnect()

	a.Connect("tok")
	waitFor(t, "reconnect_failed", func() bool { return rec.count(protocol.EventReconnectFailed) == 1 })

	// Initial dial plus MaxAttempts retries.
	if d.dials() != 4 {
		t.Errorf("dials = %d, want 4", d.dials())
	}
	if rec.count(protocol.EventConnectionError) != 4 {
		t.Errorf("connection_error = %d, want 4", rec.count(protocol.EventConnectionError))
	}
	var p protocol.ConnectionErrorPayload
	if err := json.Unmarshal(rec.last(protocol.EventConnectionError), &p); err != nil || !strings.Contains(p.Error, "connection refused") {
		t.Errorf("connection_error payload = %+v", p)
	}

	time.Sleep(100 * time.Millisecond)
	if rec.count(protocol.EventReconnectFailed) != 1 || d.dials() != 4 {
		t.Errorf("after ceiling: reconnect_failed=%d dials=%d, want 1 and 4",
			rec.count(protocol.EventReconnectFailed), d.dials())
	}
	if a.ReconnectPending() || a.State() != StateDisconnected {
		t.Errorf("pending=%v state=%s, want terminal disconnected", a.ReconnectPending(), a.State())
	}
	if a.watchdogRunning() {
		t.Error("sleep watchdog still running after reconnect_failed")
	}

	// A fresh Connect starts over.
	d.setFail(nil)
	a.Connect("tok")
	waitFor(t, "connected", func() bool { return rec.count(protocol.EventConnected) == 1 })
	if !a.watchdogRunning() {
		t.Error("Connect() did not restart the sleep watchdog")
	}
}

func (a *Agent) watchdogRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.watchStop != nil
}

func TestDisconnect_IsTerminal(t *testing.T) {
	d := &fakeDialer{}
	a, rec := connectedAgent(t, testConfig(), d)

	a.Disconnect()
	if !d.transport(0).isClosed() {
		t.Error("transport not closed")
	}
	var p protocol.DisconnectedPayload
	if err := json.Unmarshal(rec.last(protocol.EventDisconnected), &p); err != nil || p.Reason != "client disconnect" {
		t.Errorf("disconnected payload = %+v", p)
	}

	time.Sleep(60 * time.Millisecond)
	if d.dials() != 1 || a.State() != StateDisconnected {
		t.Errorf("dials=%d state=%s after Disconnect()", d.dials(), a.State())
	}
	if err := a.Emit(protocol.EventPing, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Emit() after Disconnect() error = %v, want ErrClosed", err)
	}

	a.Disconnect()
	if rec.count(protocol.EventDisconnected) != 1 {
		t.Errorf("second Disconnect() fired disconnected again")
	}
}

func TestDisconnect_CancelsPendingReconnect(t *testing.T) {
	cfg := testConfig()
	cfg.BaseDelay = 30 * time.Millisecond
	d := &fakeDialer{fail: errors.New("connection refused")}
	a := New(cfg, d)
	rec := newRecorder(a, protocol.EventConnectionError)

	a.Connect("tok")
	waitFor(t, "pending reconnect", func() bool { return a.ReconnectPending() })
	a.Disconnect()

	if a.ReconnectPending() {
		t.Error("Disconnect() left a reconnect pending")
	}
	time.Sleep(80 * time.Millisecond)
	if d.dials() != 1 || rec.count(protocol.EventConnectionError) != 1 {
		t.Errorf("dials=%d errors=%d, want 1 and 1", d.dials(), rec.count(protocol.EventConnectionError))
	}
}

func TestHeartbeat_HealthyConnectionStays(t *testing.T) {
	d := &fakeDialer{}
	a, rec := connectedAgent(t, testConfig(), d)

	waitFor(t, "several pings", func() bool { return d.transport(0).pings() >= 4 })
	if a.State() != StateConnected || d.dials() != 1 || rec.count(protocol.EventDisconnected) != 0 {
		t.Errorf("state=%s dials=%d disconnects=%d", a.State(), d.dials(), rec.count(protocol.EventDisconnected))
	}
}

func TestHeartbeat_TimeoutSchedulesOneReconnect(t *testing.T) {
	d := &fakeDialer{answerPings: func(dial int) bool { return dial > 1 }}
	a, rec := connectedAgent(t, testConfig(), d)

	waitFor(t, "heartbeat timeout", func() bool { return rec.count(protocol.EventDisconnected) == 1 })
	var p protocol.DisconnectedPayload
	if err := json.Unmarshal(rec.last(protocol.EventDisconnected), &p); err != nil || p.Reason != "heartbeat timeout" {
		t.Errorf("disconnected payload = %+v", p)
	}
	if !d.transport(0).isClosed() {
		t.Error("dead transport not closed")
	}

	waitFor(t, "reconnected", func() bool { return d.dials() == 2 && a.State() == StateConnected })
	waitFor(t, "pings on new transport", func() bool { return d.transport(1).pings() >= 3 })
	if d.dials() != 2 || rec.count(protocol.EventDisconnected) != 1 {
		t.Errorf("dials=%d disconnects=%d, want exactly one reconnect", d.dials(), rec.count(protocol.EventDisconnected))
	}
}

func TestSetVisible(t *testing.T) {
	t.Run("hidden host runs no heartbeat", func(t *testing.T) {
		d := &fakeDialer{answerPings: func(int) bool { return false }}
		cfg := testConfig()
		a := New(cfg, d)
		defer a.Disconnect()
		a.SetVisible(false)
		a.Connect("tok")
		waitFor(t, "connected", func() bool { return a.State() == StateConnected })

		time.Sleep(5 * cfg.HeartbeatInterval)
		if a.State() != StateConnected || d.transport(0).pings() != 0 {
			t.Fatalf("hidden: state=%s pings=%d", a.State(), d.transport(0).pings())
		}

		a.SetVisible(true)
		waitFor(t, "ping after becoming visible", func() bool { return d.transport(0).pings() >= 1 })
	})

	t.Run("visible while disconnected reconnects now", func(t *testing.T) {
		cfg := testConfig()
		cfg.BaseDelay = time.Hour
		cfg.MaxDelay = time.Hour
		d := &fakeDialer{fail: errors.New("network unreachable")}
		a := New(cfg, d)
		defer a.Disconnect()

		a.Connect("tok")
		waitFor(t, "pending reconnect", func() bool { return a.ReconnectPending() })
		d.setFail(nil)

		a.SetVisible(false)
		a.SetVisible(true)
		waitFor(t, "immediate reconnect", func() bool { return a.State() == StateConnected })
		if d.dials() != 2 {
			t.Errorf("dials = %d, want 2", d.dials())
		}
	})
}

func TestCheckSleep(t *testing.T) {
	t.Run("small gap is ignored", func(t *testing.T) {
		clock := newFakeClock()
		cfg := testConfig()
		cfg.SleepTick, cfg.SleepGap = 5*time.Second, 60*time.Second
		a, _ := connectedAgent(t, cfg, &fakeDialer{}, WithClock(clock.Now))

		clock.Advance(5 * time.Second)
		if a.checkSleep(clock.Now()) {
			t.Error("checkSleep() detected sleep after one tick")
		}
	})

	t.Run("gap while disconnected reconnects now", func(t *testing.T) {
		clock := newFakeClock()
		cfg := testConfig()
		cfg.SleepTick, cfg.SleepGap = 5*time.Second, 60*time.Second
		cfg.BaseDelay, cfg.MaxDelay = time.Hour, time.Hour
		d := &fakeDialer{fail: errors.New("network unreachable")}
		a := New(cfg, d, WithClock(clock.Now))
		defer a.Disconnect()

		a.Connect("tok")
		waitFor(t, "pending reconnect", func() bool { return a.ReconnectPending() })
		d.setFail(nil)

		clock.Advance(61 * time.Second)
		if !a.checkSleep(clock.Now()) {
			t.Fatal("checkSleep() missed a 61s gap")
		}
		waitFor(t, "reconnect after sleep", func() bool { return a.State() == StateConnected })
	})

	t.Run("gap while connected pings now", func(t *testing.T) {
		clock := newFakeClock()
		cfg := testConfig()
		cfg.HeartbeatInterval = time.Hour
		cfg.SleepTick, cfg.SleepGap = 5*time.Second, 60*time.Second
		d := &fakeDialer{answerPings: func(int) bool { return false }}
		a, _ := connectedAgent(t, cfg, d, WithClock(clock.Now))

		clock.Advance(2 * time.Minute)
		if !a.checkSleep(clock.Now()) {
			t.Fatal("checkSleep() missed a 2m gap")
		}
		if d.transport(0).pings() != 1 {
			t.Errorf("pings = %d, want 1", d.transport(0).pings())
		}
	})
}

func TestOnceAndOff(t *testing.T) {
	d := &fakeDialer{}
	a, _ := connectedAgent(t, testConfig(), d)
	tr := d.transport(0)

	var once, always int
	a.Once(protocol.EventNotificationNew, func(json.RawMessage) { once++ })
	sub := a.On(protocol.EventNotificationNew, func(json.RawMessage) { always++ })

	tr.deliver(protocol.EventNotificationNew, map[string]string{"id": "n1"})
	tr.deliver(protocol.EventNotificationNew, map[string]string{"id": "n2"})
	if !a.Off(sub) {
		t.Error("Off() = false")
	}
	tr.deliver(protocol.EventNotificationNew, map[string]string{"id": "n3"})

	if once != 1 || always != 2 {
		t.Errorf("once=%d always=%d, want 1 and 2", once, always)
	}
}

// answersWithin reports whether the agent's accessors return within d.
func answersWithin(a *Agent, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		_ = a.State()
		_ = a.QueueLen()
		_ = a.ReconnectPending()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

func TestEmit_StalledSendDoesNotBlockAgent(t *testing.T) {
	cfg := testConfig()
	cfg.HeartbeatInterval = time.Hour
	d := &fakeDialer{}
	a, _ := connectedAgent(t, cfg, d)
	tr := d.transport(0)

	release := tr.stall()
	first := make(chan error, 1)
	go func() { first <- a.Emit(protocol.EventClientUpdate, map[string]int{"id": 1}) }()
	waitFor(t, "send stalled", func() bool { return tr.stalled() == 1 })

	if !answersWithin(a, time.Second) {
		t.Fatal("agent accessors blocked behind a stalled send")
	}

	second := make(chan error, 1)
	go func() { second <- a.Emit(protocol.EventGoodsUpdate, map[string]int{"id": 2}) }()
	time.Sleep(20 * time.Millisecond)
	release()

	for _, ch := range []chan error{first, second} {
		if err := <-ch; err != nil {
			t.Fatalf("Emit() error = %v", err)
		}
	}
	sent := tr.sentEvents()
	if len(sent) != 2 || sent[0].Event != protocol.EventClientUpdate || sent[1].Event != protocol.EventGoodsUpdate {
		t.Errorf("sent = %v, want client:update then goods:update", sent)
	}
}

func TestEmit_SendFailureQueuesForReconnect(t *testing.T) {
	cfg := testConfig()
	cfg.HeartbeatInterval = time.Hour
	d := &fakeDialer{}
	a, rec := connectedAgent(t, cfg, d)

	// Closed but not yet reported: Send fails on the same generation.
	_ = d.transport(0).Close()
	if err := a.Emit(protocol.EventClientUpdate, map[string]int{"id": 1}); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if a.QueueLen() != 1 {
		t.Fatalf("QueueLen() = %d, want 1", a.QueueLen())
	}

	d.transport(0).drop(errors.New("connection reset"))
	waitFor(t, "reconnected", func() bool { return rec.count(protocol.EventConnected) == 2 })
	waitFor(t, "flushed", func() bool { return len(d.transport(1).sentEvents()) == 1 })
	if a.QueueLen() != 0 {
		t.Errorf("QueueLen() = %d after flush, want 0", a.QueueLen())
	}
}

func TestHeartbeat_StalledPingDoesNotBlockAgent(t *testing.T) {
	d := &fakeDialer{}
	a, _ := connectedAgent(t, testConfig(), d)
	tr := d.transport(0)

	release := tr.stall()
	defer release()
	waitFor(t, "ping stalled", func() bool { return tr.stalled() == 1 })

	if !answersWithin(a, time.Second) {
		t.Fatal("agent accessors blocked behind a stalled heartbeat ping")
	}
}
