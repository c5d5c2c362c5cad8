// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package agent

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/quayside/internal/config"
	"github.com/tomtom215/quayside/internal/logging"
	"github.com/tomtom215/quayside/internal/metrics"
	"github.com/tomtom215/quayside/internal/protocol"
)

var (
	// ErrNotInbound is returned by Emit for names the hub does not accept.
	ErrNotInbound = errors.New("not an inbound hub event")

	// ErrClosed is returned by Emit after Disconnect.
	ErrClosed = errors.New("agent disconnected by client")
)

// missedPingsLimit is how many heartbeat ticks a ping may stay
// unanswered before the connection is declared dead.
const missedPingsLimit = 2

// Resolver returns the hub address.
type Resolver func(ctx context.Context) (string, error)

// Option configures an Agent.
type Option func(*Agent)

// WithResolver replaces the default resolver, which validates the configured URL.
func WithResolver(r Resolver) Option {
	return func(a *Agent) { a.resolve = r }
}

// WithClock replaces time.Now for queue ageing and sleep detection.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// Agent maintains one logical connection to the hub.
//
// All state lives behind mu. Callbacks from timers, the dial goroutine and
// the transport carry the generation they were started for; a callback whose
// generation is no longer current is ignored, so at most one transport and
// one pending reconnect timer exist at any time. Local events are dispatched
// after mu is released.
type Agent struct {
	cfg     config.AgentConfig
	dialer  Dialer
	resolve Resolver
	log     zerolog.Logger
	now     func() time.Time
	events  *Emitter

	// sends orders hub-bound writes: turns are claimed under mu and the
	// write happens after mu is released.
	sends *sendOrder

	mu              sync.Mutex
	state           State
	url             string
	token           string
	shouldReconnect bool
	forcedClose     bool
	visible         bool
	gen             uint64
	transport       Transport
	cancelDial      context.CancelFunc
	policy          *reconnectPolicy
	queue           *Queue

	timer    *time.Timer
	timerSeq uint64

	hbStop          chan struct{}
	pingOutstanding bool
	missedPings     int

	watchStop chan struct{}
	lastTick  time.Time
}

// New creates a disconnected agent. Zero config values fall back to the
// defaults of config.Load.
func New(cfg config.AgentConfig, dialer Dialer, opts ...Option) *Agent {
	cfg = withDefaults(cfg)
	a := &Agent{
		cfg:     cfg,
		dialer:  dialer,
		log:     logging.WithComponent("agent"),
		now:     time.Now,
		url:     cfg.URL,
		token:   cfg.Token,
		visible: true,
		policy:  newReconnectPolicy(cfg.BaseDelay, cfg.MaxDelay, cfg.Decay, cfg.MaxAttempts),
		queue:   NewQueue(cfg.QueueRetention, cfg.QueueMax),
		sends:   newSendOrder(),
	}
	a.resolve = a.resolveConfigured
	for _, opt := range opts {
		opt(a)
	}
	a.events = NewEmitter(a.log)
	metrics.AgentState.Set(float64(StateDisconnected))
	return a
}

func withDefaults(cfg config.AgentConfig) config.AgentConfig {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 3 * time.Second
	}
	if cfg.Decay < 1 {
		cfg.Decay = 1.5
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = 30 * time.Second
		if cfg.MaxDelay < cfg.BaseDelay {
			cfg.MaxDelay = cfg.BaseDelay
		}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 25 * time.Second
	}
	if cfg.QueueRetention <= 0 {
		cfg.QueueRetention = 60 * time.Second
	}
	if cfg.SleepTick <= 0 {
		cfg.SleepTick = 5 * time.Second
	}
	if cfg.SleepGap <= cfg.SleepTick {
		cfg.SleepGap = 12 * cfg.SleepTick
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return cfg
}

func (a *Agent) resolveConfigured(_ context.Context) (string, error) {
	u, err := url.Parse(a.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse hub url: %w", err)
	}
	if (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return "", fmt.Errorf("hub url %q must be ws:// or wss:// with a host", a.cfg.URL)
	}
	return u.String(), nil
}

// Init resolves the hub address and starts connecting. It returns false,
// after logging, when the address cannot be resolved; callers should run
// without real-time features rather than fail.
func (a *Agent) Init(ctx context.Context, token string) bool {
	addr, err := a.resolve(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("hub address unavailable, real-time sync disabled")
		return false
	}
	a.mu.Lock()
	a.url = addr
	a.mu.Unlock()
	a.Connect(token)
	return true
}

// Connect opens the transport unless a connection is already open or being
// opened. An empty token keeps the current one. Connect cancels any pending
// reconnect, resets the attempt count and re-enables reconnection after
// Disconnect or reconnect_failed.
func (a *Agent) Connect(token string) {
	a.mu.Lock()
	if a.state != StateDisconnected {
		a.mu.Unlock()
		return
	}
	if token != "" {
		a.token = token
	}
	a.shouldReconnect = true
	a.forcedClose = false
	a.stopTimerLocked()
	a.policy.Reset()
	a.openLocked()
	a.startWatchdogLocked()
	a.mu.Unlock()
}

// SetToken replaces the token used by the next handshake.
func (a *Agent) SetToken(token string) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
}

// Disconnect closes the connection for good: no reconnect is scheduled and
// any pending one is canceled.
func (a *Agent) Disconnect() {
	a.mu.Lock()
	a.forcedClose = true
	a.shouldReconnect = false
	a.stopTimerLocked()
	a.stopWatchdogLocked()
	prev := a.state
	tr := a.teardownLocked()
	a.mu.Unlock()

	if tr != nil {
		_ = tr.Close()
	}
	if prev != StateDisconnected {
		a.log.Info().Str("previous_state", prev.String()).Msg("disconnected by client")
		a.dispatchLocal(protocol.EventDisconnected, protocol.DisconnectedPayload{Reason: "client disconnect"})
	}
}

// teardownLocked invalidates the current generation, stops the heartbeat and
// any dial, and returns the transport for the caller to close outside mu.
func (a *Agent) teardownLocked() Transport {
	a.gen++
	tr := a.transport
	a.transport = nil
	if a.cancelDial != nil {
		a.cancelDial()
		a.cancelDial = nil
	}
	a.stopHeartbeatLocked()
	a.setStateLocked(StateDisconnected)
	return tr
}

// openLocked starts a dial for a new generation.
func (a *Agent) openLocked() {
	a.gen++
	gen := a.gen
	a.setStateLocked(StateConnecting)

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.HandshakeTimeout)
	a.cancelDial = cancel
	go a.dial(ctx, cancel, gen, a.url, a.token)
}

func (a *Agent) dial(ctx context.Context, cancel context.CancelFunc, gen uint64, addr, token string) {
	defer cancel()
	tr, err := a.dialer.Dial(ctx, addr, token, &link{agent: a, gen: gen})
	if err != nil {
		a.onDialError(gen, err)
		return
	}
	a.onOpen(gen, tr)
}

func (a *Agent) onDialError(gen uint64, err error) {
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return
	}
	a.cancelDial = nil
	a.gen++
	a.setStateLocked(StateDisconnected)
	a.mu.Unlock()

	ev := a.log.Warn().Err(err)
	if protocol.IsKind(err, protocol.KindAuthentication) {
		ev = a.log.Error().Err(err)
	}
	ev.Msg("connection to hub failed")
	a.dispatchLocal(protocol.EventConnectionError, protocol.ConnectionErrorPayload{Error: err.Error()})
	a.scheduleReconnect()
}

func (a *Agent) onOpen(gen uint64, tr Transport) {
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		_ = tr.Close()
		return
	}
	a.cancelDial = nil
	a.transport = tr
	a.policy.Reset()
	a.setStateLocked(StateConnected)
	a.startHeartbeatLocked(gen)
	fresh, stale := a.queue.Drain(a.now())
	turn := a.sends.claim()
	a.mu.Unlock()
	a.sends.wait(turn)
	sent, err := flush(tr, fresh)
	a.sends.done()

	if err != nil {
		a.mu.Lock()
		a.queue.PushFront(fresh[sent:])
		a.mu.Unlock()
		a.log.Warn().Err(err).Int("remaining", len(fresh)-sent).Msg("queue flush interrupted")
	}
	a.log.Info().Int("flushed", sent).Int("stale_dropped", stale).Msg("connected to hub")
	a.dispatchLocal(protocol.EventConnected, nil)
}

// flush sends queued messages in order and returns how many were sent
// before the first failure.
func flush(tr Transport, msgs []QueuedMessage) (int, error) {
	for i, m := range msgs {
		if err := tr.Send(m.Frame); err != nil {
			return i, err
		}
	}
	return len(msgs), nil
}

// handleClose moves a live generation to disconnected and schedules the
// reconnect unless the close was forced.
func (a *Agent) handleClose(gen uint64, cause error) {
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return
	}
	tr := a.teardownLocked()
	reconnect := a.shouldReconnect && !a.forcedClose
	a.mu.Unlock()

	if tr != nil {
		_ = tr.Close()
	}
	reason := closeReason(cause)
	a.log.Info().Str("reason", reason).Bool("reconnect", reconnect).Msg("disconnected from hub")
	a.dispatchLocal(protocol.EventDisconnected, protocol.DisconnectedPayload{Reason: reason})
	if reconnect {
		a.scheduleReconnect()
	}
}

func closeReason(err error) string {
	switch {
	case err == nil:
		return "transport closed"
	case protocol.IsKind(err, protocol.KindHeartbeatTimeout):
		return "heartbeat timeout"
	default:
		return err.Error()
	}
}

// scheduleReconnect arms the single reconnect timer, or gives up for good
// once the attempt ceiling is exceeded.
func (a *Agent) scheduleReconnect() {
	a.mu.Lock()
	if !a.shouldReconnect || a.forcedClose || a.state != StateDisconnected {
		a.mu.Unlock()
		return
	}
	a.stopTimerLocked()
	delay, attempt, ok := a.policy.Next()
	if !ok {
		a.shouldReconnect = false
		a.stopWatchdogLocked()
		a.mu.Unlock()

		metrics.AgentReconnectFailed.Inc()
		a.log.Error().Int("max_attempts", a.cfg.MaxAttempts).Msg("giving up on reconnection")
		a.dispatchLocal(protocol.EventReconnectFailed, nil)
		return
	}
	seq := a.timerSeq
	a.timer = time.AfterFunc(delay, func() { a.fireReconnect(seq) })
	a.mu.Unlock()

	metrics.AgentReconnectAttempts.Inc()
	a.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("reconnect scheduled")
}

func (a *Agent) fireReconnect(seq uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if seq != a.timerSeq || a.timer == nil || !a.shouldReconnect || a.state != StateDisconnected {
		return
	}
	a.timer = nil
	a.openLocked()
}

// stopTimerLocked cancels the pending reconnect. Bumping timerSeq also voids
// a timer that already fired and is waiting on mu.
func (a *Agent) stopTimerLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.timerSeq++
}

// reconnectNowLocked replaces a pending reconnect with an immediate attempt.
func (a *Agent) reconnectNowLocked() {
	a.stopTimerLocked()
	a.openLocked()
}

func (a *Agent) setStateLocked(s State) {
	a.state = s
	metrics.AgentState.Set(float64(s))
}

// Emit sends an inbound event to the hub, or queues it while disconnected.
// Local lifecycle names are dispatched to local subscribers only.
func (a *Agent) Emit(event protocol.EventName, data interface{}) error {
	if protocol.IsLocal(event) {
		raw, err := marshalData(data)
		if err != nil {
			return err
		}
		a.events.Dispatch(event, raw)
		return nil
	}
	if !protocol.IsInbound(event) {
		return fmt.Errorf("emit %q: %w", event, ErrNotInbound)
	}
	frame, err := protocol.EncodeFrame(event, data)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for {
		if a.forcedClose {
			return ErrClosed
		}
		if a.state != StateConnected || a.transport == nil {
			break
		}
		tr, gen := a.transport, a.gen
		turn := a.sends.claim()
		a.mu.Unlock()
		a.sends.wait(turn)
		err := tr.Send(frame)
		a.sends.done()
		a.mu.Lock()
		if err == nil {
			return nil
		}
		a.log.Warn().Err(err).Str("event", string(event)).Msg("send failed")
		if a.gen == gen {
			// Same dead transport: hold the message for the reconnect flush.
			break
		}
	}
	if a.queue.Push(QueuedMessage{Event: event, Frame: frame, Timestamp: a.now()}) {
		a.log.Warn().Int("queue_max", a.cfg.QueueMax).Msg("offline queue full, dropped oldest message")
	}
	return nil
}

func marshalData(data interface{}) (json.RawMessage, error) {
	if data == nil {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	return raw, nil
}

func (a *Agent) dispatchLocal(event protocol.EventName, data interface{}) {
	raw, err := marshalData(data)
	if err != nil {
		a.log.Error().Err(err).Str("event", string(event)).Msg("failed to encode local event")
		return
	}
	a.events.Dispatch(event, raw)
}

// handleFrame re-dispatches one hub frame to local subscribers. Pong frames
// also answer the outstanding heartbeat ping.
func (a *Agent) handleFrame(gen uint64, data []byte) {
	f, err := protocol.DecodeFrame(data)
	if err != nil {
		a.log.Warn().Err(err).Msg("dropping undecodable frame")
		return
	}

	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return
	}
	if f.Event == protocol.EventPong {
		a.pingOutstanding = false
		a.missedPings = 0
	}
	a.mu.Unlock()

	if !protocol.IsOutbound(f.Event) {
		a.log.Warn().Str("event", string(f.Event)).Msg("dropping unknown hub event")
		return
	}
	if f.Event == protocol.EventError {
		a.log.Warn().RawJSON("data", f.Data).Msg("hub rejected an event")
	}
	a.events.Dispatch(f.Event, f.Data)
}

// link binds transport callbacks to the generation that opened them.
type link struct {
	agent *Agent
	gen   uint64
}

func (l *link) OnFrame(data []byte) { l.agent.handleFrame(l.gen, data) }
func (l *link) OnClose(err error)   { l.agent.handleClose(l.gen, err) }

// On registers a handler for a hub or local event.
func (a *Agent) On(event protocol.EventName, fn Handler) Subscription {
	return a.events.On(event, fn)
}

// Once registers a handler for the next occurrence of event.
func (a *Agent) Once(event protocol.EventName, fn Handler) Subscription {
	return a.events.Once(event, fn)
}

// Off removes a handler.
func (a *Agent) Off(sub Subscription) bool { return a.events.Off(sub) }

// State returns the current lifecycle state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Attempts returns the reconnect attempts scheduled since the last connect.
func (a *Agent) Attempts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.policy.Attempts()
}

// QueueLen returns the number of queued outbound events.
func (a *Agent) QueueLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.queue.Len()
}

// ReconnectPending reports whether a reconnect timer is armed.
func (a *Agent) ReconnectPending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timer != nil
}
