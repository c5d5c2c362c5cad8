// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package websocket

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/quayside/internal/authz"
	"github.com/tomtom215/quayside/internal/config"
	"github.com/tomtom215/quayside/internal/logging"
	"github.com/tomtom215/quayside/internal/metrics"
	"github.com/tomtom215/quayside/internal/protocol"
	"github.com/tomtom215/quayside/internal/store"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled indicates the parent context was canceled.
	// This is the normal graceful shutdown path (e.g., SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Pre-assigned rooms.
const (
	RoomGlobal     = "global"
	roleRoomPrefix = "role:"
	userRoomPrefix = "user:"
)

// RoleRoom returns the room shared by every connection of role.
func RoleRoom(role string) string { return roleRoomPrefix + role }

// UserRoom returns the room holding every connection of one user.
func UserRoom(userID string) string { return userRoomPrefix + userID }

// isReservedRoom reports whether name is managed by the hub and cannot be
// joined or left on request.
func isReservedRoom(name string) bool {
	return name == RoomGlobal || strings.HasPrefix(name, roleRoomPrefix) || strings.HasPrefix(name, userRoomPrefix)
}

// ErrTooManyConnections is returned when a user reached the per-user ceiling.
var ErrTooManyConnections = errors.New("too many connections for user")

// broadcastBuffer bounds the fan-out queue drained by RunWithContext.
const broadcastBuffer = 256

// Deps are the collaborators the hub calls into.
type Deps struct {
	Store  store.Store
	Policy *authz.Policy
	Rooms  authz.RoomAuthorizer
}

// delivery is one fan-out job. seq records enqueue order across the
// broadcast channel and the presence queue.
type delivery struct {
	seq     uint64
	event   protocol.EventName
	frame   []byte
	rooms   []string
	exclude *Conn
}

type handlerFunc func(ctx context.Context, c *Conn, f protocol.Frame) error

// Hub keeps the connection registry, the room index and the presence index.
// Registry changes happen under mu on the caller's goroutine; room fan-out
// is queued and drained by RunWithContext.
type Hub struct {
	cfg    config.HubConfig
	store  store.Store
	policy *authz.Policy
	rooms  authz.RoomAuthorizer
	log    zerolog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	conns map[*Conn]struct{}
	// members maps room name -> member connections.
	members map[string]map[*Conn]struct{}
	// users is the presence index: user ID -> live connections.
	users map[string]map[*Conn]struct{}

	broadcast chan delivery
	seq       atomic.Uint64
	// statuses carries presence transitions; unlike broadcast it never drops.
	statuses  *statusQueue
	handlers  map[protocol.EventName]handlerFunc
}

// statusQueue is an unbounded FIFO of presence deliveries. push never
// blocks, so it is safe to call with Hub.mu held.
type statusQueue struct {
	mu      sync.Mutex
	pending []delivery
	ready   chan struct{}
}

func newStatusQueue() *statusQueue {
	return &statusQueue{ready: make(chan struct{}, 1)}
}

func (q *statusQueue) push(d delivery) {
	q.mu.Lock()
	q.pending = append(q.pending, d)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// drain takes every pending delivery in push order.
func (q *statusQueue) drain() []delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// NewHub creates a hub. Zero config values fall back to the defaults used
// by config.Load; nil deps fall back to an in-memory store, the default
// policy table and a permissive room authorizer.
func NewHub(cfg config.HubConfig, deps Deps) *Hub {
	cfg = withDefaults(cfg)
	if deps.Store == nil {
		deps.Store = store.NewMemoryStore()
	}
	if deps.Policy == nil {
		deps.Policy = authz.DefaultPolicy()
	}
	if deps.Rooms == nil {
		deps.Rooms = authz.Permissive{}
	}

	h := &Hub{
		cfg:       cfg,
		store:     deps.Store,
		policy:    deps.Policy,
		rooms:     deps.Rooms,
		log:       logging.WithComponent("websocket-hub"),
		now:       time.Now,
		conns:     make(map[*Conn]struct{}),
		members:   make(map[string]map[*Conn]struct{}),
		users:     make(map[string]map[*Conn]struct{}),
		broadcast: make(chan delivery, broadcastBuffer),
		statuses:  newStatusQueue(),
	}
	h.handlers = h.routes()
	return h
}

func withDefaults(cfg config.HubConfig) config.HubConfig {
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 64 * 1024
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.EventsPerSecond > 0 && cfg.EventsBurst < 1 {
		cfg.EventsBurst = 1
	}
	return cfg
}

// RunWithContext drains the fan-out queue until ctx is canceled, then closes
// every connection. It is designed for use with suture supervision.
//
// DETERMINISM: shutdown is checked before each broadcast so a canceled hub
// does not keep fanning out.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Priority 1: Check for shutdown (highest priority, non-blocking)
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: Handle presence and broadcast jobs or wait for shutdown (blocking)
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case <-h.statuses.ready:
			h.fanoutPending(nil)
		case d := <-h.broadcast:
			h.fanoutPending(&d)
		}
	}
}

// fanoutPending delivers first together with every queued presence and
// broadcast job, in enqueue order.
func (h *Hub) fanoutPending(first *delivery) {
	batch := h.statuses.drain()
	if first != nil {
		batch = append(batch, *first)
	}
	for n := len(h.broadcast); n > 0; n-- {
		batch = append(batch, <-h.broadcast)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].seq < batch[j].seq })
	for _, d := range batch {
		h.fanout(d)
	}
}

// logGracefulShutdown closes all connections and logs the shutdown.
//
// Note: ctx.Err() is NOT logged as an error because context cancellation
// is expected behavior during graceful shutdown.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	count := h.closeAllConns()
	h.log.Info().
		Str("reason", string(getShutdownReason(ctx))).
		Int("connections_closed", count).
		Msg("websocket hub stopped")
}

// getShutdownReason determines the shutdown reason from the context error.
func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// String implements fmt.Stringer for supervisor logs.
func (h *Hub) String() string { return "websocket-hub" }

// CanAccept reports whether userID may open another connection.
func (h *Hub) CanAccept(userID string) bool {
	if h.cfg.MaxConnectionsPerUser <= 0 {
		return true
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) < h.cfg.MaxConnectionsPerUser
}

// register admits c, joins its pre-assigned rooms and fires the online
// transition if this is the user's first live connection.
func (h *Hub) register(c *Conn) error {
	uid := c.UserID()

	h.mu.Lock()
	if h.cfg.MaxConnectionsPerUser > 0 && len(h.users[uid]) >= h.cfg.MaxConnectionsPerUser {
		h.mu.Unlock()
		return ErrTooManyConnections
	}
	h.conns[c] = struct{}{}
	set, ok := h.users[uid]
	if !ok {
		set = make(map[*Conn]struct{})
		h.users[uid] = set
	}
	set[c] = struct{}{}
	first := len(set) == 1
	for _, room := range []string{RoomGlobal, RoleRoom(c.Role()), UserRoom(uid)} {
		h.joinLocked(c, room)
	}
	if first {
		h.presenceLocked(uid, protocol.StatusOnline)
	}
	conns, online := len(h.conns), len(h.users)
	h.mu.Unlock()

	metrics.SetHubGauges(conns, online)
	h.log.Info().
		Str("conn_id", c.ID()).
		Str("user_id", uid).
		Int("total_connections", conns).
		Msg("websocket client connected")
	return nil
}

// unregister removes c and fires the offline transition if it was the
// user's last live connection. Unknown connections are ignored.
func (h *Hub) unregister(c *Conn) {
	uid := c.UserID()

	h.mu.Lock()
	if _, ok := h.conns[c]; !ok {
		h.mu.Unlock()
		c.closeSend()
		return
	}
	delete(h.conns, c)
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	if set, ok := h.users[uid]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.users, uid)
			h.presenceLocked(uid, protocol.StatusOffline)
		}
	}
	conns, online := len(h.conns), len(h.users)
	h.mu.Unlock()

	c.closeSend()
	metrics.SetHubGauges(conns, online)
	h.log.Info().
		Str("conn_id", c.ID()).
		Str("user_id", uid).
		Dur("session", time.Since(c.connectedAt)).
		Int("total_connections", conns).
		Msg("websocket client disconnected")
}

// dropSlow disconnects a connection whose outbound buffer is full.
func (h *Hub) dropSlow(c *Conn) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	metrics.WSSlowConsumers.Inc()
	h.log.Warn().Str("conn_id", c.ID()).Str("user_id", c.UserID()).Msg("dropping slow websocket consumer")
	h.unregister(c)
}

func (h *Hub) join(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; ok {
		h.joinLocked(c, room)
	}
}

func (h *Hub) leave(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) joinLocked(c *Conn, room string) {
	set, ok := h.members[room]
	if !ok {
		set = make(map[*Conn]struct{})
		h.members[room] = set
	}
	set[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(c *Conn, room string) {
	delete(c.rooms, room)
	if set, ok := h.members[room]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.members, room)
		}
	}
}

// presenceLocked queues a user:status transition for the global room.
// Callers hold h.mu so transitions reach the queue in registry order.
func (h *Hub) presenceLocked(userID, status string) {
	frame, err := protocol.EncodeFrame(protocol.EventUserStatus, protocol.UserStatusPayload{
		UserID:    userID,
		Status:    status,
		Timestamp: h.now().UnixMilli(),
	})
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to encode presence")
		return
	}
	metrics.PresenceTransitions.WithLabelValues(status).Inc()
	h.statuses.push(delivery{seq: h.seq.Add(1), event: protocol.EventUserStatus, frame: frame, rooms: []string{RoomGlobal}})
}

// enqueue encodes data and queues a fan-out job for RunWithContext.
func (h *Hub) enqueue(event protocol.EventName, data interface{}, exclude *Conn, rooms ...string) {
	frame, err := protocol.EncodeFrame(event, data)
	if err != nil {
		h.log.Error().Err(err).Str("event", string(event)).Msg("failed to encode broadcast")
		return
	}
	h.enqueueFrame(delivery{event: event, frame: frame, rooms: rooms, exclude: exclude})
}

func (h *Hub) enqueueFrame(d delivery) {
	d.seq = h.seq.Add(1)
	select {
	case h.broadcast <- d:
	default:
		metrics.WSErrors.WithLabelValues("broadcast_queue_full").Inc()
		h.log.Warn().Str("event", string(d.event)).Msg("broadcast channel full, dropping message")
	}
}

// fanout delivers one job to the union of its rooms, each connection once,
// in connection order.
func (h *Hub) fanout(d delivery) {
	targets := h.targets(d.rooms, d.exclude)
	metrics.WSBroadcasts.WithLabelValues(string(d.event)).Inc()

	var slow []*Conn
	for _, c := range targets {
		if !c.enqueue(d.frame) {
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		h.dropSlow(c)
	}
}

// targets resolves rooms to a deduplicated, ordered connection list.
func (h *Hub) targets(rooms []string, exclude *Conn) []*Conn {
	h.mu.RLock()
	seen := make(map[*Conn]struct{})
	for _, room := range rooms {
		for c := range h.members[room] {
			if c != exclude {
				seen[c] = struct{}{}
			}
		}
	}
	h.mu.RUnlock()

	out := make([]*Conn, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// sendToUser delivers an event to every live connection of userID, and to
// no other user's. It returns the number of connections reached.
func (h *Hub) sendToUser(userID string, event protocol.EventName, data interface{}) int {
	frame, err := protocol.EncodeFrame(event, data)
	if err != nil {
		h.log.Error().Err(err).Str("event", string(event)).Msg("failed to encode direct message")
		return 0
	}

	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.users[userID]))
	for c := range h.users[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	sort.Slice(conns, func(i, j int) bool { return conns[i].seq < conns[j].seq })

	sent := 0
	for _, c := range conns {
		if c.enqueue(frame) {
			sent++
		} else {
			h.dropSlow(c)
		}
	}
	return sent
}

// closeAllConns closes every connection without presence events and returns
// how many were open. Called during shutdown.
func (h *Hub) closeAllConns() int {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[*Conn]struct{})
	h.members = make(map[string]map[*Conn]struct{})
	h.users = make(map[string]map[*Conn]struct{})
	h.mu.Unlock()

	sort.Slice(conns, func(i, j int) bool { return conns[i].seq < conns[j].seq })
	for _, c := range conns {
		c.closeSend()
	}
	metrics.SetHubGauges(0, 0)
	return len(conns)
}

// Publish fans a server-originated envelope out to rooms (global if none).
// Non-socket producers use it to push changes made outside the hub.
func (h *Hub) Publish(ctx context.Context, env protocol.Envelope, rooms ...string) error {
	if !protocol.IsOutbound(env.Type()) {
		return fmt.Errorf("publish %q: %w", env.Type(), protocol.ErrUnknownEvent)
	}
	if len(rooms) == 0 {
		rooms = []string{RoomGlobal}
	}
	frame, err := protocol.EncodeFrame(env.Type(), env)
	if err != nil {
		return err
	}
	logging.Ctx(ctx).Debug().Str("event", string(env.Type())).Strs("rooms", rooms).Msg("publishing envelope")
	h.enqueueFrame(delivery{event: env.Type(), frame: frame, rooms: rooms})
	return nil
}

// Notify persists a notification for userID, delivers notification:new to
// each of the user's live connections and returns the stored record.
func (h *Hub) Notify(ctx context.Context, userID, kind, title, body string) (protocol.Notification, error) {
	if userID == "" {
		return protocol.Notification{}, protocol.NewError(protocol.KindValidation, "Destinataire requis")
	}
	n := protocol.Notification{
		UserID:    userID,
		Kind:      kind,
		Title:     title,
		Body:      body,
		CreatedAt: h.now().UnixMilli(),
	}
	rec, err := store.Encode(n)
	if err != nil {
		return protocol.Notification{}, err
	}
	stored, err := h.store.Insert(ctx, store.CollectionNotifications, rec)
	if err != nil {
		return protocol.Notification{}, fmt.Errorf("persist notification: %w", err)
	}
	if err := store.Decode(stored, &n); err != nil {
		return protocol.Notification{}, err
	}

	reached := h.sendToUser(userID, protocol.EventNotificationNew, n)
	logging.Ctx(ctx).Debug().
		Str("notification_id", n.ID).
		Str("user_id", userID).
		Int("connections", reached).
		Msg("notification delivered")
	return n, nil
}

// OnlineUsers returns the IDs of users with at least one live connection.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	users := make([]string, 0, len(h.users))
	for uid := range h.users {
		users = append(users, uid)
	}
	h.mu.RUnlock()
	sort.Strings(users)
	return users
}

// IsOnline reports whether userID has a live connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// UserConnectionCount returns the number of live connections of userID.
func (h *Hub) UserConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// RoomSize returns the number of connections in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members[room])
}
