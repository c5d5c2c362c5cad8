// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/quayside/internal/auth"
	"github.com/tomtom215/quayside/internal/authz"
	"github.com/tomtom215/quayside/internal/config"
	"github.com/tomtom215/quayside/internal/logging"
	"github.com/tomtom215/quayside/internal/protocol"
	"github.com/tomtom215/quayside/internal/store"
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

const (
	testSecret  = "k3v9mX2pQ7rL5tW8yB4nH6jD1fG0sA3c"
	readTimeout = 2 * time.Second

	userAdmin    = "u-admin"
	userOperator = "u-op"
	userAcct     = "u-acct"
	userInactive = "u-off"
)

var testUsers = []store.User{
	{ID: userAdmin, Name: "Capitaine Haddock", Role: authz.RoleAdmin, Active: true},
	{ID: userOperator, Name: "Tintin", Role: authz.RoleOperateur, Active: true},
	{ID: userAcct, Name: "Nestor", Role: authz.RoleAccountant, Active: true},
	{ID: userInactive, Name: "Rastapopoulos", Role: authz.RoleOperateur, Active: false},
}

// denyRooms refuses one room and allows the rest.
type denyRooms struct{ room string }

func (d denyRooms) CanJoin(_ context.Context, _, _, room string) (bool, error) {
	return room != d.room, nil
}

type testEnv struct {
	hub     *Hub
	store   store.Store
	jwt     *auth.JWTManager
	srv     *httptest.Server
	cancel  context.CancelFunc
	barrier atomic.Int64
}

type envOption func(*config.HubConfig, *Deps, *UpgradeConfig)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	st := store.NewMemoryStore()
	if _, err := store.EnsureUsers(context.Background(), st, testUsers); err != nil {
		t.Fatalf("EnsureUsers() error = %v", err)
	}
	jwtManager, err := auth.NewJWTManager(&config.SecurityConfig{JWTSecret: testSecret, SessionTimeout: time.Hour})
	if err != nil {
		t.Fatalf("NewJWTManager() error = %v", err)
	}

	cfg := config.HubConfig{}
	deps := Deps{Store: st, Rooms: denyRooms{room: "vessel:secret"}}
	ucfg := UpgradeConfig{AllowedOrigins: []string{"*"}}
	for _, opt := range opts {
		opt(&cfg, &deps, &ucfg)
	}

	hub := NewHub(cfg, deps)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.RunWithContext(ctx) }()

	handler := NewUpgradeHandler(context.Background(), hub, auth.NewGate(jwtManager, st), ucfg)
	srv := httptest.NewServer(handler)

	env := &testEnv{hub: hub, store: st, jwt: jwtManager, srv: srv, cancel: cancel}
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return env
}

func (e *testEnv) url(token string) string {
	u := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws"
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := e.jwt.GenerateToken(userID, "ignored", "ignored")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	return tok
}

// dialRaw opens a socket without waiting for registration.
func (e *testEnv) dialRaw(t *testing.T, userID string) *testClient {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial(e.url(e.token(t, userID)), nil)
	if err != nil {
		t.Fatalf("Dial(%s) error = %v", userID, err)
	}
	_ = resp.Body.Close()
	c := &testClient{t: t, ws: ws, userID: userID}
	t.Cleanup(func() { _ = ws.Close() })
	return c
}

// dial opens a socket and waits until the hub serves it.
func (e *testEnv) dial(t *testing.T, userID string) *testClient {
	t.Helper()
	c := e.dialRaw(t, userID)
	c.sync()
	return c
}

// flush publishes a marker to global and drains each client up to it. Every
// broadcast queued before the call has then been seen; forbidden events seen
// on the way fail the test.
func (e *testEnv) flush(t *testing.T, forbidden protocol.EventName, clients ...*testClient) {
	t.Helper()
	marker := fmt.Sprintf("barrier-%d", e.barrier.Add(1))
	env, err := protocol.NewEnvelope(protocol.EventNotificationNew, map[string]string{"marker": marker}, "test", "test")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.hub.Publish(context.Background(), env); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	for _, c := range clients {
		for {
			f := c.next()
			if f.Event == forbidden && forbidden != "" {
				t.Fatalf("%s received forbidden %s: %s", c.userID, forbidden, f.Data)
			}
			if f.Event == protocol.EventNotificationNew && strings.Contains(string(f.Data), marker) {
				break
			}
		}
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(readTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type testClient struct {
	t      *testing.T
	ws     *websocket.Conn
	userID string
}

func (c *testClient) send(event protocol.EventName, data interface{}) {
	c.t.Helper()
	frame, err := protocol.EncodeFrame(event, data)
	if err != nil {
		c.t.Fatal(err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.t.Fatalf("write %s: %v", event, err)
	}
}

func (c *testClient) next() protocol.Frame {
	c.t.Helper()
	_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		c.t.Fatalf("%s read: %v", c.userID, err)
	}
	f, err := protocol.DecodeFrame(data)
	if err != nil {
		c.t.Fatalf("%s decode: %v", c.userID, err)
	}
	return f
}

// expect reads until event arrives, skipping anything else.
func (c *testClient) expect(event protocol.EventName) protocol.Frame {
	c.t.Helper()
	for {
		f := c.next()
		if f.Event == event {
			return f
		}
	}
}

// expectError reads until an error frame and returns its message.
func (c *testClient) expectError() string {
	c.t.Helper()
	var p protocol.ErrorPayload
	decodeInto(c.t, c.expect(protocol.EventError), &p)
	return p.Message
}

// sync round-trips a ping; the hub answers only registered connections.
func (c *testClient) sync() {
	c.t.Helper()
	c.send(protocol.EventPing, nil)
	c.expect(protocol.EventPong)
}

func decodeInto(t *testing.T, f protocol.Frame, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(f.Data, v); err != nil {
		t.Fatalf("decode %s data: %v", f.Event, err)
	}
}

func TestNewHub_Defaults(t *testing.T) {
	hub := NewHub(config.HubConfig{}, Deps{})

	checks := []struct {
		name   string
		check  bool
		errMsg string
	}{
		{"store", hub.store != nil, "store not defaulted"},
		{"policy", hub.policy != nil, "policy not defaulted"},
		{"rooms", hub.rooms != nil, "room authorizer not defaulted"},
		{"send buffer", hub.cfg.SendBuffer == 256, "send buffer not defaulted"},
		{"pong wait", hub.cfg.PongWait == 60*time.Second, "pong wait not defaulted"},
		{"handlers", len(hub.handlers) == 5+len(protocol.Domains), "unexpected handler count"},
		{"empty", hub.ConnectionCount() == 0, "hub should start empty"},
	}
	for _, c := range checks {
		if !c.check {
			t.Errorf("%s: %s", c.name, c.errMsg)
		}
	}
	if hub.String() != "websocket-hub" {
		t.Errorf("String() = %q", hub.String())
	}
}

func TestRoomNames(t *testing.T) {
	tests := []struct {
		room     string
		reserved bool
	}{
		{RoomGlobal, true},
		{RoleRoom("admin"), true},
		{UserRoom("u1"), true},
		{"team:north", false},
		{"globalement", false},
	}
	for _, tt := range tests {
		if got := isReservedRoom(tt.room); got != tt.reserved {
			t.Errorf("isReservedRoom(%q) = %v, want %v", tt.room, got, tt.reserved)
		}
	}
}

func TestHandshake_Rejections(t *testing.T) {
	env := newTestEnv(t, func(_ *config.HubConfig, _ *Deps, u *UpgradeConfig) {
		u.AllowedOrigins = []string{"https://app.quayside.local"}
	})

	other, err := auth.NewJWTManager(&config.SecurityConfig{JWTSecret: "another-secret-0123456789abcdefghij", SessionTimeout: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	foreign, _ := other.GenerateToken(userAdmin, "admin", "x")

	tests := []struct {
		name       string
		token      string
		origin     string
		wantStatus int
	}{
		{"missing token", "", "", http.StatusUnauthorized},
		{"garbage token", "not-a-jwt", "", http.StatusUnauthorized},
		{"foreign signature", foreign, "", http.StatusUnauthorized},
		{"unknown user", env.token(t, "u-ghost"), "", http.StatusUnauthorized},
		{"inactive user", env.token(t, userInactive), "", http.StatusUnauthorized},
		{"bad origin", env.token(t, userAdmin), "https://evil.example", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			ws, resp, err := websocket.DefaultDialer.Dial(env.url(tt.token), header)
			if err == nil {
				_ = ws.Close()
				t.Fatal("Dial() succeeded, want handshake failure")
			}
			if !errors.Is(err, websocket.ErrBadHandshake) {
				t.Fatalf("Dial() error = %v, want ErrBadHandshake", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}

	if env.hub.ConnectionCount() != 0 {
		t.Errorf("ConnectionCount() = %d after rejected handshakes", env.hub.ConnectionCount())
	}
}

func TestHandshake_AllowedOriginAndNoOrigin(t *testing.T) {
	env := newTestEnv(t, func(_ *config.HubConfig, _ *Deps, u *UpgradeConfig) {
		u.AllowedOrigins = []string{"https://app.quayside.local"}
	})

	header := http.Header{"Origin": []string{"https://APP.quayside.local"}}
	ws, resp, err := websocket.DefaultDialer.Dial(env.url(env.token(t, userAdmin)), header)
	if err != nil {
		t.Fatalf("Dial() with allowed origin error = %v", err)
	}
	_ = resp.Body.Close()
	_ = ws.Close()

	env.dial(t, userOperator)
}

func TestRegister_AutoJoinsRoomsAndIdentityFromRecord(t *testing.T) {
	env := newTestEnv(t)
	env.dial(t, userAcct)

	for _, room := range []string{RoomGlobal, RoleRoom(authz.RoleAccountant), UserRoom(userAcct)} {
		if env.hub.RoomSize(room) != 1 {
			t.Errorf("RoomSize(%q) = %d, want 1", room, env.hub.RoomSize(room))
		}
	}
	// Token claims said role "ignored"; the stored record wins.
	if env.hub.RoomSize(RoleRoom("ignored")) != 0 {
		t.Error("role must come from the user record, not the token")
	}
	if !env.hub.IsOnline(userAcct) {
		t.Error("IsOnline() = false after connect")
	}
}

func TestPresence_FiresOncePerTransition(t *testing.T) {
	env := newTestEnv(t)
	observer := env.dial(t, userAdmin)
	env.flush(t, "", observer)

	var st protocol.UserStatusPayload
	first := env.dial(t, userOperator)
	decodeInto(t, observer.expect(protocol.EventUserStatus), &st)
	if st.UserID != userOperator || st.Status != protocol.StatusOnline || st.Timestamp == 0 {
		t.Fatalf("user:status = %+v, want %s online", st, userOperator)
	}

	second := env.dial(t, userOperator)
	if got := env.hub.UserConnectionCount(userOperator); got != 2 {
		t.Fatalf("UserConnectionCount() = %d, want 2", got)
	}
	env.flush(t, protocol.EventUserStatus, observer)

	_ = first.ws.Close()
	waitUntil(t, "first device gone", func() bool { return env.hub.UserConnectionCount(userOperator) == 1 })
	env.flush(t, protocol.EventUserStatus, observer)
	if !env.hub.IsOnline(userOperator) {
		t.Error("user should stay online while a device remains")
	}

	_ = second.ws.Close()
	decodeInto(t, observer.expect(protocol.EventUserStatus), &st)
	if st.UserID != userOperator || st.Status != protocol.StatusOffline {
		t.Fatalf("user:status = %+v, want %s offline", st, userOperator)
	}
	env.flush(t, protocol.EventUserStatus, observer)

	if got := env.hub.OnlineUsers(); len(got) != 1 || got[0] != userAdmin {
		t.Errorf("OnlineUsers() = %v, want [%s]", got, userAdmin)
	}
}

func TestDomainUpdate_AdminBroadcastExcludesSender(t *testing.T) {
	env := newTestEnv(t)
	admin := env.dial(t, userAdmin)
	op := env.dial(t, userOperator)
	acct := env.dial(t, userAcct)

	admin.send(protocol.EventClientUpdate, map[string]interface{}{"id": 42, "name": "Moulinsart SA"})

	for _, c := range []*testClient{op, acct} {
		var got map[string]interface{}
		decodeInto(t, c.expect(protocol.EventClientUpdated), &got)
		if got["updatedBy"] != "Capitaine Haddock" {
			t.Errorf("%s updatedBy = %v", c.userID, got["updatedBy"])
		}
		if _, ok := got["timestamp"].(float64); !ok {
			t.Errorf("%s timestamp = %T, want number", c.userID, got["timestamp"])
		}
		if got["id"] != float64(42) || got["name"] != "Moulinsart SA" {
			t.Errorf("%s payload = %v", c.userID, got)
		}
	}
	env.flush(t, protocol.EventClientUpdated, admin)

	rec, err := env.store.FindOne(context.Background(), store.CollectionActivityLogs, store.Filter{"action": "client.update"})
	if err != nil {
		t.Fatalf("activity log FindOne() error = %v", err)
	}
	var log store.ActivityLog
	if err := store.Decode(rec, &log); err != nil {
		t.Fatal(err)
	}
	if log.UserID != userAdmin || log.UserName != "Capitaine Haddock" || log.EntityID != float64(42) {
		t.Errorf("activity log = %+v", log)
	}
}

func TestDomainUpdate_PermissionDenied(t *testing.T) {
	env := newTestEnv(t)
	op := env.dial(t, userOperator)
	acct := env.dial(t, userAcct)
	admin := env.dial(t, userAdmin)

	op.send(protocol.EventPaymentUpdate, map[string]interface{}{"id": "pay-7", "amount": 1200})
	if msg := op.expectError(); msg != "Permission refusée" {
		t.Errorf("error message = %q, want Permission refusée", msg)
	}
	env.flush(t, protocol.EventPaymentUpdated, acct, admin)

	if _, err := env.store.FindOne(context.Background(), store.CollectionActivityLogs, store.Filter{"action": "payment.update"}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("denied update must not be logged, FindOne() error = %v", err)
	}

	// The connection stays usable.
	op.sync()
}

func TestDomainUpdate_PaymentRoutedToFinanceRooms(t *testing.T) {
	env := newTestEnv(t)
	admin := env.dial(t, userAdmin)
	admin2 := env.dial(t, userAdmin)
	acct := env.dial(t, userAcct)
	op := env.dial(t, userOperator)

	acct.send(protocol.EventPaymentUpdate, map[string]interface{}{"id": "pay-7", "status": "paid"})

	for _, c := range []*testClient{admin, admin2} {
		var got map[string]interface{}
		decodeInto(t, c.expect(protocol.EventPaymentUpdated), &got)
		if got["updatedBy"] != "Nestor" {
			t.Errorf("updatedBy = %v", got["updatedBy"])
		}
	}
	env.flush(t, protocol.EventPaymentUpdated, op, acct)
}

func TestDomainUpdate_MissingPayload(t *testing.T) {
	env := newTestEnv(t)
	admin := env.dial(t, userAdmin)

	admin.send(protocol.EventGoodsUpdate, nil)
	if msg := admin.expectError(); msg != "Données manquantes" {
		t.Errorf("error message = %q", msg)
	}
	admin.send(protocol.EventGoodsUpdate, []int{1, 2})
	if msg := admin.expectError(); msg != "Données invalides" {
		t.Errorf("error message = %q", msg)
	}
}

func TestDispatch_UnknownAndMalformed(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t, userOperator)
	other := env.dial(t, userAdmin)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"unknown event", `{"event":"vessel:sink","data":{}}`, "Événement inconnu"},
		{"outbound name sent inbound", `{"event":"client:updated","data":{}}`, "Événement inconnu"},
		{"not json", `{{{`, "Message invalide"},
		{"no event", `{"data":{}}`, "Message invalide"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.ws.WriteMessage(websocket.TextMessage, []byte(tt.raw)); err != nil {
				t.Fatal(err)
			}
			if msg := c.expectError(); msg != tt.want {
				t.Errorf("error message = %q, want %q", msg, tt.want)
			}
		})
	}
	env.flush(t, protocol.EventError, other)
}

func TestDispatch_HandlerPanicIsIsolated(t *testing.T) {
	env := newTestEnv(t)
	env.hub.handlers[protocol.EventLeaveRoom] = func(context.Context, *Conn, protocol.Frame) error {
		panic("boom")
	}
	c := env.dial(t, userOperator)
	other := env.dial(t, userAdmin)

	c.send(protocol.EventLeaveRoom, protocol.RoomPayload{Name: "team:north"})
	if msg := c.expectError(); msg != "Erreur interne" {
		t.Errorf("error message = %q, want Erreur interne", msg)
	}
	env.flush(t, protocol.EventError, other)

	c.sync()
	other.sync()
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.HubConfig, _ *Deps, _ *UpgradeConfig) {
		cfg.EventsPerSecond = 0.01
		cfg.EventsBurst = 2
	})
	c := env.dialRaw(t, userOperator)

	for i := 0; i < 3; i++ {
		c.send(protocol.EventPing, nil)
	}
	c.expect(protocol.EventPong)
	c.expect(protocol.EventPong)
	if msg := c.expectError(); msg != protocol.ErrRateLimited.Message {
		t.Errorf("error message = %q", msg)
	}
}

func TestMaxConnectionsPerUser(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.HubConfig, _ *Deps, _ *UpgradeConfig) {
		cfg.MaxConnectionsPerUser = 1
	})
	env.dial(t, userOperator)

	ws, resp, err := websocket.DefaultDialer.Dial(env.url(env.token(t, userOperator)), nil)
	if err == nil {
		_ = ws.Close()
		t.Fatal("second connection should be refused")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}

	// Other users are unaffected.
	env.dial(t, userAdmin)
}

func TestRooms_JoinLeave(t *testing.T) {
	env := newTestEnv(t)
	member := env.dial(t, userOperator)
	outsider := env.dial(t, userAcct)

	member.send(protocol.EventJoinRoom, protocol.RoomPayload{Name: "team:north"})
	member.sync()
	if env.hub.RoomSize("team:north") != 1 {
		t.Fatalf("RoomSize() = %d, want 1", env.hub.RoomSize("team:north"))
	}

	msg, err := protocol.NewEnvelope(protocol.EventContainerUpdated, map[string]string{"id": "MSCU1234567"}, "svc", "Portique")
	if err != nil {
		t.Fatal(err)
	}
	if err := env.hub.Publish(context.Background(), msg, "team:north"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	var got struct {
		Type       string `json:"type"`
		SenderName string `json:"senderName"`
	}
	decodeInto(t, member.expect(protocol.EventContainerUpdated), &got)
	if got.Type != string(protocol.EventContainerUpdated) || got.SenderName != "Portique" {
		t.Errorf("envelope = %+v", got)
	}
	env.flush(t, protocol.EventContainerUpdated, outsider)

	member.send(protocol.EventLeaveRoom, protocol.RoomPayload{Name: "team:north"})
	member.sync()
	if env.hub.RoomSize("team:north") != 0 {
		t.Errorf("RoomSize() after leave = %d, want 0", env.hub.RoomSize("team:north"))
	}
}

func TestRooms_Rejections(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t, userOperator)

	tests := []struct {
		name  string
		event protocol.EventName
		room  string
		want  string
	}{
		{"join global", protocol.EventJoinRoom, RoomGlobal, "Accès au salon refusé"},
		{"join other role", protocol.EventJoinRoom, RoleRoom(authz.RoleAdmin), "Accès au salon refusé"},
		{"join other user", protocol.EventJoinRoom, UserRoom(userAdmin), "Accès au salon refusé"},
		{"leave own user room", protocol.EventLeaveRoom, UserRoom(userOperator), "Accès au salon refusé"},
		{"authorizer denies", protocol.EventJoinRoom, "vessel:secret", "Accès au salon refusé"},
		{"empty name", protocol.EventJoinRoom, "", "name est requis"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.send(tt.event, protocol.RoomPayload{Name: tt.room})
			if msg := c.expectError(); msg != tt.want {
				t.Errorf("error message = %q, want %q", msg, tt.want)
			}
		})
	}
	if env.hub.RoomSize(RoleRoom(authz.RoleAdmin)) != 0 || env.hub.RoomSize(UserRoom(userOperator)) != 1 {
		t.Error("reserved room membership changed")
	}
}

func TestSendToUser_AllConnectionsOfOneUser(t *testing.T) {
	env := newTestEnv(t)
	a1 := env.dial(t, userAdmin)
	a2 := env.dial(t, userAdmin)
	other := env.dial(t, userOperator)

	if n := env.hub.sendToUser(userAdmin, protocol.EventNotificationRead, protocol.NotificationReadPayload{NotificationID: "n1"}); n != 2 {
		t.Errorf("sendToUser() reached %d connections, want 2", n)
	}
	a1.expect(protocol.EventNotificationRead)
	a2.expect(protocol.EventNotificationRead)
	env.flush(t, protocol.EventNotificationRead, other)

	if n := env.hub.sendToUser("u-ghost", protocol.EventPong, nil); n != 0 {
		t.Errorf("sendToUser(offline) = %d, want 0", n)
	}
}

func TestMessageSend(t *testing.T) {
	env := newTestEnv(t)
	sender := env.dial(t, userOperator)
	r1 := env.dial(t, userAdmin)
	r2 := env.dial(t, userAdmin)
	bystander := env.dial(t, userAcct)

	sender.send(protocol.EventMessageSend, protocol.MessageSendPayload{RecipientID: userAdmin, Content: "Le conteneur est à quai"})

	var ack protocol.Message
	decodeInto(t, sender.expect(protocol.EventMessageSent), &ack)
	if ack.ID == "" || ack.SenderID != userOperator || ack.SenderName != "Tintin" || ack.Type != "text" || ack.CreatedAt == 0 {
		t.Errorf("ack = %+v", ack)
	}
	for _, r := range []*testClient{r1, r2} {
		var got protocol.Message
		decodeInto(t, r.expect(protocol.EventMessageReceived), &got)
		if got.ID != ack.ID || got.Content != "Le conteneur est à quai" {
			t.Errorf("received = %+v, want id %s", got, ack.ID)
		}
	}
	env.flush(t, protocol.EventMessageReceived, bystander)

	if _, err := env.store.FindOne(context.Background(), store.CollectionMessages, store.Filter{store.FieldID: ack.ID}); err != nil {
		t.Errorf("message not persisted: %v", err)
	}
}

func TestMessageSend_Rejections(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t, userOperator)

	tests := []struct {
		name    string
		payload protocol.MessageSendPayload
		want    string
	}{
		{"missing recipient", protocol.MessageSendPayload{Content: "x"}, "recipientId est requis"},
		{"missing content", protocol.MessageSendPayload{RecipientID: userAdmin}, "content est requis"},
		{"bad type", protocol.MessageSendPayload{RecipientID: userAdmin, Content: "x", Type: "video"}, "type doit valoir : text file system"},
		{"unknown recipient", protocol.MessageSendPayload{RecipientID: "u-ghost", Content: "x"}, "Destinataire introuvable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.send(protocol.EventMessageSend, tt.payload)
			if msg := c.expectError(); msg != tt.want {
				t.Errorf("error message = %q, want %q", msg, tt.want)
			}
		})
	}
}

func TestNotify_AndRead(t *testing.T) {
	env := newTestEnv(t)
	owner1 := env.dial(t, userOperator)
	owner2 := env.dial(t, userOperator)
	intruder := env.dial(t, userAcct)

	n, err := env.hub.Notify(context.Background(), userOperator, "container", "Arrivée", "MSCU1234567 déchargé")
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if n.ID == "" || n.Read {
		t.Fatalf("Notify() = %+v", n)
	}
	for _, c := range []*testClient{owner1, owner2} {
		var got protocol.Notification
		decodeInto(t, c.expect(protocol.EventNotificationNew), &got)
		if got.ID != n.ID || got.Title != "Arrivée" {
			t.Errorf("notification:new = %+v", got)
		}
	}

	intruder.send(protocol.EventNotificationRead, protocol.NotificationReadPayload{NotificationID: n.ID})
	if msg := intruder.expectError(); msg != "Notification inaccessible" {
		t.Errorf("intruder error = %q", msg)
	}
	intruder.send(protocol.EventNotificationRead, protocol.NotificationReadPayload{NotificationID: "missing"})
	if msg := intruder.expectError(); msg != "Notification inaccessible" {
		t.Errorf("missing error = %q", msg)
	}

	owner1.send(protocol.EventNotificationRead, protocol.NotificationReadPayload{NotificationID: n.ID})
	for _, c := range []*testClient{owner1, owner2} {
		var got protocol.NotificationReadPayload
		decodeInto(t, c.expect(protocol.EventNotificationRead), &got)
		if got.NotificationID != n.ID {
			t.Errorf("notification:read = %+v", got)
		}
	}

	rec, err := env.store.FindOne(context.Background(), store.CollectionNotifications, store.Filter{store.FieldID: n.ID})
	if err != nil {
		t.Fatal(err)
	}
	var stored protocol.Notification
	if err := store.Decode(rec, &stored); err != nil {
		t.Fatal(err)
	}
	if !stored.Read || stored.ReadAt == 0 {
		t.Errorf("stored notification = %+v, want read", stored)
	}

	if _, err := env.hub.Notify(context.Background(), "", "x", "y", ""); !protocol.IsKind(err, protocol.KindValidation) {
		t.Errorf("Notify(no user) error = %v, want validation", err)
	}
}

func TestPublish_RejectsNonOutbound(t *testing.T) {
	hub := NewHub(config.HubConfig{}, Deps{})
	env, err := protocol.NewEnvelope(protocol.EventClientUpdate, map[string]int{"id": 1}, "svc", "svc")
	if err != nil {
		t.Fatal(err)
	}
	if err := hub.Publish(context.Background(), env); err == nil {
		t.Error("Publish() of an inbound event should fail")
	}
}

func TestRunWithContext_Shutdown(t *testing.T) {
	env := newTestEnv(t)
	c1 := env.dial(t, userAdmin)
	c2 := env.dial(t, userOperator)

	env.cancel()
	for _, c := range []*testClient{c1, c2} {
		_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))
		for {
			if _, _, err := c.ws.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
					t.Errorf("%s close error = %v, want going away", c.userID, err)
				}
				break
			}
		}
	}
	if env.hub.ConnectionCount() != 0 || len(env.hub.OnlineUsers()) != 0 {
		t.Errorf("hub not empty after shutdown: conns=%d online=%v", env.hub.ConnectionCount(), env.hub.OnlineUsers())
	}
}

func TestGetShutdownReason(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	expired, cancel2 := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel2()
	<-expired.Done()

	if got := getShutdownReason(canceled); got != ShutdownReasonContextCanceled {
		t.Errorf("canceled reason = %s", got)
	}
	if got := getShutdownReason(expired); got != ShutdownReasonContextDeadline {
		t.Errorf("deadline reason = %s", got)
	}
}

func TestSanitizeLogValue(t *testing.T) {
	if got := sanitizeLogValue("https://x\r\nINJECTED"); got != "https://xINJECTED" {
		t.Errorf("sanitizeLogValue() = %q", got)
	}
	if got := sanitizeLogValue(strings.Repeat("a", 300)); len(got) != 200 {
		t.Errorf("len = %d, want 200", len(got))
	}
}
