// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package websocket

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/tomtom215/quayside/internal/authz"
	"github.com/tomtom215/quayside/internal/logging"
	"github.com/tomtom215/quayside/internal/metrics"
	"github.com/tomtom215/quayside/internal/protocol"
	"github.com/tomtom215/quayside/internal/store"
	"github.com/tomtom215/quayside/internal/validation"
)

// errRecipientUnknown is answered when message:send names no stored user.
var errRecipientUnknown = protocol.NewError(protocol.KindValidation, "Destinataire introuvable")

// routes maps every inbound event to its handler.
func (h *Hub) routes() map[protocol.EventName]handlerFunc {
	r := map[protocol.EventName]handlerFunc{
		protocol.EventPing:             h.handlePing,
		protocol.EventJoinRoom:         h.handleJoinRoom,
		protocol.EventLeaveRoom:        h.handleLeaveRoom,
		protocol.EventMessageSend:      h.handleMessageSend,
		protocol.EventNotificationRead: h.handleNotificationRead,
	}
	for _, d := range protocol.Domains {
		r[protocol.UpdateEvent(d)] = h.domainUpdate(d)
	}
	return r
}

// domainRooms returns the rooms a domain's updates fan out to.
func domainRooms(d protocol.Domain) []string {
	if d == protocol.DomainPayment {
		return []string{RoleRoom(authz.RoleAdmin), RoleRoom(authz.RoleAccountant)}
	}
	return []string{RoomGlobal}
}

// dispatch decodes one inbound frame and runs its handler. Handler errors
// and panics become an error frame for c only.
func (h *Hub) dispatch(ctx context.Context, c *Conn, data []byte) {
	frame, err := protocol.DecodeFrame(data)
	if err != nil {
		h.reply(ctx, c, "", protocol.Wrap(protocol.KindValidation, "Message invalide", err))
		return
	}

	handler, ok := h.handlers[frame.Event]
	if !ok {
		metrics.WSMessagesReceived.WithLabelValues("unknown").Inc()
		h.reply(ctx, c, frame.Event, protocol.ErrUnknownEvent)
		return
	}
	metrics.WSMessagesReceived.WithLabelValues(string(frame.Event)).Inc()

	if err := h.safeHandle(ctx, c, frame, handler); err != nil {
		h.reply(ctx, c, frame.Event, err)
	}
}

// safeHandle runs handler and converts a panic into an error.
func (h *Hub) safeHandle(ctx context.Context, c *Conn, f protocol.Frame, handler handlerFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().
				Str("event", string(f.Event)).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("websocket handler panicked")
			err = fmt.Errorf("handler %s panicked: %v", f.Event, r)
		}
	}()
	return handler(ctx, c, f)
}

// reply logs a handler failure and acknowledges it to the sender.
func (h *Hub) reply(ctx context.Context, c *Conn, event protocol.EventName, err error) {
	kind, ok := protocol.KindOf(err)
	if !ok {
		kind = "internal"
	}
	metrics.WSErrors.WithLabelValues(string(kind)).Inc()

	log := logging.Ctx(ctx)
	switch kind {
	case protocol.KindPermission:
		log.Warn().Err(err).Str("event", string(event)).Msg("websocket event denied")
	case protocol.KindValidation:
		log.Debug().Err(err).Str("event", string(event)).Msg("websocket event rejected")
	default:
		log.Error().Err(err).Str("event", string(event)).Msg("websocket event failed")
	}
	c.emitError(protocol.ClientMessage(err))
}

// decodeValid decodes the frame data into v and validates it.
func decodeValid(f protocol.Frame, v interface{}) error {
	if err := f.Decode(v); err != nil {
		return err
	}
	if verr := validation.ValidateStruct(v); verr != nil {
		return verr.ToProtocolError()
	}
	return nil
}

func (h *Hub) handlePing(_ context.Context, c *Conn, _ protocol.Frame) error {
	c.emit(protocol.EventPong, protocol.PongPayload{Timestamp: h.now().UnixMilli()})
	return nil
}

func (h *Hub) handleJoinRoom(ctx context.Context, c *Conn, f protocol.Frame) error {
	var p protocol.RoomPayload
	if err := decodeValid(f, &p); err != nil {
		return err
	}
	if isReservedRoom(p.Name) {
		return protocol.ErrRoomForbidden
	}

	ok, err := h.rooms.CanJoin(ctx, c.UserID(), c.Role(), p.Name)
	if err != nil {
		return protocol.Wrap(protocol.KindPermission, protocol.ErrRoomForbidden.Message, err)
	}
	if !ok {
		metrics.WSPermissionDenied.WithLabelValues(c.Role(), string(protocol.EventJoinRoom)).Inc()
		return protocol.ErrRoomForbidden
	}

	h.join(c, p.Name)
	logging.Ctx(ctx).Debug().Str("room", p.Name).Msg("joined room")
	return nil
}

func (h *Hub) handleLeaveRoom(ctx context.Context, c *Conn, f protocol.Frame) error {
	var p protocol.RoomPayload
	if err := decodeValid(f, &p); err != nil {
		return err
	}
	if isReservedRoom(p.Name) {
		return protocol.ErrRoomForbidden
	}
	h.leave(c, p.Name)
	logging.Ctx(ctx).Debug().Str("room", p.Name).Msg("left room")
	return nil
}

// domainUpdate builds the handler for "<domain>:update": permission check,
// activity log, enrichment, then fan-out to every other connection in the
// domain's rooms.
func (h *Hub) domainUpdate(d protocol.Domain) handlerFunc {
	action := protocol.Action(d, "update")
	outbound := protocol.UpdatedEvent(d)
	rooms := domainRooms(d)

	return func(ctx context.Context, c *Conn, f protocol.Frame) error {
		if !h.policy.Allowed(c.Role(), action) {
			metrics.WSPermissionDenied.WithLabelValues(c.Role(), action).Inc()
			return protocol.Wrap(protocol.KindPermission, protocol.ErrPermissionDenied.Message,
				fmt.Errorf("role %s lacks %s", c.Role(), action))
		}

		var payload map[string]interface{}
		if err := f.Decode(&payload); err != nil {
			return err
		}
		if payload == nil {
			return protocol.NewError(protocol.KindValidation, "Données manquantes")
		}

		now := h.now().UnixMilli()
		h.logActivity(ctx, c, action, payload["id"], now)

		payload["updatedBy"] = c.Name()
		payload["timestamp"] = now
		h.enqueue(outbound, payload, c, rooms...)
		return nil
	}
}

// logActivity records an allowed update. Failures are logged only; the
// broadcast goes out regardless.
func (h *Hub) logActivity(ctx context.Context, c *Conn, action string, entityID interface{}, ts int64) {
	rec, err := store.Encode(store.ActivityLog{
		UserID:    c.UserID(),
		UserName:  c.Name(),
		Action:    action,
		EntityID:  entityID,
		Timestamp: ts,
	})
	if err == nil {
		_, err = h.store.Insert(ctx, store.CollectionActivityLogs, rec)
	}
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("action", action).Msg("failed to record activity log")
	}
}

// handleMessageSend validates, persists, delivers to every connection of the
// recipient and acknowledges the stored record to the sender.
func (h *Hub) handleMessageSend(ctx context.Context, c *Conn, f protocol.Frame) error {
	var p protocol.MessageSendPayload
	if err := decodeValid(f, &p); err != nil {
		return err
	}
	if p.Type == "" {
		p.Type = "text"
	}

	if _, err := h.store.FindOne(ctx, store.CollectionUsers, store.Filter{store.FieldID: p.RecipientID}); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errRecipientUnknown
		}
		return fmt.Errorf("lookup recipient: %w", err)
	}

	msg := protocol.Message{
		SenderID:    c.UserID(),
		SenderName:  c.Name(),
		RecipientID: p.RecipientID,
		Content:     p.Content,
		Type:        p.Type,
		CreatedAt:   h.now().UnixMilli(),
	}
	rec, err := store.Encode(msg)
	if err != nil {
		return err
	}
	stored, err := h.store.Insert(ctx, store.CollectionMessages, rec)
	if err != nil {
		return fmt.Errorf("persist message: %w", err)
	}
	if err := store.Decode(stored, &msg); err != nil {
		return err
	}

	reached := h.sendToUser(p.RecipientID, protocol.EventMessageReceived, msg)
	c.emit(protocol.EventMessageSent, msg)
	logging.Ctx(ctx).Debug().
		Str("message_id", msg.ID).
		Str("recipient_id", p.RecipientID).
		Int("connections", reached).
		Msg("direct message delivered")
	return nil
}

// handleNotificationRead marks a notification read for its owner and
// confirms it to all of the owner's connections.
func (h *Hub) handleNotificationRead(ctx context.Context, c *Conn, f protocol.Frame) error {
	var p protocol.NotificationReadPayload
	if err := decodeValid(f, &p); err != nil {
		return err
	}

	rec, err := h.store.FindOne(ctx, store.CollectionNotifications, store.Filter{store.FieldID: p.NotificationID})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return protocol.ErrNotificationAccess
		}
		return fmt.Errorf("lookup notification: %w", err)
	}
	var n protocol.Notification
	if err := store.Decode(rec, &n); err != nil {
		return err
	}
	if n.UserID != c.UserID() {
		return protocol.ErrNotificationAccess
	}

	if !n.Read {
		if _, err := h.store.Update(ctx, store.CollectionNotifications, n.ID,
			store.Record{"read": true, "readAt": h.now().UnixMilli()}); err != nil {
			return fmt.Errorf("persist notification read: %w", err)
		}
	}

	h.sendToUser(c.UserID(), protocol.EventNotificationRead, protocol.NotificationReadPayload{NotificationID: n.ID})
	return nil
}
