// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package protocol

// Presence states carried by user:status.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// PongPayload answers a ping.
type PongPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// RoomPayload is the body of join:room and leave:room.
type RoomPayload struct {
	Name string `json:"name" validate:"required,max=128,roomname"`
}

// MessageSendPayload is the body of message:send.
type MessageSendPayload struct {
	RecipientID string `json:"recipientId" validate:"required,max=64"`
	Content     string `json:"content" validate:"required,max=4000"`
	Type        string `json:"type,omitempty" validate:"omitempty,oneof=text file system"`
}

// Message is a stored direct message, as delivered by message:received and
// acknowledged by message:sent.
type Message struct {
	ID          string `json:"id"`
	SenderID    string `json:"senderId"`
	SenderName  string `json:"senderName"`
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
	Type        string `json:"type"`
	Read        bool   `json:"read"`
	CreatedAt   int64  `json:"createdAt"`
}

// Notification is a stored notification addressed to exactly one user.
type Notification struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Body      string `json:"body,omitempty"`
	Read      bool   `json:"read"`
	CreatedAt int64  `json:"createdAt"`
	ReadAt    int64  `json:"readAt,omitempty"`
}

// NotificationReadPayload is the body of the inbound notification:read and of
// its confirmation.
type NotificationReadPayload struct {
	NotificationID string `json:"notificationId" validate:"required,max=64"`
}

// UserStatusPayload is broadcast to the global room on presence transitions.
type UserStatusPayload struct {
	UserID    string `json:"userId"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorPayload is the scoped error acknowledgment sent to one connection.
type ErrorPayload struct {
	Message string `json:"message"`
}

// DisconnectedPayload accompanies the local disconnected event.
type DisconnectedPayload struct {
	Reason string `json:"reason"`
}

// ConnectionErrorPayload accompanies the local connection_error event.
type ConnectionErrorPayload struct {
	Error string `json:"error"`
}
