// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package protocol

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// ErrEmptyEvent is returned when a frame has no event name.
var ErrEmptyEvent = errors.New("frame has no event name")

// Frame is the unit on the wire: one JSON text message per frame.
//
//	{"event":"client:updated","data":{"id":42,"updatedBy":"Marie","timestamp":1718000000000}}
type Frame struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeFrame marshals data and wraps it in a frame. A nil data yields a frame
// without a data field.
func EncodeFrame(name EventName, data interface{}) ([]byte, error) {
	f := Frame{Event: name}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", name, err)
		}
		f.Data = raw
	}
	return json.Marshal(f)
}

// DecodeFrame parses one wire message. It does not check the event against
// the known sets; callers pick the set that applies to their side.
func DecodeFrame(b []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Event == "" {
		return Frame{}, ErrEmptyEvent
	}
	return f, nil
}

// Decode unmarshals the frame data into v.
func (f Frame) Decode(v interface{}) error {
	if len(f.Data) == 0 {
		return NewError(KindValidation, "Données manquantes")
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return Wrap(KindValidation, "Données invalides", err)
	}
	return nil
}

// Envelope is a server-originated event addressed to one or more rooms.
// Fields are unexported so a constructed envelope cannot be altered.
type Envelope struct {
	typ        EventName
	payload    json.RawMessage
	senderID   string
	senderName string
	timestamp  int64
}

// NewEnvelope builds an envelope stamped with the current time.
func NewEnvelope(typ EventName, payload interface{}, senderID, senderName string) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal envelope payload: %w", err)
	}
	return Envelope{
		typ:        typ,
		payload:    raw,
		senderID:   senderID,
		senderName: senderName,
		timestamp:  time.Now().UnixMilli(),
	}, nil
}

// Type returns the outbound event name.
func (e Envelope) Type() EventName { return e.typ }

// Payload returns the encoded payload.
func (e Envelope) Payload() json.RawMessage { return e.payload }

// SenderID returns the ID of the user who caused the event.
func (e Envelope) SenderID() string { return e.senderID }

// SenderName returns the display name of the sender.
func (e Envelope) SenderName() string { return e.senderName }

// Timestamp returns the creation time in Unix milliseconds.
func (e Envelope) Timestamp() int64 { return e.timestamp }

type envelopeWire struct {
	Type       EventName       `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	SenderID   string          `json:"senderId"`
	SenderName string          `json:"senderName"`
	Timestamp  int64           `json:"timestamp"`
}

// MarshalJSON renders {type, payload, senderId, senderName, timestamp}.
func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelopeWire{
		Type:       e.typ,
		Payload:    e.payload,
		SenderID:   e.senderID,
		SenderName: e.senderName,
		Timestamp:  e.timestamp,
	})
}

// UnmarshalJSON lets agents decode envelopes received from the hub.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var w envelopeWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*e = Envelope{typ: w.Type, payload: w.Payload, senderID: w.SenderID, senderName: w.SenderName, timestamp: w.Timestamp}
	return nil
}
