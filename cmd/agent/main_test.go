// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package main

import (
	"testing"

	"github.com/tomtom215/quayside/internal/protocol"
)

func TestParseEmit(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		sep      string
		wantName protocol.EventName
		wantData string
		wantErr  bool
	}{
		{"flag form", `client:update={"id":7}`, "=", protocol.EventClientUpdate, `{"id":7}`, false},
		{"line form", `join:room {"room":"quai-3"}`, " ", protocol.EventJoinRoom, `{"room":"quai-3"}`, false},
		{"no payload", "ping", " ", protocol.EventPing, "", false},
		{"payload with separator", `message:send {"to":"u2", "text":"a=b"}`, " ", protocol.EventMessageSend, `{"to":"u2", "text":"a=b"}`, false},
		{"bad json", "goods:update={id:1}", "=", "", "", true},
		{"no name", `={"id":1}`, "=", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, data, err := parseEmit(tt.in, tt.sep)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseEmit() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if name != tt.wantName || string(data) != tt.wantData {
				t.Errorf("parseEmit() = (%q, %q), want (%q, %q)", name, data, tt.wantName, tt.wantData)
			}
		})
	}
}
