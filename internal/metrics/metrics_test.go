// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordStoreOperation(t *testing.T) {
	tests := []struct {
		name       string
		operation  string
		collection string
		err        error
		wantLabel  string
	}{
		{"success", "find_one", "users", nil, ""},
		{"short error", "insert", "messages", errors.New("disk full"), "disk full"},
		{
			name:       "long error is truncated",
			operation:  "update",
			collection: "notifications",
			err:        errors.New(strings.Repeat("x", 80)),
			wantLabel:  strings.Repeat("x", 50),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordStoreOperation(tt.operation, tt.collection, 5*time.Millisecond, tt.err)
			if tt.err == nil {
				return
			}
			got := testutil.ToFloat64(StoreErrors.WithLabelValues(tt.operation, tt.collection, tt.wantLabel))
			if got < 1 {
				t.Errorf("store_errors_total{%s} = %v, want >= 1", tt.wantLabel, got)
			}
		})
	}
}

func TestSetHubGauges(t *testing.T) {
	SetHubGauges(3, 2)
	if got := testutil.ToFloat64(WSConnections); got != 3 {
		t.Errorf("websocket_connections = %v, want 3", got)
	}
	if got := testutil.ToFloat64(WSOnlineUsers); got != 2 {
		t.Errorf("websocket_online_users = %v, want 2", got)
	}
}

func TestRecordQueueDrop(t *testing.T) {
	before := testutil.ToFloat64(AgentQueueDropped.WithLabelValues("expired"))
	RecordQueueDrop("expired", 0)
	RecordQueueDrop("expired", 2)
	after := testutil.ToFloat64(AgentQueueDropped.WithLabelValues("expired"))
	if after-before != 2 {
		t.Errorf("agent_queue_dropped_total{expired} delta = %v, want 2", after-before)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	TrackActiveRequest(true)
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests) - before; got != 1 {
		t.Errorf("api_active_requests delta = %v, want 1", got)
	}
}
