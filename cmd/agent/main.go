// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/pflag"

	"github.com/tomtom215/quayside/internal/agent"
	"github.com/tomtom215/quayside/internal/config"
	"github.com/tomtom215/quayside/internal/logging"
	"github.com/tomtom215/quayside/internal/protocol"
)

// watched are the events the CLI logs as they arrive.
var watched = []protocol.EventName{
	protocol.EventConnected, protocol.EventDisconnected,
	protocol.EventConnectionError, protocol.EventReconnectFailed,
	protocol.EventClientUpdated, protocol.EventGoodsUpdated,
	protocol.EventContainerUpdated, protocol.EventPaymentUpdated,
	protocol.EventMessageReceived, protocol.EventMessageSent,
	protocol.EventNotificationNew, protocol.EventNotificationRead,
	protocol.EventUserStatus, protocol.EventError,
}

func main() {
	url := pflag.String("url", "", "hub WebSocket URL (overrides AGENT_URL)")
	token := pflag.String("token", "", "bearer token (overrides AGENT_TOKEN)")
	tokenPath := pflag.String("token-file", "", "file holding the bearer token, re-read after each failed or lost connection")
	emits := pflag.StringArray("emit", nil, "event to send after connecting, as name=json (repeatable)")
	stdin := pflag.Bool("stdin", false, "read further events from stdin, one \"name json\" per line")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *url != "" {
		cfg.Agent.URL = *url
	}
	if *token != "" {
		cfg.Agent.Token = *token
	}
	var tf *tokenFile
	if *tokenPath != "" {
		f, tok, err := newTokenFile(*tokenPath)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to read token file")
		}
		tf, cfg.Agent.Token = f, tok
	}
	if err := cfg.ValidateAgent(); err != nil {
		logging.Fatal().Err(err).Msg("Invalid configuration")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Caller: cfg.Logging.Caller})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := agent.New(cfg.Agent, agent.NewWebsocketDialer(cfg.Agent.HandshakeTimeout))
	defer a.Disconnect()

	log := logging.WithComponent("agent-cli")
	for _, name := range watched {
		name := name
		a.On(name, func(data json.RawMessage) {
			log.Info().Str("event", string(name)).RawJSON("data", nonEmpty(data)).Msg("event")
		})
	}
	a.On(protocol.EventReconnectFailed, func(json.RawMessage) { stop() })
	if tf != nil {
		rotate := func(json.RawMessage) {
			changed, err := tf.refresh(a.SetToken)
			if err != nil {
				log.Warn().Err(err).Msg("Token file unreadable, keeping current token")
				return
			}
			if changed {
				log.Info().Msg("Token rotated from file")
			}
		}
		a.On(protocol.EventConnectionError, rotate)
		a.On(protocol.EventDisconnected, rotate)
	}

	if !a.Init(ctx, cfg.Agent.Token) {
		os.Exit(1)
	}

	for _, e := range *emits {
		name, data, err := parseEmit(e, "=")
		if err != nil {
			log.Fatal().Err(err).Str("emit", e).Msg("Bad --emit value")
		}
		if err := a.Emit(name, data); err != nil {
			log.Error().Err(err).Str("event", string(name)).Msg("Emit failed")
		}
	}

	if *stdin {
		go readEvents(ctx, a, os.Stdin)
	}

	<-ctx.Done()
	log.Info().Msg("Agent stopped")
}

// readEvents emits one event per non-empty line of r until EOF or ctx ends.
func readEvents(ctx context.Context, a *agent.Agent, r io.Reader) {
	log := logging.WithComponent("agent-cli")
	sc := bufio.NewScanner(r)
	for sc.Scan() && ctx.Err() == nil {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, data, err := parseEmit(line, " ")
		if err != nil {
			log.Warn().Err(err).Str("line", line).Msg("Skipping input line")
			continue
		}
		if err := a.Emit(name, data); err != nil {
			log.Error().Err(err).Str("event", string(name)).Msg("Emit failed")
		}
	}
}

// parseEmit splits "name<sep>json". A missing payload is sent as null.
func parseEmit(s, sep string) (protocol.EventName, json.RawMessage, error) {
	name, payload, _ := strings.Cut(s, sep)
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, fmt.Errorf("missing event name")
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return protocol.EventName(name), nil, nil
	}
	if !json.Valid([]byte(payload)) {
		return "", nil, fmt.Errorf("payload for %s is not valid JSON", name)
	}
	return protocol.EventName(name), json.RawMessage(payload), nil
}

func nonEmpty(data json.RawMessage) []byte {
	if len(data) == 0 {
		return []byte("null")
	}
	return data
}
