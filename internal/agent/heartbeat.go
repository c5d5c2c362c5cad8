// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package agent

import (
	"time"

	"github.com/tomtom215/quayside/internal/metrics"
	"github.com/tomtom215/quayside/internal/protocol"
)

// startHeartbeatLocked starts probing the current generation. Nothing runs
// while the host is hidden; SetVisible restarts it.
func (a *Agent) startHeartbeatLocked(gen uint64) {
	a.stopHeartbeatLocked()
	if !a.visible {
		return
	}
	stop := make(chan struct{})
	a.hbStop = stop
	a.pingOutstanding = false
	a.missedPings = 0
	go a.heartbeatLoop(gen, stop)
}

func (a *Agent) stopHeartbeatLocked() {
	if a.hbStop != nil {
		close(a.hbStop)
		a.hbStop = nil
	}
}

func (a *Agent) heartbeatLoop(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !a.heartbeatTick(gen) {
				return
			}
		}
	}
}

// heartbeatTick sends a ping when none is outstanding. A ping unanswered
// for two ticks closes the connection through the normal close path, which
// schedules exactly one reconnect. It returns false when the loop should end.
func (a *Agent) heartbeatTick(gen uint64) bool {
	a.mu.Lock()
	if gen != a.gen || a.state != StateConnected {
		a.mu.Unlock()
		return false
	}
	if a.pingOutstanding {
		a.missedPings++
		if a.missedPings >= missedPingsLimit {
			a.mu.Unlock()
			metrics.AgentHeartbeatTimeouts.Inc()
			a.log.Warn().Dur("interval", a.cfg.HeartbeatInterval).Msg("heartbeat timed out, forcing reconnect")
			a.handleClose(gen, protocol.ErrHeartbeatTimeout)
			return false
		}
		a.mu.Unlock()
		return true
	}
	tr := a.beginPingLocked()
	a.mu.Unlock()
	a.sendPing(tr)
	return true
}

// beginPingLocked marks a ping outstanding and returns the transport to
// send it on. The send itself happens after mu is released; a failed send
// counts as an unanswered ping.
func (a *Agent) beginPingLocked() Transport {
	if a.transport == nil {
		return nil
	}
	a.pingOutstanding = true
	a.missedPings = 0
	return a.transport
}

func (a *Agent) sendPing(tr Transport) {
	if tr == nil {
		return
	}
	frame, err := protocol.EncodeFrame(protocol.EventPing, nil)
	if err != nil {
		return
	}
	if err := tr.Send(frame); err != nil {
		a.log.Debug().Err(err).Msg("heartbeat ping failed")
	}
}

// SetVisible records host visibility. Hidden hosts run no heartbeat. Becoming
// visible while disconnected reconnects immediately.
func (a *Agent) SetVisible(visible bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.visible == visible {
		return
	}
	a.visible = visible

	if !visible {
		a.stopHeartbeatLocked()
		return
	}
	switch a.state {
	case StateConnected:
		a.startHeartbeatLocked(a.gen)
	case StateDisconnected:
		if a.shouldReconnect && !a.forcedClose {
			a.log.Info().Msg("host visible again, reconnecting now")
			a.reconnectNowLocked()
		}
	}
}

func (a *Agent) startWatchdogLocked() {
	if a.watchStop != nil {
		return
	}
	stop := make(chan struct{})
	a.watchStop = stop
	a.lastTick = a.now()
	go a.watchLoop(stop)
}

func (a *Agent) stopWatchdogLocked() {
	if a.watchStop != nil {
		close(a.watchStop)
		a.watchStop = nil
	}
}

func (a *Agent) watchLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(a.cfg.SleepTick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.checkSleep(a.now())
		}
	}
}

// checkSleep compares now with the previous tick. A gap above SleepGap means
// the host slept: a disconnected agent reconnects at once, a connected one
// pings at once so a dead transport is caught by the heartbeat. It reports
// whether a gap was detected.
func (a *Agent) checkSleep(now time.Time) bool {
	a.mu.Lock()
	gap := now.Sub(a.lastTick)
	a.lastTick = now
	if gap <= a.cfg.SleepGap {
		a.mu.Unlock()
		return false
	}

	a.log.Info().Dur("gap", gap).Str("state", a.state.String()).Msg("host resumed after sleep")
	var tr Transport
	if a.shouldReconnect && !a.forcedClose {
		switch a.state {
		case StateDisconnected:
			a.reconnectNowLocked()
		case StateConnected:
			if a.visible && !a.pingOutstanding {
				tr = a.beginPingLocked()
			}
		}
	}
	a.mu.Unlock()

	a.sendPing(tr)
	return true
}
