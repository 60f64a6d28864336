package client

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/orchestra-mcp/socketclient/src/types"
)

// Connect opens the transport. It is a no-op while a transport is open or a
// dial is in flight. Only a URL that cannot be dialed at all is reported as
// an error; the dial itself runs in the background, bounded by ctx, and its
// failures drive reconnection instead. Connect returning nil does not mean
// the socket is open yet.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.conn != nil || m.connecting {
		m.mu.Unlock()
		return nil
	}
	target := m.url
	if err := validateURL(target); err != nil {
		m.mu.Unlock()
		return err
	}

	if m.state == StateExhausted {
		m.attempts = 0
	}
	m.connecting = true
	m.gen++
	gen := m.gen
	dialCtx, cancel := context.WithCancel(ctx)
	m.cancelDial = cancel
	old := m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	m.notifyState(old, StateConnecting)
	m.logger.Debug().Str("url", target).Msg("dialing")

	go m.dial(dialCtx, gen, target)
	return nil
}

// Disconnect tears the connection down and forgets channels and listeners.
// A reconnect that is still pending is cancelled.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	m.epoch++
	m.stopHeartbeatLocked()
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	conn := m.conn
	m.conn = nil
	m.channels = make(map[string]struct{})
	m.listeners = make(map[string]map[*Listener]struct{})
	m.connecting = false
	m.attempts = 0
	old := m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			m.logger.Debug().Err(err).Msg("close transport")
		}
	}
	m.notifyState(old, StateDisconnected)
	m.logger.Info().Msg("disconnected")
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	return nil
}

func (m *Manager) dial(ctx context.Context, gen uint64, target string) {
	conn, err := m.dialer.Dial(ctx, target)
	if err != nil {
		// A failed dial is an error followed by a close, as with a socket
		// that never opened.
		m.handleError(gen, err)
		m.handleClose(gen)
		return
	}
	if !m.handleOpen(gen, conn) {
		_ = conn.Close()
		return
	}
	m.readLoop(gen, conn)
}

// handleOpen installs conn as the live transport. It returns false when the
// dial was superseded by Disconnect.
func (m *Manager) handleOpen(gen uint64, conn types.Conn) bool {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return false
	}
	m.releaseDialLocked()
	m.conn = conn
	m.connecting = false
	m.attempts = 0
	m.startHeartbeatLocked()

	var replay []string
	if m.cfg.Resubscribe {
		for ch := range m.channels {
			replay = append(replay, ch)
		}
	}
	old := m.setStateLocked(StateConnected)
	m.mu.Unlock()

	m.logger.Info().Str("url", m.URL()).Msg("connected")
	m.notifyState(old, StateConnected)

	for _, ch := range replay {
		m.transmit(types.Envelope{Type: types.EventSubscribe, Channel: ch})
	}
	return true
}

func (m *Manager) handleError(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.connecting = false
	m.mu.Unlock()

	m.logger.Error().Err(err).Msg("transport error")
}

func (m *Manager) handleClose(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.releaseDialLocked()
	m.conn = nil
	m.connecting = false
	m.stopHeartbeatLocked()
	m.mu.Unlock()

	m.logger.Warn().Msg("connection closed")
	m.scheduleReconnect()
}

func (m *Manager) releaseDialLocked() {
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
}

// isCurrent reports whether gen still names the live transport.
func (m *Manager) isCurrent(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen
}

func (m *Manager) readLoop(gen uint64, conn types.Conn) {
	for {
		frame, err := conn.ReadMessage()
		if err != nil {
			if m.isCurrent(gen) {
				m.logger.Debug().Err(err).Msg("read failed")
			}
			m.handleClose(gen)
			return
		}
		if !m.isCurrent(gen) {
			return
		}
		m.handleFrame(frame)
	}
}

// scheduleReconnect arms a single deferred Connect with exponential backoff,
// or gives up once the attempt budget is spent.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		attempts := m.attempts
		old := m.setStateLocked(StateExhausted)
		m.mu.Unlock()

		m.logger.Error().Int("attempts", attempts).Msg("max reconnection attempts reached")
		m.notifyState(old, StateExhausted)
		m.notifyError(fmt.Errorf("%w after %d attempts", ErrReconnectExhausted, attempts))
		return
	}

	m.attempts++
	attempt := m.attempts
	delay := backoffDelay(m.cfg.ReconnectBaseDelay, attempt)
	epoch := m.epoch
	m.reconnect = m.after(delay, func() { m.fireReconnect(epoch) })
	old := m.setStateLocked(StateReconnecting)
	m.mu.Unlock()

	m.logger.Info().Int("attempt", attempt).Dur("delay", delay).Msg("reconnecting")
	m.notifyState(old, StateReconnecting)
}

// backoffDelay returns base * 2^(attempt-1), saturating at the largest
// Duration instead of overflowing.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	shift := attempt - 1
	if base <= 0 {
		return base
	}
	if shift >= 63 || base > time.Duration(math.MaxInt64>>shift) {
		return time.Duration(math.MaxInt64)
	}
	return base << shift
}

func (m *Manager) fireReconnect(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	m.reconnect = nil
	m.mu.Unlock()

	if err := m.Connect(context.Background()); err != nil {
		m.logger.Error().Err(err).Msg("reconnect failed")
		m.notifyError(err)
	}
}

func (m *Manager) startHeartbeatLocked() {
	m.stopHeartbeatLocked()
	stop := make(chan struct{})
	m.heartbeat = stop
	go m.runHeartbeat(stop, m.cfg.HeartbeatInterval)
}

func (m *Manager) stopHeartbeatLocked() {
	if m.heartbeat != nil {
		close(m.heartbeat)
		m.heartbeat = nil
	}
}

func (m *Manager) runHeartbeat(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.transmit(types.Envelope{Type: types.EventPing})
		}
	}
}
