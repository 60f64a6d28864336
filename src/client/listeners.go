package client

import (
	"github.com/orchestra-mcp/socketclient/src/types"
)

// Listener is a registration handle. The same *Listener registered twice for
// one event type is stored once.
type Listener struct {
	fn func(types.Message) error
}

// NewListener wraps fn in a handle that can be passed to On and Off.
func NewListener(fn func(types.Message) error) *Listener {
	return &Listener{fn: fn}
}

// On registers l for eventType.
func (m *Manager) On(eventType string, l *Listener) {
	if l == nil || l.fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.listeners[eventType]
	if !ok {
		set = make(map[*Listener]struct{})
		m.listeners[eventType] = set
	}
	set[l] = struct{}{}
}

// Off removes l from eventType. Removing an unknown listener is a no-op.
func (m *Manager) Off(eventType string, l *Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.listeners[eventType]
	if !ok {
		return
	}
	delete(set, l)
	if len(set) == 0 {
		delete(m.listeners, eventType)
	}
}

// emit calls every listener for msg.Type. A listener that fails or panics is
// logged and the rest still run.
func (m *Manager) emit(msg types.Message) {
	m.mu.Lock()
	set := m.listeners[msg.Type]
	listeners := make([]*Listener, 0, len(set))
	for l := range set {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	if len(listeners) == 0 {
		m.logger.Debug().Str("event", msg.Type).Msg("no listeners")
		return
	}
	for _, l := range listeners {
		m.invoke(l, msg)
	}
}

func (m *Manager) invoke(l *Listener, msg types.Message) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Interface("panic", r).Str("event", msg.Type).Msg("listener panicked")
		}
	}()
	if err := l.fn(msg); err != nil {
		m.logger.Error().Err(err).Str("event", msg.Type).Msg("listener error")
	}
}
