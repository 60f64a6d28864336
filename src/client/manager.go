package client

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/orchestra-mcp/socketclient/config"
	"github.com/orchestra-mcp/socketclient/src/transport"
	"github.com/orchestra-mcp/socketclient/src/types"
	"github.com/rs/zerolog"
)

// Dialer opens the transport for a connection attempt.
type Dialer interface {
	Dial(ctx context.Context, url string) (types.Conn, error)
}

// State is the connection state reported to state handlers.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	// StateExhausted means reconnection gave up. Connect starts over.
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

type timer interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) timer

func realAfter(d time.Duration, f func()) timer { return time.AfterFunc(d, f) }

// Manager multiplexes channels over one WebSocket connection.
type Manager struct {
	cfg      config.ClientConfig
	dialer   Dialer
	registry *types.Registry
	logger   zerolog.Logger
	after    afterFunc

	mu         sync.Mutex
	url        string
	conn       types.Conn // nil while disconnected
	connecting bool
	state      State
	attempts   int

	// gen identifies the current transport; callbacks from older ones are ignored.
	gen uint64
	// epoch changes on Disconnect so a pending reconnect can tell it is stale.
	epoch      uint64
	cancelDial context.CancelFunc
	heartbeat  chan struct{}
	reconnect  timer

	channels  map[string]struct{}
	listeners map[string]map[*Listener]struct{}

	errorHandlers []func(error)
	stateHandlers []func(from, to State)

	writeMu sync.Mutex
}

// Option customizes a Manager.
type Option func(*Manager)

// WithDialer replaces the WebSocket dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithRegistry sets the payload registry used at the parse boundary.
func WithRegistry(r *types.Registry) Option {
	return func(m *Manager) { m.registry = r }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func withAfterFunc(f afterFunc) Option {
	return func(m *Manager) { m.after = f }
}

// New creates a Manager. No transport is opened until Connect.
func New(cfg config.ClientConfig, opts ...Option) *Manager {
	cfg.ApplyDefaults()
	m := &Manager{
		cfg:       cfg,
		url:       cfg.URL,
		logger:    zerolog.Nop(),
		after:     realAfter,
		channels:  make(map[string]struct{}),
		listeners: make(map[string]map[*Listener]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = &transport.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			WriteTimeout:     cfg.WriteTimeout,
		}
	}
	if m.registry == nil {
		m.registry = types.NewRegistry()
	}
	m.logger = m.logger.With().Str("component", "socket-client").Logger()
	return m
}

// Registry returns the payload registry so collaborators can add decoders.
func (m *Manager) Registry() *types.Registry { return m.registry }

// URL returns the target URL.
func (m *Manager) URL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.url
}

// SetURL changes the target URL. It takes effect on the next dial.
func (m *Manager) SetURL(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.url = url
}

// IsConnected reports whether the transport is open.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SubscribedChannels returns the channels the client believes it is
// subscribed to, sorted.
func (m *Manager) SubscribedChannels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	channels := make([]string, 0, len(m.channels))
	for ch := range m.channels {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	return channels
}

// OnError registers a handler for server error events and for reconnect
// exhaustion (ErrReconnectExhausted). Handlers survive Disconnect.
func (m *Manager) OnError(h func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorHandlers = append(m.errorHandlers, h)
}

// OnStateChange registers a handler for connection state transitions.
func (m *Manager) OnStateChange(h func(from, to State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateHandlers = append(m.stateHandlers, h)
}

// setStateLocked records s and returns the previous state. Caller holds mu.
func (m *Manager) setStateLocked(s State) State {
	old := m.state
	m.state = s
	return old
}

func (m *Manager) notifyState(from, to State) {
	if from == to {
		return
	}
	m.mu.Lock()
	handlers := append([]func(from, to State){}, m.stateHandlers...)
	m.mu.Unlock()

	m.logger.Debug().Stringer("from", from).Stringer("to", to).Msg("state changed")
	for _, h := range handlers {
		h(from, to)
	}
}

func (m *Manager) notifyError(err error) {
	m.mu.Lock()
	handlers := append([]func(error){}, m.errorHandlers...)
	m.mu.Unlock()

	for _, h := range handlers {
		h(err)
	}
}
