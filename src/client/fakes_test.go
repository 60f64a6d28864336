package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/orchestra-mcp/socketclient/config"
	"github.com/orchestra-mcp/socketclient/src/types"
	"github.com/stretchr/testify/require"
)

var errConnClosed = errors.New("connection closed")

// fakeConn implements types.Conn without a real WebSocket.
type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	reads   chan []byte
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		reads:  make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case <-c.closed:
		return nil, errConnClosed
	default:
	}
	select {
	case frame := <-c.reads:
		return frame, nil
	case <-c.closed:
		return nil, errConnClosed
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// deliver pushes a raw inbound frame.
func (c *fakeConn) deliver(frame string) {
	c.reads <- []byte(frame)
}

// sent decodes every frame written so far.
func (c *fakeConn) sent(t *testing.T) []types.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Envelope, 0, len(c.written))
	for _, frame := range c.written {
		var env types.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		out = append(out, env)
	}
	return out
}

func (c *fakeConn) sentTypes(t *testing.T) []string {
	envs := c.sent(t)
	out := make([]string, 0, len(envs))
	for _, env := range envs {
		out = append(out, env.Type)
	}
	return out
}

// fakeDialer hands out fakeConns, or fails every dial while fail is set.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
	fail  error
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (types.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fail != nil {
		return nil, d.fail
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) setFail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = err
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func (d *fakeDialer) connCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// fakeScheduler records reconnect delays and fires them on demand.
type fakeScheduler struct {
	mu      sync.Mutex
	delays  []time.Duration
	fns     []func()
	stopped []bool
}

type fakeTimer struct {
	s *fakeScheduler
	i int
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	was := !t.s.stopped[t.i]
	t.s.stopped[t.i] = true
	return was
}

func (s *fakeScheduler) after(d time.Duration, f func()) timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	s.fns = append(s.fns, f)
	s.stopped = append(s.stopped, false)
	return &fakeTimer{s: s, i: len(s.fns) - 1}
}

// fire runs timer i even if it was stopped, as a late timer would.
func (s *fakeScheduler) fire(i int) {
	s.mu.Lock()
	f := s.fns[i]
	s.mu.Unlock()
	f()
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delays)
}

func (s *fakeScheduler) isStopped(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped[i]
}

func (s *fakeScheduler) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type harness struct {
	m      *Manager
	dialer *fakeDialer
	sched  *fakeScheduler
}

func newHarness(t *testing.T, mutate func(*config.ClientConfig)) *harness {
	t.Helper()
	cfg := config.DefaultClientConfig("ws://chat.test/ws")
	if mutate != nil {
		mutate(&cfg)
	}
	h := &harness{dialer: &fakeDialer{}, sched: &fakeScheduler{}}
	h.m = New(cfg, WithDialer(h.dialer), withAfterFunc(h.sched.after))
	t.Cleanup(h.m.Disconnect)
	return h
}

// connect opens the transport and returns the connection it was given.
func (h *harness) connect(t *testing.T) *fakeConn {
	t.Helper()
	want := h.dialer.connCount() + 1
	require.NoError(t, h.m.Connect(context.Background()))
	require.Eventually(t, func() bool {
		return h.m.IsConnected() && h.dialer.connCount() == want
	}, time.Second, 5*time.Millisecond)
	return h.dialer.conn(want - 1)
}

// flush delivers a marker event and waits for it, so every frame delivered
// before it has been dispatched.
func (h *harness) flush(t *testing.T, conn *fakeConn) {
	t.Helper()
	done := make(chan struct{}, 1)
	marker := NewListener(func(types.Message) error {
		done <- struct{}{}
		return nil
	})
	h.m.On("test.flush", marker)
	defer h.m.Off("test.flush", marker)

	conn.deliver(`{"type":"test.flush"}`)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for flush marker")
	}
}
