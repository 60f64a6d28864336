package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/orchestra-mcp/socketclient/config"
	"github.com/orchestra-mcp/socketclient/src/chat"
	"github.com/orchestra-mcp/socketclient/src/client"
	"github.com/orchestra-mcp/socketclient/src/transport"
	"github.com/orchestra-mcp/socketclient/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServer serves a hub with chat history on a loopback port.
func startServer(t *testing.T, mutate func(*config.ServerConfig)) (*Server, string) {
	t.Helper()
	cfg := config.DefaultServerConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	s := New(cfg, zerolog.Nop())
	s.Service().EnableChatHistory(cfg.HistoryLimit)
	s.Start()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.Serve(ln) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, ln.Addr().String()
}

func newChatClient(t *testing.T, addr string) *chat.Service {
	t.Helper()
	cfg := config.DefaultClientConfig("ws://" + addr + "/ws")
	svc := chat.New(client.New(cfg), zerolog.Nop())
	require.NoError(t, svc.Connect(context.Background()))
	require.Eventually(t, svc.Manager().IsConnected, 2*time.Second, 10*time.Millisecond)
	t.Cleanup(svc.Disconnect)
	return svc
}

func TestInfoRoute(t *testing.T) {
	_, addr := startServer(t, nil)

	resp, err := http.Get("http://" + addr + "/ws/info")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["websocket"])
	assert.Equal(t, "/ws", body["endpoint"])
	assert.Equal(t, float64(0), body["clients"])
}

func TestPlainRequestNeedsUpgrade(t *testing.T) {
	_, addr := startServer(t, nil)

	resp, err := http.Get("http://" + addr + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestConnectionLimit(t *testing.T) {
	s, addr := startServer(t, func(c *config.ServerConfig) { c.MaxConnections = 1 })

	newChatClient(t, addr)
	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	d := &transport.Dialer{HandshakeTimeout: time.Second}
	_, err := d.Dial(context.Background(), "ws://"+addr+"/ws")
	assert.Error(t, err)
}

func TestChatRoundTrip(t *testing.T) {
	s, addr := startServer(t, nil)

	alice := newChatClient(t, addr)
	bob := newChatClient(t, addr)

	received := make(chan chat.ChatMessage, 1)
	bob.OnMessageSent(func(m chat.ChatMessage) { received <- m })

	alice.SubscribeToChat(5)
	bob.SubscribeToChat(5)
	require.Eventually(t, func() bool {
		return s.Hub().Channels()["chat.5"] == 2
	}, 2*time.Second, 10*time.Millisecond)

	alice.SendMessage(5, "hello bob")

	select {
	case m := <-received:
		assert.Equal(t, "hello bob", m.Message)
		assert.Equal(t, int64(5), m.ChatID)
		assert.Equal(t, int64(1), m.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("bob never received the message")
	}

	history := make(chan chat.MessagesLoad, 1)
	bob.OnMessagesLoad(func(m chat.MessagesLoad) { history <- m })
	bob.LoadMessages(5)

	select {
	case h := <-history:
		require.Len(t, h, 1)
		assert.Equal(t, "hello bob", h[0].Message)
	case <-time.After(2 * time.Second):
		t.Fatal("no history received")
	}
}

func TestServerErrorReachesClient(t *testing.T) {
	_, addr := startServer(t, nil)
	svc := newChatClient(t, addr)

	errs := make(chan error, 1)
	svc.Manager().OnError(func(err error) { errs <- err })

	svc.SendMessage(9, "not a member")

	select {
	case err := <-errs:
		var serverErr *client.ServerError
		require.True(t, errors.As(err, &serverErr))
		assert.Equal(t, "not subscribed to channel", serverErr.Message)
		assert.Equal(t, "chat.9", serverErr.Channel)
	case <-time.After(2 * time.Second):
		t.Fatal("no server error received")
	}
}

func TestHeartbeatGetsPong(t *testing.T) {
	_, addr := startServer(t, nil)

	cfg := config.DefaultClientConfig("ws://" + addr + "/ws")
	cfg.HeartbeatInterval = 20 * time.Millisecond
	m := client.New(cfg)
	require.NoError(t, m.Connect(context.Background()))
	t.Cleanup(m.Disconnect)

	require.Eventually(t, m.IsConnected, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.True(t, m.IsConnected())
	assert.Equal(t, client.StateConnected, m.State())
}

func TestClientsRoute(t *testing.T) {
	s, addr := startServer(t, nil)
	svc := newChatClient(t, addr)
	svc.SubscribeToChat(8)
	require.Eventually(t, func() bool { return s.Hub().Channels()["chat.8"] == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + addr + "/ws/clients")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Clients []struct {
			ID       string   `json:"id"`
			Channels []string `json:"channels"`
		} `json:"clients"`
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, []string{"chat.8"}, body.Clients[0].Channels)
}

func TestPublishRoute(t *testing.T) {
	s, addr := startServer(t, nil)
	svc := newChatClient(t, addr)

	notices := make(chan string, 1)
	svc.Manager().On("notice", client.NewListener(func(msg types.Message) error {
		notices <- string(msg.Data)
		return nil
	}))
	svc.Manager().Subscribe("system.1")
	require.Eventually(t, func() bool { return s.Hub().Channels()["system.1"] == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post("http://"+addr+"/ws/publish", "application/json",
		strings.NewReader(`{"channel":"system.1","type":"notice","data":{"text":"maintenance"}}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case data := <-notices:
		assert.JSONEq(t, `{"text":"maintenance"}`, data)
	case <-time.After(2 * time.Second):
		t.Fatal("notice not delivered")
	}

	resp, err = http.Post("http://"+addr+"/ws/publish", "application/json", strings.NewReader(`{"type":"notice"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnreachableRedisRunsStandalone(t *testing.T) {
	s, addr := startServer(t, func(c *config.ServerConfig) {
		c.Bridge = true
		c.Redis.Addr = "127.0.0.1:1"
	})
	assert.Nil(t, s.bridge)

	svc := newChatClient(t, addr)
	svc.SubscribeToChat(1)
	require.Eventually(t, func() bool { return s.Hub().Channels()["chat.1"] == 1 }, 2*time.Second, 10*time.Millisecond)
}
