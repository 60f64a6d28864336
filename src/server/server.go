package server

import (
	"context"
	"net"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/orchestra-mcp/socketclient/config"
	"github.com/orchestra-mcp/socketclient/src/bridge"
	"github.com/orchestra-mcp/socketclient/src/hub"
	"github.com/orchestra-mcp/socketclient/src/service"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// Server exposes the hub over WebSocket, with a small info API.
type Server struct {
	cfg      config.ServerConfig
	hub      *hub.Hub
	service  *service.Service
	bridge   bridge.Bridge
	app      *fiber.App
	srv      *fasthttp.Server
	upgrader websocket.FastHTTPUpgrader
	logger   zerolog.Logger
}

// New creates a server. Call Start before serving.
func New(cfg config.ServerConfig, logger zerolog.Logger) *Server {
	cfg.ApplyDefaults()
	h := hub.New(logger)
	s := &Server{
		cfg:     cfg,
		hub:     h,
		service: service.New(h, logger),
		app:     fiber.New(),
		logger:  logger.With().Str("component", "server").Logger(),
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
		},
	}
	s.RegisterRoutes(s.app)
	s.srv = &fasthttp.Server{
		Handler: s.Handler(),
		Name:    "socketclient-hub",
	}
	return s
}

// Hub returns the underlying hub.
func (s *Server) Hub() *hub.Hub { return s.hub }

// Service returns the pub/sub service over the hub.
func (s *Server) Service() *service.Service { return s.service }

// Start runs the hub event loop and, when configured, the Redis bridge.
// A bridge that cannot reach Redis leaves the hub in standalone mode.
func (s *Server) Start() {
	go s.hub.Run()

	if s.cfg.Bridge {
		s.initBridge()
	}
	s.logger.Info().Str("path", s.cfg.Path).Msg("hub started")
}

func (s *Server) initBridge() {
	rb := bridge.NewRedisBridge(s.cfg.Redis, s.hub, s.logger)

	// Attach first so channels opened while Redis is dialed are joined.
	s.hub.SetBridge(rb)
	if err := rb.Start(); err != nil {
		s.hub.SetBridge(nil)
		if serr := rb.Stop(); serr != nil {
			s.logger.Debug().Err(serr).Msg("close redis client")
		}
		s.logger.Warn().Err(err).Msg("redis bridge unavailable, running standalone")
		return
	}

	s.bridge = rb
	s.logger.Info().Str("redis_addr", s.cfg.Redis.Addr).Msg("redis bridge connected")
}

// ListenAndServe serves on the configured address until Shutdown.
func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe(s.cfg.Addr)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

// Shutdown closes every client, stops serving and stops the bridge.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	err := s.srv.ShutdownWithContext(ctx)

	if s.bridge != nil {
		if berr := s.bridge.Stop(); berr != nil {
			s.logger.Error().Err(berr).Msg("bridge stop error")
		}
		s.bridge = nil
	}
	return err
}
