package server

import (
	"encoding/json"
	"strings"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/orchestra-mcp/socketclient/src/hub"
	"github.com/orchestra-mcp/socketclient/src/transport"
	"github.com/valyala/fasthttp"
)

// RegisterRoutes registers the info routes on a Fiber router. The WebSocket
// upgrade itself is served by Handler, since Fiber v3 does not expose
// *fasthttp.RequestCtx.
func (s *Server) RegisterRoutes(group fiber.Router) {
	group.Get(s.cfg.Path+"/info", s.handleInfo)
	group.Get(s.cfg.Path+"/channels", s.handleChannels)
	group.Get(s.cfg.Path+"/clients", s.handleClients)
	group.Post(s.cfg.Path+"/publish", s.handlePublish)
}

func (s *Server) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket": true,
		"endpoint":  s.cfg.Path,
		"clients":   s.hub.ClientCount(),
		"channels":  len(s.hub.Channels()),
	})
}

func (s *Server) handleChannels(c fiber.Ctx) error {
	channels := s.service.GetChannels()
	result := make([]fiber.Map, 0, len(channels))
	for name, count := range channels {
		result = append(result, fiber.Map{
			"channel":     name,
			"subscribers": count,
		})
	}
	return c.JSON(fiber.Map{"channels": result, "count": len(result)})
}

func (s *Server) handleClients(c fiber.Ctx) error {
	ids := s.service.GetConnectedClients()
	infos := make([]any, 0, len(ids))
	for _, id := range ids {
		info, err := s.service.GetClientInfo(id)
		if err == nil {
			infos = append(infos, info)
		}
	}
	return c.JSON(fiber.Map{"clients": infos, "count": len(infos)})
}

type publishRequest struct {
	Channel string          `json:"channel"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
}

// handlePublish broadcasts an event to a channel on behalf of the server.
func (s *Server) handlePublish(c fiber.Ctx) error {
	var req publishRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}
	if req.Channel == "" || req.Type == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "channel and type are required"})
	}
	var data any
	if len(req.Data) > 0 {
		data = req.Data
	}
	if err := s.service.Publish(req.Channel, req.Type, data); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"published": true, "channel": req.Channel})
}

// Handler returns the fasthttp handler: the WebSocket path upgrades, every
// other path goes to the Fiber app.
func (s *Server) Handler() fasthttp.RequestHandler {
	api := s.app.Handler()
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == s.cfg.Path {
			s.handleUpgrade(ctx)
			return
		}
		api(ctx)
	}
}

func (s *Server) handleUpgrade(ctx *fasthttp.RequestCtx) {
	upgrade := string(ctx.Request.Header.Peek("Upgrade"))
	if !strings.EqualFold(upgrade, "websocket") {
		ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
		return
	}
	if s.hub.ClientCount() >= s.cfg.MaxConnections {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"error":"too_many_connections","message":"connection limit reached"}`)
		return
	}

	clientID := uuid.New().String()
	h := s.hub

	err := s.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		client := hub.NewClient(clientID, transport.Wrap(conn, s.cfg.WriteTimeout), h, s.cfg.SendBufferSize)
		h.Register(client)
		go client.WritePump()
		client.ReadPump()
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket upgrade failed")
	}
}
