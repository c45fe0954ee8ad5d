package handler

import (
	"assistant-proxy-be/internal/pkg/logger"
	"assistant-proxy-be/internal/service"
	internalWS "assistant-proxy-be/internal/websocket"
	"assistant-proxy-be/pkg/conversation"
	"assistant-proxy-be/pkg/identity"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WidgetHandler hosts the conversation widget over a websocket. Each
// connection is one widget instance with its own machine.
type WidgetHandler struct {
	gateway     conversation.Gateway
	sessions    service.SessionScoper
	transcripts conversation.TranscriptSaver
	hub         *internalWS.Hub
	logger      logger.ILogger
}

func NewWidgetHandler(gateway conversation.Gateway, sessions service.SessionScoper, transcripts conversation.TranscriptSaver, hub *internalWS.Hub, log logger.ILogger) *WidgetHandler {
	return &WidgetHandler{
		gateway:     gateway,
		sessions:    sessions,
		transcripts: transcripts,
		hub:         hub,
		logger:      log,
	}
}

// ServeWs upgrades the request and runs the widget until the socket closes.
func (h *WidgetHandler) ServeWs(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	// Without a session key the widget renders but stays inert.
	sessionKey := c.Query("session")
	ids := identity.NewManager(h.sessions.Scope(sessionKey))
	correlationID, _ := ids.GetOrCreateID(c.UserContext())

	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("WidgetHandler", "Starting widget session", map[string]interface{}{"user_id": correlationID})
		internalWS.ServeWs(h.hub, conn, correlationID, func(client *internalWS.Client) *conversation.Machine {
			return conversation.NewMachine(h.gateway, ids,
				conversation.WithTranscriptSaver(h.transcripts),
				conversation.WithLogger(h.logger),
				conversation.WithObserver(client.PushSnapshot),
			)
		})
		h.logger.Info("WidgetHandler", "Widget session ended", map[string]interface{}{"user_id": correlationID})
	})(c)
}

// RegisterRoutes registers the widget channel.
func (h *WidgetHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/assistant/ws", h.ServeWs)
}
