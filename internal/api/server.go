package api

import (
	"github.com/fathima-sithara/messaging-service/internal/auth"
	"github.com/fathima-sithara/messaging-service/internal/engine"
	"github.com/fathima-sithara/messaging-service/internal/ws"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

func NewServer(eng *engine.Engine, wsrv *ws.Server, jv *auth.JWTValidator, log *zap.SugaredLogger) *fiber.App {
	app := fiber.New()
	app.Use(logger.New())
	h := NewHandlers(eng, log)

	// Webhooks authenticate via platform signatures at the connector layer,
	// not via our JWTs.
	app.Get("/webhooks/:channel", h.verifyWebhook)
	app.Post("/webhooks/:channel", h.inboundWebhook)

	authMW := requireJWT(jv)

	api := app.Group("/v1", authMW)
	api.Post("/messages", h.sendMessage)
	api.Patch("/messages/:msg_id/status", h.updateStatus)
	api.Get("/messages/:msg_id/history", h.messageHistory)
	api.Get("/conversations", h.listConversations)
	api.Post("/conversations", h.createConversation)
	api.Get("/conversations/:conv_id/messages", h.listMessages)
	api.Post("/conversations/:conv_id/participants", h.addParticipant)
	api.Delete("/conversations/:conv_id/participants/:user_id", h.removeParticipant)
	api.Post("/conversations/:conv_id/archive", h.archiveConversation)
	api.Post("/conversations/:conv_id/unarchive", h.unarchiveConversation)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/broadcast", websocket.New(wsrv.HandleBroadcast()))
	app.Get("/ws/user", authMW, websocket.New(wsrv.HandleUser()))

	return app
}

// requireJWT validates the bearer token (or ?token= for socket upgrades)
// and stows the subject in locals.
func requireJWT(jv *auth.JWTValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := ""
		hdr := c.Get("Authorization")
		const pref = "Bearer "
		if len(hdr) > len(pref) && hdr[:len(pref)] == pref {
			token = hdr[len(pref):]
		}
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			return c.Status(401).JSON(fiber.Map{"error": "missing auth"})
		}
		sub, err := jv.Validate(token)
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": err.Error()})
		}
		c.Locals("user_id", sub)
		return c.Next()
	}
}
