package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fathima-sithara/messaging-service/internal/domain"
	"github.com/fathima-sithara/messaging-service/internal/engine"
	"github.com/gofiber/fiber/v2"
)

// verifyWebhook answers a platform's verification handshake by echoing the
// challenge parameter back. Pass-through, no business logic.
func (h *Handlers) verifyWebhook(c *fiber.Ctx) error {
	if v := c.Query("hub.challenge"); v != "" {
		return c.SendString(v)
	}
	if v := c.Query("challenge"); v != "" {
		return c.SendString(v)
	}
	return c.Status(400).JSON(fiber.Map{"error": "missing challenge"})
}

type inboundRequest struct {
	PlatformMessageID string         `json:"platform_message_id" validate:"required"`
	ConversationID    string         `json:"conversation_id" validate:"required"`
	SenderID          string         `json:"sender_id" validate:"required"`
	Content           string         `json:"content"`
	ContentType       string         `json:"content_type"`
	Timestamp         time.Time      `json:"timestamp"`
	Metadata          map[string]any `json:"metadata"`
}

// inboundWebhook consumes the normalized tuple from a connector. A
// deduplicated redelivery still answers 200 so the platform stops retrying;
// transient failures answer 500 so it retries per its own semantics.
func (h *Handlers) inboundWebhook(c *fiber.Ctx) error {
	var req inboundRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	m, err := h.eng.ProcessInbound(ctx, engine.InboundMessage{
		PlatformMessageID: req.PlatformMessageID,
		ConversationID:    req.ConversationID,
		SenderID:          req.SenderID,
		Content:           req.Content,
		ContentType:       domain.ContentType(req.ContentType),
		Channel:           domain.Channel(strings.ToUpper(c.Params("channel"))),
		Timestamp:         req.Timestamp,
		Metadata:          req.Metadata,
	})
	if err != nil {
		if errors.Is(err, engine.ErrValidation) {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		h.log.Errorw("inbound processing failed", "platform_message_id", req.PlatformMessageID, "err", err)
		return c.Status(500).JSON(fiber.Map{"error": "processing failed"})
	}
	return c.JSON(fiber.Map{"status": "ok", "data": m})
}
