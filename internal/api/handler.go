package api

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/fathima-sithara/messaging-service/internal/domain"
	"github.com/fathima-sithara/messaging-service/internal/engine"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

type Handlers struct {
	eng      *engine.Engine
	validate *validator.Validate
	log      *zap.SugaredLogger
}

func NewHandlers(eng *engine.Engine, log *zap.SugaredLogger) *Handlers {
	return &Handlers{eng: eng, validate: validator.New(), log: log}
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrDuplicateMessage):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrParticipantConstraint),
		errors.Is(err, engine.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrMessageNotFound),
		errors.Is(err, domain.ErrConversationNotFound):
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(statusForError(err)).JSON(fiber.Map{"error": err.Error()})
}

type sendMessageRequest struct {
	MessageID      string         `json:"message_id"`
	ConversationID string         `json:"conversation_id" validate:"required"`
	RecipientIDs   []string       `json:"recipient_ids"`
	Content        string         `json:"content" validate:"required"`
	ContentType    string         `json:"content_type"`
	Channel        string         `json:"channel" validate:"required"`
	AdditionalData map[string]any `json:"metadata"`
}

func (h *Handlers) sendMessage(c *fiber.Ctx) error {
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	user, _ := c.Locals("user_id").(string)

	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	m := &domain.Message{
		ID:             req.MessageID,
		ConversationID: req.ConversationID,
		SenderID:       user,
		RecipientIDs:   req.RecipientIDs,
		Content:        req.Content,
		ContentType:    domain.ContentType(req.ContentType),
		Channel:        domain.Channel(req.Channel),
		Metadata:       domain.MessageMetadata{AdditionalData: req.AdditionalData},
	}
	out, err := h.eng.AcceptMessage(ctx, m)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"status": "ok", "data": out})
}

func (h *Handlers) updateStatus(c *fiber.Ctx) error {
	var req struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	user, _ := c.Locals("user_id").(string)

	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	m, err := h.eng.UpdateStatus(ctx, c.Params("msg_id"), domain.Status(req.Status), user, req.ErrorMessage)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": m})
}

func (h *Handlers) messageHistory(c *fiber.Ctx) error {
	hist, err := h.eng.MessageHistory(c.Context(), c.Params("msg_id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": hist})
}

func (h *Handlers) listMessages(c *fiber.Ctx) error {
	convID := c.Params("conv_id")
	user, _ := c.Locals("user_id").(string)

	limit := int64(c.QueryInt("limit", defaultPageSize))
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}
	var before time.Time
	if v := c.Query("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "before must be RFC3339"})
		}
		before = t
	}

	msgs, err := h.eng.History(c.Context(), convID, user, before, limit)
	if err != nil {
		return fail(c, err)
	}

	resp := fiber.Map{"status": "ok", "data": msgs}
	if int64(len(msgs)) == limit {
		resp["next_cursor"] = msgs[len(msgs)-1].CreatedAt.Format(time.RFC3339Nano)
	}
	return c.JSON(resp)
}

type createConversationRequest struct {
	Type         string   `json:"type" validate:"required,oneof=ONE_TO_ONE GROUP"`
	Participants []string `json:"participants" validate:"required,min=2"`
	Title        string   `json:"title"`
	Channel      string   `json:"channel"`
}

func (h *Handlers) createConversation(c *fiber.Ctx) error {
	var req createConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	conv, err := h.eng.CreateConversation(c.Context(),
		domain.ConversationType(req.Type), req.Participants, req.Title, domain.Channel(req.Channel))
	if err != nil {
		return fail(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"status": "ok", "data": conv})
}

func (h *Handlers) listConversations(c *fiber.Ctx) error {
	participant := c.Query("participant_id")
	if participant == "" {
		participant, _ = c.Locals("user_id").(string)
	}
	includeArchived, _ := strconv.ParseBool(c.Query("include_archived", "false"))
	limit := int64(c.QueryInt("limit", defaultPageSize))
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}

	convs, err := h.eng.ListConversations(c.Context(), participant, includeArchived, limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": convs})
}

func (h *Handlers) addParticipant(c *fiber.Ctx) error {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.UserID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "user_id required"})
	}
	actor, _ := c.Locals("user_id").(string)

	conv, err := h.eng.AddParticipant(c.Context(), c.Params("conv_id"), req.UserID, actor)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": conv})
}

func (h *Handlers) removeParticipant(c *fiber.Ctx) error {
	actor, _ := c.Locals("user_id").(string)
	conv, err := h.eng.RemoveParticipant(c.Context(), c.Params("conv_id"), c.Params("user_id"), actor)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": conv})
}

func (h *Handlers) archiveConversation(c *fiber.Ctx) error {
	if err := h.eng.ArchiveConversation(c.Context(), c.Params("conv_id")); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *Handlers) unarchiveConversation(c *fiber.Ctx) error {
	if err := h.eng.UnarchiveConversation(c.Context(), c.Params("conv_id")); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
