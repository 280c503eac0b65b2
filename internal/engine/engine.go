package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fathima-sithara/messaging-service/internal/domain"
	"github.com/fathima-sithara/messaging-service/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageStore is the durable message record plus its audit trail.
type MessageStore interface {
	Insert(ctx context.Context, m *domain.Message) error
	FindByID(ctx context.Context, id string) (*domain.Message, error)
	FindByPlatformMessageID(ctx context.Context, platformID string) (*domain.Message, error)
	UpdateStatus(ctx context.Context, h *domain.StatusHistory) (*domain.Message, error)
	ListByConversation(ctx context.Context, conversationID string, before time.Time, limit int64, joinedAfter time.Time) ([]*domain.Message, error)
	ListHistory(ctx context.Context, messageID string) ([]*domain.StatusHistory, error)
}

// ConversationStore is the conversation directory.
type ConversationStore interface {
	FindByID(ctx context.Context, id string) (*domain.Conversation, error)
	GetOrCreate(ctx context.Context, c *domain.Conversation) (*domain.Conversation, error)
	Insert(ctx context.Context, c *domain.Conversation) error
	FindOneToOneByPair(ctx context.Context, a, b string) (*domain.Conversation, error)
	AddParticipant(ctx context.Context, conversationID, userID string, joinedAt time.Time) error
	RemoveParticipant(ctx context.Context, conversationID, userID string, at time.Time) error
	BumpActivity(ctx context.Context, conversationID string, at time.Time) error
	SetArchived(ctx context.Context, conversationID string, archived bool, at time.Time) error
	ListByParticipant(ctx context.Context, participantID string, includeArchived bool, limit int64) ([]*domain.Conversation, error)
}

// Dedup is the cache-backed duplicate guard.
type Dedup interface {
	IsDuplicate(ctx context.Context, key string) bool
	Remove(ctx context.Context, key string) error
	MarkProcessed(ctx context.Context, key string) error
}

// EventSink receives lifecycle events after the durable write.
type EventSink interface {
	Publish(eventType domain.EventType, msg *domain.Message)
}

var ErrValidation = errors.New("validation failed")

// Engine orchestrates acceptance, inbound processing, status transitions
// and conversation management. The dedup cache and the store are reconciled
// on read, not transactionally: the store's unique indexes are the backstop.
type Engine struct {
	messages      MessageStore
	conversations ConversationStore
	dedup         Dedup
	events        EventSink
	log           *zap.SugaredLogger
}

func New(messages MessageStore, conversations ConversationStore, dedup Dedup, events EventSink, log *zap.SugaredLogger) *Engine {
	return &Engine{
		messages:      messages,
		conversations: conversations,
		dedup:         dedup,
		events:        events,
		log:           log,
	}
}

// AcceptMessage takes an outbound message, deduplicates it on its message id
// and persists it as PENDING. The event fires only after the durable write.
func (e *Engine) AcceptMessage(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	if m.ConversationID == "" || m.SenderID == "" {
		return nil, fmt.Errorf("%w: conversation_id and sender_id required", ErrValidation)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	if e.dedup.IsDuplicate(ctx, m.ID) {
		metrics.DedupHits.Inc()
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateMessage, m.ID)
	}

	now := time.Now().UTC()
	m.Status = domain.StatusPending
	if m.Timestamp.IsZero() {
		m.Timestamp = now
	}
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.ContentType == "" {
		m.ContentType = domain.ContentText
	}
	m.Metadata.RetryCount = 0

	if _, err := e.conversations.FindByID(ctx, m.ConversationID); err != nil {
		e.releaseDedup(ctx, m.ID)
		return nil, err
	}

	// A race that slipped past the cache still dies on the unique index here.
	if err := e.messages.Insert(ctx, m); err != nil {
		if !errors.Is(err, domain.ErrDuplicateMessage) {
			e.releaseDedup(ctx, m.ID)
		}
		return nil, err
	}
	if err := e.conversations.BumpActivity(ctx, m.ConversationID, now); err != nil {
		e.log.Warnw("conversation activity bump failed", "conversation_id", m.ConversationID, "err", err)
	}

	e.events.Publish(domain.EventMessageCreated, m)
	return m, nil
}

// releaseDedup frees a key armed for a write that never landed, so a retry
// of the same id is not reported as a duplicate of nothing.
func (e *Engine) releaseDedup(ctx context.Context, key string) {
	if err := e.dedup.Remove(ctx, key); err != nil {
		e.log.Warnw("dedup key release failed", "key", key, "err", err)
	}
}

// InboundMessage is the normalized tuple a platform connector hands over.
type InboundMessage struct {
	PlatformMessageID string
	ConversationID    string
	SenderID          string
	Content           string
	ContentType       domain.ContentType
	Channel           domain.Channel
	Timestamp         time.Time
	Metadata          map[string]any
}

// ProcessInbound handles a webhook delivery idempotently, keyed on the
// platform-assigned message id. A duplicate with a stored record is the
// normal redelivery case and returns that record unchanged. A duplicate
// without a stored record means the cache and store disagree; the stale
// entry is dropped and the message reprocessed as new.
func (e *Engine) ProcessInbound(ctx context.Context, in InboundMessage) (*domain.Message, error) {
	if in.PlatformMessageID == "" || in.SenderID == "" || in.ConversationID == "" {
		return nil, fmt.Errorf("%w: platform_message_id, conversation_id and sender_id required", ErrValidation)
	}

	if !e.dedup.IsDuplicate(ctx, in.PlatformMessageID) {
		return e.storeInbound(ctx, in)
	}
	metrics.DedupHits.Inc()

	existing, err := e.messages.FindByPlatformMessageID(ctx, in.PlatformMessageID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrMessageNotFound) {
		return nil, err
	}

	// Cache says seen, store has no record. Repeated hits here point at a
	// systemic write-path problem, hence the error severity.
	metrics.Reconciliations.Inc()
	e.log.Errorw("dedup entry with no stored message, reconciling",
		"platform_message_id", in.PlatformMessageID, "conversation_id", in.ConversationID,
		"cause", domain.ErrInconsistentState)

	if err := e.dedup.Remove(ctx, in.PlatformMessageID); err != nil {
		e.log.Warnw("stale dedup entry removal failed", "platform_message_id", in.PlatformMessageID, "err", err)
	}
	m, err := e.storeInbound(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := e.dedup.MarkProcessed(ctx, in.PlatformMessageID); err != nil {
		e.log.Warnw("dedup re-arm failed after reconciliation", "platform_message_id", in.PlatformMessageID, "err", err)
	}
	return m, nil
}

func (e *Engine) storeInbound(ctx context.Context, in InboundMessage) (*domain.Message, error) {
	conv, err := e.GetOrCreateConversation(ctx, in.ConversationID, in.Channel, in.SenderID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ts := in.Timestamp
	if ts.IsZero() {
		ts = now
	}
	ct := in.ContentType
	if ct == "" {
		ct = domain.ContentText
	}

	m := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       in.SenderID,
		RecipientIDs:   []string{},
		Content:        in.Content,
		ContentType:    ct,
		Channel:        in.Channel,
		Status:         domain.StatusReceived,
		Timestamp:      ts,
		CreatedAt:      now,
		UpdatedAt:      now,
		Metadata: domain.MessageMetadata{
			PlatformMessageID: in.PlatformMessageID,
			AdditionalData:    in.Metadata,
		},
	}

	if err := e.messages.Insert(ctx, m); err != nil {
		if errors.Is(err, domain.ErrDuplicateMessage) {
			// Lost the store-level race to a concurrent delivery; that
			// write is the one of record.
			return e.messages.FindByPlatformMessageID(ctx, in.PlatformMessageID)
		}
		return nil, err
	}
	if err := e.conversations.BumpActivity(ctx, conv.ID, now); err != nil {
		e.log.Warnw("conversation activity bump failed", "conversation_id", conv.ID, "err", err)
	}

	e.events.Publish(domain.EventMessageReceived, m)
	return m, nil
}

// UpdateStatus validates the transition, persists the new status together
// with an audit row and fires the status-specific event.
func (e *Engine) UpdateStatus(ctx context.Context, messageID string, newStatus domain.Status, updatedBy, errorMessage string) (*domain.Message, error) {
	if !newStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransition, newStatus)
	}

	m, err := e.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateTransition(m.Status, newStatus); err != nil {
		return nil, err
	}

	h := &domain.StatusHistory{
		ID:             uuid.NewString(),
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		OldStatus:      m.Status,
		NewStatus:      newStatus,
		Timestamp:      time.Now().UTC(),
		UpdatedBy:      updatedBy,
		ErrorMessage:   errorMessage,
	}
	updated, err := e.messages.UpdateStatus(ctx, h)
	if err != nil {
		return nil, err
	}

	if et, ok := domain.EventForStatus(newStatus); ok {
		e.events.Publish(et, updated)
	}
	return updated, nil
}

// MessageHistory returns the audit trail for a message, oldest first.
func (e *Engine) MessageHistory(ctx context.Context, messageID string) ([]*domain.StatusHistory, error) {
	if _, err := e.messages.FindByID(ctx, messageID); err != nil {
		return nil, err
	}
	return e.messages.ListHistory(ctx, messageID)
}
