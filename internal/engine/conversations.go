package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fathima-sithara/messaging-service/internal/domain"
	"github.com/google/uuid"
)

// GetOrCreateConversation returns the conversation or lazily creates a
// direct one between the sender and the system participant, which keeps the
// two-participant minimum for a conversation initiated by a lone inbound sender.
func (e *Engine) GetOrCreateConversation(ctx context.Context, conversationID string, channel domain.Channel, participantID string) (*domain.Conversation, error) {
	if conversationID == "" || participantID == "" {
		return nil, fmt.Errorf("%w: conversation id and participant required", ErrValidation)
	}

	now := time.Now().UTC()
	fresh := &domain.Conversation{
		ID:           conversationID,
		Type:         domain.ConversationOneToOne,
		Participants: []string{participantID, domain.SystemUserID},
		ParticipantJoinDates: map[string]time.Time{
			participantID:       now,
			domain.SystemUserID: now,
		},
		PrimaryChannel: channel,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return e.conversations.GetOrCreate(ctx, fresh)
}

// CreateConversation validates the participant bounds and, for direct
// conversations, reuses an existing one between the same pair instead of
// creating a second.
func (e *Engine) CreateConversation(ctx context.Context, t domain.ConversationType, participants []string, title string, channel domain.Channel) (*domain.Conversation, error) {
	if err := domain.ValidateParticipants(t, participants); err != nil {
		return nil, err
	}

	if t == domain.ConversationOneToOne {
		existing, err := e.conversations.FindOneToOneByPair(ctx, participants[0], participants[1])
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, domain.ErrConversationNotFound) {
			return nil, err
		}
	}

	now := time.Now().UTC()
	joinDates := make(map[string]time.Time, len(participants))
	for _, p := range participants {
		joinDates[p] = now
	}
	c := &domain.Conversation{
		ID:                   uuid.NewString(),
		Type:                 t,
		Title:                title,
		Participants:         participants,
		ParticipantJoinDates: joinDates,
		PrimaryChannel:       channel,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := e.conversations.Insert(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (e *Engine) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	return e.conversations.FindByID(ctx, id)
}

func (e *Engine) ListConversations(ctx context.Context, participantID string, includeArchived bool, limit int64) ([]*domain.Conversation, error) {
	if participantID == "" {
		return nil, fmt.Errorf("%w: participant id required", ErrValidation)
	}
	return e.conversations.ListByParticipant(ctx, participantID, includeArchived, limit)
}

// AddParticipant grows a group, records the join timestamp used for
// history visibility, and drops a system message into the stream so the
// narrative stays complete.
func (e *Engine) AddParticipant(ctx context.Context, conversationID, userID, actor string) (*domain.Conversation, error) {
	conv, err := e.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Type != domain.ConversationGroup {
		return nil, fmt.Errorf("%w: participants can only be added to GROUP conversations", domain.ErrParticipantConstraint)
	}
	if conv.HasParticipant(userID) {
		return nil, fmt.Errorf("%w: %s is already a participant", domain.ErrParticipantConstraint, userID)
	}
	if len(conv.Participants) >= domain.GroupMaxParticipants {
		return nil, fmt.Errorf("%w: group is at the %d participant limit", domain.ErrParticipantConstraint, domain.GroupMaxParticipants)
	}

	now := time.Now().UTC()
	if err := e.conversations.AddParticipant(ctx, conversationID, userID, now); err != nil {
		return nil, err
	}
	e.systemMessage(ctx, conv, fmt.Sprintf("%s joined the conversation", userID), actor, now)

	return e.conversations.FindByID(ctx, conversationID)
}

// RemoveParticipant shrinks a group but never below two members.
func (e *Engine) RemoveParticipant(ctx context.Context, conversationID, userID, actor string) (*domain.Conversation, error) {
	conv, err := e.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Type != domain.ConversationGroup {
		return nil, fmt.Errorf("%w: participants can only be removed from GROUP conversations", domain.ErrParticipantConstraint)
	}
	if !conv.HasParticipant(userID) {
		return nil, fmt.Errorf("%w: %s is not a participant", domain.ErrParticipantConstraint, userID)
	}
	if len(conv.Participants)-1 < 2 {
		return nil, fmt.Errorf("%w: a group keeps at least 2 participants", domain.ErrParticipantConstraint)
	}

	now := time.Now().UTC()
	if err := e.conversations.RemoveParticipant(ctx, conversationID, userID, now); err != nil {
		return nil, err
	}
	e.systemMessage(ctx, conv, fmt.Sprintf("%s left the conversation", userID), actor, now)

	return e.conversations.FindByID(ctx, conversationID)
}

// systemMessage persists a synthetic membership marker. Best-effort: a
// failure is logged, the membership change itself already committed.
func (e *Engine) systemMessage(ctx context.Context, conv *domain.Conversation, content, actor string, now time.Time) {
	m := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       domain.SystemUserID,
		RecipientIDs:   []string{},
		Content:        content,
		ContentType:    domain.ContentSystem,
		Channel:        conv.PrimaryChannel,
		Status:         domain.StatusReceived,
		Timestamp:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
		Metadata: domain.MessageMetadata{
			AdditionalData: map[string]any{"actor": actor},
		},
	}
	if err := e.messages.Insert(ctx, m); err != nil {
		e.log.Warnw("system message write failed", "conversation_id", conv.ID, "err", err)
		return
	}
	if err := e.conversations.BumpActivity(ctx, conv.ID, now); err != nil {
		e.log.Warnw("conversation activity bump failed", "conversation_id", conv.ID, "err", err)
	}
	e.events.Publish(domain.EventMessageReceived, m)
}

func (e *Engine) ArchiveConversation(ctx context.Context, conversationID string) error {
	return e.conversations.SetArchived(ctx, conversationID, true, time.Now().UTC())
}

func (e *Engine) UnarchiveConversation(ctx context.Context, conversationID string) error {
	return e.conversations.SetArchived(ctx, conversationID, false, time.Now().UTC())
}

// History pages a conversation's messages newest first. Participants see
// only messages from their join date forward; the floor is applied in the
// query, not at write time.
func (e *Engine) History(ctx context.Context, conversationID, requesterID string, before time.Time, limit int64) ([]*domain.Message, error) {
	conv, err := e.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if requesterID != "" && !conv.HasParticipant(requesterID) {
		return nil, fmt.Errorf("%w: %s is not a participant of %s", domain.ErrParticipantConstraint, requesterID, conversationID)
	}

	var joinedAfter time.Time
	if requesterID != "" && conv.Type == domain.ConversationGroup {
		joinedAfter = conv.JoinDate(requesterID)
	}
	return e.messages.ListByConversation(ctx, conversationID, before, limit, joinedAfter)
}
