package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fathima-sithara/messaging-service/internal/domain"
)

// memMessages mimics the mongo message repository: unique _id, sparse
// unique platform_message_id, history appended after the message write.
type memMessages struct {
	mu         sync.Mutex
	byID       map[string]domain.Message
	byPlatform map[string]string
	history    []domain.StatusHistory
	insertErr  error
}

func newMemMessages() *memMessages {
	return &memMessages{
		byID:       make(map[string]domain.Message),
		byPlatform: make(map[string]string),
	}
}

func (s *memMessages) Insert(_ context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		err := s.insertErr
		s.insertErr = nil
		return err
	}
	if _, ok := s.byID[m.ID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateMessage, m.ID)
	}
	if pid := m.Metadata.PlatformMessageID; pid != "" {
		if _, ok := s.byPlatform[pid]; ok {
			return fmt.Errorf("%w: platform message %s", domain.ErrDuplicateMessage, pid)
		}
		s.byPlatform[pid] = m.ID
	}
	s.byID[m.ID] = *m
	return nil
}

func (s *memMessages) FindByID(_ context.Context, id string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrMessageNotFound, id)
	}
	return &m, nil
}

func (s *memMessages) FindByPlatformMessageID(_ context.Context, pid string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPlatform[pid]
	if !ok {
		return nil, fmt.Errorf("%w: platform message %s", domain.ErrMessageNotFound, pid)
	}
	m := s.byID[id]
	return &m, nil
}

func (s *memMessages) UpdateStatus(_ context.Context, h *domain.StatusHistory) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[h.MessageID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrMessageNotFound, h.MessageID)
	}
	if m.Status != h.OldStatus {
		return nil, fmt.Errorf("%w: %s -> %s lost to a concurrent update",
			domain.ErrInvalidTransition, h.OldStatus, h.NewStatus)
	}
	m.Status = h.NewStatus
	m.UpdatedAt = h.Timestamp
	s.byID[h.MessageID] = m
	s.history = append(s.history, *h)
	return &m, nil
}

func (s *memMessages) ListByConversation(_ context.Context, conversationID string, before time.Time, limit int64, joinedAfter time.Time) ([]*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domain.Message{}
	for _, m := range s.byID {
		if m.ConversationID != conversationID {
			continue
		}
		if !before.IsZero() && !m.CreatedAt.Before(before) {
			continue
		}
		if !joinedAfter.IsZero() && m.CreatedAt.Before(joinedAfter) {
			continue
		}
		cp := m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memMessages) ListHistory(_ context.Context, messageID string) ([]*domain.StatusHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domain.StatusHistory{}
	for i := range s.history {
		if s.history[i].MessageID == messageID {
			cp := s.history[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memMessages) failNextInsert(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertErr = err
}

func (s *memMessages) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *memMessages) historyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

type memConversations struct {
	mu   sync.Mutex
	byID map[string]domain.Conversation
}

func newMemConversations() *memConversations {
	return &memConversations{byID: make(map[string]domain.Conversation)}
}

func (s *memConversations) FindByID(_ context.Context, id string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrConversationNotFound, id)
	}
	return cloneConv(c), nil
}

func (s *memConversations) GetOrCreate(_ context.Context, c *domain.Conversation) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byID[c.ID]; ok {
		return cloneConv(existing), nil
	}
	s.byID[c.ID] = *c
	return cloneConv(*c), nil
}

func (s *memConversations) Insert(_ context.Context, c *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[c.ID]; ok {
		return fmt.Errorf("conversation %s exists", c.ID)
	}
	s.byID[c.ID] = *c
	return nil
}

func (s *memConversations) FindOneToOneByPair(_ context.Context, a, b string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.byID {
		if c.Type != domain.ConversationOneToOne || len(c.Participants) != 2 {
			continue
		}
		has := map[string]bool{c.Participants[0]: true, c.Participants[1]: true}
		if has[a] && has[b] {
			return cloneConv(c), nil
		}
	}
	return nil, fmt.Errorf("%w: pair %s/%s", domain.ErrConversationNotFound, a, b)
}

func (s *memConversations) AddParticipant(_ context.Context, id, userID string, joinedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrConversationNotFound, id)
	}
	for _, p := range c.Participants {
		if p == userID {
			return fmt.Errorf("%w: cannot add %s to %s", domain.ErrParticipantConstraint, userID, id)
		}
	}
	if len(c.Participants) >= domain.GroupMaxParticipants {
		return fmt.Errorf("%w: cannot add %s to %s", domain.ErrParticipantConstraint, userID, id)
	}
	c.Participants = append(append([]string{}, c.Participants...), userID)
	jd := map[string]time.Time{}
	for k, v := range c.ParticipantJoinDates {
		jd[k] = v
	}
	jd[userID] = joinedAt
	c.ParticipantJoinDates = jd
	c.UpdatedAt = joinedAt
	s.byID[id] = c
	return nil
}

func (s *memConversations) RemoveParticipant(_ context.Context, id, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrConversationNotFound, id)
	}
	member := false
	for _, p := range c.Participants {
		if p == userID {
			member = true
			break
		}
	}
	if !member || len(c.Participants) < 3 {
		return fmt.Errorf("%w: cannot remove %s from %s", domain.ErrParticipantConstraint, userID, id)
	}
	kept := []string{}
	for _, p := range c.Participants {
		if p != userID {
			kept = append(kept, p)
		}
	}
	c.Participants = kept
	jd := map[string]time.Time{}
	for k, v := range c.ParticipantJoinDates {
		if k != userID {
			jd[k] = v
		}
	}
	c.ParticipantJoinDates = jd
	c.UpdatedAt = at
	s.byID[id] = c
	return nil
}

func (s *memConversations) BumpActivity(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrConversationNotFound, id)
	}
	c.MessageCount++
	c.LastMessageAt = at
	c.UpdatedAt = at
	s.byID[id] = c
	return nil
}

func (s *memConversations) SetArchived(_ context.Context, id string, archived bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrConversationNotFound, id)
	}
	c.Archived = archived
	c.UpdatedAt = at
	s.byID[id] = c
	return nil
}

func (s *memConversations) ListByParticipant(_ context.Context, participantID string, includeArchived bool, limit int64) ([]*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domain.Conversation{}
	for _, c := range s.byID {
		if c.Archived && !includeArchived {
			continue
		}
		for _, p := range c.Participants {
			if p == participantID {
				out = append(out, cloneConv(c))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneConv(c domain.Conversation) *domain.Conversation {
	cp := c
	cp.Participants = append([]string{}, c.Participants...)
	jd := map[string]time.Time{}
	for k, v := range c.ParticipantJoinDates {
		jd[k] = v
	}
	cp.ParticipantJoinDates = jd
	return &cp
}

// memDedup mimics the redis guard. With failOpen set it behaves like an
// unreachable cache: never a duplicate, nothing recorded.
type memDedup struct {
	mu       sync.Mutex
	seen     map[string]bool
	failOpen bool
}

func newMemDedup() *memDedup {
	return &memDedup{seen: make(map[string]bool)}
}

func (d *memDedup) IsDuplicate(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failOpen {
		return false
	}
	if d.seen[key] {
		return true
	}
	d.seen[key] = true
	return false
}

func (d *memDedup) Remove(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	return nil
}

func (d *memDedup) MarkProcessed(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[key] = true
	return nil
}

func (d *memDedup) arm(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[key] = true
}

type recordedEvent struct {
	Type           domain.EventType
	MessageID      string
	ConversationID string
}

type sinkRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (s *sinkRecorder) Publish(et domain.EventType, m *domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recordedEvent{Type: et, MessageID: m.ID, ConversationID: m.ConversationID})
}

func (s *sinkRecorder) all() []recordedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedEvent{}, s.events...)
}

func (s *sinkRecorder) forConversation(id string) []recordedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []recordedEvent{}
	for _, ev := range s.events {
		if ev.ConversationID == id {
			out = append(out, ev)
		}
	}
	return out
}
