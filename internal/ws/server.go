package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fathima-sithara/messaging-service/internal/domain"
	"github.com/gofiber/websocket/v2"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// ParticipantResolver reports who belongs to a conversation, for routing
// events onto per-user channels.
type ParticipantResolver interface {
	FindByID(ctx context.Context, id string) (*domain.Conversation, error)
}

type Server struct {
	Hub      *Hub
	resolver ParticipantResolver
	log      *zap.SugaredLogger
}

func NewServer(resolver ParticipantResolver, log *zap.SugaredLogger) *Server {
	return &Server{Hub: NewHub(), resolver: resolver, log: log}
}

// HandleBroadcast upgrades a dashboard-style subscriber that sees every event.
func (s *Server) HandleBroadcast() func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		c := NewClient(conn, "", s.Hub)
		s.Hub.RegisterBroadcast(c)
		c.Run()
	}
}

// HandleUser upgrades a per-user subscriber. The user identity was set by
// the auth middleware before the upgrade.
func (s *Server) HandleUser() func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		userID, _ := conn.Locals("user_id").(string)
		if userID == "" {
			_ = conn.Close()
			return
		}
		c := NewClient(conn, userID, s.Hub)
		s.Hub.RegisterUser(c)
		c.Run()
	}
}

// HandleEvent fans a bus event out: every broadcast subscriber gets it,
// per-user subscribers get it only when they participate in the conversation
// or are an explicit recipient.
func (s *Server) HandleEvent(key string, value []byte) {
	var ev domain.Event
	if err := json.Unmarshal(value, &ev); err != nil {
		s.log.Warnw("undecodable bus event", "key", key, "err", err)
		return
	}
	if ev.Message == nil {
		return
	}

	s.Hub.Broadcast(value)

	targets := ev.Message.RecipientIDs
	if s.resolver != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if conv, err := s.resolver.FindByID(ctx, ev.ConversationID); err == nil {
			targets = append(targets, conv.Participants...)
		}
		cancel()
	}
	for _, userID := range lo.Uniq(targets) {
		if userID == domain.SystemUserID {
			continue
		}
		s.Hub.SendToUser(userID, value)
	}
}
