package domain

import (
	"fmt"
	"time"

	"github.com/samber/lo"
)

type ConversationType string

const (
	ConversationOneToOne ConversationType = "ONE_TO_ONE"
	ConversationGroup    ConversationType = "GROUP"
)

const (
	OneToOneParticipants = 2
	GroupMinParticipants = 3
	GroupMaxParticipants = 100
)

// SystemUserID is the fixed counterpart added when a conversation is
// lazily created off a single inbound sender.
const SystemUserID = "system"

type Conversation struct {
	ID                   string               `bson:"_id" json:"id"`
	Type                 ConversationType     `bson:"type" json:"type"`
	Title                string               `bson:"title,omitempty" json:"title,omitempty"`
	Participants         []string             `bson:"participants" json:"participants"`
	ParticipantJoinDates map[string]time.Time `bson:"participant_join_dates" json:"participant_join_dates"`
	PrimaryChannel       Channel              `bson:"primary_channel" json:"primary_channel"`
	MessageCount         int64                `bson:"message_count" json:"message_count"`
	LastMessageAt        time.Time            `bson:"last_message_at" json:"last_message_at"`
	Archived             bool                 `bson:"archived" json:"archived"`
	CreatedAt            time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt            time.Time            `bson:"updated_at" json:"updated_at"`
}

func (c *Conversation) HasParticipant(userID string) bool {
	return lo.Contains(c.Participants, userID)
}

// JoinDate reports when userID joined. The zero time means the user is
// not (or never was) a participant.
func (c *Conversation) JoinDate(userID string) time.Time {
	return c.ParticipantJoinDates[userID]
}

// ValidateParticipants enforces the count bounds for a conversation type.
func ValidateParticipants(t ConversationType, participants []string) error {
	uniq := lo.Uniq(participants)
	switch t {
	case ConversationOneToOne:
		if len(uniq) != OneToOneParticipants {
			return fmt.Errorf("%w: ONE_TO_ONE requires exactly %d participants, got %d",
				ErrParticipantConstraint, OneToOneParticipants, len(uniq))
		}
	case ConversationGroup:
		if len(uniq) < GroupMinParticipants || len(uniq) > GroupMaxParticipants {
			return fmt.Errorf("%w: GROUP requires %d-%d participants, got %d",
				ErrParticipantConstraint, GroupMinParticipants, GroupMaxParticipants, len(uniq))
		}
	default:
		return fmt.Errorf("%w: unknown conversation type %q", ErrParticipantConstraint, t)
	}
	return nil
}
