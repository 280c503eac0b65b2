package domain

import "time"

type ContentType string

const (
	ContentText     ContentType = "TEXT"
	ContentImage    ContentType = "IMAGE"
	ContentVideo    ContentType = "VIDEO"
	ContentAudio    ContentType = "AUDIO"
	ContentDocument ContentType = "DOCUMENT"
	ContentLocation ContentType = "LOCATION"
	ContentSystem   ContentType = "SYSTEM"
)

type Channel string

const (
	ChannelWhatsApp  Channel = "WHATSAPP"
	ChannelTelegram  Channel = "TELEGRAM"
	ChannelInstagram Channel = "INSTAGRAM"
)

// MessageMetadata is a flat value struct; platform-specific passthrough
// fields go into AdditionalData untyped.
type MessageMetadata struct {
	PlatformMessageID string         `bson:"platform_message_id,omitempty" json:"platform_message_id,omitempty"`
	RetryCount        int            `bson:"retry_count" json:"retry_count"`
	ErrorMessage      string         `bson:"error_message,omitempty" json:"error_message,omitempty"`
	AdditionalData    map[string]any `bson:"additional_data,omitempty" json:"additional_data,omitempty"`
}

type Message struct {
	ID             string          `bson:"_id" json:"id"`
	ConversationID string          `bson:"conversation_id" json:"conversation_id"`
	SenderID       string          `bson:"sender_id" json:"sender_id"`
	RecipientIDs   []string        `bson:"recipient_ids" json:"recipient_ids"`
	Content        string          `bson:"content" json:"content"`
	ContentType    ContentType     `bson:"content_type" json:"content_type"`
	Channel        Channel         `bson:"channel" json:"channel"`
	Status         Status          `bson:"status" json:"status"`
	Timestamp      time.Time       `bson:"timestamp" json:"timestamp"`
	CreatedAt      time.Time       `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `bson:"updated_at" json:"updated_at"`
	Metadata       MessageMetadata `bson:"metadata" json:"metadata"`
}

// StatusHistory is the append-only audit row written on every transition.
type StatusHistory struct {
	ID             string    `bson:"_id" json:"id"`
	MessageID      string    `bson:"message_id" json:"message_id"`
	ConversationID string    `bson:"conversation_id" json:"conversation_id"`
	OldStatus      Status    `bson:"old_status" json:"old_status"`
	NewStatus      Status    `bson:"new_status" json:"new_status"`
	Timestamp      time.Time `bson:"timestamp" json:"timestamp"`
	UpdatedBy      string    `bson:"updated_by" json:"updated_by"`
	ErrorMessage   string    `bson:"error_message,omitempty" json:"error_message,omitempty"`
}
