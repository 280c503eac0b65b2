package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/fathima-sithara/messaging-service/internal/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageRepository persists messages and their append-only status history.
type MessageRepository struct {
	msgColl  *mongo.Collection
	histColl *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	r := &MessageRepository{
		msgColl:  db.Collection("messages"),
		histColl: db.Collection("message_status_history"),
	}
	// platform_message_id is the inbound dedup backstop: unique but sparse,
	// outbound messages never carry it.
	_, _ = r.msgColl.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "metadata.platform_message_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName("platform_msg_idx"),
		},
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("conv_created_idx"),
		},
	})
	_, _ = r.histColl.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "message_id", Value: 1}, {Key: "timestamp", Value: 1}},
		Options: options.Index().SetName("hist_msg_idx"),
	})
	return r
}

// Insert writes a new message. The _id unique index (and the sparse
// platform_message_id index) turn a racing duplicate into ErrDuplicateMessage.
func (r *MessageRepository) Insert(ctx context.Context, m *domain.Message) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if m.RecipientIDs == nil {
		m.RecipientIDs = []string{}
	}
	_, err := r.msgColl.InsertOne(ctx, m)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateMessage, m.ID)
	}
	return err
}

func (r *MessageRepository) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var m domain.Message
	if err := r.msgColl.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("%w: %s", domain.ErrMessageNotFound, id)
		}
		return nil, err
	}
	return &m, nil
}

func (r *MessageRepository) FindByPlatformMessageID(ctx context.Context, platformID string) (*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var m domain.Message
	err := r.msgColl.FindOne(ctx, bson.M{"metadata.platform_message_id": platformID}).Decode(&m)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("%w: platform message %s", domain.ErrMessageNotFound, platformID)
		}
		return nil, err
	}
	return &m, nil
}

// UpdateStatus moves a message from old to new status. The filter pins the
// old status so a concurrent transition loses cleanly instead of clobbering.
// The history row is appended after the message write; either failure is
// reported to the caller.
func (r *MessageRepository) UpdateStatus(ctx context.Context, h *domain.StatusHistory) (*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res := r.msgColl.FindOneAndUpdate(
		ctx,
		bson.M{"_id": h.MessageID, "status": h.OldStatus},
		bson.M{"$set": bson.M{
			"status":     h.NewStatus,
			"updated_at": h.Timestamp,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	var m domain.Message
	if err := res.Decode(&m); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("%w: %s -> %s lost to a concurrent update",
				domain.ErrInvalidTransition, h.OldStatus, h.NewStatus)
		}
		return nil, err
	}

	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if _, err := r.histColl.InsertOne(ctx, h); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListByConversation returns messages newest first, optionally bounded above
// by before and below by joinedAfter (join-date visibility for group members).
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string, before time.Time, limit int64, joinedAfter time.Time) ([]*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	created := bson.M{}
	if !before.IsZero() {
		created["$lt"] = before
	}
	if !joinedAfter.IsZero() {
		created["$gte"] = joinedAfter
	}
	filter := bson.M{"conversation_id": conversationID}
	if len(created) > 0 {
		filter["created_at"] = created
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cur, err := r.msgColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []*domain.Message{}
	for cur.Next(ctx) {
		var m domain.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, cur.Err()
}

func (r *MessageRepository) ListHistory(ctx context.Context, messageID string) ([]*domain.StatusHistory, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cur, err := r.histColl.Find(ctx, bson.M{"message_id": messageID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []*domain.StatusHistory{}
	for cur.Next(ctx) {
		var h domain.StatusHistory
		if err := cur.Decode(&h); err != nil {
			return nil, err
		}
		out = append(out, &h)
	}
	return out, cur.Err()
}
