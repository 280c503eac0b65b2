package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/fathima-sithara/messaging-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ConversationRepository struct {
	coll *mongo.Collection
}

func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	r := &ConversationRepository{coll: db.Collection("conversations")}
	_, _ = r.coll.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "participants", Value: 1}, {Key: "last_message_at", Value: -1}},
		Options: options.Index().SetName("participant_activity_idx"),
	})
	return r
}

func (r *ConversationRepository) FindByID(ctx context.Context, id string) (*domain.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var c domain.Conversation
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("%w: %s", domain.ErrConversationNotFound, id)
		}
		return nil, err
	}
	return &c, nil
}

// GetOrCreate upserts with $setOnInsert, so two inbound messages racing on
// the same fresh conversation both land on one document.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, c *domain.Conversation) (*domain.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res := r.coll.FindOneAndUpdate(
		ctx,
		bson.M{"_id": c.ID},
		bson.M{"$setOnInsert": c},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)
	var out domain.Conversation
	if err := res.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *ConversationRepository) Insert(ctx context.Context, c *domain.Conversation) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.coll.InsertOne(ctx, c)
	return err
}

// FindOneToOneByPair finds an existing direct conversation between exactly
// the given pair, used to dedup ONE_TO_ONE creation.
func (r *ConversationRepository) FindOneToOneByPair(ctx context.Context, a, b string) (*domain.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	filter := bson.M{
		"type":         domain.ConversationOneToOne,
		"participants": bson.M{"$all": []string{a, b}, "$size": 2},
	}
	var c domain.Conversation
	if err := r.coll.FindOne(ctx, filter).Decode(&c); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("%w: pair %s/%s", domain.ErrConversationNotFound, a, b)
		}
		return nil, err
	}
	return &c, nil
}

// AddParticipant grows the membership set. The size and membership checks
// ride in the filter, so two racing adds cannot push a group past the limit.
func (r *ConversationRepository) AddParticipant(ctx context.Context, conversationID, userID string, joinedAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	capSlot := fmt.Sprintf("participants.%d", domain.GroupMaxParticipants-1)
	filter := bson.M{
		"_id":          conversationID,
		"participants": bson.M{"$ne": userID},
		capSlot:        bson.M{"$exists": false},
	}
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{
		"$addToSet": bson.M{"participants": userID},
		"$set": bson.M{
			"participant_join_dates." + userID: joinedAt,
			"updated_at":                       joinedAt,
		},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: cannot add %s to %s", domain.ErrParticipantConstraint, userID, conversationID)
	}
	return nil
}

// RemoveParticipant shrinks the membership set. The filter requires a third
// member to exist, so racing removals cannot take a group below two.
func (r *ConversationRepository) RemoveParticipant(ctx context.Context, conversationID, userID string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	filter := bson.M{
		"_id":            conversationID,
		"participants":   userID,
		"participants.2": bson.M{"$exists": true},
	}
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{
		"$pull":  bson.M{"participants": userID},
		"$unset": bson.M{"participant_join_dates." + userID: ""},
		"$set":   bson.M{"updated_at": at},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: cannot remove %s from %s", domain.ErrParticipantConstraint, userID, conversationID)
	}
	return nil
}

// BumpActivity increments message_count atomically; no read-modify-write.
func (r *ConversationRepository) BumpActivity(ctx context.Context, conversationID string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.coll.UpdateByID(ctx, conversationID, bson.M{
		"$inc": bson.M{"message_count": 1},
		"$set": bson.M{"last_message_at": at, "updated_at": at},
	})
	return err
}

func (r *ConversationRepository) SetArchived(ctx context.Context, conversationID string, archived bool, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := r.coll.UpdateByID(ctx, conversationID, bson.M{
		"$set": bson.M{"archived": archived, "updated_at": at},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", domain.ErrConversationNotFound, conversationID)
	}
	return nil
}

func (r *ConversationRepository) ListByParticipant(ctx context.Context, participantID string, includeArchived bool, limit int64) ([]*domain.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{"participants": participantID}
	if !includeArchived {
		filter["archived"] = false
	}
	opts := options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}}).SetLimit(limit)
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []*domain.Conversation{}
	for cur.Next(ctx) {
		var c domain.Conversation
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, cur.Err()
}
