package chat

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"attendly/internal/errs"
	"attendly/internal/model"
)

// Store persists direct messages.
type Store interface {
	Insert(ctx context.Context, m *model.Message) error
	Get(ctx context.Context, id string) (*model.Message, error)
	Update(ctx context.Context, m *model.Message) error
	Delete(ctx context.Context, id string) error
	Room(ctx context.Context, room string) ([]model.Message, error)
	Inbox(ctx context.Context, userID string) ([]model.Message, error)
}

const messagesCollection = "messages"

// MongoStore keeps the chat log in a MongoDB collection keyed by string ids.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(messagesCollection)}
}

// EnsureIndexes creates the room and participant indexes.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "room", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "sender", Value: 1}}},
		{Keys: bson.D{{Key: "receiver", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Insert(ctx context.Context, m *model.Message) error {
	_, err := s.coll.InsertOne(ctx, m)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("message %s: %w", m.ID, errs.ErrConflict)
	}
	return err
}

func (s *MongoStore) Get(ctx context.Context, id string) (*model.Message, error) {
	var m model.Message
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errs.ErrMessageNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *MongoStore) Update(ctx context.Context, m *model.Message) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": m.ID}, bson.M{"$set": bson.M{
		"content":   m.Content,
		"seen":      m.Seen,
		"updatedAt": m.UpdatedAt,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return errs.ErrMessageNotFound
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return errs.ErrMessageNotFound
	}
	return nil
}

// Room returns a conversation oldest first.
func (s *MongoStore) Room(ctx context.Context, room string) ([]model.Message, error) {
	return s.find(ctx, bson.M{"room": room}, 1)
}

// Inbox returns every message sent or received by userID, newest first.
func (s *MongoStore) Inbox(ctx context.Context, userID string) ([]model.Message, error) {
	return s.find(ctx, bson.M{"$or": bson.A{bson.M{"sender": userID}, bson.M{"receiver": userID}}}, -1)
}

func (s *MongoStore) find(ctx context.Context, filter bson.M, order int) ([]model.Message, error) {
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: order}}))
	if err != nil {
		return nil, err
	}
	out := []model.Message{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
