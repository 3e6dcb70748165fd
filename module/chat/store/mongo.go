package store

import (
	"context"

	"IMSync/module/chat/model"
	errs "IMSync/tools/errs"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collMessages      = "messages"
	collConversations = "conversations"
	collCounters      = "seq_counters"
)

// MongoStore backs the persistence contract with three collections:
// messages, conversations and seq_counters.
type MongoStore struct {
	db *mongo.Database
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

// EnsureIndexes creates the unique (conversation_id, seq_no) index that backs
// the no-duplicate-seq invariant, plus the paging index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(collMessages).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "seq_no", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "read_by", Value: 1}},
		},
	})
	if err != nil {
		return errors.Wrap(err, "ensure message indexes")
	}
	_, err = s.db.Collection(collConversations).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "participants", Value: 1}},
	})
	return errors.Wrap(err, "ensure conversation indexes")
}

func (s *MongoStore) IncrementAndFetch(ctx context.Context, conversationID string) (int64, error) {
	var out model.SeqCounter
	err := s.db.Collection(collCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		return 0, errs.ErrTransient.WrapMsg("increment seq counter", "conversation", conversationID, "err", err)
	}
	return out.Value, nil
}

func (s *MongoStore) Insert(ctx context.Context, m *model.Message) (*model.Message, error) {
	if _, err := s.db.Collection(collMessages).InsertOne(ctx, m); err != nil {
		return nil, errs.ErrTransient.WrapMsg("insert message", "conversation", m.ConversationID, "err", err)
	}
	return m, nil
}

func (s *MongoStore) AddToReadBy(ctx context.Context, messageID, userID string) error {
	res, err := s.db.Collection(collMessages).UpdateOne(ctx,
		bson.M{"_id": messageID},
		bson.M{"$addToSet": bson.M{"read_by": userID}},
	)
	if err != nil {
		return errs.ErrTransient.WrapMsg("add to read_by", "message", messageID, "err", err)
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound.WrapMsg("message absent", "message", messageID)
	}
	return nil
}

func unreadFilter(conversationID, userID string) bson.M {
	return bson.M{
		"conversation_id": conversationID,
		"sender_id":       bson.M{"$ne": userID},
		"read_by":         bson.M{"$ne": userID},
	}
}

func (s *MongoStore) CountUnread(ctx context.Context, conversationID, userID string) (int64, error) {
	n, err := s.db.Collection(collMessages).CountDocuments(ctx, unreadFilter(conversationID, userID))
	if err != nil {
		return 0, errs.ErrTransient.WrapMsg("count unread", "conversation", conversationID, "err", err)
	}
	return n, nil
}

func (s *MongoStore) UnreadMessages(ctx context.Context, conversationID, userID string) ([]model.Message, error) {
	return s.findMessages(ctx, unreadFilter(conversationID, userID), 0)
}

func (s *MongoStore) MessagesByID(ctx context.Context, conversationID string, ids []string) ([]model.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.findMessages(ctx, bson.M{
		"conversation_id": conversationID,
		"_id":             bson.M{"$in": ids},
	}, 0)
}

func (s *MongoStore) ListMessages(ctx context.Context, conversationID string, afterSeq int64, limit int64) ([]model.Message, error) {
	return s.findMessages(ctx, bson.M{
		"conversation_id": conversationID,
		"seq_no":          bson.M{"$gt": afterSeq},
	}, limit)
}

func (s *MongoStore) LastMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	var m model.Message
	err := s.db.Collection(collMessages).FindOne(ctx,
		bson.M{"conversation_id": conversationID},
		options.FindOne().SetSort(bson.D{{Key: "seq_no", Value: -1}}),
	).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.ErrTransient.WrapMsg("load last message", "conversation", conversationID, "err", err)
	}
	return &m, nil
}

func (s *MongoStore) findMessages(ctx context.Context, filter bson.M, limit int64) ([]model.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "seq_no", Value: 1}})
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}
	cur, err := s.db.Collection(collMessages).Find(ctx, filter, opts)
	if err != nil {
		return nil, errs.ErrTransient.WrapMsg("find messages", "err", err)
	}
	defer func() { _ = cur.Close(ctx) }()
	var out []model.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.ErrTransient.WrapMsg("decode messages", "err", err)
	}
	return out, nil
}

func (s *MongoStore) Conversation(ctx context.Context, id string) (*model.Conversation, error) {
	var c model.Conversation
	err := s.db.Collection(collConversations).FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrNotFound.WrapMsg("conversation absent", "conversation", id)
	}
	if err != nil {
		return nil, errs.ErrTransient.WrapMsg("load conversation", "conversation", id, "err", err)
	}
	return &c, nil
}

func (s *MongoStore) ListConversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	cur, err := s.db.Collection(collConversations).Find(ctx, bson.M{"participants": userID})
	if err != nil {
		return nil, errs.ErrTransient.WrapMsg("list conversations", "user", userID, "err", err)
	}
	defer func() { _ = cur.Close(ctx) }()
	var out []model.Conversation
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.ErrTransient.WrapMsg("decode conversations", "err", err)
	}
	return out, nil
}

func (s *MongoStore) CreateConversation(ctx context.Context, c *model.Conversation) error {
	if _, err := s.db.Collection(collConversations).InsertOne(ctx, c); err != nil {
		return errs.ErrTransient.WrapMsg("insert conversation", "conversation", c.ID, "err", err)
	}
	return nil
}
