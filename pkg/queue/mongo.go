package queue

import (
	"context"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/romega/certforge/pkg/errors"
)

// MongoConfig configures the MongoDB queue store.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// MongoStore persists the queue in a MongoDB collection, for deployments
// where several server instances share one queue.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects to MongoDB and prepares the queue collection.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.Database == "" {
		cfg.Database = "certforge"
	}
	if cfg.Collection == "" {
		cfg.Collection = "email_queue"
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueue, err, "connect to mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(errors.ErrCodeQueue, err, "ping mongodb")
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(errors.ErrCodeQueue, err, "create queue indexes")
	}

	return &MongoStore{client: client, coll: coll}, nil
}

// Enqueue inserts an item.
func (s *MongoStore) Enqueue(ctx context.Context, item *Item) error {
	prepare(item)
	if _, err := s.coll.InsertOne(ctx, item); err != nil {
		return errors.Wrap(errors.ErrCodeQueue, err, "enqueue item for %s", item.RecipientEmail)
	}
	return nil
}

// Get returns the item with the given id.
func (s *MongoStore) Get(ctx context.Context, id string) (*Item, error) {
	var item Item
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&item)
	if err == mongo.ErrNoDocuments {
		return nil, errors.New(errors.ErrCodeNotFound, "queue item %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueue, err, "get queue item %s", id)
	}
	return &item, nil
}

// List returns items newest-first, honoring the filters.
func (s *MongoStore) List(ctx context.Context, f Filters) ([]Item, error) {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Search != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"recipient_name": re},
			bson.M{"recipient_email": re},
		}
	}
	created := bson.M{}
	if !f.From.IsZero() {
		created["$gte"] = f.From
	}
	if !f.To.IsZero() {
		created["$lte"] = f.To
	}
	if len(created) > 0 {
		filter["created_at"] = created
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueue, err, "list queue items")
	}
	defer cursor.Close(ctx)

	var items []Item
	if err := cursor.All(ctx, &items); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueue, err, "decode queue items")
	}
	return items, nil
}

// UpdateStatus transitions an item to a new lifecycle state.
func (s *MongoStore) UpdateStatus(ctx context.Context, id string, status Status, errMsg string) error {
	if !ValidStatus(status) {
		return errors.New(errors.ErrCodeInvalidInput, "invalid queue status %q", status)
	}

	update := bson.M{"status": status, "error_message": errMsg}
	if status == StatusSent {
		update["sent_at"] = time.Now().UTC()
	}

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": update})
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueue, err, "update queue item %s", id)
	}
	if res.MatchedCount == 0 {
		return errors.New(errors.ErrCodeNotFound, "queue item %s not found", id)
	}
	return nil
}

// Delete removes an item.
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueue, err, "delete queue item %s", id)
	}
	if res.DeletedCount == 0 {
		return errors.New(errors.ErrCodeNotFound, "queue item %s not found", id)
	}
	return nil
}

// Stats counts items per status.
func (s *MongoStore) Stats(ctx context.Context) (Stats, error) {
	cursor, err := s.coll.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return Stats{}, errors.Wrap(errors.ErrCodeQueue, err, "queue stats")
	}
	defer cursor.Close(ctx)

	var st Stats
	for cursor.Next(ctx) {
		var group struct {
			Status Status `bson:"_id"`
			Count  int    `bson:"count"`
		}
		if err := cursor.Decode(&group); err != nil {
			return Stats{}, errors.Wrap(errors.ErrCodeQueue, err, "queue stats")
		}
		st.Total += group.Count
		switch group.Status {
		case StatusPending:
			st.Pending = group.Count
		case StatusSending:
			st.Sending = group.Count
		case StatusSent:
			st.Sent = group.Count
		case StatusFailed:
			st.Failed = group.Count
		}
	}
	return st, cursor.Err()
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
