package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gogotex/gogotex/backend/notary-service/internal/apperr"
	"github.com/gogotex/gogotex/backend/notary-service/internal/notary"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/logger"
)

// MongoRepo keeps notaries keyed by address and slash events in their own collection.
type MongoRepo struct {
	notaries *mongo.Collection
	events   *mongo.Collection
}

func NewMongoRepo(db *mongo.Database) *MongoRepo {
	r := &MongoRepo{notaries: db.Collection("notaries"), events: db.Collection("slash_events")}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := r.notaries.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "active", Value: 1}}}); err != nil {
		logger.Warnf("notaries: ensure index: %v", err)
	}
	if _, err := r.events.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "notary", Value: 1}, {Key: "at", Value: 1}}}); err != nil {
		logger.Warnf("slash_events: ensure index: %v", err)
	}
	return r
}

func (m *MongoRepo) Get(ctx context.Context, address string) (*notary.Notary, error) {
	var n notary.Notary
	err := m.notaries.FindOne(ctx, bson.M{"_id": address}).Decode(&n)
	if err == mongo.ErrNoDocuments {
		return nil, apperr.Wrap(apperr.ErrNotaryNotFound, "%s", address)
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (m *MongoRepo) Save(ctx context.Context, n *notary.Notary) error {
	c := n.Clone()
	c.UpdatedAt = time.Now().UTC()
	_, err := m.notaries.ReplaceOne(ctx, bson.M{"_id": n.Address}, c, options.Replace().SetUpsert(true))
	return err
}

func (m *MongoRepo) IncrementSuccess(ctx context.Context, address string) error {
	res, err := m.notaries.UpdateOne(ctx, bson.M{"_id": address}, bson.M{
		"$inc": bson.M{"successfulNotarizations": 1},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.Wrap(apperr.ErrNotaryNotFound, "%s", address)
	}
	return nil
}

func (m *MongoRepo) find(ctx context.Context, filter bson.M) ([]*notary.Notary, error) {
	cur, err := m.notaries.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*notary.Notary{}
	for cur.Next(ctx) {
		var n notary.Notary
		if err := cur.Decode(&n); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	return out, cur.Err()
}

func (m *MongoRepo) List(ctx context.Context) ([]*notary.Notary, error) {
	return m.find(ctx, bson.M{})
}

func (m *MongoRepo) ListActive(ctx context.Context) ([]*notary.Notary, error) {
	return m.find(ctx, bson.M{"active": true})
}

func (m *MongoRepo) AppendSlashEvent(ctx context.Context, ev *notary.SlashEvent) error {
	_, err := m.events.InsertOne(ctx, ev)
	if mongo.IsDuplicateKeyError(err) {
		// a retried append whose first attempt landed
		return nil
	}
	return err
}

func (m *MongoRepo) ListSlashEvents(ctx context.Context, address string) ([]*notary.SlashEvent, error) {
	cur, err := m.events.Find(ctx, bson.M{"notary": address}, options.Find().SetSort(bson.D{{Key: "at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*notary.SlashEvent{}
	for cur.Next(ctx) {
		var ev notary.SlashEvent
		if err := cur.Decode(&ev); err != nil {
			return nil, err
		}
		out = append(out, &ev)
	}
	return out, cur.Err()
}
