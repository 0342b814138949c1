package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gogotex/gogotex/backend/notary-service/internal/apperr"
	"github.com/gogotex/gogotex/backend/notary-service/internal/document"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/logger"
)

// MongoRepo stores documents keyed by fingerprint (_id) with secondary
// indexes for the coordination queries.
type MongoRepo struct {
	col *mongo.Collection
}

func NewMongoRepo(col *mongo.Collection) *MongoRepo {
	idx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "contentAddress", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "owner", Value: 1}}},
		{Keys: bson.D{{Key: "notarized", Value: 1}}},
		{Keys: bson.D{{Key: "notaryIdentities", Value: 1}}},
		{Keys: bson.D{{Key: "lastVerifiedAt", Value: 1}}},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := col.Indexes().CreateMany(ctx, idx); err != nil {
		logger.Warnf("documents: ensure indexes: %v", err)
	}
	return &MongoRepo{col: col}
}

func (m *MongoRepo) Create(ctx context.Context, d *document.Document) error {
	if d.NotaryIdentities == nil {
		d.NotaryIdentities = []string{}
	}
	_, err := m.col.InsertOne(ctx, d)
	if mongo.IsDuplicateKeyError(err) {
		return apperr.Wrap(apperr.ErrDuplicateFingerprint, "%s", d.Fingerprint)
	}
	return err
}

func (m *MongoRepo) findOne(ctx context.Context, filter bson.M, what string) (*document.Document, error) {
	var d document.Document
	err := m.col.FindOne(ctx, filter).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, apperr.Wrap(apperr.ErrDocumentNotFound, "%s", what)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (m *MongoRepo) Get(ctx context.Context, fingerprint string) (*document.Document, error) {
	return m.findOne(ctx, bson.M{"_id": fingerprint}, fingerprint)
}

func (m *MongoRepo) GetByContentAddress(ctx context.Context, contentAddress string) (*document.Document, error) {
	return m.findOne(ctx, bson.M{"contentAddress": contentAddress}, "content address "+contentAddress)
}

// AddNotary runs as a single pipeline update so membership and the derived
// notarized flag change together.
func (m *MongoRepo) AddNotary(ctx context.Context, fingerprint, notary string, quorum int) (*document.Document, error) {
	ids := bson.M{"$ifNull": bson.A{"$notaryIdentities", bson.A{}}}
	lit := bson.M{"$literal": notary}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{"notaryIdentities": bson.M{"$cond": bson.A{
			bson.M{"$in": bson.A{lit, ids}},
			ids,
			bson.M{"$concatArrays": bson.A{ids, bson.A{lit}}},
		}}}}},
		{{Key: "$set", Value: bson.M{"notarized": bson.M{"$or": bson.A{
			bson.M{"$eq": bson.A{"$notarized", true}},
			bson.M{"$gte": bson.A{bson.M{"$size": "$notaryIdentities"}, quorum}},
		}}}}},
	}
	var d document.Document
	err := m.col.FindOneAndUpdate(ctx, bson.M{"_id": fingerprint}, pipeline,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, apperr.Wrap(apperr.ErrDocumentNotFound, "%s", fingerprint)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Merge runs as one upserting pipeline update. Fields already cached win over
// d except for the identity union and the notarized flag.
func (m *MongoRepo) Merge(ctx context.Context, d *document.Document, quorum int) (*document.Document, error) {
	ids := bson.M{"$ifNull": bson.A{"$notaryIdentities", bson.A{}}}
	incoming := d.NotaryIdentities
	if incoming == nil {
		incoming = []string{}
	}
	keep := func(field string, v interface{}) bson.M {
		return bson.M{"$ifNull": bson.A{"$" + field, bson.M{"$literal": v}}}
	}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"contentAddress": keep("contentAddress", d.ContentAddress),
			"owner":          keep("owner", d.Owner),
			"name":           keep("name", d.Name),
			"registeredAt":   keep("registeredAt", d.RegisteredAt),
			"txHash":         keep("txHash", d.TxHash),
			"notaryIdentities": bson.M{"$concatArrays": bson.A{ids, bson.M{"$filter": bson.M{
				"input": bson.M{"$literal": incoming},
				"as":    "n",
				"cond":  bson.M{"$not": bson.A{bson.M{"$in": bson.A{"$$n", ids}}}},
			}}}},
		}}},
		{{Key: "$set", Value: bson.M{"notarized": bson.M{"$or": bson.A{
			bson.M{"$eq": bson.A{"$notarized", true}},
			d.Notarized,
			bson.M{"$gte": bson.A{bson.M{"$size": "$notaryIdentities"}, quorum}},
		}}}}},
	}
	var out document.Document
	err := m.col.FindOneAndUpdate(ctx, bson.M{"_id": d.Fingerprint}, pipeline,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)).Decode(&out)
	if mongo.IsDuplicateKeyError(err) {
		return nil, apperr.Wrap(apperr.ErrDuplicateFingerprint, "content address %s", d.ContentAddress)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *MongoRepo) update(ctx context.Context, fingerprint string, set bson.M) error {
	res, err := m.col.UpdateOne(ctx, bson.M{"_id": fingerprint}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.Wrap(apperr.ErrDocumentNotFound, "%s", fingerprint)
	}
	return nil
}

func (m *MongoRepo) SetLastVerified(ctx context.Context, fingerprint string, at time.Time) error {
	return m.update(ctx, fingerprint, bson.M{"lastVerifiedAt": at.UTC()})
}

func (m *MongoRepo) UpdateName(ctx context.Context, fingerprint, name string) error {
	return m.update(ctx, fingerprint, bson.M{"name": name})
}

func (m *MongoRepo) Delete(ctx context.Context, fingerprint string) error {
	res, err := m.col.DeleteOne(ctx, bson.M{"_id": fingerprint})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return apperr.Wrap(apperr.ErrDocumentNotFound, "%s", fingerprint)
	}
	return nil
}

func (m *MongoRepo) find(ctx context.Context, filter interface{}) ([]*document.Document, error) {
	cur, err := m.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "registeredAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*document.Document{}
	for cur.Next(ctx) {
		var d document.Document
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, cur.Err()
}

func (m *MongoRepo) List(ctx context.Context) ([]*document.Document, error) {
	return m.find(ctx, bson.M{})
}

func (m *MongoRepo) ListByOwner(ctx context.Context, owner string) ([]*document.Document, error) {
	return m.find(ctx, bson.M{"owner": owner})
}

func (m *MongoRepo) ListByNotarized(ctx context.Context, notarized bool) ([]*document.Document, error) {
	return m.find(ctx, bson.M{"notarized": notarized})
}

func (m *MongoRepo) ListByNotary(ctx context.Context, notary string) ([]*document.Document, error) {
	return m.find(ctx, bson.M{"notaryIdentities": notary})
}

func (m *MongoRepo) ListStale(ctx context.Context, cutoff time.Time) ([]*document.Document, error) {
	return m.find(ctx, bson.M{"$or": bson.A{
		bson.M{"lastVerifiedAt": bson.M{"$exists": false}},
		bson.M{"lastVerifiedAt": nil},
		bson.M{"lastVerifiedAt": bson.M{"$lt": cutoff.UTC()}},
	}})
}
