package stand

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoAdapter is the document adapter. Query text is a JSON filter
// expression applied to one fixed collection.
type MongoAdapter struct {
	host       string
	db         string
	collection string
	client     *mongo.Client
}

// NewMongo creates an adapter for one collection of one database.
func NewMongo(host, db, collection string) *MongoAdapter {
	return &MongoAdapter{host: host, db: db, collection: collection}
}

// Connect builds the client. No-op when already connected.
func (a *MongoAdapter) Connect(_ context.Context) error {
	if a.client != nil {
		return nil
	}
	client, err := mongo.Connect(options.Client().ApplyURI(a.host))
	if err != nil {
		return &ConnectionError{Message: "connect to mongo", Err: err}
	}
	a.client = client
	return nil
}

// FetchMany parses query as a JSON filter and returns at most limit
// documents. Backend identifier and date types are normalized to string and
// RFC 3339 forms, recursively through nested documents and arrays.
func (a *MongoAdapter) FetchMany(ctx context.Context, query string, limit int) ([]Record, error) {
	if a.client == nil {
		return nil, &ConnectionError{Message: "mongo client is not connected"}
	}

	var filter bson.D
	if err := bson.UnmarshalExtJSON([]byte(query), false, &filter); err != nil {
		return nil, &QueryError{Message: "parse filter document", Err: err}
	}

	coll := a.client.Database(a.db).Collection(a.collection)
	cur, err := coll.Find(ctx, filter, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return nil, &QueryError{Message: "mongo find failed", Err: err}
	}
	defer cur.Close(ctx)

	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, &QueryError{Message: "mongo find failed", Err: err}
	}

	records := make([]Record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, normalizeDocument(doc))
	}
	return records, nil
}

// Close releases the client. Safe to call repeatedly.
func (a *MongoAdapter) Close() error {
	if a.client == nil {
		return nil
	}
	err := a.client.Disconnect(context.Background())
	a.client = nil
	return err
}

func normalizeDocument(doc bson.M) Record {
	rec := make(Record, len(doc))
	for k, v := range doc {
		rec[k] = normalizeDocValue(v)
	}
	return rec
}

func normalizeDocValue(v any) any {
	switch t := v.(type) {
	case bson.M:
		return normalizeDocument(t)
	case bson.D:
		m := make(Record, len(t))
		for _, e := range t {
			m[e.Key] = normalizeDocValue(e.Value)
		}
		return m
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeDocValue(e)
		}
		return out
	case bson.ObjectID:
		return t.Hex()
	case bson.DateTime:
		return t.Time().UTC().Format(time.RFC3339)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return v
	}
}
