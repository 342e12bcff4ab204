package pushlog

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/pushkit/pkg/push"
)

const DefaultCollection = "push_dispatches"

// Mongo records one document per dispatch.
type Mongo struct {
	coll *mongo.Collection
}

func NewMongo(db *mongo.Database, collection string) *Mongo {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Mongo{coll: db.Collection(collection)}
}

// EnsureIndexes creates the lookup index on dispatch_id and, when ttl is
// positive, a TTL index on started_at.
func (m *Mongo) EnsureIndexes(ctx context.Context, ttl time.Duration) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "dispatch_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	if ttl > 0 {
		models = append(models, mongo.IndexModel{
			Keys:    bson.D{{Key: "started_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(ttl / time.Second)),
		})
	}
	if _, err := m.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create push log indexes: %w", err)
	}
	return nil
}

func (m *Mongo) Record(ctx context.Context, entry push.LogEntry) error {
	if _, err := m.coll.InsertOne(ctx, newDispatchDocument(entry)); err != nil {
		return fmt.Errorf("insert push log entry: %w", err)
	}
	return nil
}

type dispatchDocument struct {
	DispatchID      string            `bson:"dispatch_id"`
	Title           string            `bson:"title"`
	Body            string            `bson:"body"`
	Target          string            `bson:"target,omitempty"`
	Data            map[string]string `bson:"data,omitempty"`
	TotalTargeted   int               `bson:"total_targeted"`
	Succeeded       int               `bson:"succeeded"`
	FailedTransient int               `bson:"failed_transient"`
	FailedPermanent int               `bson:"failed_permanent"`
	Attempts        []attemptDocument `bson:"attempts"`
	StartedAt       time.Time         `bson:"started_at"`
	DurationMS      int64             `bson:"duration_ms"`
}

type attemptDocument struct {
	Identity   string `bson:"identity"`
	Channel    string `bson:"channel"`
	Endpoint   string `bson:"endpoint,omitempty"`
	Status     string `bson:"status"`
	Reason     string `bson:"reason,omitempty"`
	DurationMS int64  `bson:"duration_ms"`
}

func newDispatchDocument(e push.LogEntry) dispatchDocument {
	attempts := make([]attemptDocument, len(e.Attempts))
	for i, a := range e.Attempts {
		attempts[i] = attemptDocument{
			Identity:   a.Identity,
			Channel:    string(a.Channel),
			Endpoint:   a.Endpoint,
			Status:     a.Status,
			Reason:     a.Reason,
			DurationMS: a.Duration.Milliseconds(),
		}
	}
	return dispatchDocument{
		DispatchID:      e.DispatchID,
		Title:           e.Title,
		Body:            e.Body,
		Target:          e.Target,
		Data:            e.Data,
		TotalTargeted:   e.Result.TotalTargeted,
		Succeeded:       e.Result.Succeeded,
		FailedTransient: e.Result.FailedTransient,
		FailedPermanent: e.Result.FailedPermanent,
		Attempts:        attempts,
		StartedAt:       e.StartedAt,
		DurationMS:      e.Duration.Milliseconds(),
	}
}
