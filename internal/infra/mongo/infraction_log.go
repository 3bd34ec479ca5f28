// Package mongo keeps the integrity audit trail in MongoDB.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"proctored-quiz-engine/internal/domain"
)

// infractionDoc is one stored infraction.
type infractionDoc struct {
	SessionID string            `bson:"sessionId"`
	Kind      string            `bson:"kind"`
	Weight    int               `bson:"weight"`
	Score     int               `bson:"score"`
	Metadata  map[string]string `bson:"metadata,omitempty"`
	At        time.Time         `bson:"at"`
}

// InfractionLog implements integrity.Recorder on a MongoDB collection.
type InfractionLog struct {
	collection *mongo.Collection
}

func NewInfractionLog(db *mongo.Database) *InfractionLog {
	return &InfractionLog{collection: db.Collection("infractions")}
}

// EnsureIndexes creates the session lookup index.
func (l *InfractionLog) EnsureIndexes(ctx context.Context) error {
	_, err := l.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "sessionId", Value: 1}, {Key: "at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create infraction index: %w", err)
	}
	return nil
}

func (l *InfractionLog) Record(ctx context.Context, sessionID string, infraction domain.Infraction) error {
	doc := infractionDoc{
		SessionID: sessionID,
		Kind:      string(infraction.Kind),
		Weight:    infraction.Weight,
		Score:     infraction.Score,
		Metadata:  infraction.Metadata,
		At:        infraction.At,
	}
	if doc.At.IsZero() {
		doc.At = time.Now().UTC()
	}
	if _, err := l.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert infraction: %w", err)
	}
	return nil
}

// List returns the infractions of a session in the order they were scored.
func (l *InfractionLog) List(ctx context.Context, sessionID string) ([]domain.Infraction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "score", Value: 1}, {Key: "at", Value: 1}})
	cursor, err := l.collection.Find(ctx, bson.M{"sessionId": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find infractions: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []infractionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode infractions: %w", err)
	}
	out := make([]domain.Infraction, len(docs))
	for i, d := range docs {
		out[i] = domain.Infraction{
			Kind:     domain.InfractionKind(d.Kind),
			Weight:   d.Weight,
			Score:    d.Score,
			Metadata: d.Metadata,
			At:       d.At.UTC(),
		}
	}
	return out, nil
}

// Connect opens a client and verifies the deployment is reachable.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}
