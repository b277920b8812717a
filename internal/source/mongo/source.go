// Package mongo feeds a MongoDB collection's change stream into the change
// queue.
package mongo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/guidewire-oss/nosql2sql/internal/config"
	"github.com/guidewire-oss/nosql2sql/internal/mapping"
	"github.com/guidewire-oss/nosql2sql/internal/replication"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultReconnectDelay = time.Second

// Submitter accepts batches of mutations. *replication.Queue satisfies it.
type Submitter interface {
	Submit(ctx context.Context, batch []replication.Mutation) error
}

// ChangeStream is the cursor surface used from *mongo.ChangeStream.
type ChangeStream interface {
	Next(ctx context.Context) bool
	Decode(val any) error
	Err() error
	Close(ctx context.Context) error
}

// RawEvent is a change stream event as delivered by the server.
type RawEvent struct {
	OperationType string   `bson:"operationType"`
	FullDocument  bson.M   `bson:"fullDocument,omitempty"`
	DocumentKey   bson.M   `bson:"documentKey"`
	ResumeToken   bson.Raw `bson:"_id"`
}

// Source tails one collection and submits each change as a one-record batch.
type Source struct {
	open           func(ctx context.Context, resumeAfter bson.Raw) (ChangeStream, error)
	queue          Submitter
	logger         *slog.Logger
	reconnectDelay time.Duration

	resumeToken bson.Raw
}

// Connect opens a client for uri and verifies it with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return client, nil
}

func New(client *mongo.Client, cfg config.MongoSourceConfig, queue Submitter, logger *slog.Logger) *Source {
	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	open := func(ctx context.Context, resumeAfter bson.Raw) (ChangeStream, error) {
		opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
		if resumeAfter != nil {
			opts.SetResumeAfter(resumeAfter)
		}
		stream, err := coll.Watch(ctx, mongo.Pipeline{}, opts)
		if err != nil {
			return nil, err
		}
		return stream, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return newSource(open, queue, logger.With("database", cfg.Database, "collection", cfg.Collection))
}

func newSource(open func(context.Context, bson.Raw) (ChangeStream, error), queue Submitter, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		open:           open,
		queue:          queue,
		logger:         logger.With("component", "mongo-source"),
		reconnectDelay: defaultReconnectDelay,
	}
}

// Run watches until ctx is cancelled, reopening the stream after errors and
// resuming after the last event it handled.
func (s *Source) Run(ctx context.Context) error {
	for {
		err := s.watch(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			s.logger.Error("change stream error, reconnecting", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *Source) watch(ctx context.Context) error {
	stream, err := s.open(ctx, s.resumeToken)
	if err != nil {
		return fmt.Errorf("failed to open change stream: %w", err)
	}
	defer stream.Close(context.WithoutCancel(ctx))

	if s.resumeToken != nil {
		s.logger.Info("change stream resumed")
	} else {
		s.logger.Info("change stream opened")
	}

	for stream.Next(ctx) {
		var raw RawEvent
		if err := stream.Decode(&raw); err != nil {
			s.logger.Error("failed to decode event", "error", err)
			continue
		}

		m, ok := ToMutation(&raw)
		if ok {
			if err := s.queue.Submit(ctx, []replication.Mutation{m}); err != nil {
				return fmt.Errorf("failed to submit change: %w", err)
			}
		} else {
			s.logger.Debug("ignoring change event", "operation", raw.OperationType)
		}
		s.resumeToken = raw.ResumeToken
	}

	return stream.Err()
}

// ToMutation converts a change event. Inserts and updates carry the full
// document; deletes carry only the document key. Other operations, and
// updates whose document is already gone, report false.
func ToMutation(raw *RawEvent) (replication.Mutation, bool) {
	switch raw.OperationType {
	case "insert":
		if raw.FullDocument == nil {
			return replication.Mutation{}, false
		}
		return replication.Mutation{Document: ConvertDocument(raw.FullDocument), Kind: replication.Insert}, true
	case "update", "replace":
		if raw.FullDocument == nil {
			return replication.Mutation{}, false
		}
		return replication.Mutation{Document: ConvertDocument(raw.FullDocument), Kind: replication.Update}, true
	case "delete":
		return replication.Mutation{Document: ConvertDocument(raw.DocumentKey), Kind: replication.Delete}, true
	default:
		return replication.Mutation{}, false
	}
}

// ConvertDocument converts a BSON document into the document value model.
func ConvertDocument(m bson.M) mapping.Document {
	doc := make(mapping.Document, len(m))
	for k, v := range m {
		doc[k] = convertValue(v)
	}
	return doc
}

func convertValue(v any) any {
	switch val := v.(type) {
	case bson.M:
		return map[string]any(ConvertDocument(val))
	case bson.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = convertValue(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = convertValue(item)
		}
		return out
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time().UTC().Format(time.RFC3339Nano)
	case primitive.Timestamp:
		return map[string]any{"T": json.Number(fmt.Sprint(val.T)), "I": json.Number(fmt.Sprint(val.I))}
	case primitive.Decimal128:
		return json.Number(val.String())
	case primitive.Binary:
		return base64.StdEncoding.EncodeToString(val.Data)
	case primitive.Null, primitive.Undefined:
		return nil
	default:
		return v
	}
}
