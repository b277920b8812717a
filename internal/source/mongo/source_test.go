package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/guidewire-oss/nosql2sql/internal/mapping"
	"github.com/guidewire-oss/nosql2sql/internal/replication"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeStream struct {
	events []bson.M
	pos    int
	err    error
	closed bool
}

func (f *fakeStream) Next(ctx context.Context) bool {
	if ctx.Err() != nil || f.pos >= len(f.events) {
		return false
	}
	f.pos++
	return true
}

func (f *fakeStream) Decode(val any) error {
	data, err := bson.Marshal(f.events[f.pos-1])
	if err != nil {
		return err
	}
	return bson.Unmarshal(data, val)
}

func (f *fakeStream) Err() error { return f.err }

func (f *fakeStream) Close(context.Context) error {
	f.closed = true
	return nil
}

type fakeQueue struct {
	mu      sync.Mutex
	batches [][]replication.Mutation
	err     error
}

func (q *fakeQueue) Submit(_ context.Context, batch []replication.Mutation) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.batches = append(q.batches, batch)
	return nil
}

func (q *fakeQueue) kinds() []replication.MutationKind {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []replication.MutationKind
	for _, b := range q.batches {
		for _, m := range b {
			out = append(out, m.Kind)
		}
	}
	return out
}

func event(op string, token string, full, key bson.M) bson.M {
	e := bson.M{"operationType": op, "_id": bson.M{"_data": token}, "documentKey": key}
	if full != nil {
		e["fullDocument"] = full
	}
	return e
}

func TestToMutation(t *testing.T) {
	full := bson.M{"_id": "1", "recordType": "order"}
	key := bson.M{"_id": "1"}

	m, ok := ToMutation(&RawEvent{OperationType: "insert", FullDocument: full, DocumentKey: key})
	require.True(t, ok)
	assert.Equal(t, replication.Insert, m.Kind)
	assert.Equal(t, mapping.Document{"_id": "1", "recordType": "order"}, m.Document)

	m, ok = ToMutation(&RawEvent{OperationType: "replace", FullDocument: full, DocumentKey: key})
	require.True(t, ok)
	assert.Equal(t, replication.Update, m.Kind)

	m, ok = ToMutation(&RawEvent{OperationType: "delete", DocumentKey: key})
	require.True(t, ok)
	assert.Equal(t, replication.Delete, m.Kind)
	assert.Equal(t, mapping.Document{"_id": "1"}, m.Document)

	_, ok = ToMutation(&RawEvent{OperationType: "update", DocumentKey: key})
	assert.False(t, ok)

	_, ok = ToMutation(&RawEvent{OperationType: "drop"})
	assert.False(t, ok)
}

func TestConvertDocument(t *testing.T) {
	oid := primitive.NewObjectID()
	dec, err := primitive.ParseDecimal128("12.50")
	require.NoError(t, err)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	doc := ConvertDocument(bson.M{
		"id":      oid,
		"price":   dec,
		"at":      primitive.NewDateTimeFromTime(at),
		"blob":    primitive.Binary{Data: []byte("hi")},
		"nested":  bson.M{"inner": bson.D{{Key: "k", Value: int32(1)}}},
		"tags":    bson.A{"a", oid},
		"missing": primitive.Null{},
	})

	assert.Equal(t, oid.Hex(), doc["id"])
	assert.Equal(t, json.Number("12.50"), doc["price"])
	assert.Equal(t, "2024-05-01T12:00:00Z", doc["at"])
	assert.Equal(t, "aGk=", doc["blob"])
	assert.Equal(t, map[string]any{"inner": map[string]any{"k": int32(1)}}, doc["nested"])
	assert.Equal(t, []any{"a", oid.Hex()}, doc["tags"])
	assert.Nil(t, doc["missing"])
	assert.Equal(t, mapping.KindArray, mapping.KindOf(doc["tags"]))
}

func TestSource_WatchSubmitsAndResumes(t *testing.T) {
	first := &fakeStream{
		events: []bson.M{
			event("insert", "t1", bson.M{"_id": "1", "n": int32(1)}, bson.M{"_id": "1"}),
			event("invalidate", "t2", nil, nil),
			event("delete", "t3", nil, bson.M{"_id": "1"}),
		},
		err: errors.New("connection reset"),
	}
	second := &fakeStream{events: []bson.M{
		event("update", "t4", bson.M{"_id": "2"}, bson.M{"_id": "2"}),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var resumes []bson.Raw
	opens := 0
	open := func(_ context.Context, resumeAfter bson.Raw) (ChangeStream, error) {
		mu.Lock()
		defer mu.Unlock()
		resumes = append(resumes, resumeAfter)
		opens++
		switch opens {
		case 1:
			return first, nil
		case 2:
			return second, nil
		default:
			cancel()
			return nil, context.Canceled
		}
	}

	q := &fakeQueue{}
	s := newSource(open, q, nil)
	s.reconnectDelay = time.Millisecond

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("source did not stop")
	}

	assert.Equal(t, []replication.MutationKind{replication.Insert, replication.Delete, replication.Update}, q.kinds())
	assert.True(t, first.closed)
	assert.True(t, second.closed)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(resumes), 2)
	assert.Nil(t, resumes[0])
	require.NotNil(t, resumes[1])
	assert.Equal(t, "t3", resumes[1].Lookup("_data").StringValue())
}

func TestSource_SubmitErrorReopens(t *testing.T) {
	stream := &fakeStream{events: []bson.M{
		event("insert", "t1", bson.M{"_id": "1"}, bson.M{"_id": "1"}),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opens := 0
	open := func(context.Context, bson.Raw) (ChangeStream, error) {
		opens++
		if opens > 1 {
			cancel()
			return nil, context.Canceled
		}
		return stream, nil
	}

	s := newSource(open, &fakeQueue{err: replication.ErrQueueClosed}, nil)
	s.reconnectDelay = time.Millisecond

	require.NoError(t, s.Run(ctx))
	assert.Equal(t, 2, opens)
	assert.Nil(t, s.resumeToken)
}
