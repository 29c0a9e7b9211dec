package deadletter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/msgbus/pkg/msgbus"
)

type payload struct {
	N int
}

func newMsg(id string) msgbus.Message {
	return msgbus.NewMessage(payload{N: 1}, msgbus.WithMessageID(id))
}

// process runs msg through handler wrapped in the dead letter middleware.
func process(t *testing.T, q Queue, handler msgbus.TransmissionDelegate, msg msgbus.Message, opts ...Option) error {
	t.Helper()
	base := msgbus.NewReceiverBase(msgbus.ReceiverActivation{
		Descriptor: msgbus.NewReceiverDescriptor("orders", "test", nil),
		Delegate:   msgbus.Chain(handler, Middleware(q, opts...)),
		Resolver:   msgbus.NewContainer(),
	})
	return base.ProcessTransmission(context.Background(), msg, nil)
}

func TestMiddleware_RecordsAndPropagates(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig)
	boom := errors.New("boom")

	err := process(t, q, func(msgbus.TransmissionContext) error { return boom }, newMsg("m1"))
	assert.ErrorIs(t, err, boom)

	entries, err := q.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "orders", entries[0].ReceiverID)
	assert.Equal(t, "m1", entries[0].MessageID)
	assert.Equal(t, "boom", entries[0].Error)
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, entries[0].FailedAt.IsZero())
}

func TestMiddleware_SuccessNotRecorded(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig)

	require.NoError(t, process(t, q, func(msgbus.TransmissionContext) error { return nil }, newMsg("m1")))

	count, err := q.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMiddleware_SkipIf(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig)
	handler := func(msgbus.TransmissionContext) error { return msgbus.ErrUnexpectedMessage }

	err := process(t, q, handler, newMsg("m1"), SkipIf(func(err error) bool {
		return errors.Is(err, msgbus.ErrUnexpectedMessage)
	}))
	assert.ErrorIs(t, err, msgbus.ErrUnexpectedMessage)

	count, _ := q.Count(context.Background())
	assert.Zero(t, count)
}

func TestMiddleware_QueueFullStillReturnsOriginalError(t *testing.T) {
	q := NewMemoryQueue(Config{MaxSize: 1})
	boom := errors.New("boom")
	handler := func(msgbus.TransmissionContext) error { return boom }

	require.ErrorIs(t, process(t, q, handler, newMsg("m1")), boom)
	err := process(t, q, handler, newMsg("m2"))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrQueueFull)

	assert.Equal(t, 1, q.Stats().QueueSize)
}

func TestMiddleware_NilQueuePanics(t *testing.T) {
	assert.PanicsWithValue(t, "deadletter: queue cannot be nil", func() {
		Middleware(nil)
	})
}

func TestMemoryQueue_OrderAndLimit(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(DefaultConfig)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, &Entry{ID: id}))
	}

	all, err := q.List(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, entryIDs(all))

	two, err := q.List(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, entryIDs(two))
}

func TestMemoryQueue_Acknowledge(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(DefaultConfig)
	require.NoError(t, q.Enqueue(ctx, &Entry{ID: "a"}))

	require.NoError(t, q.Acknowledge(ctx, "a"))
	assert.ErrorIs(t, q.Acknowledge(ctx, "a"), ErrEntryNotFound)

	stats := q.Stats()
	assert.Equal(t, int64(1), stats.Enqueued)
	assert.Equal(t, int64(1), stats.Acknowledged)
	assert.Zero(t, stats.QueueSize)
}

func TestMemoryQueue_DuplicateAndNil(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(DefaultConfig)
	require.NoError(t, q.Enqueue(ctx, &Entry{ID: "a"}))
	assert.Error(t, q.Enqueue(ctx, &Entry{ID: "a"}))
	assert.Error(t, q.Enqueue(ctx, nil))

	generated := &Entry{}
	require.NoError(t, q.Enqueue(ctx, generated))
	assert.NotEmpty(t, generated.ID)
}

func TestMemoryQueue_ParkAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	var parked []string
	q := NewMemoryQueue(Config{MaxAttempts: 2, OnPark: func(e *Entry) { parked = append(parked, e.ID) }})
	require.NoError(t, q.Enqueue(ctx, &Entry{ID: "a"}))

	require.NoError(t, q.RecordFailure(ctx, "a", errors.New("again")))
	count, _ := q.Count(ctx)
	assert.Equal(t, 1, count)

	require.NoError(t, q.RecordFailure(ctx, "a", errors.New("still")))
	count, _ = q.Count(ctx)
	assert.Zero(t, count)
	assert.Equal(t, []string{"a"}, parked)

	parkedEntries, err := q.ListParked(ctx, 0)
	require.NoError(t, err)
	require.Len(t, parkedEntries, 1)
	assert.Equal(t, "still", parkedEntries[0].Error)
	assert.Equal(t, 2, parkedEntries[0].Attempts)

	require.NoError(t, q.Unpark(ctx, "a"))
	count, _ = q.Count(ctx)
	assert.Equal(t, 1, count)
	assert.ErrorIs(t, q.Unpark(ctx, "a"), ErrEntryNotFound)
	assert.ErrorIs(t, q.RecordFailure(ctx, "missing", nil), ErrEntryNotFound)
}

func TestReplay(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(Config{MaxAttempts: 1})
	for _, id := range []string{"ok-1", "bad", "ok-2"} {
		require.NoError(t, q.Enqueue(ctx, &Entry{ID: id, MessageID: id}))
	}

	var seen []string
	stats, err := Replay(ctx, q, func(_ context.Context, e *Entry) error {
		seen = append(seen, e.ID)
		if e.ID == "bad" {
			return errors.New("still failing")
		}
		return nil
	}, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"ok-1", "bad", "ok-2"}, seen)
	assert.Equal(t, ReplayStats{Replayed: 3, Succeeded: 2, Failed: 1}, stats)

	// "bad" reached MaxAttempts and is parked
	s := q.Stats()
	assert.Zero(t, s.QueueSize)
	assert.Equal(t, 1, s.ParkedSize)
}

func TestReplay_CancelledContext(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig)
	require.NoError(t, q.Enqueue(context.Background(), &Entry{ID: "a"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := Replay(ctx, q, func(context.Context, *Entry) error { return nil }, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stats.Replayed)
}

func TestNewEntry(t *testing.T) {
	e := NewEntry("r", nil, nil)
	assert.Empty(t, e.MessageID)
	assert.Empty(t, e.Error)
	assert.NotEmpty(t, e.ID)
}

func entryIDs(entries []*Entry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return ids
}
