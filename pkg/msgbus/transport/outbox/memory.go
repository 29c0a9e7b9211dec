package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/msgbus/pkg/msgbus/registry"
)

// MemoryStore keeps records in process memory, in append order.
// Data is lost when the process exits.
type MemoryStore struct {
	mu      sync.Mutex
	records *registry.Registry[string, *Record]
	seq     int64
	closed  bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: registry.New[string, *Record]()}
}

// Append implements Store.
func (m *MemoryStore) Append(_ context.Context, topic string, data []byte) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Record{}, ErrStoreClosed
	}

	m.seq++
	rec := &Record{
		ID:        uuid.NewString(),
		Topic:     topic,
		Sequence:  m.seq,
		Data:      append([]byte(nil), data...),
		CreatedAt: time.Now().UTC(),
	}
	if err := m.records.Add(rec.ID, rec); err != nil {
		return Record{}, err
	}
	return *rec, nil
}

// Pending implements Store.
func (m *MemoryStore) Pending(_ context.Context, q Query) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	out := []Record{}
	m.records.Range(func(_ string, r *Record) bool {
		if q.matches(r) {
			out = append(out, *r)
		}
		return q.Limit <= 0 || len(out) < q.Limit
	})
	return out, nil
}

// MarkDelivered implements Store.
func (m *MemoryStore) MarkDelivered(_ context.Context, id string) error {
	return m.update(id, func(r *Record) {
		r.DeliveredAt = time.Now().UTC()
	})
}

// MarkFailed implements Store.
func (m *MemoryStore) MarkFailed(_ context.Context, id string, cause error) error {
	return m.update(id, func(r *Record) {
		r.Attempts++
		r.LastError = errorText(cause)
	})
}

func (m *MemoryStore) update(id string, fn func(*Record)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	rec, ok := m.records.Get(id)
	if !ok {
		return ErrNotFound
	}
	fn(rec)
	return nil
}

// Get returns a copy of the record with id.
func (m *MemoryStore) Get(id string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records.Get(id)
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
