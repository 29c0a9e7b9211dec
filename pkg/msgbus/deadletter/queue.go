package deadletter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/msgbus/pkg/msgbus"
	"github.com/randalmurphal/msgbus/pkg/msgbus/registry"
)

// Sentinel errors.
var (
	// ErrQueueFull indicates the queue reached MaxSize.
	ErrQueueFull = errors.New("dead letter queue is full")

	// ErrEntryNotFound indicates no entry exists with the given id.
	ErrEntryNotFound = errors.New("dead letter entry not found")
)

// Entry records one delivery that failed on a receiver.
type Entry struct {
	ID         string         `json:"id"`
	ReceiverID string         `json:"receiver_id"`
	MessageID  string         `json:"message_id"`
	Message    msgbus.Message `json:"message"`
	Error      string         `json:"error"`

	// Attempts counts failed replays after the original failure.
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`

	// Parked entries exceeded MaxAttempts and are no longer listed for replay.
	Parked bool `json:"parked"`
}

// NewEntry creates an entry for a failed delivery.
func NewEntry(receiverID string, msg msgbus.Message, err error) *Entry {
	e := &Entry{
		ID:         uuid.New().String(),
		ReceiverID: receiverID,
		Message:    msg,
		FailedAt:   time.Now(),
	}
	if msg != nil {
		e.MessageID = msg.MessageID()
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Queue stores failed deliveries.
type Queue interface {
	// Enqueue adds an entry.
	Enqueue(ctx context.Context, entry *Entry) error

	// List returns up to limit unparked entries, oldest first.
	// A limit <= 0 returns all of them.
	List(ctx context.Context, limit int) ([]*Entry, error)

	// Acknowledge removes an entry after it was handled.
	Acknowledge(ctx context.Context, id string) error

	// Count returns the number of unparked entries.
	Count(ctx context.Context) (int, error)
}

// Config configures a MemoryQueue.
type Config struct {
	// MaxSize limits the number of stored entries, parked included.
	// Default: 10000
	MaxSize int

	// MaxAttempts parks an entry after this many failed replays.
	// Default: 5
	MaxAttempts int

	// OnEnqueue is called after an entry is stored.
	OnEnqueue func(*Entry)

	// OnPark is called when an entry is parked.
	OnPark func(*Entry)
}

// DefaultConfig provides reasonable defaults.
var DefaultConfig = Config{
	MaxSize:     10000,
	MaxAttempts: 5,
}

// Stats summarizes queue activity.
type Stats struct {
	QueueSize    int   // Current unparked entries
	ParkedSize   int   // Current parked entries
	Enqueued     int64 // Total entries enqueued
	Acknowledged int64 // Total entries acknowledged
	Parked       int64 // Total entries parked
}

// MemoryQueue is an in-memory Queue that keeps entries in arrival order.
// Suitable for testing and single-instance deployments.
type MemoryQueue struct {
	cfg     Config
	entries *registry.Registry[string, *Entry]

	mu           sync.Mutex
	enqueued     int64
	acknowledged int64
	parked       int64
}

var _ Queue = (*MemoryQueue)(nil)

// NewMemoryQueue creates an in-memory queue.
func NewMemoryQueue(cfg Config) *MemoryQueue {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultConfig.MaxSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig.MaxAttempts
	}
	return &MemoryQueue{
		cfg:     cfg,
		entries: registry.New[string, *Entry](),
	}
}

// Enqueue adds an entry. Entries without an id get one.
func (q *MemoryQueue) Enqueue(_ context.Context, entry *Entry) error {
	if entry == nil {
		return errors.New("deadletter: entry cannot be nil")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.entries.Len() >= q.cfg.MaxSize {
		return ErrQueueFull
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.FailedAt.IsZero() {
		entry.FailedAt = time.Now()
	}
	if err := q.entries.Add(entry.ID, entry); err != nil {
		return fmt.Errorf("enqueue %s: %w", entry.ID, err)
	}
	q.enqueued++

	if q.cfg.OnEnqueue != nil {
		q.cfg.OnEnqueue(entry)
	}
	return nil
}

// List returns unparked entries, oldest first.
func (q *MemoryQueue) List(_ context.Context, limit int) ([]*Entry, error) {
	return q.filter(false, limit), nil
}

// ListParked returns parked entries, oldest first.
func (q *MemoryQueue) ListParked(_ context.Context, limit int) ([]*Entry, error) {
	return q.filter(true, limit), nil
}

func (q *MemoryQueue) filter(parked bool, limit int) []*Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*Entry
	q.entries.Range(func(_ string, e *Entry) bool {
		if e.Parked == parked {
			out = append(out, e)
		}
		return limit <= 0 || len(out) < limit
	})
	return out
}

// Acknowledge removes an entry.
func (q *MemoryQueue) Acknowledge(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.entries.Has(id) {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	q.entries.Delete(id)
	q.acknowledged++
	return nil
}

// RecordFailure notes a failed replay and parks the entry once it reaches
// MaxAttempts.
func (q *MemoryQueue) RecordFailure(_ context.Context, id string, err error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	e.Attempts++
	if err != nil {
		e.Error = err.Error()
	}
	if e.Attempts >= q.cfg.MaxAttempts && !e.Parked {
		e.Parked = true
		q.parked++
		if q.cfg.OnPark != nil {
			q.cfg.OnPark(e)
		}
	}
	return nil
}

// Unpark makes a parked entry eligible for replay again, with its attempt
// count reset.
func (q *MemoryQueue) Unpark(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries.Get(id)
	if !ok || !e.Parked {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	e.Parked = false
	e.Attempts = 0
	return nil
}

// Count returns the number of unparked entries.
func (q *MemoryQueue) Count(ctx context.Context) (int, error) {
	entries, err := q.List(ctx, 0)
	return len(entries), err
}

// Stats returns queue statistics.
func (q *MemoryQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{
		Enqueued:     q.enqueued,
		Acknowledged: q.acknowledged,
		Parked:       q.parked,
	}
	q.entries.Range(func(_ string, e *Entry) bool {
		if e.Parked {
			s.ParkedSize++
		} else {
			s.QueueSize++
		}
		return true
	})
	return s
}
