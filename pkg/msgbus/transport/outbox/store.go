package outbox

import (
	"context"
	"errors"
	"time"
)

// Store persists outgoing records until a relay has delivered them.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append stores data under topic and returns the stored record.
	// Sequence numbers increase with every append across all topics.
	Append(ctx context.Context, topic string, data []byte) (Record, error)

	// Pending returns undelivered records matching q, ordered by sequence.
	// Returns an empty slice (not error) when nothing is pending.
	Pending(ctx context.Context, q Query) ([]Record, error)

	// MarkDelivered flags a record as delivered.
	// Returns ErrNotFound if the record doesn't exist.
	MarkDelivered(ctx context.Context, id string) error

	// MarkFailed increments a record's attempt count and stores cause.
	// Returns ErrNotFound if the record doesn't exist.
	MarkFailed(ctx context.Context, id string, cause error) error

	// Close releases any resources (connections, files).
	Close() error
}

// Record is one stored outgoing message.
type Record struct {
	ID          string
	Topic       string
	Sequence    int64
	Data        []byte
	CreatedAt   time.Time
	DeliveredAt time.Time
	Attempts    int
	LastError   string
}

// Delivered reports whether a relay has delivered the record.
func (r Record) Delivered() bool {
	return !r.DeliveredAt.IsZero()
}

// Query selects pending records.
type Query struct {
	Topic string

	// Limit caps the result size; 0 means no limit.
	Limit int

	// MaxAttempts excludes records that have failed this many times;
	// 0 means no cap.
	MaxAttempts int
}

func (q Query) matches(r *Record) bool {
	if r.Delivered() || r.Topic != q.Topic {
		return false
	}
	return q.MaxAttempts <= 0 || r.Attempts < q.MaxAttempts
}

var (
	// ErrNotFound indicates a record doesn't exist.
	ErrNotFound = errors.New("outbox record not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("outbox store closed")
)

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
