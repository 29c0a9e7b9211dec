package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists records to SQLite. It is suitable for single-process
// production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the outbox database at path.
// ":memory:" gives a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps ":memory:" a single database and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS outbox (
			sequence INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			topic TEXT NOT NULL,
			data BLOB NOT NULL,
			created_at TEXT NOT NULL,
			delivered_at TEXT,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT ''
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_outbox_pending
		ON outbox(topic, delivered_at, sequence)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, topic string, data []byte) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Record{}, ErrStoreClosed
	}

	rec := Record{
		ID:        uuid.NewString(),
		Topic:     topic,
		Data:      append([]byte{}, data...),
		CreatedAt: time.Now().UTC(),
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO outbox (id, topic, data, created_at)
		VALUES (?, ?, ?, ?)
	`, rec.ID, rec.Topic, rec.Data, rec.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Record{}, fmt.Errorf("append record: %w", err)
	}
	if rec.Sequence, err = res.LastInsertId(); err != nil {
		return Record{}, fmt.Errorf("append record: %w", err)
	}
	return rec, nil
}

// Pending implements Store.
func (s *SQLiteStore) Pending(ctx context.Context, q Query) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	limit := q.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	maxAttempts := q.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = int(^uint(0) >> 1)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, id, data, created_at, attempts, last_error
		FROM outbox
		WHERE topic = ? AND delivered_at IS NULL AND attempts < ?
		ORDER BY sequence
		LIMIT ?
	`, q.Topic, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec := Record{Topic: q.Topic}
		var created string
		if err := rows.Scan(&rec.Sequence, &rec.ID, &rec.Data, &created, &rec.Attempts, &rec.LastError); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// MarkDelivered implements Store.
func (s *SQLiteStore) MarkDelivered(ctx context.Context, id string) error {
	return s.update(ctx, "mark delivered", `
		UPDATE outbox SET delivered_at = ? WHERE id = ?
	`, time.Now().UTC().Format(time.RFC3339Nano), id)
}

// MarkFailed implements Store.
func (s *SQLiteStore) MarkFailed(ctx context.Context, id string, cause error) error {
	return s.update(ctx, "mark failed", `
		UPDATE outbox SET attempts = attempts + 1, last_error = ? WHERE id = ?
	`, errorText(cause), id)
}

func (s *SQLiteStore) update(ctx context.Context, op, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get loads a record by id, delivered or not.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Record{}, ErrStoreClosed
	}

	rec := Record{ID: id}
	var created string
	var delivered sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT sequence, topic, data, created_at, delivered_at, attempts, last_error
		FROM outbox WHERE id = ?
	`, id).Scan(&rec.Sequence, &rec.Topic, &rec.Data, &created, &delivered, &rec.Attempts, &rec.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get record: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	if delivered.Valid {
		rec.DeliveredAt, _ = time.Parse(time.RFC3339Nano, delivered.String)
	}
	return rec, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
