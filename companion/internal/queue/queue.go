package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// PendingBatch is one durable row awaiting retry. Payload holds the
// serialized sample batch exactly as it would have been sent directly.
type PendingBatch struct {
	ID        int64
	SessionID int64
	SubjectID string
	Payload   []byte
	CreatedAt int64 // unix milliseconds
}

// Store persists pending batches in a local sqlite database.
type Store struct {
	db  *sql.DB
	now func() time.Time // injectable for deterministic ordering tests
}

// Open creates the database file if needed, initializes the schema and
// returns the store. WAL mode keeps the insert path from blocking readers.
func Open(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}

	if _, err := db.Exec(initSchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init queue schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Insert persists one failed batch. The write is the unit of durability:
// when it fails the batch is lost (the caller logs and continues).
func (s *Store) Insert(ctx context.Context, sessionID int64, subjectID string, payload []byte) error {
	_, err := s.db.ExecContext(ctx, insertBatchSQL,
		sessionID, subjectID, payload, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert pending batch: %w", err)
	}
	return nil
}

// OldestPending returns up to limit rows, strictly oldest-first. The id
// tiebreak keeps rows created in the same millisecond in insert order.
func (s *Store) OldestPending(ctx context.Context, limit int) ([]PendingBatch, error) {
	rows, err := s.db.QueryContext(ctx, selectOldestSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending batches: %w", err)
	}
	defer rows.Close()

	var out []PendingBatch
	for rows.Next() {
		var b PendingBatch
		if err := rows.Scan(&b.ID, &b.SessionID, &b.SubjectID, &b.Payload, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending batch: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending batches: %w", err)
	}
	return out, nil
}

// Delete removes the rows with the given ids. Called by the uploader only
// after a successful upload or a definitive rejection for the group.
func (s *Store) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	q := fmt.Sprintf("DELETE FROM pending_batches WHERE id IN (%s)", placeholders)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("delete pending batches: %w", err)
	}
	return nil
}

// DeleteSession removes every row for the given session, uploaded or not.
// Stopping a session is user intent to abandon its unsent backlog.
func (s *Store) DeleteSession(ctx context.Context, sessionID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, deleteBySessionSQL, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete session backlog: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted rows: %w", err)
	}
	return n, nil
}

// Count returns the total number of pending rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, countPendingSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending batches: %w", err)
	}
	return n, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
