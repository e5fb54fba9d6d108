package queue

const initSchemaSQL = `
CREATE TABLE IF NOT EXISTS pending_batches (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER NOT NULL,
    subject_id TEXT    NOT NULL,
    payload    BLOB    NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pending_created ON pending_batches (created_at, id);
CREATE INDEX IF NOT EXISTS idx_pending_session ON pending_batches (session_id);`

const (
	insertBatchSQL = `
INSERT INTO pending_batches (session_id,
                             subject_id,
                             payload,
                             created_at)
VALUES (?, ?, ?, ?)`

	selectOldestSQL = `
SELECT
    id,
    session_id,
    subject_id,
    payload,
    created_at
FROM pending_batches
ORDER BY created_at ASC, id ASC
LIMIT ?`

	deleteBySessionSQL = `
DELETE FROM pending_batches
WHERE
    session_id = ?`

	countPendingSQL = `
SELECT COUNT(*) FROM pending_batches`
)
