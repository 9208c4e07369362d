package queue

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/romega/certforge/pkg/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS email_queue (
	id                TEXT PRIMARY KEY,
	recipient_email   TEXT NOT NULL,
	recipient_name    TEXT NOT NULL,
	subject           TEXT NOT NULL,
	message           TEXT NOT NULL,
	certificate_image TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'pending',
	error_message     TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMP NOT NULL,
	sent_at           TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_email_queue_status ON email_queue(status);
CREATE INDEX IF NOT EXISTS idx_email_queue_created ON email_queue(created_at);
`

// SQLiteStore persists the queue in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the queue database at path.
// Use ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueue, err, "open queue database %s", path)
	}

	// SQLite handles one writer at a time; serializing connections avoids
	// SQLITE_BUSY under concurrent API calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.ErrCodeQueue, err, "migrate queue database %s", path)
	}
	return &SQLiteStore{db: db}, nil
}

// Enqueue inserts an item.
func (s *SQLiteStore) Enqueue(ctx context.Context, item *Item) error {
	prepare(item)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_queue
			(id, recipient_email, recipient_name, subject, message, certificate_image, status, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.RecipientEmail, item.RecipientName, item.Subject,
		item.Message, item.CertificateImage, item.Status, item.ErrorMessage,
		item.CreatedAt)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueue, err, "enqueue item for %s", item.RecipientEmail)
	}
	return nil
}

// Get returns the item with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, recipient_email, recipient_name, subject, message,
		       certificate_image, status, error_message, created_at, sent_at
		FROM email_queue WHERE id = ?`, id)

	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrCodeNotFound, "queue item %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueue, err, "get queue item %s", id)
	}
	return item, nil
}

// List returns items newest-first, honoring the filters.
func (s *SQLiteStore) List(ctx context.Context, f Filters) ([]Item, error) {
	query := `
		SELECT id, recipient_email, recipient_name, subject, message,
		       certificate_image, status, error_message, created_at, sent_at
		FROM email_queue`
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, `status = ?`)
		args = append(args, f.Status)
	}
	if f.Search != "" {
		where = append(where, `(recipient_name LIKE ? OR recipient_email LIKE ?)`)
		term := "%" + f.Search + "%"
		args = append(args, term, term)
	}
	if !f.From.IsZero() {
		where = append(where, `created_at >= ?`)
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		where = append(where, `created_at <= ?`)
		args = append(args, f.To)
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueue, err, "list queue items")
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueue, err, "scan queue item")
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueue, err, "list queue items")
	}
	return items, nil
}

// UpdateStatus transitions an item to a new lifecycle state.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status Status, errMsg string) error {
	if !ValidStatus(status) {
		return errors.New(errors.ErrCodeInvalidInput, "invalid queue status %q", status)
	}

	var sentAt any
	if status == StatusSent {
		sentAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE email_queue SET status = ?, error_message = ?, sent_at = ? WHERE id = ?`,
		status, errMsg, sentAt, id)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueue, err, "update queue item %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.ErrCodeNotFound, "queue item %s not found", id)
	}
	return nil
}

// Delete removes an item.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM email_queue WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueue, err, "delete queue item %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.ErrCodeNotFound, "queue item %s not found", id)
	}
	return nil
}

// Stats counts items per status.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM email_queue GROUP BY status`)
	if err != nil {
		return Stats{}, errors.Wrap(errors.ErrCodeQueue, err, "queue stats")
	}
	defer rows.Close()

	var st Stats
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, errors.Wrap(errors.ErrCodeQueue, err, "queue stats")
		}
		st.Total += count
		switch status {
		case StatusPending:
			st.Pending = count
		case StatusSending:
			st.Sending = count
		case StatusSent:
			st.Sent = count
		case StatusFailed:
			st.Failed = count
		}
	}
	return st, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanItem reads one email_queue row. sql.Row and sql.Rows both satisfy
// the scanner.
func scanItem(row interface{ Scan(...any) error }) (*Item, error) {
	var item Item
	var sentAt sql.NullTime
	err := row.Scan(&item.ID, &item.RecipientEmail, &item.RecipientName,
		&item.Subject, &item.Message, &item.CertificateImage,
		&item.Status, &item.ErrorMessage, &item.CreatedAt, &sentAt)
	if err != nil {
		return nil, err
	}
	if sentAt.Valid {
		t := sentAt.Time
		item.SentAt = &t
	}
	return &item, nil
}
