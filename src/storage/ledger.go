package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS uploads (
	bucket      TEXT NOT NULL,
	key         TEXT NOT NULL,
	sha256      TEXT NOT NULL,
	size        INTEGER NOT NULL,
	run_id      TEXT NOT NULL,
	uploaded_at TIMESTAMP NOT NULL,
	PRIMARY KEY (bucket, key)
)`

// Entry records one object the ledger knows was stored
type Entry struct {
	Bucket     string
	Key        string
	SHA256     string
	Size       int64
	RunID      string
	UploadedAt time.Time
}

// Ledger remembers checksums of uploaded objects so unchanged files are skipped
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens (or creates) the ledger database at path
func OpenLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	// sqlite allows one writer; workers share the connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create ledger schema: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Lookup returns the entry for bucket/key, or false if it has never been uploaded
func (l *Ledger) Lookup(ctx context.Context, bucket, key string) (Entry, bool, error) {
	e := Entry{Bucket: bucket, Key: key}
	row := l.db.QueryRowContext(ctx,
		`SELECT sha256, size, run_id, uploaded_at FROM uploads WHERE bucket = ? AND key = ?`,
		bucket, key)

	err := row.Scan(&e.SHA256, &e.Size, &e.RunID, &e.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("ledger lookup %s/%s: %w", bucket, key, err)
	}
	return e, true, nil
}

// Unchanged reports whether bucket/key was stored with the given checksum
func (l *Ledger) Unchanged(ctx context.Context, bucket, key, sum string) (bool, error) {
	e, ok, err := l.Lookup(ctx, bucket, key)
	if err != nil || !ok {
		return false, err
	}
	return e.SHA256 == sum, nil
}

// Record stores or replaces the entry for an uploaded object
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if e.UploadedAt.IsZero() {
		e.UploadedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO uploads (bucket, key, sha256, size, run_id, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (bucket, key) DO UPDATE SET
		   sha256 = excluded.sha256,
		   size = excluded.size,
		   run_id = excluded.run_id,
		   uploaded_at = excluded.uploaded_at`,
		e.Bucket, e.Key, e.SHA256, e.Size, e.RunID, e.UploadedAt)
	if err != nil {
		return fmt.Errorf("ledger record %s/%s: %w", e.Bucket, e.Key, err)
	}
	return nil
}

// Entries lists everything in the ledger ordered by bucket and key
func (l *Ledger) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT bucket, key, sha256, size, run_id, uploaded_at FROM uploads ORDER BY bucket, key`)
	if err != nil {
		return nil, fmt.Errorf("ledger list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Bucket, &e.Key, &e.SHA256, &e.Size, &e.RunID, &e.UploadedAt); err != nil {
			return nil, fmt.Errorf("ledger scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Checksum returns the hex sha256 of data
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
