// Package store provides the persistence layer for credvault: ciphertext
// credential records, a settings table, and the audit log. It is a pure
// storage adapter with no cryptography awareness.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// File layout constants.
const (
	DBFileName = "vault.db"
	FileMode   = 0600 // Owner read/write only
	DirMode    = 0700 // Owner read/write/execute only
)

// Sentinel errors.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("store: not found")
)

// timeLayout is a fixed-width UTC encoding so lexical order matches
// chronological order in SQL.
const timeLayout = "2006-01-02 15:04:05.000000000"

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// CredentialRecord is the persisted form of a credential: an opaque ciphertext
// blob plus plaintext envelope metadata. Category and Favorite are mirrored
// outside the ciphertext for filtering only; the encrypted payload remains
// authoritative.
type CredentialRecord struct {
	ID         string
	Ciphertext []byte
	Category   string
	Favorite   bool
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// AuditRecord is one row of the append-only audit log.
type AuditRecord struct {
	ID        string
	Action    string
	Details   string
	Timestamp time.Time
}

// Store wraps the SQLite handle. All operations are atomic per call; the
// vault layer never needs multi-record transactions.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes the store at the given directory, creating the database
// and schema on first use.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("store: directory path is required")
	}
	if err := os.MkdirAll(dir, DirMode); err != nil {
		return nil, fmt.Errorf("store: failed to create directory: %w", err)
	}

	dbPath := filepath.Join(dir, DBFileName)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}

	// Single-connection mode avoids "database is locked" errors; appropriate
	// for a single local session.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to ping database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	if err := os.Chmod(dbPath, FileMode); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to set database permissions: %w", err)
	}

	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) createTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS credentials (
			id TEXT PRIMARY KEY,
			ciphertext BLOB NOT NULL,
			category TEXT NOT NULL,
			favorite INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			modified_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("store: failed to create credentials table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_credentials_category ON credentials(category)`)
	if err != nil {
		return fmt.Errorf("store: failed to create category index: %w", err)
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_credentials_favorite ON credentials(favorite)`)
	if err != nil {
		return fmt.Errorf("store: failed to create favorite index: %w", err)
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_credentials_created ON credentials(created_at)`)
	if err != nil {
		return fmt.Errorf("store: failed to create created index: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("store: failed to create settings table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			details TEXT NOT NULL DEFAULT '',
			ts TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("store: failed to create audit_log table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(ts)`)
	if err != nil {
		return fmt.Errorf("store: failed to create audit index: %w", err)
	}

	return nil
}

// PutCredential inserts or replaces a credential record (last writer wins).
func (s *Store) PutCredential(rec *CredentialRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO credentials (id, ciphertext, category, favorite, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ciphertext = excluded.ciphertext,
			category = excluded.category,
			favorite = excluded.favorite,
			modified_at = excluded.modified_at
	`, rec.ID, rec.Ciphertext, rec.Category, boolToInt(rec.Favorite),
		encodeTime(rec.CreatedAt), encodeTime(rec.ModifiedAt))
	if err != nil {
		return fmt.Errorf("store: failed to save credential: %w", err)
	}
	return nil
}

// GetCredential retrieves one credential record by id.
func (s *Store) GetCredential(id string) (*CredentialRecord, error) {
	rec := &CredentialRecord{ID: id}
	var favorite int
	var created, modified string
	err := s.db.QueryRow(`
		SELECT ciphertext, category, favorite, created_at, modified_at
		FROM credentials WHERE id = ?`, id,
	).Scan(&rec.Ciphertext, &rec.Category, &favorite, &created, &modified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: failed to read credential: %w", err)
	}
	rec.Favorite = favorite != 0
	if rec.CreatedAt, err = decodeTime(created); err != nil {
		return nil, err
	}
	if rec.ModifiedAt, err = decodeTime(modified); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListCredentials returns all credential records, optionally filtered by the
// plaintext category mirror, ordered by creation time.
func (s *Store) ListCredentials(category string) ([]*CredentialRecord, error) {
	query := `
		SELECT id, ciphertext, category, favorite, created_at, modified_at
		FROM credentials`
	args := []any{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: failed to query credentials: %w", err)
	}
	defer rows.Close()

	var recs []*CredentialRecord
	for rows.Next() {
		rec := &CredentialRecord{}
		var favorite int
		var created, modified string
		if err := rows.Scan(&rec.ID, &rec.Ciphertext, &rec.Category, &favorite,
			&created, &modified); err != nil {
			return nil, fmt.Errorf("store: failed to scan row: %w", err)
		}
		rec.Favorite = favorite != 0
		if rec.CreatedAt, err = decodeTime(created); err != nil {
			return nil, err
		}
		if rec.ModifiedAt, err = decodeTime(modified); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: error iterating rows: %w", err)
	}
	return recs, nil
}

// DeleteCredential removes a credential record permanently.
func (s *Store) DeleteCredential(id string) error {
	res, err := s.db.Exec(`DELETE FROM credentials WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: failed to delete credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearCredentials removes every credential record.
func (s *Store) ClearCredentials() error {
	if _, err := s.db.Exec(`DELETE FROM credentials`); err != nil {
		return fmt.Errorf("store: failed to clear credentials: %w", err)
	}
	return nil
}

// GetSetting retrieves a settings value by key.
func (s *Store) GetSetting(key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: failed to read setting: %w", err)
	}
	return value, nil
}

// PutSetting upserts a settings value.
func (s *Store) PutSetting(key string, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("store: failed to save setting: %w", err)
	}
	return nil
}

// DeleteSetting removes a settings row. Deleting an absent key is a no-op.
func (s *Store) DeleteSetting(key string) error {
	if _, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("store: failed to delete setting: %w", err)
	}
	return nil
}

// AppendAudit inserts an audit record and evicts the oldest entries beyond
// maxEntries in the same transaction, so the bound holds atomically.
func (s *Store) AppendAudit(rec *AuditRecord, maxEntries int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO audit_log (id, action, details, ts) VALUES (?, ?, ?, ?)
	`, rec.ID, rec.Action, rec.Details, encodeTime(rec.Timestamp))
	if err != nil {
		return fmt.Errorf("store: failed to append audit entry: %w", err)
	}

	if maxEntries > 0 {
		// rowid breaks ties between entries sharing a timestamp.
		_, err = tx.Exec(`
			DELETE FROM audit_log WHERE rowid NOT IN (
				SELECT rowid FROM audit_log ORDER BY ts DESC, rowid DESC LIMIT ?
			)
		`, maxEntries)
		if err != nil {
			return fmt.Errorf("store: failed to prune audit log: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: failed to commit transaction: %w", err)
	}
	return nil
}

// ListAudit returns audit records in chronological order.
func (s *Store) ListAudit() ([]*AuditRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, action, details, ts FROM audit_log ORDER BY ts, rowid`)
	if err != nil {
		return nil, fmt.Errorf("store: failed to query audit log: %w", err)
	}
	defer rows.Close()

	var recs []*AuditRecord
	for rows.Next() {
		rec := &AuditRecord{}
		var ts string
		if err := rows.Scan(&rec.ID, &rec.Action, &rec.Details, &ts); err != nil {
			return nil, fmt.Errorf("store: failed to scan row: %w", err)
		}
		if rec.Timestamp, err = decodeTime(ts); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: error iterating rows: %w", err)
	}
	return recs, nil
}

// CountAudit returns the number of audit records.
func (s *Store) CountAudit() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM audit_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: failed to count audit log: %w", err)
	}
	return n, nil
}

// ClearAudit removes every audit record (the log's single bulk-clear path).
func (s *Store) ClearAudit() error {
	if _, err := s.db.Exec(`DELETE FROM audit_log`); err != nil {
		return fmt.Errorf("store: failed to clear audit log: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
