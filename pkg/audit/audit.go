// Package audit provides the vault's bounded operation log: append-only
// entries persisted through the store, evicted oldest-first past a maximum
// count, exportable as JSON or CSV.
package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/credvault/credvault/pkg/store"
)

// DefaultMaxEntries bounds the audit log; the oldest entries are evicted
// once the count is exceeded.
const DefaultMaxEntries = 1000

// Action identifies the kind of operation an entry records.
type Action string

// Operation kinds.
const (
	ActionVaultSetup        Action = "vault.setup"
	ActionVaultUnlock       Action = "vault.unlock"
	ActionVaultUnlockFailed Action = "vault.unlock_failed"
	ActionVaultLock         Action = "vault.lock"

	ActionCredentialCreate Action = "credential.create"
	ActionCredentialUpdate Action = "credential.update"
	ActionCredentialDelete Action = "credential.delete"

	ActionVaultExport Action = "vault.export"
	ActionVaultImport Action = "vault.import"
	ActionAuditClear  Action = "audit.clear"
)

// Entry is a single audit log record. Details is free text and must never
// contain secret material (passwords, decrypted payloads); credential names
// are permitted.
type Entry struct {
	ID        string    `json:"id"`
	Action    Action    `json:"action"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger appends audit entries through the store, enforcing the size bound
// on every append.
type Logger struct {
	store      *store.Store
	maxEntries int
}

// NewLogger creates a logger writing to the given store. A maxEntries of 0
// selects DefaultMaxEntries.
func NewLogger(s *store.Store, maxEntries int) *Logger {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Logger{store: s, maxEntries: maxEntries}
}

// Record appends one entry. The append and the oldest-first eviction happen
// in a single storage transaction.
func (l *Logger) Record(action Action, details string) error {
	rec := &store.AuditRecord{
		ID:        uuid.NewString(),
		Action:    string(action),
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
	if err := l.store.AppendAudit(rec, l.maxEntries); err != nil {
		return fmt.Errorf("audit: failed to record entry: %w", err)
	}
	return nil
}

// List returns all entries in chronological order.
func (l *Logger) List() ([]Entry, error) {
	recs, err := l.store.ListAudit()
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list entries: %w", err)
	}
	entries := make([]Entry, 0, len(recs))
	for _, r := range recs {
		entries = append(entries, Entry{
			ID:        r.ID,
			Action:    Action(r.Action),
			Details:   r.Details,
			Timestamp: r.Timestamp,
		})
	}
	return entries, nil
}

// Clear removes every entry, then records the clear itself so the log never
// silently loses its history without trace.
func (l *Logger) Clear() error {
	if err := l.store.ClearAudit(); err != nil {
		return fmt.Errorf("audit: failed to clear log: %w", err)
	}
	return l.Record(ActionAuditClear, "audit log cleared")
}

// Export formats all entries as json or csv.
func (l *Logger) Export(format string) ([]byte, error) {
	entries, err := l.List()
	if err != nil {
		return nil, err
	}

	switch format {
	case "json":
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("audit: failed to marshal entries: %w", err)
		}
		return data, nil
	case "csv":
		return formatCSV(entries), nil
	default:
		return nil, fmt.Errorf("audit: unsupported format: %s", format)
	}
}

// formatCSV renders entries with proper quoting.
func formatCSV(entries []Entry) []byte {
	var sb strings.Builder
	sb.WriteString("timestamp,action,details\n")
	for _, e := range entries {
		sb.WriteString(csvEscape(e.Timestamp.Format(time.RFC3339Nano)))
		sb.WriteByte(',')
		sb.WriteString(csvEscape(string(e.Action)))
		sb.WriteByte(',')
		sb.WriteString(csvEscape(e.Details))
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// csvEscape escapes a field for CSV output. Embedded quotes are doubled, and
// fields starting with =, +, -, @ are quoted to prevent formula injection.
func csvEscape(field string) string {
	if field == "" {
		return field
	}

	needsQuoting := false
	switch field[0] {
	case '=', '+', '-', '@':
		needsQuoting = true
	}
	if !needsQuoting {
		needsQuoting = strings.ContainsAny(field, ",\"\n\r")
	}
	if !needsQuoting {
		return field
	}

	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}
