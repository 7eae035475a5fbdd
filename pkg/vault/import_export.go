package vault

import (
	"errors"
	"fmt"

	"github.com/credvault/credvault/pkg/audit"
	"github.com/credvault/credvault/pkg/record"
	"github.com/credvault/credvault/pkg/transfer"
)

// Export errors.
var (
	ErrUnsupportedFormat = errors.New("vault: unsupported export format")
)

// Export serializes every credential. Format is "json" or "csv"; only the
// JSON container supports encryption. Export refuses to run when any record
// fails to decrypt, since a partial export silently loses data.
func (v *Vault) Export(format string, encrypted bool) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ensureUnlockedLocked(); err != nil {
		return nil, err
	}
	entries, failures, err := v.listLocked("")
	if err != nil {
		return nil, err
	}
	if len(failures) > 0 {
		return nil, fmt.Errorf("vault: %d records failed to decrypt, refusing partial export", len(failures))
	}

	creds := make([]*record.Credential, 0, len(entries))
	for _, e := range entries {
		creds = append(creds, e.Credential)
	}

	var out []byte
	switch format {
	case "json":
		out, err = transfer.Encode(creds, encrypted, v.key)
		if err != nil {
			return nil, err
		}
	case "csv":
		if encrypted {
			return nil, fmt.Errorf("%w: csv cannot be encrypted", ErrUnsupportedFormat)
		}
		out = transfer.FormatCSV(creds)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	v.resetTimerLocked()
	v.record(audit.ActionVaultExport,
		fmt.Sprintf("exported %d credentials (format=%s encrypted=%t)", len(creds), format, encrypted))
	return out, nil
}

// Import merges credentials from an exported payload. A credential whose
// name and username exactly match an existing one is skipped, never merged
// or overwritten. Returns the imported and skipped counts.
func (v *Vault) Import(data []byte) (imported, skipped int, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ensureUnlockedLocked(); err != nil {
		return 0, 0, err
	}
	creds, err := transfer.Decode(data, v.key)
	if err != nil {
		return 0, 0, err
	}

	existing, _, err := v.listLocked("")
	if err != nil {
		return 0, 0, err
	}
	seen := make(map[[2]string]bool, len(existing))
	for _, e := range existing {
		seen[[2]string{e.Credential.Name, e.Credential.Username}] = true
	}

	for _, c := range creds {
		if err := c.Validate(); err != nil {
			return imported, skipped, fmt.Errorf("vault: invalid credential in import: %w", err)
		}
		key := [2]string{c.Name, c.Username}
		if seen[key] {
			skipped++
			continue
		}
		if _, err := v.createLocked(c); err != nil {
			return imported, skipped, err
		}
		seen[key] = true
		imported++
	}

	v.resetTimerLocked()
	v.record(audit.ActionVaultImport,
		fmt.Sprintf("imported %d credentials, skipped %d duplicates", imported, skipped))
	return imported, skipped, nil
}
