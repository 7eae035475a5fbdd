// Package transfer implements the portable credential exchange format: a
// versioned JSON container holding either a plaintext credential list or a
// single encrypted blob over that list, plus a flat CSV rendering for
// spreadsheet use. CSV is export-only.
package transfer

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/credvault/credvault/pkg/crypto"
	"github.com/credvault/credvault/pkg/record"
)

// FormatVersion is the container version this build reads and writes.
const FormatVersion = "1.0"

// Sentinel errors for payload parsing.
var (
	ErrUnsupportedVersion = errors.New("transfer: unsupported container version")
	ErrMalformedPayload   = errors.New("transfer: malformed payload")
	ErrKeyRequired        = errors.New("transfer: encrypted payload requires an unlocked vault key")
)

// Container wraps an exported credential list. Data holds either the JSON
// array itself (plaintext) or a base64 cipher blob over it (encrypted).
type Container struct {
	Version   string          `json:"version"`
	Encrypted bool            `json:"encrypted"`
	Data      json.RawMessage `json:"data"`
}

// Encode serializes credentials into a container. When encrypted is true the
// list is sealed with key and carried as a base64 string.
func Encode(creds []*record.Credential, encrypted bool, key []byte) ([]byte, error) {
	list, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("transfer: failed to marshal credentials: %w", err)
	}

	c := Container{Version: FormatVersion, Encrypted: encrypted}
	if encrypted {
		blob, err := crypto.Encrypt(key, list)
		if err != nil {
			return nil, fmt.Errorf("transfer: failed to encrypt payload: %w", err)
		}
		c.Data, err = json.Marshal(base64.StdEncoding.EncodeToString(blob))
		if err != nil {
			return nil, fmt.Errorf("transfer: failed to encode payload: %w", err)
		}
	} else {
		c.Data = list
	}

	out, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("transfer: failed to marshal container: %w", err)
	}
	return out, nil
}

// Decode parses an exported payload back into credentials. Both the versioned
// container and a bare credential array are accepted; the bare form exists for
// hand-written import files. key is only consulted for encrypted containers.
func Decode(data []byte, key []byte) ([]*record.Credential, error) {
	trimmed := strings.TrimLeftFunc(string(data), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if strings.HasPrefix(trimmed, "[") {
		return decodeList(data)
	}

	var c Container
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if c.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, c.Version)
	}
	if len(c.Data) == 0 {
		return nil, fmt.Errorf("%w: container has no data", ErrMalformedPayload)
	}

	if !c.Encrypted {
		return decodeList(c.Data)
	}

	if len(key) == 0 {
		return nil, ErrKeyRequired
	}
	var encoded string
	if err := json.Unmarshal(c.Data, &encoded); err != nil {
		return nil, fmt.Errorf("%w: encrypted data is not a string: %v", ErrMalformedPayload, err)
	}
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	list, err := crypto.Decrypt(key, blob)
	if err != nil {
		return nil, fmt.Errorf("transfer: failed to decrypt payload: %w", err)
	}
	defer crypto.SecureWipe(list)
	return decodeList(list)
}

func decodeList(data []byte) ([]*record.Credential, error) {
	var creds []*record.Credential
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return creds, nil
}

// FormatCSV renders credentials as a flat spreadsheet. Import from CSV is
// deliberately unsupported; the JSON container is the round-trip format.
func FormatCSV(creds []*record.Credential) []byte {
	var sb strings.Builder
	sb.WriteString("name,username,password,website,category,notes,favorite\n")
	for _, c := range creds {
		fields := []string{
			c.Name,
			c.Username,
			c.Password,
			c.Website,
			string(c.Category),
			c.Notes,
			strconv.FormatBool(c.Favorite),
		}
		for i, f := range fields {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(escapeField(f))
		}
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// escapeField quotes a CSV field when needed. Embedded quotes are doubled,
// and fields starting with =, +, -, @ are quoted to prevent formula injection.
func escapeField(field string) string {
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
