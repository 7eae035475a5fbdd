// Package vault ties key derivation, the cipher, the codec, and the store
// into the credential vault proper: a lockable session holding the derived
// key in memory and nothing secret on disk beyond cipher blobs.
package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/credvault/credvault/pkg/audit"
	"github.com/credvault/credvault/pkg/crypto"
	"github.com/credvault/credvault/pkg/record"
	"github.com/credvault/credvault/pkg/security"
	"github.com/credvault/credvault/pkg/store"
)

// DefaultAutoLockTimeout is how long the vault stays unlocked without any
// operation before locking itself.
const DefaultAutoLockTimeout = 5 * time.Minute

// masterKeySetting is the settings row holding the key verification material.
const masterKeySetting = "master_key"

// Sentinel errors.
var (
	ErrAlreadyInitialized = errors.New("vault: already initialized")
	ErrNotInitialized     = errors.New("vault: not initialized, run setup first")
	ErrAuthentication     = errors.New("vault: invalid master password")
	ErrLocked             = errors.New("vault: locked")
	ErrPolicy             = errors.New("vault: master password rejected by policy")
	ErrNotFound           = errors.New("vault: credential not found")
)

// ErrConfirmMismatch is a policy violation: errors.Is(err, ErrPolicy) matches.
var ErrConfirmMismatch = fmt.Errorf("%w: confirmation does not match", ErrPolicy)

// State describes the vault lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateLocked
	StateUnlocked
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLocked:
		return "locked"
	case StateUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// masterKeyRecord is the persisted verification material. The verification
// hash is derived on a separate path from the encryption key, so the stored
// value is useless for decrypting records.
type masterKeyRecord struct {
	VerificationHash []byte    `json:"verification_hash"`
	Salt             []byte    `json:"salt"`
	CreatedAt        time.Time `json:"created_at"`
}

// Entry is a decrypted credential together with its storage identity.
type Entry struct {
	ID         string
	Credential *record.Credential
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// DecryptFailure reports a stored record that could not be decrypted or
// decoded during a listing. Listing continues past failures so one corrupt
// record never hides the rest of the vault.
type DecryptFailure struct {
	ID  string
	Err error
}

// Vault is the unlocked-session coordinator. All methods are safe for
// concurrent use.
type Vault struct {
	mu    sync.Mutex
	store *store.Store
	audit *audit.Logger

	state   State
	key     []byte
	timer   *time.Timer
	timeout time.Duration
}

// Open binds a vault to its store and determines the initial state from the
// presence of verification material. A timeout of 0 selects the default.
func Open(s *store.Store, logger *audit.Logger, timeout time.Duration) (*Vault, error) {
	if timeout <= 0 {
		timeout = DefaultAutoLockTimeout
	}
	v := &Vault{
		store:   s,
		audit:   logger,
		state:   StateUninitialized,
		timeout: timeout,
	}

	_, err := s.GetSetting(masterKeySetting)
	switch {
	case err == nil:
		v.state = StateLocked
	case errors.Is(err, store.ErrNotFound):
		// First run.
	default:
		return nil, fmt.Errorf("vault: failed to read key material: %w", err)
	}
	return v, nil
}

// State returns the current lifecycle state.
func (v *Vault) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Setup initializes a new vault with the given master password and leaves it
// unlocked. The password must satisfy the strength policy and match its
// confirmation.
func (v *Vault) Setup(password, confirm string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != StateUninitialized {
		return ErrAlreadyInitialized
	}
	if result := security.ValidateMasterPassword(password); !result.Valid {
		if len(result.Warnings) > 0 {
			return fmt.Errorf("%w: %s", ErrPolicy, strings.Join(result.Warnings, "; "))
		}
		return ErrPolicy
	}
	if password != confirm {
		return ErrConfirmMismatch
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return fmt.Errorf("vault: failed to generate salt: %w", err)
	}
	rec := masterKeyRecord{
		VerificationHash: crypto.VerificationHash([]byte(password), salt),
		Salt:             salt,
		CreatedAt:        time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("vault: failed to encode key material: %w", err)
	}
	if err := v.store.PutSetting(masterKeySetting, data); err != nil {
		return fmt.Errorf("vault: failed to persist key material: %w", err)
	}

	v.key = crypto.DeriveKey([]byte(password), salt)
	v.state = StateUnlocked
	v.resetTimerLocked()
	v.record(audit.ActionVaultSetup, "vault initialized")
	return nil
}

// Unlock derives the key from the password and verifies it against the stored
// hash. A wrong password leaves the state untouched. Unlocking an already
// unlocked vault only refreshes the inactivity timer.
func (v *Vault) Unlock(password string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch v.state {
	case StateUninitialized:
		return ErrNotInitialized
	case StateUnlocked:
		v.resetTimerLocked()
		return nil
	}

	rec, err := v.loadMasterKeyRecord()
	if err != nil {
		return err
	}
	if !crypto.VerifyHash(crypto.VerificationHash([]byte(password), rec.Salt), rec.VerificationHash) {
		v.record(audit.ActionVaultUnlockFailed, "")
		return ErrAuthentication
	}

	v.key = crypto.DeriveKey([]byte(password), rec.Salt)
	v.state = StateUnlocked
	v.resetTimerLocked()
	v.record(audit.ActionVaultUnlock, "")
	return nil
}

// Lock wipes the in-memory key and returns the vault to the locked state.
// Locking a locked or uninitialized vault is a no-op.
func (v *Vault) Lock() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lockLocked(true)
}

// ChangeMasterPassword re-encrypts every record under a key derived from the
// new password. The vault must be unlocked and the old password must verify.
func (v *Vault) ChangeMasterPassword(current, next, confirm string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ensureUnlockedLocked(); err != nil {
		return err
	}
	rec, err := v.loadMasterKeyRecord()
	if err != nil {
		return err
	}
	if !crypto.VerifyHash(crypto.VerificationHash([]byte(current), rec.Salt), rec.VerificationHash) {
		return ErrAuthentication
	}
	if result := security.ValidateMasterPassword(next); !result.Valid {
		if len(result.Warnings) > 0 {
			return fmt.Errorf("%w: %s", ErrPolicy, strings.Join(result.Warnings, "; "))
		}
		return ErrPolicy
	}
	if next != confirm {
		return ErrConfirmMismatch
	}

	entries, failures, err := v.listLocked("")
	if err != nil {
		return err
	}
	if len(failures) > 0 {
		return fmt.Errorf("vault: %d records failed to decrypt, refusing to rotate key", len(failures))
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return fmt.Errorf("vault: failed to generate salt: %w", err)
	}
	newKey := crypto.DeriveKey([]byte(next), salt)

	for _, e := range entries {
		blob, err := v.seal(newKey, e.Credential)
		if err != nil {
			return err
		}
		if err := v.store.PutCredential(&store.CredentialRecord{
			ID:         e.ID,
			Ciphertext: blob,
			Category:   string(e.Credential.Category),
			Favorite:   e.Credential.Favorite,
			CreatedAt:  e.CreatedAt,
			ModifiedAt: e.ModifiedAt,
		}); err != nil {
			return fmt.Errorf("vault: failed to re-encrypt record: %w", err)
		}
	}

	newRec := masterKeyRecord{
		VerificationHash: crypto.VerificationHash([]byte(next), salt),
		Salt:             salt,
		CreatedAt:        time.Now().UTC(),
	}
	data, err := json.Marshal(newRec)
	if err != nil {
		return fmt.Errorf("vault: failed to encode key material: %w", err)
	}
	if err := v.store.PutSetting(masterKeySetting, data); err != nil {
		return fmt.Errorf("vault: failed to persist key material: %w", err)
	}

	crypto.SecureWipe(v.key)
	v.key = newKey
	v.resetTimerLocked()
	v.record(audit.ActionVaultSetup, "master password changed")
	return nil
}

// Create encrypts and stores a new credential, returning its entry.
func (v *Vault) Create(c *record.Credential) (*Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ensureUnlockedLocked(); err != nil {
		return nil, err
	}
	e, err := v.createLocked(c)
	if err != nil {
		return nil, err
	}

	v.resetTimerLocked()
	v.record(audit.ActionCredentialCreate, fmt.Sprintf("created %q", c.Name))
	return e, nil
}

// createLocked encrypts and stores a new credential. Caller holds v.mu and
// has verified the unlocked state.
func (v *Vault) createLocked(c *record.Credential) (*Entry, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	blob, err := v.seal(v.key, c)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	e := &Entry{
		ID:         uuid.NewString(),
		Credential: c,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	if err := v.store.PutCredential(&store.CredentialRecord{
		ID:         e.ID,
		Ciphertext: blob,
		Category:   string(c.Category),
		Favorite:   c.Favorite,
		CreatedAt:  now,
		ModifiedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("vault: failed to store credential: %w", err)
	}
	return e, nil
}

// Update replaces the credential stored under id. The creation time is
// preserved; the modification time is bumped.
func (v *Vault) Update(id string, c *record.Credential) (*Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ensureUnlockedLocked(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	existing, err := v.store.GetCredential(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("vault: failed to load credential: %w", err)
	}

	blob, err := v.seal(v.key, c)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	e := &Entry{
		ID:         id,
		Credential: c,
		CreatedAt:  existing.CreatedAt,
		ModifiedAt: now,
	}
	if err := v.store.PutCredential(&store.CredentialRecord{
		ID:         id,
		Ciphertext: blob,
		Category:   string(c.Category),
		Favorite:   c.Favorite,
		CreatedAt:  existing.CreatedAt,
		ModifiedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("vault: failed to store credential: %w", err)
	}

	v.resetTimerLocked()
	v.record(audit.ActionCredentialUpdate, fmt.Sprintf("updated %q", c.Name))
	return e, nil
}

// Get decrypts and returns the credential stored under id.
func (v *Vault) Get(id string) (*Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ensureUnlockedLocked(); err != nil {
		return nil, err
	}
	rec, err := v.store.GetCredential(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("vault: failed to load credential: %w", err)
	}

	e, err := v.open(rec)
	if err != nil {
		return nil, err
	}
	v.resetTimerLocked()
	return e, nil
}

// Delete removes the credential stored under id.
func (v *Vault) Delete(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ensureUnlockedLocked(); err != nil {
		return err
	}

	// Resolve the name for the audit trail before the record is gone. A
	// record that cannot be decrypted is still deletable; the id stands in.
	detail := fmt.Sprintf("deleted %s", id)
	if rec, err := v.store.GetCredential(id); err == nil {
		if e, err := v.open(rec); err == nil {
			detail = fmt.Sprintf("deleted %q", e.Credential.Name)
		}
	}

	if err := v.store.DeleteCredential(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("vault: failed to delete credential: %w", err)
	}

	v.resetTimerLocked()
	v.record(audit.ActionCredentialDelete, detail)
	return nil
}

// List decrypts all credentials, optionally filtered to one category, sorted
// favorites first and then by case-insensitive name. Records that fail to
// decrypt or decode are returned as diagnostics alongside the good entries.
func (v *Vault) List(category string) ([]*Entry, []DecryptFailure, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ensureUnlockedLocked(); err != nil {
		return nil, nil, err
	}
	entries, failures, err := v.listLocked(category)
	if err != nil {
		return nil, nil, err
	}
	v.resetTimerLocked()
	return entries, failures, nil
}

// Search returns entries whose name, username, website, or notes contain the
// query, compared case-insensitively after Unicode NFC normalization.
func (v *Vault) Search(query string) ([]*Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ensureUnlockedLocked(); err != nil {
		return nil, err
	}
	entries, _, err := v.listLocked("")
	if err != nil {
		return nil, err
	}
	v.resetTimerLocked()

	needle := normalize(query)
	if needle == "" {
		return entries, nil
	}
	matched := entries[:0]
	for _, e := range entries {
		c := e.Credential
		if strings.Contains(normalize(c.Name), needle) ||
			strings.Contains(normalize(c.Username), needle) ||
			strings.Contains(normalize(c.Website), needle) ||
			strings.Contains(normalize(c.Notes), needle) {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// listLocked loads and decrypts all records. Caller holds v.mu.
func (v *Vault) listLocked(category string) ([]*Entry, []DecryptFailure, error) {
	recs, err := v.store.ListCredentials(category)
	if err != nil {
		return nil, nil, fmt.Errorf("vault: failed to list credentials: %w", err)
	}

	entries := make([]*Entry, 0, len(recs))
	var failures []DecryptFailure
	for _, rec := range recs {
		e, err := v.open(rec)
		if err != nil {
			failures = append(failures, DecryptFailure{ID: rec.ID, Err: err})
			continue
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Credential, entries[j].Credential
		if a.Favorite != b.Favorite {
			return a.Favorite
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
	return entries, failures, nil
}

// seal encodes and encrypts a credential under key.
func (v *Vault) seal(key []byte, c *record.Credential) ([]byte, error) {
	plaintext, err := record.Encode(c)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(plaintext)

	blob, err := crypto.Encrypt(key, plaintext)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to encrypt credential: %w", err)
	}
	return blob, nil
}

// open decrypts and decodes a stored record. Caller holds v.mu.
func (v *Vault) open(rec *store.CredentialRecord) (*Entry, error) {
	plaintext, err := crypto.Decrypt(v.key, rec.Ciphertext)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(plaintext)

	c, err := record.Decode(plaintext)
	if err != nil {
		return nil, err
	}
	return &Entry{
		ID:         rec.ID,
		Credential: c,
		CreatedAt:  rec.CreatedAt,
		ModifiedAt: rec.ModifiedAt,
	}, nil
}

func (v *Vault) loadMasterKeyRecord() (*masterKeyRecord, error) {
	data, err := v.store.GetSetting(masterKeySetting)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to read key material: %w", err)
	}
	var rec masterKeyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("vault: corrupt key material: %w", err)
	}
	return &rec, nil
}

func (v *Vault) ensureUnlockedLocked() error {
	switch v.state {
	case StateUninitialized:
		return ErrNotInitialized
	case StateLocked:
		return ErrLocked
	}
	return nil
}

// lockLocked performs the transition. Caller holds v.mu.
func (v *Vault) lockLocked(recordEvent bool) error {
	if v.state != StateUnlocked {
		return nil
	}
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
	crypto.SecureWipe(v.key)
	v.key = nil
	v.state = StateLocked
	if recordEvent {
		v.record(audit.ActionVaultLock, "")
	}
	return nil
}

// resetTimerLocked restarts the inactivity countdown. Caller holds v.mu.
func (v *Vault) resetTimerLocked() {
	if v.timer != nil {
		v.timer.Stop()
	}
	v.timer = time.AfterFunc(v.timeout, v.autoLock)
}

// autoLock is the timer callback. It runs the same transition as an explicit
// Lock, indistinguishable in the audit trail.
func (v *Vault) autoLock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	_ = v.lockLocked(true)
}

// record logs an audit entry, ignoring logging failures so an audit hiccup
// never blocks a vault operation.
func (v *Vault) record(action audit.Action, details string) {
	if v.audit == nil {
		return
	}
	_ = v.audit.Record(action, details)
}

// normalize prepares a string for case-insensitive matching.
func normalize(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}
