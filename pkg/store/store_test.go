package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesSecureFile(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "vault"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	info, err := os.Stat(s.Path())
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		t.Errorf("database file has insecure permissions %04o", perm)
	}
}

func TestCredentialCRUD(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Microsecond)
	rec := &CredentialRecord{
		ID:         "id-1",
		Ciphertext: []byte{0xDE, 0xAD, 0xBE, 0xEF},
		Category:   "work",
		Favorite:   true,
		CreatedAt:  now,
		ModifiedAt: now,
	}

	if err := s.PutCredential(rec); err != nil {
		t.Fatalf("PutCredential() error = %v", err)
	}

	got, err := s.GetCredential("id-1")
	if err != nil {
		t.Fatalf("GetCredential() error = %v", err)
	}
	if string(got.Ciphertext) != string(rec.Ciphertext) {
		t.Error("ciphertext mismatch after round trip")
	}
	if got.Category != "work" || !got.Favorite {
		t.Errorf("metadata mismatch: %+v", got)
	}
	if !got.CreatedAt.Equal(now) || !got.ModifiedAt.Equal(now) {
		t.Errorf("timestamp mismatch: got %v/%v, want %v", got.CreatedAt, got.ModifiedAt, now)
	}

	// Upsert replaces ciphertext and bumps modified_at.
	later := now.Add(time.Minute)
	rec.Ciphertext = []byte{0x01}
	rec.Favorite = false
	rec.ModifiedAt = later
	if err := s.PutCredential(rec); err != nil {
		t.Fatalf("PutCredential() upsert error = %v", err)
	}
	got, err = s.GetCredential("id-1")
	if err != nil {
		t.Fatalf("GetCredential() error = %v", err)
	}
	if len(got.Ciphertext) != 1 || got.Favorite || !got.ModifiedAt.Equal(later) {
		t.Errorf("upsert not applied: %+v", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Error("upsert must not change created_at")
	}

	if err := s.DeleteCredential("id-1"); err != nil {
		t.Fatalf("DeleteCredential() error = %v", err)
	}
	if _, err := s.GetCredential("id-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCredential() after delete error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteCredential("id-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteCredential() of absent id error = %v, want ErrNotFound", err)
	}
}

func TestListCredentialsFilter(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().UTC()
	for i, cat := range []string{"work", "banking", "work"} {
		rec := &CredentialRecord{
			ID:         fmt.Sprintf("id-%d", i),
			Ciphertext: []byte{byte(i)},
			Category:   cat,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
			ModifiedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.PutCredential(rec); err != nil {
			t.Fatalf("PutCredential() error = %v", err)
		}
	}

	all, err := s.ListCredentials("")
	if err != nil {
		t.Fatalf("ListCredentials() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListCredentials() returned %d records, want 3", len(all))
	}
	// Ordered by creation time.
	if all[0].ID != "id-0" || all[2].ID != "id-2" {
		t.Errorf("ListCredentials() order wrong: %s, %s, %s", all[0].ID, all[1].ID, all[2].ID)
	}

	work, err := s.ListCredentials("work")
	if err != nil {
		t.Fatalf("ListCredentials(work) error = %v", err)
	}
	if len(work) != 2 {
		t.Errorf("ListCredentials(work) returned %d records, want 2", len(work))
	}
}

func TestClearCredentials(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		rec := &CredentialRecord{
			ID: fmt.Sprintf("id-%d", i), Ciphertext: []byte{byte(i)}, Category: "other",
			CreatedAt: now, ModifiedAt: now,
		}
		if err := s.PutCredential(rec); err != nil {
			t.Fatalf("PutCredential() error = %v", err)
		}
	}

	if err := s.ClearCredentials(); err != nil {
		t.Fatalf("ClearCredentials() error = %v", err)
	}
	recs, err := s.ListCredentials("")
	if err != nil {
		t.Fatalf("ListCredentials() error = %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("ListCredentials() after clear returned %d records, want 0", len(recs))
	}
}

func TestSettings(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetSetting("master_key"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSetting() of absent key error = %v, want ErrNotFound", err)
	}

	if err := s.PutSetting("master_key", []byte("v1")); err != nil {
		t.Fatalf("PutSetting() error = %v", err)
	}
	got, err := s.GetSetting("master_key")
	if err != nil {
		t.Fatalf("GetSetting() error = %v", err)
	}
	if string(got) != "v1" {
		t.Errorf("GetSetting() = %q, want %q", got, "v1")
	}

	// Upsert.
	if err := s.PutSetting("master_key", []byte("v2")); err != nil {
		t.Fatalf("PutSetting() upsert error = %v", err)
	}
	got, _ = s.GetSetting("master_key")
	if string(got) != "v2" {
		t.Errorf("GetSetting() after upsert = %q, want %q", got, "v2")
	}

	if err := s.DeleteSetting("master_key"); err != nil {
		t.Fatalf("DeleteSetting() error = %v", err)
	}
	if _, err := s.GetSetting("master_key"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSetting() after delete error = %v, want ErrNotFound", err)
	}
}

func TestAuditAppendAndBound(t *testing.T) {
	s := openTestStore(t)

	const max = 100
	base := time.Now().UTC()

	// Insert max+50 entries; the 50 oldest must be evicted.
	for i := 0; i < max+50; i++ {
		rec := &AuditRecord{
			ID:        fmt.Sprintf("evt-%04d", i),
			Action:    "credential.create",
			Details:   fmt.Sprintf("entry %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
		}
		if err := s.AppendAudit(rec, max); err != nil {
			t.Fatalf("AppendAudit() error = %v", err)
		}
	}

	n, err := s.CountAudit()
	if err != nil {
		t.Fatalf("CountAudit() error = %v", err)
	}
	if n != max {
		t.Fatalf("CountAudit() = %d, want %d", n, max)
	}

	recs, err := s.ListAudit()
	if err != nil {
		t.Fatalf("ListAudit() error = %v", err)
	}
	if recs[0].ID != "evt-0050" {
		t.Errorf("oldest surviving entry = %s, want evt-0050", recs[0].ID)
	}
	if recs[len(recs)-1].ID != fmt.Sprintf("evt-%04d", max+49) {
		t.Errorf("newest entry = %s", recs[len(recs)-1].ID)
	}

	if err := s.ClearAudit(); err != nil {
		t.Fatalf("ClearAudit() error = %v", err)
	}
	n, _ = s.CountAudit()
	if n != 0 {
		t.Errorf("CountAudit() after clear = %d, want 0", n)
	}
}

func TestOpenPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	now := time.Now().UTC()
	if err := s.PutCredential(&CredentialRecord{
		ID: "persist", Ciphertext: []byte{1}, Category: "other",
		CreatedAt: now, ModifiedAt: now,
	}); err != nil {
		t.Fatalf("PutCredential() error = %v", err)
	}
	s.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s2.Close()
	if _, err := s2.GetCredential("persist"); err != nil {
		t.Errorf("GetCredential() after reopen error = %v", err)
	}
}
