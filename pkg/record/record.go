// Package record defines the logical credential model and its canonical
// serialization, the plaintext representation fed to the cipher.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors returned by the codec.
var (
	// ErrMalformedRecord indicates decrypted bytes do not parse as a valid
	// credential. For user messaging this is equivalent to an integrity
	// failure (the record cannot be trusted), but it is kept distinct for
	// diagnostics.
	ErrMalformedRecord = errors.New("record: malformed credential record")

	// ErrInvalidCategory indicates an unknown category value.
	ErrInvalidCategory = errors.New("record: invalid category")

	// ErrEmptyName indicates a credential without a name.
	ErrEmptyName = errors.New("record: credential name must not be empty")
)

// Category classifies a credential. The value is duplicated in plaintext on
// the persisted record for storage-level filtering, but the encrypted copy is
// authoritative.
type Category string

// Valid categories.
const (
	CategorySocial   Category = "social"
	CategoryEmail    Category = "email"
	CategoryBanking  Category = "banking"
	CategoryShopping Category = "shopping"
	CategoryWork     Category = "work"
	CategoryOther    Category = "other"
)

// Categories lists all valid category values.
func Categories() []Category {
	return []Category{
		CategorySocial, CategoryEmail, CategoryBanking,
		CategoryShopping, CategoryWork, CategoryOther,
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategorySocial, CategoryEmail, CategoryBanking,
		CategoryShopping, CategoryWork, CategoryOther:
		return true
	}
	return false
}

// ParseCategory converts a string to a Category, rejecting unknown values.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
	return c, nil
}

// Credential is the decrypted, logical form of a stored record. Identity is
// deliberately not part of this payload; the record id lives only on the
// persisted envelope.
type Credential struct {
	Name     string   `json:"name"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	Website  string   `json:"website,omitempty"`
	Category Category `json:"category"`
	Notes    string   `json:"notes,omitempty"`
	Favorite bool     `json:"favorite"`
}

// Validate checks the structural invariants of a credential.
func (c *Credential) Validate() error {
	if c.Name == "" {
		return ErrEmptyName
	}
	if !c.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, c.Category)
	}
	return nil
}

// Encode serializes a credential to its canonical byte form. Field order is
// fixed by the struct definition, so the output is stable across round trips.
func Encode(c *Credential) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("record: failed to encode credential: %w", err)
	}
	return data, nil
}

// Decode parses canonical bytes back into a credential. Structurally invalid
// input is reported as ErrMalformedRecord so callers can distinguish a
// decodable-but-corrupt record from a cipher integrity failure in logs.
func Decode(data []byte) (*Credential, error) {
	var c Credential
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return &c, nil
}
