// Package crypto provides the cryptographic primitives for credvault.
//
// This package implements AES-256-GCM authenticated encryption and PBKDF2
// key derivation with HKDF domain separation.
//
// # Security Features
//
//   - AES-256-GCM authenticated encryption, random 96-bit nonce per call
//   - PBKDF2-SHA256 key stretching (100,000 iterations)
//   - HKDF-SHA256 separation of the session key from the stored
//     verification hash, so the persisted hash never reveals the key
//   - Secure memory wiping for key material
//
// # Example Usage
//
//	salt, _ := crypto.GenerateSalt()
//	key := crypto.DeriveKey([]byte("password"), salt)
//	blob, err := crypto.Encrypt(key, plaintext)
//	plaintext, err := crypto.Decrypt(key, blob)
//	crypto.SecureWipe(key)
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// Key derivation and cipher parameters.
const (
	// PBKDF2Iterations is the fixed work factor for key stretching.
	PBKDF2Iterations = 100_000

	// SaltLength is the length of salts in bytes (128 bits).
	SaltLength = 16

	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = 32

	// NonceLength is the length of GCM nonces in bytes (96 bits).
	NonceLength = 12
)

// HKDF info strings separating the session key from the verification hash.
const (
	hkdfInfoKey    = "credvault-key-v1"
	hkdfInfoVerify = "credvault-verify-v1"
)

// Sentinel errors returned by crypto functions.
var (
	// ErrInvalidKeyLength indicates the key is not 32 bytes.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length, must be 32 bytes")

	// ErrCiphertextTooShort indicates the blob is shorter than nonce plus GCM tag.
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")

	// ErrIntegrity indicates authentication tag verification failed. This is
	// the only signal for a wrong key, tampered ciphertext, or corrupted
	// storage; callers must treat it as such rather than as a crash.
	ErrIntegrity = errors.New("crypto: integrity check failed, wrong key or corrupted data")
)

// GenerateSalt returns a cryptographically secure random 16-byte salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey derives the 256-bit session key from a master password and salt.
//
// The password is stretched with PBKDF2-SHA256 (100,000 iterations) and the
// result expanded through HKDF with a key-specific info string. The same
// (password, salt) pair always yields the same key.
func DeriveKey(password, salt []byte) []byte {
	master := pbkdf2.Key(password, salt, PBKDF2Iterations, KeyLength, sha256.New)
	defer SecureWipe(master)
	return expand(master, hkdfInfoKey)
}

// VerificationHash derives the 32-byte value stored to test future unlock
// attempts. It shares the PBKDF2 pass with DeriveKey but expands through HKDF
// with a distinct info string, so the stored hash can never be used to
// reconstruct the session key.
func VerificationHash(password, salt []byte) []byte {
	master := pbkdf2.Key(password, salt, PBKDF2Iterations, KeyLength, sha256.New)
	defer SecureWipe(master)
	return expand(master, hkdfInfoVerify)
}

// VerifyHash compares a candidate verification hash against the stored one in
// constant time.
func VerifyHash(candidate, stored []byte) bool {
	return subtle.ConstantTimeCompare(candidate, stored) == 1
}

// expand runs HKDF-SHA256 over the master material with the given info string.
func expand(master []byte, info string) []byte {
	r := hkdf.New(sha256.New, master, nil, []byte(info))
	out := make([]byte, KeyLength)
	if _, err := io.ReadFull(r, out); err != nil {
		// HKDF cannot fail for a 32-byte read from SHA-256 output.
		panic(fmt.Sprintf("crypto: hkdf expand: %v", err))
	}
	return out
}

// Encrypt encrypts plaintext using AES-256-GCM.
//
// A fresh random 12-byte nonce is generated per call and prepended to the
// sealed ciphertext, so the returned blob is opaque and self-contained:
// nonce || ciphertext || tag. Nonce uniqueness is guaranteed by random
// generation, not caller discipline.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}

	nonce := make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	// Seal appends ciphertext and tag after the nonce prefix.
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts a blob produced by Encrypt.
//
// The nonce is split from the front of the blob and the authentication tag
// verified before any plaintext is returned. Tag verification failure is
// reported as ErrIntegrity.
func Decrypt(key, blob []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}

	if len(blob) < NonceLength+gcm.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	nonce, ciphertext := blob[:NonceLength], blob[NonceLength:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrIntegrity
	}

	return plaintext, nil
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation. Used to destroy the
// session key on lock.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// runtime.KeepAlive ensures the writes are not optimized away since b is
	// still "in use" after the loop.
	runtime.KeepAlive(b)
}
