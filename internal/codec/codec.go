// internal/codec/codec.go
package codec

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// -----------------------------------------------------------------------------
// Channel frame codec: scrypt key derivation + XChaCha20-Poly1305 frames.
//
// Wire format of an encrypted frame: nonce(24) || ciphertext+tag(16).
// -----------------------------------------------------------------------------

const (
	KeySize   = chacha20poly1305.KeySize  // 32
	NonceSize = chacha20poly1305.NonceSizeX // 24

	saltSize = 16

	// scrypt cost parameters, deliberately slow to price offline
	// passphrase guessing.
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// DeriveKey derives the channel key from a passphrase and channel name.
// The salt is a digest of the channel name, so the same passphrase on
// different channels yields unrelated keys.
func DeriveKey(passphrase, channel string) ([KeySize]byte, error) {
	var key [KeySize]byte
	digest := blake2b.Sum512([]byte(channel))
	salt := digest[:saltSize]
	raw, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, KeySize)
	if err != nil {
		return key, fmt.Errorf("codec: key derivation failed: %w", err)
	}
	copy(key[:], raw)
	for i := range raw {
		raw[i] = 0
	}
	return key, nil
}

// Encrypt seals plaintext under key with a fresh random 24-byte nonce and
// returns nonce||ciphertext. Nonce reuse under one key breaks the AEAD, so
// every call draws from crypto/rand.
func Encrypt(key [KeySize]byte, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("codec: aead init: %w", err)
	}
	frame := make([]byte, NonceSize, NonceSize+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(frame[:NonceSize]); err != nil {
		return nil, fmt.Errorf("codec: nonce: %w", err)
	}
	return aead.Seal(frame, frame[:NonceSize], plaintext, nil), nil
}

// Decrypt opens a nonce||ciphertext frame. Short frames, wrong keys,
// truncation and tampering are all reported as a single !ok result; callers
// must not be able to tell the cases apart.
func Decrypt(key [KeySize]byte, frame []byte) ([]byte, bool) {
	if len(frame) < NonceSize {
		return nil, false
	}
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, false
	}
	plaintext, err := aead.Open(nil, frame[:NonceSize], frame[NonceSize:], nil)
	if err != nil {
		return nil, false
	}
	return plaintext, true
}
