// Package crypto seals the history file at rest with NaCl secretbox.
//
// A 32-byte symmetric key is derived from the user's passphrase using
// HKDF-SHA256. Every sealed blob carries a random 24-byte nonce in front of
// the ciphertext:
//
//	[ 24-byte nonce ][ ciphertext ]
//
// Armor and Unarmor wrap that layout in standard base64 so the sealed file
// stays printable.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

var hkdfInfo = []byte("popstash-history-v1")

// ErrDecrypt is returned when a blob cannot be opened with the key.
var ErrDecrypt = errors.New("decryption failed (wrong passphrase?)")

// Key is a derived secretbox key.
type Key [keySize]byte

// DeriveKey derives a Key from a passphrase. The same passphrase always
// yields the same key.
func DeriveKey(passphrase string) (*Key, error) {
	if passphrase == "" {
		return nil, errors.New("key derivation: empty passphrase")
	}
	h := hkdf.New(sha256.New, []byte(passphrase), nil, hkdfInfo)
	var key Key
	if _, err := io.ReadFull(h, key[:]); err != nil {
		return nil, fmt.Errorf("key derivation: %w", err)
	}
	return &key, nil
}

// Seal encrypts plaintext, prepending a random nonce.
func (k *Key) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("nonce generation: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, (*[keySize]byte)(k)), nil
}

// Open decrypts nonce+ciphertext.
func (k *Key) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("ciphertext too short (%d bytes)", len(sealed))
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, (*[keySize]byte)(k))
	if !ok {
		return nil, ErrDecrypt
	}
	return plain, nil
}

// Armor seals plaintext and returns it base64 encoded.
func (k *Key) Armor(plaintext []byte) ([]byte, error) {
	sealed, err := k.Seal(plaintext)
	if err != nil {
		return nil, err
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sealed)))
	base64.StdEncoding.Encode(out, sealed)
	return out, nil
}

// Unarmor reverses Armor.
func (k *Key) Unarmor(armored []byte) ([]byte, error) {
	sealed := make([]byte, base64.StdEncoding.DecodedLen(len(armored)))
	n, err := base64.StdEncoding.Decode(sealed, armored)
	if err != nil {
		return nil, fmt.Errorf("decode sealed history: %w", err)
	}
	return k.Open(sealed[:n])
}
