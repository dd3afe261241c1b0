package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	encryptionKeyLength = 32
	ivLength            = 16
	authTagLength       = 16
)

var ErrDecryptFailed = errors.New("document decryption failed")

// EncryptedFile is AES-256-GCM output with the nonce and tag kept apart from
// the ciphertext, hex-encoded for storage.
type EncryptedFile struct {
	Ciphertext []byte
	IV         string
	AuthTag    string
}

// GenerateEncryptionKey returns a fresh hex-encoded 256-bit key.
func GenerateEncryptionKey() (string, error) {
	key := make([]byte, encryptionKeyLength)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

func newGCM(keyHex string) (cipher.AEAD, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(key) != encryptionKeyLength {
		return nil, fmt.Errorf("key must be %d bytes, got %d", encryptionKeyLength, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, ivLength)
}

func EncryptFile(plaintext []byte, keyHex string) (*EncryptedFile, error) {
	gcm, err := newGCM(keyHex)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	split := len(sealed) - authTagLength
	return &EncryptedFile{
		Ciphertext: sealed[:split],
		IV:         hex.EncodeToString(iv),
		AuthTag:    hex.EncodeToString(sealed[split:]),
	}, nil
}

// DecryptFile returns the plaintext only if the auth tag verifies; any
// failure yields ErrDecryptFailed and no output.
func DecryptFile(ciphertext []byte, keyHex, ivHex, tagHex string) ([]byte, error) {
	gcm, err := newGCM(keyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != ivLength {
		return nil, fmt.Errorf("%w: bad iv", ErrDecryptFailed)
	}
	tag, err := hex.DecodeString(tagHex)
	if err != nil || len(tag) != authTagLength {
		return nil, fmt.Errorf("%w: bad auth tag", ErrDecryptFailed)
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	return plaintext, nil
}

// HashDocument is the hex SHA-256 of the plaintext.
func HashDocument(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
