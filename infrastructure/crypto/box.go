// Package crypto implements the confidentiality transform applied to data at
// rest. Everything the store receives goes through Seal first; nothing is
// readable without the key the server was booted with.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"

	apperrors "voynich/errors"
)

const (
	keyLen = 32
	ivLen  = aes.BlockSize

	scryptN = 16384
	scryptR = 8
	scryptP = 1
)

// Box seals plaintext with AES-256-CBC under a scrypt-derived key and encodes
// the result as "hex(iv):hex(ciphertext)". Tokens produced under a different
// key, or tampered with, fail to open with ErrDecrypt.
type Box struct {
	key []byte
}

// NewBox derives the sealing key from the configured secret.
func NewBox(secret string) (*Box, error) {
	if secret == "" {
		return nil, fmt.Errorf("encryption secret must not be empty")
	}
	key, err := scrypt.Key([]byte(secret), []byte("salt"), scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("deriving sealing key: %w", err)
	}
	return &Box{key: key}, nil
}

func (b *Box) Seal(plaintext []byte) (string, error) {
	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return "", err
	}
	padded := pad(plaintext)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext), nil
}

func (b *Box) Open(token string) ([]byte, error) {
	ivPart, ciphertextPart, found := strings.Cut(token, ":")
	if !found {
		return nil, apperrors.ErrDecrypt
	}
	iv, ivErr := hex.DecodeString(ivPart)
	ciphertext, ctErr := hex.DecodeString(ciphertextPart)
	if ivErr != nil || ctErr != nil || len(iv) != ivLen ||
		len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, apperrors.ErrDecrypt
	}
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return nil, err
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return unpad(plaintext)
}

// pad applies PKCS#7 padding up to the AES block size.
func pad(data []byte) []byte {
	n := aes.BlockSize - len(data)%aes.BlockSize
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, apperrors.ErrDecrypt
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, apperrors.ErrDecrypt
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, apperrors.ErrDecrypt
		}
	}
	return data[:len(data)-n], nil
}
