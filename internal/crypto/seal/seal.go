// Package seal encrypts report files before they leave for the external
// content-addressed store. AES-256-CBC with PKCS#7 padding and a fresh IV per
// file; the IV travels with the reconciliation row, never with the file.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

const keySize = 32

var (
	ErrKeySize    = errors.New("seal: key must be 32 bytes")
	ErrCiphertext = errors.New("seal: invalid ciphertext")
	ErrPadding    = errors.New("seal: invalid padding")
)

// Sealer holds the master key.
type Sealer struct {
	key []byte
}

// New builds a Sealer from a hex-encoded 256-bit master key.
func New(keyHex string) (*Sealer, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("seal: decode key: %w", err)
	}
	if len(key) != keySize {
		return nil, ErrKeySize
	}
	return &Sealer{key: key}, nil
}

// Seal encrypts file bytes and returns the ciphertext with the hex-encoded IV
// used for this file.
func (s *Sealer) Seal(plain []byte) (ciphertext []byte, ivHex string, err error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, "", err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, "", err
	}

	padded := pad(plain, aes.BlockSize)
	ciphertext = make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, hex.EncodeToString(iv), nil
}

// Open decrypts file bytes with the IV recorded at seal time.
func (s *Sealer) Open(ciphertext []byte, ivHex string) ([]byte, error) {
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return nil, fmt.Errorf("seal: decode iv: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, ErrCiphertext
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrCiphertext
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)
	return unpad(plain, aes.BlockSize)
}

func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, ErrPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrPadding
		}
	}
	return data[:len(data)-n], nil
}
