// Package crypto provides the cryptographic primitives for securestore.
//
// This package implements the fixed cipher suite of the vault file format:
// AES-128-CBC with PKCS#7 padding for confidentiality, HMAC-SHA1 in
// encrypt-then-MAC mode for integrity, and PBKDF2-HMAC-SHA1 for password
// key derivation. The suite is part of the on-disk format and must not
// change without a schema version bump.
//
// # Security Features
//
//   - Encrypt-then-MAC: the HMAC tag covers iv || ciphertext
//   - Constant-time tag comparison before any decryption work
//   - Cryptographically secure random IVs, salts and keys
//   - Secure memory wiping for sensitive intermediates
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/pbkdf2"
)

// Cipher suite parameters. These are fixed by the vault file format.
const (
	// KeyLength is the length of a single working key in bytes (128 bits).
	// The vault uses two of them: one for AES, one for HMAC.
	KeyLength = 16

	// SplitKeyLength is the length of the combined key material: the
	// AES key followed by the HMAC key.
	SplitKeyLength = 2 * KeyLength

	// IVLength is the AES block size and the length of per-blob IVs.
	IVLength = aes.BlockSize

	// TagLength is the length of the HMAC-SHA1 authentication tag.
	TagLength = sha1.Size
)

// Sentinel errors returned by crypto functions.
var (
	// ErrInvalidKeyLength indicates a key is not 16 bytes.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length, must be 16 bytes")

	// ErrInvalidIVLength indicates the IV is not one AES block.
	ErrInvalidIVLength = errors.New("crypto: invalid iv length, must be 16 bytes")

	// ErrInvalidPadding indicates the PKCS#7 padding is malformed.
	ErrInvalidPadding = errors.New("crypto: invalid pkcs7 padding")

	// ErrInvalidCiphertext indicates the ciphertext is empty or not a
	// whole number of AES blocks.
	ErrInvalidCiphertext = errors.New("crypto: ciphertext is not a positive multiple of the block size")
)

// DeriveKey derives key material from a password using PBKDF2-HMAC-SHA1.
//
// The password is the raw UTF-8 encoding of the user's input, the salt is
// the vault's salt field, and the iteration count is fixed per schema
// version (10 000 for v1/v2 vaults, 256 000 for v3). The output is
// SplitKeyLength bytes: the first half is the AES key, the second the
// HMAC key.
func DeriveKey(password, salt []byte, iterations int) []byte {
	return pbkdf2.Key(password, salt, iterations, SplitKeyLength, sha1.New)
}

// RandomBytes returns n bytes from the CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("crypto: failed to read random bytes: %w", err)
	}
	return b, nil
}

// EncryptCBC encrypts plaintext with AES-128-CBC under the given key and
// IV, applying PKCS#7 padding. An empty plaintext still produces one
// padded block. The IV must be freshly random for every call; reuse
// breaks CBC confidentiality.
func EncryptCBC(key, iv, plaintext []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	if len(iv) != IVLength {
		return nil, ErrInvalidIVLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

// DecryptCBC decrypts an AES-128-CBC ciphertext and strips the PKCS#7
// padding. Callers must verify the authentication tag first; this
// function performs no integrity checks of its own.
func DecryptCBC(key, iv, ciphertext []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	if len(iv) != IVLength {
		return nil, ErrInvalidIVLength
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrInvalidCiphertext
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)
	return pkcs7Unpad(padded, aes.BlockSize)
}

// Sign computes the HMAC-SHA1 tag over iv || payload in that order.
func Sign(macKey, iv, payload []byte) ([]byte, error) {
	if len(macKey) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	mac := hmac.New(sha1.New, macKey)
	mac.Write(iv)
	mac.Write(payload)
	return mac.Sum(nil), nil
}

// Verify recomputes the HMAC-SHA1 tag over iv || payload and compares it
// with the stored tag. The comparison requires byte-length equality and
// uses a constant-time comparison over the full tag so the position of a
// mismatch is not observable through timing.
func Verify(macKey, iv, payload, tag []byte) (bool, error) {
	expected, err := Sign(macKey, iv, payload)
	if err != nil {
		return false, err
	}
	if len(tag) != len(expected) {
		return false, nil
	}
	return subtle.ConstantTimeCompare(expected, tag) == 1, nil
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// runtime.KeepAlive ensures the write operations are not optimized
	// away by the compiler since b is still "in use" after the loop.
	runtime.KeepAlive(b)
}

// pkcs7Pad appends PKCS#7 padding up to the next block boundary. Input
// that already ends on a boundary gains a full block of padding.
func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

// pkcs7Unpad validates and strips PKCS#7 padding.
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, ErrInvalidPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrInvalidPadding
		}
	}
	return data[:len(data)-n], nil
}
