package vault

import (
	"github.com/securestore/securestore/pkg/crypto"
	"github.com/securestore/securestore/pkg/securebuf"
)

// Blob is the atom of authenticated encryption: a per-value random IV,
// the HMAC-SHA1 tag over iv || payload, and the AES-CBC ciphertext.
// All three fields serialize as standard base64 with padding.
type Blob struct {
	IV      []byte `json:"iv"`
	HMAC    []byte `json:"hmac"`
	Payload []byte `json:"payload"`
}

// sealBlob encrypts plaintext into a fresh blob: generate a random IV,
// AES-CBC encrypt with PKCS#7 padding, then MAC the IV and ciphertext.
func sealBlob(key *KeyMaterial, plaintext []byte) (*Blob, error) {
	iv, err := crypto.RandomBytes(crypto.IVLength)
	if err != nil {
		return nil, err
	}
	payload, err := crypto.EncryptCBC(key.encryptionKey(), iv, plaintext)
	if err != nil {
		return nil, err
	}
	tag, err := crypto.Sign(key.macKey(), iv, payload)
	if err != nil {
		return nil, err
	}
	return &Blob{IV: iv, HMAC: tag, Payload: payload}, nil
}

// openBlob authenticates and decrypts a blob. The HMAC is verified in
// constant time before any decryption work; every authentication or
// decryption failure surfaces as ErrTamperedCiphertext so a wrong key
// and flipped ciphertext bits are observably identical. The plaintext is
// returned in a secure buffer owned by the caller.
func openBlob(key *KeyMaterial, b *Blob) (*securebuf.Buffer, error) {
	if b == nil || len(b.IV) != crypto.IVLength {
		return nil, ErrTamperedCiphertext
	}
	ok, err := crypto.Verify(key.macKey(), b.IV, b.Payload, b.HMAC)
	if err != nil || !ok {
		return nil, ErrTamperedCiphertext
	}
	plaintext, err := crypto.DecryptCBC(key.encryptionKey(), b.IV, b.Payload)
	if err != nil {
		return nil, ErrTamperedCiphertext
	}
	return securebuf.FromBytes(plaintext), nil
}
