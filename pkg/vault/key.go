package vault

import (
	"encoding/pem"
	"fmt"
	"io"
	"os"

	"github.com/securestore/securestore/pkg/crypto"
	"github.com/securestore/securestore/pkg/securebuf"
)

const (
	// keyPEMType is the PEM block type of exported key files.
	keyPEMType = "PRIVATE KEY"

	// maxKeyFileSize is the absolute ceiling on key streams. A key file is
	// at most a PEM wrapping of 32 bytes; anything near the ceiling is a
	// malformed or hostile source.
	maxKeyFileSize = 2048

	// keyFileMode keeps exported keys owner-readable only.
	keyFileMode = 0600
)

// KeyMaterial is the working key pair: a 16-byte AES-128 key and a
// 16-byte HMAC-SHA1 key, each pinned in a secure buffer. The two halves
// are distinct keys and are never handed to the opposite primitive.
type KeyMaterial struct {
	enc *securebuf.Buffer
	mac *securebuf.Buffer
}

// newKeyMaterial splits a 32-byte source into the encryption and MAC
// halves. The source slice is wiped before returning.
func newKeyMaterial(source []byte) (*KeyMaterial, error) {
	if len(source) != crypto.SplitKeyLength {
		crypto.SecureWipe(source)
		return nil, ErrInvalidKeyFile
	}
	k := &KeyMaterial{
		enc: securebuf.FromBytes(source[:crypto.KeyLength]),
		mac: securebuf.FromBytes(source[crypto.KeyLength:]),
	}
	// FromBytes wiped both halves in place; the backing array is clear.
	return k, nil
}

func (k *KeyMaterial) encryptionKey() []byte { return k.enc.Bytes() }

func (k *KeyMaterial) macKey() []byte { return k.mac.Bytes() }

// export returns the 32-byte concatenation in a fresh secure buffer
// owned by the caller.
func (k *KeyMaterial) export() *securebuf.Buffer {
	out := securebuf.New(crypto.SplitKeyLength)
	copy(out.Bytes()[:crypto.KeyLength], k.enc.Bytes())
	copy(out.Bytes()[crypto.KeyLength:], k.mac.Bytes())
	return out
}

// destroy scrubs both halves.
func (k *KeyMaterial) destroy() {
	k.enc.Destroy()
	k.mac.Destroy()
}

// readKeySource reads key material from a stream. The format is detected
// by length: exactly 32 bytes is the legacy raw concatenation, more is
// PEM armor around a 32-byte payload, less is invalid. Reads stop at the
// size ceiling to defend against resource exhaustion on malformed
// sources.
func readKeySource(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxKeyFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("vault: failed to read key source: %w", err)
	}
	if len(data) > maxKeyFileSize {
		return nil, fmt.Errorf("%w: key source exceeds %d bytes", ErrInvalidKeyFile, maxKeyFileSize)
	}
	if len(data) == crypto.SplitKeyLength {
		return data, nil
	}
	if len(data) < crypto.SplitKeyLength {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrInvalidKeyFile, len(data))
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != keyPEMType {
		return nil, fmt.Errorf("%w: not a %s PEM block", ErrInvalidKeyFile, keyPEMType)
	}
	if len(block.Bytes) != crypto.SplitKeyLength {
		return nil, fmt.Errorf("%w: PEM payload is %d bytes, want %d",
			ErrInvalidKeyFile, len(block.Bytes), crypto.SplitKeyLength)
	}
	return block.Bytes, nil
}

// writeKeyFile writes the 32-byte key PEM-armored with 64-character
// lines. New key files are always armored; the raw form is accepted on
// read only.
func writeKeyFile(path string, key []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, keyFileMode)
	if err != nil {
		return fmt.Errorf("vault: failed to create key file: %w", err)
	}
	if err := pem.Encode(f, &pem.Block{Type: keyPEMType, Bytes: key}); err != nil {
		f.Close()
		return fmt.Errorf("vault: failed to write key file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("vault: failed to close key file: %w", err)
	}
	return nil
}
