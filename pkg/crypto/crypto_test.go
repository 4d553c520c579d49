package crypto

import (
	"bytes"
	"crypto/aes"
	"testing"
)

func testKeys(t *testing.T) (encKey, macKey []byte) {
	t.Helper()
	encKey, err := RandomBytes(KeyLength)
	if err != nil {
		t.Fatalf("RandomBytes failed: %v", err)
	}
	macKey, err = RandomBytes(KeyLength)
	if err != nil {
		t.Fatalf("RandomBytes failed: %v", err)
	}
	return encKey, macKey
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	encKey, _ := testKeys(t)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"short", []byte("hello")},
		{"exactly one block", bytes.Repeat([]byte{0x41}, 16)},
		{"multi block", bytes.Repeat([]byte("secret-data-"), 10)},
		{"binary", []byte{0x00, 0xff, 0x10, 0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iv, err := RandomBytes(IVLength)
			if err != nil {
				t.Fatalf("RandomBytes failed: %v", err)
			}

			ciphertext, err := EncryptCBC(encKey, iv, tt.plaintext)
			if err != nil {
				t.Fatalf("EncryptCBC failed: %v", err)
			}

			// Padded output is always a positive multiple of the block size,
			// even for empty plaintext.
			if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
				t.Errorf("ciphertext length %d is not a positive block multiple", len(ciphertext))
			}

			plaintext, err := DecryptCBC(encKey, iv, ciphertext)
			if err != nil {
				t.Fatalf("DecryptCBC failed: %v", err)
			}
			if !bytes.Equal(plaintext, tt.plaintext) {
				t.Errorf("round trip mismatch: got %x, want %x", plaintext, tt.plaintext)
			}
		})
	}
}

func TestEncryptRejectsBadKeyAndIV(t *testing.T) {
	if _, err := EncryptCBC(make([]byte, 15), make([]byte, IVLength), []byte("x")); err != ErrInvalidKeyLength {
		t.Errorf("expected ErrInvalidKeyLength, got %v", err)
	}
	if _, err := EncryptCBC(make([]byte, KeyLength), make([]byte, 12), []byte("x")); err != ErrInvalidIVLength {
		t.Errorf("expected ErrInvalidIVLength, got %v", err)
	}
	if _, err := DecryptCBC(make([]byte, KeyLength), make([]byte, IVLength), make([]byte, 17)); err != ErrInvalidCiphertext {
		t.Errorf("expected ErrInvalidCiphertext, got %v", err)
	}
	if _, err := DecryptCBC(make([]byte, KeyLength), make([]byte, IVLength), nil); err != ErrInvalidCiphertext {
		t.Errorf("expected ErrInvalidCiphertext for empty ciphertext, got %v", err)
	}
}

func TestSignVerify(t *testing.T) {
	_, macKey := testKeys(t)
	iv, _ := RandomBytes(IVLength)
	payload := []byte("ciphertext bytes")

	tag, err := Sign(macKey, iv, payload)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if len(tag) != TagLength {
		t.Fatalf("expected %d-byte tag, got %d", TagLength, len(tag))
	}

	ok, err := Verify(macKey, iv, payload, tag)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Error("expected tag to verify")
	}

	// Flipping any single bit of iv, payload or tag must fail verification.
	flip := func(b []byte, i int) []byte {
		out := append([]byte{}, b...)
		out[i] ^= 0x01
		return out
	}

	if ok, _ := Verify(macKey, flip(iv, 0), payload, tag); ok {
		t.Error("verified with corrupted iv")
	}
	if ok, _ := Verify(macKey, iv, flip(payload, len(payload)-1), tag); ok {
		t.Error("verified with corrupted payload")
	}
	if ok, _ := Verify(macKey, iv, payload, flip(tag, 10)); ok {
		t.Error("verified with corrupted tag")
	}
	if ok, _ := Verify(macKey, iv, payload, tag[:TagLength-1]); ok {
		t.Error("verified with truncated tag")
	}
}

func TestVerifyWrongKey(t *testing.T) {
	_, macKey := testKeys(t)
	otherKey, _ := RandomBytes(KeyLength)
	iv, _ := RandomBytes(IVLength)
	payload := []byte("payload")

	tag, err := Sign(macKey, iv, payload)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if ok, _ := Verify(otherKey, iv, payload, tag); ok {
		t.Error("tag verified under a different key")
	}
}

func TestDeriveKeyDeterministicAndSaltSensitive(t *testing.T) {
	password := []byte("test123")
	salt1 := bytes.Repeat([]byte{0x01}, 16)
	salt2 := bytes.Repeat([]byte{0x02}, 16)

	k1 := DeriveKey(password, salt1, 10000)
	k2 := DeriveKey(password, salt1, 10000)
	k3 := DeriveKey(password, salt2, 10000)
	k4 := DeriveKey(password, salt1, 20000)

	if len(k1) != SplitKeyLength {
		t.Fatalf("expected %d-byte derived key, got %d", SplitKeyLength, len(k1))
	}
	if !bytes.Equal(k1, k2) {
		t.Error("derivation is not deterministic")
	}
	if bytes.Equal(k1, k3) {
		t.Error("different salts produced the same key")
	}
	if bytes.Equal(k1, k4) {
		t.Error("different iteration counts produced the same key")
	}
}

func TestDecryptWrongKeyGarbage(t *testing.T) {
	encKey, _ := testKeys(t)
	otherKey, _ := RandomBytes(KeyLength)
	iv, _ := RandomBytes(IVLength)

	ciphertext, err := EncryptCBC(encKey, iv, []byte("plaintext"))
	if err != nil {
		t.Fatalf("EncryptCBC failed: %v", err)
	}

	// Decrypting under the wrong key either fails padding validation or
	// yields garbage; it must never return the original plaintext.
	plaintext, err := DecryptCBC(otherKey, iv, ciphertext)
	if err == nil && bytes.Equal(plaintext, []byte("plaintext")) {
		t.Error("wrong key recovered the plaintext")
	}
}

func TestPKCS7Padding(t *testing.T) {
	tests := []struct {
		in     []byte
		padLen int
	}{
		{[]byte{}, 16},
		{make([]byte, 1), 15},
		{make([]byte, 15), 1},
		{make([]byte, 16), 16},
		{make([]byte, 17), 15},
	}
	for _, tt := range tests {
		padded := pkcs7Pad(tt.in, 16)
		if len(padded) != len(tt.in)+tt.padLen {
			t.Errorf("pad(%d bytes): got length %d, want %d", len(tt.in), len(padded), len(tt.in)+tt.padLen)
		}
		out, err := pkcs7Unpad(padded, 16)
		if err != nil {
			t.Errorf("unpad failed: %v", err)
		}
		if !bytes.Equal(out, tt.in) {
			t.Errorf("pad/unpad mismatch for %d bytes", len(tt.in))
		}
	}

	bad := [][]byte{
		{},
		bytes.Repeat([]byte{0x00}, 16),       // zero pad byte
		bytes.Repeat([]byte{0x11}, 16),       // pad byte > block size
		append(bytes.Repeat([]byte{0x01}, 14), 0x02, 0x03), // inconsistent run
	}
	for i, b := range bad {
		if _, err := pkcs7Unpad(b, 16); err == nil {
			t.Errorf("case %d: expected padding error", i)
		}
	}
}

func TestSecureWipe(t *testing.T) {
	b := []byte("sensitive")
	SecureWipe(b)
	for i, c := range b {
		if c != 0 {
			t.Fatalf("byte %d not wiped", i)
		}
	}
}
