package securebuf

import (
	"bytes"
	"testing"
)

func TestNewAndBytes(t *testing.T) {
	b := New(32)
	if b.Len() != 32 {
		t.Fatalf("expected length 32, got %d", b.Len())
	}
	if got := b.Bytes(); len(got) != 32 {
		t.Fatalf("expected 32 bytes, got %d", len(got))
	}
	b.Destroy()
}

func TestFromBytesWipesSource(t *testing.T) {
	src := []byte("super secret key material")
	want := append([]byte{}, src...)

	b := FromBytes(src)
	defer b.Destroy()

	if !bytes.Equal(b.Bytes(), want) {
		t.Error("buffer contents differ from source")
	}
	for i, c := range src {
		if c != 0 {
			t.Fatalf("source byte %d not wiped", i)
		}
	}
}

func TestDestroy(t *testing.T) {
	b := FromBytes([]byte("key"))
	b.Destroy()

	if !b.Destroyed() {
		t.Error("expected Destroyed to report true")
	}
	if b.Bytes() != nil {
		t.Error("expected nil contents after destroy")
	}
	if b.Len() != 0 {
		t.Error("expected zero length after destroy")
	}

	// Idempotent.
	b.Destroy()
}

func TestEmptyBuffer(t *testing.T) {
	b := New(0)
	if b.Len() != 0 {
		t.Errorf("expected empty buffer, got length %d", b.Len())
	}
	b.Destroy()
}
