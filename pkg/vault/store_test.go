package vault

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// newSavedStore creates a store under the given password, applies setup,
// and saves it to a temp file. It returns the file path.
func newSavedStore(t *testing.T, password string, setup func(*Store)) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secrets.json")

	s, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()
	if err := s.LoadKeyFromPassword(password); err != nil {
		t.Fatalf("LoadKeyFromPassword failed: %v", err)
	}
	if setup != nil {
		setup(s)
	}
	if err := s.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	return path
}

func TestPasswordRoundTrip(t *testing.T) {
	path := newSavedStore(t, "test123", func(s *Store) {
		if err := s.Set("foo", "bar"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	})

	s, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	defer s.Close()
	if err := s.LoadKeyFromPassword("test123"); err != nil {
		t.Fatalf("LoadKeyFromPassword failed: %v", err)
	}

	got, err := s.Get("foo")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "bar" {
		t.Errorf("expected %q, got %q", "bar", got)
	}
}

func TestKeyPasswordInterchange(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "v.json")
	keyPath := filepath.Join(dir, "k.bin")

	s, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.LoadKeyFromPassword("test123"); err != nil {
		t.Fatalf("LoadKeyFromPassword failed: %v", err)
	}
	if err := s.Set("string", "hello"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.SetValue("int", 42); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	if err := s.ExportKey(keyPath); err != nil {
		t.Fatalf("ExportKey failed: %v", err)
	}
	if err := s.Save(storePath); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	s.Close()

	// Reopen with the exported key file.
	s2, err := LoadFile(storePath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if err := s2.LoadKeyFromFile(keyPath); err != nil {
		t.Fatalf("LoadKeyFromFile failed: %v", err)
	}
	got, err := s2.Get("string")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "hello" {
		t.Errorf("expected %q, got %q", "hello", got)
	}
	s2.Close()

	// Reopen with the password again.
	s3, err := LoadFile(storePath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	defer s3.Close()
	if err := s3.LoadKeyFromPassword("test123"); err != nil {
		t.Fatalf("LoadKeyFromPassword failed: %v", err)
	}
	var n int
	if err := s3.GetValue("int", &n); err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if n != 42 {
		t.Errorf("expected 42, got %d", n)
	}
}

func TestWrongPassword(t *testing.T) {
	path := newSavedStore(t, "test123", func(s *Store) {
		if err := s.Set("foo", "bar"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	})

	s, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	defer s.Close()
	if err := s.LoadKeyFromPassword("wrong"); err != nil {
		t.Fatalf("LoadKeyFromPassword failed: %v", err)
	}

	if _, err := s.Get("foo"); !errors.Is(err, ErrTamperedCiphertext) {
		t.Errorf("expected ErrTamperedCiphertext, got %v", err)
	}
}

func TestTamperDetection(t *testing.T) {
	fields := []string{"payload", "iv", "hmac"}
	for _, field := range fields {
		t.Run(field, func(t *testing.T) {
			path := newSavedStore(t, "test123", func(s *Store) {
				if err := s.Set("foo", "bar"); err != nil {
					t.Fatalf("Set failed: %v", err)
				}
			})

			// XOR a non-zero mask into every byte of the chosen field.
			raw, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("read store: %v", err)
			}
			var doc map[string]json.RawMessage
			if err := json.Unmarshal(raw, &doc); err != nil {
				t.Fatalf("unmarshal store: %v", err)
			}
			var secrets map[string]map[string]string
			if err := json.Unmarshal(doc["secrets"], &secrets); err != nil {
				t.Fatalf("unmarshal secrets: %v", err)
			}
			data, err := base64.StdEncoding.DecodeString(secrets["foo"][field])
			if err != nil {
				t.Fatalf("decode %s: %v", field, err)
			}
			for i := range data {
				data[i] ^= 0x5a
			}
			secrets["foo"][field] = base64.StdEncoding.EncodeToString(data)
			doc["secrets"], _ = json.Marshal(secrets)
			tampered, _ := json.Marshal(doc)
			if err := os.WriteFile(path, tampered, 0644); err != nil {
				t.Fatalf("write tampered store: %v", err)
			}

			s, err := LoadFile(path)
			if err != nil {
				t.Fatalf("LoadFile failed: %v", err)
			}
			defer s.Close()
			if err := s.LoadKeyFromPassword("test123"); err != nil {
				t.Fatalf("LoadKeyFromPassword failed: %v", err)
			}
			if _, err := s.Get("foo"); !errors.Is(err, ErrTamperedCiphertext) {
				t.Errorf("expected ErrTamperedCiphertext, got %v", err)
			}
		})
	}
}

func TestSentinelCatchesMistypedPassword(t *testing.T) {
	path := newSavedStore(t, "A", func(s *Store) {
		if err := s.Set("x", "1"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	})

	s, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	defer s.Close()
	if err := s.LoadKeyFromPassword("B"); err != nil {
		t.Fatalf("LoadKeyFromPassword failed: %v", err)
	}

	// The sentinel is validated before anything new is encrypted, so the
	// mistyped password cannot silently mix keys inside one vault.
	if err := s.Set("y", "2"); !errors.Is(err, ErrTamperedCiphertext) {
		t.Errorf("expected ErrTamperedCiphertext, got %v", err)
	}
}

func TestStableOrderingAcrossInsertionOrders(t *testing.T) {
	write := func(names []string) []byte {
		s, err := New()
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer s.Close()
		if err := s.GenerateKey(); err != nil {
			t.Fatalf("GenerateKey failed: %v", err)
		}
		for _, name := range names {
			if err := s.Set(name, "v"); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
		}
		var buf bytes.Buffer
		if _, err := s.WriteTo(&buf); err != nil {
			t.Fatalf("WriteTo failed: %v", err)
		}
		return buf.Bytes()
	}

	keyOrder := func(data []byte) []string {
		doc, err := ParseDocument(data)
		if err != nil {
			t.Fatalf("ParseDocument failed: %v", err)
		}
		var names []string
		for name := range doc.Secrets {
			names = append(names, name)
		}
		return names
	}

	a := write([]string{"zeta", "Alpha", "mid", "beta"})
	b := write([]string{"beta", "mid", "zeta", "Alpha"})

	ka, kb := keyOrder(a), keyOrder(b)
	if len(ka) != len(kb) {
		t.Fatalf("different key counts: %d vs %d", len(ka), len(kb))
	}
	// Compare the serialized ordering, not the map iteration order.
	posOf := func(data []byte, name string) int { return bytes.Index(data, []byte(`"`+name+`"`)) }
	for _, name := range ka {
		if posOf(a, name) == -1 || posOf(b, name) == -1 {
			t.Fatalf("name %q missing from an output", name)
		}
	}
	for i := 0; i < len(ka); i++ {
		for j := i + 1; j < len(ka); j++ {
			ai, aj := posOf(a, ka[i]), posOf(a, ka[j])
			bi, bj := posOf(b, ka[i]), posOf(b, ka[j])
			if (ai < aj) != (bi < bj) {
				t.Errorf("names %q and %q ordered differently across insertion orders", ka[i], ka[j])
			}
		}
	}
}

func TestUniqueIVs(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()
	if err := s.GenerateKey(); err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		if err := s.Set(name, "same value"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}

	doc, err := ParseDocument(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseDocument failed: %v", err)
	}
	seen := make(map[string]bool)
	record := func(iv []byte) {
		k := string(iv)
		if seen[k] {
			t.Error("duplicate IV found")
		}
		seen[k] = true
	}
	record(doc.Sentinel.IV)
	for _, blob := range doc.Secrets {
		record(blob.IV)
	}
}

func TestSaltIndependence(t *testing.T) {
	make32 := func() ([]byte, []byte) {
		s, err := New()
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer s.Close()
		if err := s.LoadKeyFromPassword("same password"); err != nil {
			t.Fatalf("LoadKeyFromPassword failed: %v", err)
		}
		buf, err := s.ExportKeyBuffer()
		if err != nil {
			t.Fatalf("ExportKeyBuffer failed: %v", err)
		}
		defer buf.Destroy()
		key := append([]byte{}, buf.Bytes()...)
		salt := append([]byte{}, s.doc.Salt...)
		return key, salt
	}

	k1, salt1 := make32()
	k2, salt2 := make32()
	if bytes.Equal(salt1, salt2) {
		t.Error("two stores share a salt")
	}
	if bytes.Equal(k1, k2) {
		t.Error("same password produced the same key under different salts")
	}
}

func TestKeyLoadMonotonicity(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()
	if err := s.LoadKeyFromPassword("pw"); err != nil {
		t.Fatalf("LoadKeyFromPassword failed: %v", err)
	}

	before, err := s.ExportKeyBuffer()
	if err != nil {
		t.Fatalf("ExportKeyBuffer failed: %v", err)
	}
	defer before.Destroy()
	snapshot := append([]byte{}, before.Bytes()...)

	if err := s.GenerateKey(); !errors.Is(err, ErrKeyAlreadyLoaded) {
		t.Errorf("GenerateKey: expected ErrKeyAlreadyLoaded, got %v", err)
	}
	if err := s.LoadKeyFromPassword("other"); !errors.Is(err, ErrKeyAlreadyLoaded) {
		t.Errorf("LoadKeyFromPassword: expected ErrKeyAlreadyLoaded, got %v", err)
	}
	if err := s.LoadKeyFromReader(bytes.NewReader(make([]byte, 32))); !errors.Is(err, ErrKeyAlreadyLoaded) {
		t.Errorf("LoadKeyFromReader: expected ErrKeyAlreadyLoaded, got %v", err)
	}

	after, err := s.ExportKeyBuffer()
	if err != nil {
		t.Fatalf("ExportKeyBuffer failed: %v", err)
	}
	defer after.Destroy()
	if !bytes.Equal(snapshot, after.Bytes()) {
		t.Error("failed key loads changed the loaded key")
	}
}

func TestLifecycleErrors(t *testing.T) {
	// Zero-value store: no document.
	var fresh Store
	if err := fresh.LoadKeyFromPassword("pw"); !errors.Is(err, ErrNoStoreLoaded) {
		t.Errorf("expected ErrNoStoreLoaded, got %v", err)
	}
	if _, err := fresh.Get("x"); !errors.Is(err, ErrNoStoreLoaded) {
		t.Errorf("expected ErrNoStoreLoaded, got %v", err)
	}

	// Keyless store: crypto operations refuse to run.
	s, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := s.Get("x"); !errors.Is(err, ErrNoKeyLoaded) {
		t.Errorf("Get: expected ErrNoKeyLoaded, got %v", err)
	}
	if err := s.Set("x", "1"); !errors.Is(err, ErrNoKeyLoaded) {
		t.Errorf("Set: expected ErrNoKeyLoaded, got %v", err)
	}
	if err := s.Save(filepath.Join(t.TempDir(), "v.json")); !errors.Is(err, ErrNoKeyLoaded) {
		t.Errorf("Save: expected ErrNoKeyLoaded, got %v", err)
	}
	if err := s.ExportKey(filepath.Join(t.TempDir(), "k.pem")); !errors.Is(err, ErrNoKeyLoaded) {
		t.Errorf("ExportKey: expected ErrNoKeyLoaded, got %v", err)
	}

	// Closed store: everything fails, Close stays idempotent.
	if err := s.GenerateKey(); err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if _, err := s.Get("x"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Get after Close: expected ErrStoreClosed, got %v", err)
	}
	if err := s.Set("x", "1"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Set after Close: expected ErrStoreClosed, got %v", err)
	}
	if err := s.GenerateKey(); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("GenerateKey after Close: expected ErrStoreClosed, got %v", err)
	}
}

func TestGetMissing(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()
	if err := s.GenerateKey(); err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()
	if err := s.GenerateKey(); err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if err := s.Set("foo", "bar"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	removed, err := s.Delete("FOO") // case-insensitive match
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !removed {
		t.Error("expected Delete to report removal")
	}
	removed, err = s.Delete("foo")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if removed {
		t.Error("expected second Delete to report nothing removed")
	}
}

func TestCaseInsensitiveNames(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()
	if err := s.GenerateKey(); err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	if err := s.Set("Token", "first"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set("TOKEN", "second"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	keys := s.Keys()
	if len(keys) != 1 {
		t.Fatalf("expected one key, got %v", keys)
	}
	// The first spelling stays canonical; the blob is replaced.
	if keys[0] != "Token" {
		t.Errorf("expected canonical name Token, got %q", keys[0])
	}
	got, err := s.Get("token")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "second" {
		t.Errorf("expected %q, got %q", "second", got)
	}
	if !s.Has("tOkEn") {
		t.Error("Has must match case-insensitively")
	}
}

func TestEmptyNameRejected(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()
	if err := s.GenerateKey(); err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if err := s.Set("", "x"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}
}

func TestEmptyValueRoundTrip(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()
	if err := s.GenerateKey(); err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if err := s.Set("empty", ""); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// An empty plaintext still pads to one full cipher block.
	if blob := s.doc.Secrets["empty"]; len(blob.Payload) != 16 {
		t.Errorf("expected 16-byte payload for empty plaintext, got %d", len(blob.Payload))
	}
	got, err := s.Get("empty")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestLoadRejectsUnsupportedVersion(t *testing.T) {
	salt := base64.StdEncoding.EncodeToString(make([]byte, SaltLength))
	data := `{"version": 9, "iv": "` + salt + `", "secrets": {}}`
	if _, err := Load(bytes.NewReader([]byte(data))); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("expected ErrUnsupportedVersion, got %v", err)
	}
}
