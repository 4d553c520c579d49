// Package vault implements the SecureStore vault: a symmetrically
// encrypted, diff-friendly secrets file together with the manager that
// creates, reads, mutates and persists it.
//
// A Store binds to exactly one key for its lifetime. The key is loaded
// once (generated, read from a key file or stream, or derived from a
// password) and every value is individually encrypted under it with a
// fresh random IV. A creation-time sentinel proves on later sessions
// that the loaded key is the one the vault was written with, so a
// mistyped password cannot silently mix keys inside one file.
package vault

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/securestore/securestore/pkg/crypto"
	"github.com/securestore/securestore/pkg/securebuf"
)

// Policy controls whether an older-schema vault may be upgraded at load
// time. The library defaults to PolicyStrict; interactive callers
// usually pass PolicyUpgrade.
type Policy int

const (
	// PolicyStrict refuses to load vaults with an older schema.
	PolicyStrict Policy = iota
	// PolicyUpgrade upgrades older vaults in memory once key material
	// becomes available.
	PolicyUpgrade
)

// storeFileMode is the permission of saved vault files. The file holds
// only ciphertext and is designed to be committed to version control.
const storeFileMode = 0644

// Store is the secrets manager: it owns the vault document and the key
// material and mediates every get/set/delete through the crypto
// primitives. A Store is safe for concurrent reads but callers must
// serialize mutation; operations never block on anything but file I/O.
type Store struct {
	mu         sync.Mutex
	doc        *Document
	key        *KeyMaterial
	serializer Serializer
	policy     Policy

	upgradeFrom     int  // pending upgrade source version; 0 when none
	sentinelChecked bool // sentinel validated (or created) this session
	closed          bool
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithPolicy sets the schema upgrade policy.
func WithPolicy(p Policy) Option {
	return func(s *Store) { s.policy = p }
}

// WithSerializer replaces the default value codec.
func WithSerializer(ser Serializer) Option {
	return func(s *Store) { s.serializer = ser }
}

// New returns a fresh store with a newly generated 16-byte salt and no
// key loaded. No file is touched.
func New(opts ...Option) (*Store, error) {
	salt, err := crypto.RandomBytes(SaltLength)
	if err != nil {
		return nil, err
	}
	s := newStore(opts)
	s.doc = &Document{
		Version: CurrentSchemaVersion,
		Salt:    salt,
		Secrets: make(map[string]*Blob),
	}
	return s, nil
}

// Load parses a vault document from r. Older schemas are accepted under
// PolicyUpgrade and marked for upgrade; the upgrade itself runs when key
// material becomes available. Newer schemas fail with
// ErrUnsupportedVersion.
func Load(r io.Reader, opts ...Option) (*Store, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to read store: %w", err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}

	s := newStore(opts)
	if doc.Version < CurrentSchemaVersion {
		if s.policy == PolicyStrict {
			return nil, fmt.Errorf("%w: store is v%d", ErrPolicyViolation, doc.Version)
		}
		s.upgradeFrom = doc.Version
	}
	s.doc = doc
	return s, nil
}

// LoadFile loads a vault document from a file path.
func LoadFile(path string, opts ...Option) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to open store: %w", err)
	}
	defer f.Close()
	return Load(f, opts...)
}

func newStore(opts []Option) *Store {
	s := &Store{
		serializer: DefaultSerializer{},
		policy:     PolicyStrict,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateKey loads fresh key material from the CSPRNG. Exactly one key
// load may succeed per store.
func (s *Store) GenerateKey() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkKeyless(); err != nil {
		return err
	}
	source, err := crypto.RandomBytes(crypto.SplitKeyLength)
	if err != nil {
		return err
	}
	return s.adoptKey(source, nil)
}

// LoadKeyFromFile loads key material from a key file: either exactly 32
// raw bytes (legacy) or a PEM wrapping of 32 bytes.
func (s *Store) LoadKeyFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("vault: failed to open key file: %w", err)
	}
	defer f.Close()
	return s.LoadKeyFromReader(f)
}

// LoadKeyFromReader loads key material from a stream, applying the same
// length-based format detection as LoadKeyFromFile and a 2 KiB read
// ceiling.
func (s *Store) LoadKeyFromReader(r io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkKeyless(); err != nil {
		return err
	}
	source, err := readKeySource(r)
	if err != nil {
		return err
	}
	return s.adoptKey(source, nil)
}

// LoadKeyFromPassword derives key material from a password with
// PBKDF2-HMAC-SHA1 over the vault's salt. The iteration count follows
// the loaded document's schema version, so a pending v1/v2 upgrade first
// derives the key the old vault was written with.
func (s *Store) LoadKeyFromPassword(password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkKeyless(); err != nil {
		return err
	}

	passwordBytes := []byte(password)
	defer crypto.SecureWipe(passwordBytes)

	source := crypto.DeriveKey(passwordBytes, s.doc.Salt, s.doc.iterations())
	return s.adoptKey(source, passwordBytes)
}

// checkKeyless validates the store can accept a key load. Callers hold
// the mutex.
func (s *Store) checkKeyless() error {
	if s.closed {
		return ErrStoreClosed
	}
	if s.doc == nil {
		return ErrNoStoreLoaded
	}
	if s.key != nil {
		return ErrKeyAlreadyLoaded
	}
	return nil
}

// adoptKey splits the 32-byte source into the working key pair and runs
// any pending schema upgrade. On upgrade failure the key is destroyed
// again so the caller can retry (typically with the correct password);
// the failed load leaves no observable state change.
func (s *Store) adoptKey(source, password []byte) error {
	key, err := newKeyMaterial(source)
	if err != nil {
		return err
	}
	s.key = key

	if s.upgradeFrom != 0 {
		if err := s.upgrade(password); err != nil {
			s.key.destroy()
			s.key = nil
			return err
		}
		s.upgradeFrom = 0
	}
	return nil
}

// ExportKey writes the loaded key material to path, PEM-armored.
func (s *Store) ExportKey(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkKeyed(); err != nil {
		return err
	}
	buf := s.key.export()
	defer buf.Destroy()
	return writeKeyFile(path, buf.Bytes())
}

// ExportKeyBuffer returns the 32-byte key concatenation in a secure
// buffer owned by the caller.
func (s *Store) ExportKeyBuffer() (*securebuf.Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkKeyed(); err != nil {
		return nil, err
	}
	return s.key.export(), nil
}

// checkKeyed validates the store is usable for crypto operations.
// Callers hold the mutex.
func (s *Store) checkKeyed() error {
	if s.closed {
		return ErrStoreClosed
	}
	if s.doc == nil {
		return ErrNoStoreLoaded
	}
	if s.key == nil {
		return ErrNoKeyLoaded
	}
	return nil
}

// Get returns the named secret decrypted as a UTF-8 string.
func (s *Store) Get(name string) (string, error) {
	data, err := s.GetBytes(name)
	if err != nil {
		return "", err
	}
	value := string(data)
	crypto.SecureWipe(data)
	return value, nil
}

// GetBytes returns the named secret decrypted as raw bytes.
func (s *Store) GetBytes(name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkKeyed(); err != nil {
		return nil, err
	}
	_, blob, ok := s.findSecret(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	buf, err := openBlob(s.key, blob)
	if err != nil {
		return nil, err
	}
	defer buf.Destroy()
	return append([]byte{}, buf.Bytes()...), nil
}

// GetValue decrypts the named secret and deserializes it into out using
// the store's serializer.
func (s *Store) GetValue(name string, out any) error {
	data, err := s.GetBytes(name)
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(data)
	return s.serializer.Deserialize(data, out)
}

// Set encrypts a string value and stores it under name, replacing any
// prior value.
func (s *Store) Set(name, value string) error {
	return s.SetBytes(name, []byte(value))
}

// SetBytes encrypts a byte value and stores it under name.
//
// If the vault has no sentinel yet one is created first; if it has one
// that was not written this session, it must decrypt under the loaded
// key before anything new is encrypted. The check runs at most once per
// store.
func (s *Store) SetBytes(name string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkKeyed(); err != nil {
		return err
	}
	if name == "" {
		return ErrInvalidName
	}
	if err := s.ensureSentinel(true); err != nil {
		return err
	}

	blob, err := sealBlob(s.key, value)
	if err != nil {
		return err
	}

	// Replace the blob under the existing name if one matches
	// case-insensitively, so a vault never holds two spellings of the
	// same secret.
	if existing, _, ok := s.findSecret(name); ok {
		s.doc.Secrets[existing] = blob
		return nil
	}
	s.doc.Secrets[name] = blob
	return nil
}

// SetValue serializes an arbitrary value with the store's serializer and
// stores it under name.
func (s *Store) SetValue(name string, value any) error {
	data, err := s.serializer.Serialize(value)
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(data)
	return s.SetBytes(name, data)
}

// Delete removes the named secret. It reports whether the name existed.
func (s *Store) Delete(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrStoreClosed
	}
	if s.doc == nil {
		return false, ErrNoStoreLoaded
	}
	existing, _, ok := s.findSecret(name)
	if !ok {
		return false, nil
	}
	delete(s.doc.Secrets, existing)
	return true, nil
}

// Has reports whether the named secret exists. No key is required.
func (s *Store) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.doc == nil {
		return false
	}
	_, _, ok := s.findSecret(name)
	return ok
}

// Keys returns the secret names in on-disk order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.doc == nil {
		return nil
	}
	names := make([]string, 0, len(s.doc.Secrets))
	for name := range s.doc.Secrets {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return nameLess(names[i], names[j]) })
	return names
}

// Version returns the document's schema version.
func (s *Store) Version() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		return 0
	}
	return s.doc.Version
}

// Save writes the vault document to path deterministically: stable key
// order, two-space indentation, \n line terminators. A sentinel is
// created first if none exists. The write truncates in place; callers
// needing crash atomicity write to a temporary file and rename.
func (s *Store) Save(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.marshalLocked()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, storeFileMode); err != nil {
		return fmt.Errorf("vault: failed to write store: %w", err)
	}
	return nil
}

// WriteTo serializes the vault document to w. It implements
// io.WriterTo.
func (s *Store) WriteTo(w io.Writer) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.marshalLocked()
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(w, bytes.NewReader(data))
	if err != nil {
		return n, fmt.Errorf("vault: failed to write store: %w", err)
	}
	return n, nil
}

func (s *Store) marshalLocked() ([]byte, error) {
	if err := s.checkKeyed(); err != nil {
		return nil, err
	}
	if err := s.ensureSentinel(false); err != nil {
		return nil, err
	}
	return s.doc.Marshal()
}

// Close destroys the key material and marks the store closed. Further
// operations fail with ErrStoreClosed. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	if s.key != nil {
		s.key.destroy()
		s.key = nil
	}
	s.closed = true
	return nil
}

// ensureSentinel creates the sentinel if none exists. When validate is
// set and the sentinel predates this session, it also proves it
// decrypts under the loaded key. Validation failure means the loaded key
// is not the one the vault was written with and surfaces as
// ErrTamperedCiphertext before anything new is encrypted.
func (s *Store) ensureSentinel(validate bool) error {
	if s.doc.Sentinel == nil {
		return s.createSentinel(s.key)
	}

	if validate && !s.sentinelChecked {
		buf, err := openBlob(s.key, s.doc.Sentinel)
		if err != nil {
			return err
		}
		buf.Destroy()
		s.sentinelChecked = true
	}
	return nil
}

// findSecret locates a secret by case-insensitive ordinal name match and
// returns the stored spelling. Callers hold the mutex.
func (s *Store) findSecret(name string) (string, *Blob, bool) {
	if blob, ok := s.doc.Secrets[name]; ok {
		return name, blob, true
	}
	for stored, blob := range s.doc.Secrets {
		if nameEqual(stored, name) {
			return stored, blob, true
		}
	}
	return "", nil, false
}
