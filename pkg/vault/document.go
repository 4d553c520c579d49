package vault

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Schema version constants
const (
	// SchemaVersion1 is the original schema: 8-byte salt, JSON-typed
	// values, no sentinel.
	SchemaVersion1 = 1
	// SchemaVersion2 adds the sentinel, stores strings/bytes raw, and
	// lower-cases the member names.
	SchemaVersion2 = 2
	// SchemaVersion3 widens the salt to 16 bytes and raises the PBKDF2
	// iteration count.
	SchemaVersion3 = 3
	// CurrentSchemaVersion is the schema written by this implementation.
	CurrentSchemaVersion = SchemaVersion3
)

// Schema parameters fixed per version.
const (
	// SaltLength is the v3 PBKDF2 salt length.
	SaltLength = 16
	// LegacySaltLength is the v1/v2 salt length.
	LegacySaltLength = 8
	// PBKDF2Iterations is the v3 iteration count.
	PBKDF2Iterations = 256000
	// LegacyPBKDF2Iterations is the v1/v2 iteration count.
	LegacyPBKDF2Iterations = 10000
	// sentinelLength is the length of the random sentinel plaintext.
	sentinelLength = 32
)

// Document is the serializable vault container: schema version, the
// vault-level salt (serialized as "iv" for historical reasons), the
// creation-time sentinel, and the name→blob map.
type Document struct {
	Version  int
	Salt     []byte
	Sentinel *Blob
	Secrets  map[string]*Blob
}

// iterations returns the PBKDF2 iteration count for the document's
// schema version.
func (d *Document) iterations() int {
	if d.Version >= SchemaVersion3 {
		return PBKDF2Iterations
	}
	return LegacyPBKDF2Iterations
}

// secretsMap serializes the name→blob map with stable, case-insensitive
// ordinal key order so saved vaults diff cleanly.
type secretsMap map[string]*Blob

func (m secretsMap) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return nameLess(names[i], names[j]) })

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(m[name])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// documentJSON fixes the outer member order: version, iv, sentinel,
// secrets. Struct field order pins the serialized order.
type documentJSON struct {
	Version  int        `json:"version"`
	IV       []byte     `json:"iv"`
	Sentinel *Blob      `json:"sentinel"`
	Secrets  secretsMap `json:"secrets"`
}

// Marshal serializes the document deterministically: two-space indent,
// \n line terminators, fixed member order, secrets sorted by name.
func (d *Document) Marshal() ([]byte, error) {
	out, err := json.MarshalIndent(documentJSON{
		Version:  d.Version,
		IV:       d.Salt,
		Sentinel: d.Sentinel,
		Secrets:  secretsMap(d.Secrets),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("vault: failed to marshal document: %w", err)
	}
	return append(out, '\n'), nil
}

// ParseDocument parses a vault document of any supported schema version.
// Member names are matched case-insensitively for pre-v2 documents,
// whose writers capitalized them.
func ParseDocument(data []byte) (*Document, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedStore, err)
	}

	member := func(name string) (json.RawMessage, bool) {
		if v, ok := raw[name]; ok {
			return v, true
		}
		for k, v := range raw {
			if asciiLower(k) == name {
				return v, true
			}
		}
		return nil, false
	}

	versionRaw, ok := member("version")
	if !ok {
		return nil, fmt.Errorf("%w: missing version", ErrCorruptedStore)
	}
	var version int
	if err := json.Unmarshal(versionRaw, &version); err != nil {
		return nil, fmt.Errorf("%w: bad version", ErrCorruptedStore)
	}
	if version > CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: got v%d, max supported v%d",
			ErrUnsupportedVersion, version, CurrentSchemaVersion)
	}
	if version < SchemaVersion1 {
		return nil, fmt.Errorf("%w: bad version %d", ErrCorruptedStore, version)
	}

	doc := &Document{Version: version, Secrets: make(map[string]*Blob)}

	saltRaw, ok := member("iv")
	if !ok {
		return nil, fmt.Errorf("%w: missing iv", ErrCorruptedStore)
	}
	if err := unmarshalBase64(saltRaw, &doc.Salt); err != nil {
		return nil, fmt.Errorf("%w: bad iv", ErrCorruptedStore)
	}
	wantSalt := SaltLength
	if version < SchemaVersion3 {
		wantSalt = LegacySaltLength
	}
	if len(doc.Salt) != wantSalt {
		return nil, fmt.Errorf("%w: salt is %d bytes, want %d",
			ErrCorruptedStore, len(doc.Salt), wantSalt)
	}

	if sentinelRaw, ok := member("sentinel"); ok && !bytes.Equal(sentinelRaw, []byte("null")) {
		b, err := parseBlob(sentinelRaw)
		if err != nil {
			return nil, err
		}
		doc.Sentinel = b
	}

	if secretsRaw, ok := member("secrets"); ok {
		var entries map[string]json.RawMessage
		if err := json.Unmarshal(secretsRaw, &entries); err != nil {
			return nil, fmt.Errorf("%w: bad secrets", ErrCorruptedStore)
		}
		for name, entry := range entries {
			if name == "" {
				return nil, fmt.Errorf("%w: empty secret name", ErrCorruptedStore)
			}
			b, err := parseBlob(entry)
			if err != nil {
				return nil, err
			}
			doc.Secrets[name] = b
		}
	}

	return doc, nil
}

// parseBlob parses a blob object, matching member names
// case-insensitively for legacy writers.
func parseBlob(data []byte) (*Blob, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: bad blob", ErrCorruptedStore)
	}
	b := &Blob{}
	for k, v := range raw {
		var dst *[]byte
		switch asciiLower(k) {
		case "iv":
			dst = &b.IV
		case "hmac":
			dst = &b.HMAC
		case "payload":
			dst = &b.Payload
		default:
			continue
		}
		if err := unmarshalBase64(v, dst); err != nil {
			return nil, fmt.Errorf("%w: bad blob field %s", ErrCorruptedStore, k)
		}
	}
	if b.IV == nil || b.HMAC == nil || b.Payload == nil {
		return nil, fmt.Errorf("%w: incomplete blob", ErrCorruptedStore)
	}
	return b, nil
}

// unmarshalBase64 decodes a JSON string member holding standard base64.
func unmarshalBase64(raw json.RawMessage, dst *[]byte) error {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

// asciiLower lower-cases ASCII letters only. Name comparison is ordinal
// and case-insensitive; Unicode case folding is deliberately not applied
// (it would change the on-disk order without a schema bump).
func asciiLower(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}

// nameLess is the on-disk ordering: case-insensitive ordinal, with a
// raw-byte tiebreak so equal-fold names still order deterministically.
func nameLess(a, b string) bool {
	la, lb := asciiLower(a), asciiLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}

// nameEqual reports whether two secret names refer to the same secret.
func nameEqual(a, b string) bool {
	return asciiLower(a) == asciiLower(b)
}
