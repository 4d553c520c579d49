package vault

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/securestore/securestore/pkg/crypto"
	"github.com/securestore/securestore/pkg/securebuf"
)

// upgradeStep advances a document one schema version. Steps run after
// key material is available; the password is non-nil only when the key
// was derived from one, which the v2→v3 step needs to re-derive under
// the new salt and iteration count.
type upgradeStep struct {
	from  int
	to    int
	apply func(s *Store, password []byte) error
}

// upgradeSteps is the directed chain, keyed by source version.
var upgradeSteps = []upgradeStep{
	{from: SchemaVersion1, to: SchemaVersion2, apply: upgradeV1toV2},
	{from: SchemaVersion2, to: SchemaVersion3, apply: upgradeV2toV3},
}

// upgrade walks the chain from the document's version to the current
// schema. A missing step is ErrUnsupportedVersion; any error inside a
// step is flattened to ErrUpgradeFailure so partial plaintext and
// step-dependent detail cannot leak. Callers hold the mutex.
func (s *Store) upgrade(password []byte) error {
	for s.doc.Version < CurrentSchemaVersion {
		var step *upgradeStep
		for i := range upgradeSteps {
			if upgradeSteps[i].from == s.doc.Version {
				step = &upgradeSteps[i]
				break
			}
		}
		if step == nil {
			return fmt.Errorf("%w: no upgrade step from v%d", ErrUnsupportedVersion, s.doc.Version)
		}
		if err := step.apply(s, password); err != nil {
			return ErrUpgradeFailure
		}
		s.doc.Version = step.to
	}
	return nil
}

// upgradeV1toV2 re-encodes every value from the v1 JSON typing to the
// raw encoding: a JSON string becomes its UTF-8 bytes, a JSON array of
// byte values becomes raw bytes, anything else is unsupported. A
// sentinel is created, which v1 vaults never had.
func upgradeV1toV2(s *Store, _ []byte) error {
	for name, blob := range s.doc.Secrets {
		buf, err := openBlob(s.key, blob)
		if err != nil {
			return err
		}
		raw, err := decodeV1Value(buf.Bytes())
		buf.Destroy()
		if err != nil {
			return err
		}
		reblob, err := sealBlob(s.key, raw)
		crypto.SecureWipe(raw)
		if err != nil {
			return err
		}
		s.doc.Secrets[name] = reblob
	}
	return s.createSentinel(s.key)
}

// decodeV1Value converts a v1 JSON-typed plaintext to its raw encoding.
func decodeV1Value(data []byte) ([]byte, error) {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		return []byte(asString), nil
	}
	var asInts []int
	if err := json.Unmarshal(data, &asInts); err == nil {
		raw := make([]byte, len(asInts))
		for i, v := range asInts {
			if v < 0 || v > 255 {
				return nil, errors.New("vault: v1 value array element out of byte range")
			}
			raw[i] = byte(v)
		}
		return raw, nil
	}
	return nil, errors.New("vault: v1 value is neither a JSON string nor a byte array")
}

// upgradeV2toV3 moves to the 16-byte salt and the raised iteration
// count. Under a password the key itself changes, so every secret is
// decrypted, the key re-derived from the new salt, and everything
// re-encrypted with a fresh sentinel. Under a generated or file-loaded
// key the working key never depended on PBKDF2, so only the salt is
// refreshed.
func upgradeV2toV3(s *Store, password []byte) error {
	newSalt, err := crypto.RandomBytes(SaltLength)
	if err != nil {
		return err
	}

	if password == nil {
		s.doc.Salt = newSalt
		return nil
	}

	// 1. Prove the old key is the one the vault was written with, then
	// decrypt every secret under it.
	if s.doc.Sentinel != nil {
		buf, err := openBlob(s.key, s.doc.Sentinel)
		if err != nil {
			return err
		}
		buf.Destroy()
	}
	plaintexts := make(map[string]*securebuf.Buffer, len(s.doc.Secrets))
	defer func() {
		for _, buf := range plaintexts {
			buf.Destroy()
		}
	}()
	for name, blob := range s.doc.Secrets {
		buf, err := openBlob(s.key, blob)
		if err != nil {
			return err
		}
		plaintexts[name] = buf
	}

	// 2. Derive the replacement key from the new salt.
	newKey, err := newKeyMaterial(crypto.DeriveKey(password, newSalt, PBKDF2Iterations))
	if err != nil {
		return err
	}

	// 3. Re-encrypt under the new key.
	reblobs := make(map[string]*Blob, len(plaintexts))
	for name, buf := range plaintexts {
		blob, err := sealBlob(newKey, buf.Bytes())
		if err != nil {
			newKey.destroy()
			return err
		}
		reblobs[name] = blob
	}

	// 4. Commit: swap salt, secrets, sentinel and key together.
	s.doc.Salt = newSalt
	s.doc.Secrets = reblobs
	if err := s.createSentinel(newKey); err != nil {
		newKey.destroy()
		return err
	}
	s.key.destroy()
	s.key = newKey
	return nil
}

// createSentinel seals 32 fresh random bytes as the vault sentinel under
// the given key. Callers hold the mutex.
func (s *Store) createSentinel(key *KeyMaterial) error {
	plaintext, err := crypto.RandomBytes(sentinelLength)
	if err != nil {
		return err
	}
	blob, err := sealBlob(key, plaintext)
	crypto.SecureWipe(plaintext)
	if err != nil {
		return err
	}
	s.doc.Sentinel = blob
	s.sentinelChecked = true
	return nil
}
