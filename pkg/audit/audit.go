// Package audit provides CLI-side audit logging with an HMAC chain for
// tamper detection. The vault library itself never logs; the CLI owns
// the logger and feeds it one event per operation.
package audit

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Operation types for audit logging
const (
	OpStoreCreate  = "store.create"
	OpStoreImport  = "store.import"
	OpSecretGet    = "secret.get"
	OpSecretSet    = "secret.set"
	OpSecretDelete = "secret.delete"
	OpSecretList   = "secret.list"
	OpKeyExport    = "key.export"
)

// Result indicates the outcome of an operation
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Event is a single audit log record. Key names are never stored in the
// clear; only their HMAC under the chain key appears.
type Event struct {
	Version   int        `json:"v"`
	Timestamp string     `json:"ts"` // RFC 3339 nanosecond precision
	Operation string     `json:"op"`
	KeyHMAC   string     `json:"key_hmac,omitempty"`
	SessionID string     `json:"session_id"`
	Result    string     `json:"result"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Chain     Chain      `json:"chain"`
}

// ErrorInfo contains error details
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Chain provides the HMAC chain for tamper detection
type Chain struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

// Logger appends HMAC-chained events to monthly JSONL files.
type Logger struct {
	path       string
	hmacKey    []byte
	mu         sync.Mutex
	sequence   int64
	prevHash   string
	sessionID  string
	hmacKeySet bool
}

// NewLogger creates a logger writing under the given directory.
func NewLogger(path string) *Logger {
	return &Logger{
		path:      path,
		prevHash:  "genesis",
		sessionID: generateSessionID(),
	}
}

// SetHMACKey derives the chain key from the vault key material using
// HKDF-SHA256 and loads the persisted chain state.
func (l *Logger) SetHMACKey(keyMaterial []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := hkdf.New(sha256.New, keyMaterial, nil, []byte("securestore-audit-v1"))
	l.hmacKey = make([]byte, 32)
	if _, err := r.Read(l.hmacKey); err != nil {
		return fmt.Errorf("audit: failed to derive HMAC key: %w", err)
	}
	l.hmacKeySet = true

	if err := l.loadChainState(); err != nil {
		// Not fatal: first run has no chain state yet.
		l.sequence = 0
		l.prevHash = "genesis"
	}
	return nil
}

// Log records an audit event.
func (l *Logger) Log(op, result, keyName string, errInfo *ErrorInfo) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.hmacKeySet {
		return fmt.Errorf("audit: HMAC key not set")
	}
	if err := os.MkdirAll(l.path, 0700); err != nil {
		return fmt.Errorf("audit: failed to create directory: %w", err)
	}

	event := Event{
		Version:   1,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Operation: op,
		SessionID: l.sessionID,
		Result:    result,
		Error:     errInfo,
	}
	if keyName != "" {
		mac := hmac.New(sha256.New, l.hmacKey)
		mac.Write([]byte(keyName))
		event.KeyHMAC = hex.EncodeToString(mac.Sum(nil))
	}

	l.sequence++
	event.Chain.Sequence = l.sequence
	event.Chain.PrevHash = l.prevHash

	mac := hmac.New(sha256.New, l.hmacKey)
	mac.Write(recordData(&event))
	event.Chain.HMAC = hex.EncodeToString(mac.Sum(nil))
	l.prevHash = event.Chain.HMAC

	if err := l.writeEvent(&event); err != nil {
		return err
	}
	return l.saveChainState()
}

// LogSuccess is a convenience method for successful operations.
func (l *Logger) LogSuccess(op, keyName string) error {
	return l.Log(op, ResultSuccess, keyName, nil)
}

// LogError is a convenience method for failed operations.
func (l *Logger) LogError(op, keyName, code, msg string) error {
	return l.Log(op, ResultError, keyName, &ErrorInfo{Code: code, Message: msg})
}

// recordData builds the bytes covered by a record's HMAC. Every
// significant field participates so edits anywhere break the chain.
func recordData(event *Event) []byte {
	errorData := ""
	if event.Error != nil {
		errorData = fmt.Sprintf("%s|%s", event.Error.Code, event.Error.Message)
	}
	return []byte(fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s|%d|%s",
		event.Version,
		event.Timestamp,
		event.Operation,
		event.KeyHMAC,
		event.SessionID,
		event.Result,
		errorData,
		event.Chain.Sequence,
		event.Chain.PrevHash,
	))
}

// writeEvent appends an event to the current month's log file.
func (l *Logger) writeEvent(event *Event) error {
	name := time.Now().UTC().Format("2006-01") + ".jsonl"
	f, err := os.OpenFile(filepath.Join(l.path, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return nil
}

// chainState holds the persisted chain position.
type chainState struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
}

func (l *Logger) loadChainState() error {
	data, err := os.ReadFile(filepath.Join(l.path, "audit.meta"))
	if err != nil {
		return err
	}
	var state chainState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	l.sequence = state.Sequence
	l.prevHash = state.PrevHash
	return nil
}

func (l *Logger) saveChainState() error {
	data, err := json.Marshal(chainState{Sequence: l.sequence, PrevHash: l.prevHash})
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.path, "audit.meta"), data, 0600); err != nil {
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}
	return nil
}

func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("session-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// VerifyResult contains the results of chain verification.
type VerifyResult struct {
	Valid        bool     `json:"valid"`
	RecordsTotal int      `json:"records_total"`
	Errors       []string `json:"errors,omitempty"`
}

// Verify walks every log file in chronological order and checks the
// sequence numbers, the prev-hash links and each record's HMAC.
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.hmacKeySet {
		return nil, fmt.Errorf("audit: HMAC key not set")
	}

	files, err := l.logFiles()
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Valid: true}
	expectedPrev := "genesis"
	var expectedSeq int64 = 1

	for _, file := range files {
		events, err := readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", file, err)
		}
		for _, event := range events {
			result.RecordsTotal++
			if event.Chain.Sequence != expectedSeq {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"sequence gap at record %d: expected %d, got %d",
					result.RecordsTotal, expectedSeq, event.Chain.Sequence))
			}
			if event.Chain.PrevHash != expectedPrev {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"chain broken at record %d", result.RecordsTotal))
			}

			mac := hmac.New(sha256.New, l.hmacKey)
			mac.Write(recordData(&event))
			if event.Chain.HMAC != hex.EncodeToString(mac.Sum(nil)) {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"HMAC mismatch at record %d: possible tampering", result.RecordsTotal))
			}

			expectedPrev = event.Chain.HMAC
			expectedSeq++
		}
	}
	return result, nil
}

// ListEvents returns up to limit events, newest last. A zero limit
// returns everything; a non-zero since filters older events out.
func (l *Logger) ListEvents(limit int, since time.Time) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := l.logFiles()
	if err != nil {
		return nil, err
	}

	var all []Event
	for _, file := range files {
		events, err := readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", file, err)
		}
		all = append(all, events...)
	}

	if !since.IsZero() {
		filtered := all[:0]
		for _, event := range all {
			ts, err := time.Parse(time.RFC3339Nano, event.Timestamp)
			if err != nil {
				continue
			}
			if ts.After(since) {
				filtered = append(filtered, event)
			}
		}
		all = filtered
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

// Path returns the audit log directory.
func (l *Logger) Path() string {
	return l.path
}

// logFiles lists the monthly files in chronological order; the
// YYYY-MM.jsonl naming makes lexical order chronological.
func (l *Logger) logFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(l.path, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func readLogFile(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var events []Event
	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			if i > start {
				var event Event
				if err := json.Unmarshal(data[start:i], &event); err != nil {
					return nil, fmt.Errorf("failed to parse line: %w", err)
				}
				events = append(events, event)
			}
			start = i + 1
		}
	}
	return events, nil
}
