// Package importer provides parsers for loading existing secrets into a
// vault. Supported sources: dotenv files (KEY=VALUE lines) and flat JSON
// objects mapping names to string values.
package importer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Source represents the input format.
type Source string

const (
	SourceDotenv Source = "dotenv"
	SourceJSON   Source = "json"
)

// MaxNameLength is the maximum allowed secret name length after
// normalization.
const MaxNameLength = 128

// ImportedSecret is one parsed name/value pair.
type ImportedSecret struct {
	// Name is the normalized secret name.
	Name string

	// OriginalName is the name as it appeared in the source.
	OriginalName string

	// Value is the secret value.
	Value string
}

// Result contains the outcome of a parse.
type Result struct {
	Secrets []ImportedSecret
	Skipped []SkippedItem
}

// SkippedItem is an input entry that could not be imported.
type SkippedItem struct {
	OriginalName string
	Reason       string
}

// DetectSource guesses the input format: data starting with '{' is a
// JSON object, anything else is treated as dotenv lines.
func DetectSource(data []byte) Source {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return SourceJSON
	}
	return SourceDotenv
}

// Parse parses data in the given format. Names are NFC-normalized so
// visually identical spellings from different editors collapse to one
// secret.
func Parse(data []byte, source Source) (*Result, error) {
	switch source {
	case SourceDotenv:
		return parseDotenv(data)
	case SourceJSON:
		return parseJSON(data)
	default:
		return nil, fmt.Errorf("importer: unknown source %q", source)
	}
}

// parseDotenv parses KEY=VALUE lines. Blank lines and #-comments are
// ignored; values may be single- or double-quoted.
func parseDotenv(data []byte) (*Result, error) {
	result := &Result{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		name, value, ok := strings.Cut(line, "=")
		if !ok {
			result.Skipped = append(result.Skipped, SkippedItem{
				OriginalName: line,
				Reason:       fmt.Sprintf("line %d: not a KEY=VALUE pair", lineNo),
			})
			continue
		}
		name = strings.TrimSpace(name)
		value = unquote(strings.TrimSpace(value))
		addSecret(result, name, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("importer: failed to scan input: %w", err)
	}
	return result, nil
}

// parseJSON parses a flat JSON object of string values.
func parseJSON(data []byte) (*Result, error) {
	var entries map[string]any
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("importer: invalid JSON input: %w", err)
	}

	result := &Result{}
	for name, raw := range entries {
		value, ok := raw.(string)
		if !ok {
			result.Skipped = append(result.Skipped, SkippedItem{
				OriginalName: name,
				Reason:       "value is not a string",
			})
			continue
		}
		addSecret(result, name, value)
	}
	return result, nil
}

// addSecret normalizes the name and appends the pair, recording a skip
// for names that normalize to nothing or overflow the length cap.
func addSecret(result *Result, name, value string) {
	normalized := NormalizeName(name)
	if normalized == "" {
		result.Skipped = append(result.Skipped, SkippedItem{
			OriginalName: name,
			Reason:       "empty name",
		})
		return
	}
	if len(normalized) > MaxNameLength {
		result.Skipped = append(result.Skipped, SkippedItem{
			OriginalName: name,
			Reason:       fmt.Sprintf("name longer than %d bytes", MaxNameLength),
		})
		return
	}
	result.Secrets = append(result.Secrets, ImportedSecret{
		Name:         normalized,
		OriginalName: name,
		Value:        value,
	})
}

// NormalizeName NFC-normalizes a name and trims surrounding whitespace.
// Case is preserved: the vault compares names case-insensitively on its
// own terms.
func NormalizeName(name string) string {
	return strings.TrimSpace(norm.NFC.String(name))
}

// unquote strips one level of matching single or double quotes.
func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
