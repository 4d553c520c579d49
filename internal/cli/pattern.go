// Package cli provides shared utilities for CLI commands.
package cli

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ExpandPattern expands a glob pattern against available names.
// If the pattern contains glob characters (*?[), it performs glob
// matching. Otherwise, it performs exact matching.
func ExpandPattern(pattern string, availableNames []string) ([]string, error) {
	// Validate pattern syntax
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
	}

	hasGlob := strings.ContainsAny(pattern, "*?[")

	if !hasGlob {
		// Exact match - verify name exists
		for _, name := range availableNames {
			if name == pattern {
				return []string{pattern}, nil
			}
		}
		return nil, fmt.Errorf("secret '%s' not found", pattern)
	}

	// Glob matching
	var matches []string
	for _, name := range availableNames {
		matched, err := filepath.Match(pattern, name)
		if err != nil {
			return nil, err
		}
		if matched {
			matches = append(matches, name)
		}
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("no secrets match pattern '%s'", pattern)
	}

	return matches, nil
}
