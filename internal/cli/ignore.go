package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// vcsIgnoreFiles maps the marker directory of a working copy to its
// ignore file name.
var vcsIgnoreFiles = map[string]string{
	".git": ".gitignore",
	".hg":  ".hgignore",
}

// EnsureKeyIgnored appends the key file path to the working copy's
// ignore file so a freshly created key is never committed next to the
// vault. It walks up from the key's directory looking for a VCS root;
// outside any working copy it is a no-op. It reports whether an entry
// was added.
func EnsureKeyIgnored(keyPath string) (bool, error) {
	abs, err := filepath.Abs(keyPath)
	if err != nil {
		return false, fmt.Errorf("failed to resolve key path: %w", err)
	}

	root, ignoreName := findVCSRoot(filepath.Dir(abs))
	if root == "" {
		return false, nil
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false, nil
	}
	entry := filepath.ToSlash(rel)

	ignorePath := filepath.Join(root, ignoreName)
	if present, err := containsLine(ignorePath, entry); err != nil {
		return false, err
	} else if present {
		return false, nil
	}

	f, err := os.OpenFile(ignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return false, fmt.Errorf("failed to open %s: %w", ignoreName, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%s\n", entry); err != nil {
		return false, fmt.Errorf("failed to update %s: %w", ignoreName, err)
	}
	return true, nil
}

// findVCSRoot walks up from dir to the filesystem root looking for a
// version-control marker directory.
func findVCSRoot(dir string) (root, ignoreName string) {
	for {
		for marker, ignore := range vcsIgnoreFiles {
			if info, err := os.Stat(filepath.Join(dir, marker)); err == nil && info.IsDir() {
				return dir, ignore
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ""
		}
		dir = parent
	}
}

// containsLine reports whether the file already has the exact line.
// A missing file counts as not containing it.
func containsLine(path, line string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == line {
			return true, nil
		}
	}
	return false, scanner.Err()
}
