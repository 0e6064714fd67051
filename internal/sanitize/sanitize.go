// Package sanitize cleans user supplied names before they reach file paths or
// single-line text formats.
package sanitize

import (
	"errors"
	"path/filepath"
	"strings"
	"unicode"
)

// ErrTraversal is returned when a relative path would escape its root.
var ErrTraversal = errors.New("path escapes root directory")

// Name keeps letters, digits and a few punctuation runes, replaces anything
// else with '_' and drops control characters. maxLen counts runes; 0 means no
// limit.
func Name(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if allowedRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if maxLen > 0 {
		if runes := []rune(cleaned); len(runes) > maxLen {
			cleaned = strings.TrimSpace(string(runes[:maxLen]))
		}
	}
	return cleaned
}

func allowedRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')':
		return true
	}
	return false
}

// Filename is Name without spaces and leading dots, suitable as the last
// element of a storage key. An empty result becomes fallback.
func Filename(s, fallback string) string {
	name := Name(filepath.Base(filepath.ToSlash(s)), 120)
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return fallback
	}
	return name
}

// Join resolves rel beneath root and refuses absolute paths and any ".."
// element.
func Join(root, rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", errors.New("path is required")
	}
	slashed := filepath.ToSlash(rel)
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(rel) {
		return "", ErrTraversal
	}
	for _, part := range strings.Split(slashed, "/") {
		if part == ".." {
			return "", ErrTraversal
		}
	}
	return filepath.Join(root, filepath.FromSlash(slashed)), nil
}
