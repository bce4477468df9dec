// Package href derives safe storage-local filenames/URL segments from an
// item's identity, falling back to a random UUID when the identity isn't
// safe to use verbatim.
package href

import "github.com/google/uuid"

// Generate returns ident verbatim if every character is alphanumeric or one
// of "_.-+"; otherwise it returns a freshly generated UUIDv4 string.
func Generate(ident string) string {
	if isSafe(ident) {
		return ident
	}
	return Random()
}

// Random returns a freshly generated UUIDv4 string, for callers that need
// a href with no relation to any item identity (e.g. a retry after a
// path-too-long error).
func Random() string {
	return uuid.NewString()
}

func isSafe(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '.' || r == '-' || r == '+':
		default:
			return false
		}
	}
	return true
}
