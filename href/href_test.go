package href

import (
	"regexp"
	"testing"
)

var uuidRegexp = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestGenerateSafeIdentUnchanged(t *testing.T) {
	tcs := []string{
		"simple-uid",
		"uid.with.dots",
		"UID_123+plus",
		"a",
	}
	for _, tc := range tcs {
		tc := tc
		t.Run(tc, func(t *testing.T) {
			if got := Generate(tc); got != tc {
				t.Fatalf("Generate(%q) = %q, want unchanged", tc, got)
			}
		})
	}
}

func TestGenerateUnsafeIdentFallsBackToUUID(t *testing.T) {
	tcs := []string{
		"has spaces",
		"slash/in/it",
		"colon:here",
		"",
		"unicode-é",
	}
	for _, tc := range tcs {
		tc := tc
		t.Run(tc, func(t *testing.T) {
			got := Generate(tc)
			if !uuidRegexp.MatchString(got) {
				t.Fatalf("Generate(%q) = %q, want UUIDv4", tc, got)
			}
		})
	}
}
