package handlers

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"trims", "  Helper  ", 100, "Helper"},
		{"drops control characters", "Hel\x00per\n", 100, "Helper"},
		{"ascii cut", strings.Repeat("a", 120), 100, strings.Repeat("a", 100)},
		{"keeps whole rune at limit", strings.Repeat("a", 98) + "é", 100, strings.Repeat("a", 98) + "é"},
		{"drops rune split at limit", strings.Repeat("a", 99) + "é", 100, strings.Repeat("a", 99)},
		{"drops 4-byte rune split at limit", strings.Repeat("a", 98) + "😀", 100, strings.Repeat("a", 98)},
		{"repairs invalid input", "ok\xffok", 100, "ok�ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeText(tt.in, tt.max)
			if got != tt.want {
				t.Errorf("sanitizeText() = %q, want %q", got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("sanitizeText() returned invalid UTF-8 %q", got)
			}
			if len(got) > tt.max {
				t.Errorf("sanitizeText() returned %d bytes, max %d", len(got), tt.max)
			}
		})
	}
}
