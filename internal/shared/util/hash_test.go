package util

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestOwnerKey(t *testing.T) {
	id := "google:12345"
	got := OwnerKey(id)
	if got != OwnerKey(" "+id+" ") {
		t.Fatalf("expected whitespace-insensitive stable key, got %s", got)
	}
	for _, ch := range got {
		if !((ch >= 'a' && ch <= 'f') || (ch >= '0' && ch <= '9')) {
			t.Fatalf("key contains non-hex character: %c", ch)
		}
	}
	if len(got) != 32 {
		t.Fatalf("expected 32 hex characters, got %d", len(got))
	}
	if got == OwnerKey("google:12346") {
		t.Fatalf("distinct owners share a key")
	}
}

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		" a/b\\c.pdf ":     "a_b_c.pdf",
		"cv\x00\n.pdf":     "cv.pdf",
		"Résumé 2026.docx": "Résumé 2026.docx",
	}
	for in, want := range cases {
		if got, err := SanitizeFileName(in); err != nil || got != want {
			t.Fatalf("SanitizeFileName(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "   ", "../x.pdf", ".", "\x01"} {
		if _, err := SanitizeFileName(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestSanitizeFileNameCapsLengthKeepingExtension(t *testing.T) {
	got, err := SanitizeFileName(strings.Repeat("é", 300) + ".pdf")
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if utf8.RuneCountInString(got) != maxFileNameRunes || !strings.HasSuffix(got, ".pdf") {
		t.Fatalf("unexpected result %q (%d runes)", got, utf8.RuneCountInString(got))
	}
}
