package validate

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeRecognizedForms(t *testing.T) {
	cases := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtube.com/watch?v=dQw4w9WgXcQ",
		"http://youtu.be/dQw4w9WgXcQ",
		"https://www.youtu.be/dQw4w9WgXcQ",
		"https://www.youtube.com/embed/dQw4w9WgXcQ",
		"https://www.youtube.com/watch?feature=share&v=dQw4w9WgXcQ",
	}
	for _, raw := range cases {
		got, err := Normalize(raw)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", raw, err)
		}
		if got != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
			t.Fatalf("Normalize(%q) = %q", raw, got)
		}
	}
}

func TestNormalizeRejectsUnrecognized(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"not a url",
		"https://example.org/watch?v=abc",
		"ftp://youtube.com/watch?v=abc",
		"https://www.youtube.com/playlist?list=PL123",
		"https://youtube.com/watch?v=" + strings.Repeat("a", maxURLLength),
	}
	for _, raw := range cases {
		if _, err := Normalize(raw); !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("Normalize(%q): expected ErrInvalidURL, got %v", raw, err)
		}
	}
}

func TestVideoID(t *testing.T) {
	id, err := VideoID("https://youtu.be/abc_123-XYZ?t=10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "abc_123-XYZ" {
		t.Fatalf("unexpected id: %q", id)
	}
}
