// Package validate normalizes incoming media URLs against the recognized
// source patterns before any resource is reserved for them.
package validate

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidURL is returned for empty, overlong or unrecognized URLs.
var ErrInvalidURL = errors.New("invalid url")

const maxURLLength = 2048

var sourcePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://(?:www\.)?youtube\.com/watch\?(?:.*&)?v=([\w-]+)`),
	regexp.MustCompile(`^https?://(?:www\.)?youtu\.be/([\w-]+)`),
	regexp.MustCompile(`^https?://(?:www\.)?youtube\.com/embed/([\w-]+)`),
}

// Normalize validates a raw URL string and returns its canonical form.
// Pure function, no side effects.
func Normalize(raw string) (string, error) {
	id, err := VideoID(raw)
	if err != nil {
		return "", err
	}
	return "https://www.youtube.com/watch?v=" + id, nil
}

// VideoID extracts the video identifier from any recognized URL form.
func VideoID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxURLLength {
		return "", ErrInvalidURL
	}
	for _, pattern := range sourcePatterns {
		if m := pattern.FindStringSubmatch(raw); m != nil {
			return m[1], nil
		}
	}
	return "", ErrInvalidURL
}
