// Package validate checks free-form strings received at the HTTP edge before
// they reach the registry.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// String validation errors.
var (
	ErrEmpty             = errors.New("string is empty")
	ErrStringTooShort    = errors.New("string is too short")
	ErrStringTooLong     = errors.New("string is too long")
	ErrInvalidCharacters = errors.New("string contains invalid characters")
	ErrInvalidUTF8       = errors.New("string is not valid UTF-8")
)

// Length limits for registry fields.
const (
	MaxCommunityIDLength = 200
	MaxFreeTextLength    = 500
)

// StringConstraints defines validation constraints for a string.
type StringConstraints struct {
	MinLength      int            // minimum rune count (0 = no minimum)
	MaxLength      int            // maximum rune count (0 = no maximum)
	AllowedPattern *regexp.Regexp // optional pattern the whole string must match
	AllowEmpty     bool
	AllowNewlines  bool // permit \n, \r and \t among otherwise rejected control characters
	TrimSpace      bool // trim before validating; the trimmed value is returned
}

// String validates s against c and returns the (optionally trimmed) value.
func String(s string, c StringConstraints) (string, error) {
	if !utf8.ValidString(s) {
		return "", ErrInvalidUTF8
	}
	if c.TrimSpace {
		s = strings.TrimSpace(s)
	}
	if s == "" {
		if c.AllowEmpty {
			return s, nil
		}
		return "", ErrEmpty
	}

	length := utf8.RuneCountInString(s)
	if c.MinLength > 0 && length < c.MinLength {
		return "", fmt.Errorf("%w: got %d chars, need at least %d", ErrStringTooShort, length, c.MinLength)
	}
	if c.MaxLength > 0 && length > c.MaxLength {
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrStringTooLong, length, c.MaxLength)
	}

	for _, r := range s {
		if !unicode.IsControl(r) {
			continue
		}
		if c.AllowNewlines && (r == '\n' || r == '\r' || r == '\t') {
			continue
		}
		return "", fmt.Errorf("%w: control character %U", ErrInvalidCharacters, r)
	}

	if c.AllowedPattern != nil && !c.AllowedPattern.MatchString(s) {
		return "", fmt.Errorf("%w: does not match required pattern", ErrInvalidCharacters)
	}
	return s, nil
}

// CommunityID validates an explicit community id: non-empty after trimming,
// at most MaxCommunityIDLength characters, no control characters. Derived
// ids always pass.
func CommunityID(id string) (string, error) {
	return String(id, StringConstraints{
		MinLength: 1,
		MaxLength: MaxCommunityIDLength,
		TrimSpace: true,
	})
}

// FreeText validates an optional text field such as a name or an address:
// at most MaxFreeTextLength characters after trimming, no control characters
// other than line breaks and tabs.
func FreeText(s string) (string, error) {
	return String(s, StringConstraints{
		MaxLength:     MaxFreeTextLength,
		AllowEmpty:    true,
		AllowNewlines: true,
		TrimSpace:     true,
	})
}
