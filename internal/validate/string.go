// Package validate checks user-supplied search input before it reaches the
// ranking engine or the store.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// String validation errors
var (
	ErrStringTooShort    = errors.New("string is too short")
	ErrStringTooLong     = errors.New("string is too long")
	ErrInvalidCharacters = errors.New("string contains invalid characters")
	ErrInvalidUTF8       = errors.New("string is not valid UTF-8")
	ErrEmpty             = errors.New("string is empty")
)

// Limits for search input, in characters.
const (
	MaxQueryLength      = 4096
	MaxIdentifierLength = 128
	MaxTermLength       = 100
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9._:@\-]+$`)

// StringConstraints defines validation constraints for a string.
type StringConstraints struct {
	MinLength      int            // Minimum length (0 = no minimum)
	MaxLength      int            // Maximum length (0 = no maximum)
	AllowedPattern *regexp.Regexp // Optional regex pattern for allowed characters
	AllowEmpty     bool
	TrimSpace      bool
	// RejectControl rejects control characters other than tab, newline and carriage return.
	RejectControl bool
}

// String validates a string against the given constraints.
// Returns the validated (and optionally trimmed) string and an error if validation fails.
func String(s string, constraints StringConstraints) (string, error) {
	if !utf8.ValidString(s) {
		return "", ErrInvalidUTF8
	}

	if constraints.TrimSpace {
		s = strings.TrimSpace(s)
	}

	if s == "" {
		if !constraints.AllowEmpty {
			return "", ErrEmpty
		}
		return s, nil
	}

	// Lengths count characters, not bytes.
	length := utf8.RuneCountInString(s)
	if constraints.MinLength > 0 && length < constraints.MinLength {
		return "", fmt.Errorf("%w: got %d chars, need at least %d", ErrStringTooShort, length, constraints.MinLength)
	}
	if constraints.MaxLength > 0 && length > constraints.MaxLength {
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrStringTooLong, length, constraints.MaxLength)
	}

	if constraints.AllowedPattern != nil && !constraints.AllowedPattern.MatchString(s) {
		return "", fmt.Errorf("%w: does not match required pattern", ErrInvalidCharacters)
	}

	if constraints.RejectControl {
		for _, r := range s {
			if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' {
				return "", fmt.Errorf("%w: control character %U", ErrInvalidCharacters, r)
			}
		}
	}

	return s, nil
}

// SearchQuery validates a free-text query. Empty queries are allowed; the
// engine answers them with an empty result.
func SearchQuery(q string) (string, error) {
	return String(q, StringConstraints{
		MaxLength:     MaxQueryLength,
		AllowEmpty:    true,
		RejectControl: true,
	})
}

// Identifier validates an optional owner, organization, conversation or agent ID.
func Identifier(id string) (string, error) {
	return String(id, StringConstraints{
		MaxLength:      MaxIdentifierLength,
		AllowedPattern: identifierPattern,
		AllowEmpty:     true,
		TrimSpace:      true,
	})
}

// Term validates one explicit search term.
func Term(term string) (string, error) {
	return String(term, StringConstraints{
		MinLength:     1,
		MaxLength:     MaxTermLength,
		TrimSpace:     true,
		RejectControl: true,
	})
}
