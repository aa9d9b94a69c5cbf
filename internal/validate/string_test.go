package validate

import (
	"errors"
	"regexp"
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		constraints StringConstraints
		want        string
		wantErr     error
	}{
		{name: "valid", input: "hello", constraints: StringConstraints{MaxLength: 10}, want: "hello"},
		{name: "trimmed", input: "  hello  ", constraints: StringConstraints{TrimSpace: true}, want: "hello"},
		{name: "empty rejected", input: "", constraints: StringConstraints{}, wantErr: ErrEmpty},
		{name: "empty after trim", input: "   ", constraints: StringConstraints{TrimSpace: true}, wantErr: ErrEmpty},
		{name: "empty allowed", input: "", constraints: StringConstraints{AllowEmpty: true}, want: ""},
		{name: "too short", input: "ab", constraints: StringConstraints{MinLength: 3}, wantErr: ErrStringTooShort},
		{name: "too long", input: "abcdef", constraints: StringConstraints{MaxLength: 5}, wantErr: ErrStringTooLong},
		{name: "counts runes", input: "héllo", constraints: StringConstraints{MaxLength: 5}, want: "héllo"},
		{name: "pattern mismatch", input: "a b", constraints: StringConstraints{AllowedPattern: regexp.MustCompile(`^\w+$`)}, wantErr: ErrInvalidCharacters},
		{name: "invalid utf8", input: "a\xffb", constraints: StringConstraints{}, wantErr: ErrInvalidUTF8},
		{name: "control rejected", input: "a\x00b", constraints: StringConstraints{RejectControl: true}, wantErr: ErrInvalidCharacters},
		{name: "whitespace controls allowed", input: "a\tb\nc", constraints: StringConstraints{RejectControl: true}, want: "a\tb\nc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := String(tt.input, tt.constraints)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSearchQuery(t *testing.T) {
	if got, err := SearchQuery(""); err != nil || got != "" {
		t.Errorf("expected empty query to pass, got %q, %v", got, err)
	}
	if got, err := SearchQuery(`"database timeout" -billing`); err != nil || got != `"database timeout" -billing` {
		t.Errorf("expected query to pass unchanged, got %q, %v", got, err)
	}
	if _, err := SearchQuery(strings.Repeat("ü", MaxQueryLength)); err != nil {
		t.Errorf("expected a query at the limit to pass, got %v", err)
	}
	if _, err := SearchQuery(strings.Repeat("a", MaxQueryLength+1)); !errors.Is(err, ErrStringTooLong) {
		t.Errorf("expected ErrStringTooLong, got %v", err)
	}
	if _, err := SearchQuery("drop\x1btable"); !errors.Is(err, ErrInvalidCharacters) {
		t.Errorf("expected ErrInvalidCharacters, got %v", err)
	}
}

func TestIdentifier(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "", want: ""},
		{input: "user-1", want: "user-1"},
		{input: " 3f2a9c1e-0b7d-4c55-9a51-2a1b9e0c7d11 ", want: "3f2a9c1e-0b7d-4c55-9a51-2a1b9e0c7d11"},
		{input: "agent:planner@v2", want: "agent:planner@v2"},
		{input: "user 1", wantErr: true},
		{input: "user';--", wantErr: true},
		{input: strings.Repeat("a", MaxIdentifierLength+1), wantErr: true},
	}
	for _, tt := range tests {
		got, err := Identifier(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("Identifier(%q): expected error=%v, got %v", tt.input, tt.wantErr, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("Identifier(%q): expected %q, got %q", tt.input, tt.want, got)
		}
	}
}

func TestTerm(t *testing.T) {
	if got, err := Term(" timeout "); err != nil || got != "timeout" {
		t.Errorf("expected trimmed term, got %q, %v", got, err)
	}
	if _, err := Term("  "); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
	if _, err := Term(strings.Repeat("x", MaxTermLength+1)); !errors.Is(err, ErrStringTooLong) {
		t.Errorf("expected ErrStringTooLong, got %v", err)
	}
}
