package source

import "strings"

// DefaultDelimiter separates list values when none is configured.
const DefaultDelimiter = ","

// List yields the trimmed tokens of a delimited string. Empty tokens are
// kept, so "a,,b" yields three entries.
type List struct {
	raw       string
	delimiter string
	once
}

// NewList creates a list source. An empty delimiter selects DefaultDelimiter.
func NewList(raw, delimiter string) *List {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	return &List{raw: raw, delimiter: delimiter}
}

// Name implements Source.
func (l *List) Name() string { return "list" }

// Empty reports whether the list has no non-blank content.
func (l *List) Empty() bool {
	return strings.TrimSpace(l.raw) == ""
}

// Tokens splits the list without consuming it.
func (l *List) Tokens() []string {
	if l.Empty() {
		return nil
	}
	parts := strings.Split(l.raw, l.delimiter)
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// Enumerate implements Source.
func (l *List) Enumerate(yield func(Item) error) error {
	if err := l.start(); err != nil {
		return err
	}
	for _, tok := range l.Tokens() {
		if err := yield(Item{Value: tok, Kind: KindEntry}); err != nil {
			return err
		}
	}
	return nil
}
