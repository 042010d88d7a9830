// Package mapper transforms raw item values before they are bound to a
// unit's parameter. A mapper may also filter an item out by producing no
// candidate.
package mapper

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnknownType is returned by New for an unsupported mapper type.
var ErrUnknownType = errors.New("unknown mapper type")

// Mapper maps one raw value to zero or more candidates. Implementations must
// be pure and safe for concurrent use.
type Mapper interface {
	Map(value string) []string
}

// Func adapts a function to the Mapper interface.
type Func func(value string) []string

// Map calls f.
func (f Func) Map(value string) []string { return f(value) }

// Apply runs m on value and returns the first candidate. It reports false
// when the item should be skipped. A nil mapper is the identity.
func Apply(m Mapper, value string) (string, bool) {
	if m == nil {
		return value, true
	}
	out := m.Map(value)
	if len(out) == 0 {
		return "", false
	}
	return out[0], true
}

// Spec is the declarative form of a mapper.
type Spec struct {
	Type            string
	From            string
	To              string
	CaseInsensitive bool
}

// Types lists the supported mapper types.
var Types = []string{"identity", "flatten", "glob", "regexp", "merge"}

// New builds a mapper from its declarative form.
func New(spec Spec) (Mapper, error) {
	switch strings.ToLower(strings.TrimSpace(spec.Type)) {
	case "", "identity":
		return Identity{}, nil
	case "flatten":
		return Flatten{}, nil
	case "glob":
		return NewGlob(spec.From, spec.To)
	case "regexp":
		return NewRegexp(spec.From, spec.To, spec.CaseInsensitive)
	case "merge":
		if spec.To == "" {
			return nil, fmt.Errorf("merge mapper: to is required")
		}
		return Merge{To: spec.To}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, spec.Type)
	}
}

// Identity returns the value unchanged.
type Identity struct{}

// Map implements Mapper.
func (Identity) Map(value string) []string { return []string{value} }

// Flatten strips any leading directory components.
type Flatten struct{}

// Map implements Mapper.
func (Flatten) Map(value string) []string {
	return []string{filepath.Base(value)}
}

// Merge maps every value to the same constant.
type Merge struct {
	To string
}

// Map implements Mapper.
func (m Merge) Map(string) []string { return []string{m.To} }

// Glob maps values matching a single-wildcard pattern, substituting the text
// matched by '*' into the target pattern. Non-matching values are skipped.
type Glob struct {
	fromPrefix, fromPostfix string
	toPrefix, toPostfix     string
	toHasStar               bool
}

// NewGlob creates a glob mapper. from must contain at most one '*'.
func NewGlob(from, to string) (*Glob, error) {
	if from == "" || to == "" {
		return nil, fmt.Errorf("glob mapper: from and to are required")
	}
	g := &Glob{}
	switch n := strings.Count(from, "*"); n {
	case 0:
		g.fromPrefix = from
	case 1:
		i := strings.Index(from, "*")
		g.fromPrefix, g.fromPostfix = from[:i], from[i+1:]
	default:
		return nil, fmt.Errorf("glob mapper: from %q has %d wildcards, want at most one", from, n)
	}
	if i := strings.Index(to, "*"); i >= 0 {
		g.toPrefix, g.toPostfix, g.toHasStar = to[:i], to[i+1:], true
	} else {
		g.toPrefix = to
	}
	return g, nil
}

// Map implements Mapper.
func (g *Glob) Map(value string) []string {
	if !strings.HasPrefix(value, g.fromPrefix) || !strings.HasSuffix(value, g.fromPostfix) {
		return nil
	}
	if len(value) < len(g.fromPrefix)+len(g.fromPostfix) {
		return nil
	}
	if !g.toHasStar {
		return []string{g.toPrefix}
	}
	middle := value[len(g.fromPrefix) : len(value)-len(g.fromPostfix)]
	return []string{g.toPrefix + middle + g.toPostfix}
}

// Regexp maps values matching a regular expression. The target may refer to
// capture groups as \0 through \9. Non-matching values are skipped.
type Regexp struct {
	re *regexp.Regexp
	to string
}

// NewRegexp creates a regexp mapper.
func NewRegexp(from, to string, caseInsensitive bool) (*Regexp, error) {
	if from == "" {
		return nil, fmt.Errorf("regexp mapper: from is required")
	}
	if caseInsensitive {
		from = "(?i)" + from
	}
	re, err := regexp.Compile(from)
	if err != nil {
		return nil, fmt.Errorf("regexp mapper: %w", err)
	}
	return &Regexp{re: re, to: to}, nil
}

// Map implements Mapper.
func (r *Regexp) Map(value string) []string {
	groups := r.re.FindStringSubmatch(value)
	if groups == nil {
		return nil
	}
	var b strings.Builder
	for i := 0; i < len(r.to); i++ {
		c := r.to[i]
		if c == '\\' && i+1 < len(r.to) {
			next := r.to[i+1]
			if next >= '0' && next <= '9' {
				idx, _ := strconv.Atoi(string(next))
				if idx < len(groups) {
					b.WriteString(groups[idx])
				}
				i++
				continue
			}
			if next == '\\' {
				b.WriteByte('\\')
				i++
				continue
			}
		}
		b.WriteByte(c)
	}
	return []string{b.String()}
}
