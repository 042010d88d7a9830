// Package invoke defines the callee side of a fan-out run: the inherited
// execution scope handed to every work unit and the invokers that execute a
// named target against it.
package invoke

import (
	"sort"
	"strings"
)

// Cloner is implemented by reference values that must not be shared between
// concurrently running units.
type Cloner interface {
	Clone() any
}

// Scope is the inheritable state of a run: string properties and opaque
// references. Each unit receives its own copy via Clone, so writes made by
// one unit are never visible to another.
type Scope struct {
	properties map[string]string
	references map[string]any
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{
		properties: make(map[string]string),
		references: make(map[string]any),
	}
}

// NewScopeFromMap creates a scope seeded with the given properties.
func NewScopeFromMap(props map[string]string) *Scope {
	s := NewScope()
	for k, v := range props {
		s.properties[k] = v
	}
	return s
}

// Clone returns a deep copy of the scope. References implementing Cloner are
// cloned, all others are copied by value.
func (s *Scope) Clone() *Scope {
	if s == nil {
		return NewScope()
	}
	c := &Scope{
		properties: make(map[string]string, len(s.properties)),
		references: make(map[string]any, len(s.references)),
	}
	for k, v := range s.properties {
		c.properties[k] = v
	}
	for k, v := range s.references {
		if cl, ok := v.(Cloner); ok {
			c.references[k] = cl.Clone()
			continue
		}
		c.references[k] = v
	}
	return c
}

// Set sets a property, overriding any inherited value.
func (s *Scope) Set(name, value string) {
	s.properties[name] = value
}

// Get returns a property value.
func (s *Scope) Get(name string) (string, bool) {
	v, ok := s.properties[name]
	return v, ok
}

// SetReference stores an opaque reference.
func (s *Scope) SetReference(name string, ref any) {
	s.references[name] = ref
}

// Reference returns a stored reference.
func (s *Scope) Reference(name string) (any, bool) {
	v, ok := s.references[name]
	return v, ok
}

// Properties returns a copy of all properties.
func (s *Scope) Properties() map[string]string {
	out := make(map[string]string, len(s.properties))
	for k, v := range s.properties {
		out[k] = v
	}
	return out
}

// Names returns the sorted property names.
func (s *Scope) Names() []string {
	names := make([]string, 0, len(s.properties))
	for k := range s.properties {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Expand replaces ${name} references with property values. Unknown
// references are left untouched.
func (s *Scope) Expand(input string) string {
	if !strings.Contains(input, "${") {
		return input
	}
	var b strings.Builder
	for i := 0; i < len(input); {
		if input[i] == '$' && i+1 < len(input) && input[i+1] == '{' {
			end := strings.IndexByte(input[i+2:], '}')
			if end >= 0 {
				name := input[i+2 : i+2+end]
				if v, ok := s.properties[name]; ok {
					b.WriteString(v)
				} else {
					b.WriteString(input[i : i+3+end])
				}
				i += end + 3
				continue
			}
		}
		b.WriteByte(input[i])
		i++
	}
	return b.String()
}
