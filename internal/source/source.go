// Package source enumerates the raw items a fan-out run iterates over.
//
// Three origins are supported:
//   - List: a delimited string of values
//   - FileList: an explicit list of files relative to a base directory
//   - FileSet: a directory scan filtered by include/exclude patterns
//
// Every source is single-pass: Enumerate yields each item once and refuses to
// run a second time. File sources provide Fresh to get an unspent copy.
package source

import (
	"errors"
	"fmt"
)

// ErrExhausted is returned when Enumerate is called on a source that has
// already been enumerated.
var ErrExhausted = errors.New("source already enumerated")

// Kind classifies an enumerated item.
type Kind int

const (
	// KindEntry is a value taken from a delimited list.
	KindEntry Kind = iota
	// KindFile is a file relative to the source base directory.
	KindFile
	// KindDir is a directory relative to the source base directory.
	KindDir
)

func (k Kind) String() string {
	switch k {
	case KindEntry:
		return "entry"
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Item is one raw item. BaseDir is empty for list entries and absolute for
// file and directory items.
type Item struct {
	BaseDir string
	Value   string
	Kind    Kind
}

// Source produces a finite sequence of items. Enumerate calls yield for each
// item in order and stops at the first error returned by yield.
type Source interface {
	Name() string
	Enumerate(yield func(Item) error) error
}

// once guards the single-pass contract.
type once struct {
	done bool
}

func (o *once) start() error {
	if o.done {
		return ErrExhausted
	}
	o.done = true
	return nil
}
