package foreach

import (
	"fmt"

	"github.com/nibzard/fanout/internal/parallel"
	"github.com/nibzard/fanout/internal/source"
)

// Summary reports what a run enumerated and how its units finished.
type Summary struct {
	// Entries is the number of list entries dispatched.
	Entries int
	// Files and Dirs count every file and directory enumerated, including
	// those the mapper skipped.
	Files int
	Dirs  int
	// Skipped is the number of items the mapper filtered out.
	Skipped int
	// Dispatched is the number of units queued on the pool.
	Dispatched int

	UsedList      bool
	UsedFileItems bool

	Result *parallel.Result
}

func (s *Summary) add(src source.Source, c counts) {
	switch src.(type) {
	case *source.List:
		s.UsedList = true
	default:
		s.UsedFileItems = true
	}
	s.Entries += c.entries
	s.Files += c.files
	s.Dirs += c.dirs
	s.Skipped += c.skipped
}

// Failed reports whether any unit failed.
func (s *Summary) Failed() bool {
	return s.Result != nil && s.Result.Failed()
}

// Lines renders the processed counts.
func (s *Summary) Lines() []string {
	var lines []string
	if s.UsedList {
		noun := "entry"
		if s.Entries > 1 {
			noun = "entries"
		}
		lines = append(lines, fmt.Sprintf("Processed %d %s in list", s.Entries, noun))
	}
	if s.UsedFileItems {
		lines = append(lines, fmt.Sprintf("Processed %d directories and %d files", s.Dirs, s.Files))
	}
	return lines
}
