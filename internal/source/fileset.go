package source

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultExcludes are applied to every FileSet unless disabled.
var DefaultExcludes = []string{
	"**/*~",
	"**/#*#",
	"**/.#*",
	"**/%*%",
	"**/._*",
	"**/CVS",
	"**/CVS/**",
	"**/.cvsignore",
	"**/.svn",
	"**/.svn/**",
	"**/.git",
	"**/.git/**",
	"**/.gitattributes",
	"**/.gitignore",
	"**/.gitmodules",
	"**/.hg",
	"**/.hg/**",
	"**/.DS_Store",
}

// FileSet scans Dir recursively and yields the files, then the directories,
// whose relative paths match an include pattern and no exclude pattern.
// Patterns use '/' separators and doublestar syntax: *, ?, ** (any number of
// path segments), character classes and {a,b} alternatives. A trailing '/' is shorthand for "/**". No includes means
// everything is included.
type FileSet struct {
	Dir               string
	Includes          []string
	Excludes          []string
	NoDefaultExcludes bool
	once
}

// NewFileSet creates a file set with default excludes enabled.
func NewFileSet(dir string, includes, excludes []string) *FileSet {
	return &FileSet{Dir: dir, Includes: includes, Excludes: excludes}
}

// Fresh returns an unspent copy with the same configuration.
func (s *FileSet) Fresh() *FileSet {
	return &FileSet{
		Dir:               s.Dir,
		Includes:          s.Includes,
		Excludes:          s.Excludes,
		NoDefaultExcludes: s.NoDefaultExcludes,
	}
}

// Name implements Source.
func (s *FileSet) Name() string { return "fileset(" + s.Dir + ")" }

// Enumerate implements Source.
func (s *FileSet) Enumerate(yield func(Item) error) error {
	if err := s.start(); err != nil {
		return err
	}
	base, err := resolveDir(s.Dir)
	if err != nil {
		return err
	}
	files, dirs, err := s.scan(base)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := yield(Item{BaseDir: base, Value: f, Kind: KindFile}); err != nil {
			return err
		}
	}
	for _, d := range dirs {
		if err := yield(Item{BaseDir: base, Value: d, Kind: KindDir}); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileSet) scan(base string) (files, dirs []string, err error) {
	includes, err := compilePatterns(s.Includes)
	if err != nil {
		return nil, nil, err
	}
	excludePatterns := s.Excludes
	if !s.NoDefaultExcludes {
		excludePatterns = append(append([]string{}, s.Excludes...), DefaultExcludes...)
	}
	excludes, err := compilePatterns(excludePatterns)
	if err != nil {
		return nil, nil, err
	}

	err = filepath.WalkDir(base, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == base {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		slashed := filepath.ToSlash(rel)
		if len(includes) > 0 && !matchAny(includes, slashed) {
			return nil
		}
		if matchAny(excludes, slashed) {
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, rel)
		} else {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("scan %s: %w", base, err)
	}
	return files, dirs, nil
}

func matchAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}
	return false
}

func compilePatterns(patterns []string) ([]string, error) {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		c, err := compilePattern(p)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// compilePattern normalizes a pattern to '/' separators, expands a trailing
// '/' to "/**" and checks the result is a valid doublestar pattern.
func compilePattern(pattern string) (string, error) {
	p := strings.TrimPrefix(filepath.ToSlash(strings.TrimSpace(pattern)), "./")
	if strings.HasSuffix(p, "/") {
		p += "**"
	}
	if !doublestar.ValidatePattern(p) {
		return "", fmt.Errorf("pattern %q: %w", pattern, doublestar.ErrBadPattern)
	}
	return p, nil
}
