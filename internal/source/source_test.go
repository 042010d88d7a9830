package source

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func collect(t *testing.T, s Source) []Item {
	t.Helper()
	var items []Item
	if err := s.Enumerate(func(it Item) error {
		items = append(items, it)
		return nil
	}); err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	return items
}

func values(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, filepath.ToSlash(it.Value))
	}
	return out
}

func TestListEnumerate(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		delimiter string
		want      []string
	}{
		{"default delimiter", "a,b,c", "", []string{"a", "b", "c"}},
		{"tokens trimmed", " a , b ,c ", ",", []string{"a", "b", "c"}},
		{"custom delimiter", "x|y", "|", []string{"x", "y"}},
		{"empty tokens kept", "a,,b", ",", []string{"a", "", "b"}},
		{"multi-char delimiter", "a::b", "::", []string{"a", "b"}},
		{"blank list", "   ", ",", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := collect(t, NewList(tt.raw, tt.delimiter))
			got := values(items)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("values = %q, want %q", got, tt.want)
			}
			for _, it := range items {
				if it.Kind != KindEntry || it.BaseDir != "" {
					t.Errorf("unexpected item %+v", it)
				}
			}
		})
	}
}

func TestSinglePass(t *testing.T) {
	l := NewList("a", ",")
	collect(t, l)
	err := l.Enumerate(func(Item) error { return nil })
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("second Enumerate = %v, want ErrExhausted", err)
	}
}

func TestYieldErrorStops(t *testing.T) {
	stop := errors.New("stop")
	n := 0
	err := NewList("a,b,c", ",").Enumerate(func(Item) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Errorf("err = %v, n = %d", err, n)
	}
}

func TestFileList(t *testing.T) {
	dir := t.TempDir()
	items := collect(t, NewFileList(dir, "a.txt", "", "sub/b.txt"))
	if got := values(items); !reflect.DeepEqual(got, []string{"a.txt", "sub/b.txt"}) {
		t.Errorf("values = %q", got)
	}
	abs, _ := filepath.Abs(dir)
	for _, it := range items {
		if it.BaseDir != abs || it.Kind != KindFile {
			t.Errorf("unexpected item %+v", it)
		}
	}
}

func TestFileListMissingDir(t *testing.T) {
	fl := NewFileList(filepath.Join(t.TempDir(), "missing"), "a")
	if err := fl.Enumerate(func(Item) error { return nil }); err == nil {
		t.Error("expected error for missing dir")
	}
}

func writeTree(t *testing.T, root string, paths ...string) {
	t.Helper()
	for _, p := range paths {
		full := filepath.Join(root, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(p), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestFileSet(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"a.go",
		"b.txt",
		"pkg/c.go",
		"pkg/deep/d.go",
		"vendor/v.go",
		".git/config",
		"notes.txt~",
	)

	t.Run("everything minus default excludes, files before dirs", func(t *testing.T) {
		items := collect(t, NewFileSet(root, nil, nil))
		got := values(items)
		want := []string{"a.go", "b.txt", "pkg/c.go", "pkg/deep/d.go", "vendor/v.go", "pkg", "pkg/deep", "vendor"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("values = %q, want %q", got, want)
		}
		seenDir := false
		for _, it := range items {
			if it.Kind == KindDir {
				seenDir = true
			} else if seenDir {
				t.Fatalf("file %q yielded after a directory", it.Value)
			}
		}
	})

	t.Run("includes and excludes", func(t *testing.T) {
		items := collect(t, NewFileSet(root, []string{"**/*.go"}, []string{"vendor/"}))
		want := []string{"a.go", "pkg/c.go", "pkg/deep/d.go"}
		if got := values(items); !reflect.DeepEqual(got, want) {
			t.Errorf("values = %q, want %q", got, want)
		}
	})

	t.Run("default excludes disabled", func(t *testing.T) {
		fs := NewFileSet(root, []string{".git/**", "*~"}, nil)
		fs.NoDefaultExcludes = true
		want := []string{".git/config", "notes.txt~", ".git"}
		if got := values(collect(t, fs)); !reflect.DeepEqual(got, want) {
			t.Errorf("values = %q, want %q", got, want)
		}
	})

	t.Run("missing dir", func(t *testing.T) {
		fs := NewFileSet(filepath.Join(root, "nope"), nil, nil)
		if err := fs.Enumerate(func(Item) error { return nil }); err == nil {
			t.Error("expected error")
		}
	})
}

func TestCompilePattern(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"*.go", "a.go", true},
		{"*.go", "pkg/a.go", false},
		{"**/*.go", "a.go", true},
		{"**/*.go", "pkg/deep/a.go", true},
		{"pkg/**", "pkg", true},
		{"pkg/**", "pkg/a/b", true},
		{"pkg/**", "pkgx", false},
		{"a/**/b", "a/b", true},
		{"a/**/b", "a/x/y/b", true},
		{"a/**/b", "a/x/c", false},
		{"?.txt", "a.txt", true},
		{"?.txt", "ab.txt", false},
		{"docs/", "docs/readme.md", true},
		{"**", "anything/at/all", true},
		{"a+b.txt", "a+b.txt", true},
		{"./src/*.go", "src/a.go", true},
		{"*.{go,md}", "README.md", true},
	}
	for _, tt := range tests {
		p, err := compilePattern(tt.pattern)
		if err != nil {
			t.Fatalf("compilePattern(%q): %v", tt.pattern, err)
		}
		if got := matchAny([]string{p}, tt.path); got != tt.want {
			t.Errorf("%q matches %q = %v, want %v", tt.pattern, tt.path, got, tt.want)
		}
	}
}

func TestCompilePatternInvalid(t *testing.T) {
	if _, err := compilePattern("[a-"); err == nil {
		t.Error("expected error for unterminated class")
	}
}

func TestFileSetFresh(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a.txt", "b.go")

	fs := NewFileSet(root, []string{"*.txt"}, nil)
	first := values(collect(t, fs))
	if err := fs.Enumerate(func(Item) error { return nil }); !errors.Is(err, ErrExhausted) {
		t.Fatalf("second Enumerate: got %v, want ErrExhausted", err)
	}
	again := values(collect(t, fs.Fresh()))
	if !reflect.DeepEqual(first, again) {
		t.Errorf("fresh copy yielded %q, want %q", again, first)
	}

	fl := NewFileList(root, "a.txt")
	collect(t, fl)
	if got := values(collect(t, fl.Fresh())); !reflect.DeepEqual(got, []string{"a.txt"}) {
		t.Errorf("fresh file list yielded %q", got)
	}
}

func TestKindString(t *testing.T) {
	if KindEntry.String() != "entry" || KindFile.String() != "file" || KindDir.String() != "dir" {
		t.Error("unexpected kind names")
	}
}
