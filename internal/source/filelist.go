package source

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileList yields an explicit list of files relative to Dir. The files
// themselves need not exist; Dir must.
type FileList struct {
	Dir   string
	Files []string
	once
}

// NewFileList creates a file list source.
func NewFileList(dir string, files ...string) *FileList {
	return &FileList{Dir: dir, Files: files}
}

// Fresh returns an unspent copy with the same configuration.
func (f *FileList) Fresh() *FileList {
	return &FileList{Dir: f.Dir, Files: f.Files}
}

// Name implements Source.
func (f *FileList) Name() string { return "filelist(" + f.Dir + ")" }

// Enumerate implements Source.
func (f *FileList) Enumerate(yield func(Item) error) error {
	if err := f.start(); err != nil {
		return err
	}
	base, err := resolveDir(f.Dir)
	if err != nil {
		return err
	}
	for _, name := range f.Files {
		if name == "" {
			continue
		}
		if err := yield(Item{BaseDir: base, Value: filepath.FromSlash(name), Kind: KindFile}); err != nil {
			return err
		}
	}
	return nil
}

// resolveDir makes dir absolute and checks it is a readable directory.
func resolveDir(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("no dir configured")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}
