package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/nibzard/fanout/internal/foreach"
)

// Job is a declarative foreach run.
type Job struct {
	Foreach    *Foreach          `toml:"foreach" hcl:"foreach,block" json:"foreach,omitempty"`
	Properties map[string]string `toml:"properties" hcl:"properties,optional" json:"properties,omitempty"`
	Targets    []Target          `toml:"target" hcl:"target,block" json:"target,omitempty"`

	// Path is the file the job was loaded from; relative dirs resolve
	// against its directory.
	Path string `toml:"-" json:"-"`
}

// Foreach configures the orchestrator.
type Foreach struct {
	List        string       `toml:"list" hcl:"list,optional" json:"list,omitempty"`
	Delimiter   string       `toml:"delimiter" hcl:"delimiter,optional" json:"delimiter,omitempty"`
	Target      string       `toml:"target" hcl:"target,optional" json:"target,omitempty"`
	Param       string       `toml:"param" hcl:"param,optional" json:"param,omitempty"`
	AbsParam    string       `toml:"absparam" hcl:"absparam,optional" json:"absparam,omitempty"`
	ThreadCount *int         `toml:"thread_count" hcl:"thread_count,optional" json:"thread_count,omitempty"`
	UnitTimeout string       `toml:"unit_timeout" hcl:"unit_timeout,optional" json:"unit_timeout,omitempty"`
	FileLists   []FileList   `toml:"filelist" hcl:"filelist,block" json:"filelist,omitempty"`
	FileSets    []FileSet    `toml:"fileset" hcl:"fileset,block" json:"fileset,omitempty"`
	Mappers     []MapperSpec `toml:"mapper" hcl:"mapper,block" json:"mapper,omitempty"`
}

// FileList is an explicit list of files under Dir.
type FileList struct {
	Dir   string   `toml:"dir" hcl:"dir" json:"dir"`
	Files []string `toml:"files" hcl:"files,optional" json:"files,omitempty"`
}

// FileSet is a pattern-filtered scan of Dir. DefaultExcludes defaults to true.
type FileSet struct {
	Dir             string   `toml:"dir" hcl:"dir" json:"dir"`
	Includes        []string `toml:"includes" hcl:"includes,optional" json:"includes,omitempty"`
	Excludes        []string `toml:"excludes" hcl:"excludes,optional" json:"excludes,omitempty"`
	DefaultExcludes *bool    `toml:"default_excludes" hcl:"default_excludes,optional" json:"default_excludes,omitempty"`
}

// MapperSpec selects and configures a value mapper.
type MapperSpec struct {
	Type            string `toml:"type" hcl:"type" json:"type"`
	From            string `toml:"from" hcl:"from,optional" json:"from,omitempty"`
	To              string `toml:"to" hcl:"to,optional" json:"to,omitempty"`
	CaseInsensitive bool   `toml:"case_insensitive" hcl:"case_insensitive,optional" json:"case_insensitive,omitempty"`
}

// Target is a named shell command.
type Target struct {
	Name    string            `toml:"name" hcl:"name,label" json:"name"`
	Command string            `toml:"command" hcl:"command" json:"command"`
	Dir     string            `toml:"dir" hcl:"dir,optional" json:"dir,omitempty"`
	Env     map[string]string `toml:"env" hcl:"env,optional" json:"env,omitempty"`
}

// LoadJob reads a job file. The format follows the extension: .toml is
// decoded as TOML, anything else as HCL. The decoded job is checked with
// ValidateJob. Decode and validation failures are returned as
// *foreach.ConfigError.
func LoadJob(path string) (*Job, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve job file %s: %w", path, err)
	}

	var job *Job
	switch strings.ToLower(filepath.Ext(abs)) {
	case ".toml":
		job, err = decodeTOMLJob(abs)
	default:
		job, err = decodeHCLJob(abs)
	}
	if err != nil {
		return nil, &foreach.ConfigError{Field: "job", Err: err}
	}
	job.Path = abs

	if err := ValidateJob(job); err != nil {
		return nil, &foreach.ConfigError{Field: "job", Err: fmt.Errorf("invalid job file %s: %w", path, err)}
	}
	return job, nil
}

func decodeTOMLJob(path string) (*Job, error) {
	job := &Job{}
	md, err := toml.DecodeFile(path, job)
	if err != nil {
		return nil, fmt.Errorf("failed to decode TOML job file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("job file %s: unknown keys: %v", path, undecoded)
	}
	return job, nil
}

func decodeHCLJob(path string) (*Job, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL job file %s: %w", path, diags)
	}

	job := &Job{}
	diags = gohcl.DecodeBody(file.Body, evalContext(), job)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL job file %s: %w", path, diags)
	}
	return job, nil
}

// BaseDir returns the directory relative paths in the job resolve against.
func (j *Job) BaseDir() string {
	if j.Path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "."
		}
		return wd
	}
	return filepath.Dir(j.Path)
}

// Resolve makes dir absolute relative to the job's directory.
func (j *Job) Resolve(dir string) string {
	if dir == "" {
		return j.BaseDir()
	}
	dir = expandPath(dir)
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(j.BaseDir(), dir)
}

// TargetNames returns target names in file order.
func (j *Job) TargetNames() []string {
	names := make([]string, 0, len(j.Targets))
	for _, t := range j.Targets {
		names = append(names, t.Name)
	}
	return names
}
