package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ConfigSource represents where a configuration value came from.
type ConfigSource string

const (
	SourceDefault  ConfigSource = "default"
	SourceUserFile ConfigSource = "user file"
	SourceProjFile ConfigSource = "project file"
	SourceEnv      ConfigSource = "environment"
	SourceFlag     ConfigSource = "flag"
)

// Default values.
const (
	DefaultLogDir      = "~/.fanout"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	DefaultThreadCount = 2
	DefaultJobFile     = "fanout.hcl"
)

// Config holds fanout's tool settings.
type Config struct {
	// Logging
	LogLevel      string `toml:"log_level"`
	LogFormat     string `toml:"log_format"`
	LogTimestamps bool   `toml:"log_timestamps"`
	LogCaller     bool   `toml:"log_caller"`
	LogDir        string `toml:"log_dir"`

	// Execution defaults, used when a job does not set them.
	ThreadCount int    `toml:"thread_count"`
	UnitTimeout string `toml:"unit_timeout"`

	// Shell runs target commands, e.g. ["bash", "-c"].
	Shell []string `toml:"shell"`

	// JobFile is the job loaded when none is given on the command line.
	JobFile string `toml:"job_file"`

	// ProjectRoot is the working directory at load time (computed).
	ProjectRoot string `toml:"-"`

	// Sources records where each setting came from.
	Sources map[string]ConfigSource `toml:"-"`
}

// Timeout parses UnitTimeout. An empty value means no timeout.
func (c *Config) Timeout() (time.Duration, error) {
	if strings.TrimSpace(c.UnitTimeout) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.UnitTimeout)
	if err != nil {
		return 0, fmt.Errorf("unit_timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("unit_timeout: must not be negative, got %s", d)
	}
	return d, nil
}

// Load loads settings from every source in priority order. Flags are
// registered on fs (alongside any the caller already defined) and args are
// parsed; the caller reads its own flags and fs.Args() afterwards.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{Sources: make(map[string]ConfigSource)}
	setDefaults(cfg)

	if path := findUserConfigFile(); path != "" {
		if err := loadConfigFile(cfg, path, SourceUserFile); err != nil {
			return nil, fmt.Errorf("loading user config file %s: %w", path, err)
		}
	}
	if path := findProjectConfigFile(); path != "" {
		if err := loadConfigFile(cfg, path, SourceProjFile); err != nil {
			return nil, fmt.Errorf("loading project config file %s: %w", path, err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := parseFlags(cfg, fs, args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	if err := finalizeConfig(cfg); err != nil {
		return nil, fmt.Errorf("finalizing config: %w", err)
	}
	return cfg, nil
}

// fields lists the settable keys in file order.
var fields = []string{
	"log_level",
	"log_format",
	"log_timestamps",
	"log_caller",
	"log_dir",
	"thread_count",
	"unit_timeout",
	"shell",
	"job_file",
}

func setDefaults(cfg *Config) {
	cfg.LogLevel = DefaultLogLevel
	cfg.LogFormat = DefaultLogFormat
	cfg.LogDir = DefaultLogDir
	cfg.ThreadCount = DefaultThreadCount
	cfg.JobFile = DefaultJobFile
	for _, f := range fields {
		cfg.Sources[f] = SourceDefault
	}
}

// loadConfigFile decodes a TOML settings file over cfg. Only keys present in
// the file are applied.
func loadConfigFile(cfg *Config, path string, source ConfigSource) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown keys: %v", undecoded)
	}
	for _, f := range fields {
		if md.IsDefined(f) {
			cfg.Sources[f] = source
		}
	}
	return nil
}

func finalizeConfig(cfg *Config) error {
	cfg.LogDir = expandPath(cfg.LogDir)
	if cfg.ProjectRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting working directory: %w", err)
		}
		cfg.ProjectRoot = wd
	}
	if cfg.ThreadCount <= 0 {
		return fmt.Errorf("thread_count must be positive, got %d", cfg.ThreadCount)
	}
	if _, err := cfg.Timeout(); err != nil {
		return err
	}
	return nil
}

// boolFromString parses a boolean from a string.
func boolFromString(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

// splitFields splits a shell setting on whitespace.
func splitFields(s string) []string {
	return strings.Fields(s)
}
