package config

import (
	"flag"
)

// flagFields maps settings flags to the keys they override.
var flagFields = map[string]string{
	"log-level":      "log_level",
	"log-format":     "log_format",
	"log-timestamps": "log_timestamps",
	"log-caller":     "log_caller",
	"log-dir":        "log_dir",
	"shell":          "shell",
	"job":            "job_file",
}

// parseFlags binds the settings flags on fs and parses args. Flags the
// caller registered on fs are parsed in the same pass.
func parseFlags(cfg *Config, fs *flag.FlagSet, args []string) error {
	if fs == nil {
		fs = flag.NewFlagSet("fanout", flag.ContinueOnError)
	}

	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json, logfmt)")
	fs.BoolVar(&cfg.LogTimestamps, "log-timestamps", cfg.LogTimestamps, "Include timestamps in console logs")
	fs.BoolVar(&cfg.LogCaller, "log-caller", cfg.LogCaller, "Include caller location in console logs")
	fs.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Directory for run logs")
	fs.StringVar(&cfg.JobFile, "job", cfg.JobFile, "Job file (.hcl or .toml)")

	var shell string
	fs.StringVar(&shell, "shell", "", "Shell used to run target commands, e.g. \"bash -c\"")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fs.Visit(func(f *flag.Flag) {
		if field, ok := flagFields[f.Name]; ok {
			cfg.Sources[field] = SourceFlag
		}
	})
	if shell != "" {
		cfg.Shell = splitFields(shell)
	}
	return nil
}
