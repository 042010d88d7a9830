package config

import (
	"fmt"
	"os"
	"strconv"
)

// loadFromEnv overrides settings from FANOUT_* environment variables.
func loadFromEnv(cfg *Config) error {
	set := func(field string) {
		cfg.Sources[field] = SourceEnv
	}

	if v := os.Getenv("FANOUT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
		set("log_level")
	}
	if v := os.Getenv("FANOUT_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
		set("log_format")
	}
	if v := os.Getenv("FANOUT_LOG_TIMESTAMPS"); v != "" {
		cfg.LogTimestamps = boolFromString(v)
		set("log_timestamps")
	}
	if v := os.Getenv("FANOUT_LOG_CALLER"); v != "" {
		cfg.LogCaller = boolFromString(v)
		set("log_caller")
	}
	if v := os.Getenv("FANOUT_LOG_DIR"); v != "" {
		cfg.LogDir = v
		set("log_dir")
	}
	if v := os.Getenv("FANOUT_THREAD_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FANOUT_THREAD_COUNT: %w", err)
		}
		cfg.ThreadCount = n
		set("thread_count")
	}
	if v := os.Getenv("FANOUT_UNIT_TIMEOUT"); v != "" {
		cfg.UnitTimeout = v
		set("unit_timeout")
	}
	if v := os.Getenv("FANOUT_SHELL"); v != "" {
		cfg.Shell = splitFields(v)
		set("shell")
	}
	if v := os.Getenv("FANOUT_JOB"); v != "" {
		cfg.JobFile = v
		set("job_file")
	}
	return nil
}
