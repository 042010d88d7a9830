// Package config loads fanout's tool settings and job files.
//
// Settings are loaded from multiple sources in priority order:
// 1. Built-in defaults
// 2. User config file (~/.fanout/fanout.toml or OS-specific config directory)
// 3. Project config file (fanout.toml or .fanout.toml in the working directory)
// 4. Environment variables (FANOUT_*)
// 5. CLI flags
//
// Each level overrides the previous one, so CLI flags take precedence.
//
// User-level config locations:
// - ~/.fanout/fanout.toml (preferred)
// - Windows: %APPDATA%\fanout\fanout.toml
// - macOS: ~/Library/Application Support/fanout/fanout.toml
// - Linux/BSD: $XDG_CONFIG_HOME/fanout/fanout.toml or ~/.config/fanout/fanout.toml
//
// A job file describes one foreach run: its sources, mapper, target and
// the targets it may call. Jobs are written in TOML or HCL and validated
// against an embedded JSON Schema before use.
package config
