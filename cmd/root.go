// Package cmd implements the fanout command line.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/nibzard/fanout/internal/config"
	"github.com/nibzard/fanout/internal/foreach"
	"github.com/nibzard/fanout/internal/logging"
)

// Version is set via ldflags at build time.
var Version = "dev"

// cli carries the output streams of one invocation.
type cli struct {
	stdout io.Writer
	stderr io.Writer
}

// Run executes the fanout CLI.
func Run(ctx context.Context, args []string) error {
	c := &cli{stdout: os.Stdout, stderr: os.Stderr}
	return c.run(ctx, args)
}

// Exit codes returned by ExitCode.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfig      = 2
	ExitInterrupted = 130
)

// ExitCode maps the result of Run to a process exit status. A cancelled ctx
// wins over any error it caused.
func ExitCode(ctx context.Context, err error) int {
	switch {
	case err == nil:
		return ExitOK
	case ctx.Err() != nil:
		return ExitInterrupted
	}
	var cfgErr *foreach.ConfigError
	if errors.As(err, &cfgErr) {
		return ExitConfig
	}
	return ExitFailure
}

func (c *cli) run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fanout", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() {
		c.printUsage(fs, c.stderr)
	}
	help := fs.Bool("help", false, "Show help")
	fs.BoolVar(help, "h", false, "Show help")
	showVersion := fs.Bool("version", false, "Show version")
	fs.BoolVar(showVersion, "v", false, "Show version")

	cfg, err := config.Load(fs, args)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *help {
		c.printUsage(fs, c.stdout)
		return nil
	}
	if *showVersion {
		return c.versionCommand()
	}

	// No subcommand, or a leading flag, means run.
	subcommand := "run"
	remaining := fs.Args()
	if len(remaining) > 0 && !strings.HasPrefix(remaining[0], "-") {
		subcommand = remaining[0]
		remaining = remaining[1:]
	}

	switch subcommand {
	case "run":
		return c.runCommand(ctx, cfg, remaining)
	case "validate":
		return c.validateCommand(cfg, remaining)
	case "targets":
		return c.targetsCommand(cfg, remaining)
	case "tail":
		return c.tailCommand(ctx, cfg, remaining)
	case "init":
		return c.initCommand(cfg, remaining)
	case "version":
		return c.versionCommand()
	case "help":
		c.printUsage(fs, c.stdout)
		return nil
	default:
		// A job file path runs that job.
		if fi, err := os.Stat(subcommand); err == nil && !fi.IsDir() {
			return c.runCommand(ctx, cfg, append(remaining, subcommand))
		}
		fmt.Fprintf(c.stderr, "Unknown command: %s\n", subcommand)
		c.printUsage(fs, c.stderr)
		return fmt.Errorf("unknown command: %s", subcommand)
	}
}

// consoleLogger builds the console logger from the settings.
func (c *cli) consoleLogger(cfg *config.Config) *log.Logger {
	return logging.NewConsole(c.stderr, logging.Options{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		Timestamps: cfg.LogTimestamps,
		Caller:     cfg.LogCaller,
		Prefix:     "fanout",
	})
}

// jobPath picks the job file from the positional arguments or the settings.
func jobPath(cfg *config.Config, args []string) (string, error) {
	switch len(args) {
	case 0:
		return cfg.JobFile, nil
	case 1:
		return args[0], nil
	default:
		return "", fmt.Errorf("unexpected arguments: %v", args[1:])
	}
}

func (c *cli) versionCommand() error {
	fmt.Fprintf(c.stdout, "fanout version %s\n", Version)
	return nil
}

func (c *cli) printUsage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintln(w, "fanout - run a target once per item, in parallel")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  fanout [global options] [command] [options] [job]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run [job]       Run a job (default command)")
	fmt.Fprintln(w, "  validate [job]  Check a job without running it")
	fmt.Fprintln(w, "  targets [job]   List the targets a job defines")
	fmt.Fprintln(w, "  tail            Print the latest run log")
	fmt.Fprintln(w, "  init [path]     Write an example job file")
	fmt.Fprintln(w, "  version         Show version information")
	fmt.Fprintln(w, "  help            Show this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global Options:")
	fs.SetOutput(w)
	fs.PrintDefaults()
	fs.SetOutput(c.stderr)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run Options (override the job's foreach block):")
	fmt.Fprintln(w, "  -list string        Delimited list of values")
	fmt.Fprintln(w, "  -delimiter string   List delimiter (default \",\")")
	fmt.Fprintln(w, "  -target string      Target to call per item")
	fmt.Fprintln(w, "  -param string       Property receiving each value")
	fmt.Fprintln(w, "  -absparam string    Property receiving each absolute path")
	fmt.Fprintln(w, "  -threads int        Maximum concurrent units")
	fmt.Fprintln(w, "  -timeout duration   Per-unit time limit")
	fmt.Fprintln(w, "  -D name=value       Set a property (repeatable)")
	fmt.Fprintln(w, "  -ui string          UI mode (tui for a live progress view)")
	fmt.Fprintln(w, "  -no-log             Do not write a run log")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Tail Options:")
	fmt.Fprintln(w, "  -f, -follow         Follow the log")
	fmt.Fprintln(w, "  -n int              Number of lines to show (0 = all)")
	fmt.Fprintln(w, "  -runs               List run logs instead")
}
