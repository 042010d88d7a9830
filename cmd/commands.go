package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/charmbracelet/log"

	"github.com/nibzard/fanout/internal/config"
	"github.com/nibzard/fanout/internal/logging"
)

// validateCommand checks a job file against the schema and the
// orchestrator's configuration rules without running anything.
func (c *cli) validateCommand(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("fanout validate", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	printSchema := fs.Bool("schema", false, "Print the job JSON Schema and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *printSchema {
		_, err := io.WriteString(c.stdout, config.JobSchema())
		return err
	}

	path, err := jobPath(cfg, fs.Args())
	if err != nil {
		return err
	}
	job, err := config.LoadJob(path)
	if err != nil {
		return err
	}

	quiet := log.New(io.Discard)
	task, err := job.Task(cfg, job.Invoker(cfg, quiet), quiet)
	if err != nil {
		return fmt.Errorf("invalid job file %s: %w", path, err)
	}

	fmt.Fprintf(c.stdout, "%s: ok\n", path)
	fmt.Fprintf(c.stdout, "  target:  %s (param %s)\n", task.Target, task.Param)
	fmt.Fprintf(c.stdout, "  threads: %d\n", task.ThreadCount)
	if task.UnitTimeout > 0 {
		fmt.Fprintf(c.stdout, "  timeout: %s\n", task.UnitTimeout)
	}
	fmt.Fprintf(c.stdout, "  targets: %d\n", len(job.Targets))
	return nil
}

// targetsCommand lists the targets a job defines.
func (c *cli) targetsCommand(cfg *config.Config, args []string) error {
	path, err := jobPath(cfg, args)
	if err != nil {
		return err
	}
	job, err := config.LoadJob(path)
	if err != nil {
		return err
	}
	if len(job.Targets) == 0 {
		fmt.Fprintln(c.stdout, "No targets defined.")
		return nil
	}

	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDIR\tCOMMAND")
	for _, t := range job.Targets {
		dir := t.Dir
		if dir == "" {
			dir = "."
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, dir, t.Command)
	}
	return tw.Flush()
}

// tailCommand prints the latest run log of the current project.
func (c *cli) tailCommand(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("fanout tail", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	follow := fs.Bool("f", false, "Follow the log")
	fs.BoolVar(follow, "follow", false, "Follow the log")
	n := fs.Int("n", 0, "Number of lines to show (0 = all)")
	listRuns := fs.Bool("runs", false, "List run logs instead")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logDir, err := logging.FindLogDir(cfg.LogDir, cfg.ProjectRoot)
	if err != nil {
		return fmt.Errorf("finding log directory: %w", err)
	}

	if *listRuns {
		runs, err := logging.FindLogRuns(logDir)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(c.stdout, "No log files found.")
			return nil
		}
		tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tMODIFIED\tSIZE")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", r.RunID, r.ModTime.Format("2006-01-02 15:04:05"), r.Size)
		}
		return tw.Flush()
	}

	logPath, err := logging.FindLatestLog(logDir)
	if err != nil {
		return fmt.Errorf("finding latest log: %w", err)
	}
	if logPath == "" {
		fmt.Fprintln(c.stdout, "No log files found.")
		return nil
	}

	fmt.Fprintf(c.stderr, "Tailing: %s\n", logPath)
	if *follow {
		fmt.Fprintln(c.stderr, "(Ctrl+C to stop)")
	}
	return logging.TailLog(ctx, c.stdout, logPath, *n, *follow)
}

// initCommand writes the example job file.
func (c *cli) initCommand(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("fanout init", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	force := fs.Bool("force", false, "Overwrite an existing file")
	settings := fs.Bool("settings", false, "Also write an example fanout.toml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := jobPath(cfg, fs.Args())
	if err != nil {
		return err
	}

	content := config.ExampleJob()
	if filepath.Ext(path) == ".toml" {
		return fmt.Errorf("init writes HCL jobs; use a .hcl path")
	}
	if err := writeNew(path, content, *force); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Wrote %s\n", path)

	if *settings {
		target := filepath.Join(filepath.Dir(path), "fanout.toml")
		if err := writeNew(target, config.ExampleConfig(), *force); err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "Wrote %s\n", target)
	}
	return nil
}

func writeNew(path, content string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use -force to overwrite)", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
