package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nibzard/fanout/internal/config"
	"github.com/nibzard/fanout/internal/foreach"
	"github.com/nibzard/fanout/internal/logging"
	"github.com/nibzard/fanout/internal/parallel"
	"github.com/nibzard/fanout/internal/ui"
)

// propertyFlags collects repeated -D name=value flags.
type propertyFlags map[string]string

func (p propertyFlags) String() string {
	pairs := make([]string, 0, len(p))
	for k, v := range p {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func (p propertyFlags) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(name) == "" {
		return fmt.Errorf("expected name=value, got %q", s)
	}
	p[strings.TrimSpace(name)] = value
	return nil
}

// runOptions are the run flags that override the job.
type runOptions struct {
	list, delimiter, target, param, absParam string
	threads                                  int
	timeout                                  time.Duration
	props                                    propertyFlags
	uiMode                                   string
	noLog                                    bool
	set                                      map[string]bool
}

func parseRunFlags(args []string, stderr io.Writer) (*runOptions, []string, error) {
	opts := &runOptions{props: propertyFlags{}, set: map[string]bool{}}
	fs := flag.NewFlagSet("fanout run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.list, "list", "", "Delimited list of values")
	fs.StringVar(&opts.delimiter, "delimiter", "", "List delimiter")
	fs.StringVar(&opts.target, "target", "", "Target to call per item")
	fs.StringVar(&opts.param, "param", "", "Property receiving each value")
	fs.StringVar(&opts.absParam, "absparam", "", "Property receiving each absolute path")
	fs.IntVar(&opts.threads, "threads", 0, "Maximum concurrent units")
	fs.DurationVar(&opts.timeout, "timeout", 0, "Per-unit time limit")
	fs.Var(opts.props, "D", "Set a property (name=value, repeatable)")
	fs.StringVar(&opts.uiMode, "ui", "", "UI mode (tui for a live progress view)")
	fs.BoolVar(&opts.noLog, "no-log", false, "Do not write a run log")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	fs.Visit(func(f *flag.Flag) {
		opts.set[f.Name] = true
	})
	if opts.uiMode != "" && opts.uiMode != "tui" {
		return nil, nil, fmt.Errorf("unknown ui mode %q (supported: tui)", opts.uiMode)
	}
	return opts, fs.Args(), nil
}

// apply writes the flags that were given over the job.
func (o *runOptions) apply(job *config.Job) {
	if job.Foreach == nil {
		job.Foreach = &config.Foreach{}
	}
	fe := job.Foreach
	if o.set["list"] {
		fe.List = o.list
	}
	if o.set["delimiter"] {
		fe.Delimiter = o.delimiter
	}
	if o.set["target"] {
		fe.Target = o.target
	}
	if o.set["param"] {
		fe.Param = o.param
	}
	if o.set["absparam"] {
		fe.AbsParam = o.absParam
	}
	if o.set["threads"] {
		threads := o.threads
		fe.ThreadCount = &threads
	}
	if o.set["timeout"] {
		fe.UnitTimeout = o.timeout.String()
	}
	if len(o.props) > 0 {
		if job.Properties == nil {
			job.Properties = map[string]string{}
		}
		for k, v := range o.props {
			job.Properties[k] = v
		}
	}
}

// runCommand loads a job, applies the run flags and executes it.
func (c *cli) runCommand(ctx context.Context, cfg *config.Config, args []string) error {
	opts, rest, err := parseRunFlags(args, c.stderr)
	if err != nil {
		return err
	}
	path, err := jobPath(cfg, rest)
	if err != nil {
		return err
	}

	job, err := config.LoadJob(path)
	if err != nil {
		return fmt.Errorf("loading job: %w", err)
	}
	opts.apply(job)
	if opts.set["threads"] && opts.threads <= 0 {
		return &foreach.ConfigError{Field: "threads", Err: fmt.Errorf("must be positive, got %d", opts.threads)}
	}

	logger := c.consoleLogger(cfg)
	for _, key := range []string{"log_level", "thread_count", "unit_timeout", "shell", "job_file"} {
		logger.Debug("setting", "key", key, "source", cfg.Sources[key])
	}

	useTUI := opts.uiMode == "tui"
	taskLogger := logger
	if useTUI {
		taskLogger = log.New(io.Discard)
	}

	task, err := job.Task(cfg, job.Invoker(cfg, taskLogger), taskLogger)
	if err != nil {
		return err
	}

	var runLog *logging.RunLogger
	if !opts.noLog {
		runLog, err = logging.NewRunLogger(cfg.LogDir, cfg.ProjectRoot)
		if err != nil {
			logger.Warn("run log disabled", "error", err)
			runLog = nil
		} else {
			defer runLog.Close()
		}
	}

	var summary *foreach.Summary
	execute := func(ctx context.Context, observe func(parallel.Event)) error {
		task.Observer = func(ev parallel.Event) {
			if runLog != nil {
				runLog.Observe(ev)
			}
			if observe != nil {
				observe(ev)
			}
		}
		var runErr error
		summary, runErr = task.Run(ctx)
		return runErr
	}

	if useTUI {
		err = ui.RunProgress(ctx, c.stderr, "fanout "+filepath.Base(job.Path), execute)
		if summary != nil {
			for _, line := range summary.Lines() {
				logger.Info(line)
			}
		}
	} else {
		err = execute(ctx, nil)
	}

	if runLog != nil && summary != nil {
		if logErr := runLog.Summary(summaryRecord(job, summary, err)); logErr != nil {
			logger.Warn("run log incomplete", "error", logErr)
		}
		logger.Info("run log written", "path", runLog.LogPath)
	}

	return err
}

func summaryRecord(job *config.Job, s *foreach.Summary, runErr error) logging.SummaryRecord {
	rec := logging.SummaryRecord{
		Job:        job.Path,
		Entries:    s.Entries,
		Files:      s.Files,
		Dirs:       s.Dirs,
		Skipped:    s.Skipped,
		Dispatched: s.Dispatched,
		Lines:      s.Lines(),
	}
	if s.Result != nil {
		rec.Succeeded = s.Result.Succeeded()
		rec.Failed = len(s.Result.Failures())
		rec.Peak = s.Result.Peak
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	return rec
}
