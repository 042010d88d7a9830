package config

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nibzard/fanout/internal/foreach"
	"github.com/nibzard/fanout/internal/invoke"
	"github.com/nibzard/fanout/internal/mapper"
	"github.com/nibzard/fanout/internal/source"
)

// Invoker builds the shell invoker for the job's targets. Target dirs
// resolve against the job directory.
func (j *Job) Invoker(cfg *Config, logger *log.Logger) *invoke.CommandInvoker {
	targets := make([]invoke.CommandTarget, 0, len(j.Targets))
	for _, t := range j.Targets {
		targets = append(targets, invoke.CommandTarget{
			Name:    t.Name,
			Command: t.Command,
			Dir:     j.Resolve(t.Dir),
			Env:     t.Env,
		})
	}
	var shell []string
	if cfg != nil {
		shell = cfg.Shell
	}
	return invoke.NewCommandInvoker(shell, targets, logger)
}

// Task turns the job into a foreach task bound to inv. Thread count and
// unit timeout fall back to the tool settings when the job leaves them
// unset. The task is validated before it is returned.
func (j *Job) Task(cfg *Config, inv invoke.Invoker, logger *log.Logger) (*foreach.Task, error) {
	fe := j.Foreach
	if fe == nil {
		fe = &Foreach{}
	}

	task := &foreach.Task{
		List:      fe.List,
		Delimiter: fe.Delimiter,
		Target:    fe.Target,
		Param:     fe.Param,
		AbsParam:  fe.AbsParam,
		Invoker:   inv,
		Scope:     invoke.NewScopeFromMap(j.Properties),
		Logger:    logger,
	}
	switch {
	case fe.ThreadCount != nil:
		if *fe.ThreadCount <= 0 {
			return nil, &foreach.ConfigError{
				Field: "thread_count",
				Err:   fmt.Errorf("must be positive, got %d", *fe.ThreadCount),
			}
		}
		task.ThreadCount = *fe.ThreadCount
	case cfg != nil:
		task.ThreadCount = cfg.ThreadCount
	}

	timeout, err := j.timeout(cfg)
	if err != nil {
		return nil, &foreach.ConfigError{Field: "unit_timeout", Err: err}
	}
	task.UnitTimeout = timeout

	for _, fl := range fe.FileLists {
		task.AddFileList(source.NewFileList(j.Resolve(fl.Dir), fl.Files...))
	}
	for _, fs := range fe.FileSets {
		set := source.NewFileSet(j.Resolve(fs.Dir), fs.Includes, fs.Excludes)
		set.NoDefaultExcludes = fs.DefaultExcludes != nil && !*fs.DefaultExcludes
		task.AddFileSet(set)
	}
	for _, spec := range fe.Mappers {
		m, err := mapper.New(mapper.Spec{
			Type:            spec.Type,
			From:            spec.From,
			To:              spec.To,
			CaseInsensitive: spec.CaseInsensitive,
		})
		if err != nil {
			return nil, &foreach.ConfigError{Field: "mapper", Err: err}
		}
		if err := task.SetMapper(m); err != nil {
			return nil, err
		}
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}
	if h, ok := inv.(interface{ Has(string) bool }); ok && !h.Has(task.Target) {
		return nil, &foreach.ConfigError{
			Field: "target",
			Err:   fmt.Errorf("%w: %s", invoke.ErrUnknownTarget, task.Target),
		}
	}
	return task, nil
}

func (j *Job) timeout(cfg *Config) (time.Duration, error) {
	if j.Foreach != nil && j.Foreach.UnitTimeout != "" {
		d, err := time.ParseDuration(j.Foreach.UnitTimeout)
		if err != nil {
			return 0, err
		}
		return d, nil
	}
	if cfg == nil {
		return 0, nil
	}
	return cfg.Timeout()
}
