// Package foreach runs a target once per item of one or more sources, with
// bounded parallelism.
//
// A run happens in two phases. First every configured source is enumerated,
// each raw value passes through the optional mapper and a work unit is queued
// for it. Only then is the worker pool drained. Unit order is not preserved.
package foreach

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nibzard/fanout/internal/invoke"
	"github.com/nibzard/fanout/internal/mapper"
	"github.com/nibzard/fanout/internal/parallel"
	"github.com/nibzard/fanout/internal/source"
)

// Task is a parallel foreach run.
type Task struct {
	// List is a delimited list of values to iterate over.
	List string
	// Delimiter separates List values; defaults to ",".
	Delimiter string
	// Target is the callee invoked once per item.
	Target string
	// Param receives each item's (mapped) value.
	Param string
	// AbsParam, when set, receives the absolute path of file and dir items.
	AbsParam string
	// ThreadCount bounds the number of concurrently running units; defaults to 2.
	ThreadCount int
	// UnitTimeout bounds each unit's run time. Zero means no limit.
	UnitTimeout time.Duration

	Invoker  invoke.Invoker
	Scope    *invoke.Scope
	Logger   *log.Logger
	Observer func(parallel.Event)

	fileLists []*source.FileList
	fileSets  []*source.FileSet
	mapper    mapper.Mapper
}

// AddFileList adds a nested file list.
func (t *Task) AddFileList(fl *source.FileList) {
	t.fileLists = append(t.fileLists, fl)
}

// AddFileSet adds a nested file set.
func (t *Task) AddFileSet(fs *source.FileSet) {
	t.fileSets = append(t.fileSets, fs)
}

// SetMapper sets the value mapper. Only one mapper may be configured.
func (t *Task) SetMapper(m mapper.Mapper) error {
	if t.mapper != nil {
		return &ConfigError{Field: "mapper", Err: ErrMultipleMappers}
	}
	t.mapper = m
	return nil
}

// Validate checks the configuration without enumerating anything.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.List) == "" && len(t.fileLists) == 0 && len(t.fileSets) == 0 {
		return &ConfigError{Err: ErrNoItems}
	}
	if t.Param == "" {
		return &ConfigError{Field: "param", Err: ErrParamRequired}
	}
	if t.Target == "" {
		return &ConfigError{Field: "target", Err: ErrTargetRequired}
	}
	if t.ThreadCount < 0 {
		return &ConfigError{Field: "threadCount", Err: fmt.Errorf("must be positive, got %d", t.ThreadCount)}
	}
	if t.Invoker == nil {
		return &ConfigError{Field: "invoker", Err: ErrNoInvoker}
	}
	return nil
}

// Run enumerates every source, queues one unit per accepted item and waits
// for all units to finish. Configuration and enumeration errors are returned
// before any unit starts. Unit failures are returned, wrapped in
// ErrUnitsFailed, only after every unit has run; the summary is returned in
// both cases.
func (t *Task) Run(ctx context.Context) (*Summary, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	logger := t.logger()

	scope := t.Scope
	if scope == nil {
		scope = invoke.NewScope()
	}
	pool := parallel.NewWorkerPool(t.ThreadCount, t.Invoker,
		parallel.WithScope(scope),
		parallel.WithUnitTimeout(t.UnitTimeout),
		parallel.WithObserver(t.Observer),
		parallel.WithLogger(logger),
	)

	summary := &Summary{}
	for _, src := range t.sources() {
		c, err := t.enqueue(pool, src, logger)
		if err != nil {
			return nil, &EnumerationError{Source: src.Name(), Err: err}
		}
		logger.Debug("source enumerated", "source", src.Name(),
			"entries", c.entries, "files", c.files, "dirs", c.dirs, "skipped", c.skipped)
		summary.add(src, c)
	}

	summary.Dispatched = pool.Pending()
	summary.Result = pool.RunToCompletion(ctx)

	for _, line := range summary.Lines() {
		logger.Info(line)
	}

	if summary.Result.Failed() {
		failed := len(summary.Result.Failures())
		return summary, fmt.Errorf("%w: %d of %d units failed: %w",
			ErrUnitsFailed, failed, len(summary.Result.Outcomes), summary.Result.Err())
	}
	return summary, nil
}

func (t *Task) logger() *log.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return log.New(io.Discard)
}

// sources builds this run's sources: the list first, then file lists, then
// file sets. File sources are fresh copies so a task can run more than once.
func (t *Task) sources() []source.Source {
	var out []source.Source
	if l := source.NewList(t.List, t.Delimiter); !l.Empty() {
		out = append(out, l)
	}
	for _, fl := range t.fileLists {
		out = append(out, fl.Fresh())
	}
	for _, fs := range t.fileSets {
		out = append(out, fs.Fresh())
	}
	return out
}

// counts holds the per-source tallies.
type counts struct {
	entries, files, dirs, skipped int
}

// enqueue enumerates one source and submits a unit per accepted item. Files
// and dirs are counted as enumerated; list entries only when dispatched.
func (t *Task) enqueue(pool *parallel.WorkerPool, src source.Source, logger *log.Logger) (counts, error) {
	var c counts
	err := src.Enumerate(func(it source.Item) error {
		switch it.Kind {
		case source.KindFile:
			c.files++
		case source.KindDir:
			c.dirs++
		}

		u, ok := t.buildUnit(it, logger)
		if !ok {
			c.skipped++
			return nil
		}
		pool.Submit(u)
		if it.Kind == source.KindEntry {
			c.entries++
		}
		return nil
	})
	return c, err
}

// buildUnit binds an item to a work unit. The absolute path is taken from the
// raw value, before mapping.
func (t *Task) buildUnit(it source.Item, logger *log.Logger) (parallel.WorkUnit, bool) {
	u := parallel.WorkUnit{TargetName: t.Target, ParamName: t.Param}
	if t.AbsParam != "" && it.BaseDir != "" {
		u.AbsParamName = t.AbsParam
		u.AbsParamValue = filepath.Join(it.BaseDir, it.Value)
	}

	value, ok := mapper.Apply(t.mapper, it.Value)
	if !ok {
		logger.Debug("mapper produced no value, skipping item", "value", it.Value)
		return parallel.WorkUnit{}, false
	}
	u.ParamValue = value

	if t.mapper != nil {
		logger.Debug(fmt.Sprintf("Setting param '%s' to value '%s' (mapped from '%s')", t.Param, value, it.Value))
	} else {
		logger.Debug(fmt.Sprintf("Setting param '%s' to value '%s'", t.Param, value))
	}
	return u, true
}
