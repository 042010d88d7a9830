package parallel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/nibzard/fanout/internal/invoke"
)

// DefaultMaxWorkers is the number of slots used when none is configured.
const DefaultMaxWorkers = 2

// EventType identifies a pool event.
type EventType string

const (
	EventStarted  EventType = "started"
	EventFinished EventType = "finished"
)

// Event reports a unit transition. Observers are called from worker
// goroutines and must be safe for concurrent use. Seq is the unit's
// submission number and tells apart units with equal bindings. Pending
// counts units not yet started, including those waiting for a slot.
type Event struct {
	Type    EventType
	Seq     int
	Unit    WorkUnit
	Outcome *Outcome
	Active  int
	Pending int
}

// Option configures a WorkerPool.
type Option func(*WorkerPool)

// WithScope sets the parent scope each unit inherits a copy of.
func WithScope(scope *invoke.Scope) Option {
	return func(p *WorkerPool) {
		p.scope = scope
	}
}

// WithUnitTimeout bounds the run time of each unit. Zero disables the limit.
func WithUnitTimeout(d time.Duration) Option {
	return func(p *WorkerPool) {
		p.timeout = d
	}
}

// WithObserver registers a callback for unit events.
func WithObserver(fn func(Event)) Option {
	return func(p *WorkerPool) {
		p.observer = fn
	}
}

// WithLogger sets the pool logger.
func WithLogger(logger *log.Logger) Option {
	return func(p *WorkerPool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WorkerPool runs queued units with bounded concurrency.
type WorkerPool struct {
	maxWorkers int
	invoker    invoke.Invoker
	scope      *invoke.Scope
	timeout    time.Duration
	observer   func(Event)
	logger     *log.Logger

	mu       sync.Mutex
	queue    []queued
	seq      int
	waiting  int
	active   int
	peak     int
	outcomes []Outcome
}

// queued is a submitted unit with its submission number.
type queued struct {
	seq  int
	unit WorkUnit
}

// NewWorkerPool creates a pool with at most maxWorkers concurrent slots.
// A non-positive maxWorkers selects DefaultMaxWorkers.
func NewWorkerPool(maxWorkers int, invoker invoke.Invoker, opts ...Option) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	p := &WorkerPool{
		maxWorkers: maxWorkers,
		invoker:    invoker,
		scope:      invoke.NewScope(),
		logger:     log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxWorkers returns the slot count.
func (p *WorkerPool) MaxWorkers() int {
	return p.maxWorkers
}

// Submit queues a unit. It never blocks on running work.
func (p *WorkerPool) Submit(u WorkUnit) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.queue = append(p.queue, queued{seq: p.seq, unit: u})
}

// Pending returns the number of submitted units that have not started.
func (p *WorkerPool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pendingLocked()
}

func (p *WorkerPool) pendingLocked() int {
	return len(p.queue) + p.waiting
}

// RunToCompletion executes every queued unit and returns once all of them
// have an outcome and no slot is active. Units submitted while the pool is
// draining are executed in the same call.
//
// Cancelling ctx does not interrupt the drain: units that have not started
// are recorded as failures carrying the context error.
func (p *WorkerPool) RunToCompletion(ctx context.Context) *Result {
	var g errgroup.Group
	g.SetLimit(p.maxWorkers)

	for {
		for {
			q, ok := p.next()
			if !ok {
				break
			}
			g.Go(func() error {
				p.execute(ctx, q)
				return nil
			})
		}
		_ = g.Wait()
		if p.Pending() == 0 {
			break
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	outcomes := make([]Outcome, len(p.outcomes))
	copy(outcomes, p.outcomes)
	return &Result{Outcomes: outcomes, Peak: p.peak}
}

// next pops a queued unit. It stays pending until it gets a slot.
func (p *WorkerPool) next() (queued, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return queued{}, false
	}
	q := p.queue[0]
	p.queue = p.queue[1:]
	p.waiting++
	return q, true
}

func (p *WorkerPool) execute(ctx context.Context, q queued) {
	u := q.unit
	if err := ctx.Err(); err != nil {
		now := time.Now()
		out := Outcome{Unit: u, Status: StatusFailure, Err: fmt.Errorf("not started: %w", err), FinishedAt: now}
		p.finish(q.seq, out, false)
		return
	}

	active, pending := p.begin()
	p.logger.Debug("unit started", "unit", u.String(), "active", active, "pending", pending)
	p.emit(Event{Type: EventStarted, Seq: q.seq, Unit: u, Active: active, Pending: pending})

	out := Outcome{Unit: u, StartedAt: time.Now()}
	out.Err = p.invoke(ctx, u)
	out.FinishedAt = time.Now()
	out.Status = StatusSuccess
	if out.Err != nil {
		out.Status = StatusFailure
	}
	p.finish(q.seq, out, true)
}

// invoke runs the unit against its own copy of the parent scope.
func (p *WorkerPool) invoke(ctx context.Context, u WorkUnit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	scope := p.scope.Clone()
	for name, value := range u.Bindings() {
		scope.Set(name, value)
	}

	err = p.invoker.Invoke(ctx, u.TargetName, scope)
	if err != nil && p.timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("timed out after %s: %w", p.timeout, err)
	}
	return err
}

func (p *WorkerPool) begin() (active, pending int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waiting--
	p.active++
	if p.active > p.peak {
		p.peak = p.active
	}
	return p.active, p.pendingLocked()
}

func (p *WorkerPool) finish(seq int, out Outcome, started bool) {
	p.mu.Lock()
	if started {
		p.active--
	} else {
		p.waiting--
	}
	p.outcomes = append(p.outcomes, out)
	active, pending := p.active, p.pendingLocked()
	p.mu.Unlock()

	if out.Err != nil {
		p.logger.Error("unit failed",
			"target", out.Unit.TargetName,
			"param", out.Unit.ParamName,
			"value", out.Unit.ParamValue,
			"error", out.Err)
	} else {
		p.logger.Debug("unit finished", "unit", out.Unit.String(), "active", active, "duration", out.Duration())
	}
	p.emit(Event{Type: EventFinished, Seq: seq, Unit: out.Unit, Outcome: &out, Active: active, Pending: pending})
}

func (p *WorkerPool) emit(ev Event) {
	if p.observer != nil {
		p.observer(ev)
	}
}
