package parallel

import (
	"errors"
	"fmt"
	"time"
)

// WorkUnit is an immutable, fully resolved invocation request.
type WorkUnit struct {
	TargetName    string
	ParamName     string
	ParamValue    string
	AbsParamName  string
	AbsParamValue string
}

// Bindings returns the parameter bindings of the unit.
func (u WorkUnit) Bindings() map[string]string {
	b := make(map[string]string, 2)
	if u.AbsParamName != "" {
		b[u.AbsParamName] = u.AbsParamValue
	}
	if u.ParamName != "" {
		b[u.ParamName] = u.ParamValue
	}
	return b
}

// String identifies the unit by target and primary binding.
func (u WorkUnit) String() string {
	return fmt.Sprintf("%s[%s=%s]", u.TargetName, u.ParamName, u.ParamValue)
}

// Status is the terminal state of a unit.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Outcome records how a unit finished.
type Outcome struct {
	Unit       WorkUnit
	Status     Status
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the wall time the unit ran for.
func (o Outcome) Duration() time.Duration {
	if o.StartedAt.IsZero() {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}

// UnitError ties a failure to the unit that produced it.
type UnitError struct {
	Unit WorkUnit
	Err  error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("target %q (%s=%q): %v", e.Unit.TargetName, e.Unit.ParamName, e.Unit.ParamValue, e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}

// PanicError is recorded when an invoker panics.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Result aggregates the outcomes of a drained pool.
type Result struct {
	Outcomes []Outcome
	// Peak is the highest number of units observed running at once.
	Peak int
}

// Failed reports whether any unit failed.
func (r *Result) Failed() bool {
	return len(r.Failures()) > 0
}

// Failures returns the failed outcomes.
func (r *Result) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailure {
			out = append(out, o)
		}
	}
	return out
}

// Succeeded returns the number of successful units.
func (r *Result) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == StatusSuccess {
			n++
		}
	}
	return n
}

// Err joins every unit failure into one error, or returns nil.
func (r *Result) Err() error {
	var errs []error
	for _, o := range r.Failures() {
		errs = append(errs, &UnitError{Unit: o.Unit, Err: o.Err})
	}
	return errors.Join(errs...)
}
