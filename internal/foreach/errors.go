package foreach

import (
	"errors"
	"fmt"
)

// Configuration errors. They are reported before any unit starts.
var (
	ErrNoItems         = errors.New("need either list, nested fileset or nested filelist to iterate through")
	ErrParamRequired   = errors.New("you must supply a property name to set on each iteration in param")
	ErrTargetRequired  = errors.New("you must supply a target to perform")
	ErrMultipleMappers = errors.New("cannot define more than one mapper")
	ErrNoInvoker       = errors.New("no invoker configured")
)

// ErrUnitsFailed is wrapped by the run error when one or more units failed.
var ErrUnitsFailed = errors.New("foreach failed")

// ConfigError reports an invalid task configuration.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration: %v", e.Err)
	}
	return fmt.Sprintf("configuration: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// EnumerationError reports a source that could not be enumerated.
type EnumerationError struct {
	Source string
	Err    error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("enumerate %s: %v", e.Source, e.Err)
}

func (e *EnumerationError) Unwrap() error {
	return e.Err
}
