package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed job.schema.json
var jobSchemaJSON string

const jobSchemaURL = "job.schema.json"

var (
	jobSchemaOnce sync.Once
	jobSchema     *jsonschema.Schema
	jobSchemaErr  error
)

// JobSchema returns the JSON Schema job files are validated against.
func JobSchema() string {
	return jobSchemaJSON
}

// FieldError is a validation failure at a location in the job.
type FieldError struct {
	Path string
	Err  error
}

func (e *FieldError) Error() string {
	if e.Path == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func compiledJobSchema() (*jsonschema.Schema, error) {
	jobSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		if err := compiler.AddResource(jobSchemaURL, strings.NewReader(jobSchemaJSON)); err != nil {
			jobSchemaErr = fmt.Errorf("load job schema: %w", err)
			return
		}
		jobSchema, jobSchemaErr = compiler.Compile(jobSchemaURL)
	})
	return jobSchema, jobSchemaErr
}

// ValidateJob checks a job against the job schema and the rules the schema
// cannot express. All failures are returned joined, each as a *FieldError.
func ValidateJob(job *Job) error {
	schema, err := compiledJobSchema()
	if err != nil {
		return err
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job for validation: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to unmarshal job for validation: %w", err)
	}

	var errs []error
	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return err
		}
		errs = collectSchemaErrors(errs, ve)
	}

	seen := make(map[string]bool, len(job.Targets))
	for i, t := range job.Targets {
		if seen[t.Name] {
			errs = append(errs, &FieldError{
				Path: fmt.Sprintf("target.%d.name", i),
				Err:  fmt.Errorf("duplicate target %q", t.Name),
			})
		}
		seen[t.Name] = true
	}
	return errors.Join(errs...)
}

func collectSchemaErrors(errs []error, ve *jsonschema.ValidationError) []error {
	if len(ve.Causes) == 0 {
		return append(errs, &FieldError{
			Path: jsonPointerToPath(ve.InstanceLocation),
			Err:  errors.New(ve.Message),
		})
	}
	for _, cause := range ve.Causes {
		errs = collectSchemaErrors(errs, cause)
	}
	return errs
}

func jsonPointerToPath(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "#")
	ptr = strings.TrimPrefix(ptr, "/")
	return strings.ReplaceAll(ptr, "/", ".")
}
