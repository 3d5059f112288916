package etl

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSources is returned when the source directory holds no brand files.
	ErrNoSources = errors.New("no source files found")
	// ErrAlreadyRunning is returned when a run is requested while one is in progress.
	ErrAlreadyRunning = errors.New("pipeline is already running")
)

// LoadError means a source could not be parsed into records.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("load: %v", e.Err)
	}
	return fmt.Sprintf("load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SchemaError means a required column is absent. Source is empty when the
// check ran on the combined dataset.
type SchemaError struct {
	Source string
	Field  string
}

func (e *SchemaError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("schema: required field %q is missing", e.Field)
	}
	return fmt.Sprintf("schema: required field %q is missing from %s", e.Field, e.Source)
}

// ImputeError means a field had no observed values to compute a median from.
type ImputeError struct {
	Field string
}

func (e *ImputeError) Error() string {
	return fmt.Sprintf("impute: no non-missing values for %s", e.Field)
}

// WriteError means a destination could not be written.
type WriteError struct {
	Target string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Target, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
