package manifest

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned when the manifest is not a list of records
	ErrMalformed = errors.New("manifest is malformed")
	// ErrMissingCmd is returned when a record has no cmd key
	ErrMissingCmd = errors.New("missing 'cmd' key")
)

// ParseError reports a manifest that could not be read or decoded
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to load manifest %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// WriteError reports a manifest that could not be written back. Entries
// regenerated before the failure no longer match the recorded fingerprints.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write manifest %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
