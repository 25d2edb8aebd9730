package core

import (
	"errors"
	"fmt"
)

// Error kinds. Every error produced by the ingestion and search paths matches
// exactly one of these through errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrStorage           = errors.New("storage error")
	ErrExtractionFailed  = errors.New("extraction failed")
	ErrEmptyExtraction   = errors.New("empty extraction")
	ErrEmbeddingProvider = errors.New("embedding provider error")
	ErrVectorIndex       = errors.New("vector index error")
	ErrQueryLog          = errors.New("query log error")
	ErrNotFound          = errors.New("not found")

	// ErrIngestionInProgress is returned when another run holds the document's lease.
	ErrIngestionInProgress = errors.New("ingestion already in progress")
	// ErrStaleIngestion is returned when a newer run superseded this one.
	ErrStaleIngestion = errors.New("ingestion superseded by a newer run")
)

type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string        { return e.err.Error() }
func (e *kindError) Is(target error) bool { return target == e.kind }
func (e *kindError) Unwrap() error        { return e.err }

// Errorf formats like fmt.Errorf (including %w) and tags the result with kind.
// The message is the formatted text only, so it can be stored verbatim.
func Errorf(kind error, format string, args ...any) error {
	return &kindError{kind: kind, err: fmt.Errorf(format, args...)}
}

// Wrap tags err with kind, keeping its message. A nil err stays nil.
func Wrap(kind error, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return &kindError{kind: kind, err: err}
}
