package core

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrDocumentNotFound       = errors.New("document not found")
	ErrBatchNotFound          = errors.New("batch not found")
	ErrObjectNotFound         = errors.New("object not found")
	ErrExtraction             = errors.New("text extraction failed")
	ErrChunking               = errors.New("chunking failed")
	ErrEmbedding              = errors.New("embedding failed")
	ErrEmbeddingQuotaExceeded = errors.New("embedding rate limit exceeded")
	ErrVectorIndexWrite       = errors.New("vector index write failed")
	ErrRelationalCommit       = errors.New("relational commit failed")
	ErrVersionNotFound        = errors.New("document version not found")
)

// ValidationError rejects an upload before any side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IsRetryable reports whether a failed processing attempt may succeed if run again.
// Bad input, missing versions and quota exhaustion are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrDocumentNotFound),
		errors.Is(err, ErrVersionNotFound),
		errors.Is(err, ErrExtraction),
		errors.Is(err, ErrChunking),
		errors.Is(err, ErrEmbeddingQuotaExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
