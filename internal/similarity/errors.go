package similarity

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned when the query id or scope prompt is missing.
	ErrInvalidRequest = errors.New("image id and prompt are required")
	// ErrQueryEmbeddingNotFound is returned when the query image has no stored embedding.
	// Callers must generate the embedding before searching.
	ErrQueryEmbeddingNotFound = errors.New("no embedding found for image, get embedding first")
	// ErrNoCandidates is returned when no other image shares the scope prompt.
	ErrNoCandidates = errors.New("no images found to compare against")
	// ErrDegenerateVector marks a candidate that cannot be scored. It never reaches callers
	// of Rank; the candidate is skipped.
	ErrDegenerateVector = errors.New("degenerate vector")
	// ErrDependencyFailure classifies store and catalog faults.
	ErrDependencyFailure = errors.New("dependency failure")
)

// DependencyError wraps a store or catalog fault. errors.Is matches both
// ErrDependencyFailure and the underlying cause.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() []error {
	return []error{ErrDependencyFailure, e.Err}
}

func dependencyError(op string, err error) error {
	return &DependencyError{Op: op, Err: err}
}

// Error codes exposed at the API boundary.
const (
	CodeInvalidRequest         = "invalid_request"
	CodeQueryEmbeddingNotFound = "query_embedding_not_found"
	CodeCandidatesNotFound     = "candidates_not_found"
	CodeDependencyFailure      = "dependency_failure"
	CodeInternal               = "internal"
)

// ErrorCode maps an error returned by Rank to its machine-readable code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, ErrQueryEmbeddingNotFound):
		return CodeQueryEmbeddingNotFound
	case errors.Is(err, ErrNoCandidates):
		return CodeCandidatesNotFound
	case errors.Is(err, ErrDependencyFailure):
		return CodeDependencyFailure
	default:
		return CodeInternal
	}
}
