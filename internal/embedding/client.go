// Package embedding is the gateway to the external embedding service. It
// batches chunk texts, retries transient failures with bounded backoff,
// validates vector dimensions, and keeps service flakiness away from the
// indexing pipeline.
package embedding

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_client.go -package=mocks roserade/internal/embedding Client

import (
	"context"
	"errors"
	"fmt"
)

// Client generates embeddings. EmbedBatch returns one vector per input text,
// in input order; on failure no partial results are returned and the error
// identifies which input range could not be embedded.
type Client interface {
	// Embed generates a single embedding, used for the query path.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch generates embeddings for all texts, same length and order
	// as the input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// TransientError marks a failure worth retrying: timeouts, connection
// errors, service overload.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient embedding error: %s", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks a failure that retrying cannot fix: malformed requests or
// a dimension mismatch, which almost always means the configured model does
// not match the service. It aborts the whole run.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("fatal embedding error: %s", e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

// BatchError reports that the texts in [Start, End) could not be embedded
// after all retries.
type BatchError struct {
	Start int
	End   int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("embedding failed for texts %d..%d: %s", e.Start, e.End-1, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsFatal reports whether err is (or wraps) a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
