package verifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/manifest-network/chainguard/internal/consensus"
	"github.com/manifest-network/chainguard/internal/models"
)

// ErrUpstream is matched by failures of the context provider, the transaction
// pool or the transaction verifier that are not consensus rejections.
var ErrUpstream = errors.New("upstream service failure")

// UpstreamError names the collaborator that failed.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s service: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstream, e.Err}
}

func upstream(service string, err error) error {
	return &UpstreamError{Service: service, Err: err}
}

// Class groups verification errors by what the caller should do about them.
type Class int

const (
	// ClassNone means there was no error.
	ClassNone Class = iota
	// ClassRejected is a permanent consensus rejection: drop the block.
	ClassRejected
	// ClassMissingData means a referenced transaction was not in the pool: re-fetch and retry.
	ClassMissingData
	// ClassUpstream is an infrastructure failure: retry with backoff.
	ClassUpstream
	// ClassCancelled means the caller's context ended.
	ClassCancelled
	// ClassUnknown is anything else.
	ClassUnknown
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "verified"
	case ClassRejected:
		return "rejected"
	case ClassMissingData:
		return "missing_data"
	case ClassUpstream:
		return "upstream_error"
	case ClassCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Classify sorts err into a Class.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case consensus.IsRejection(err):
		return ClassRejected
	case errors.Is(err, models.ErrTxNotInPool):
		return ClassMissingData
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassCancelled
	case errors.Is(err, ErrUpstream):
		return ClassUpstream
	default:
		return ClassUnknown
	}
}
