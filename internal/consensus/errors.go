// Package consensus holds the consensus error taxonomy, the difficulty check
// and the interfaces of the rule and hashing collaborators.
package consensus

import (
	"errors"
	"fmt"
)

// ErrRejected is matched by every error that means a block or transaction is
// permanently invalid. Callers drop the block instead of retrying.
var ErrRejected = errors.New("consensus rejection")

var (
	ErrInsufficientPOW = errors.New("pow hash does not meet difficulty")
	ErrZeroDifficulty  = errors.New("difficulty is zero")
	ErrUnknownHardFork = errors.New("unknown hard fork")
	ErrPrevIDMismatch  = errors.New("previous block id does not match")
	ErrOverflow        = errors.New("value overflows uint64")
)

// RuleError names the rule that was violated.
type RuleError struct {
	Rule string
	Err  error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("%s: %v", e.Rule, e.Err)
}

func (e *RuleError) Unwrap() []error {
	return []error{ErrRejected, e.Err}
}

// Reject marks err as a consensus rejection of rule. A nil err yields nil.
func Reject(rule string, err error) error {
	if err == nil {
		return nil
	}
	return &RuleError{Rule: rule, Err: err}
}

// IsRejection reports whether err is a permanent consensus rejection.
func IsRejection(err error) bool {
	return errors.Is(err, ErrRejected)
}
