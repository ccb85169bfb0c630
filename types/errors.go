package types

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrTransientRPC         = errors.New("transient rpc failure")
	ErrValidationRejected   = errors.New("validation rejected")
	ErrSimulationReverted   = errors.New("simulation reverted")
	ErrSubmissionFailed     = errors.New("submission failed")
	ErrConfirmationTimedOut = errors.New("confirmation timed out")
	ErrFatal                = errors.New("fatal")
)

// RejectionError reports which preflight check rejected an opportunity and why
type RejectionError struct {
	Check     string
	Reason    string
	Transient bool
	Kind      error
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Check, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	if e.Kind == nil {
		return ErrValidationRejected
	}
	return e.Kind
}

// FailureClass categorizes a submission error
type FailureClass string

const (
	FailureInsufficientFunds      FailureClass = "insufficient_funds"
	FailureNonce                  FailureClass = "nonce"
	FailureReplacementUnderpriced FailureClass = "replacement_underpriced"
	FailureUnknown                FailureClass = "unknown"
)

// SubmissionError wraps a failed send with its classification
type SubmissionError struct {
	Class     FailureClass
	Retryable bool
	Err       error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission failed (%s): %v", e.Class, e.Err)
}

func (e *SubmissionError) Unwrap() []error {
	return []error{ErrSubmissionFailed, e.Err}
}

// IsRetryable reports whether err is a submission failure that may be retried on a later tick
func IsRetryable(err error) bool {
	var se *SubmissionError
	return errors.As(err, &se) && se.Retryable
}
