package execution

import (
	"strings"

	"github.com/michaelpento.lv/arbengine/types"
)

// Classify wraps a failed send with its failure class. Insufficient funds and
// unknown errors are final for the attempt; nonce and underpriced replacement
// errors may succeed on a later tick.
func Classify(err error) *types.SubmissionError {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return &types.SubmissionError{Class: types.FailureInsufficientFunds, Err: err}
	case strings.Contains(msg, "replacement transaction underpriced"),
		strings.Contains(msg, "transaction underpriced"),
		strings.Contains(msg, "fee too low"),
		strings.Contains(msg, "max fee per gas less than block base fee"):
		return &types.SubmissionError{Class: types.FailureReplacementUnderpriced, Retryable: true, Err: err}
	case strings.Contains(msg, "nonce"):
		return &types.SubmissionError{Class: types.FailureNonce, Retryable: true, Err: err}
	default:
		return &types.SubmissionError{Class: types.FailureUnknown, Err: err}
	}
}
