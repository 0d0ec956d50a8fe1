// Package submit validates submission inputs locally and hands accepted
// ones to the backend exactly once.
package submit

import (
	"errors"
	"fmt"
)

// ErrSubmissionInFlight is returned while another submission is still being sent.
var ErrSubmissionInFlight = errors.New("a submission is already in flight")

// Kind classifies why a submission did not yield a job.
type Kind string

const (
	KindFileRejected        Kind = "file_rejected"
	KindUnsupportedPlatform Kind = "unsupported_platform"
	KindInsufficientCredits Kind = "insufficient_credits"
	KindPlanRestriction     Kind = "plan_restriction"
	KindScopeMismatch       Kind = "scope_mismatch"
	KindTransport           Kind = "transport"
)

// SubmissionError is a classified submission failure with an optional cause.
type SubmissionError struct {
	Kind   Kind   `json:"kind"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// Error formats submission failures for logs and UI.
func (e *SubmissionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *SubmissionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the kind of a SubmissionError in err's chain, or "".
func KindOf(err error) Kind {
	var subErr *SubmissionError
	if errors.As(err, &subErr) {
		return subErr.Kind
	}
	return ""
}

func rejectFile(format string, args ...any) error {
	return &SubmissionError{Kind: KindFileRejected, Reason: fmt.Sprintf(format, args...)}
}
