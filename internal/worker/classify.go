package worker

import (
	"context"
	"errors"
	"strings"

	"github.com/mediamill/mediamill/internal/apperror"
	"github.com/mediamill/mediamill/internal/pipeline"
)

// FailureClass drives retry behavior: recoverable failures go back to the
// queue, unrecoverable ones are terminal on the first occurrence.
type FailureClass int

const (
	Recoverable FailureClass = iota
	Unrecoverable
)

func (c FailureClass) String() string {
	if c == Unrecoverable {
		return "unrecoverable"
	}
	return "recoverable"
}

// unrecoverableSentinels are pipeline failures that no retry can fix: the
// input itself or the requested parameters are bad.
var unrecoverableSentinels = []error{
	pipeline.ErrCorruptedMedia,
	pipeline.ErrEmptyOutput,
	pipeline.ErrZeroDimensions,
	pipeline.ErrTimeExceedsDuration,
}

// transientMarkers are substrings of error text that indicate an
// infrastructure hiccup worth retrying, matched case-insensitively.
var transientMarkers = []string{
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"temporarily unavailable",
	"no such host",
	"broken pipe",
	"eof",
	"too many open files",
	"resource temporarily",
	"i/o error",
	"no space left",
}

// Classify decides whether a job failure is worth retrying. Validation errors
// and the pipeline's input/output sentinels are terminal; context cancellation,
// explicit transient sentinels and known infrastructure error text are retried. Unknown
// errors default to recoverable so a bug in classification costs redundant
// work, not lost jobs.
func Classify(err error) FailureClass {
	if err == nil {
		return Recoverable
	}

	if apperror.IsValidation(err) {
		return Unrecoverable
	}
	for _, sentinel := range unrecoverableSentinels {
		if errors.Is(err, sentinel) {
			return Unrecoverable
		}
	}

	if errors.Is(err, pipeline.ErrTransient) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return Recoverable
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return Recoverable
		}
	}

	return Recoverable
}
