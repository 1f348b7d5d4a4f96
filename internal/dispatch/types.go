package dispatch

import (
	"errors"
	"fmt"
)

// ValidationError rejects a submission before anything is persisted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid submission: " + e.Reason }

// AdmissionError reports that the task queue saturated mid fan-out. The
// query row exists and is marked incomplete; tasks enqueued before the
// cutoff still run.
type AdmissionError struct {
	QueryID  int64
	Enqueued int
	Selected int
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("task queue is full: enqueued %d of %d tasks for query %d",
		e.Enqueued, e.Selected, e.QueryID)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsAdmission reports whether err is an AdmissionError.
func IsAdmission(err error) bool {
	var ae *AdmissionError
	return errors.As(err, &ae)
}
