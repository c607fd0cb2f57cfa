package queue

import "errors"

// permanentError wraps failures that must not be retried: bad input, missing
// records, and other outcomes that cannot change on a second attempt.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable. The worker fails the job
// immediately instead of scheduling a backoff retry.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
