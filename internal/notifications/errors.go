package notifications

import "errors"

// NonRetryableError marks a delivery failure that will never succeed on retry,
// such as an unknown event type or a subscriber that no longer exists.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable notification error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func nonRetryable(err error) error {
	return NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err carries a NonRetryableError.
func IsNonRetryable(err error) bool {
	var target NonRetryableError
	return errors.As(err, &target)
}
