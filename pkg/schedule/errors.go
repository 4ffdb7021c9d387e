package schedule

import "fmt"

// InvalidTermsError reports loan terms that cannot be scheduled. The offending
// field is always named so the caller can surface it to the user.
type InvalidTermsError struct {
	Field  string
	Reason string
	Cause  error
}

func (e *InvalidTermsError) Error() string {
	return fmt.Sprintf("loan terms cannot be scheduled: %s: %s", e.Field, e.Reason)
}

func (e *InvalidTermsError) Unwrap() error {
	return e.Cause
}
