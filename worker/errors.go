package worker

import "fmt"

// MissingIdentityError is returned when the worker coordinates cannot be resolved.
// No input file may be touched after it.
type MissingIdentityError struct {
	Key    string
	Reason string
}

func (e *MissingIdentityError) Error() string {
	return fmt.Sprintf("unable to resolve worker identity: %s %s", e.Key, e.Reason)
}
