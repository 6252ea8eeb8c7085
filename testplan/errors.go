package testplan

import (
	"fmt"
	"strconv"
)

// ConfigurationError is returned when the test plan, a file spec or a required argument
// is missing or malformed. It is fatal: no partitioning work may start after it.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func fieldAt(name string, i int) string {
	return name + "[" + strconv.Itoa(i) + "]"
}
