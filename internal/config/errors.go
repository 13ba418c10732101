package config

import "fmt"

// Error is a configuration error: the supervisor cannot start with the given
// settings.
type Error struct {
	Path  string // config file, if known
	Field string // offending key, if known
	Err   error
}

func (e *Error) Error() string {
	msg := e.Err.Error()
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Path != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Path, msg)
	}
	return "configuration error: " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fieldError(field, format string, args ...any) *Error {
	return &Error{Field: field, Err: fmt.Errorf(format, args...)}
}
