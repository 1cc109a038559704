package scrunch

import "fmt"

// AuthenticationError is returned by Connect when the server rejects the
// supplied credentials, or when no credentials could be resolved from the
// configuration, the environment, or the crunch.ini file.
type AuthenticationError struct {
	Message string
}

func (e AuthenticationError) Error() string {
	return "scrunch: authentication failed: " + e.Message
}

// InvalidPathError indicates that a '|'-separated order path did not resolve
// to an existing group.
type InvalidPathError struct {
	Path string
}

func (e InvalidPathError) Error() string {
	return fmt.Sprintf("scrunch: invalid path: %q", e.Path)
}

// InvalidReferenceError indicates that a variable alias or URL did not match
// any variable in the dataset.
type InvalidReferenceError struct {
	Reference string
}

func (e InvalidReferenceError) Error() string {
	return fmt.Sprintf("scrunch: invalid reference: %q", e.Reference)
}

// OrderUpdateError is returned when the server rejects an order update. The
// local order tree has been reloaded from the server, so any Group or Path
// values obtained before the failed update are stale.
type OrderUpdateError struct {
	Cause error
}

func (e OrderUpdateError) Error() string {
	return "scrunch: order update rejected, local order reloaded: " + e.Cause.Error()
}

func (e OrderUpdateError) Unwrap() error {
	return e.Cause
}

// InvalidTypeError indicates an operation that does not apply to the
// variable's type, such as editing categories of a numeric variable.
type InvalidTypeError struct {
	Operation string
	Type      string
}

func (e InvalidTypeError) Error() string {
	return fmt.Sprintf("scrunch: %s is not supported for variables of type %q", e.Operation, e.Type)
}

// InvalidParamError indicates an invalid argument to a client operation,
// such as attempting to edit an immutable attribute.
type InvalidParamError struct {
	Param   string
	Message string
}

func (e InvalidParamError) Error() string {
	return fmt.Sprintf("scrunch: invalid parameter %q: %s", e.Param, e.Message)
}
