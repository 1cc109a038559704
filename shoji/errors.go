package shoji

import (
	"fmt"
	"net/http"
)

// StatusError is returned when the API responds with a non-success HTTP status.
type StatusError struct {
	// Code is the HTTP status code.
	Code int
	// URL is the resource that was being accessed.
	URL string
	// Message is a human-readable description of the failure.
	Message string
}

func (e StatusError) Error() string {
	return e.Message
}

// ProgressError is returned when a long-running operation reports failure, or
// when waiting for it times out.
type ProgressError struct {
	// URL is the progress resource that was being polled.
	URL string
	// Message is the server-reported failure reason, if any.
	Message string
}

func (e ProgressError) Error() string {
	return e.Message
}

// IsNotFound tests whether an error is a StatusError with a 404 status.
func IsNotFound(err error) bool {
	se, ok := err.(StatusError)
	return ok && se.Code == http.StatusNotFound
}

// IsAuthFailure tests whether an error is a StatusError with a 401 or 403 status.
func IsAuthFailure(err error) bool {
	se, ok := err.(StatusError)
	return ok && (se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden)
}

func checkForHTTPError(statusCode int, url string) error {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return StatusError{
			Code:    statusCode,
			URL:     url,
			Message: fmt.Sprintf("invalid credentials when accessing URL: %s; verify that your API key or username and password are correct", url),
		}
	case statusCode == http.StatusNotFound:
		return StatusError{
			Code:    statusCode,
			URL:     url,
			Message: fmt.Sprintf("resource not found when accessing URL: %s; verify that this resource exists", url),
		}
	case statusCode/100 != 2:
		return StatusError{
			Code:    statusCode,
			URL:     url,
			Message: fmt.Sprintf("unexpected response code %d when accessing URL: %s", statusCode, url),
		}
	}
	return nil
}
