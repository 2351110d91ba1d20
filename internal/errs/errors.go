package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// RequestError is returned when the backend was reachable but answered with a non-success status.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return e.Message
}

// Unwrap maps well-known statuses onto sentinels so callers can use errors.Is.
func (e *RequestError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrAlreadyExists
	}
	return nil
}

// ConnectivityError wraps a transport failure. Its message is fixed and user-facing;
// the cause is kept for diagnostics.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string { return ErrConnectivity.Error() }

// Unwrap returns the transport cause.
func (e *ConnectivityError) Unwrap() error { return e.Err }

// Is reports ErrConnectivity as a match.
func (e *ConnectivityError) Is(target error) bool { return target == ErrConnectivity }

// IsDuplicateInsert reports whether err means "this record is already there".
// A structured 409 is preferred; the wording check covers backends that only say it in the message.
func IsDuplicateInsert(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAlreadyExists) {
		return true
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return IsDuplicateMessage(reqErr.Message)
	}
	return false
}

// IsDuplicateMessage reports whether a backend message reports an existing record.
func IsDuplicateMessage(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "already exists")
}

// Message returns the user-facing text for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
