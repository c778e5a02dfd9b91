package loader

import (
	"errors"
	"fmt"
	"time"
)

// ErrTotalLoadFailure marks a result built from the fallback dataset because
// neither resource could be reached. It is reported through
// Result.Warnings, never returned from Load.
var ErrTotalLoadFailure = errors.New("no data source reachable")

// FetchTimeoutError is returned when a resource did not answer within its
// time budget.
type FetchTimeoutError struct {
	Resource string
	Timeout  time.Duration
}

func (e *FetchTimeoutError) Error() string {
	return fmt.Sprintf("fetch %s: timed out after %s", e.Resource, e.Timeout)
}

// Unreachable reports that no response was received.
func (e *FetchTimeoutError) Unreachable() bool { return true }

// UnreachableError wraps a transport failure: DNS, refused connection, a
// missing file.
type UnreachableError struct {
	Resource string
	Err      error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Resource, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

func (e *UnreachableError) Unreachable() bool { return true }

// ResourceUnavailableError is a non-success HTTP status.
type ResourceUnavailableError struct {
	Resource   string
	StatusCode int
	Status     string
}

func (e *ResourceUnavailableError) Error() string {
	return fmt.Sprintf("fetch %s: %s", e.Resource, e.Status)
}

// ParseError is a body that is not the expected structured data.
type ParseError struct {
	Resource string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Resource, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsUnreachable reports whether err means no response was obtained at all,
// as opposed to a response that was unusable.
func IsUnreachable(err error) bool {
	var u interface{ Unreachable() bool }
	return errors.As(err, &u) && u.Unreachable()
}
