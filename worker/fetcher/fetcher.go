// Package fetcher retrieves remote media into local storage.
package fetcher

import (
	"context"
	"errors"

	"mediaFetcher/api/models"
)

// Request describes a single fetch. Credential is an opaque cookie payload
// that must not outlive the call.
type Request struct {
	Target     string
	OutputKind models.OutputKind
	Credential string
	OutputDir  string
	BaseName   string
}

// Fetcher blocks until the media is on disk and returns the produced path.
// The extension of the returned path may differ from the requested kind.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (string, error)
}

// Error is a fetch failure. UserFault marks failures caused by the request
// itself, such as an unsupported or unavailable target.
type Error struct {
	Message   string
	UserFault bool
	Err       error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsUserFault reports whether err is a fetch failure caused by the request.
func IsUserFault(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.UserFault
}
