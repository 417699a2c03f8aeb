// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package completion

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every *Error unwraps to exactly one of the three kinds, so
// callers classify with errors.Is.
var (
	ErrConfiguration = errors.New("invalid completion configuration")
	ErrTransport     = errors.New("transport failure")
	ErrService       = errors.New("service error")
	ErrMalformed     = errors.New("malformed response")
)

// Kind classifies a failed completion call.
type Kind int

const (
	KindTransport Kind = iota + 1
	KindService
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindService:
		return "service"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindTransport:
		return ErrTransport
	case KindService:
		return ErrService
	default:
		return ErrMalformed
	}
}

// Error is the single classified failure returned by Client.Complete.
type Error struct {
	Kind  Kind
	Model string

	// StatusCode is the HTTP status for service errors, zero otherwise.
	StatusCode int

	// Msg is the service's own error message when one could be decoded.
	Msg string

	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Kind == KindService && e.Msg != "":
		return fmt.Sprintf("%s: model %s: status %d: %s", e.Kind.sentinel(), e.Model, e.StatusCode, e.Msg)
	case e.Kind == KindService:
		return fmt.Sprintf("%s: model %s: status %d", e.Kind.sentinel(), e.Model, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: model %s: %v", e.Kind.sentinel(), e.Model, e.Err)
	default:
		return fmt.Sprintf("%s: model %s", e.Kind.sentinel(), e.Model)
	}
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// IsTransient reports whether err is a transport failure, the only kind
// worth retrying. Service and malformed responses will not change on retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransport)
}

func transportErr(model string, err error) error {
	return &Error{Kind: KindTransport, Model: model, Err: err}
}
