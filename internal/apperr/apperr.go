// Package apperr defines the error kinds shared by the collection, staging,
// insight and pipeline layers. Callers classify failures with errors.Is
// against the exported kinds.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks a malformed caller request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrProviderUnavailable marks a transport, auth or malformed-response
	// failure from an external provider.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrTimeout marks a polling ceiling exceeded while the provider still
	// reports the job as running.
	ErrTimeout = errors.New("timeout")
	// ErrNotFound marks a staged artifact missing at read time.
	ErrNotFound = errors.New("not found")
)

var kinds = []error{ErrInvalidInput, ErrProviderUnavailable, ErrTimeout, ErrNotFound}

// Error carries a kind, the operation that failed and an optional cause.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New returns an error of the given kind with a formatted message.
func New(kind error, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err as kind. A nil err yields nil.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func InvalidInput(op, format string, args ...any) error {
	return New(ErrInvalidInput, op, format, args...)
}

func Unavailable(op string, err error) error {
	return Wrap(ErrProviderUnavailable, op, err)
}

func NotFound(op, format string, args ...any) error {
	return New(ErrNotFound, op, format, args...)
}

// KindOf returns the kind err belongs to, or nil when it carries none.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Name returns a stable identifier for the kind of err, used in persisted
// run records and API payloads.
func Name(err error) string {
	switch KindOf(err) {
	case ErrInvalidInput:
		return "invalid_input"
	case ErrProviderUnavailable:
		return "provider_unavailable"
	case ErrTimeout:
		return "timeout"
	case ErrNotFound:
		return "not_found"
	}
	if err == nil {
		return ""
	}
	return "internal"
}
