package trace

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedTrace marks structural or parse failures in a trace.
	ErrMalformedTrace = errors.New("malformed trace")
	// ErrUnknownEventKind marks an event whose type tag is not recognized.
	// Every error matching it also matches ErrMalformedTrace.
	ErrUnknownEventKind = errors.New("unknown event kind")
)

// UnknownKindError reports the position and tag of an unrecognized event.
type UnknownKindError struct {
	Index int
	Kind  string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("malformed trace: event %d: unknown event kind %q", e.Index, e.Kind)
}

func (e *UnknownKindError) Unwrap() []error {
	return []error{ErrUnknownEventKind, ErrMalformedTrace}
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrMalformedTrace}, args...)...)
}
