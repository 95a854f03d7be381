// Package omnerr defines the error kinds shared across the recorder and
// aggregator, following the "errors are values" discipline: no panics for
// control flow, every failure carries a Kind callers can switch on.
package omnerr

import "fmt"

// Kind classifies an error without tying callers to a concrete type.
type Kind string

const (
	TransportConnect Kind = "transport_connect"
	TransportDecode  Kind = "transport_decode"
	AuthRejected     Kind = "auth_rejected"
	PtySpawn         Kind = "pty_spawn"
	PtyIo            Kind = "pty_io"
	TerminalMode     Kind = "terminal_mode"
	StoreIo          Kind = "store_io"
	StoreCorrupt     Kind = "store_corrupt"
	SessionNotFound  Kind = "session_not_found"
	LlmBackend       Kind = "llm_backend"
	ConfigInvalid    Kind = "config_invalid"
	ScheduleParse    Kind = "schedule_parse"
)

// Error wraps an underlying error with a Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error for op/kind wrapping err (which may be nil).
func New(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == kind {
				return true
			}
			err = e.Err
			continue
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
