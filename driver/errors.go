package driver

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument reports a malformed request, such as a negative delay.
// Requests failing with this error are rejected before any state changes.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrFrozenClock is returned when a game-to-real time conversion is requested
// on a clock with a zero scale. A zero scale freezes the in-world clock, so
// no real-time duration corresponds to a game-time one.
var ErrFrozenClock = fmt.Errorf("%w: clock scale is zero", ErrInvalidArgument)

// ErrUnknownCommand is returned when a verb has no registered handler.
var ErrUnknownCommand = errors.New("no such command")

// ErrCommandPending is returned when an actor issues a new command while one
// of its commands is still suspended waiting for input.
var ErrCommandPending = errors.New("a command is already awaiting input")

// ErrCommandAbandoned is returned from Context.Input when the suspended
// command was abandoned, usually because its actor was removed.
var ErrCommandAbandoned = errors.New("command abandoned")

// A PermissionDeniedError reports that an actor lacks the privilege a command
// requires. The handler is never run in this case.
type PermissionDeniedError struct {
	Actor    string
	Verb     string
	Required Privilege
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("%s may not use %q, privilege %q required",
		e.Actor, e.Verb, e.Required)
}

// A RefusalError carries a message a handler wants shown to the actor. It
// marks a deliberate rejection, not a system fault.
type RefusalError struct {
	Message string
}

func (e *RefusalError) Error() string {
	return e.Message
}

// Refuse builds a RefusalError with a formatted message.
func Refuse(format string, args ...any) *RefusalError {
	return &RefusalError{Message: fmt.Sprintf(format, args...)}
}

// A HandlerFailureError wraps an unexpected error or recovered panic from a
// deferred action, heartbeat, or command handler. Failures of this class are
// isolated to the actor they belong to and never stop the driver loop.
type HandlerFailureError struct {
	Origin string // name of the actor or owner the work belonged to
	Kind   string // "deferred", "heartbeat", or "command"
	Label  string
	Err    error
}

func (e *HandlerFailureError) Error() string {
	return fmt.Sprintf("%s %q of %s failed: %v", e.Kind, e.Label, e.Origin, e.Err)
}

func (e *HandlerFailureError) Unwrap() error {
	return e.Err
}

// An InvariantError reports corruption of the scheduling state, such as the
// deferred queue draining out of order. It is the only error class that stops
// the driver loop.
type InvariantError struct {
	Detail string
}

func (e *InvariantError) Error() string {
	return "scheduler invariant violated: " + e.Detail
}

func invariantf(format string, args ...any) *InvariantError {
	return &InvariantError{Detail: fmt.Sprintf(format, args...)}
}

// IsUserFacing reports whether err should be surfaced to the actor as a
// message rather than logged as a fault.
func IsUserFacing(err error) bool {
	var refusal *RefusalError
	var denied *PermissionDeniedError

	return errors.As(err, &refusal) ||
		errors.As(err, &denied) ||
		errors.Is(err, ErrUnknownCommand) ||
		errors.Is(err, ErrCommandPending)
}
