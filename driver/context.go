package driver

import (
	"fmt"
	"strings"
	"time"
)

// An InputValidator converts a raw reply line into a typed value, or rejects
// it. Rejected replies make the executor prompt the actor again without
// resuming the suspended handler.
type InputValidator func(reply string) (any, error)

// An InputRequest is the question a suspended command is waiting on.
type InputRequest struct {
	Prompt    string
	Validator InputValidator
}

// A Context carries what a command handler may use while it runs: the clock,
// the driver for scheduling follow-up work, and the suspension protocol.
type Context struct {
	driver *Driver
	clock  *GameClock
	actor  Actor

	yield chan InputRequest
	reply chan any
	abort chan struct{}
}

// Actor returns the actor the command runs for.
func (c *Context) Actor() Actor {
	return c.actor
}

// Clock returns the game clock. It may be nil when the executor runs outside
// a driver.
func (c *Context) Clock() *GameClock {
	return c.clock
}

// Driver returns the driver servicing the command. It may be nil when the
// executor runs outside a driver.
func (c *Context) Driver() *Driver {
	return c.driver
}

// Input suspends the command until the actor's next input line arrives. The
// actor is shown the prompt, the reply is checked by the validator, and the
// validated value is returned here, at the suspension point. A handler that
// calls Input once and receives value v behaves exactly as if v had been
// passed to it directly.
//
// Input returns ErrCommandAbandoned when the suspension is abandoned, for
// example because the actor was removed. The handler should return promptly
// in that case.
func (c *Context) Input(prompt string, validator InputValidator) (any, error) {
	req := InputRequest{Prompt: prompt, Validator: validator}

	select {
	case c.yield <- req:
	case <-c.abort:
		return nil, ErrCommandAbandoned
	}

	select {
	case v := <-c.reply:
		return v, nil
	case <-c.abort:
		return nil, ErrCommandAbandoned
	}
}

// Confirm asks a yes/no question and suspends until it is answered.
func (c *Context) Confirm(prompt string) (bool, error) {
	v, err := c.Input(prompt, YesNo)
	if err != nil {
		return false, err
	}

	return v.(bool), nil
}

func newContext(d *Driver, clock *GameClock, actor Actor) *Context {
	return &Context{
		driver: d,
		clock:  clock,
		actor:  actor,
		yield:  make(chan InputRequest),
		reply:  make(chan any),
		abort:  make(chan struct{}),
	}
}

// YesNo validates a yes/no reply and converts it to a bool.
func YesNo(reply string) (any, error) {
	switch strings.ToLower(strings.TrimSpace(reply)) {
	case "y", "yes", "yep", "sure":
		return true, nil
	case "n", "no", "nope":
		return false, nil
	}

	return nil, fmt.Errorf("%w: please answer yes or no", ErrInvalidArgument)
}

// Choice returns a validator that accepts only one of the given options,
// matched case-insensitively, and converts the reply to the matching option.
func Choice(options ...string) InputValidator {
	return func(reply string) (any, error) {
		trimmed := strings.TrimSpace(reply)
		for _, opt := range options {
			if strings.EqualFold(trimmed, opt) {
				return opt, nil
			}
		}

		return nil, fmt.Errorf("%w: please answer one of: %s",
			ErrInvalidArgument, strings.Join(options, ", "))
	}
}

// Duration validates a reply as a Go duration string, such as "90s" or
// "2m30s".
func Duration(reply string) (any, error) {
	d, err := time.ParseDuration(strings.TrimSpace(reply))
	if err != nil {
		return nil, fmt.Errorf("%w: please give a duration such as 90s",
			ErrInvalidArgument)
	}

	return d, nil
}
