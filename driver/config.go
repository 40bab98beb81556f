package driver

import (
	"log"
	"time"
)

// TickMethod selects what drives the ticks of the driver loop.
type TickMethod int

const (
	// TickMethodTimer ticks on a wall-clock timer, the mode for a
	// continuously running multi-player world.
	TickMethodTimer TickMethod = iota

	// TickMethodCommand ticks once per submitted input line, the
	// traditional mode for single-player interactive fiction. The in-world
	// clock still advances by TickInterval per tick.
	TickMethodCommand
)

func (m TickMethod) String() string {
	switch m {
	case TickMethodTimer:
		return "timer"
	case TickMethodCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Config carries the scheduling parameters of a driver.
type Config struct {
	// Epoch is the in-world time the clock starts at. The zero value means
	// the real current time.
	Epoch time.Time

	// Scale is the number of game seconds that pass per real second. It
	// must not be negative. Zero freezes the in-world clock.
	Scale float64

	// TickInterval is the real-time duration of one tick. It must be
	// positive.
	TickInterval time.Duration

	// TickMethod selects timer-driven or command-driven ticks.
	TickMethod TickMethod

	// RandSeed seeds the jitter source for periodic calls. Zero means seed
	// from the current time.
	RandSeed int64
}

// DefaultConfig returns a config with one game second per real second and a
// one-second timer tick.
func DefaultConfig() Config {
	return Config{
		Scale:        1,
		TickInterval: time.Second,
		TickMethod:   TickMethodTimer,
	}
}

func (c Config) mustBeValid() {
	if c.Scale < 0 {
		log.Panicf("driver config: scale must not be negative, got %f",
			c.Scale)
	}

	if c.TickInterval <= 0 {
		log.Panicf("driver config: tick interval must be positive, got %v",
			c.TickInterval)
	}

	if c.TickMethod != TickMethodTimer && c.TickMethod != TickMethodCommand {
		log.Panicf("driver config: unknown tick method %d", c.TickMethod)
	}
}
