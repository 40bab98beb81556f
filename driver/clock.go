package driver

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// A GameClock keeps the current in-world time and converts between real-time
// and game-time durations. The scale factor is the number of game seconds
// that pass per real second and is fixed for the life of the clock; changing
// it would invalidate the due times of already-scheduled work.
//
// Only the driver loop advances the clock. Everyone else reads it.
type GameClock struct {
	mu    sync.RWMutex
	now   time.Time
	scale float64
}

// NewGameClock creates a clock starting at epoch. A scale of 0 freezes the
// clock: it never advances and game-to-real conversions fail.
func NewGameClock(epoch time.Time, scale float64) *GameClock {
	if scale < 0 {
		log.Panicf("game clock scale must not be negative, got %f", scale)
	}

	return &GameClock{now: epoch, scale: scale}
}

// Now returns the current in-world time.
func (c *GameClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.now
}

// Scale returns the number of game seconds per real second.
func (c *GameClock) Scale() float64 {
	return c.scale
}

// AdvanceRealtime moves the clock forward by a real-time duration, scaled
// into game time. A negative delta is rejected.
func (c *GameClock) AdvanceRealtime(delta time.Duration) error {
	if delta < 0 {
		return fmt.Errorf("%w: negative real-time advance %v",
			ErrInvalidArgument, delta)
	}

	c.mu.Lock()
	c.now = c.now.Add(c.scaleToGame(delta))
	c.mu.Unlock()

	return nil
}

// AdvanceGametime moves the clock forward by an in-world duration directly,
// without scaling. A negative delta is rejected.
func (c *GameClock) AdvanceGametime(delta time.Duration) error {
	if delta < 0 {
		return fmt.Errorf("%w: negative game-time advance %v",
			ErrInvalidArgument, delta)
	}

	c.mu.Lock()
	c.now = c.now.Add(delta)
	c.mu.Unlock()

	return nil
}

// ToGametime converts a real-time duration into the game-time duration that
// passes in the same interval.
func (c *GameClock) ToGametime(delta time.Duration) time.Duration {
	return c.scaleToGame(delta)
}

// ToRealtime converts a game-time duration into the real-time duration it
// takes to pass. It fails on a frozen clock, where no amount of real time
// moves the game clock.
func (c *GameClock) ToRealtime(delta time.Duration) (time.Duration, error) {
	if c.scale == 0 {
		return 0, ErrFrozenClock
	}

	return time.Duration(float64(delta) / c.scale), nil
}

// PlusRealtime returns the in-world time after a real-time duration passes,
// without moving the clock. Deferred due times are computed this way.
func (c *GameClock) PlusRealtime(delta time.Duration) time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.now.Add(c.scaleToGame(delta))
}

func (c *GameClock) scaleToGame(delta time.Duration) time.Duration {
	return time.Duration(float64(delta) * c.scale)
}

// A TimeTeller can tell the current in-world time.
type TimeTeller interface {
	Now() time.Time
}
