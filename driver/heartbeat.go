package driver

import (
	"fmt"
	"sync"
	"time"
)

// A HeartbeatReceiver gets a callback on every driver tick while registered.
type HeartbeatReceiver interface {
	Heartbeat(now time.Time) error
}

// A HeartbeatRegistry is the set of receivers that want a callback on every
// tick. Membership is a set; callbacks run in registration order.
type HeartbeatRegistry struct {
	sync.Mutex
	members []HeartbeatReceiver
	present map[HeartbeatReceiver]bool
}

// NewHeartbeatRegistry creates an empty HeartbeatRegistry.
func NewHeartbeatRegistry() *HeartbeatRegistry {
	r := new(HeartbeatRegistry)
	r.present = make(map[HeartbeatReceiver]bool)
	return r
}

// Register adds a receiver. Registering a member again is a no-op.
func (r *HeartbeatRegistry) Register(m HeartbeatReceiver) {
	r.Lock()
	defer r.Unlock()

	if r.present[m] {
		return
	}

	r.members = append(r.members, m)
	r.present[m] = true
}

// Unregister removes a receiver. Removing a non-member is a no-op.
func (r *HeartbeatRegistry) Unregister(m HeartbeatReceiver) {
	r.Lock()
	defer r.Unlock()

	if !r.present[m] {
		return
	}

	delete(r.present, m)
	for i, member := range r.members {
		if member == m {
			r.members = append(r.members[:i], r.members[i+1:]...)
			break
		}
	}
}

// Len returns the number of registered receivers.
func (r *HeartbeatRegistry) Len() int {
	r.Lock()
	defer r.Unlock()

	return len(r.members)
}

// Members returns a snapshot of the receivers in registration order.
func (r *HeartbeatRegistry) Members() []HeartbeatReceiver {
	r.Lock()
	defer r.Unlock()

	snapshot := make([]HeartbeatReceiver, len(r.members))
	copy(snapshot, r.members)

	return snapshot
}

// Names returns the names of registered receivers, in registration order.
// Receivers that are not Named are listed by their heartbeat order.
func (r *HeartbeatRegistry) Names() []string {
	members := r.Members()

	names := make([]string, 0, len(members))
	for i, m := range members {
		names = append(names, heartbeatName(m, i))
	}

	return names
}

// Tick invokes every current member's callback, in registration order. A
// failing member never prevents later members from running; failures are
// collected and returned. Callbacks may register or unregister members; the
// changes take effect on the next tick.
func (r *HeartbeatRegistry) Tick(now time.Time) []*HandlerFailureError {
	var failures []*HandlerFailureError

	for i, m := range r.Members() {
		err := safeHeartbeat(m, now)
		if err != nil {
			failures = append(failures, &HandlerFailureError{
				Origin: heartbeatName(m, i),
				Kind:   "heartbeat",
				Label:  "heartbeat",
				Err:    err,
			})
		}
	}

	return failures
}

func safeHeartbeat(m HeartbeatReceiver, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return m.Heartbeat(now)
}

func heartbeatName(m HeartbeatReceiver, i int) string {
	if named, ok := m.(Named); ok {
		return named.Name()
	}

	return fmt.Sprintf("heartbeat-%d", i)
}

// A PeriodicCall repeats a callback at a jittered real-time interval. Each
// firing re-schedules the next occurrence with a fresh interval drawn
// uniformly from [min, max], so occurrences never pile up and never align
// across actors.
type PeriodicCall struct {
	mu      sync.Mutex
	driver  *Driver
	owner   Actor
	label   string
	min     time.Duration
	max     time.Duration
	fn      DeferredFunc
	handle  *DeferredHandle
	stopped bool
}

// Stop cancels the pending occurrence and prevents any re-scheduling.
// Stopping an already stopped call is a no-op.
func (p *PeriodicCall) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}

	p.stopped = true
	if p.handle != nil {
		p.handle.Cancel()
	}
}

// Stopped reports whether the periodic call has been stopped.
func (p *PeriodicCall) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stopped
}

func (p *PeriodicCall) fire(now time.Time) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	// Re-schedule even when the callback fails, so one bad occurrence does
	// not silently end the series.
	defer p.schedule()

	return p.fn(now)
}

func (p *PeriodicCall) schedule() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}

	interval := p.driver.randDuration(p.min, p.max)
	p.handle, _ = p.driver.DeferReal(interval, p.owner, p.label, p.fire)
}
