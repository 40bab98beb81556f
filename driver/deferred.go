package driver

import (
	"container/heap"
	"sort"
	"sync"
	"time"
)

// A DeferredFunc is the callback of a scheduled deferred action. It receives
// the in-world time at which the action fires.
type DeferredFunc func(now time.Time) error

// A Deferred is a one-shot action scheduled to fire once its due time is
// reached. It is consumed exactly once by a drain and then discarded.
type Deferred struct {
	ID    string
	Due   time.Time
	Owner Actor // may be nil for driver-owned work
	Label string

	fn    DeferredFunc
	index int // position in the heap, -1 once popped or cancelled
}

// Call runs the deferred action.
func (d *Deferred) Call(now time.Time) error {
	return d.fn(now)
}

// OwnerName returns the owner's name, or "driver" for ownerless work.
func (d *Deferred) OwnerName() string {
	if d.Owner == nil {
		return "driver"
	}

	return d.Owner.Name()
}

// DeferredInfo is a diagnostic snapshot of one pending deferred action.
type DeferredInfo struct {
	ID    string    `json:"id"`
	Due   time.Time `json:"due"`
	Owner string    `json:"owner"`
	Label string    `json:"label"`
}

// A DeferredHandle can cancel a scheduled action before it fires.
type DeferredHandle struct {
	queue    *DeferredQueue
	deferred *Deferred
}

// Cancel removes the action from the queue if it is still pending. It
// reports whether the action was removed; cancelling after the action fired
// is a no-op, not an error.
func (h *DeferredHandle) Cancel() bool {
	return h.queue.cancel(h.deferred)
}

// ID returns the scheduled action's ID.
func (h *DeferredHandle) ID() string {
	return h.deferred.ID
}

// A DeferredQueue orders one-shot actions by due time. Entries with an equal
// due time drain in heap order; no further tie-break is guaranteed.
type DeferredQueue struct {
	sync.Mutex
	items deferredHeap
}

// NewDeferredQueue creates an empty DeferredQueue.
func NewDeferredQueue() *DeferredQueue {
	q := new(DeferredQueue)
	q.items = make(deferredHeap, 0)
	heap.Init(&q.items)
	return q
}

// Schedule inserts an action due at the given time and returns a handle that
// can cancel it. A due time in the past is accepted; the action fires on the
// very next drain.
func (q *DeferredQueue) Schedule(
	due time.Time,
	owner Actor,
	label string,
	fn DeferredFunc,
) *DeferredHandle {
	d := &Deferred{
		ID:    GetIDGenerator().Generate(),
		Due:   due,
		Owner: owner,
		Label: label,
		fn:    fn,
	}

	q.Lock()
	heap.Push(&q.items, d)
	q.Unlock()

	return &DeferredHandle{queue: q, deferred: d}
}

// DrainDue removes and returns every action with a due time at or before
// now, in ascending due order. This is the only way entries leave the queue
// other than cancellation.
func (q *DeferredQueue) DrainDue(now time.Time) []*Deferred {
	var due []*Deferred

	q.Lock()
	for q.items.Len() > 0 && !q.items[0].Due.After(now) {
		due = append(due, heap.Pop(&q.items).(*Deferred))
	}
	q.Unlock()

	return due
}

// CancelOwned removes every pending action belonging to owner and returns
// how many were removed. It is used when an actor is destroyed.
func (q *DeferredQueue) CancelOwned(owner Actor) int {
	q.Lock()
	defer q.Unlock()

	var owned []*Deferred
	for _, d := range q.items {
		if d.Owner == owner {
			owned = append(owned, d)
		}
	}

	for _, d := range owned {
		heap.Remove(&q.items, d.index)
		d.index = -1
	}

	return len(owned)
}

// Len returns the number of pending actions.
func (q *DeferredQueue) Len() int {
	q.Lock()
	l := q.items.Len()
	q.Unlock()
	return l
}

// Pending returns a snapshot of all pending actions sorted by due time.
func (q *DeferredQueue) Pending() []DeferredInfo {
	q.Lock()
	infos := make([]DeferredInfo, 0, q.items.Len())
	for _, d := range q.items {
		infos = append(infos, DeferredInfo{
			ID:    d.ID,
			Due:   d.Due,
			Owner: d.OwnerName(),
			Label: d.Label,
		})
	}
	q.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Due.Before(infos[j].Due)
	})

	return infos
}

func (q *DeferredQueue) cancel(d *Deferred) bool {
	q.Lock()
	defer q.Unlock()

	if d.index < 0 {
		return false
	}

	heap.Remove(&q.items, d.index)
	d.index = -1

	return true
}

type deferredHeap []*Deferred

// Len returns the number of actions in the heap.
func (h deferredHeap) Len() int {
	return len(h)
}

// Less orders actions by due time only. Secondary fields intentionally do
// not participate in the order.
func (h deferredHeap) Less(i, j int) bool {
	return h[i].Due.Before(h[j].Due)
}

// Swap changes the position of two actions in the heap.
func (h deferredHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

// Push adds an action to the heap.
func (h *deferredHeap) Push(x interface{}) {
	d := x.(*Deferred)
	d.index = len(*h)
	*h = append(*h, d)
}

// Pop removes and returns the next action to fire.
func (h *deferredHeap) Pop() interface{} {
	old := *h
	n := len(old)
	d := old[n-1]
	old[n-1] = nil
	d.index = -1
	*h = old[0 : n-1]
	return d
}
