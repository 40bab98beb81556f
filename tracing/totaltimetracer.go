package tracing

import (
	"sync"
	"time"

	"github.com/shawnantonucci/Tale/driver"
)

// TotalTimeTracer can collect the total time of executing a certain type of
// action. If the execution of two actions overlaps, this tracer will simply
// add the two processing times together.
type TotalTimeTracer struct {
	timeTeller      driver.TimeTeller
	filter          ActionFilter
	lock            sync.Mutex
	totalTime       time.Duration
	inflightActions map[string]Action
}

// NewTotalTimeTracer creates a new TotalTimeTracer
func NewTotalTimeTracer(
	timeTeller driver.TimeTeller,
	filter ActionFilter,
) *TotalTimeTracer {
	t := &TotalTimeTracer{
		timeTeller:      timeTeller,
		filter:          filter,
		inflightActions: make(map[string]Action),
	}
	return t
}

// TotalTime returns the total time that has been spent on a certain type of
// actions.
func (t *TotalTimeTracer) TotalTime() time.Duration {
	t.lock.Lock()
	total := t.totalTime
	t.lock.Unlock()
	return total
}

// StartAction records the action start time
func (t *TotalTimeTracer) StartAction(action Action) {
	action.StartTime = t.timeTeller.Now()

	if !t.filter(action) {
		return
	}

	t.lock.Lock()
	t.inflightActions[action.ID] = action
	t.lock.Unlock()
}

// StepAction does nothing
func (t *TotalTimeTracer) StepAction(_ Action) {
	// Do nothing
}

// EndAction records the end of the action
func (t *TotalTimeTracer) EndAction(action Action) {
	action.EndTime = t.timeTeller.Now()

	t.lock.Lock()
	originalAction, ok := t.inflightActions[action.ID]
	if !ok {
		t.lock.Unlock()
		return
	}

	t.totalTime += action.EndTime.Sub(originalAction.StartTime)
	delete(t.inflightActions, action.ID)
	t.lock.Unlock()
}
