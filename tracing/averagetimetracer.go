package tracing

import (
	"sync"
	"time"

	"github.com/shawnantonucci/Tale/driver"
)

// AverageTimeTracer can collect the average time of executing a certain type
// of action.
type AverageTimeTracer struct {
	timeTeller      driver.TimeTeller
	filter          ActionFilter
	lock            sync.Mutex
	averageTime     time.Duration
	inflightActions map[string]Action
	actionCount     uint64
}

// NewAverageTimeTracer creates a new AverageTimeTracer
func NewAverageTimeTracer(
	timeTeller driver.TimeTeller,
	filter ActionFilter,
) *AverageTimeTracer {
	t := &AverageTimeTracer{
		timeTeller:      timeTeller,
		filter:          filter,
		inflightActions: make(map[string]Action),
	}
	return t
}

// AverageTime returns the average time that has been spent on a certain type
// of actions.
func (t *AverageTimeTracer) AverageTime() time.Duration {
	t.lock.Lock()
	avg := t.averageTime
	t.lock.Unlock()
	return avg
}

// TotalCount returns the total number of actions.
func (t *AverageTimeTracer) TotalCount() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.actionCount
}

// StartAction records the action start time
func (t *AverageTimeTracer) StartAction(action Action) {
	action.StartTime = t.timeTeller.Now()

	if !t.filter(action) {
		return
	}

	t.lock.Lock()
	t.inflightActions[action.ID] = action
	t.lock.Unlock()
}

// StepAction does nothing
func (t *AverageTimeTracer) StepAction(_ Action) {
	// Do nothing
}

// EndAction records the end of the action
func (t *AverageTimeTracer) EndAction(action Action) {
	action.EndTime = t.timeTeller.Now()

	t.lock.Lock()
	originalAction, ok := t.inflightActions[action.ID]
	if !ok {
		t.lock.Unlock()
		return
	}

	actionTime := action.EndTime.Sub(originalAction.StartTime)
	t.averageTime = time.Duration(
		(float64(t.averageTime)*float64(t.actionCount) + float64(actionTime)) /
			float64(t.actionCount+1))
	delete(t.inflightActions, action.ID)
	t.actionCount++
	t.lock.Unlock()
}
