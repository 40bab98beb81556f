package tracing

import (
	"sync"
	"time"

	"github.com/tebeka/atexit"

	"github.com/shawnantonucci/Tale/datarecording"
	"github.com/shawnantonucci/Tale/driver"
)

type actionTableEntry struct {
	ID        string
	ParentID  string
	Kind      string
	What      string
	Location  string
	StartTime float64
	EndTime   float64
}

type milestoneTableEntry struct {
	ID       string
	ActionID string
	Kind     string
	What     string
	Location string
	Time     float64
}

// DBTracer is a tracer that stores actions into a database. DBTracers can
// connect with different backends so that the actions can be stored in
// different types of databases.
type DBTracer struct {
	mu         sync.Mutex
	timeTeller driver.TimeTeller
	backend    datarecording.DataRecorder

	startTime, endTime time.Time

	tracingActions map[string]Action
}

// NewDBTracer creates a new DBTracer.
func NewDBTracer(
	timeTeller driver.TimeTeller,
	dataRecorder datarecording.DataRecorder,
) *DBTracer {
	dataRecorder.CreateTable("trace", actionTableEntry{})
	dataRecorder.CreateTable("trace_milestones", milestoneTableEntry{})

	t := &DBTracer{
		timeTeller:     timeTeller,
		backend:        dataRecorder,
		tracingActions: make(map[string]Action),
	}

	atexit.Register(func() {
		t.Terminate()
	})

	return t
}

// SetTimeRange sets the time range of the tracer. Actions that start after
// the end of the range or end before its start are dropped.
func (t *DBTracer) SetTimeRange(startTime, endTime time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startTime = startTime
	t.endTime = endTime
}

// StartAction marks the start of an action.
func (t *DBTracer) StartAction(action Action) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startingActionMustBeValid(action)

	action.StartTime = t.timeTeller.Now()
	if !t.endTime.IsZero() && action.StartTime.After(t.endTime) {
		return
	}

	t.tracingActions[action.ID] = action
}

func (t *DBTracer) startingActionMustBeValid(action Action) {
	if action.ID == "" {
		panic("action ID must be set")
	}

	if action.Kind == "" {
		panic("action kind must be set")
	}

	if action.What == "" {
		panic("action what must be set")
	}

	if action.Location == "" {
		panic("action location must be set")
	}
}

// StepAction marks a step of an action.
func (t *DBTracer) StepAction(_ Action) {
	// Do nothing for now.
}

// AddMilestone attaches a milestone to an in-flight action. Only the first
// milestone at a given time is kept for each action.
func (t *DBTracer) AddMilestone(milestone Milestone) {
	t.mu.Lock()
	defer t.mu.Unlock()

	milestone.Time = t.timeTeller.Now()

	action := t.tracingActions[milestone.ActionID]
	if action.ID == "" {
		action.ID = milestone.ActionID
	}

	for _, m := range action.Milestones {
		if m.Time.Equal(milestone.Time) {
			return
		}
	}

	action.Milestones = append(action.Milestones, milestone)
	t.tracingActions[milestone.ActionID] = action
}

// EndAction marks the end of an action and writes it to the database.
func (t *DBTracer) EndAction(action Action) {
	t.mu.Lock()
	defer t.mu.Unlock()

	action.EndTime = t.timeTeller.Now()

	if !t.startTime.IsZero() && action.EndTime.Before(t.startTime) {
		delete(t.tracingActions, action.ID)
		return
	}

	originalAction, ok := t.tracingActions[action.ID]
	if !ok {
		return
	}

	originalAction.EndTime = action.EndTime
	t.writeAction(originalAction)

	delete(t.tracingActions, action.ID)
}

func (t *DBTracer) writeAction(action Action) {
	entry := actionTableEntry{
		ID:        action.ID,
		ParentID:  action.ParentID,
		Kind:      action.Kind,
		What:      action.What,
		Location:  action.Location,
		StartTime: timeToSeconds(action.StartTime),
		EndTime:   timeToSeconds(action.EndTime),
	}
	t.backend.InsertData("trace", entry)

	for _, m := range action.Milestones {
		mEntry := milestoneTableEntry{
			ID:       m.ID,
			ActionID: m.ActionID,
			Kind:     string(m.Kind),
			What:     m.What,
			Location: m.Location,
			Time:     timeToSeconds(m.Time),
		}
		t.backend.InsertData("trace_milestones", mEntry)
	}
}

// Terminate terminates the tracer. In-flight actions are discarded.
func (t *DBTracer) Terminate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tracingActions = nil
	t.backend.Flush()
}

func timeToSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
