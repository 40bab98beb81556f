package tracing

import (
	"sync"
)

// StepCountTracer counts how often steps with certain names are reached.
type StepCountTracer struct {
	filter              ActionFilter
	lock                sync.Mutex
	inflightActions     map[string]Action
	stepNames           []string
	stepCount           map[string]uint64
	actionWithStepCount map[string]uint64
}

// NewStepCountTracer creates a new StepCountTracer
func NewStepCountTracer(filter ActionFilter) *StepCountTracer {
	t := &StepCountTracer{
		filter:              filter,
		inflightActions:     make(map[string]Action),
		stepCount:           make(map[string]uint64),
		actionWithStepCount: make(map[string]uint64),
	}
	return t
}

// GetStepNames returns all the step names collected.
func (t *StepCountTracer) GetStepNames() []string {
	return t.stepNames
}

// GetStepCount returns the number of steps that is recorded with a certain
// step name.
func (t *StepCountTracer) GetStepCount(stepName string) uint64 {
	return t.stepCount[stepName]
}

// GetActionCount returns the number of actions that is recorded to have a
// certain step with a given name.
func (t *StepCountTracer) GetActionCount(stepName string) uint64 {
	return t.actionWithStepCount[stepName]
}

// StartAction starts tracking an action that passes the filter
func (t *StepCountTracer) StartAction(action Action) {
	if !t.filter(action) {
		return
	}

	t.lock.Lock()
	t.inflightActions[action.ID] = action
	t.lock.Unlock()
}

// StepAction counts the step
func (t *StepCountTracer) StepAction(action Action) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.countStep(action)
	t.countAction(action)
}

func (t *StepCountTracer) countStep(action Action) {
	step := action.Steps[0]
	_, ok := t.stepCount[step.What]
	if !ok {
		t.stepNames = append(t.stepNames, step.What)
	}
	t.stepCount[step.What]++
}

func (t *StepCountTracer) countAction(action Action) {
	step := action.Steps[0]

	originalAction, ok := t.inflightActions[action.ID]
	if !ok {
		return
	}

	if !actionContainsStep(originalAction, step) {
		t.actionWithStepCount[step.What]++
	}

	originalAction.Steps = append(originalAction.Steps, step)
	t.inflightActions[action.ID] = originalAction
}

func actionContainsStep(action Action, step ActionStep) bool {
	for _, s := range action.Steps {
		if s.What == step.What {
			return true
		}
	}

	return false
}

// EndAction stops tracking the action
func (t *StepCountTracer) EndAction(action Action) {
	t.lock.Lock()
	_, ok := t.inflightActions[action.ID]
	if !ok {
		t.lock.Unlock()
		return
	}

	delete(t.inflightActions, action.ID)
	t.lock.Unlock()
}
