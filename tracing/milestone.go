package tracing

import "time"

// MilestoneKind classifies what an action is blocked on.
type MilestoneKind string

// Milestone kinds produced by the driver bridge.
const (
	// MilestoneKindInput marks a command waiting for an actor's answer.
	MilestoneKindInput MilestoneKind = "input"

	// MilestoneKindTimer marks work waiting for a scheduled due time.
	MilestoneKindTimer MilestoneKind = "timer"
)

// Milestone represents a point in time where an action is blocked
type Milestone struct {
	ID       string        `json:"id"`
	ActionID string        `json:"action_id"`
	Kind     MilestoneKind `json:"kind"`
	What     string        `json:"what"`
	Location string        `json:"location"`
	Time     time.Time     `json:"time"`
}
