// Package tracing collects traces of the work a game driver performs. Ticks,
// deferred firings, heartbeat rounds, and command executions become actions
// that tracers can aggregate or store.
package tracing

import "time"

// An ActionStep represents a milestone in the processing of an action
type ActionStep struct {
	Time time.Time `json:"time"`
	What string    `json:"what"`
}

// An Action is one traced unit of game work
type Action struct {
	ID           string       `json:"id"`
	ParentID     string       `json:"parent_id"`
	Kind         string       `json:"kind"`
	What         string       `json:"what"`
	Location     string       `json:"location"`
	StartTime    time.Time    `json:"start_time"`
	EndTime      time.Time    `json:"end_time"`
	Steps        []ActionStep `json:"steps"`
	Milestones   []Milestone  `json:"milestones"`
	Detail       any          `json:"-"`
	ParentAction *Action      `json:"-"`
}

// ActionFilter is a function that can filter interesting actions. If this
// function returns true, the action is considered useful.
type ActionFilter func(a Action) bool
