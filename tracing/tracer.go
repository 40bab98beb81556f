package tracing

// A Tracer can collect action traces
type Tracer interface {
	StartAction(action Action)
	StepAction(action Action)
	EndAction(action Action)
}

// A MilestoneTracer additionally records points where an action blocked.
// Tracers that do not care about blocking need not implement it.
type MilestoneTracer interface {
	AddMilestone(milestone Milestone)
}
