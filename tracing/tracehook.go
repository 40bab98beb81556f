package tracing

import (
	"github.com/shawnantonucci/Tale/driver"
)

// CollectTrace lets the tracer collect traces from a domain
func CollectTrace(domain NamedHookable, tracer Tracer) {
	h := traceHook{t: tracer}
	domain.AcceptHook(&h)
}

// A traceHook is a hook that traces actions
type traceHook struct {
	t Tracer
}

// Func calls the tracer interfaces when the hook is triggered
func (h *traceHook) Func(ctx driver.HookCtx) {
	switch ctx.Pos {
	case HookPosActionStart:
		h.t.StartAction(ctx.Item.(Action))
	case HookPosActionStep:
		h.t.StepAction(ctx.Item.(Action))
	case HookPosActionEnd:
		h.t.EndAction(ctx.Item.(Action))
	}
}
