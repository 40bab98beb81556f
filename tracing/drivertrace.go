package tracing

import (
	"strconv"

	"github.com/shawnantonucci/Tale/driver"
)

// TraceDriver attaches a hook to the driver that turns loop activity into
// actions: each tick becomes an action, and deferred firings, heartbeat
// rounds, and command executions become its children. A command that
// suspends on a question stays open until its final answer arrives, possibly
// many ticks later.
func TraceDriver(d *driver.Driver, tracer Tracer) {
	h := &driverTraceHook{
		tracer:       tracer,
		domain:       d,
		openCommands: make(map[string]string),
	}
	d.AcceptHook(h)
}

type driverTraceHook struct {
	tracer Tracer
	domain *driver.Driver

	tickID       string
	heartbeatID  string
	openCommands map[string]string // actor name -> open command action ID
}

func (h *driverTraceHook) Func(ctx driver.HookCtx) {
	switch ctx.Pos {
	case driver.HookPosBeforeTick:
		h.startTick(ctx.Item.(uint64))
	case driver.HookPosAfterTick:
		h.tracer.EndAction(Action{ID: h.tickID})
	case driver.HookPosBeforeDeferred:
		h.startDeferred(ctx.Item.(*driver.Deferred))
	case driver.HookPosAfterDeferred:
		h.tracer.EndAction(Action{ID: deferredActionID(ctx.Item.(*driver.Deferred))})
	case driver.HookPosBeforeHeartbeats:
		h.startHeartbeats()
	case driver.HookPosAfterHeartbeats:
		h.tracer.EndAction(Action{ID: h.heartbeatID})
	case driver.HookPosBeforeCommand:
		h.startCommand(ctx.Item.(driver.ParsedCommand), ctx.Detail.(driver.Actor))
	case driver.HookPosCommandSuspended:
		h.commandSuspended(ctx.Item.(driver.Actor), ctx.Detail.(driver.InputRequest))
	case driver.HookPosCommandResumed:
		h.commandResumed(ctx.Item.(driver.Actor))
	case driver.HookPosAfterCommand:
		h.endCommand(ctx.Item.(driver.Actor))
	}
}

func (h *driverTraceHook) startTick(count uint64) {
	h.tickID = "tick-" + strconv.FormatUint(count, 10)

	h.tracer.StartAction(Action{
		ID:       h.tickID,
		Kind:     "tick",
		What:     "tick " + strconv.FormatUint(count, 10),
		Location: h.domain.Name(),
	})
}

func deferredActionID(def *driver.Deferred) string {
	return "deferred-" + def.ID
}

func (h *driverTraceHook) startDeferred(def *driver.Deferred) {
	what := def.Label
	if what == "" {
		what = "anonymous"
	}

	h.tracer.StartAction(Action{
		ID:       deferredActionID(def),
		ParentID: h.tickID,
		Kind:     "deferred",
		What:     what,
		Location: def.OwnerName(),
	})
}

func (h *driverTraceHook) startHeartbeats() {
	h.heartbeatID = h.tickID + "-heartbeats"

	h.tracer.StartAction(Action{
		ID:       h.heartbeatID,
		ParentID: h.tickID,
		Kind:     "heartbeat",
		What:     "heartbeat round",
		Location: h.domain.Name(),
	})
}

func (h *driverTraceHook) startCommand(
	cmd driver.ParsedCommand,
	actor driver.Actor,
) {
	id := h.tickID + "-cmd-" + actor.Name()
	h.openCommands[actor.Name()] = id

	h.tracer.StartAction(Action{
		ID:       id,
		ParentID: h.tickID,
		Kind:     "command",
		What:     cmd.Verb,
		Location: actor.Name(),
		Detail:   cmd,
	})
}

func (h *driverTraceHook) commandSuspended(
	actor driver.Actor,
	req driver.InputRequest,
) {
	id, ok := h.openCommands[actor.Name()]
	if !ok {
		return
	}

	mt, ok := h.tracer.(MilestoneTracer)
	if !ok {
		return
	}

	mt.AddMilestone(Milestone{
		ID:       "milestone-" + driver.GetIDGenerator().Generate(),
		ActionID: id,
		Kind:     MilestoneKindInput,
		What:     req.Prompt,
		Location: actor.Name(),
	})
}

func (h *driverTraceHook) commandResumed(actor driver.Actor) {
	id, ok := h.openCommands[actor.Name()]
	if !ok {
		return
	}

	h.tracer.StepAction(Action{
		ID:    id,
		Steps: []ActionStep{{What: "resume"}},
	})
}

func (h *driverTraceHook) endCommand(actor driver.Actor) {
	id, ok := h.openCommands[actor.Name()]
	if !ok {
		return
	}

	delete(h.openCommands, actor.Name())
	h.tracer.EndAction(Action{ID: id})
}
