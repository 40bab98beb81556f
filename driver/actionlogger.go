package driver

import (
	"log"
	"time"
)

// A LogHook is a hook that records information from the driver loop.
type LogHook interface {
	Hook
}

// LogHookBase provides the common logic for all LogHooks.
type LogHookBase struct {
	*log.Logger
}

// An ActionLogger is a hook that prints every deferred action, command, and
// failure the driver services.
type ActionLogger struct {
	LogHookBase
}

// NewActionLogger returns an ActionLogger which will write into the logger.
func NewActionLogger(logger *log.Logger) *ActionLogger {
	h := new(ActionLogger)
	h.Logger = logger
	return h
}

// Func writes the action information into the logger.
func (h *ActionLogger) Func(ctx HookCtx) {
	switch ctx.Pos {
	case HookPosBeforeDeferred:
		d, ok := ctx.Item.(*Deferred)
		if !ok {
			return
		}
		h.Printf("%s, deferred %q -> %s",
			stamp(d.Due), d.Label, d.OwnerName())

	case HookPosBeforeCommand:
		cmd, ok := ctx.Item.(ParsedCommand)
		if !ok {
			return
		}
		actor, _ := ctx.Detail.(Actor)
		h.Printf("command %q <- %s", cmd.Verb, actorName(actor))

	case HookPosCommandSuspended:
		actor, _ := ctx.Item.(Actor)
		req, _ := ctx.Detail.(InputRequest)
		h.Printf("command suspended for %s: %q", actorName(actor), req.Prompt)

	case HookPosCommandResumed:
		actor, _ := ctx.Item.(Actor)
		h.Printf("command resumed for %s", actorName(actor))

	case HookPosFailure:
		h.Printf("failure: %v", ctx.Item)
	}
}

func stamp(t time.Time) string {
	return t.Format(time.RFC3339)
}

func actorName(a Actor) string {
	if a == nil {
		return "?"
	}

	return a.Name()
}
