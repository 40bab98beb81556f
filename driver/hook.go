package driver

// HookPos marks a point in the driver loop where hooks fire.
type HookPos struct {
	Name string
}

// Hook positions invoked by the driver loop. Before/After pairs bracket the
// phase named; Item and Detail of the HookCtx identify the work.
var (
	HookPosBeforeTick       = &HookPos{Name: "BeforeTick"}
	HookPosAfterTick        = &HookPos{Name: "AfterTick"}
	HookPosBeforeDeferred   = &HookPos{Name: "BeforeDeferred"}
	HookPosAfterDeferred    = &HookPos{Name: "AfterDeferred"}
	HookPosBeforeHeartbeats = &HookPos{Name: "BeforeHeartbeats"}
	HookPosAfterHeartbeats  = &HookPos{Name: "AfterHeartbeats"}
	HookPosBeforeCommand    = &HookPos{Name: "BeforeCommand"}
	HookPosAfterCommand     = &HookPos{Name: "AfterCommand"}
	HookPosCommandSuspended = &HookPos{Name: "CommandSuspended"}
	HookPosCommandResumed   = &HookPos{Name: "CommandResumed"}
	HookPosFailure          = &HookPos{Name: "Failure"}
)

// HookCtx holds all the information about the site that a hook is triggered.
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Item   any
	Detail any
}

// A Hook is a short piece of program that can be invoked by a hookable
// object.
type Hook interface {
	// Func determines what to do if hook is invoked.
	Func(ctx HookCtx)
}

// Hookable defines an object that accepts Hooks.
type Hookable interface {
	// AcceptHook registers a hook
	AcceptHook(hook Hook)

	// NumHooks returns the number of hooks registered
	NumHooks() int
}

// A HookableBase provides the hook registry for types that implement the
// Hookable interface.
type HookableBase struct {
	Hooks []Hook
}

// NewHookableBase creates a HookableBase object.
func NewHookableBase() *HookableBase {
	h := new(HookableBase)
	h.Hooks = make([]Hook, 0)
	return h
}

// AcceptHook registers a hook.
func (h *HookableBase) AcceptHook(hook Hook) {
	h.Hooks = append(h.Hooks, hook)
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	return len(h.Hooks)
}

// InvokeHook triggers the registered Hooks.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.Hooks {
		hook.Func(ctx)
	}
}
