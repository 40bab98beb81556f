package tracing

import (
	"github.com/shawnantonucci/Tale/driver"
)

// NamedHookable represent something both have a name and can be hooked
type NamedHookable interface {
	Name() string
	driver.Hookable
	InvokeHook(driver.HookCtx)
}

// A list of hook poses for the hooks to apply to
var (
	HookPosActionStart = &driver.HookPos{Name: "HookPosActionStart"}
	HookPosActionStep  = &driver.HookPos{Name: "HookPosActionStep"}
	HookPosActionEnd   = &driver.HookPos{Name: "HookPosActionEnd"}
)

// StartAction notifies the hooks that hook to the domain about the start of
// an action.
func StartAction(
	id string,
	parentID string,
	domain NamedHookable,
	kind string,
	what string,
	detail any,
) {
	StartActionWithSpecificLocation(
		id,
		parentID,
		domain,
		kind,
		what,
		domain.Name(),
		detail,
	)
}

// StartActionWithSpecificLocation notifies the hooks that hook to the domain
// about the start of an action, and is able to customize the location field
// of the action. Useful when a domain performs work on behalf of a named
// place, such as a room or an actor.
func StartActionWithSpecificLocation(
	id string,
	parentID string,
	domain NamedHookable,
	kind string,
	what string,
	location string,
	detail any,
) {
	if domain.NumHooks() == 0 {
		return
	}

	allRequiredFieldsMustBeNotEmpty(id, domain, kind, what)
	domainMustHaveName(domain)

	action := Action{
		ID:       id,
		ParentID: parentID,
		Kind:     kind,
		What:     what,
		Location: location,
		Detail:   detail,
	}
	ctx := driver.HookCtx{
		Domain: domain,
		Item:   action,
		Pos:    HookPosActionStart,
	}
	domain.InvokeHook(ctx)
}

func allRequiredFieldsMustBeNotEmpty(
	id string,
	domain NamedHookable,
	kind string,
	what string,
) {
	if id == "" {
		panic("id must not be empty")
	}

	if domain == nil {
		panic("domain must not be nil")
	}

	if kind == "" {
		panic("kind must not be empty")
	}

	if what == "" {
		panic("what must not be empty")
	}
}

func domainMustHaveName(domain NamedHookable) {
	if domain.Name() == "" {
		panic("domain must have a name")
	}
}

// AddActionStep marks intermediate progress on an action that has started
// but not yet ended.
func AddActionStep(
	id string,
	domain NamedHookable,
	what string,
) {
	if domain.NumHooks() == 0 {
		return
	}

	step := ActionStep{
		What: what,
	}
	action := Action{
		ID:    id,
		Steps: []ActionStep{step},
	}
	ctx := driver.HookCtx{
		Domain: domain,
		Item:   action,
		Pos:    HookPosActionStep,
	}
	domain.InvokeHook(ctx)
}

// EndAction notifies the hooks about the end of an action.
func EndAction(
	id string,
	domain NamedHookable,
) {
	if domain.NumHooks() == 0 {
		return
	}

	action := Action{
		ID: id,
	}
	ctx := driver.HookCtx{
		Domain: domain,
		Item:   action,
		Pos:    HookPosActionEnd,
	}
	domain.InvokeHook(ctx)
}
