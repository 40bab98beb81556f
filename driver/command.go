package driver

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// A ParsedCommand is the parser's reading of one submitted input line.
type ParsedCommand struct {
	Verb string
	Args []string
	Line string
}

// A CommandHandler executes one command for one actor. It may return a
// RefusalError to reject the action with a message, or call ctx.Input to
// suspend until the actor answers a question. Handlers must not block on
// anything but ctx.Input.
type CommandHandler func(actor Actor, cmd ParsedCommand, ctx *Context) error

type commandEntry struct {
	verb     string
	required Privilege
	handler  CommandHandler
}

// A CommandRegistry maps verbs to handlers and the privilege each verb
// requires. It is built once at startup and handed to the executor; there is
// no ambient global registry.
type CommandRegistry struct {
	mu      sync.RWMutex
	entries map[string]*commandEntry
}

// NewCommandRegistry creates an empty CommandRegistry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		entries: make(map[string]*commandEntry),
	}
}

// Register binds a verb to a handler. An empty required privilege means the
// verb is open to every actor. Registering the same verb twice is a
// programming error and panics at startup.
func (r *CommandRegistry) Register(
	verb string,
	required Privilege,
	handler CommandHandler,
) {
	if verb == "" {
		log.Panic("cannot register a command with an empty verb")
	}

	if handler == nil {
		log.Panicf("cannot register command %q with a nil handler", verb)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[verb]; exists {
		log.Panicf("command verb %q already registered", verb)
	}

	r.entries[verb] = &commandEntry{
		verb:     verb,
		required: required,
		handler:  handler,
	}
}

// Verbs returns all registered verbs in sorted order.
func (r *CommandRegistry) Verbs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	verbs := make([]string, 0, len(r.entries))
	for verb := range r.entries {
		verbs = append(verbs, verb)
	}
	sort.Strings(verbs)

	return verbs
}

// Required returns the privilege a verb requires, and whether the verb is
// registered at all.
func (r *CommandRegistry) Required(verb string) (Privilege, bool) {
	entry, ok := r.lookup(verb)
	if !ok {
		return "", false
	}

	return entry.required, true
}

func (r *CommandRegistry) lookup(verb string) (*commandEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[verb]

	return entry, ok
}

// CommandState is the execution state of one command invocation.
type CommandState int

const (
	// CommandIdle means no invocation has started.
	CommandIdle CommandState = iota

	// CommandRunning means the handler is executing. Running never spans a
	// tick boundary; the executor blocks until the handler completes or
	// suspends.
	CommandRunning

	// CommandCompleted means the handler returned, successfully or not.
	CommandCompleted

	// CommandSuspended means the handler is parked waiting for the actor's
	// next input line. This is the only state that survives across ticks.
	CommandSuspended
)

func (s CommandState) String() string {
	switch s {
	case CommandIdle:
		return "idle"
	case CommandRunning:
		return "running"
	case CommandCompleted:
		return "completed"
	case CommandSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// A CommandResult reports how an invocation or a resumption ended. State is
// CommandCompleted or CommandSuspended. Err is set when the command
// completed with a failure or a refusal. Request is set while suspended.
type CommandResult struct {
	State   CommandState
	Err     error
	Request InputRequest
}

// SuspendedInfo is a diagnostic snapshot of one suspended command.
type SuspendedInfo struct {
	Actor   string        `json:"actor"`
	Verb    string        `json:"verb"`
	Prompt  string        `json:"prompt"`
	Elapsed time.Duration `json:"elapsed"`
}

// A NotifyFunc delivers a system message, such as a prompt or a refusal, to
// an actor.
type NotifyFunc func(actor Actor, message string)

type suspendedCommand struct {
	actor   Actor
	verb    string
	state   CommandState
	request InputRequest
	since   time.Time // wall clock, for elapsed-suspension diagnostics
	ctx     *Context
	done    chan error
}

// A CommandExecutor gates commands on privileges and manages the
// suspend/resume protocol. Handlers run in their own goroutine but the
// executor always waits synchronously for them to either complete or park on
// an Input call, so an actor never has two pieces of command logic running
// at once.
type CommandExecutor struct {
	mu        sync.Mutex
	registry  *CommandRegistry
	driver    *Driver
	clock     *GameClock
	notify    NotifyFunc
	suspended map[Actor]*suspendedCommand
	wallNow   func() time.Time
}

// NewCommandExecutor creates an executor dispatching to the given registry.
func NewCommandExecutor(registry *CommandRegistry) *CommandExecutor {
	return &CommandExecutor{
		registry:  registry,
		suspended: make(map[Actor]*suspendedCommand),
		wallNow:   time.Now,
	}
}

// SetNotify sets the function used to deliver prompts and refusals to
// actors. A nil notify function discards messages.
func (e *CommandExecutor) SetNotify(fn NotifyFunc) {
	e.notify = fn
}

func (e *CommandExecutor) attach(d *Driver) {
	e.driver = d
	e.clock = d.clock
}

// Invoke checks the actor's privileges and runs the verb's handler. It
// returns when the handler completes or suspends. The privilege check
// happens before the handler runs and before any state is touched.
func (e *CommandExecutor) Invoke(actor Actor, cmd ParsedCommand) CommandResult {
	entry, ok := e.registry.lookup(cmd.Verb)
	if !ok {
		e.notifyActor(actor, fmt.Sprintf("There is no %q command.", cmd.Verb))
		return completed(fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Verb))
	}

	if entry.required != "" && !actor.Privileges().Has(entry.required) {
		e.notifyActor(actor, "You are not allowed to do that.")
		return completed(&PermissionDeniedError{
			Actor:    actor.Name(),
			Verb:     cmd.Verb,
			Required: entry.required,
		})
	}

	sc := &suspendedCommand{
		actor: actor,
		verb:  cmd.Verb,
		state: CommandRunning,
		ctx:   newContext(e.driver, e.clock, actor),
		done:  make(chan error, 1),
	}

	e.mu.Lock()
	if _, exists := e.suspended[actor]; exists {
		e.mu.Unlock()
		e.notifyActor(actor, "Please answer the pending question first.")
		return completed(ErrCommandPending)
	}
	e.suspended[actor] = sc
	e.mu.Unlock()

	go runHandler(sc, entry.handler, actor, cmd)

	return e.waitOutcome(sc)
}

// Resume routes an input line to the actor's suspended command. The reply is
// validated first; an invalid reply re-prompts the actor and leaves the
// handler parked. A valid reply resumes the handler with the validated value
// substituted in at its suspension point.
func (e *CommandExecutor) Resume(actor Actor, line string) CommandResult {
	e.mu.Lock()
	sc, ok := e.suspended[actor]
	if !ok || sc.state != CommandSuspended {
		e.mu.Unlock()
		return completed(fmt.Errorf("%w: no suspended command for %q",
			ErrInvalidArgument, actor.Name()))
	}
	req := sc.request
	e.mu.Unlock()

	value := any(line)
	if req.Validator != nil {
		v, err := req.Validator(line)
		if err != nil {
			e.notifyActor(actor, err.Error())
			e.notifyActor(actor, req.Prompt)
			return CommandResult{State: CommandSuspended, Request: req}
		}
		value = v
	}

	e.mu.Lock()
	sc.state = CommandRunning
	e.mu.Unlock()

	sc.ctx.reply <- value

	return e.waitOutcome(sc)
}

// Abandon cancels the actor's suspended command, if any, without resuming
// it. The parked handler is released with ErrCommandAbandoned and no
// callback fires. It reports whether a suspension existed.
func (e *CommandExecutor) Abandon(actor Actor) bool {
	e.mu.Lock()
	sc, ok := e.suspended[actor]
	if ok {
		delete(e.suspended, actor)
	}
	e.mu.Unlock()

	if !ok {
		return false
	}

	close(sc.ctx.abort)

	return true
}

// HasSuspended reports whether the actor has a suspended command.
func (e *CommandExecutor) HasSuspended(actor Actor) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	sc, ok := e.suspended[actor]

	return ok && sc.state == CommandSuspended
}

// Suspended returns a snapshot of the actor's suspended command.
func (e *CommandExecutor) Suspended(actor Actor) (SuspendedInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sc, ok := e.suspended[actor]
	if !ok || sc.state != CommandSuspended {
		return SuspendedInfo{}, false
	}

	return e.infoLocked(sc), true
}

// SuspendedCommands returns a snapshot of all suspended commands, sorted by
// actor name.
func (e *CommandExecutor) SuspendedCommands() []SuspendedInfo {
	e.mu.Lock()
	infos := make([]SuspendedInfo, 0, len(e.suspended))
	for _, sc := range e.suspended {
		if sc.state == CommandSuspended {
			infos = append(infos, e.infoLocked(sc))
		}
	}
	e.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Actor < infos[j].Actor
	})

	return infos
}

func (e *CommandExecutor) infoLocked(sc *suspendedCommand) SuspendedInfo {
	return SuspendedInfo{
		Actor:   sc.actor.Name(),
		Verb:    sc.verb,
		Prompt:  sc.request.Prompt,
		Elapsed: e.wallNow().Sub(sc.since),
	}
}

func (e *CommandExecutor) waitOutcome(sc *suspendedCommand) CommandResult {
	select {
	case req := <-sc.ctx.yield:
		e.mu.Lock()
		sc.state = CommandSuspended
		sc.request = req
		sc.since = e.wallNow()
		e.mu.Unlock()

		e.notifyActor(sc.actor, req.Prompt)

		return CommandResult{State: CommandSuspended, Request: req}

	case err := <-sc.done:
		e.mu.Lock()
		sc.state = CommandCompleted
		delete(e.suspended, sc.actor)
		e.mu.Unlock()

		return e.finish(sc, err)
	}
}

func (e *CommandExecutor) finish(sc *suspendedCommand, err error) CommandResult {
	if err == nil {
		return completed(nil)
	}

	if errors.Is(err, ErrCommandAbandoned) {
		return completed(err)
	}

	if IsUserFacing(err) {
		e.notifyActor(sc.actor, err.Error())
		return completed(err)
	}

	e.notifyActor(sc.actor,
		"Something went wrong while executing that command.")

	return completed(&HandlerFailureError{
		Origin: sc.actor.Name(),
		Kind:   "command",
		Label:  sc.verb,
		Err:    err,
	})
}

func (e *CommandExecutor) notifyActor(actor Actor, message string) {
	if e.notify == nil {
		return
	}

	e.notify(actor, message)
}

func runHandler(
	sc *suspendedCommand,
	handler CommandHandler,
	actor Actor,
	cmd ParsedCommand,
) {
	var err error

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		sc.done <- err
	}()

	err = handler(actor, cmd, sc.ctx)
}

func completed(err error) CommandResult {
	return CommandResult{State: CommandCompleted, Err: err}
}
