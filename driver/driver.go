package driver

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/shawnantonucci/Tale/pubsub"
)

// A Parser turns a submitted input line into a command. Verb parsing is an
// external collaborator; the core never interprets command text itself.
type Parser interface {
	Parse(actor Actor, line string) (ParsedCommand, error)
}

// DriverState tells whether the driver loop is running.
type DriverState int

const (
	// DriverStopped means the loop is not running.
	DriverStopped DriverState = iota

	// DriverRunning means the loop is ticking.
	DriverRunning
)

const loopDurationWindow = 100

// A Driver owns the tick loop that coordinates all scheduled work. Each tick
// it advances the game clock, fires the deferred actions that came due, in
// ascending due order, invokes every registered heartbeat, and services at
// most one pending input line per actor.
//
// Failures inside deferred actions, heartbeats, and command handlers are
// isolated to the actor they belong to. Only a corrupted scheduling
// invariant stops the loop.
type Driver struct {
	HookableBase

	cfg        Config
	clock      *GameClock
	deferreds  *DeferredQueue
	heartbeats *HeartbeatRegistry
	commands   *CommandRegistry
	executor   *CommandExecutor
	broker     *pubsub.Broker
	parser     Parser

	rngLock sync.Mutex
	rng     *rand.Rand

	stateLock     sync.Mutex
	state         DriverState
	stopping      chan struct{}
	stopRequested bool

	isPaused     bool
	isPausedLock sync.Mutex
	pauseLock    sync.Mutex

	singleRunLock sync.Mutex

	actorsLock  sync.Mutex
	actors      []Actor
	actorNames  map[string]bool
	inputs      map[Actor][]string
	inputSignal chan struct{}

	startedAt time.Time
	tickLock  sync.Mutex
	tickCount uint64
	durations []time.Duration
	durIndex  int
}

// A Builder configures and creates a Driver.
type Builder struct {
	cfg      Config
	commands *CommandRegistry
	parser   Parser
	broker   *pubsub.Broker
}

// MakeBuilder returns a builder with the default config, an empty command
// registry, and a fresh pub/sub broker.
func MakeBuilder() Builder {
	return Builder{
		cfg: DefaultConfig(),
	}
}

// WithConfig sets the scheduling parameters.
func (b Builder) WithConfig(cfg Config) Builder {
	b.cfg = cfg
	return b
}

// WithCommandRegistry sets the command registry the executor dispatches to.
func (b Builder) WithCommandRegistry(r *CommandRegistry) Builder {
	b.commands = r
	return b
}

// WithParser sets the parser that turns input lines into commands.
func (b Builder) WithParser(p Parser) Builder {
	b.parser = p
	return b
}

// WithBroker sets the pub/sub broker the driver publishes actor messages on.
func (b Builder) WithBroker(br *pubsub.Broker) Builder {
	b.broker = br
	return b
}

// Build creates the driver. It panics on an invalid config or a missing
// parser.
func (b Builder) Build() *Driver {
	b.cfg.mustBeValid()

	if b.parser == nil {
		log.Panic("driver: a parser must be provided")
	}

	if b.commands == nil {
		b.commands = NewCommandRegistry()
	}

	if b.broker == nil {
		b.broker = pubsub.NewBroker()
	}

	epoch := b.cfg.Epoch
	if epoch.IsZero() {
		epoch = time.Now().UTC()
	}

	seed := b.cfg.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	d := &Driver{
		cfg:         b.cfg,
		clock:       NewGameClock(epoch, b.cfg.Scale),
		deferreds:   NewDeferredQueue(),
		heartbeats:  NewHeartbeatRegistry(),
		commands:    b.commands,
		broker:      b.broker,
		parser:      b.parser,
		rng:         rand.New(rand.NewSource(seed)),
		actorNames:  make(map[string]bool),
		inputs:      make(map[Actor][]string),
		inputSignal: make(chan struct{}, 1),
	}

	d.executor = NewCommandExecutor(b.commands)
	d.executor.attach(d)
	d.executor.SetNotify(d.notifyActor)

	d.broker.Subscribe(pubsub.PendingActionsTopic, pendingActionListener{d})

	return d
}

// Name returns the driver's diagnostic name.
func (d *Driver) Name() string {
	return "driver"
}

// Clock returns the game clock.
func (d *Driver) Clock() *GameClock {
	return d.clock
}

// Broker returns the pub/sub broker.
func (d *Driver) Broker() *pubsub.Broker {
	return d.broker
}

// Commands returns the command registry.
func (d *Driver) Commands() *CommandRegistry {
	return d.commands
}

// Executor returns the command executor.
func (d *Driver) Executor() *CommandExecutor {
	return d.executor
}

// State returns whether the loop is running.
func (d *Driver) State() DriverState {
	d.stateLock.Lock()
	defer d.stateLock.Unlock()

	return d.state
}

// Run ticks the driver until Stop is called or a scheduling invariant is
// violated. With TickMethodTimer, ticks follow a wall-clock ticker; with
// TickMethodCommand, one tick runs per submitted input line.
func (d *Driver) Run() error {
	d.singleRunLock.Lock()
	defer d.singleRunLock.Unlock()

	d.stateLock.Lock()
	d.state = DriverRunning
	d.stopping = make(chan struct{})
	d.stopRequested = false
	d.stateLock.Unlock()

	d.startedAt = time.Now()

	defer func() {
		d.stateLock.Lock()
		d.state = DriverStopped
		d.stateLock.Unlock()
	}()

	if d.cfg.TickMethod == TickMethodCommand {
		return d.runOnInput()
	}

	return d.runOnTimer()
}

// Stop makes Run return after the current tick. Stopping a stopped driver is
// a no-op.
func (d *Driver) Stop() {
	d.stateLock.Lock()
	defer d.stateLock.Unlock()

	if d.state != DriverRunning || d.stopRequested {
		return
	}

	d.stopRequested = true
	close(d.stopping)
}

// Pause prevents the driver from starting more ticks until Continue is
// called. The tick in progress finishes first.
func (d *Driver) Pause() {
	d.isPausedLock.Lock()
	defer d.isPausedLock.Unlock()

	if d.isPaused {
		return
	}

	d.pauseLock.Lock()
	d.isPaused = true
}

// Continue lets a paused driver tick again.
func (d *Driver) Continue() {
	d.isPausedLock.Lock()
	defer d.isPausedLock.Unlock()

	if !d.isPaused {
		return
	}

	d.pauseLock.Unlock()
	d.isPaused = false
}

// Paused reports whether the driver is paused.
func (d *Driver) Paused() bool {
	d.isPausedLock.Lock()
	defer d.isPausedLock.Unlock()

	return d.isPaused
}

func (d *Driver) runOnTimer() error {
	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopping:
			return nil
		case <-ticker.C:
			if err := d.tickOnce(); err != nil {
				return err
			}
		}
	}
}

func (d *Driver) runOnInput() error {
	for {
		select {
		case <-d.stopping:
			return nil
		case <-d.inputSignal:
			if err := d.tickOnce(); err != nil {
				return err
			}

			// Lines submitted while the tick ran still need a tick of
			// their own.
			if d.PendingInputs() > 0 {
				d.signalInput()
			}
		}
	}
}

func (d *Driver) tickOnce() error {
	d.pauseLock.Lock()
	defer d.pauseLock.Unlock()

	start := time.Now()

	hookCtx := HookCtx{Domain: d, Pos: HookPosBeforeTick, Item: d.TickCount()}
	d.InvokeHook(hookCtx)

	if err := d.clock.AdvanceRealtime(d.cfg.TickInterval); err != nil {
		return invariantf("clock refused tick advance: %v", err)
	}
	now := d.clock.Now()

	if err := d.fireDueDeferreds(now); err != nil {
		return err
	}

	d.runHeartbeats(now)
	d.serviceInputs()

	hookCtx.Pos = HookPosAfterTick
	d.InvokeHook(hookCtx)

	d.recordTick(time.Since(start))

	return nil
}

func (d *Driver) fireDueDeferreds(now time.Time) error {
	due := d.deferreds.DrainDue(now)

	var prev time.Time
	for i, def := range due {
		if def.Due.After(now) {
			return invariantf("deferred %q drained before its due time %v",
				def.Label, def.Due)
		}

		if i > 0 && def.Due.Before(prev) {
			return invariantf("deferred queue drained out of order: "+
				"%v after %v", def.Due, prev)
		}
		prev = def.Due

		hookCtx := HookCtx{Domain: d, Pos: HookPosBeforeDeferred, Item: def}
		d.InvokeHook(hookCtx)

		err := safeCallDeferred(def, now)
		if err != nil {
			d.reportFailure(&HandlerFailureError{
				Origin: def.OwnerName(),
				Kind:   "deferred",
				Label:  def.Label,
				Err:    err,
			})
		}

		hookCtx.Pos = HookPosAfterDeferred
		hookCtx.Detail = err
		d.InvokeHook(hookCtx)
	}

	return nil
}

func (d *Driver) runHeartbeats(now time.Time) {
	hookCtx := HookCtx{Domain: d, Pos: HookPosBeforeHeartbeats, Item: now}
	d.InvokeHook(hookCtx)

	for _, failure := range d.heartbeats.Tick(now) {
		d.reportFailure(failure)
	}

	hookCtx.Pos = HookPosAfterHeartbeats
	d.InvokeHook(hookCtx)
}

func (d *Driver) serviceInputs() {
	for _, actor := range d.actorsWithInput() {
		line, ok := d.popInput(actor)
		if !ok {
			continue
		}

		d.serviceOne(actor, line)
	}
}

// serviceOne handles one input line for one actor: a reply to a suspended
// command resumes it, anything else is parsed and invoked as a new command.
func (d *Driver) serviceOne(actor Actor, line string) {
	defer func() {
		if r := recover(); r != nil {
			d.reportFailure(&HandlerFailureError{
				Origin: actor.Name(),
				Kind:   "command",
				Label:  line,
				Err:    fmt.Errorf("panic: %v", r),
			})
		}
	}()

	if d.executor.HasSuspended(actor) {
		hookCtx := HookCtx{
			Domain: d,
			Pos:    HookPosCommandResumed,
			Item:   actor,
			Detail: line,
		}
		d.InvokeHook(hookCtx)

		result := d.executor.Resume(actor, line)
		d.afterCommand(actor, line, result)

		return
	}

	cmd, err := d.parser.Parse(actor, line)
	if err != nil {
		d.notifyActor(actor, err.Error())
		return
	}

	hookCtx := HookCtx{
		Domain: d,
		Pos:    HookPosBeforeCommand,
		Item:   cmd,
		Detail: actor,
	}
	d.InvokeHook(hookCtx)

	result := d.executor.Invoke(actor, cmd)
	d.afterCommand(actor, cmd.Verb, result)
}

func (d *Driver) afterCommand(actor Actor, what string, result CommandResult) {
	switch result.State {
	case CommandSuspended:
		hookCtx := HookCtx{
			Domain: d,
			Pos:    HookPosCommandSuspended,
			Item:   actor,
			Detail: result.Request,
		}
		d.InvokeHook(hookCtx)

	case CommandCompleted:
		hookCtx := HookCtx{
			Domain: d,
			Pos:    HookPosAfterCommand,
			Item:   actor,
			Detail: result,
		}
		d.InvokeHook(hookCtx)

		var failure *HandlerFailureError
		if errors.As(result.Err, &failure) {
			d.reportFailure(failure)
		} else if result.Err != nil && IsUserFacing(result.Err) {
			log.Printf("driver: %s refused %q: %v",
				actor.Name(), what, result.Err)
		}
	}
}

// Submit queues an input line for a registered actor. Lines are serviced one
// per actor per tick, in submission order. Submit is safe to call from any
// goroutine.
func (d *Driver) Submit(actor Actor, line string) error {
	d.actorsLock.Lock()
	if !d.actorNames[actor.Name()] {
		d.actorsLock.Unlock()
		return fmt.Errorf("%w: actor %q is not registered",
			ErrInvalidArgument, actor.Name())
	}
	d.inputs[actor] = append(d.inputs[actor], line)
	d.actorsLock.Unlock()

	if d.cfg.TickMethod == TickMethodCommand {
		d.signalInput()
	}

	return nil
}

// PendingInputs returns the number of queued input lines across all actors.
func (d *Driver) PendingInputs() int {
	d.actorsLock.Lock()
	defer d.actorsLock.Unlock()

	n := 0
	for _, lines := range d.inputs {
		n += len(lines)
	}

	return n
}

// AddActor registers an actor with the driver. Adding two actors with the
// same name is a programming error and panics.
func (d *Driver) AddActor(a Actor) {
	d.actorsLock.Lock()
	defer d.actorsLock.Unlock()

	if d.actorNames[a.Name()] {
		log.Panicf("actor %q already registered", a.Name())
	}

	d.actors = append(d.actors, a)
	d.actorNames[a.Name()] = true
}

// RemoveActor destroys an actor's scheduled presence: its pending deferred
// actions are cancelled, its heartbeat is unregistered, its suspended
// command is abandoned, its queued input is dropped, and its topic
// subscriptions are removed.
func (d *Driver) RemoveActor(a Actor) {
	d.deferreds.CancelOwned(a)

	if hb, ok := a.(HeartbeatReceiver); ok {
		d.heartbeats.Unregister(hb)
	}

	d.executor.Abandon(a)

	if l, ok := a.(pubsub.Listener); ok {
		d.broker.UnsubscribeAll(l)
	}

	d.actorsLock.Lock()
	defer d.actorsLock.Unlock()

	delete(d.inputs, a)
	delete(d.actorNames, a.Name())
	for i, actor := range d.actors {
		if actor == a {
			d.actors = append(d.actors[:i], d.actors[i+1:]...)
			break
		}
	}
}

// Actors returns a snapshot of registered actors in registration order.
func (d *Driver) Actors() []Actor {
	d.actorsLock.Lock()
	defer d.actorsLock.Unlock()

	snapshot := make([]Actor, len(d.actors))
	copy(snapshot, d.actors)

	return snapshot
}

// RegisterHeartbeat adds a receiver to the per-tick callback set.
func (d *Driver) RegisterHeartbeat(m HeartbeatReceiver) {
	d.heartbeats.Register(m)
}

// UnregisterHeartbeat removes a receiver from the per-tick callback set.
func (d *Driver) UnregisterHeartbeat(m HeartbeatReceiver) {
	d.heartbeats.Unregister(m)
}

// HeartbeatNames returns the names of registered heartbeat receivers.
func (d *Driver) HeartbeatNames() []string {
	return d.heartbeats.Names()
}

// DeferReal schedules fn to fire after a real-time delay, converted to a
// game-time due time under the clock scale. A negative delay is rejected.
func (d *Driver) DeferReal(
	delay time.Duration,
	owner Actor,
	label string,
	fn DeferredFunc,
) (*DeferredHandle, error) {
	if delay < 0 {
		return nil, fmt.Errorf("%w: negative delay %v",
			ErrInvalidArgument, delay)
	}

	return d.deferreds.Schedule(d.clock.PlusRealtime(delay), owner, label, fn), nil
}

// DeferGame schedules fn to fire after an in-world delay. A negative delay
// is rejected.
func (d *Driver) DeferGame(
	delay time.Duration,
	owner Actor,
	label string,
	fn DeferredFunc,
) (*DeferredHandle, error) {
	if delay < 0 {
		return nil, fmt.Errorf("%w: negative delay %v",
			ErrInvalidArgument, delay)
	}

	return d.deferreds.Schedule(d.clock.Now().Add(delay), owner, label, fn), nil
}

// DeferAt schedules fn to fire at an absolute in-world time. A due time in
// the past is accepted and fires on the next tick.
func (d *Driver) DeferAt(
	due time.Time,
	owner Actor,
	label string,
	fn DeferredFunc,
) *DeferredHandle {
	return d.deferreds.Schedule(due, owner, label, fn)
}

// CallPeriodically schedules fn to run repeatedly, each occurrence a fresh
// uniform-random real-time interval from [min, max] after the previous one.
// The first occurrence is also jittered. Stop the returned call to end the
// series.
func (d *Driver) CallPeriodically(
	owner Actor,
	label string,
	min, max time.Duration,
	fn DeferredFunc,
) (*PeriodicCall, error) {
	if min <= 0 || max < min {
		return nil, fmt.Errorf("%w: periodic interval [%v, %v]",
			ErrInvalidArgument, min, max)
	}

	p := &PeriodicCall{
		driver: d,
		owner:  owner,
		label:  label,
		min:    min,
		max:    max,
		fn:     fn,
	}
	p.schedule()

	return p, nil
}

// PendingDeferreds returns a snapshot of pending deferred actions sorted by
// due time.
func (d *Driver) PendingDeferreds() []DeferredInfo {
	return d.deferreds.Pending()
}

// SuspendedCommands returns a snapshot of suspended commands across all
// actors.
func (d *Driver) SuspendedCommands() []SuspendedInfo {
	return d.executor.SuspendedCommands()
}

// ServerStatus is a diagnostic snapshot of the driver loop.
type ServerStatus struct {
	Running          bool          `json:"running"`
	Paused           bool          `json:"paused"`
	Uptime           time.Duration `json:"uptime"`
	TickCount        uint64        `json:"tick_count"`
	TickInterval     time.Duration `json:"tick_interval"`
	TickMethod       string        `json:"tick_method"`
	AvgLoopDuration  time.Duration `json:"avg_loop_duration"`
	GameTime         time.Time     `json:"game_time"`
	Scale            float64       `json:"scale"`
	Heartbeats       int           `json:"heartbeats"`
	PendingDeferreds int           `json:"pending_deferreds"`
	Suspended        int           `json:"suspended_commands"`
	Actors           int           `json:"actors"`
}

// Status returns a diagnostic snapshot of the loop.
func (d *Driver) Status() ServerStatus {
	var uptime time.Duration
	if !d.startedAt.IsZero() {
		uptime = time.Since(d.startedAt)
	}

	d.actorsLock.Lock()
	actorCount := len(d.actors)
	d.actorsLock.Unlock()

	return ServerStatus{
		Running:          d.State() == DriverRunning,
		Paused:           d.Paused(),
		Uptime:           uptime,
		TickCount:        d.TickCount(),
		TickInterval:     d.cfg.TickInterval,
		TickMethod:       d.cfg.TickMethod.String(),
		AvgLoopDuration:  d.AvgLoopDuration(),
		GameTime:         d.clock.Now(),
		Scale:            d.clock.Scale(),
		Heartbeats:       d.heartbeats.Len(),
		PendingDeferreds: d.deferreds.Len(),
		Suspended:        len(d.executor.SuspendedCommands()),
		Actors:           actorCount,
	}
}

// TickCount returns the number of completed ticks.
func (d *Driver) TickCount() uint64 {
	d.tickLock.Lock()
	defer d.tickLock.Unlock()

	return d.tickCount
}

// AvgLoopDuration returns the mean duration of the most recent ticks.
func (d *Driver) AvgLoopDuration() time.Duration {
	d.tickLock.Lock()
	defer d.tickLock.Unlock()

	if len(d.durations) == 0 {
		return 0
	}

	var total time.Duration
	for _, dur := range d.durations {
		total += dur
	}

	return total / time.Duration(len(d.durations))
}

func (d *Driver) recordTick(dur time.Duration) {
	d.tickLock.Lock()
	defer d.tickLock.Unlock()

	d.tickCount++

	if len(d.durations) < loopDurationWindow {
		d.durations = append(d.durations, dur)
		return
	}

	d.durations[d.durIndex] = dur
	d.durIndex = (d.durIndex + 1) % loopDurationWindow
}

func (d *Driver) reportFailure(failure *HandlerFailureError) {
	log.Printf("driver: %v", failure)

	hookCtx := HookCtx{Domain: d, Pos: HookPosFailure, Item: failure}
	d.InvokeHook(hookCtx)
}

func (d *Driver) notifyActor(actor Actor, message string) {
	err := d.broker.Publish(pubsub.ActorTopic(actor.Name()), message)
	if err != nil {
		log.Printf("driver: delivering message to %s: %v", actor.Name(), err)
	}
}

func (d *Driver) randDuration(min, max time.Duration) time.Duration {
	d.rngLock.Lock()
	defer d.rngLock.Unlock()

	if max <= min {
		return min
	}

	return min + time.Duration(d.rng.Int63n(int64(max-min)+1))
}

func (d *Driver) signalInput() {
	select {
	case d.inputSignal <- struct{}{}:
	default:
	}
}

func (d *Driver) actorsWithInput() []Actor {
	d.actorsLock.Lock()
	defer d.actorsLock.Unlock()

	var pending []Actor
	for _, actor := range d.actors {
		if len(d.inputs[actor]) > 0 {
			pending = append(pending, actor)
		}
	}

	return pending
}

func (d *Driver) popInput(actor Actor) (string, bool) {
	d.actorsLock.Lock()
	defer d.actorsLock.Unlock()

	lines := d.inputs[actor]
	if len(lines) == 0 {
		return "", false
	}

	d.inputs[actor] = lines[1:]

	return lines[0], true
}

func safeCallDeferred(def *Deferred, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return def.Call(now)
}

// pendingActionListener runs closures published on the pending-actions topic
// as immediate deferred actions. They fire on the next tick's drain, on the
// driver's own goroutine, which lets other goroutines hand work to the loop
// without touching scheduling state directly.
type pendingActionListener struct {
	driver *Driver
}

func (l pendingActionListener) TopicEvent(topic string, message any) error {
	d := l.driver

	switch fn := message.(type) {
	case DeferredFunc:
		d.deferreds.Schedule(d.clock.Now(), nil, "pending-action", fn)
	case func(now time.Time) error:
		d.deferreds.Schedule(d.clock.Now(), nil, "pending-action", fn)
	case func():
		d.deferreds.Schedule(d.clock.Now(), nil, "pending-action",
			func(time.Time) error {
				fn()
				return nil
			})
	default:
		return fmt.Errorf("%w: pending action must be a function, got %T",
			ErrInvalidArgument, message)
	}

	return nil
}
