package tracing

import (
	"errors"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/shawnantonucci/Tale/driver"
)

// capturingTracer records every call it receives so that specs can assert on
// the stream of actions the driver hook produces. The driver loop runs on its
// own goroutine, hence the lock.
type capturingTracer struct {
	mu         sync.Mutex
	starts     []Action
	steps      []Action
	ends       []Action
	milestones []Milestone
}

func (t *capturingTracer) StartAction(a Action) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.starts = append(t.starts, a)
}

func (t *capturingTracer) StepAction(a Action) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.steps = append(t.steps, a)
}

func (t *capturingTracer) EndAction(a Action) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ends = append(t.ends, a)
}

func (t *capturingTracer) AddMilestone(m Milestone) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.milestones = append(t.milestones, m)
}

func (t *capturingTracer) startedActions() []Action {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]Action{}, t.starts...)
}

func (t *capturingTracer) startedOfKind(kind string) []Action {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Action
	for _, a := range t.starts {
		if a.Kind == kind {
			out = append(out, a)
		}
	}

	return out
}

func (t *capturingTracer) steppedActions() []Action {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]Action{}, t.steps...)
}

func (t *capturingTracer) endedIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []string
	for _, a := range t.ends {
		out = append(out, a.ID)
	}

	return out
}

func (t *capturingTracer) capturedMilestones() []Milestone {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]Milestone{}, t.milestones...)
}

type fieldsParser struct{}

func (fieldsParser) Parse(
	actor driver.Actor,
	line string,
) (driver.ParsedCommand, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return driver.ParsedCommand{}, errors.New("say something")
	}

	return driver.ParsedCommand{
		Verb: fields[0],
		Args: fields[1:],
		Line: line,
	}, nil
}

type traceTestActor struct {
	name string
}

func (a *traceTestActor) Name() string {
	return a.name
}

func (a *traceTestActor) Privileges() driver.PrivilegeSet {
	return driver.NewPrivilegeSet()
}

var _ = Describe("TraceDriver", func() {
	var (
		tracer *capturingTracer
		d      *driver.Driver
		alice  *traceTestActor
		done   chan error
	)

	BeforeEach(func() {
		tracer = &capturingTracer{}

		registry := driver.NewCommandRegistry()
		registry.Register("look",
			"",
			func(
				actor driver.Actor,
				cmd driver.ParsedCommand,
				ctx *driver.Context,
			) error {
				return nil
			})
		registry.Register("quit",
			"",
			func(
				actor driver.Actor,
				cmd driver.ParsedCommand,
				ctx *driver.Context,
			) error {
				_, err := ctx.Confirm("Are you sure?")
				return err
			})

		d = driver.MakeBuilder().
			WithConfig(driver.Config{
				Epoch:        time.Date(2012, 4, 19, 14, 0, 0, 0, time.UTC),
				Scale:        1,
				TickInterval: 10 * time.Millisecond,
				TickMethod:   driver.TickMethodCommand,
				RandSeed:     1,
			}).
			WithParser(fieldsParser{}).
			WithCommandRegistry(registry).
			Build()

		TraceDriver(d, tracer)

		alice = &traceTestActor{name: "alice"}
		d.AddActor(alice)

		done = make(chan error, 1)
		go func() {
			done <- d.Run()
		}()
	})

	AfterEach(func() {
		d.Stop()
		Eventually(done).Should(Receive(BeNil()))
	})

	It("should trace a tick with its heartbeat round and command", func() {
		Expect(d.Submit(alice, "look around")).To(Succeed())

		Eventually(tracer.endedIDs).Should(ContainElement("tick-0"))

		Expect(tracer.startedActions()).To(ContainElement(Action{
			ID:       "tick-0",
			Kind:     "tick",
			What:     "tick 0",
			Location: "driver",
		}))
		Expect(tracer.startedActions()).To(ContainElement(Action{
			ID:       "tick-0-heartbeats",
			ParentID: "tick-0",
			Kind:     "heartbeat",
			What:     "heartbeat round",
			Location: "driver",
		}))

		cmds := tracer.startedOfKind("command")
		Expect(cmds).To(HaveLen(1))
		Expect(cmds[0].ID).To(Equal("tick-0-cmd-alice"))
		Expect(cmds[0].ParentID).To(Equal("tick-0"))
		Expect(cmds[0].What).To(Equal("look"))
		Expect(cmds[0].Location).To(Equal("alice"))
		Expect(cmds[0].Detail).To(Equal(driver.ParsedCommand{
			Verb: "look",
			Args: []string{"around"},
			Line: "look around",
		}))

		Expect(tracer.endedIDs()).To(Equal([]string{
			"tick-0-heartbeats",
			"tick-0-cmd-alice",
			"tick-0",
		}))
	})

	It("should trace a deferred firing as a child of its tick", func() {
		fired := false
		_, err := d.DeferGame(0, alice, "rat squeak",
			func(now time.Time) error {
				fired = true
				return nil
			})
		Expect(err).To(BeNil())

		Expect(d.Submit(alice, "look")).To(Succeed())

		Eventually(tracer.endedIDs).Should(ContainElement("tick-0"))
		Expect(fired).To(BeTrue())

		deferreds := tracer.startedOfKind("deferred")
		Expect(deferreds).To(HaveLen(1))
		Expect(deferreds[0].ID).To(HavePrefix("deferred-"))
		Expect(deferreds[0].ParentID).To(Equal("tick-0"))
		Expect(deferreds[0].What).To(Equal("rat squeak"))
		Expect(deferreds[0].Location).To(Equal("alice"))

		Expect(tracer.endedIDs()).To(ContainElement(deferreds[0].ID))
	})

	It("should keep a command open across its suspension", func() {
		Expect(d.Submit(alice, "quit")).To(Succeed())

		Eventually(tracer.capturedMilestones).Should(HaveLen(1))

		milestone := tracer.capturedMilestones()[0]
		Expect(milestone.ID).To(HavePrefix("milestone-"))
		Expect(milestone.ActionID).To(Equal("tick-0-cmd-alice"))
		Expect(milestone.Kind).To(Equal(MilestoneKindInput))
		Expect(milestone.What).To(Equal("Are you sure?"))
		Expect(milestone.Location).To(Equal("alice"))

		Eventually(tracer.endedIDs).Should(ContainElement("tick-0"))
		Expect(tracer.endedIDs()).NotTo(ContainElement("tick-0-cmd-alice"))

		Expect(d.Submit(alice, "yes")).To(Succeed())

		Eventually(tracer.endedIDs).Should(ContainElement("tick-0-cmd-alice"))

		steps := tracer.steppedActions()
		Expect(steps).To(HaveLen(1))
		Expect(steps[0].ID).To(Equal("tick-0-cmd-alice"))
		Expect(steps[0].Steps).To(HaveLen(1))
		Expect(steps[0].Steps[0].What).To(Equal("resume"))

		Expect(tracer.startedOfKind("command")).To(HaveLen(1))
	})
})
