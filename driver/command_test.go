package driver

import (
	"errors"
	"fmt"
	"time"

	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"
)

var _ = ginkgo.Describe("CommandRegistry", func() {
	var registry *CommandRegistry

	ginkgo.BeforeEach(func() {
		registry = NewCommandRegistry()
	})

	ginkgo.It("should panic when registering an empty verb", func() {
		Expect(func() {
			registry.Register("", "", func(Actor, ParsedCommand, *Context) error {
				return nil
			})
		}).To(Panic())
	})

	ginkgo.It("should panic when registering a nil handler", func() {
		Expect(func() {
			registry.Register("look", "", nil)
		}).To(Panic())
	})

	ginkgo.It("should panic when registering a verb twice", func() {
		handler := func(Actor, ParsedCommand, *Context) error { return nil }

		registry.Register("look", "", handler)

		Expect(func() {
			registry.Register("look", "", handler)
		}).To(Panic())
	})

	ginkgo.It("should list verbs in sorted order", func() {
		handler := func(Actor, ParsedCommand, *Context) error { return nil }

		registry.Register("teleport", PrivilegeWizard, handler)
		registry.Register("look", "", handler)

		Expect(registry.Verbs()).To(Equal([]string{"look", "teleport"}))
	})

	ginkgo.It("should report the privilege a verb requires", func() {
		handler := func(Actor, ParsedCommand, *Context) error { return nil }
		registry.Register("teleport", PrivilegeWizard, handler)

		required, ok := registry.Required("teleport")

		Expect(ok).To(BeTrue())
		Expect(required).To(Equal(PrivilegeWizard))
	})

	ginkgo.It("should report unknown verbs", func() {
		_, ok := registry.Required("dance")

		Expect(ok).To(BeFalse())
	})
})

var _ = ginkgo.Describe("CommandExecutor", func() {
	var (
		mockCtrl *gomock.Controller
		registry *CommandRegistry
		executor *CommandExecutor
		notices  []string
	)

	makeActor := func(name string, privs ...Privilege) *MockActor {
		actor := NewMockActor(mockCtrl)
		actor.EXPECT().Name().Return(name).AnyTimes()
		actor.EXPECT().Privileges().Return(NewPrivilegeSet(privs...)).AnyTimes()
		return actor
	}

	ginkgo.BeforeEach(func() {
		mockCtrl = gomock.NewController(ginkgo.GinkgoT())
		registry = NewCommandRegistry()
		executor = NewCommandExecutor(registry)
		notices = nil
		executor.SetNotify(func(actor Actor, message string) {
			notices = append(notices, message)
		})
	})

	ginkgo.AfterEach(func() {
		mockCtrl.Finish()
	})

	ginkgo.It("should reject an unknown verb", func() {
		actor := makeActor("alice")

		result := executor.Invoke(actor, ParsedCommand{Verb: "dance"})

		Expect(result.State).To(Equal(CommandCompleted))
		Expect(result.Err).To(MatchError(ErrUnknownCommand))
		Expect(notices).To(ContainElement(`There is no "dance" command.`))
	})

	ginkgo.It("should deny a gated verb without running the handler", func() {
		ran := false
		registry.Register("teleport", PrivilegeWizard,
			func(Actor, ParsedCommand, *Context) error {
				ran = true
				return nil
			})
		actor := makeActor("alice")

		result := executor.Invoke(actor, ParsedCommand{Verb: "teleport"})

		Expect(ran).To(BeFalse())
		Expect(result.State).To(Equal(CommandCompleted))

		var denied *PermissionDeniedError
		Expect(errors.As(result.Err, &denied)).To(BeTrue())
		Expect(denied.Verb).To(Equal("teleport"))
		Expect(notices).To(ContainElement("You are not allowed to do that."))
	})

	ginkgo.It("should run a gated verb for a privileged actor", func() {
		registry.Register("teleport", PrivilegeWizard,
			func(Actor, ParsedCommand, *Context) error { return nil })
		wizard := makeActor("merlin", PrivilegeWizard)

		result := executor.Invoke(wizard, ParsedCommand{Verb: "teleport"})

		Expect(result.State).To(Equal(CommandCompleted))
		Expect(result.Err).To(BeNil())
	})

	ginkgo.It("should pass verb and arguments through to the handler", func() {
		var seen ParsedCommand
		registry.Register("give", "",
			func(_ Actor, cmd ParsedCommand, _ *Context) error {
				seen = cmd
				return nil
			})
		actor := makeActor("alice")
		cmd := ParsedCommand{
			Verb: "give",
			Args: []string{"sword", "bob"},
			Line: "give sword bob",
		}

		executor.Invoke(actor, cmd)

		Expect(seen).To(Equal(cmd))
	})

	ginkgo.It("should show a refusal to the actor", func() {
		registry.Register("open", "",
			func(Actor, ParsedCommand, *Context) error {
				return Refuse("The door is locked.")
			})
		actor := makeActor("alice")

		result := executor.Invoke(actor, ParsedCommand{Verb: "open"})

		Expect(result.State).To(Equal(CommandCompleted))
		Expect(result.Err).To(MatchError("The door is locked."))
		Expect(notices).To(ContainElement("The door is locked."))
	})

	ginkgo.It("should wrap an unexpected handler error as a failure", func() {
		registry.Register("save", "",
			func(Actor, ParsedCommand, *Context) error {
				return errors.New("db down")
			})
		actor := makeActor("alice")

		result := executor.Invoke(actor, ParsedCommand{Verb: "save"})

		var failure *HandlerFailureError
		Expect(errors.As(result.Err, &failure)).To(BeTrue())
		Expect(failure.Kind).To(Equal("command"))
		Expect(failure.Label).To(Equal("save"))
		Expect(failure.Err).To(MatchError("db down"))
		Expect(notices).To(ContainElement(
			"Something went wrong while executing that command."))
	})

	ginkgo.It("should convert a handler panic into a failure", func() {
		registry.Register("explode", "",
			func(Actor, ParsedCommand, *Context) error {
				panic("kaboom")
			})
		actor := makeActor("alice")

		result := executor.Invoke(actor, ParsedCommand{Verb: "explode"})

		var failure *HandlerFailureError
		Expect(errors.As(result.Err, &failure)).To(BeTrue())
		Expect(failure.Err.Error()).To(ContainSubstring("kaboom"))
		Expect(executor.HasSuspended(actor)).To(BeFalse())
	})

	ginkgo.Context("when a handler asks for input", func() {
		var (
			actor     *MockActor
			confirmed chan bool
		)

		ginkgo.BeforeEach(func() {
			actor = makeActor("alice")
			confirmed = make(chan bool, 1)
			registry.Register("quit", "",
				func(_ Actor, _ ParsedCommand, ctx *Context) error {
					sure, err := ctx.Confirm("Are you sure?")
					if err != nil {
						return err
					}
					confirmed <- sure
					return nil
				})
		})

		ginkgo.It("should suspend and prompt the actor", func() {
			result := executor.Invoke(actor, ParsedCommand{Verb: "quit"})

			Expect(result.State).To(Equal(CommandSuspended))
			Expect(result.Request.Prompt).To(Equal("Are you sure?"))
			Expect(notices).To(ContainElement("Are you sure?"))
			Expect(executor.HasSuspended(actor)).To(BeTrue())
		})

		ginkgo.It("should resume with the validated reply", func() {
			executor.Invoke(actor, ParsedCommand{Verb: "quit"})

			result := executor.Resume(actor, "yes")

			Expect(result.State).To(Equal(CommandCompleted))
			Expect(result.Err).To(BeNil())
			Expect(confirmed).To(Receive(BeTrue()))
			Expect(executor.HasSuspended(actor)).To(BeFalse())
		})

		ginkgo.It("should re-prompt on an invalid reply without resuming", func() {
			executor.Invoke(actor, ParsedCommand{Verb: "quit"})

			result := executor.Resume(actor, "banana")

			Expect(result.State).To(Equal(CommandSuspended))
			Expect(notices).To(ContainElement(
				ContainSubstring("please answer yes or no")))
			Expect(notices[len(notices)-1]).To(Equal("Are you sure?"))
			Expect(executor.HasSuspended(actor)).To(BeTrue())

			result = executor.Resume(actor, "no")

			Expect(result.State).To(Equal(CommandCompleted))
			Expect(confirmed).To(Receive(BeFalse()))
		})

		ginkgo.It("should hold new commands while one is suspended", func() {
			registry.Register("look", "",
				func(Actor, ParsedCommand, *Context) error { return nil })

			executor.Invoke(actor, ParsedCommand{Verb: "quit"})
			result := executor.Invoke(actor, ParsedCommand{Verb: "look"})

			Expect(result.State).To(Equal(CommandCompleted))
			Expect(result.Err).To(MatchError(ErrCommandPending))
			Expect(notices).To(ContainElement(
				"Please answer the pending question first."))
			Expect(executor.HasSuspended(actor)).To(BeTrue())
		})

		ginkgo.It("should release the parked handler on abandon", func() {
			aborted := make(chan error, 1)
			registry.Register("linger", "",
				func(_ Actor, _ ParsedCommand, ctx *Context) error {
					_, err := ctx.Input("Still there?", nil)
					aborted <- err
					return err
				})

			executor.Invoke(actor, ParsedCommand{Verb: "linger"})
			Expect(executor.Abandon(actor)).To(BeTrue())

			Eventually(aborted).Should(Receive(MatchError(ErrCommandAbandoned)))
			Expect(executor.HasSuspended(actor)).To(BeFalse())
			Expect(executor.Abandon(actor)).To(BeFalse())
		})

		ginkgo.It("should expose the suspension for diagnostics", func() {
			wall := time.Date(2012, time.April, 19, 14, 0, 0, 0, time.UTC)
			executor.wallNow = func() time.Time { return wall }

			executor.Invoke(actor, ParsedCommand{Verb: "quit"})
			wall = wall.Add(3 * time.Second)

			info, ok := executor.Suspended(actor)
			Expect(ok).To(BeTrue())
			Expect(info.Actor).To(Equal("alice"))
			Expect(info.Verb).To(Equal("quit"))
			Expect(info.Prompt).To(Equal("Are you sure?"))
			Expect(info.Elapsed).To(Equal(3 * time.Second))
		})
	})

	ginkgo.It("should substitute the validated value at the suspension point", func() {
		var got time.Duration
		registry.Register("nap", "",
			func(_ Actor, _ ParsedCommand, ctx *Context) error {
				v, err := ctx.Input("How long?", Duration)
				if err != nil {
					return err
				}
				got = v.(time.Duration)
				return nil
			})
		actor := makeActor("alice")

		executor.Invoke(actor, ParsedCommand{Verb: "nap"})
		result := executor.Resume(actor, "90s")

		Expect(result.State).To(Equal(CommandCompleted))
		Expect(got).To(Equal(90 * time.Second))
	})

	ginkgo.It("should support a chain of questions", func() {
		var order []string
		registry.Register("forge", "",
			func(_ Actor, _ ParsedCommand, ctx *Context) error {
				metal, err := ctx.Input("Which metal?", Choice("iron", "gold"))
				if err != nil {
					return err
				}
				shape, err := ctx.Input("Which shape?", Choice("sword", "ring"))
				if err != nil {
					return err
				}
				order = append(order, fmt.Sprintf("%v %v", metal, shape))
				return nil
			})
		actor := makeActor("alice")

		result := executor.Invoke(actor, ParsedCommand{Verb: "forge"})
		Expect(result.State).To(Equal(CommandSuspended))
		Expect(result.Request.Prompt).To(Equal("Which metal?"))

		result = executor.Resume(actor, "GOLD")
		Expect(result.State).To(Equal(CommandSuspended))
		Expect(result.Request.Prompt).To(Equal("Which shape?"))

		result = executor.Resume(actor, "ring")
		Expect(result.State).To(Equal(CommandCompleted))
		Expect(order).To(Equal([]string{"gold ring"}))
	})

	ginkgo.It("should reject resuming an actor with nothing suspended", func() {
		actor := makeActor("alice")

		result := executor.Resume(actor, "yes")

		Expect(result.State).To(Equal(CommandCompleted))
		Expect(result.Err).To(MatchError(ErrInvalidArgument))
	})

	ginkgo.It("should list suspended commands sorted by actor", func() {
		registry.Register("quit", "",
			func(_ Actor, _ ParsedCommand, ctx *Context) error {
				_, err := ctx.Confirm("Are you sure?")
				return err
			})
		bob := makeActor("bob")
		alice := makeActor("alice")

		executor.Invoke(bob, ParsedCommand{Verb: "quit"})
		executor.Invoke(alice, ParsedCommand{Verb: "quit"})

		infos := executor.SuspendedCommands()

		Expect(infos).To(HaveLen(2))
		Expect(infos[0].Actor).To(Equal("alice"))
		Expect(infos[1].Actor).To(Equal("bob"))
	})

	ginkgo.It("should keep suspensions of different actors independent", func() {
		answered := make(chan string, 2)
		registry.Register("pick", "",
			func(actor Actor, _ ParsedCommand, ctx *Context) error {
				v, err := ctx.Input("Which?", Choice("red", "blue"))
				if err != nil {
					return err
				}
				answered <- actor.Name() + ":" + v.(string)
				return nil
			})
		alice := makeActor("alice")
		bob := makeActor("bob")

		executor.Invoke(alice, ParsedCommand{Verb: "pick"})
		executor.Invoke(bob, ParsedCommand{Verb: "pick"})

		executor.Resume(bob, "blue")
		executor.Resume(alice, "red")

		Expect(answered).To(Receive(Equal("bob:blue")))
		Expect(answered).To(Receive(Equal("alice:red")))
	})
})
