package driver

import (
	"time"

	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"
)

var _ = ginkgo.Describe("DeferredQueue", func() {
	var (
		mockCtrl *gomock.Controller
		epoch    time.Time
		queue    *DeferredQueue
	)

	ginkgo.BeforeEach(func() {
		mockCtrl = gomock.NewController(ginkgo.GinkgoT())
		epoch = time.Date(2012, time.April, 19, 14, 0, 0, 0, time.UTC)
		queue = NewDeferredQueue()
	})

	ginkgo.AfterEach(func() {
		mockCtrl.Finish()
	})

	noop := func(now time.Time) error { return nil }

	ginkgo.It("should drain only the due entries, earliest first", func() {
		queue.Schedule(epoch.Add(3*time.Second), nil, "third", noop)
		queue.Schedule(epoch.Add(1*time.Second), nil, "first", noop)
		queue.Schedule(epoch.Add(2*time.Second), nil, "second", noop)

		due := queue.DrainDue(epoch.Add(2 * time.Second))

		Expect(due).To(HaveLen(2))
		Expect(due[0].Label).To(Equal("first"))
		Expect(due[1].Label).To(Equal("second"))
		Expect(queue.Len()).To(Equal(1))
	})

	ginkgo.It("should drain an entry due exactly now", func() {
		queue.Schedule(epoch, nil, "now", noop)

		due := queue.DrainDue(epoch)

		Expect(due).To(HaveLen(1))
		Expect(due[0].Label).To(Equal("now"))
	})

	ginkgo.It("should never hand out the same entry twice", func() {
		queue.Schedule(epoch.Add(time.Second), nil, "once", noop)

		first := queue.DrainDue(epoch.Add(time.Minute))
		second := queue.DrainDue(epoch.Add(time.Hour))

		Expect(first).To(HaveLen(1))
		Expect(second).To(BeEmpty())
	})

	ginkgo.It("should catch up on entries scheduled far in the past", func() {
		queue.Schedule(epoch.Add(-time.Hour), nil, "overdue", noop)

		due := queue.DrainDue(epoch)

		Expect(due).To(HaveLen(1))
		Expect(due[0].Label).To(Equal("overdue"))
	})

	ginkgo.It("should drop a cancelled entry before it becomes due", func() {
		handle := queue.Schedule(epoch.Add(time.Second), nil, "doomed", noop)
		queue.Schedule(epoch.Add(time.Second), nil, "kept", noop)

		Expect(handle.Cancel()).To(BeTrue())
		due := queue.DrainDue(epoch.Add(time.Minute))

		Expect(due).To(HaveLen(1))
		Expect(due[0].Label).To(Equal("kept"))
	})

	ginkgo.It("should report false when cancelling an already-fired entry", func() {
		handle := queue.Schedule(epoch.Add(time.Second), nil, "fired", noop)

		queue.DrainDue(epoch.Add(time.Minute))

		Expect(handle.Cancel()).To(BeFalse())
	})

	ginkgo.It("should report false when cancelling twice", func() {
		handle := queue.Schedule(epoch.Add(time.Second), nil, "doomed", noop)

		Expect(handle.Cancel()).To(BeTrue())
		Expect(handle.Cancel()).To(BeFalse())
	})

	ginkgo.It("should cancel every entry owned by an actor", func() {
		alice := NewMockActor(mockCtrl)
		alice.EXPECT().Name().Return("alice").AnyTimes()
		bob := NewMockActor(mockCtrl)
		bob.EXPECT().Name().Return("bob").AnyTimes()

		queue.Schedule(epoch.Add(1*time.Second), alice, "a1", noop)
		queue.Schedule(epoch.Add(2*time.Second), bob, "b1", noop)
		queue.Schedule(epoch.Add(3*time.Second), alice, "a2", noop)

		removed := queue.CancelOwned(alice)

		Expect(removed).To(Equal(2))
		due := queue.DrainDue(epoch.Add(time.Minute))
		Expect(due).To(HaveLen(1))
		Expect(due[0].Label).To(Equal("b1"))
	})

	ginkgo.It("should list pending entries sorted by due time", func() {
		alice := NewMockActor(mockCtrl)
		alice.EXPECT().Name().Return("alice").AnyTimes()

		queue.Schedule(epoch.Add(2*time.Second), alice, "later", noop)
		queue.Schedule(epoch.Add(1*time.Second), nil, "sooner", noop)

		pending := queue.Pending()

		Expect(pending).To(HaveLen(2))
		Expect(pending[0].Label).To(Equal("sooner"))
		Expect(pending[0].Owner).To(Equal("driver"))
		Expect(pending[1].Label).To(Equal("later"))
		Expect(pending[1].Owner).To(Equal("alice"))
	})

	ginkgo.It("should assign a unique ID to each entry", func() {
		h1 := queue.Schedule(epoch.Add(time.Second), nil, "one", noop)
		h2 := queue.Schedule(epoch.Add(time.Second), nil, "two", noop)

		Expect(h1.ID()).ToNot(Equal(h2.ID()))
	})
})
