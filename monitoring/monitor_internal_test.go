package monitoring

import (
	"encoding/json"
	"net/http/httptest"
	"reflect"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/gorilla/mux"

	"github.com/shawnantonucci/Tale/driver"
	"github.com/shawnantonucci/Tale/pubsub"
)

type sampleState struct {
	health    int
	title     string
	companion *sampleState
	inventory []sampleState
}

type sampleActor struct {
	name string
}

func (a *sampleActor) Name() string { return a.name }

func (a *sampleActor) Privileges() driver.PrivilegeSet {
	return driver.NewPrivilegeSet()
}

type verbatimParser struct{}

func (verbatimParser) Parse(
	_ driver.Actor,
	line string,
) (driver.ParsedCommand, error) {
	return driver.ParsedCommand{Verb: line, Line: line}, nil
}

func newSampleDriver() *driver.Driver {
	return driver.MakeBuilder().
		WithConfig(driver.Config{
			Epoch:        time.Date(2012, time.April, 19, 14, 0, 0, 0, time.UTC),
			Scale:        1,
			TickInterval: time.Second,
			RandSeed:     1,
		}).
		WithParser(verbatimParser{}).
		Build()
}

var _ = Describe("Monitor", func() {
	var (
		m *Monitor
	)

	BeforeEach(func() {
		m = &Monitor{}
	})

	It("should pick up the driver's broker on registration", func() {
		d := newSampleDriver()

		m.RegisterDriver(d)

		Expect(m.driver).To(BeIdenticalTo(d))
		Expect(m.broker).To(BeIdenticalTo(d.Broker()))
	})

	It("should merge registered actors with the driver's", func() {
		d := newSampleDriver()
		d.AddActor(&sampleActor{name: "alice"})
		m.RegisterDriver(d)
		m.RegisterActor(&sampleActor{name: "watcher"})

		actors := m.allActors()

		Expect(actors).To(HaveLen(2))
		Expect(actors[0].Name()).To(Equal("alice"))
		Expect(actors[1].Name()).To(Equal("watcher"))
	})

	It("should report the game time", func() {
		m.RegisterDriver(newSampleDriver())
		w := httptest.NewRecorder()

		m.now(w, httptest.NewRequest("GET", "/api/now", nil))

		Expect(w.Body.String()).To(
			Equal(`{"now":"2012-04-19T14:00:00Z"}`))
	})

	It("should report the server status as JSON", func() {
		m.RegisterDriver(newSampleDriver())
		w := httptest.NewRecorder()

		m.serverStatus(w, httptest.NewRequest("GET", "/api/server", nil))

		var status driver.ServerStatus
		Expect(json.Unmarshal(w.Body.Bytes(), &status)).To(Succeed())
		Expect(status.Running).To(BeFalse())
		Expect(status.TickMethod).To(Equal("timer"))
	})

	It("should list pending deferred actions", func() {
		d := newSampleDriver()
		_, err := d.DeferGame(time.Minute, nil, "chime",
			func(time.Time) error { return nil })
		Expect(err).ToNot(HaveOccurred())
		m.RegisterDriver(d)
		w := httptest.NewRecorder()

		m.listDeferreds(w, httptest.NewRequest("GET", "/api/deferreds", nil))

		var infos []driver.DeferredInfo
		Expect(json.Unmarshal(w.Body.Bytes(), &infos)).To(Succeed())
		Expect(infos).To(HaveLen(1))
		Expect(infos[0].Label).To(Equal("chime"))
	})

	It("should list actor names as a JSON array", func() {
		d := newSampleDriver()
		d.AddActor(&sampleActor{name: "alice"})
		d.AddActor(&sampleActor{name: "bob"})
		m.RegisterDriver(d)
		w := httptest.NewRecorder()

		m.listActors(w, httptest.NewRequest("GET", "/api/actors", nil))

		Expect(w.Body.String()).To(Equal(`["alice","bob"]`))
	})

	It("should respond 404 for an unknown actor", func() {
		m.RegisterDriver(newSampleDriver())
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/actor/nobody", nil)
		r = mux.SetURLVars(r, map[string]string{"name": "nobody"})

		m.actorDetails(w, r)

		Expect(w.Code).To(Equal(404))
	})

	It("should queue a submitted line for the actor", func() {
		d := newSampleDriver()
		alice := &sampleActor{name: "alice"}
		d.AddActor(alice)
		m.RegisterDriver(d)
		w := httptest.NewRecorder()
		r := httptest.NewRequest("POST", "/api/submit/alice",
			strings.NewReader("look\n"))
		r = mux.SetURLVars(r, map[string]string{"name": "alice"})

		m.submitLine(w, r)

		Expect(w.Code).To(Equal(200))
		Expect(d.PendingInputs()).To(Equal(1))
	})

	It("should reject an empty submitted line", func() {
		d := newSampleDriver()
		d.AddActor(&sampleActor{name: "alice"})
		m.RegisterDriver(d)
		w := httptest.NewRecorder()
		r := httptest.NewRequest("POST", "/api/submit/alice",
			strings.NewReader("  \n"))
		r = mux.SetURLVars(r, map[string]string{"name": "alice"})

		m.submitLine(w, r)

		Expect(w.Code).To(Equal(400))
	})

	Describe("topic listing", func() {
		BeforeEach(func() {
			broker := pubsub.NewBroker()
			broker.Publish("busy", "a")
			broker.Publish("busy", "b")
			broker.Publish("quiet", "c")
			m.RegisterBroker(broker)
		})

		It("should sort topics by pending count", func() {
			entries := m.sortAndSelectTopics("pending", 0, 0)

			Expect(entries).To(HaveLen(2))
			Expect(entries[0].Topic).To(Equal("busy"))
			Expect(entries[0].Pending).To(Equal(2))
			Expect(entries[1].Topic).To(Equal("quiet"))
		})

		It("should apply limit and offset", func() {
			entries := m.sortAndSelectTopics("pending", 1, 1)

			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Topic).To(Equal("quiet"))
		})

		It("should reject an unknown sort method", func() {
			r := httptest.NewRequest("GET", "/api/topics?sort=volume", nil)

			_, _, _, err := m.topicsParseParams(r)

			Expect(err).To(HaveOccurred())
		})
	})

	Describe("field walking", func() {
		It("should walk int fields", func() {
			s := &sampleState{
				health: 1,
			}

			elem, err := m.walkFields(s, "health")

			Expect(err).To(BeNil())
			Expect(elem.Kind()).To(Equal(reflect.Int))
			Expect(elem.Type().Name()).To(Equal("int"))
			Expect(elem.Int()).To(Equal(int64(1)))
		})

		It("should walk string fields", func() {
			s := &sampleState{
				title: "abc",
			}

			elem, err := m.walkFields(s, "title")

			Expect(err).To(BeNil())
			Expect(elem.Kind()).To(Equal(reflect.String))
			Expect(elem.Type().Name()).To(Equal("string"))
			Expect(elem.String()).To(Equal("abc"))
		})

		It("should walk struct", func() {
			s := &sampleState{
				companion: &sampleState{},
			}

			elem, err := m.walkFields(s, "companion")

			Expect(err).To(BeNil())

			Expect(elem.Kind()).To(Equal(reflect.Struct))
			Expect(elem.Type().Name()).To(Equal("sampleState"))
		})

		It("should walk recursively", func() {
			s := &sampleState{
				companion: &sampleState{
					health: 1,
				},
			}

			elem, err := m.walkFields(s, "companion.health")

			Expect(err).To(BeNil())
			Expect(elem.Kind()).To(Equal(reflect.Int))
			Expect(elem.Type().Name()).To(Equal("int"))
			Expect(elem.Int()).To(Equal(int64(1)))
		})

		It("should walk slice", func() {
			s := &sampleState{
				inventory: []sampleState{{}, {}},
			}

			elem, err := m.walkFields(s, "inventory")

			Expect(err).To(BeNil())
			Expect(elem.Kind()).To(Equal(reflect.Slice))
		})

		It("should walk slice recursively", func() {
			s := &sampleState{
				inventory: []sampleState{{
					inventory: []sampleState{
						{health: 1},
					},
				}, {}},
			}

			elem, err := m.walkFields(s, "inventory.0.inventory.0.health")

			Expect(err).To(BeNil())
			Expect(elem.Kind()).To(Equal(reflect.Int))
			Expect(elem.Type().Name()).To(Equal("int"))
			Expect(elem.Int()).To(Equal(int64(1)))
		})
	})
})
