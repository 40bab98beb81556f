// Package session assembles a runnable game service: a driver wired to a
// pub/sub broker, a SQLite recorder, a DB tracer, and an optional monitoring
// server.
package session

import (
	"github.com/shawnantonucci/Tale/datarecording"
	"github.com/shawnantonucci/Tale/driver"
	"github.com/shawnantonucci/Tale/monitoring"
	"github.com/shawnantonucci/Tale/pubsub"
	"github.com/shawnantonucci/Tale/tracing"
)

// A Session provides the services required to run a game.
type Session struct {
	id string

	driver       *driver.Driver
	broker       *pubsub.Broker
	dataRecorder datarecording.DataRecorder
	runRecorder  *datarecording.RunRecorder
	monitor      *monitoring.Monitor
	tracer       *tracing.DBTracer

	actors         []driver.Actor
	actorNameIndex map[string]int
}

// ID returns the unique ID of the session.
func (s *Session) ID() string {
	return s.id
}

// GetDriver returns the driver that runs the session's game loop.
func (s *Session) GetDriver() *driver.Driver {
	return s.driver
}

// GetBroker returns the pub/sub broker the session's driver publishes on.
func (s *Session) GetBroker() *pubsub.Broker {
	return s.broker
}

// GetDataRecorder returns the data recorder used in the session.
func (s *Session) GetDataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// GetMonitor returns the monitor used in the session. It is nil when the
// session is built without monitoring.
func (s *Session) GetMonitor() *monitoring.Monitor {
	return s.monitor
}

// GetTracer returns the tracer that journals driver activity into the
// session's recorder.
func (s *Session) GetTracer() *tracing.DBTracer {
	return s.tracer
}

// RegisterActor registers an actor with the session's driver and, when
// monitoring is on, with the monitor.
func (s *Session) RegisterActor(a driver.Actor) {
	actorName := a.Name()
	if _, ok := s.actorNameIndex[actorName]; ok {
		panic("actor " + actorName + " already registered")
	}

	s.driver.AddActor(a)

	s.actors = append(s.actors, a)
	s.actorNameIndex[actorName] = len(s.actors) - 1

	if s.monitor != nil {
		s.monitor.RegisterActor(a)
	}
}

// GetActorByName returns the actor with the given name.
func (s *Session) GetActorByName(name string) driver.Actor {
	return s.actors[s.actorNameIndex[name]]
}

// Actors returns all the actors registered with the session.
func (s *Session) Actors() []driver.Actor {
	return s.actors
}

// Run runs the driver loop until Stop is called or the loop fails.
func (s *Session) Run() error {
	return s.driver.Run()
}

// Stop asks the driver loop to stop and waits for the current tick to finish.
func (s *Session) Stop() {
	s.driver.Stop()
}

// Terminate closes the run log and the recorder. Call it after the loop has
// stopped.
func (s *Session) Terminate() {
	s.runRecorder.End()
	s.dataRecorder.Close()
}
