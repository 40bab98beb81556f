package session

import (
	"github.com/rs/xid"

	"github.com/shawnantonucci/Tale/datarecording"
	"github.com/shawnantonucci/Tale/driver"
	"github.com/shawnantonucci/Tale/monitoring"
	"github.com/shawnantonucci/Tale/pubsub"
	"github.com/shawnantonucci/Tale/tracing"
)

// Builder can be used to build a session.
type Builder struct {
	driverCfg      driver.Config
	parser         driver.Parser
	commands       *driver.CommandRegistry
	monitorOn      bool
	monitorPort    int
	launchBrowser  bool
	outputFileName string
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{
		driverCfg: driver.DefaultConfig(),
		monitorOn: true,
	}
}

// WithDriverConfig sets the scheduling parameters of the session's driver.
func (b Builder) WithDriverConfig(cfg driver.Config) Builder {
	b.driverCfg = cfg
	return b
}

// WithParser sets the parser that turns input lines into commands.
func (b Builder) WithParser(p driver.Parser) Builder {
	b.parser = p
	return b
}

// WithCommandRegistry sets the command registry the driver dispatches to.
func (b Builder) WithCommandRegistry(r *driver.CommandRegistry) Builder {
	b.commands = r
	return b
}

// WithoutMonitoring sets the session to not use monitoring.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithBrowserLaunch makes the monitor open the dashboard in a browser once
// the server is up.
func (b Builder) WithBrowserLaunch() Builder {
	b.launchBrowser = true
	return b
}

// WithOutputFileName sets the custom output file name for the data recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}

	if !b.monitorOn && b.launchBrowser {
		panic("browser launch cannot be set when monitoring is disabled")
	}
}

// Build builds the session.
func (b Builder) Build() *Session {
	b.parametersMustBeValid()

	s := &Session{
		actorNameIndex: make(map[string]int),
	}

	s.id = xid.New().String()

	outputPath := b.outputFileName
	if outputPath == "" {
		outputPath = "tale_session_" + s.id
	}
	s.dataRecorder = datarecording.NewDataRecorder(outputPath)

	s.runRecorder = datarecording.NewRunRecorder(s.dataRecorder)
	s.runRecorder.Start()

	s.broker = pubsub.NewBroker()

	s.driver = driver.MakeBuilder().
		WithConfig(b.driverCfg).
		WithParser(b.parser).
		WithCommandRegistry(b.commands).
		WithBroker(s.broker).
		Build()

	s.tracer = tracing.NewDBTracer(s.driver.Clock(), s.dataRecorder)
	tracing.TraceDriver(s.driver, s.tracer)

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor()
		if b.monitorPort > 0 {
			s.monitor.WithPortNumber(b.monitorPort)
		}
		if b.launchBrowser {
			s.monitor.WithBrowserLaunch()
		}
		s.monitor.RegisterDriver(s.driver)
		s.monitor.RegisterBroker(s.broker)
		s.monitor.StartServer()
	}

	return s
}
