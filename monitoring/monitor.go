// Package monitoring turns a running game server into a web service that
// operators can inspect and control.
package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"reflect"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/shawnantonucci/Tale/driver"
	"github.com/shawnantonucci/Tale/monitoring/web"
	"github.com/shawnantonucci/Tale/pubsub"
)

// Monitor exposes the state of a game driver over HTTP and allows external
// control of the loop.
type Monitor struct {
	driver      *driver.Driver
	broker      *pubsub.Broker
	actors      []driver.Actor
	portNumber  int
	openBrowser bool
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowserLaunch makes StartServer open the dashboard in the local
// browser.
func (m *Monitor) WithBrowserLaunch() *Monitor {
	m.openBrowser = true

	return m
}

// RegisterDriver registers the driver that runs the game loop. The driver's
// broker is used for topic diagnostics unless another one is registered.
func (m *Monitor) RegisterDriver(d *driver.Driver) {
	m.driver = d

	if m.broker == nil {
		m.broker = d.Broker()
	}
}

// RegisterBroker sets the pub/sub broker to report topic diagnostics for.
func (m *Monitor) RegisterBroker(b *pubsub.Broker) {
	m.broker = b
}

// RegisterActor registers an actor for detail inspection in addition to the
// actors the driver knows about.
func (m *Monitor) RegisterActor(a driver.Actor) {
	m.actors = append(m.actors, a)
}

// StartServer starts the monitor as a web server with a custom port if
// wanted.
func (m *Monitor) StartServer() {
	r := mux.NewRouter()

	fs := web.GetAssets()
	fServer := http.FileServer(fs)
	r.HandleFunc("/api/pause", m.pauseDriver)
	r.HandleFunc("/api/continue", m.continueDriver)
	r.HandleFunc("/api/run", m.run)
	r.HandleFunc("/api/stop", m.stop)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/server", m.serverStatus)
	r.HandleFunc("/api/deferreds", m.listDeferreds)
	r.HandleFunc("/api/heartbeats", m.listHeartbeats)
	r.HandleFunc("/api/suspended", m.listSuspended)
	r.HandleFunc("/api/topics", m.listTopics)
	r.HandleFunc("/api/actors", m.listActors)
	r.HandleFunc("/api/actor/{name}", m.actorDetails)
	r.HandleFunc("/api/field/{json}", m.fieldValue)
	r.HandleFunc("/api/submit/{name}", m.submitLine)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/").Handler(fServer)
	http.Handle("/", r)

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	port := listener.Addr().(*net.TCPAddr).Port
	fmt.Fprintf(os.Stderr,
		"Monitoring game server with http://localhost:%d\n", port)

	if m.openBrowser {
		go func() {
			_ = browser.OpenURL(fmt.Sprintf("http://localhost:%d", port))
		}()
	}

	go func() {
		err = http.Serve(listener, nil)
		dieOnErr(err)
	}()
}

func (m *Monitor) pauseDriver(w http.ResponseWriter, _ *http.Request) {
	m.driver.Pause()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) continueDriver(w http.ResponseWriter, _ *http.Request) {
	m.driver.Continue()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) run(_ http.ResponseWriter, _ *http.Request) {
	go func() {
		err := m.driver.Run()
		if err != nil {
			panic(err)
		}
	}()
}

func (m *Monitor) stop(w http.ResponseWriter, _ *http.Request) {
	m.driver.Stop()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	now := m.driver.Clock().Now()
	fmt.Fprintf(w, "{\"now\":%q}", now.Format(time.RFC3339Nano))
}

func (m *Monitor) serverStatus(w http.ResponseWriter, _ *http.Request) {
	m.writeJSON(w, m.driver.Status())
}

func (m *Monitor) listDeferreds(w http.ResponseWriter, _ *http.Request) {
	m.writeJSON(w, m.driver.PendingDeferreds())
}

func (m *Monitor) listHeartbeats(w http.ResponseWriter, _ *http.Request) {
	m.writeJSON(w, m.driver.HeartbeatNames())
}

func (m *Monitor) listSuspended(w http.ResponseWriter, _ *http.Request) {
	m.writeJSON(w, m.driver.SuspendedCommands())
}

func (m *Monitor) listActors(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprint(w, "[")
	for i, a := range m.allActors() {
		if i > 0 {
			fmt.Fprint(w, ",")
		}

		fmt.Fprintf(w, "%q", a.Name())
	}
	fmt.Fprint(w, "]")
}

func (m *Monitor) actorDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	actor := m.findActorOr404(w, name)
	if actor == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(actor)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type fieldReq struct {
	ActorName string `json:"actor_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) fieldValue(w http.ResponseWriter, r *http.Request) {
	jsonString := mux.Vars(r)["json"]
	req := fieldReq{}

	err := json.Unmarshal([]byte(jsonString), &req)
	if err != nil {
		dieOnErr(err)
	}

	fields := strings.Split(req.FieldName, ".")

	actor := m.findActorOr404(w, req.ActorName)
	if actor == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(actor)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(fields)
	dieOnErr(err)

	err = serializer.Serialize(w)
	dieOnErr(err)
}

// submitLine queues the request body as an input line for the named actor,
// the operator's way of forcing a command.
func (m *Monitor) submitLine(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	actor := m.findActorOr404(w, name)
	if actor == nil {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	dieOnErr(err)

	line := strings.TrimSpace(string(body))
	if line == "" {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "Error: empty command line")
		return
	}

	err = m.driver.Submit(actor, line)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type topicEntry struct {
	Topic string `json:"topic"`
	pubsub.TopicStats
}

func (m *Monitor) listTopics(w http.ResponseWriter, r *http.Request) {
	sortMethod, limit, offset, err := m.topicsParseParams(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	m.writeJSON(w, m.sortAndSelectTopics(sortMethod, limit, offset))
}

func (*Monitor) topicsParseParams(
	r *http.Request,
) (sort string, limit, offset int, err error) {
	sortMethod := r.URL.Query().Get("sort")
	if sortMethod == "" {
		sortMethod = "pending"
	}
	if sortMethod != "pending" && sortMethod != "idle" {
		errStr := fmt.Sprintf(
			"Invalid sort method: %s. Allowed values are `pending` and `idle`",
			sortMethod)
		return "", 0, 0, errors.New(errStr)
	}

	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		limitStr = "0"
	}
	limitNumber, err := strconv.Atoi(limitStr)
	if err != nil {
		return sortMethod, 0, 0, err
	}

	offsetStr := r.URL.Query().Get("offset")
	if offsetStr == "" {
		offsetStr = "0"
	}
	offsetNumber, err := strconv.Atoi(offsetStr)
	if err != nil {
		return sortMethod, limitNumber, 0, err
	}

	return sortMethod, limitNumber, offsetNumber, nil
}

func (m *Monitor) sortAndSelectTopics(
	sortMethod string,
	limit, offset int,
) []topicEntry {
	entries := make([]topicEntry, 0)
	for name, stats := range m.broker.Inspect() {
		entries = append(entries, topicEntry{Topic: name, TopicStats: stats})
	}

	switch sortMethod {
	case "pending":
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].Pending != entries[j].Pending {
				return entries[i].Pending > entries[j].Pending
			}
			return entries[i].Idle < entries[j].Idle
		})
	case "idle":
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].Idle != entries[j].Idle {
				return entries[i].Idle > entries[j].Idle
			}
			return entries[i].Pending > entries[j].Pending
		})
	default:
		panic("Invalid sort method " + sortMethod)
	}

	if offset > len(entries) {
		offset = len(entries)
	}

	end := len(entries)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	return entries[offset:end]
}

type fieldFormatError struct {
}

func (e fieldFormatError) Error() string {
	return "fieldFormatError"
}

func (m *Monitor) walkFields(
	root interface{},
	fields string,
) (reflect.Value, error) {
	elem := reflect.ValueOf(root)

	fieldNames := strings.Split(fields, ".")

	for len(fieldNames) > 0 {
		switch elem.Kind() {
		case reflect.Ptr, reflect.Interface:
			elem = elem.Elem()
		case reflect.Struct:
			elem = elem.FieldByName(fieldNames[0])
			fieldNames = fieldNames[1:]
		case reflect.Slice:
			index, err := strconv.Atoi(fieldNames[0])
			if err != nil {
				return elem, fieldFormatError{}
			}

			elem = elem.Index(index)
			fieldNames = fieldNames[1:]
		default:
			panic(fmt.Sprintf("kind %d not supported", elem.Kind()))
		}
	}

	if elem.Kind() == reflect.Ptr {
		elem = elem.Elem()
	}

	return elem, nil
}

func (m *Monitor) allActors() []driver.Actor {
	var actors []driver.Actor
	if m.driver != nil {
		actors = m.driver.Actors()
	}

	seen := make(map[string]bool, len(actors))
	for _, a := range actors {
		seen[a.Name()] = true
	}

	for _, a := range m.actors {
		if !seen[a.Name()] {
			actors = append(actors, a)
		}
	}

	return actors
}

func (m *Monitor) findActorOr404(
	w http.ResponseWriter,
	name string,
) driver.Actor {
	var actor driver.Actor
	for _, a := range m.allActors() {
		if a.Name() == name {
			actor = a
		}
	}

	if actor == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Actor not found"))
		dieOnErr(err)
	}

	return actor
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	rsp := resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	}

	m.writeJSON(w, rsp)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	m.writeJSON(w, prof)
}

func (m *Monitor) writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
