package datarecording

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// runInfo is one property of the current run, fed to a DataRecorder.
type runInfo struct {
	Property string
	Value    string
}

// RunRecorder records metadata about the current server run.
type RunRecorder struct {
	tablename string
	recorder  DataRecorder
	entries   []runInfo
}

// NewRunRecorder creates a RunRecorder writing through the given recorder.
func NewRunRecorder(recorder DataRecorder) *RunRecorder {
	r := &RunRecorder{
		recorder: recorder,
		entries:  []runInfo{},
	}

	r.setupTable()

	return r
}

func (r *RunRecorder) setupTable() {
	name := "run_info"
	r.tablename = name

	sampleEntry := runInfo{}
	r.recorder.CreateTable(name, sampleEntry)
}

// Start captures the start time, command line, and working directory of the
// current run.
func (r *RunRecorder) Start() {
	currentTime := time.Now()
	startTime := currentTime.Format("2006-01-02 15:04:05.000000000")
	timeEntry := runInfo{"Start Time", startTime}
	r.entries = append(r.entries, timeEntry)

	cmd := strings.Join(os.Args, " ")
	cmdEntry := runInfo{"Command", cmd}
	r.entries = append(r.entries, cmdEntry)

	ex, err := os.Executable()
	if err != nil {
		panic(err)
	}

	cwd := filepath.Dir(ex)
	cwdEntry := runInfo{"Working Directory", cwd}
	r.entries = append(r.entries, cwdEntry)
}

// End writes the captured properties along with the end time of the run.
func (r *RunRecorder) End() {
	for _, entry := range r.entries {
		r.recorder.InsertData(r.tablename, entry)
	}

	endTime := time.Now()
	endValue := endTime.Format("2006-01-02 15:04:05.000000000")
	timeEntry := runInfo{"End Time", endValue}
	r.recorder.InsertData(r.tablename, timeEntry)

	r.entries = nil

	r.recorder.Flush()
}
