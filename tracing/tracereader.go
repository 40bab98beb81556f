package tracing

import (
	"database/sql"
	"fmt"
	"time"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
)

// ActionQuery is used to define the actions to be queried. Not all the fields
// have to be set. If a field is empty, the criteria is ignored.
type ActionQuery struct {
	// Use ID to select a single action by its ID.
	ID string

	// Use ParentID to select all the actions that are children of an action.
	ParentID string

	// Use Kind to select all the actions that are of a kind.
	Kind string

	// Use Location to select all the actions performed at a location.
	Location string

	// Enable time range selection.
	EnableTimeRange bool

	// Use StartTime and EndTime to select actions that overlap with the
	// given range, in seconds.
	StartTime, EndTime float64

	// EnableParentAction will also query the parent of the selected actions.
	EnableParentAction bool
}

// TraceReader can parse a recorded trace.
type TraceReader interface {
	// ListLocations returns all the locations used in the trace.
	ListLocations() []string

	// ListActions queries actions.
	ListActions(query ActionQuery) []Action

	// ListMilestones returns the milestones attached to an action.
	ListMilestones(actionID string) []Milestone
}

// DBTraceReader reads traces written by a DBTracer.
type DBTraceReader struct {
	*sql.DB
}

// NewDBTraceReader opens the trace database stored in filename.
func NewDBTraceReader(filename string) *DBTraceReader {
	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(err)
	}

	return &DBTraceReader{
		DB: db,
	}
}

// ListLocations returns the distinct locations that appear in the trace.
func (r *DBTraceReader) ListLocations() []string {
	var locations []string

	rows, err := r.Query("SELECT DISTINCT Location FROM trace")
	if err != nil {
		panic(err)
	}
	defer rows.Close()

	for rows.Next() {
		var location string
		err := rows.Scan(&location)
		if err != nil {
			panic(err)
		}
		locations = append(locations, location)
	}

	return locations
}

// ListActions returns the actions matching the query.
func (r *DBTraceReader) ListActions(query ActionQuery) []Action {
	sqlStr := r.prepareActionQueryStr(query)

	rows, err := r.Query(sqlStr)
	if err != nil {
		panic(err)
	}
	defer rows.Close()

	actions := []Action{}
	for rows.Next() {
		a := Action{}
		pa := Action{}

		var start, end float64
		var paStart, paEnd float64

		if query.EnableParentAction {
			a.ParentAction = &pa
			err := rows.Scan(
				&a.ID,
				&a.ParentID,
				&a.Kind,
				&a.What,
				&a.Location,
				&start,
				&end,
				&pa.ID,
				&pa.ParentID,
				&pa.Kind,
				&pa.What,
				&pa.Location,
				&paStart,
				&paEnd,
			)
			if err != nil {
				panic(err)
			}

			pa.StartTime = secondsToTime(paStart)
			pa.EndTime = secondsToTime(paEnd)
		} else {
			err := rows.Scan(
				&a.ID,
				&a.ParentID,
				&a.Kind,
				&a.What,
				&a.Location,
				&start,
				&end,
			)
			if err != nil {
				panic(err)
			}
		}

		a.StartTime = secondsToTime(start)
		a.EndTime = secondsToTime(end)

		actions = append(actions, a)
	}

	return actions
}

// ListMilestones returns the milestones recorded for the given action.
func (r *DBTraceReader) ListMilestones(actionID string) []Milestone {
	rows, err := r.Query(
		"SELECT ID, ActionID, Kind, What, Location, Time "+
			"FROM trace_milestones WHERE ActionID = ?", actionID)
	if err != nil {
		panic(err)
	}
	defer rows.Close()

	milestones := []Milestone{}
	for rows.Next() {
		m := Milestone{}

		var seconds float64
		var kind string

		err := rows.Scan(&m.ID, &m.ActionID, &kind, &m.What, &m.Location,
			&seconds)
		if err != nil {
			panic(err)
		}

		m.Kind = MilestoneKind(kind)
		m.Time = secondsToTime(seconds)

		milestones = append(milestones, m)
	}

	return milestones
}

func (r *DBTraceReader) prepareActionQueryStr(query ActionQuery) string {
	sqlStr := `
		SELECT
			a.ID,
			a.ParentID,
			a.Kind,
			a.What,
			a.Location,
			a.StartTime,
			a.EndTime
	`

	if query.EnableParentAction {
		sqlStr += `,
			pa.ID as parent_id,
			pa.ParentID as parent_parent_id,
			pa.Kind as parent_kind,
			pa.What as parent_what,
			pa.Location as parent_location,
			pa.StartTime as parent_start_time,
			pa.EndTime as parent_end_time
		`
	}

	sqlStr += `
		FROM trace a
	`

	if query.EnableParentAction {
		sqlStr += `
			LEFT JOIN trace pa
			ON a.ParentID = pa.ID
		`
	}

	sqlStr = r.addQueryConditionsToQueryStr(sqlStr, query)

	return sqlStr
}

func (r *DBTraceReader) addQueryConditionsToQueryStr(
	sqlStr string,
	query ActionQuery,
) string {
	sqlStr += `
		WHERE 1=1
	`

	if query.ID != "" {
		sqlStr += `
			AND a.ID = '` + query.ID + `'
		`
	}

	if query.ParentID != "" {
		sqlStr += `
			AND a.ParentID = '` + query.ParentID + `'
		`
	}

	if query.Kind != "" {
		sqlStr += `
			AND a.Kind = '` + query.Kind + `'
		`
	}

	if query.Location != "" {
		sqlStr += `
			AND a.Location = '` + query.Location + `'
		`
	}

	if query.EnableTimeRange {
		sqlStr += fmt.Sprintf(
			"AND a.EndTime > %.15f AND a.StartTime < %.15f",
			query.StartTime,
			query.EndTime)
	}

	return sqlStr
}

func secondsToTime(seconds float64) time.Time {
	return time.Unix(0, int64(seconds*float64(time.Second)))
}
