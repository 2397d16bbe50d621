// Package state records the history of analysis runs in SQLite: one row per
// run plus the per-county totals it produced.
package state

import (
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one recorded analysis run.
type Run struct {
	ID           string
	Status       RunStatus
	CountiesPath string
	WardsPath    string
	TargetCRS    string
	MapPath      string
	JoinRows     int
	Fragments    int
	ClipTotal    float64
	StartedAt    time.Time
	CompletedAt  *time.Time
	Error        string
}

// Duration returns how long the run took, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// RunInput describes a run about to start.
type RunInput struct {
	CountiesPath string
	WardsPath    string
	TargetCRS    string
}

// CountyTotal is one county's row of a completed run.
type CountyTotal struct {
	County         string
	Population     float64
	Wards          int
	BoundaryLength float64
}

// Outcome is what a successful run produced.
type Outcome struct {
	MapPath   string
	JoinRows  int
	Fragments int
	ClipTotal float64
	Counties  []CountyTotal
}
