package session

import (
	"fmt"
	"slices"
	"time"

	"github.com/desertthunder/vsa/internal/models"
	"github.com/desertthunder/vsa/internal/shared"
)

// Phase is the lifecycle position of the tracked run.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRequested
	PhaseStreaming
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseRequested:
		return "requested"
	case PhaseStreaming:
		return "streaming"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Terminal reports whether the phase accepts no further transitions.
func (p Phase) Terminal() bool { return p == PhaseCompleted || p == PhaseFailed }

// RunState is an immutable view of the tracked run.
type RunState struct {
	Phase      Phase
	AnalysisID string
	URL        string
	Steps      []models.StepEvent
	History    []models.StepEvent // every step applied to the run, kept after completion
	Detail     *models.CompletedDetail
	Failure    error
}

// Tracker follows at most one in-flight run.
//
// The analysis id is unknown until the backend creates the job, so the first event after a start binds it.
// Ids of superseded runs are retired and can never bind again. Terminal phases are sticky. A run superseded before
// any of its events arrived has no id to retire, so its first event binds in place of the new run.
// Owned by the session reducer; not safe for concurrent use.
type Tracker struct {
	state   RunState
	retired map[string]struct{}
	now     func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{retired: make(map[string]struct{}), now: time.Now}
}

// State returns a copy of the current run state.
func (t *Tracker) State() RunState {
	s := t.state
	s.Steps = slices.Clone(t.state.Steps)
	s.History = slices.Clone(t.state.History)
	if t.state.Detail != nil {
		d := *t.state.Detail
		s.Detail = &d
	}
	return s
}

// Begin discards the current run unconditionally and waits for the server to report the new run's id.
func (t *Tracker) Begin(url string) {
	t.retire()
	t.state = RunState{Phase: PhaseRequested, URL: url}
}

// Reset discards the current run and returns to idle.
func (t *Tracker) Reset() {
	t.retire()
	t.state = RunState{Phase: PhaseIdle}
}

// PushStep appends step when id belongs to the tracked run. It reports whether the step was applied.
func (t *Tracker) PushStep(id string, step models.StepEvent) bool {
	if !t.bind(id) {
		return false
	}
	t.state.Phase = PhaseStreaming
	t.state.Steps = append(t.state.Steps, step)
	t.state.History = append(t.state.History, step)
	return true
}

// Complete records the terminal detail and clears the step log, leaving History intact. It reports whether the
// transition happened.
func (t *Tracker) Complete(d models.CompletedDetail) bool {
	if !t.bind(d.AnalysisID) {
		return false
	}
	if d.URL == "" {
		d.URL = t.state.URL
	}

	t.state.Phase = PhaseCompleted
	t.state.Steps = nil
	t.state.Detail = &d
	return true
}

// Fail marks the run failed and ends the step log with one error entry carrying message, even when the
// server already streamed an error-status step. Later failures are ignored since the phase is terminal.
//
// An empty id is accepted only while waiting for the first event: the backend rejects invalid requests before a
// job exists.
func (t *Tracker) Fail(id, message string) bool {
	if id == "" {
		if t.state.Phase != PhaseRequested {
			return false
		}
	} else if !t.bind(id) {
		return false
	}

	t.state.Phase = PhaseFailed
	t.state.Failure = fmt.Errorf("%w: %s", shared.ErrRun, message)
	failure := models.StepEvent{
		Step:      "error",
		Status:    models.StatusError,
		Message:   message,
		Timestamp: models.Timestamp{Time: t.now().UTC()},
	}
	t.state.Steps = append(t.state.Steps, failure)
	t.state.History = append(t.state.History, failure)
	return true
}

// bind reports whether an event for id belongs to the tracked run, binding id on the first event after Begin.
func (t *Tracker) bind(id string) bool {
	if id == "" {
		return false
	}

	switch t.state.Phase {
	case PhaseRequested:
		if _, stale := t.retired[id]; stale {
			return false
		}
		t.state.AnalysisID = id
		return true
	case PhaseStreaming:
		return id == t.state.AnalysisID
	default:
		return false
	}
}

func (t *Tracker) retire() {
	if t.state.AnalysisID != "" {
		t.retired[t.state.AnalysisID] = struct{}{}
	}
}
