package progress

import (
	"sync"
	"time"
)

// Stage is the coarse state of an upload as shown by an interactive client.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageProcessing Stage = "processing"
	StageUploading  Stage = "uploading"
	StageCompleted  Stage = "completed"
	StageError      Stage = "error"
)

// Event is a recorded run event.
type Event struct {
	Time    time.Time `json:"time"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
}

// State is a point-in-time copy of a Tracker.
type State struct {
	Stage   Stage   `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
	Details string  `json:"details,omitempty"`
	Events  []Event `json:"events"`
}

// Tracker keeps the state of one upload for a UI. It is a Sink, so it can be
// handed straight to the pipeline; OnChange fires after every update.
type Tracker struct {
	mu       sync.Mutex
	state    State
	now      func() time.Time
	OnChange func(State)
}

func NewTracker() *Tracker {
	return &Tracker{
		state: State{Stage: StageIdle, Message: "select a CSV file to upload"},
		now:   time.Now,
	}
}

func (t *Tracker) Emit(level Level, msg string) {
	t.mu.Lock()
	t.state.Events = append(t.state.Events, Event{Time: t.now(), Level: level, Message: msg})
	t.mu.Unlock()
	t.notify()
}

// SetStage moves the tracker to a new stage. Percent is clamped to [0, 100].
func (t *Tracker) SetStage(stage Stage, percent float64, msg string) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	t.mu.Lock()
	t.state.Stage = stage
	t.state.Percent = percent
	t.state.Message = msg
	t.state.Details = ""
	t.mu.Unlock()
	t.notify()
}

// Fail moves the tracker to StageError with the given details.
func (t *Tracker) Fail(msg, details string) {
	t.mu.Lock()
	t.state.Stage = StageError
	t.state.Message = msg
	t.state.Details = details
	t.mu.Unlock()
	t.notify()
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state
	s.Events = append([]Event(nil), t.state.Events...)
	return s
}

func (t *Tracker) notify() {
	if t.OnChange != nil {
		t.OnChange(t.State())
	}
}
