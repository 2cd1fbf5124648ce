package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Emit(level Level, msg string) {
	r.mu.Lock()
	r.events = append(r.events, level.String()+": "+msg)
	r.mu.Unlock()
}

func TestLevelNames(t *testing.T) {
	names := map[Level]string{
		LevelInfo:     "info",
		LevelSuccess:  "success",
		LevelWarning:  "warning",
		LevelError:    "error",
		LevelProgress: "progress",
		Level(42):     "info",
	}
	for l, want := range names {
		assert.Equal(t, want, l.String())
	}
}

func TestEmitterFormatsAndFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	e := NewEmitter(Multi(a, nil, b))
	e.Infof("parsed %d clients", 3)
	e.Warnf("line %d: skipped", 4)

	want := []string{"info: parsed 3 clients", "warning: line 4: skipped"}
	assert.Equal(t, want, a.events)
	assert.Equal(t, want, b.events)
}

func TestNilEmitterDiscards(t *testing.T) {
	var e *Emitter
	assert.NotPanics(t, func() { e.Errorf("boom") })
	assert.NotPanics(t, func() { NewEmitter(nil).Successf("ok") })
}

func TestZapSinkLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewZapSink(zap.New(core))

	sink.Emit(LevelSuccess, "created")
	sink.Emit(LevelProgress, "batch 1/2")
	sink.Emit(LevelWarning, "skipped")
	sink.Emit(LevelError, "failed")

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "success", entries[0].ContextMap()["event"])
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, "progress", entries[1].ContextMap()["event"])
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "failed", entries[3].Message)
}

func TestTracker(t *testing.T) {
	tr := NewTracker()
	tr.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }

	var seen []Stage
	tr.OnChange = func(s State) { seen = append(seen, s.Stage) }

	assert.Equal(t, StageIdle, tr.State().Stage)

	tr.SetStage(StageUploading, 140, "uploading")
	assert.Equal(t, 100.0, tr.State().Percent)
	tr.SetStage(StageProcessing, -5, "processing")
	assert.Equal(t, 0.0, tr.State().Percent)

	tr.Emit(LevelError, "row 1: name is required")
	tr.Fail("1 validation error", "row 1: name is required")

	s := tr.State()
	assert.Equal(t, StageError, s.Stage)
	assert.Equal(t, "row 1: name is required", s.Details)
	require.Len(t, s.Events, 1)
	assert.Equal(t, LevelError, s.Events[0].Level)
	assert.Equal(t, []Stage{StageUploading, StageProcessing, StageProcessing, StageError}, seen)

	s.Events[0].Message = "changed"
	assert.Equal(t, "row 1: name is required", tr.State().Events[0].Message)
}
