// Package progress carries leveled run events from the ingestion pipeline to
// whatever is driving it: a terminal logger or a stateful progress view.
package progress

import (
	"fmt"
)

// Level is the severity of a run event.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
	LevelProgress
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelProgress:
		return "progress"
	default:
		return "info"
	}
}

// Sink receives run events. Implementations must be safe for concurrent use;
// batch workers emit from many goroutines at once.
type Sink interface {
	Emit(level Level, msg string)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(level Level, msg string)

func (f SinkFunc) Emit(level Level, msg string) { f(level, msg) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Level, string) {})

type multiSink []Sink

func (m multiSink) Emit(level Level, msg string) {
	for _, s := range m {
		s.Emit(level, msg)
	}
}

// Multi fans events out to every non-nil sink.
func Multi(sinks ...Sink) Sink {
	var out multiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Emitter wraps a Sink with printf-style helpers. A nil *Emitter or one
// built over a nil Sink discards events.
type Emitter struct {
	sink Sink
}

func NewEmitter(sink Sink) *Emitter {
	if sink == nil {
		sink = Discard
	}
	return &Emitter{sink: sink}
}

func (e *Emitter) emit(level Level, format string, args ...any) {
	if e == nil {
		return
	}
	e.sink.Emit(level, fmt.Sprintf(format, args...))
}

func (e *Emitter) Infof(format string, args ...any)     { e.emit(LevelInfo, format, args...) }
func (e *Emitter) Successf(format string, args ...any)  { e.emit(LevelSuccess, format, args...) }
func (e *Emitter) Warnf(format string, args ...any)     { e.emit(LevelWarning, format, args...) }
func (e *Emitter) Errorf(format string, args ...any)    { e.emit(LevelError, format, args...) }
func (e *Emitter) Progressf(format string, args ...any) { e.emit(LevelProgress, format, args...) }
