package progress

import (
	"go.uber.org/zap"
)

type zapSink struct {
	logger *zap.Logger
}

// NewZapSink writes events to a zap logger. Success and progress events are
// logged at info level; every entry is tagged with its event kind.
func NewZapSink(logger *zap.Logger) Sink {
	if logger == nil {
		logger = zap.L()
	}
	return &zapSink{logger: logger}
}

func (s *zapSink) Emit(level Level, msg string) {
	field := zap.String("event", level.String())
	switch level {
	case LevelWarning:
		s.logger.Warn(msg, field)
	case LevelError:
		s.logger.Error(msg, field)
	default:
		s.logger.Info(msg, field)
	}
}
