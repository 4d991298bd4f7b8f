package emit

import (
	"github.com/sirupsen/logrus"
)

// LogEmitter writes events as structured logrus entries. Failure events are
// logged at error level, retries at warn level and everything else at debug.
type LogEmitter struct {
	log logrus.FieldLogger
}

// NewLogEmitter returns a LogEmitter writing to log, or to the standard
// logrus logger when log is nil.
func NewLogEmitter(log logrus.FieldLogger) *LogEmitter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogEmitter{log: log}
}

// Emit implements Emitter.
func (l *LogEmitter) Emit(event Event) {
	fields := logrus.Fields{
		"run_id": event.RunID,
		"step":   event.Step,
	}
	if event.NodeID != "" {
		fields["node_id"] = event.NodeID
	}
	for k, v := range event.Meta {
		fields[k] = v
	}
	entry := l.log.WithFields(fields)

	switch event.Msg {
	case MsgNodeError, MsgRunFailed:
		entry.Error(event.Msg)
	case MsgNodeRetry:
		entry.Warn(event.Msg)
	case MsgRunComplete:
		entry.Info(event.Msg)
	default:
		entry.Debug(event.Msg)
	}
}
