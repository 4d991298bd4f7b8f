package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dshills/ria/pipeline/emit"
)

// EventPublisher is the publishing side of a job stream. *Publisher
// implements it.
type EventPublisher interface {
	Publish(ctx context.Context, jobID, eventType string, data any) error
}

// Emitter forwards pipeline lifecycle events to the job stream named by the
// event's RunID:
//
//   - node_retry   -> status {"status":"retrying","message":...,"node":...,"attempt":n}
//   - run_complete -> done   {"status":"complete"}
//   - run_failed   -> error  {"detail":...}
//
// Other events are not forwarded; nodes publish their own progress.
type Emitter struct {
	pub     EventPublisher
	log     logrus.FieldLogger
	timeout time.Duration
}

// NewEmitter returns an Emitter publishing through pub. Publish failures are
// logged to log, since emit.Emitter cannot return errors.
func NewEmitter(pub EventPublisher, log logrus.FieldLogger) *Emitter {
	return &Emitter{pub: pub, log: log, timeout: 5 * time.Second}
}

// Emit implements emit.Emitter.
func (e *Emitter) Emit(event emit.Event) {
	eventType, data, ok := translate(event)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	if err := e.pub.Publish(ctx, event.RunID, eventType, data); err != nil && e.log != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"job_id": event.RunID,
			"event":  eventType,
		}).Error("failed to publish pipeline event")
	}
}

func translate(event emit.Event) (string, map[string]any, bool) {
	switch event.Msg {
	case emit.MsgNodeRetry:
		attempt := event.Meta["attempt"]
		return EventStatus, map[string]any{
			"status":  "retrying",
			"message": fmt.Sprintf("Retrying %s (attempt %v)", event.NodeID, attempt),
			"node":    event.NodeID,
			"attempt": attempt,
		}, true
	case emit.MsgRunComplete:
		return EventDone, map[string]any{"status": "complete"}, true
	case emit.MsgRunFailed:
		detail, _ := event.Meta["error"].(string)
		if detail == "" {
			detail = "analysis failed"
		}
		return EventError, map[string]any{"detail": detail}, true
	}
	return "", nil, false
}
