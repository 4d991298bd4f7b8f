// Package logging configures logrus and carries request IDs through contexts.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultRequestID is used for work that did not originate from an HTTP request.
const DefaultRequestID = "system"

type requestIDKey struct{}

// New returns a logger writing to stdout at the given level. Format "text"
// selects the human readable formatter; anything else produces JSON with
// timestamp, level and msg keys.
func New(level, format string) *logrus.Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter is New with an explicit output.
func NewWithWriter(w io.Writer, level, format string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(ParseLevel(level))

	if strings.EqualFold(format, "text") {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
			},
		})
	}
	return log
}

// ParseLevel maps a level name to a logrus level, falling back to info.
func ParseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// WithRequestID returns a copy of ctx carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID stored in ctx or DefaultRequestID.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return DefaultRequestID
	}
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return DefaultRequestID
}

// FromContext returns an entry tagged with the request ID found in ctx.
func FromContext(ctx context.Context, log logrus.FieldLogger) *logrus.Entry {
	return log.WithField("request_id", RequestID(ctx))
}
