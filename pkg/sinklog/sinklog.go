// Package sinklog provides the structured logger every component in this
// repo logs through. It wraps logrus (grounded on
// other_examples/92b2abd6_bharathv-kgo-verifier__pkg-worker-verifier-transactional_producer_worker.go.go,
// which logs franz-go transaction lifecycle events via
// "log \"github.com/sirupsen/logrus\"") and also implements the real
// kgo.Logger interface so it can be handed straight to kgo.WithLogger.
package sinklog

import (
	"github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Logger wraps a *logrus.Entry pre-populated with the (topic, sink_id,
// worker_id) label triple the spec requires for metrics, so every log
// line from a given sink instance carries the same identifying fields.
type Logger struct {
	entry *logrus.Entry
}

// New builds a Logger for one sink instance.
func New(base *logrus.Logger, topic, sinkID, workerID string) *Logger {
	if base == nil {
		base = logrus.StandardLogger()
	}
	return &Logger{entry: base.WithFields(logrus.Fields{
		"topic":     topic,
		"sink_id":   sinkID,
		"worker_id": workerID,
	})}
}

func (l *Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }

// Level implements kgo.Logger.
func (l *Logger) Level() kgo.LogLevel { return kgo.LogLevelInfo }

// Log implements kgo.Logger, translating franz-go's level+keyvals shape
// into logrus fields.
func (l *Logger) Log(level kgo.LogLevel, msg string, keyvals ...any) {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		fields[key] = keyvals[i+1]
	}
	entry := l.entry.WithFields(fields)
	switch level {
	case kgo.LogLevelError:
		entry.Error(msg)
	case kgo.LogLevelWarn:
		entry.Warn(msg)
	case kgo.LogLevelInfo:
		entry.Info(msg)
	default:
		entry.Debug(msg)
	}
}
