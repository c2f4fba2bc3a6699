package sinklog

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/twmb/franz-go/pkg/kgo"
)

var _ kgo.Logger = (*Logger)(nil)

func TestLoggerCarriesLabelsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)
	base.SetFormatter(&logrus.JSONFormatter{})

	l := New(base, "orders", "sink1", "0")
	l.Infof("hello %s", "world")

	out := buf.String()
	assert.Contains(t, out, `"topic":"orders"`)
	assert.Contains(t, out, `"sink_id":"sink1"`)
	assert.Contains(t, out, `"worker_id":"0"`)
	assert.Contains(t, out, "hello world")
}

func TestLogImplementsKgoLoggerInterface(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)

	l := New(base, "orders", "sink1", "0")
	l.Log(kgo.LogLevelWarn, "delivery failed", "topic", "orders", "partition", 3)

	assert.Contains(t, buf.String(), "delivery failed")
	assert.Equal(t, kgo.LogLevelInfo, l.Level())
}
