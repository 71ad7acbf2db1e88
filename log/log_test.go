package log_test

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"pipelined.dev/demix"
	"pipelined.dev/demix/log"
)

func TestGetLogger(t *testing.T) {
	l := log.GetLogger("warn")
	assert.Equal(t, logrus.WarnLevel, l.GetLevel())

	l = log.GetLogger("not a level")
	assert.Contains(t, []logrus.Level{logrus.InfoLevel, logrus.DebugLevel}, l.GetLevel())
}

func TestComponent(t *testing.T) {
	l := log.GetLogger("debug")
	var buf bytes.Buffer
	l.SetOutput(&buf)

	var logger demix.Logger = log.Component(l, "engine", "abc")
	logger.Info("hello")
	assert.Contains(t, buf.String(), "component=engine")
	assert.Contains(t, buf.String(), "id=abc")
	assert.Contains(t, buf.String(), "hello")
}
