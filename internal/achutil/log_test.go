package achutil

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLevelForVerbosity(t *testing.T) {
	assert.Equal(t, logrus.WarnLevel, levelForVerbosity(0))
	assert.Equal(t, logrus.InfoLevel, levelForVerbosity(1))
	assert.Equal(t, logrus.DebugLevel, levelForVerbosity(2))
	assert.Equal(t, logrus.DebugLevel, levelForVerbosity(5))
}

func TestLoggerWritesToRedirectedOutput(t *testing.T) {
	log := NewLogger("test", 2)
	var buf bytes.Buffer
	log.SetOutputForTest(&buf)

	log.Warnf("hello %s", "world")
	assert.Contains(t, buf.String(), "hello world")
}
