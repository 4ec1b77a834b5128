package testutil

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestVerbose(t *testing.T) {
	assert.True(t, verbose([]string{"-test.v=true"}))
	assert.True(t, verbose([]string{"-test.run=X", "-test.v=test2json"}))
	assert.True(t, verbose([]string{"-test.v"}))
	assert.False(t, verbose([]string{"-test.v=false"}))
	assert.False(t, verbose(nil))
}

func TestDisableLogging(t *testing.T) {
	logger := logrus.StandardLogger()
	original := logger.Out
	defer logger.SetOutput(original)

	var buf bytes.Buffer
	logger.SetOutput(&buf)

	reset := DisableLogging()
	logrus.Info("hidden")
	reset()
	logrus.Info("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
