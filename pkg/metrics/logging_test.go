package metrics

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestFlattenEntry(t *testing.T) {
	e := logrus.NewEntry(logrus.New())
	e.Message = "plain"
	assert.Equal(t, "plain", flattenEntry(e))

	e = e.WithError(errors.New("boom")).WithField("signature", "abc")
	e.Message = "failed"
	assert.Equal(t, `message="failed", error="boom", data={"signature":"abc"}`, flattenEntry(e))
}
