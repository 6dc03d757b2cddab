package debuglog

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_EvictsOldest(t *testing.T) {
	r := NewRing(3)
	for i := 1; i <= 5; i++ {
		r.Add(fmt.Sprintf("line %d", i))
	}
	assert.Equal(t, []string{"line 3", "line 4", "line 5"}, r.Lines())
}

func TestRing_PartiallyFilled(t *testing.T) {
	r := NewRing(0)
	r.Add("only")
	assert.Equal(t, []string{"only"}, r.Lines())
	assert.Len(t, r.entries, DefaultSize)
}

func TestRing_AsLogrusHook(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	ring := NewRing(10)
	logger.AddHook(ring)

	logger.Debug("hidden")
	logger.Info("[SESSION] tenant t1 READY")
	logger.WithError(errors.New("boom")).Warn("[SESSION] probe failed")

	lines := ring.Lines()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[INFO] [SESSION] tenant t1 READY")
	assert.Contains(t, lines[1], "[WARN] [SESSION] probe failed error=boom")
}
