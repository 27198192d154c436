package log

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRefreshStepLogger_WalksFixedStages(t *testing.T) {
	sl := NewRefreshStepLogger("m1")
	assert.Equal(t, refreshStages, sl.steps)
	assert.Equal(t, -1, sl.currentStep)

	sl.StartStep("ingest")
	assert.Equal(t, 0, sl.currentStep)

	sl.StartStep("score")
	assert.Equal(t, 1, sl.currentStep)
	assert.Greater(t, sl.stepTimes[0], time.Duration(0))

	sl.Finish()
}

func TestStepLogger_UnknownStepIsIgnored(t *testing.T) {
	sl := NewStepLogger("test", []string{"a", "b"})
	sl.StartStep("a")
	sl.StartStep("does-not-exist")
	assert.Equal(t, 0, sl.currentStep)
}

func TestSpinner_CyclesThroughChars(t *testing.T) {
	s := NewSpinner(SpinnerPipeline)
	first := s.Current()
	s.current = (s.current + 1) % len(s.chars)
	assert.NotEqual(t, first, s.Current())
}
