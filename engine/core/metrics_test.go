package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrameMetrics(t *testing.T) {
	m := NewFrameMetrics()

	for i := 0; i < 4; i++ {
		m.Update(0.25)
	}
	assert.Zero(t, m.FPS(), "less than a second accumulated")

	m.Update(0.25)
	assert.Equal(t, 5.0, m.FPS())
	assert.Zero(t, m.FrameTime(), "average needs a full window")

	for i := 5; i < int(AVG_COUNT); i++ {
		m.Update(0.25)
	}
	fps, frameTime := m.Frame()
	assert.Equal(t, 250.0, frameTime)
	// The remainder of the first second carries over: four frames per refresh.
	assert.Equal(t, 4.0, fps)
}

func TestClock(t *testing.T) {
	now := time.Unix(100, 0)
	c := NewClock()
	c.now = func() time.Time { return now }

	c.Update()
	assert.Zero(t, c.Elapsed(), "not started")

	c.Start()
	now = now.Add(1500 * time.Millisecond)
	assert.Zero(t, c.Elapsed(), "only Update moves the clock")
	c.Update()
	assert.Equal(t, 1.5, c.Elapsed())

	c.Stop()
	now = now.Add(time.Second)
	c.Update()
	assert.Equal(t, 1.5, c.Elapsed())

	c.Start()
	assert.Zero(t, c.Elapsed())
}
