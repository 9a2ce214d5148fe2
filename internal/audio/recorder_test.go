package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(level float32, n int) []float32 {
	f := make([]float32, n)
	for i := range f {
		if i%2 == 0 {
			f[i] = level
		} else {
			f[i] = -level
		}
	}
	return f
}

func TestFrameRMS(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.5, FrameRMS(frame(0.5, 320)), 1e-6)
	assert.Zero(t, FrameRMS(nil))
}

func TestSilenceDetectorWaitsForSpeech(t *testing.T) {
	t.Parallel()

	// 100ms pause at 20ms frames is five silent frames
	v := NewSilenceDetector(0.1, 100*time.Millisecond, 320)

	for i := 0; i < 20; i++ {
		assert.False(t, v.Push(frame(0.01, 320)), "leading silence never ends the take")
	}
	assert.False(t, v.Heard())
	assert.Empty(t, v.Samples())

	assert.False(t, v.Push(frame(0.4, 320)))
	assert.False(t, v.Push(frame(0.4, 320)))
	assert.True(t, v.Heard())

	for i := 0; i < 4; i++ {
		assert.False(t, v.Push(frame(0.0, 320)))
	}
	assert.True(t, v.Push(frame(0.0, 320)))

	// two speech frames plus four kept silent frames
	assert.Len(t, v.Samples(), 6*320)
}

func TestSilenceDetectorSpeechResetsPause(t *testing.T) {
	t.Parallel()

	v := NewSilenceDetector(0.1, 60*time.Millisecond, 320)

	v.Push(frame(0.5, 320))
	v.Push(frame(0, 320))
	v.Push(frame(0, 320))
	assert.False(t, v.Push(frame(0.5, 320)), "speech restarts the pause count")
	v.Push(frame(0, 320))
	v.Push(frame(0, 320))
	assert.True(t, v.Push(frame(0, 320)))
}

func TestSilenceDetectorLimitCountsFromSpeech(t *testing.T) {
	t.Parallel()

	// 200ms limit at 20ms frames is ten frames of take
	v := NewSilenceDetector(0.1, time.Second, 320)
	v.Limit(200 * time.Millisecond)

	// a minute of silence before anyone speaks
	for i := 0; i < 3000; i++ {
		require.False(t, v.Push(frame(0.01, 320)))
	}
	assert.False(t, v.Heard())

	for i := 0; i < 9; i++ {
		require.False(t, v.Push(frame(0.4, 320)), "frame %d", i)
	}
	assert.True(t, v.Push(frame(0.4, 320)))
	assert.Len(t, v.Samples(), 10*320)
}

func TestSilenceDetectorUnlimitedByDefault(t *testing.T) {
	t.Parallel()

	v := NewSilenceDetector(0.1, time.Second, 320)
	for i := 0; i < 2000; i++ {
		require.False(t, v.Push(frame(0.4, 320)))
	}
	assert.Len(t, v.Samples(), 2000*320)
}
