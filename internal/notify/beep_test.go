package notify

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/faiface/beep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxwork/pkg/audioconv"
)

func TestDecodeWAV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cue.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, audioconv.EncodeWAV(f, make([]float32, 1600), 16000))
	require.NoError(t, f.Close())

	rc, err := os.Open(path)
	require.NoError(t, err)

	s, format, err := Decode(path, rc)
	require.NoError(t, err)
	defer s.Close()

	assert.EqualValues(t, 16000, format.SampleRate)
	assert.Equal(t, 1600, s.Len())
}

func TestDecodeUnsupported(t *testing.T) {
	t.Parallel()

	_, _, err := Decode("cue.flac", io.NopCloser(nil))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestTrackDrainsAndSignals(t *testing.T) {
	t.Parallel()

	tr := newTrack(beep.Silence(100))
	buf := make([][2]float64, 64)

	n, ok := tr.ctrl.Stream(buf)
	assert.True(t, ok)
	assert.Equal(t, 64, n)

	for ok {
		_, ok = tr.ctrl.Stream(buf)
	}

	select {
	case <-tr.done:
	default:
		t.Fatal("done not closed after the stream drained")
	}
}

func TestTrackStopEndsOnlyThatTrack(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	cancelled := newTrack(beep.Silence(1000))
	other := newTrack(beep.Silence(1000))

	mix := beep.Mix(cancelled.ctrl, other.ctrl)
	buf := make([][2]float64, 64)
	_, ok := mix.Stream(buf)
	require.True(t, ok)

	cancelled.stop(&mu)

	n, ok := cancelled.ctrl.Stream(buf)
	assert.False(t, ok)
	assert.Zero(t, n)

	n, ok = other.ctrl.Stream(buf)
	assert.True(t, ok)
	assert.Equal(t, 64, n)

	select {
	case <-cancelled.done:
		t.Fatal("stopped track reported a finished stream")
	default:
	}
}
