package audioconv

import (
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(n, rate int, freq float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestEncodedWAVDecodesBack(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "take.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	in := sine(TargetRate/2, TargetRate, 440)
	require.NoError(t, EncodeWAV(f, in, TargetRate))
	require.NoError(t, f.Close())

	out, err := ConvertFileToPCM16k(context.Background(), path, Options{})
	require.NoError(t, err)
	require.Len(t, out, len(in))

	for i := range in {
		assert.InDelta(t, in[i], out[i], 1e-3, "sample %d", i)
	}
}

func TestWAVIsResampledTo16k(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "speech.bin")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, EncodeWAV(f, sine(48000, 48000, 220), 48000))
	require.NoError(t, f.Close())

	// no extension: sniffed from the RIFF header
	out, err := ConvertFileToPCM16k(context.Background(), path, Options{MaxSamples: 8000})
	require.NoError(t, err)
	assert.Len(t, out, 8000)
}

func TestUnsupportedFormat(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello there"), 0o644))

	_, err := ConvertFileToPCM16k(context.Background(), path, Options{})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestDownmix(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []float32{0.5, 0}, Downmix([]float32{1, 0, 0.5, -0.5}, 2))

	mono := []float32{0.1, 0.2}
	assert.Equal(t, mono, Downmix(mono, 1))
}

func TestResample(t *testing.T) {
	t.Parallel()

	in := []float32{0, 1, 2, 3}
	assert.Equal(t, in, Resample(in, 16000, 16000))

	up := Resample(in, 8000, 16000)
	require.Len(t, up, 8)
	assert.InDelta(t, 0.5, up[1], 1e-6)
	assert.InDelta(t, 3, up[7], 1e-6)

	down := Resample(sine(48000, 48000, 100), 48000, 16000)
	assert.Len(t, down, 16000)
}

func TestFloat32ToInt16Clips(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []int16{32767, -32767, 0}, Float32ToInt16([]float32{2, -3, 0}))
}

func TestBufferSeeks(t *testing.T) {
	t.Parallel()

	var b Buffer
	_, err := b.Write([]byte("abcdef"))
	require.NoError(t, err)

	pos, err := b.Seek(2, io.SeekStart)
	require.NoError(t, err)
	assert.EqualValues(t, 2, pos)

	_, err = b.Write([]byte("XY"))
	require.NoError(t, err)
	assert.Equal(t, "abXYef", string(b.Bytes()))

	_, err = b.Seek(-10, io.SeekCurrent)
	assert.Error(t, err)
}

func TestDecodeWAVFromBuffer(t *testing.T) {
	t.Parallel()

	var b Buffer
	require.NoError(t, EncodeWAV(&b, sine(800, TargetRate, 300), TargetRate))

	out, err := DecodeWAV(b.Bytes(), Options{})
	require.NoError(t, err)
	assert.Len(t, out, 800)
}
