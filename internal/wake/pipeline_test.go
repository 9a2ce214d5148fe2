package wake

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stageCounter struct {
	embeds    int
	classify  int
	lastInput []float32
}

func fakePipeline(c *stageCounter) *pipeline {
	p := newPipeline()
	p.mel = func(chunk []float32) ([]float32, error) {
		out := make([]float32, melFrames*melBins)
		for i := range out {
			out[i] = chunk[0]
		}
		return out, nil
	}
	p.embed = func(window []float32) ([]float32, error) {
		c.embeds++
		out := make([]float32, embedDim)
		for i := range out {
			out[i] = float32(c.embeds)
		}
		return out, nil
	}
	p.classify = func(in []float32) (float32, error) {
		c.classify++
		c.lastInput = append([]float32(nil), in...)
		return float32(c.classify) / 10, nil
	}
	return p
}

func TestPipelineWaitsForFullMelWindow(t *testing.T) {
	t.Parallel()

	var c stageCounter
	p := fakePipeline(&c)

	// 15 chunks give 75 mel frames, one short of a window
	for i := 0; i < 15; i++ {
		score, err := p.push(make([]int16, ChunkSamples))
		require.NoError(t, err)
		assert.Zero(t, score)
	}
	assert.Zero(t, c.embeds)

	score, err := p.push(make([]int16, ChunkSamples))
	require.NoError(t, err)
	assert.Equal(t, 1, c.embeds)
	assert.InDelta(t, 0.1, score, 1e-6)

	// 80 - 8 = 72 frames left; the next chunk reaches 77 and embeds again
	_, err = p.push(make([]int16, ChunkSamples))
	require.NoError(t, err)
	assert.Equal(t, 2, c.embeds)
}

func TestPipelineRepeatsScoreWithoutNewEmbedding(t *testing.T) {
	t.Parallel()

	var c stageCounter
	p := fakePipeline(&c)
	p.last = 0.42

	score, err := p.push(make([]int16, ChunkSamples))
	require.NoError(t, err)
	assert.InDelta(t, 0.42, score, 1e-6)
	assert.Zero(t, c.classify)
}

func TestPipelinePadsOldEmbeddings(t *testing.T) {
	t.Parallel()

	var c stageCounter
	p := fakePipeline(&c)

	for c.embeds < embedFrames+2 {
		_, err := p.push(make([]int16, ChunkSamples))
		require.NoError(t, err)
	}

	pad := (embedFrames - recentEmbeds) * embedDim
	for _, v := range c.lastInput[:pad] {
		require.Zero(t, v)
	}
	assert.Equal(t, float32(c.embeds), c.lastInput[len(c.lastInput)-1])
	assert.Equal(t, float32(c.embeds-recentEmbeds+1), c.lastInput[pad])
}

func TestPipelineMelScaling(t *testing.T) {
	t.Parallel()

	var c stageCounter
	p := fakePipeline(&c)

	chunk := make([]int16, ChunkSamples)
	chunk[0] = 30
	_, err := p.push(chunk)
	require.NoError(t, err)
	assert.InDelta(t, 5, p.melBuf[0], 1e-6) // 30/10 + 2
}

func TestPipelineResetAndErrors(t *testing.T) {
	t.Parallel()

	var c stageCounter
	p := fakePipeline(&c)
	for i := 0; i < 16; i++ {
		_, err := p.push(make([]int16, ChunkSamples))
		require.NoError(t, err)
	}
	require.NotZero(t, p.last)

	p.reset()
	assert.Zero(t, p.last)
	assert.Empty(t, p.melBuf)

	p.mel = func([]float32) ([]float32, error) { return nil, errors.New("runtime gone") }
	_, err := p.push(make([]int16, ChunkSamples))
	assert.Error(t, err)
}
