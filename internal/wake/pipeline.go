package wake

const (
	ChunkSamples = 1280 // 80 ms at 16 kHz
	melWindow    = 76   // mel frames per embedding
	melStep      = 8    // mel frames between embeddings
	melBins      = 32
	melFrames    = 5 // mel frames per chunk
	embedDim     = 96
	embedFrames  = 16 // embeddings per classification
	recentEmbeds = 5  // slots fed to the classifier, the rest are zero
)

// pipeline is the openWakeWord stage chain. The stages are plain
// functions so the buffering can run without a model runtime.
type pipeline struct {
	mel      func(chunk []float32) ([]float32, error)
	embed    func(window []float32) ([]float32, error)
	classify func(embeds []float32) (float32, error)

	melBuf   []float32
	embedBuf []float32
	last     float32
}

func newPipeline() *pipeline {
	return &pipeline{
		melBuf:   make([]float32, 0, 2*melWindow*melBins),
		embedBuf: make([]float32, embedFrames*embedDim),
	}
}

func (p *pipeline) reset() {
	p.melBuf = p.melBuf[:0]
	clear(p.embedBuf)
	p.last = 0
}

// push feeds one chunk and returns the newest score. Chunks that do not
// complete an embedding window repeat the previous score.
func (p *pipeline) push(chunk []int16) (float32, error) {
	in := make([]float32, len(chunk))
	for i, v := range chunk {
		in[i] = float32(v)
	}

	mel, err := p.mel(in)
	if err != nil {
		return 0, err
	}
	for _, v := range mel {
		p.melBuf = append(p.melBuf, v/10+2)
	}

	fresh := false
	for len(p.melBuf)/melBins >= melWindow {
		e, err := p.embed(p.melBuf[:melWindow*melBins])
		if err != nil {
			return 0, err
		}

		copy(p.embedBuf, p.embedBuf[embedDim:])
		copy(p.embedBuf[(embedFrames-1)*embedDim:], e[:embedDim])
		fresh = true

		n := copy(p.melBuf, p.melBuf[melStep*melBins:])
		p.melBuf = p.melBuf[:n]
	}

	if !fresh {
		return p.last, nil
	}

	window := make([]float32, embedFrames*embedDim)
	pad := (embedFrames - recentEmbeds) * embedDim
	copy(window[pad:], p.embedBuf[pad:])

	score, err := p.classify(window)
	if err != nil {
		return 0, err
	}
	p.last = score
	return score, nil
}
