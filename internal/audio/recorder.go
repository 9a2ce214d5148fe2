package audio

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"
)

const SampleRate = 16000

// ErrNoSpeech is returned by recorders that give up before anyone spoke.
var ErrNoSpeech = errors.New("no speech detected")

type RecorderConfig struct {
	Threshold float64       // RMS above which a frame counts as speech
	Pause     time.Duration // trailing silence that ends the take
	MaxLength time.Duration
}

func (c *RecorderConfig) defaults() {
	if c.Threshold <= 0 {
		c.Threshold = 0.015
	}
	if c.Pause <= 0 {
		c.Pause = 1500 * time.Millisecond
	}
	if c.MaxLength <= 0 {
		c.MaxLength = 30 * time.Second
	}
}

// Recorder captures one utterance from the default input device.
type Recorder struct {
	cfg RecorderConfig
}

func NewRecorder(cfg RecorderConfig) *Recorder {
	cfg.defaults()
	return &Recorder{cfg: cfg}
}

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// RecordAuto blocks until speech has started and then stopped for the
// configured pause, returning mono float32 PCM at 16 kHz. The wait for
// speech ends only with ctx; MaxLength bounds the take once it has begun.
func (r *Recorder) RecordAuto(ctx context.Context) ([]float32, error) {
	const frameSize = 320 // 20ms

	buf := make([]float32, frameSize)

	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	vad := NewSilenceDetector(r.cfg.Threshold, r.cfg.Pause, frameSize)
	vad.Limit(r.cfg.MaxLength)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := stream.Read(); err != nil {
			return nil, err
		}

		if vad.Push(buf) {
			break
		}
	}

	return vad.Samples(), nil
}

// SilenceDetector accumulates frames once speech starts and reports when
// the trailing silence reaches the pause length or the take reaches its
// limit.
type SilenceDetector struct {
	threshold     float64
	frameDur      time.Duration
	pauseFrames   int
	maxFrames     int // 0 = unbounded
	speaking      bool
	silenceFrames int
	frames        int
	out           []float32
}

func NewSilenceDetector(threshold float64, pause time.Duration, frameSize int) *SilenceDetector {
	frameDur := time.Duration(frameSize) * time.Second / SampleRate
	pauseFrames := int(pause / frameDur)
	if pauseFrames < 1 {
		pauseFrames = 1
	}

	return &SilenceDetector{
		threshold:   threshold,
		frameDur:    frameDur,
		pauseFrames: pauseFrames,
		out:         make([]float32, 0, SampleRate*3),
	}
}

// Limit caps the take at d, counted from the first speech frame.
func (v *SilenceDetector) Limit(d time.Duration) {
	v.maxFrames = max(int(d/v.frameDur), 0)
}

// Push feeds one frame and returns true when the utterance is complete.
func (v *SilenceDetector) Push(frame []float32) bool {
	loud := FrameRMS(frame) > v.threshold
	if !loud && !v.speaking {
		return false
	}

	v.speaking = true
	v.frames++
	full := v.maxFrames > 0 && v.frames >= v.maxFrames

	if loud {
		v.silenceFrames = 0
		v.out = append(v.out, frame...)
		return full
	}

	v.silenceFrames++
	if v.silenceFrames >= v.pauseFrames {
		return true
	}
	v.out = append(v.out, frame...)
	return full
}

func (v *SilenceDetector) Heard() bool { return v.speaking }

func (v *SilenceDetector) Samples() []float32 { return v.out }

func FrameRMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}

	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
