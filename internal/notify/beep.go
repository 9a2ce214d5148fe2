// Package notify owns the shared speaker used for cues and speech
// playback.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// PlaybackRate is the rate the speaker is opened at. Streams at other
// rates are resampled.
const PlaybackRate beep.SampleRate = 44100

var ErrUnsupported = errors.New("unsupported cue format")

var (
	initOnce sync.Once
	initErr  error
)

func initSpeaker() error {
	initOnce.Do(func() {
		initErr = speaker.Init(PlaybackRate, PlaybackRate.N(time.Second/10))
	})
	return initErr
}

// Decode picks a decoder from the file extension.
func Decode(name string, rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3":
		return mp3.Decode(rc)
	case ".wav":
		return wav.Decode(rc)
	default:
		return nil, beep.Format{}, fmt.Errorf("%w: %s", ErrUnsupported, name)
	}
}

// Play blocks until s is drained or ctx is done.
func Play(ctx context.Context, s beep.Streamer, format beep.Format) error {
	if err := initSpeaker(); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}

	if format.SampleRate != PlaybackRate {
		s = beep.Resample(4, format.SampleRate, PlaybackRate, s)
	}

	t := newTrack(s)
	speaker.Play(t.ctrl)

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		t.stop(mixer{})
		return ctx.Err()
	}
}

// mixer locks the shared speaker while a track is changed under it.
type mixer struct{}

func (mixer) Lock()   { speaker.Lock() }
func (mixer) Unlock() { speaker.Unlock() }

// track is one stream on the shared speaker. Stopping it leaves the other
// streams playing.
type track struct {
	ctrl *beep.Ctrl
	done chan struct{}
}

func newTrack(s beep.Streamer) *track {
	t := &track{done: make(chan struct{})}
	t.ctrl = &beep.Ctrl{Streamer: beep.Seq(s, beep.Callback(func() {
		close(t.done)
	}))}
	return t
}

// stop drops what is left of the track; the mixer removes it on its next
// pull.
func (t *track) stop(l sync.Locker) {
	l.Lock()
	defer l.Unlock()
	t.ctrl.Streamer = nil
}

// Beep plays the cue file at path.
func Beep(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open cue: %w", err)
	}

	streamer, format, err := Decode(path, f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode cue: %w", err)
	}
	defer streamer.Close()

	return Play(ctx, streamer, format)
}
