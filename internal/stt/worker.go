// Package stt is the speech-to-text worker: it records or loads audio on
// command and prints what was said.
package stt

import (
	"context"
	"errors"
	log "log/slog"
	"strings"
	"sync"

	"voxwork/internal/audio"
	"voxwork/internal/emit"
	"voxwork/pkg/audioconv"
	"voxwork/pkg/dispatch"
)

const (
	CmdStart = "start"
	CmdFile  = "file"
)

var ErrBusy = errors.New("transcription already running")

type Recorder interface {
	RecordAuto(ctx context.Context) ([]float32, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, pcm16k []float32) (string, error)
}

// Loader turns an audio file into 16 kHz mono samples.
type Loader func(ctx context.Context, path string) ([]float32, error)

type Option func(*Worker)

// WithCue plays f before every microphone capture.
func WithCue(f func(ctx context.Context) error) Option {
	return func(w *Worker) { w.cue = f }
}

func WithLoader(l Loader) Option {
	return func(w *Worker) { w.load = l }
}

type Worker struct {
	busy sync.Mutex
	rec  Recorder
	tr   Transcriber
	out  *emit.Emitter
	cue  func(ctx context.Context) error
	load Loader
}

func New(rec Recorder, tr Transcriber, out *emit.Emitter, opts ...Option) *Worker {
	w := &Worker{
		rec: rec,
		tr:  tr,
		out: out,
		load: func(ctx context.Context, path string) ([]float32, error) {
			return audioconv.ConvertFileToPCM16k(ctx, path, audioconv.Options{})
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Handle is the dispatcher handler.
func (w *Worker) Handle(ctx context.Context, cmd dispatch.Command) {
	verb, arg, _ := strings.Cut(cmd.Text, " ")
	arg = strings.TrimSpace(arg)

	var err error
	switch {
	case cmd.Text == CmdStart:
		err = w.Listen(ctx)
	case verb == CmdFile && arg != "":
		err = w.File(ctx, arg)
	default:
		w.out.Emit(emit.Ignore, cmd.Text)
		return
	}

	if errors.Is(err, ErrBusy) {
		log.Warn("Busy, command dropped", "cmd", cmd.Text)
		w.out.Emit(emit.Ignore, cmd.Text)
	}
}

// Listen captures one utterance from the microphone and prints its
// transcript.
func (w *Worker) Listen(ctx context.Context) error {
	return w.exclusive(ctx, func() ([]float32, error) {
		if w.cue != nil {
			if err := w.cue(ctx); err != nil {
				log.Warn("Failed to play start cue", "err", err)
			}
		}

		log.Info("Starting listening")
		defer log.Info("Stopped listening")
		return w.rec.RecordAuto(ctx)
	})
}

// File transcribes an audio file from disk.
func (w *Worker) File(ctx context.Context, path string) error {
	return w.exclusive(ctx, func() ([]float32, error) {
		log.Info("Transcribing file", "path", path)
		return w.load(ctx, path)
	})
}

// exclusive runs one capture-and-transcribe cycle. A failure prints an
// error line followed by an empty result so a waiting caller is released.
func (w *Worker) exclusive(ctx context.Context, capture func() ([]float32, error)) error {
	if !w.busy.TryLock() {
		return ErrBusy
	}
	defer w.busy.Unlock()

	text, err := w.transcribe(ctx, capture)
	switch {
	case errors.Is(err, audio.ErrNoSpeech):
		log.Info("No speech heard")
		w.out.Emit(emit.Result)
	case err != nil:
		log.Error("Failed to transcribe", "err", err)
		w.out.Emit(emit.Error, err.Error())
		w.out.Emit(emit.Result)
	default:
		w.out.Emit(emit.Result, text)
	}
	return err
}

func (w *Worker) transcribe(ctx context.Context, capture func() ([]float32, error)) (string, error) {
	pcm, err := capture()
	if err != nil {
		return "", err
	}

	text, err := w.tr.Transcribe(ctx, pcm)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
