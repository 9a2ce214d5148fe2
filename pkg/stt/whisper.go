package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

var ErrNoAudio = errors.New("no audio samples provided")

type Options struct {
	Language  string // "auto" or a language code
	Threads   int    // <=0 means one per CPU
	Prompt    string // biases decoding towards expected vocabulary
	Translate bool
}

// Whisper runs whisper.cpp in process. The model is shared and calls are
// serialized, each with its own decoding context.
type Whisper struct {
	mu    sync.Mutex
	model whisper.Model
	opt   Options
}

func NewWhisper(modelPath string, opt Options) (*Whisper, error) {
	if modelPath == "" {
		return nil, errors.New("empty model path")
	}
	if opt.Language == "" {
		opt.Language = "auto"
	}
	if opt.Threads <= 0 {
		opt.Threads = runtime.NumCPU()
	}

	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", modelPath, err)
	}
	return &Whisper{model: model, opt: opt}, nil
}

func (w *Whisper) Close() error {
	return w.model.Close()
}

// Transcribe expects mono samples at 16 kHz in [-1, 1].
func (w *Whisper) Transcribe(ctx context.Context, pcm16k []float32) (string, error) {
	if len(pcm16k) == 0 {
		return "", ErrNoAudio
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	dec, err := w.decoder()
	if err != nil {
		return "", err
	}

	if err := dec.Process(pcm16k, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process: %w", err)
	}

	var parts []string
	for ctx.Err() == nil {
		seg, err := dec.NextSegment()
		if err == io.EOF {
			log.Debug("Decoded", "segments", len(parts), "language", dec.DetectedLanguage())
			return strings.Join(parts, " "), nil
		}
		if err != nil {
			return "", fmt.Errorf("next segment: %w", err)
		}
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return "", ctx.Err()
}

func (w *Whisper) decoder() (whisper.Context, error) {
	dec, err := w.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}

	if err := dec.SetLanguage(w.opt.Language); err != nil {
		return nil, fmt.Errorf("set language %q: %w", w.opt.Language, err)
	}
	dec.SetTranslate(w.opt.Translate)
	dec.SetThreads(uint(w.opt.Threads))
	if w.opt.Prompt != "" {
		dec.SetInitialPrompt(w.opt.Prompt)
	}
	return dec, nil
}
