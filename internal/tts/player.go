package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	log "log/slog"
	"time"

	"voxwork/internal/audio"
	"voxwork/internal/notify"
)

// SpeakerPlayer plays WAV data on the default output. With a Ducker set,
// other streams are faded down for the duration of the speech.
type SpeakerPlayer struct {
	Ducker     *audio.Ducker
	DuckFactor float64
	DuckFade   time.Duration
}

func (p *SpeakerPlayer) Play(ctx context.Context, data []byte) error {
	s, format, err := notify.Decode("speech.wav", io.NopCloser(bytes.NewReader(data)))
	if err != nil {
		return fmt.Errorf("decode speech: %w", err)
	}
	defer s.Close()

	if p.Ducker != nil {
		if err := p.Ducker.Duck(ctx, p.DuckFactor, p.DuckFade); err != nil {
			log.Warn("Failed to duck", "err", err)
		}
		defer func() {
			if err := p.Ducker.Unduck(context.WithoutCancel(ctx), p.DuckFade); err != nil {
				log.Warn("Failed to unduck", "err", err)
			}
		}()
	}

	return notify.Play(ctx, s, format)
}
