package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"strings"

	openai "github.com/openai/openai-go/v3"
)

const (
	BackendEspeak = "espeak"
	BackendOpenAI = "openai"
)

var ErrUnknownModel = errors.New("unknown tts model")

// Model is a "<backend>:<voice>" selector, e.g. "espeak:ru".
type Model struct {
	Backend string
	Voice   string
}

func (m Model) String() string {
	if m.Voice == "" {
		return m.Backend
	}
	return m.Backend + ":" + m.Voice
}

func ParseModel(s string) (Model, error) {
	backend, voice, _ := strings.Cut(strings.TrimSpace(s), ":")

	switch backend {
	case BackendEspeak, BackendOpenAI:
		return Model{Backend: backend, Voice: voice}, nil
	default:
		return Model{}, fmt.Errorf("%w: %q", ErrUnknownModel, s)
	}
}

var openaiVoices = []openai.AudioSpeechNewParamsVoice{
	openai.AudioSpeechNewParamsVoiceAlloy,
	openai.AudioSpeechNewParamsVoiceAsh,
	openai.AudioSpeechNewParamsVoiceBallad,
	openai.AudioSpeechNewParamsVoiceCoral,
	openai.AudioSpeechNewParamsVoiceEcho,
	"fable",
	"onyx",
	"nova",
	openai.AudioSpeechNewParamsVoiceSage,
	openai.AudioSpeechNewParamsVoiceShimmer,
	openai.AudioSpeechNewParamsVoiceVerse,
}

// ListModels prints one model per line. Espeak voices are only listed
// when espeak-ng is installed.
func ListModels(ctx context.Context, w io.Writer, espeak *Espeak) error {
	for _, v := range openaiVoices {
		if _, err := fmt.Fprintln(w, Model{BackendOpenAI, string(v)}); err != nil {
			return err
		}
	}

	voices, err := espeak.Voices(ctx)
	if err != nil {
		log.Warn("Skipping espeak voices", "err", err)
		return nil
	}
	for _, v := range voices {
		if _, err := fmt.Fprintln(w, Model{BackendEspeak, v}); err != nil {
			return err
		}
	}
	return nil
}
