package tts

import (
	"context"
	"fmt"
	"io"

	openai "github.com/openai/openai-go/v3"

	"voxwork/pkg/audioconv"
)

// OpenAIRate is the sample rate of the raw PCM the speech API returns.
const OpenAIRate = 24000

// OpenAI synthesizes through the hosted speech API. Raw PCM is requested
// and wrapped into a WAV with correct chunk sizes locally.
type OpenAI struct {
	Client openai.Client
	Model  string // default tts-1
	Voice  string // default alloy
}

func (o *OpenAI) Synthesize(ctx context.Context, text string) ([]byte, error) {
	model := o.Model
	if model == "" {
		model = openai.SpeechModelTTS1
	}
	voice := openai.AudioSpeechNewParamsVoice(o.Voice)
	if voice == "" {
		voice = openai.AudioSpeechNewParamsVoiceAlloy
	}

	resp, err := o.Client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          model,
		Voice:          voice,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return nil, fmt.Errorf("speech: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read speech: %w", err)
	}

	return pcmToWAV(raw, OpenAIRate)
}

// pcmToWAV wraps little-endian signed 16-bit mono samples.
func pcmToWAV(raw []byte, rate int) ([]byte, error) {
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
	}

	var wav audioconv.Buffer
	if err := audioconv.EncodeWAV(&wav, audioconv.Int16ToFloat32(samples), rate); err != nil {
		return nil, err
	}
	return wav.Bytes(), nil
}
