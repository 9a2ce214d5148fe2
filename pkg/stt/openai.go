package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v3"

	"voxwork/pkg/audioconv"
)

// OpenAI transcribes through the hosted audio API.
type OpenAI struct {
	Client   openai.Client
	Model    string // default whisper-1
	Language string
}

func (o *OpenAI) Transcribe(ctx context.Context, pcm16k []float32) (string, error) {
	if len(pcm16k) == 0 {
		return "", ErrNoAudio
	}

	var wav audioconv.Buffer
	if err := audioconv.EncodeWAV(&wav, pcm16k, audioconv.TargetRate); err != nil {
		return "", err
	}

	model := o.Model
	if model == "" {
		model = openai.AudioModelWhisper1
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(wav.Bytes()), "take.wav", "audio/wav"),
		Model: model,
	}
	if o.Language != "" && o.Language != "auto" {
		params.Language = openai.String(o.Language)
	}

	resp, err := o.Client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}

	return strings.TrimSpace(resp.Text), nil
}
