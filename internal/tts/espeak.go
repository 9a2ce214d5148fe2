package tts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Espeak synthesizes with the espeak-ng command line tool.
type Espeak struct {
	Exec  string // default "espeak-ng"
	Voice string // e.g. "en", "ru"
}

func (e *Espeak) Synthesize(ctx context.Context, text string) ([]byte, error) {
	dir, err := os.MkdirTemp("", "vox-tts-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "speech.wav")

	args := []string{"-w", out}
	if e.Voice != "" {
		args = append(args, "-v", e.Voice)
	}

	cmd := exec.CommandContext(ctx, e.exec(), args...)
	cmd.Stdin = strings.NewReader(text)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", e.exec(), err, strings.TrimSpace(stderr.String()))
	}

	return os.ReadFile(out)
}

// Voices lists the voice identifiers espeak-ng knows about.
func (e *Espeak) Voices(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, e.exec(), "--voices").Output()
	if err != nil {
		return nil, fmt.Errorf("%s --voices: %w", e.exec(), err)
	}
	return parseVoices(string(out)), nil
}

func (e *Espeak) exec() string {
	if e.Exec == "" {
		return "espeak-ng"
	}
	return e.Exec
}

// parseVoices reads the language column of `espeak-ng --voices`.
func parseVoices(text string) []string {
	var voices []string
	for i, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if i == 0 || len(fields) < 2 {
			continue
		}
		voices = append(voices, fields[1])
	}
	return voices
}
