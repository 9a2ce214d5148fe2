package stt

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"voxwork/pkg/audioconv"
)

// CLI shells out to the reference `whisper` command line tool. It trades
// start-up time for the full model set and GPU support.
type CLI struct {
	Exec     string // default "whisper"
	Model    string // tiny, base, small, medium, large
	Device   string // cpu or cuda
	Language string // empty or "auto" lets whisper detect
}

func (c *CLI) Transcribe(ctx context.Context, pcm16k []float32) (string, error) {
	if len(pcm16k) == 0 {
		return "", ErrNoAudio
	}

	dir, err := os.MkdirTemp("", "vox-stt-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "take.wav")
	f, err := os.Create(input)
	if err != nil {
		return "", err
	}
	if err := audioconv.EncodeWAV(f, pcm16k, audioconv.TargetRate); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	return c.TranscribeFile(ctx, input, dir)
}

// TranscribeFile runs whisper on path and reads the text it leaves in
// outDir.
func (c *CLI) TranscribeFile(ctx context.Context, path, outDir string) (string, error) {
	cmd := exec.CommandContext(ctx, c.exec(), c.args(path, outDir)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", c.exec(), err, strings.TrimSpace(stderr.String()))
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out, err := os.ReadFile(filepath.Join(outDir, base+".txt"))
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}

	return strings.Join(strings.Fields(string(out)), " "), nil
}

func (c *CLI) exec() string {
	if c.Exec == "" {
		return "whisper"
	}
	return c.Exec
}

func (c *CLI) args(path, outDir string) []string {
	args := []string{
		path,
		"--model", c.Model,
		"--output_format", "txt",
		"--output_dir", outDir,
		"--verbose", "False",
	}

	if c.Device != "" {
		args = append(args, "--device", c.Device)
	}
	if c.Device != "cuda" {
		args = append(args, "--fp16", "False")
	}
	if c.Language != "" && c.Language != "auto" {
		args = append(args, "--language", c.Language)
	}

	return args
}
