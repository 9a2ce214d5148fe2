// Package config holds the worker settings shared by every binary. Values
// come from built-in defaults, then an optional YAML file, then flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      string   `yaml:"log"`
	Env      string   `yaml:"env"`
	Hub      Hub      `yaml:"hub"`
	Dispatch Dispatch `yaml:"dispatch"`
	OpenAI   OpenAI   `yaml:"openai"`
	STT      STT      `yaml:"stt"`
	TTS      TTS      `yaml:"tts"`
	Wake     Wake     `yaml:"wake"`
}

type Hub struct {
	URL       string        `yaml:"url"`
	Timeout   time.Duration `yaml:"timeout"`
	Reconnect time.Duration `yaml:"reconnect"`
}

type Dispatch struct {
	Workers int    `yaml:"workers"`
	Queue   int    `yaml:"queue"`
	Socket  string `yaml:"socket"`
}

type OpenAI struct {
	Proxy string `yaml:"proxy"`
}

type STT struct {
	Backend   string        `yaml:"backend"`
	Model     string        `yaml:"model"`
	ModelDir  string        `yaml:"model_dir"`
	Device    string        `yaml:"device"`
	Language  string        `yaml:"language"`
	Exec      string        `yaml:"exec"`
	Threshold float64       `yaml:"threshold"`
	Pause     time.Duration `yaml:"pause"`
	MaxLength time.Duration `yaml:"max_length"`
	Beep      string        `yaml:"beep"`
}

type TTS struct {
	Model      string        `yaml:"model"`
	Device     string        `yaml:"device"`
	Exec       string        `yaml:"exec"`
	Duck       bool          `yaml:"duck"`
	DuckFactor float64       `yaml:"duck_factor"`
	DuckFade   time.Duration `yaml:"duck_fade"`
}

type Wake struct {
	Model     string        `yaml:"model"`
	ModelDir  string        `yaml:"model_dir"`
	OnnxLib   string        `yaml:"onnx_lib"`
	Threshold float64       `yaml:"threshold"`
	Rearm     time.Duration `yaml:"rearm"`
}

func Default() Config {
	return Config{
		Log: "info",
		Env: ".env",
		Hub: Hub{
			Timeout:   10 * time.Second,
			Reconnect: 2 * time.Second,
		},
		Dispatch: Dispatch{
			Workers: 4,
			Queue:   64,
		},
		STT: STT{
			Backend:   "faster",
			Model:     "medium",
			ModelDir:  "models",
			Language:  "auto",
			Exec:      "whisper",
			Threshold: 0.015,
			Pause:     1500 * time.Millisecond,
			MaxLength: 30 * time.Second,
		},
		TTS: TTS{
			Model:      "espeak:en",
			Exec:       "espeak-ng",
			DuckFactor: 0.3,
			DuckFade:   300 * time.Millisecond,
		},
		Wake: Wake{
			Model:     "summatia",
			ModelDir:  "models",
			OnnxLib:   "libonnxruntime.so",
			Threshold: 0.6,
			Rearm:     3 * time.Second,
		},
	}
}

// Load overlays the YAML file at path onto the defaults. An empty path
// yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.Dispatch.Workers <= 0 {
		errs = append(errs, errors.New("dispatch.workers must be positive"))
	}
	if c.Dispatch.Queue < 0 {
		errs = append(errs, errors.New("dispatch.queue must not be negative"))
	}
	switch c.STT.Backend {
	case "faster", "full", "openai":
	default:
		errs = append(errs, fmt.Errorf("stt.backend %q: want faster, full or openai", c.STT.Backend))
	}
	if c.Wake.Threshold <= 0 || c.Wake.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("wake.threshold %v: want (0, 1)", c.Wake.Threshold))
	}
	if c.STT.Threshold <= 0 {
		errs = append(errs, errors.New("stt.threshold must be positive"))
	}
	if c.TTS.DuckFactor < 0 || c.TTS.DuckFactor > 1 {
		errs = append(errs, fmt.Errorf("tts.duck_factor %v: want [0, 1]", c.TTS.DuckFactor))
	}
	if c.TTS.DuckFade < 0 {
		errs = append(errs, errors.New("tts.duck_fade must not be negative"))
	}
	if c.Hub.Timeout < 0 {
		errs = append(errs, errors.New("hub.timeout must not be negative"))
	}

	return errors.Join(errs...)
}
