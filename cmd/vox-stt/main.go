package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	cli "github.com/spf13/pflag"

	log "log/slog"

	"voxwork/internal/audio"
	"voxwork/internal/boot"
	"voxwork/internal/config"
	"voxwork/internal/notify"
	stt "voxwork/internal/stt"
	backend "voxwork/pkg/stt"
)

func main() {
	cfg, err := boot.LoadConfig(os.Args[1:])
	if err != nil {
		boot.Fatal("Failed to load config", "err", err)
	}

	boot.Common(cli.CommandLine, &cfg)
	cli.StringVarP(&cfg.STT.Backend, "backend", "b", cfg.STT.Backend, "faster, full or openai")
	cli.StringVarP(&cfg.STT.Model, "model", "m", cfg.STT.Model, "Whisper model name")
	cli.StringVar(&cfg.STT.ModelDir, "models", cfg.STT.ModelDir, "Directory with ggml-<model>.bin")
	cli.StringVarP(&cfg.STT.Device, "device", "d", cfg.STT.Device, "cpu or cuda, empty to detect")
	cli.StringVar(&cfg.STT.Language, "language", cfg.STT.Language, "Spoken language, auto to detect")
	cli.StringVar(&cfg.STT.Exec, "whisper", cfg.STT.Exec, "whisper executable for the full backend")
	cli.Float64Var(&cfg.STT.Threshold, "threshold", cfg.STT.Threshold, "Speech RMS threshold")
	cli.DurationVar(&cfg.STT.Pause, "pause", cfg.STT.Pause, "Silence that ends a take")
	cli.DurationVar(&cfg.STT.MaxLength, "max", cfg.STT.MaxLength, "Longest take")
	cli.StringVar(&cfg.STT.Beep, "beep", cfg.STT.Beep, "Cue played before listening")
	cli.StringVarP(&cfg.OpenAI.Proxy, "proxy", "p", cfg.OpenAI.Proxy, "Socks proxy for the openai backend")
	cli.Parse()

	boot.SetupLogger(cfg.Log)
	boot.LoadEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		boot.Fatal("Invalid config", "err", err)
	}

	log.Info("Booting up", "backend", cfg.STT.Backend, "model", cfg.STT.Model)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tr, closeTr, err := transcriber(cfg)
	if err != nil {
		boot.Fatal("Failed to load transcriber", "err", err)
	}
	defer closeTr()

	log.Debug("Loaded transcriber")

	rec := audio.NewRecorder(audio.RecorderConfig{
		Threshold: cfg.STT.Threshold,
		Pause:     cfg.STT.Pause,
		MaxLength: cfg.STT.MaxLength,
	})
	if err := rec.Init(); err != nil {
		boot.Fatal("Failed to init audio", "err", err)
	}
	defer rec.Close()

	log.Debug("Loaded recorder")

	rt, err := boot.Open(ctx, cfg, "stt", os.Stdout)
	if err != nil {
		boot.Fatal("Failed to open command source", "err", err)
	}

	var opts []stt.Option
	if cfg.STT.Beep != "" {
		opts = append(opts, stt.WithCue(func(ctx context.Context) error {
			return notify.Beep(ctx, cfg.STT.Beep)
		}))
	}

	w := stt.New(rec, tr, rt.Emitter, opts...)

	log.Info("Boot up - successful")

	if err := rt.Serve(ctx, w.Handle); err != nil {
		log.Error("Command stream failed", "err", err)
	}
}

func transcriber(cfg config.Config) (stt.Transcriber, func(), error) {
	nop := func() {}

	switch cfg.STT.Backend {
	case "full":
		return &backend.CLI{
			Exec:     cfg.STT.Exec,
			Model:    cfg.STT.Model,
			Device:   boot.ResolveDevice(cfg.STT.Device),
			Language: cfg.STT.Language,
		}, nop, nil

	case "openai":
		client, err := boot.OpenAI(cfg.OpenAI)
		if err != nil {
			return nil, nil, err
		}
		return &backend.OpenAI{Client: client, Language: cfg.STT.Language}, nop, nil

	default:
		path := filepath.Join(cfg.STT.ModelDir, "ggml-"+cfg.STT.Model+".bin")
		w, err := backend.NewWhisper(path, backend.Options{Language: cfg.STT.Language})
		if err != nil {
			return nil, nil, err
		}
		return w, func() { _ = w.Close() }, nil
	}
}
