package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	cli "github.com/spf13/pflag"

	log "log/slog"

	"voxwork/internal/audio"
	"voxwork/internal/boot"
	"voxwork/internal/config"
	"voxwork/internal/tts"
)

func main() {
	cfg, err := boot.LoadConfig(os.Args[1:])
	if err != nil {
		boot.Fatal("Failed to load config", "err", err)
	}

	boot.Common(cli.CommandLine, &cfg)
	cli.StringVar(&cfg.TTS.Exec, "espeak", cfg.TTS.Exec, "espeak-ng executable")
	cli.BoolVar(&cfg.TTS.Duck, "duck", cfg.TTS.Duck, "Lower other audio while speaking")
	cli.Float64Var(&cfg.TTS.DuckFactor, "duck-factor", cfg.TTS.DuckFactor, "Volume factor for ducked streams")
	cli.StringVarP(&cfg.OpenAI.Proxy, "proxy", "p", cfg.OpenAI.Proxy, "Socks proxy for openai models")
	cli.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <model|list> [device]\n", filepath.Base(os.Args[0]))
		cli.PrintDefaults()
	}
	cli.Parse()

	args := cli.Args()
	if len(args) < 1 && cfg.TTS.Model == "" {
		cli.Usage()
		os.Exit(1)
	}
	if len(args) >= 1 {
		cfg.TTS.Model = args[0]
	}
	if len(args) >= 2 {
		cfg.TTS.Device = args[1]
	}

	boot.SetupLogger(cfg.Log)
	boot.LoadEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		boot.Fatal("Invalid config", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TTS.Model == "list" {
		if err := tts.ListModels(ctx, os.Stdout, &tts.Espeak{Exec: cfg.TTS.Exec}); err != nil {
			boot.Fatal("Failed to list models", "err", err)
		}
		return
	}

	device := boot.ResolveDevice(cfg.TTS.Device)
	log.Info("Booting up", "model", cfg.TTS.Model, "device", device)

	synth, err := synthesizer(cfg)
	if err != nil {
		boot.Fatal("Failed to load model", "model", cfg.TTS.Model, "err", err)
	}

	player := &tts.SpeakerPlayer{}
	if cfg.TTS.Duck {
		self := filepath.Base(os.Args[0])
		player.Ducker = audio.NewDucker([]string{self, "ALSA plug-in [" + self + "]"}, 5)
		player.DuckFactor = cfg.TTS.DuckFactor
		player.DuckFade = cfg.TTS.DuckFade
	}

	rt, err := boot.Open(ctx, cfg, "tts", os.Stdout)
	if err != nil {
		boot.Fatal("Failed to open command source", "err", err)
	}

	w := tts.New(synth, player, rt.Emitter)

	spoken := make(chan error, 1)
	go func() { spoken <- w.Run(ctx) }()

	log.Info("Boot up - successful")

	if err := rt.ServeOrdered(ctx, w.Handle); err != nil {
		log.Error("Command stream failed", "err", err)
	}

	// finish what was already queued unless we were interrupted
	w.Close()
	if err := <-spoken; err != nil && ctx.Err() == nil {
		log.Error("Playback loop failed", "err", err)
	}
}

func synthesizer(cfg config.Config) (tts.Synthesizer, error) {
	model, err := tts.ParseModel(cfg.TTS.Model)
	if err != nil {
		return nil, err
	}

	switch model.Backend {
	case tts.BackendOpenAI:
		client, err := boot.OpenAI(cfg.OpenAI)
		if err != nil {
			return nil, err
		}
		return &tts.OpenAI{Client: client, Voice: model.Voice}, nil
	default:
		return &tts.Espeak{Exec: cfg.TTS.Exec, Voice: model.Voice}, nil
	}
}
