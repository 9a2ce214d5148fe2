package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/spf13/pflag"

	log "log/slog"

	"voxwork/internal/audio"
	"voxwork/internal/boot"
	"voxwork/internal/wake"
)

func main() {
	cfg, err := boot.LoadConfig(os.Args[1:])
	if err != nil {
		boot.Fatal("Failed to load config", "err", err)
	}

	boot.Common(cli.CommandLine, &cfg)
	cli.StringVarP(&cfg.Wake.Model, "model", "m", cfg.Wake.Model, "Wake word model name")
	cli.StringVar(&cfg.Wake.ModelDir, "models", cfg.Wake.ModelDir, "Directory with the onnx models")
	cli.StringVar(&cfg.Wake.OnnxLib, "onnx-lib", cfg.Wake.OnnxLib, "onnxruntime shared library")
	cli.Float64VarP(&cfg.Wake.Threshold, "threshold", "t", cfg.Wake.Threshold, "Score that counts as a wake")
	cli.DurationVar(&cfg.Wake.Rearm, "rearm", cfg.Wake.Rearm, "Quiet time after a wake")
	cli.Parse()

	boot.SetupLogger(cfg.Log)
	boot.LoadEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		boot.Fatal("Invalid config", "err", err)
	}

	log.Info("Booting up", "model", cfg.Wake.Model)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scorer, err := wake.NewONNXScorer(wake.ONNXConfig{
		ModelDir: cfg.Wake.ModelDir,
		Model:    cfg.Wake.Model,
		OnnxLib:  cfg.Wake.OnnxLib,
	})
	if err != nil {
		boot.Fatal("Failed to load models", "err", err)
	}
	defer scorer.Close()

	log.Debug("Loaded models")

	mic, err := audio.OpenCapture(wake.ChunkSamples)
	if err != nil {
		boot.Fatal("Failed to init audio", "err", err)
	}
	defer mic.Close()

	log.Debug("Loaded capture")

	rt, err := boot.Open(ctx, cfg, "wake", os.Stdout)
	if err != nil {
		boot.Fatal("Failed to open command source", "err", err)
	}

	w := wake.New(wake.Config{
		Model:     cfg.Wake.Model,
		Threshold: cfg.Wake.Threshold,
		Rearm:     cfg.Wake.Rearm,
	}, mic, scorer, rt.Emitter)

	// the scoring loop lives as long as the command stream
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	listening := make(chan error, 1)
	go func() {
		listening <- w.Run(ctx)
		rt.Dispatcher.Stop()
	}()

	log.Info("Boot up - successful")

	if err := rt.ServeOrdered(ctx, w.Handle); err != nil {
		log.Error("Command stream failed", "err", err)
	}

	cancel()
	if err := <-listening; err != nil {
		log.Error("Capture failed", "err", err)
	}
}
