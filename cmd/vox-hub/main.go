package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/spf13/pflag"

	log "log/slog"

	"voxwork/internal/boot"
	"voxwork/internal/emit"
	"voxwork/internal/hub"
	"voxwork/pkg/dispatch"
)

func main() {
	cfg, err := boot.LoadConfig(os.Args[1:])
	if err != nil {
		boot.Fatal("Failed to load config", "err", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = fmt.Sprint(hub.DefaultPort)
	}

	cli.StringP("config", "c", "", "YAML config file")
	cli.StringVarP(&cfg.Log, "log", "l", cfg.Log, "Log level")
	cli.StringVarP(&cfg.Env, "env", "e", cfg.Env, "Env file path")
	addr := cli.StringP("addr", "a", ":"+port, "Listen address")
	cli.DurationVar(&cfg.Hub.Timeout, "timeout", cfg.Hub.Timeout, "Handshake timeout")
	cli.Parse()

	boot.SetupLogger(cfg.Log)
	boot.LoadEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		boot.Fatal("Invalid config", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := emit.New(os.Stdout)

	h := hub.New(cfg.Hub.Timeout)
	h.OnMessage = func(name, line string) {
		out.Emit(name, line)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("Hub listening", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			boot.Fatal("Failed to serve", "err", err)
		}
	}()

	// operator console on stdin
	console := dispatch.New(dispatch.Stdin(),
		dispatch.WithPong(func() { out.Emit(emit.Pong) }),
	)
	console.RegisterOrdered(hub.NewConsole(h, out).Handle)
	console.Start(ctx)
	console.Wait()

	log.Info("Shutting down")
	h.Close()

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		log.Warn("Failed to shut down cleanly", "err", err)
	}
}
