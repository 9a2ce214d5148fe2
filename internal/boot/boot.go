// Package boot is the bootstrap shared by the worker binaries: flags,
// logging, environment and the command source.
package boot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	log "log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"

	"voxwork/internal/config"
	"voxwork/internal/emit"
	"voxwork/internal/ipc"
	"voxwork/pkg/dispatch"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

// SetupLogger installs a tint handler on stderr; stdout carries results.
func SetupLogger(level string) {
	SetupLoggerTo(os.Stderr, level)
}

func SetupLoggerTo(w io.Writer, level string) {
	lvl, ok := logLevelMap[level]
	if !ok {
		lvl = log.LevelInfo
	}

	log.SetDefault(log.New(tint.NewHandler(w, &tint.Options{
		Level:      lvl,
		TimeFormat: time.TimeOnly,
	})))
}

// LoadConfig picks --config/-c out of args ahead of the real flag set so
// the file's values can serve as flag defaults.
func LoadConfig(args []string) (config.Config, error) {
	pre := pflag.NewFlagSet("config", pflag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.SetOutput(io.Discard)
	pre.Usage = func() {}
	path := pre.StringP("config", "c", "", "")
	_ = pre.Parse(args)

	return config.Load(*path)
}

// Common binds the flags every worker accepts onto cfg.
func Common(set *pflag.FlagSet, cfg *config.Config) {
	set.StringP("config", "c", "", "YAML config file")
	set.StringVarP(&cfg.Log, "log", "l", cfg.Log, "Log level")
	set.StringVarP(&cfg.Env, "env", "e", cfg.Env, "Env file path")
	set.StringVarP(&cfg.Hub.URL, "hub", "u", cfg.Hub.URL, "WebSocket hub URL (default: read stdin)")
	set.DurationVar(&cfg.Hub.Reconnect, "reconnect", cfg.Hub.Reconnect, "Hub re-dial delay, 0 to disable")
	set.StringVarP(&cfg.Dispatch.Socket, "socket", "s", cfg.Dispatch.Socket, "Read commands from a unix socket instead of stdin")
	set.IntVar(&cfg.Dispatch.Workers, "workers", cfg.Dispatch.Workers, "Concurrent handler goroutines")
	set.IntVar(&cfg.Dispatch.Queue, "queue", cfg.Dispatch.Queue, "Pending handler jobs before reads block")
}

// LoadEnv reads the env file if present and fills unset hub settings.
func LoadEnv(cfg *config.Config) {
	if err := godotenv.Load(cfg.Env); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("Failed to load env file", "path", cfg.Env, "err", err)
	}

	if cfg.Hub.URL == "" {
		cfg.Hub.URL = os.Getenv("VOX_HUB_URL")
	}
}

// Runtime is a connected command source plus the dispatcher reading it.
type Runtime struct {
	Emitter    *emit.Emitter
	Dispatcher *dispatch.Dispatcher
	Source     dispatch.Source
}

// Open selects the command source (hub, unix socket or stdin) and builds
// a dispatcher over it. Output goes to out and, for the hub, upstream.
func Open(ctx context.Context, cfg config.Config, name string, out io.Writer) (*Runtime, error) {
	em := emit.New(out)

	var src dispatch.Source
	switch {
	case cfg.Hub.URL != "":
		web, err := dispatch.DialWebSocket(ctx, dispatch.WebSocketConfig{
			URL:       cfg.Hub.URL,
			Name:      name,
			Timeout:   cfg.Hub.Timeout,
			Reconnect: cfg.Hub.Reconnect,
		})
		if err != nil {
			return nil, fmt.Errorf("connect hub: %w", err)
		}
		em.Tee(web.Send)
		src = web

	case cfg.Dispatch.Socket != "":
		l, err := ipc.Listen(cfg.Dispatch.Socket)
		if err != nil {
			return nil, fmt.Errorf("control socket: %w", err)
		}
		src = l

	default:
		src = dispatch.Stdin()
	}

	d := dispatch.New(src,
		dispatch.WithWorkers(cfg.Dispatch.Workers),
		dispatch.WithQueueSize(cfg.Dispatch.Queue),
		dispatch.WithPong(func() { em.Emit(emit.Pong) }),
	)

	return &Runtime{Emitter: em, Dispatcher: d, Source: src}, nil
}

// ResolveDevice keeps "cpu" and "cuda" and otherwise picks cuda when an
// NVIDIA driver is installed.
func ResolveDevice(device string) string {
	switch device {
	case "cpu", "cuda":
		return device
	}

	if _, err := exec.LookPath("nvidia-smi"); err == nil {
		return "cuda"
	}
	return "cpu"
}

// Serve registers h and blocks until the command stream ends, an exit
// line arrives or ctx is cancelled. Handlers still running are waited for.
func (rt *Runtime) Serve(ctx context.Context, h dispatch.Handler) error {
	rt.Dispatcher.Register(h)
	return rt.run(ctx)
}

// ServeOrdered is Serve for workers whose state depends on command order:
// h sees one command at a time, in the order they were read.
func (rt *Runtime) ServeOrdered(ctx context.Context, h dispatch.Handler) error {
	rt.Dispatcher.RegisterOrdered(h)
	return rt.run(ctx)
}

func (rt *Runtime) run(ctx context.Context) error {
	rt.Dispatcher.Start(ctx)
	rt.Dispatcher.Wait()
	return rt.Dispatcher.Err()
}

// Fatal logs msg with its attributes and exits. Only for start-up.
func Fatal(msg string, args ...any) {
	log.Error(msg, args...)
	os.Exit(1)
}
