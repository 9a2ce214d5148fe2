package boot

import (
	"bytes"
	"context"
	"io"
	log "log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxwork/internal/config"
	"voxwork/internal/ipc"
	"voxwork/pkg/dispatch"
)

func TestLoadConfigFindsFileAmongOtherFlags(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "vox.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tts:\n  model: espeak:de\n"), 0o644))

	cfg, err := LoadConfig([]string{"--log", "debug", "-c", path, "espeak:fr"})
	require.NoError(t, err)
	assert.Equal(t, "espeak:de", cfg.TTS.Model)
}

func TestLoadConfigWithoutFile(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig([]string{"--model", "small"})
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestCommonFlagsOverrideConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	set := pflag.NewFlagSet("test", pflag.ContinueOnError)
	Common(set, &cfg)

	require.NoError(t, set.Parse([]string{"-l", "debug", "--workers", "2", "--hub", "ws://localhost:3280"}))
	assert.Equal(t, "debug", cfg.Log)
	assert.Equal(t, 2, cfg.Dispatch.Workers)
	assert.Equal(t, "ws://localhost:3280", cfg.Hub.URL)
	assert.Equal(t, 64, cfg.Dispatch.Queue)
}

func TestResolveDeviceKeepsExplicitChoice(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "cpu", ResolveDevice("cpu"))
	assert.Equal(t, "cuda", ResolveDevice("cuda"))
	assert.Contains(t, []string{"cpu", "cuda"}, ResolveDevice("tpu"))
	assert.Contains(t, []string{"cpu", "cuda"}, ResolveDevice(""))
}

func TestOpenOverSocketEmitsPong(t *testing.T) {
	t.Parallel()

	dir, err := os.MkdirTemp("", "vox")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	cfg := config.Default()
	cfg.Dispatch.Socket = filepath.Join(dir, "c.sock")

	var out bytes.Buffer
	rt, err := Open(context.Background(), cfg, "test", &out)
	require.NoError(t, err)

	rt.Dispatcher.Start(context.Background())
	require.NoError(t, ipc.Send(cfg.Dispatch.Socket, "ping", "exit"))

	select {
	case <-rt.Dispatcher.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
	rt.Dispatcher.Wait()

	assert.Equal(t, "pong", strings.TrimSpace(out.String()))
}

func TestSetupLoggerUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	SetupLoggerTo(&buf, "loud")
	t.Cleanup(func() { SetupLoggerTo(os.Stderr, "info") })

	log.Debug("hidden detail")
	log.Info("Booting up")

	assert.NotContains(t, buf.String(), "hidden detail")
	assert.Contains(t, buf.String(), "Booting up")
}

func TestServeRunsHandlerUntilExit(t *testing.T) {
	t.Parallel()

	dir, err := os.MkdirTemp("", "vox")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	cfg := config.Default()
	cfg.Dispatch.Socket = filepath.Join(dir, "s.sock")

	rt, err := Open(context.Background(), cfg, "test", io.Discard)
	require.NoError(t, err)

	got := make(chan string, 4)
	served := make(chan error, 1)
	go func() {
		served <- rt.Serve(context.Background(), func(_ context.Context, cmd dispatch.Command) {
			got <- cmd.Text
		})
	}()

	require.Eventually(t, func() bool {
		return ipc.Send(cfg.Dispatch.Socket, "hello", "exit", "late") == nil
	}, time.Second, 10*time.Millisecond)

	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}

	require.Len(t, got, 1)
	assert.Equal(t, "hello", <-got)
}

func TestServeOrderedKeepsReadOrder(t *testing.T) {
	t.Parallel()

	dir, err := os.MkdirTemp("", "vox")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	cfg := config.Default()
	cfg.Dispatch.Socket = filepath.Join(dir, "s.sock")

	rt, err := Open(context.Background(), cfg, "test", io.Discard)
	require.NoError(t, err)

	want := []string{"lock", "unlock", "lock", "unlock", "lock", "unlock"}
	got := make(chan string, len(want))
	served := make(chan error, 1)
	go func() {
		served <- rt.ServeOrdered(context.Background(), func(_ context.Context, cmd dispatch.Command) {
			got <- cmd.Text
		})
	}()

	require.Eventually(t, func() bool {
		return ipc.Send(cfg.Dispatch.Socket, append(want, "exit")...) == nil
	}, time.Second, 10*time.Millisecond)

	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ServeOrdered did not return")
	}

	close(got)
	var seen []string
	for line := range got {
		seen = append(seen, line)
	}
	assert.Equal(t, want, seen)
}
