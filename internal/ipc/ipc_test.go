package ipc

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxwork/pkg/dispatch"
)

func socketPath(t *testing.T) string {
	t.Helper()

	// unix socket paths are length limited, keep it short
	dir, err := os.MkdirTemp("", "vox")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	return filepath.Join(dir, "w.sock")
}

func TestListenerReadsSentLines(t *testing.T) {
	t.Parallel()

	path := socketPath(t)
	l, err := Listen(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	require.NoError(t, Send(path, "lock", "unlock"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, want := range []string{"lock", "unlock"} {
		line, err := l.ReadLine(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, line)
	}
}

func TestListenerDrivesDispatcher(t *testing.T) {
	t.Parallel()

	path := socketPath(t)
	l, err := Listen(path)
	require.NoError(t, err)

	got := make(chan string, 4)
	d := dispatch.New(l)
	d.Register(func(_ context.Context, cmd dispatch.Command) { got <- cmd.Text })
	d.Start(context.Background())

	require.NoError(t, Send(path, "start", "exit", "late"))

	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
	d.Wait()

	close(got)
	var lines []string
	for line := range got {
		lines = append(lines, line)
	}
	assert.Equal(t, []string{"start"}, lines)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "socket file removed on close")
}

func TestSendRejectsMultilineCommand(t *testing.T) {
	t.Parallel()

	path := socketPath(t)
	l, err := Listen(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	assert.Error(t, Send(path, "u1 hello\nexit"))
}

func TestSendWithoutWorker(t *testing.T) {
	t.Parallel()

	assert.Error(t, Send(socketPath(t), "start"))
}

func TestCloseUnblocksRead(t *testing.T) {
	t.Parallel()

	l, err := Listen(socketPath(t))
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := l.ReadLine(context.Background())
		errc <- err
	}()

	require.NoError(t, l.Close())
	assert.ErrorIs(t, <-errc, dispatch.ErrClosed)
}

func TestListenKeepsRegularFile(t *testing.T) {
	t.Parallel()

	path := socketPath(t)
	require.NoError(t, os.WriteFile(path, []byte("precious"), 0o600))

	_, err := Listen(path)
	require.ErrorIs(t, err, ErrNotSocket)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "precious", string(data))
}

func TestListenReplacesStaleSocket(t *testing.T) {
	t.Parallel()

	path := socketPath(t)
	stale, err := net.Listen("unix", path)
	require.NoError(t, err)
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, stale.Close())

	l, err := Listen(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	require.NoError(t, Send(path, "ping"))
}
