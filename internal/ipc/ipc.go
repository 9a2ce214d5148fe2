// Package ipc exposes a worker's command stream on a unix socket so local
// tools can drive it without owning its stdin.
package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	log "log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"voxwork/pkg/dispatch"
)

// SocketPath returns the conventional control socket for a worker.
func SocketPath(name string) string {
	return fmt.Sprintf("/tmp/vox-%s.sock", name)
}

// Listener is a dispatch.Source fed by every connection to the socket.
// Lines from different connections interleave in arrival order.
type Listener struct {
	path   string
	ln     net.Listener
	lines  chan string
	closed chan struct{}
	once   sync.Once

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// ErrNotSocket is returned when the control path is taken by something
// other than a socket.
var ErrNotSocket = errors.New("path exists and is not a socket")

// Listen binds path, replacing a stale socket left by an earlier run.
func Listen(path string) (*Listener, error) {
	if err := removeStale(path); err != nil {
		return nil, err
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	l := &Listener{
		path:   path,
		ln:     ln,
		lines:  make(chan string),
		closed: make(chan struct{}),
		conns:  make(map[net.Conn]struct{}),
	}
	go l.accept()

	log.Debug("Control socket ready", "path", path)
	return l, nil
}

func removeStale(path string) error {
	fi, err := os.Lstat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return err
	case fi.Mode()&fs.ModeSocket == 0:
		return fmt.Errorf("%s: %w", path, ErrNotSocket)
	}
	return os.Remove(path)
}

func (l *Listener) accept() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn("Failed to accept control connection", "err", err)
			continue
		}

		l.mu.Lock()
		l.conns[conn] = struct{}{}
		l.mu.Unlock()

		go l.handleConn(conn)
	}
}

func (l *Listener) handleConn(conn net.Conn) {
	defer func() {
		l.mu.Lock()
		delete(l.conns, conn)
		l.mu.Unlock()
		conn.Close()
	}()

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), dispatch.MaxLineSize)

	for sc.Scan() {
		select {
		case l.lines <- sc.Text():
		case <-l.closed:
			return
		}
	}
}

func (l *Listener) ReadLine(ctx context.Context) (string, error) {
	select {
	case line := <-l.lines:
		return line, nil
	case <-l.closed:
		return "", dispatch.ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.closed)
		err = l.ln.Close()

		l.mu.Lock()
		for conn := range l.conns {
			conn.Close()
		}
		l.mu.Unlock()

		log.Debug("Control socket closed", "path", l.path)
	})
	return err
}

// Send writes each line to the worker listening on path.
func Send(path string, lines ...string) error {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return err
	}
	defer conn.Close()

	w := bufio.NewWriter(conn)
	for _, line := range lines {
		if strings.ContainsAny(line, "\r\n") {
			return fmt.Errorf("command %q spans multiple lines", line)
		}
		if _, err := w.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return w.Flush()
}
