package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

const (
	HandshakeOK  = "ok"
	HandshakeAck = "yippee!"
)

var ErrHandshake = errors.New("websocket handshake rejected")

type WebSocketConfig struct {
	URL  string
	Name string // announced to the hub as the first message

	Timeout   time.Duration // handshake deadline, 0 = none
	Reconnect time.Duration // delay between re-dials, 0 = no reconnect

	Dialer *ws.Dialer
}

// WebSocket is a Source backed by a persistent connection to the hub.
type WebSocket struct {
	cfg WebSocketConfig

	mu     sync.Mutex // guards conn and writes
	conn   *ws.Conn
	closed chan struct{}
	once   sync.Once
}

func DialWebSocket(ctx context.Context, cfg WebSocketConfig) (*WebSocket, error) {
	if cfg.Dialer == nil {
		cfg.Dialer = ws.DefaultDialer
	}

	log.Debug("Dialing hub", "url", cfg.URL, "name", cfg.Name)

	web := &WebSocket{
		cfg:    cfg,
		closed: make(chan struct{}),
	}

	conn, err := web.dial(ctx)
	if err != nil {
		return nil, err
	}
	web.conn = conn

	log.Info("Connected to hub", "url", cfg.URL)
	return web, nil
}

func (web *WebSocket) dial(ctx context.Context) (*ws.Conn, error) {
	conn, _, err := web.cfg.Dialer.DialContext(ctx, web.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", web.cfg.URL, err)
	}

	if err := clientHandshake(conn, web.cfg.Name, web.cfg.Timeout); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

func clientHandshake(conn *ws.Conn, name string, timeout time.Duration) error {
	if timeout > 0 {
		deadline := time.Now().Add(timeout)
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
		defer func() {
			_ = conn.SetReadDeadline(time.Time{})
			_ = conn.SetWriteDeadline(time.Time{})
		}()
	}

	if err := conn.WriteMessage(ws.TextMessage, []byte(name)); err != nil {
		return fmt.Errorf("send name: %w", err)
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read handshake: %w", err)
	}
	if string(msg) != HandshakeOK {
		return fmt.Errorf("%w: got %q", ErrHandshake, msg)
	}

	if err := conn.WriteMessage(ws.TextMessage, []byte(HandshakeAck)); err != nil {
		return fmt.Errorf("send ack: %w", err)
	}

	return nil
}

func (web *WebSocket) current() *ws.Conn {
	web.mu.Lock()
	defer web.mu.Unlock()
	return web.conn
}

func (web *WebSocket) isClosed() bool {
	select {
	case <-web.closed:
		return true
	default:
		return false
	}
}

// ReadLine returns the next text frame. A dropped connection is re-dialed
// when Reconnect is set; otherwise it ends the stream.
func (web *WebSocket) ReadLine(ctx context.Context) (string, error) {
	for {
		if web.isClosed() {
			return "", ErrClosed
		}

		conn := web.current()
		stop := context.AfterFunc(ctx, func() { conn.Close() })
		_, msg, err := conn.ReadMessage()
		stop()

		if err == nil {
			log.Debug("Read ws", "msg", string(msg))
			return string(msg), nil
		}

		switch {
		case web.isClosed():
			return "", ErrClosed
		case ctx.Err() != nil:
			return "", ctx.Err()
		case ws.IsCloseError(err, ws.CloseNormalClosure):
			return "", io.EOF
		case web.cfg.Reconnect <= 0:
			return "", err
		}

		log.Warn("Connection lost, reconnecting", "url", web.cfg.URL, "err", err)
		if err := web.reconnect(ctx); err != nil {
			return "", err
		}
		log.Info("Successfully reconnected", "url", web.cfg.URL)
	}
}

func (web *WebSocket) reconnect(ctx context.Context) error {
	for {
		conn, err := web.dial(ctx)
		if err == nil {
			web.mu.Lock()
			if web.isClosed() {
				// Close already ran and will not see this conn
				web.mu.Unlock()
				conn.Close()
				return ErrClosed
			}
			old := web.conn
			web.conn = conn
			web.mu.Unlock()
			old.Close()
			return nil
		}

		log.Debug("Reconnect failed", "err", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-web.closed:
			return ErrClosed
		case <-time.After(web.cfg.Reconnect):
		}
	}
}

// Send writes one line upstream to the hub.
func (web *WebSocket) Send(line string) error {
	web.mu.Lock()
	defer web.mu.Unlock()

	if web.isClosed() {
		return ErrClosed
	}

	log.Debug("Write ws", "msg", line)
	return web.conn.WriteMessage(ws.TextMessage, []byte(line))
}

func (web *WebSocket) Close() error {
	var err error
	web.once.Do(func() {
		close(web.closed)

		web.mu.Lock()
		defer web.mu.Unlock()

		msg := ws.FormatCloseMessage(ws.CloseNormalClosure, "")
		_ = web.conn.WriteControl(ws.CloseMessage, msg, time.Now().Add(time.Second))
		err = web.conn.Close()
	})
	return err
}
