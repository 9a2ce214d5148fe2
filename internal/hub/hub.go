// Package hub is the local WebSocket server that workers connect to.
// Each worker announces its name, receives "ok", acknowledges, and from
// then on gets commands as text frames and sends result lines back.
package hub

import (
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"voxwork/pkg/dispatch"
)

const DefaultPort = 3280

var ErrUnknownWorker = errors.New("unknown worker")

type peer struct {
	name string
	conn *ws.Conn
	mu   sync.Mutex
}

func (p *peer) write(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteMessage(ws.TextMessage, []byte(line))
}

type Hub struct {
	upgrader ws.Upgrader
	timeout  time.Duration

	// OnMessage receives every line a worker sends after the handshake.
	OnMessage func(name, line string)

	mu    sync.Mutex
	peers map[string]*peer
}

// New returns a Hub. timeout bounds the handshake; 0 disables it.
func New(timeout time.Duration) *Hub {
	return &Hub{
		timeout: timeout,
		peers:   make(map[string]*peer),
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("Failed to upgrade", "remote", r.RemoteAddr, "err", err)
		return
	}

	name, err := h.handshake(conn)
	if err != nil {
		log.Warn("Handshake failed", "remote", r.RemoteAddr, "err", err)
		conn.Close()
		return
	}

	p := &peer{name: name, conn: conn}
	h.attach(p)
	defer h.detach(p)

	log.Info("Worker connected", "name", name, "remote", r.RemoteAddr)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				log.Debug("Worker read ended", "name", name, "err", err)
			}
			log.Info("Worker disconnected", "name", name)
			return
		}

		if h.OnMessage != nil {
			h.OnMessage(name, string(msg))
		}
	}
}

func (h *Hub) handshake(conn *ws.Conn) (string, error) {
	if h.timeout > 0 {
		deadline := time.Now().Add(h.timeout)
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
		defer func() {
			_ = conn.SetReadDeadline(time.Time{})
			_ = conn.SetWriteDeadline(time.Time{})
		}()
	}

	_, name, err := conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("read name: %w", err)
	}
	if len(name) == 0 {
		return "", errors.New("empty worker name")
	}

	if err := conn.WriteMessage(ws.TextMessage, []byte(dispatch.HandshakeOK)); err != nil {
		return "", fmt.Errorf("send ok: %w", err)
	}

	if _, _, err := conn.ReadMessage(); err != nil {
		return "", fmt.Errorf("read ack: %w", err)
	}

	return string(name), nil
}

func (h *Hub) attach(p *peer) {
	h.mu.Lock()
	old := h.peers[p.name]
	h.peers[p.name] = p
	h.mu.Unlock()

	if old != nil {
		log.Warn("Replacing worker connection", "name", p.name)
		old.conn.Close()
	}
}

func (h *Hub) detach(p *peer) {
	h.mu.Lock()
	if h.peers[p.name] == p {
		delete(h.peers, p.name)
	}
	h.mu.Unlock()

	p.conn.Close()
}

func (h *Hub) lookup(name string) (*peer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.peers[name]
	return p, ok
}

// Send writes one command line to the named worker.
func (h *Hub) Send(name, line string) error {
	p, ok := h.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorker, name)
	}

	if err := p.write(line); err != nil {
		return fmt.Errorf("send to %s: %w", name, err)
	}
	return nil
}

func (h *Hub) Ping(name string) error {
	return h.Send(name, dispatch.PingLine)
}

// Broadcast sends line to every connected worker and returns the first
// error encountered.
func (h *Hub) Broadcast(line string) error {
	var first error
	for _, name := range h.Workers() {
		if err := h.Send(name, line); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Workers lists connected worker names in sorted order.
func (h *Hub) Workers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	names := make([]string, 0, len(h.peers))
	for name := range h.peers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close drops every worker connection.
func (h *Hub) Close() {
	h.mu.Lock()
	peers := h.peers
	h.peers = make(map[string]*peer)
	h.mu.Unlock()

	for _, p := range peers {
		msg := ws.FormatCloseMessage(ws.CloseGoingAway, "hub shutting down")
		p.mu.Lock()
		_ = p.conn.WriteControl(ws.CloseMessage, msg, time.Now().Add(time.Second))
		p.mu.Unlock()
		p.conn.Close()
	}
}
