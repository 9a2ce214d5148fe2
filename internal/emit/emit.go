// Package emit writes the line-oriented status output of a worker.
package emit

import (
	"fmt"
	"io"
	log "log/slog"
	"strings"
	"sync"
)

const (
	Result = "result"
	Start  = "start"
	Finish = "finish"
	Wake   = "wake"
	Ignore = "ignore"
	Pong   = "pong"
	Error  = "error"
)

// Emitter serializes output lines so concurrent handlers never
// interleave. Every line also goes to each registered sink.
type Emitter struct {
	mu    sync.Mutex
	w     io.Writer
	sinks []func(line string) error
}

func New(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

// Tee registers an extra destination, e.g. the hub connection.
func (e *Emitter) Tee(sink func(line string) error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, sink)
}

// Emit writes "prefix arg1 arg2 ..." as one line.
func (e *Emitter) Emit(prefix string, args ...string) {
	line := prefix
	if len(args) > 0 {
		line += " " + strings.Join(args, " ")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := fmt.Fprintln(e.w, line); err != nil {
		log.Warn("Failed to write output", "line", line, "err", err)
	}

	for _, sink := range e.sinks {
		if err := sink(line); err != nil {
			log.Warn("Failed to forward output", "line", line, "err", err)
		}
	}
}
