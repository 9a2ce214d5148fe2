package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"os"
	"sync"
)

const (
	DefaultWorkers   = 4
	DefaultQueueSize = 64
)

// Handler receives every payload command. ctx is cancelled when the
// dispatcher's parent context is.
type Handler func(ctx context.Context, cmd Command)

type Option func(*Dispatcher)

// WithWorkers sets the number of goroutines running handlers.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithQueueSize bounds the number of pending handler jobs. The read loop
// blocks while the queue is full.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n >= 0 {
			d.queueSize = n
		}
	}
}

// WithPong replaces the local acknowledgment sent for "ping".
func WithPong(f func()) Option {
	return func(d *Dispatcher) {
		if f != nil {
			d.pong = f
		}
	}
}

type job struct {
	h   Handler
	cmd Command
}

// route is a registered handler. Ordered routes own a lane drained by a
// single goroutine; the rest share the pool.
type route struct {
	h    Handler
	lane chan Command
}

// Dispatcher reads lines from a Source and fans payloads out to the
// registered handlers on a bounded worker pool. Handlers registered with
// RegisterOrdered see their commands one at a time in read order.
type Dispatcher struct {
	src       Source
	workers   int
	queueSize int
	pong      func()

	mu      sync.Mutex
	routes  []route
	ctx     context.Context
	running bool
	closed  bool
	err     error

	jobs     chan job
	quit     chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
	started  sync.Once
	stopOnce sync.Once
}

func New(src Source, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		src:       src,
		workers:   DefaultWorkers,
		queueSize: DefaultQueueSize,
		pong:      func() { fmt.Fprintln(os.Stdout, "pong") },
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(d)
	}

	d.jobs = make(chan job, d.queueSize)

	return d
}

// Register appends h. Commands read before the call are not replayed.
func (d *Dispatcher) Register(h Handler) {
	if h == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.routes = append(d.routes, route{h: h})
}

// RegisterOrdered appends h with its own lane: h runs for one command at
// a time, in the order the lines were read. A slow h holds back the read
// loop once its lane is full.
func (d *Dispatcher) RegisterOrdered(h Handler) {
	if h == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	r := route{h: h, lane: make(chan Command, d.queueSize)}
	d.routes = append(d.routes, r)
	if d.ctx != nil {
		d.wg.Add(1)
		go d.drain(d.ctx, r)
	}
}

// Start launches the read loop and the worker pool. It returns at once;
// calling it again is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	d.started.Do(func() {
		d.mu.Lock()
		d.running = true
		d.ctx = ctx
		for _, r := range d.routes {
			if r.lane != nil {
				d.wg.Add(1)
				go d.drain(ctx, r)
			}
		}
		d.mu.Unlock()

		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.work(ctx)
		}

		go d.listen(ctx)
	})
}

// Stop ends the read loop at its next opportunity and closes the source.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()

		close(d.quit)

		if err := d.src.Close(); err != nil {
			log.Debug("Failed to close source", "err", err)
		}
	})
}

// Done is closed once the read loop has exited.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Wait blocks until the read loop has exited and every queued handler
// job has returned.
func (d *Dispatcher) Wait() {
	<-d.done
	d.wg.Wait()
}

// Err reports the read error that ended the loop. Exit, EOF, Stop and
// context cancellation all leave it nil.
func (d *Dispatcher) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *Dispatcher) isRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *Dispatcher) snapshot() []route {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]route(nil), d.routes...)
}

// shut closes every job channel so the pool and the lanes drain and exit.
func (d *Dispatcher) shut() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	for _, r := range d.routes {
		if r.lane != nil {
			close(r.lane)
		}
	}
	close(d.jobs)
}

func (d *Dispatcher) listen(ctx context.Context) {
	defer func() {
		d.shut()
		close(d.done)
	}()

	stop := context.AfterFunc(ctx, d.Stop)
	defer stop()

	for d.isRunning() {
		line, err := d.src.ReadLine(ctx)
		if err != nil {
			d.finish(ctx, err)
			return
		}

		cmd := Parse(line)
		switch cmd.Kind {
		case KindExit:
			log.Info("Exit command received")
			d.Stop()
			return
		case KindPing:
			d.pong()
			continue
		}

		if !d.isRunning() {
			return
		}

		for _, r := range d.snapshot() {
			if !d.deliver(r, cmd) {
				return
			}
		}
	}
}

func (d *Dispatcher) deliver(r route, cmd Command) bool {
	if r.lane != nil {
		select {
		case r.lane <- cmd:
			return true
		case <-d.quit:
			return false
		}
	}

	select {
	case d.jobs <- job{h: r.h, cmd: cmd}:
		return true
	case <-d.quit:
		return false
	}
}

func (d *Dispatcher) finish(ctx context.Context, err error) {
	switch {
	case errors.Is(err, io.EOF):
		log.Info("Input exhausted")
	case errors.Is(err, ErrClosed), ctx.Err() != nil, !d.isRunning():
		log.Debug("Read loop stopped", "err", err)
	default:
		log.Error("Failed to read command", "err", err)
		d.mu.Lock()
		d.err = err
		d.mu.Unlock()
	}

	d.Stop()
}

func (d *Dispatcher) work(ctx context.Context) {
	defer d.wg.Done()

	for j := range d.jobs {
		d.run(ctx, j)
	}
}

func (d *Dispatcher) drain(ctx context.Context, r route) {
	defer d.wg.Done()

	for cmd := range r.lane {
		d.run(ctx, job{h: r.h, cmd: cmd})
	}
}

func (d *Dispatcher) run(ctx context.Context, j job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Handler panicked", "cmd", j.cmd.Text, "panic", r)
		}
	}()

	j.h(ctx, j.cmd)
}
