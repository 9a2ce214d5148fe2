// Package wake is the wake-word worker. It scores microphone audio
// continuously and prints a wake line when the model fires.
package wake

import (
	"context"
	log "log/slog"
	"sync"
	"time"

	"voxwork/internal/emit"
	"voxwork/pkg/dispatch"
)

const (
	CmdLock   = "lock"
	CmdUnlock = "unlock"

	DefaultThreshold = 0.6
	DefaultRearm     = 3 * time.Second
)

type ChunkSource interface {
	ReadChunk(ctx context.Context) ([]int16, error)
}

type Scorer interface {
	Score(chunk []int16) (float32, error)
}

// resetter is implemented by scorers that keep audio history.
type resetter interface {
	Reset()
}

type Config struct {
	Model     string
	Threshold float64
	Rearm     time.Duration
}

func (c *Config) defaults() {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Rearm <= 0 {
		c.Rearm = DefaultRearm
	}
}

type Worker struct {
	cfg    Config
	src    ChunkSource
	scorer Scorer
	out    *emit.Emitter
	now    func() time.Time

	mu     sync.Mutex
	locked bool
	stale  bool // scorer history predates the last unlock
	awake  time.Time
}

func New(cfg Config, src ChunkSource, scorer Scorer, out *emit.Emitter) *Worker {
	cfg.defaults()
	return &Worker{
		cfg:    cfg,
		src:    src,
		scorer: scorer,
		out:    out,
		now:    time.Now,
	}
}

// Handle toggles detection on "lock" and "unlock".
func (w *Worker) Handle(_ context.Context, cmd dispatch.Command) {
	switch cmd.Text {
	case CmdLock:
		w.setLocked(true)
	case CmdUnlock:
		w.setLocked(false)
	default:
		w.out.Emit(emit.Ignore, cmd.Text)
	}
}

func (w *Worker) setLocked(locked bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.locked && !locked {
		w.stale = true
	}
	w.locked = locked
	log.Info("Detection toggled", "locked", locked)
}

func (w *Worker) Locked() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.locked
}

// Run reads and scores chunks until ctx is done or the source fails.
// Audio keeps being drained while locked so no stale backlog builds up.
func (w *Worker) Run(ctx context.Context) error {
	log.Info("Listening for wake word", "model", w.cfg.Model, "threshold", w.cfg.Threshold)

	for {
		chunk, err := w.src.ReadChunk(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := w.process(chunk); err != nil {
			log.Warn("Failed to score chunk", "err", err)
		}
	}
}

func (w *Worker) process(chunk []int16) error {
	locked, stale := w.state()
	if locked {
		return nil
	}
	if r, ok := w.scorer.(resetter); ok && stale {
		r.Reset()
	}

	score, err := w.scorer.Score(chunk)
	if err != nil {
		return err
	}

	if score > 0 {
		log.Debug("Scored", "score", score)
	}

	w.observe(score)
	return nil
}

func (w *Worker) state() (locked, stale bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	stale = w.stale
	if !w.locked {
		w.stale = false
	}
	return w.locked, stale
}

// observe prints a wake line for a score above threshold unless the
// worker is locked or still inside the re-arm window of the last wake.
func (w *Worker) observe(score float32) {
	now := w.now()

	w.mu.Lock()
	if !w.awake.IsZero() && now.Sub(w.awake) > w.cfg.Rearm {
		w.awake = time.Time{}
	}

	fire := !w.locked && w.awake.IsZero() && float64(score) > w.cfg.Threshold
	if fire {
		w.awake = now
	}
	w.mu.Unlock()

	if fire {
		log.Info("Wake word detected", "model", w.cfg.Model, "score", score)
		w.out.Emit(emit.Wake, w.cfg.Model)
	}
}
