// Package tts is the text-to-speech worker. Requests are queued by the
// dispatcher handler and spoken one at a time by Run.
package tts

import (
	"context"
	"errors"
	log "log/slog"
	"strings"

	"voxwork/internal/emit"
	"voxwork/pkg/dispatch"
)

// Synthesizer turns text into a WAV file.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type Player interface {
	Play(ctx context.Context, wav []byte) error
}

type Worker struct {
	queue  *Queue
	synth  Synthesizer
	player Player
	out    *emit.Emitter
}

func New(synth Synthesizer, player Player, out *emit.Emitter) *Worker {
	return &Worker{
		queue:  NewQueue(),
		synth:  synth,
		player: player,
		out:    out,
	}
}

// Handle queues "<id> <text>" lines.
func (w *Worker) Handle(_ context.Context, cmd dispatch.Command) {
	id, text, _ := strings.Cut(cmd.Text, " ")
	text = strings.TrimSpace(text)

	if id == "" || text == "" {
		w.out.Emit(emit.Ignore, cmd.Text)
		return
	}

	if err := w.queue.Push(Request{ID: id, Text: text}); err != nil {
		log.Warn("Dropped request", "id", id, "err", err)
		w.fail(id, err)
	}
}

// Close stops accepting requests. Run finishes the queued ones and returns.
func (w *Worker) Close() {
	w.queue.Close()
}

// Run speaks queued requests in order until ctx is done or the worker is
// closed and drained.
func (w *Worker) Run(ctx context.Context) error {
	for {
		req, err := w.queue.Pop(ctx)
		switch {
		case errors.Is(err, ErrQueueClosed):
			return nil
		case err != nil:
			return err
		}

		w.speak(ctx, req)
	}
}

func (w *Worker) speak(ctx context.Context, req Request) {
	log.Debug("Synthesizing", "id", req.ID, "text", req.Text)

	wav, err := w.synth.Synthesize(ctx, req.Text)
	if err != nil {
		log.Error("Failed to synthesize", "id", req.ID, "err", err)
		w.fail(req.ID, err)
		return
	}

	w.out.Emit(emit.Start, req.ID)

	if err := w.player.Play(ctx, wav); err != nil {
		log.Error("Failed to play", "id", req.ID, "err", err)
		w.out.Emit(emit.Error, req.ID, oneLine(err))
	}

	w.out.Emit(emit.Finish, req.ID)
}

func (w *Worker) fail(id string, err error) {
	w.out.Emit(emit.Error, id, oneLine(err))
	w.out.Emit(emit.Finish, id)
}

func oneLine(err error) string {
	return strings.Join(strings.Fields(err.Error()), " ")
}
