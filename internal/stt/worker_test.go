package stt

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxwork/internal/audio"
	"voxwork/internal/emit"
	"voxwork/pkg/dispatch"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeRecorder struct {
	entered chan struct{}
	release chan struct{}
	pcm     []float32
	err     error
}

func (r *fakeRecorder) RecordAuto(ctx context.Context) ([]float32, error) {
	if r.entered != nil {
		close(r.entered)
	}
	if r.release != nil {
		<-r.release
	}
	return r.pcm, r.err
}

type fakeTranscriber struct {
	text string
	err  error
	got  []float32
}

func (f *fakeTranscriber) Transcribe(_ context.Context, pcm []float32) (string, error) {
	f.got = pcm
	return f.text, f.err
}

func payload(text string) dispatch.Command {
	return dispatch.Command{Kind: dispatch.KindPayload, Text: text}
}

func TestStartPrintsResult(t *testing.T) {
	t.Parallel()

	var out syncBuffer
	cued := false
	w := New(
		&fakeRecorder{pcm: []float32{0.1, 0.2}},
		&fakeTranscriber{text: "  what time is it "},
		emit.New(&out),
		WithCue(func(context.Context) error { cued = true; return nil }),
	)

	w.Handle(context.Background(), payload("start"))

	assert.True(t, cued)
	assert.Equal(t, "result what time is it\n", out.String())
}

func TestOtherCommandsAreIgnored(t *testing.T) {
	t.Parallel()

	var out syncBuffer
	w := New(&fakeRecorder{}, &fakeTranscriber{}, emit.New(&out))

	for _, line := range []string{"stop", "start now", "file"} {
		w.Handle(context.Background(), payload(line))
	}

	assert.Equal(t, "ignore stop\nignore start now\nignore file\n", out.String())
}

func TestFileUsesLoader(t *testing.T) {
	t.Parallel()

	var out syncBuffer
	tr := &fakeTranscriber{text: "from disk"}
	var loaded string
	w := New(&fakeRecorder{}, tr, emit.New(&out), WithLoader(func(_ context.Context, path string) ([]float32, error) {
		loaded = path
		return []float32{1}, nil
	}))

	w.Handle(context.Background(), payload("file /tmp/memo.ogg"))

	assert.Equal(t, "/tmp/memo.ogg", loaded)
	assert.Equal(t, []float32{1}, tr.got)
	assert.Equal(t, "result from disk\n", out.String())
}

func TestFailuresReleaseCaller(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rec  *fakeRecorder
		tr   *fakeTranscriber
		want string
	}{
		{
			name: "silence",
			rec:  &fakeRecorder{err: audio.ErrNoSpeech},
			tr:   &fakeTranscriber{},
			want: "result\n",
		},
		{
			name: "model error",
			rec:  &fakeRecorder{pcm: []float32{0}},
			tr:   &fakeTranscriber{err: errors.New("model exploded")},
			want: "error model exploded\nresult\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out syncBuffer
			New(tt.rec, tt.tr, emit.New(&out)).Handle(context.Background(), payload("start"))
			assert.Equal(t, tt.want, out.String())
		})
	}
}

func TestConcurrentStartIsIgnored(t *testing.T) {
	t.Parallel()

	var out syncBuffer
	rec := &fakeRecorder{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		pcm:     []float32{0},
	}
	w := New(rec, &fakeTranscriber{text: "first"}, emit.New(&out))

	done := make(chan error, 1)
	go func() { done <- w.Listen(context.Background()) }()
	<-rec.entered

	assert.ErrorIs(t, w.Listen(context.Background()), ErrBusy)
	w.Handle(context.Background(), payload("start"))
	assert.Equal(t, "ignore start\n", out.String())

	close(rec.release)
	require.NoError(t, <-done)
	assert.Equal(t, "ignore start\nresult first\n", out.String())
}
