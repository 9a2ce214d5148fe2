package tts

import (
	"context"
	"errors"
	"sync"
)

var ErrQueueClosed = errors.New("queue closed")

// Request is one line of text to speak, tagged with the caller's id.
type Request struct {
	ID   string
	Text string
}

// Queue is an unbounded FIFO of requests with a blocking, cancellable Pop.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Request
	closed bool
}

func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *Queue) Push(r Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.items = append(q.items, r)
	q.cond.Signal()
	return nil
}

// Pop waits for the next request. After Close the remaining requests are
// still handed out, then ErrQueueClosed is returned.
func (q *Queue) Pop(ctx context.Context) (Request, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed && ctx.Err() == nil {
		q.cond.Wait()
	}

	if err := ctx.Err(); err != nil {
		return Request{}, err
	}
	if len(q.items) == 0 {
		return Request{}, ErrQueueClosed
	}

	r := q.items[0]
	q.items[0] = Request{}
	q.items = q.items[1:]
	return r, nil
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}
