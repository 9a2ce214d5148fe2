package dispatch

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"sync"
)

// MaxLineSize caps a single command line read from a stream.
const MaxLineSize = 1 << 20

var ErrClosed = errors.New("source closed")

// Source yields command lines without their terminator. ReadLine returns
// io.EOF once the input is exhausted and ErrClosed after Close.
type Source interface {
	ReadLine(ctx context.Context) (string, error)
	Close() error
}

// ReaderSource scans lines from an io.Reader on its own goroutine so a
// blocked read never pins ReadLine past ctx cancellation or Close.
type ReaderSource struct {
	lines  chan string
	eof    chan struct{}
	closed chan struct{}
	once   sync.Once
	err    error
}

func NewReaderSource(r io.Reader) *ReaderSource {
	s := &ReaderSource{
		lines:  make(chan string),
		eof:    make(chan struct{}),
		closed: make(chan struct{}),
	}
	go s.scan(r)
	return s
}

// Stdin reads commands from the process standard input.
func Stdin() *ReaderSource {
	return NewReaderSource(os.Stdin)
}

func (s *ReaderSource) scan(r io.Reader) {
	defer close(s.eof)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineSize)

	for sc.Scan() {
		select {
		case s.lines <- sc.Text():
		case <-s.closed:
			return
		}
	}

	s.err = sc.Err()
	if s.err == nil {
		s.err = io.EOF
	}
}

func (s *ReaderSource) ReadLine(ctx context.Context) (string, error) {
	select {
	case line := <-s.lines:
		return line, nil
	case <-s.eof:
		if s.err == nil {
			return "", ErrClosed
		}
		return "", s.err
	case <-s.closed:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *ReaderSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}
