package audioconv

import (
	"fmt"
	"io"
)

// Buffer is an in-memory io.WriteSeeker, enough for the WAV encoder to
// patch its header after the samples are written.
type Buffer struct {
	buf []byte
	pos int
}

func (b *Buffer) Write(p []byte) (int, error) {
	end := b.pos + len(p)
	if end > len(b.buf) {
		b.buf = append(b.buf, make([]byte, end-len(b.buf))...)
	}
	copy(b.buf[b.pos:], p)
	b.pos = end
	return len(p), nil
}

func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	var base int
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = b.pos
	case io.SeekEnd:
		base = len(b.buf)
	default:
		return 0, fmt.Errorf("bad whence %d", whence)
	}

	next := base + int(offset)
	if next < 0 {
		return 0, fmt.Errorf("negative position %d", next)
	}
	b.pos = next
	return int64(next), nil
}

func (b *Buffer) Bytes() []byte { return b.buf }
