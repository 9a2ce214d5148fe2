package audio

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// ChunkSamples is 80ms at 16 kHz, the frame size wake word models expect.
const ChunkSamples = 1280

// Capture streams fixed-size int16 chunks from the default input device.
type Capture struct {
	stream *portaudio.Stream
	buf    []int16
}

// OpenCapture initializes portaudio and starts the input stream. Close
// releases both.
func OpenCapture(chunk int) (*Capture, error) {
	if chunk <= 0 {
		chunk = ChunkSamples
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}

	c := &Capture{buf: make([]int16, chunk)}

	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(c.buf), c.buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open input: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start input: %w", err)
	}

	c.stream = stream
	return c, nil
}

// ReadChunk blocks for the next chunk. The returned slice is a copy.
func (c *Capture) ReadChunk(ctx context.Context) ([]int16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := c.stream.Read(); err != nil {
		// overflow just means we fell behind; the data is still usable
		if err != portaudio.InputOverflowed {
			return nil, err
		}
	}

	return append([]int16(nil), c.buf...), nil
}

func (c *Capture) Close() error {
	_ = c.stream.Stop()
	err := c.stream.Close()
	portaudio.Terminate()
	return err
}
