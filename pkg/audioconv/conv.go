// Package audioconv turns audio files into the mono 16 kHz float32 PCM
// that speech models consume, and back into WAV.
package audioconv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

const TargetRate = 16000

var ErrUnsupported = errors.New("unsupported audio format")

type Options struct {
	MaxSamples int // 0 = no limit
}

func (o Options) trim(x []float32) []float32 {
	if o.MaxSamples > 0 && len(x) > o.MaxSamples {
		return x[:o.MaxSamples]
	}
	return x
}

// ConvertFileToPCM16k decodes wav, mp3, ogg/vorbis or ogg/opus. The
// extension picks the decoder; unknown extensions are sniffed.
func ConvertFileToPCM16k(_ context.Context, path string, opt Options) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		return decodeWAV(f, opt)
	case ".mp3":
		return decodeMP3(f, opt)
	case ".ogg", ".oga", ".opus":
		return decodeOgg(f, opt)
	}

	magic, _ := bufio.NewReader(f).Peek(4)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	switch string(magic) {
	case "RIFF":
		return decodeWAV(f, opt)
	case "OggS":
		return decodeOgg(f, opt)
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupported, path)
}

// DecodeWAV decodes in-memory WAV data.
func DecodeWAV(data []byte, opt Options) ([]float32, error) {
	return decodeWAV(bytes.NewReader(data), opt)
}

func decodeWAV(r io.ReadSeeker, opt Options) ([]float32, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav")
	}

	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}
	if pb == nil || len(pb.Data) == 0 {
		return nil, errors.New("empty wav")
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}

	channels, rate := 1, 44100
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			channels = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			rate = pb.Format.SampleRate
		}
	}

	x := IntsToFloat32(pb.Data, bitDepth)
	x = Downmix(x, channels)
	x = Resample(x, rate, TargetRate)
	return opt.trim(x), nil
}

func decodeMP3(r io.Reader, opt Options) ([]float32, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}

	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, err
	}

	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return nil, err
	}

	rate := dec.SampleRate()
	if rate <= 0 {
		rate = 44100
	}

	// go-mp3 always yields interleaved stereo
	x := Downmix(Int16ToFloat32(ints), 2)
	x = Resample(x, rate, TargetRate)
	return opt.trim(x), nil
}

// decodeOgg tries Vorbis first and falls back to Opus.
func decodeOgg(r io.ReadSeeker, opt Options) ([]float32, error) {
	x, vErr := decodeVorbis(r, opt)
	if vErr == nil {
		return x, nil
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	x, oErr := decodeOpus(r, opt)
	if oErr == nil {
		return x, nil
	}

	return nil, fmt.Errorf("ogg: vorbis: %v; opus: %w", vErr, oErr)
}

func decodeVorbis(r io.Reader, opt Options) ([]float32, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, errors.New("invalid ogg/vorbis stream")
	}

	x := Downmix(pcm, format.Channels)
	x = Resample(x, format.SampleRate, TargetRate)
	return opt.trim(x), nil
}

func decodeOpus(r io.ReadSeeker, opt Options) ([]float32, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	defer dec.Destroy()

	channels := dec.ChannelCount()
	if channels <= 0 {
		channels = 1
	}

	// opus always decodes at 48 kHz
	var pcm48 []float32
	buf := make([]int16, 48_000*channels/2)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			pcm48 = append(pcm48, Int16ToFloat32(buf[:n*channels])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	if len(pcm48) == 0 {
		return nil, errors.New("empty opus stream")
	}

	x := Downmix(pcm48, channels)
	x = Resample(x, 48000, TargetRate)
	return opt.trim(x), nil
}
