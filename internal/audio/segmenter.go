package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
)

// DefaultSampleRate is the rate speech engines expect.
const DefaultSampleRate = 16000

// Window is one slice of resampled mono audio. Start is the timestamp of
// the first resampled batch, which can drift slightly from the nominal
// boundary. Frames are assigned by their start time, so the last frame of
// a window may run past the boundary: a window spans at most the window
// duration plus one decoded frame.
type Window struct {
	Index      int
	Start      float64
	SampleRate int
	Samples    []float32
}

// Duration returns the window length in seconds.
func (w Window) Duration() float64 {
	if w.SampleRate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// Options configures a Segmenter.
type Options struct {
	Start      float64
	Duration   float64
	SampleRate int
	// NewResampler defaults to NewLinearResampler.
	NewResampler ResamplerFactory
}

// Segmenter iterates over the windows of a stream. Use it like a
// bufio.Scanner:
//
//	for seg.Next() {
//		w := seg.Window()
//	}
//	if err := seg.Err(); err != nil { ... }
type Segmenter struct {
	stream  Stream
	opts    Options
	pending *Frame
	eof     bool
	current Window
	err     error
	closed  bool
}

// Open starts decoding source at opts.Start and returns a Segmenter over it.
func Open(ctx context.Context, dec Decoder, source string, opts Options) (*Segmenter, error) {
	if opts.Duration <= 0 {
		return nil, fmt.Errorf("audio: window duration must be positive, got %g", opts.Duration)
	}
	stream, err := dec.Open(ctx, source, opts.Start)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", source, err)
	}
	return NewSegmenter(stream, opts), nil
}

// NewSegmenter wraps an already positioned stream.
func NewSegmenter(stream Stream, opts Options) *Segmenter {
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.NewResampler == nil {
		opts.NewResampler = NewLinearResampler
	}
	return &Segmenter{stream: stream, opts: opts}
}

// Next advances to the next non-empty window. It returns false at the end
// of the stream or on error.
func (s *Segmenter) Next() bool {
	for s.err == nil && !s.closed {
		first, ok := s.nextFrame()
		if !ok {
			return false
		}
		w, err := s.collect(first)
		if err != nil {
			s.err = err
			return false
		}
		if len(w.Samples) > 0 {
			s.current = w
			return true
		}
	}
	return false
}

// Window returns the window produced by the last successful Next.
func (s *Segmenter) Window() Window {
	return s.current
}

// Err returns the first non-EOF error encountered.
func (s *Segmenter) Err() error {
	return s.err
}

// Close releases the underlying stream.
func (s *Segmenter) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.stream.Close()
}

func (s *Segmenter) windowIndex(f Frame) int {
	return int(math.Floor((f.Time() - s.opts.Start) / s.opts.Duration))
}

// nextFrame returns the lookahead frame or reads the next frame that falls
// at or after the start position.
func (s *Segmenter) nextFrame() (Frame, bool) {
	if s.pending != nil {
		f := *s.pending
		s.pending = nil
		return f, true
	}
	for {
		f, ok := s.read()
		if !ok {
			return Frame{}, false
		}
		if s.windowIndex(f) >= 0 {
			return f, true
		}
	}
}

func (s *Segmenter) read() (Frame, bool) {
	for !s.eof {
		f, err := s.stream.ReadFrame()
		switch {
		case err == nil:
			return f, true
		case errors.Is(err, ErrInvalidData):
			continue
		case errors.Is(err, io.EOF):
			s.eof = true
		default:
			s.err = fmt.Errorf("decode: %w", err)
			return Frame{}, false
		}
	}
	return Frame{}, false
}

// collect consumes every frame sharing first's window index and returns
// the resampled window. The frame that starts the next window is kept as
// lookahead.
func (s *Segmenter) collect(first Frame) (Window, error) {
	index := s.windowIndex(first)
	resampler := s.opts.NewResampler(s.opts.SampleRate)
	defer resampler.Close()

	var (
		q       fifo
		out     []int16
		start   float64
		started bool
	)
	push := func(batch Frame) error {
		res, err := resampler.Resample(batch)
		if err != nil {
			return fmt.Errorf("resample window %d: %w", index, err)
		}
		if !started && len(res.Samples) > 0 {
			start = res.DecodeTime()
			started = true
		}
		out = append(out, res.Samples...)
		return nil
	}

	q.write(first)
	for {
		if q.ready() {
			batch, _ := q.read()
			if err := push(batch); err != nil {
				return Window{}, err
			}
		}
		f, ok := s.read()
		if !ok {
			if s.err != nil {
				return Window{}, s.err
			}
			break
		}
		idx := s.windowIndex(f)
		if idx < 0 {
			continue
		}
		if idx != index {
			s.pending = &f
			break
		}
		q.write(f)
	}

	if batch, ok := q.read(); ok {
		if err := push(batch); err != nil {
			return Window{}, err
		}
	}
	tail, err := resampler.Flush()
	if err != nil {
		return Window{}, fmt.Errorf("flush window %d: %w", index, err)
	}
	if !started && len(tail.Samples) > 0 {
		start = tail.DecodeTime()
	}
	out = append(out, tail.Samples...)

	samples := make([]float32, len(out))
	for i, v := range out {
		samples[i] = float32(v) / 32768.0
	}
	return Window{Index: index, Start: start, SampleRate: s.opts.SampleRate, Samples: samples}, nil
}
