package audio

import (
	"context"
	"errors"
)

// ErrInvalidData marks a single undecodable frame. Segmenter skips it and
// keeps reading.
var ErrInvalidData = errors.New("audio: invalid data in frame")

// Rational is a stream time base.
type Rational struct {
	Num int64
	Den int64
}

// Frame is one decoded block of interleaved signed 16-bit samples.
type Frame struct {
	PTS        int64
	DTS        int64
	TimeBase   Rational
	SampleRate int
	Channels   int
	Samples    []int16
}

// Seconds converts a tick count in this time base to seconds.
func (r Rational) Seconds(ticks int64) float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(ticks) * float64(r.Num) / float64(r.Den)
}

// Time returns the presentation time in seconds.
func (f Frame) Time() float64 {
	return f.TimeBase.Seconds(f.PTS)
}

// DecodeTime returns the decode timestamp in seconds.
func (f Frame) DecodeTime() float64 {
	return f.TimeBase.Seconds(f.DTS)
}

// Len returns the number of samples per channel.
func (f Frame) Len() int {
	if f.Channels <= 0 {
		return 0
	}
	return len(f.Samples) / f.Channels
}

// Stream yields decoded frames in stream order. ReadFrame returns io.EOF at
// the end and may return ErrInvalidData for a frame that should be skipped.
type Stream interface {
	ReadFrame() (Frame, error)
	Close() error
}

// Decoder opens a source positioned at start seconds.
type Decoder interface {
	Open(ctx context.Context, source string, start float64) (Stream, error)
}

// Resampler converts frames to the target mono format. Flush drains any
// buffered samples; a Resampler is not reused after Close.
type Resampler interface {
	Resample(in Frame) (Frame, error)
	Flush() (Frame, error)
	Close() error
}

// ResamplerFactory builds a fresh Resampler for one window.
type ResamplerFactory func(outRate int) Resampler
