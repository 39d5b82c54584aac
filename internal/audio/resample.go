package audio

import (
	"errors"
	"fmt"
	"math"
)

var errResamplerClosed = errors.New("audio: resampler closed")

// LinearResampler downmixes to mono and converts the sample rate by linear
// interpolation. It keeps fractional position and the last input sample
// between calls so consecutive batches join without a seam.
type LinearResampler struct {
	outRate int
	inRate  int
	pos     float64
	tail    []float64
	nextPTS int64
	started bool
	closed  bool
}

// NewLinearResampler returns a Resampler producing mono audio at outRate.
func NewLinearResampler(outRate int) Resampler {
	return &LinearResampler{outRate: outRate}
}

func (r *LinearResampler) Resample(in Frame) (Frame, error) {
	if r.closed {
		return Frame{}, errResamplerClosed
	}
	if in.SampleRate <= 0 || in.Channels <= 0 {
		return Frame{}, fmt.Errorf("audio: invalid input format %d Hz x %d channels", in.SampleRate, in.Channels)
	}
	if r.inRate == 0 {
		r.inRate = in.SampleRate
	} else if r.inRate != in.SampleRate {
		return Frame{}, fmt.Errorf("audio: sample rate changed from %d to %d", r.inRate, in.SampleRate)
	}
	if !r.started {
		r.nextPTS = int64(math.Round(in.Time() * float64(r.outRate)))
		r.started = true
	}

	buf := append(r.tail, downmix(in)...)
	step := float64(r.inRate) / float64(r.outRate)
	out := make([]int16, 0, int(float64(len(buf))/step)+1)
	for r.pos+1 < float64(len(buf)) {
		i := int(r.pos)
		frac := r.pos - float64(i)
		out = append(out, toInt16(buf[i]*(1-frac)+buf[i+1]*frac))
		r.pos += step
	}

	keep := min(int(r.pos), len(buf))
	r.tail = append([]float64(nil), buf[keep:]...)
	r.pos -= float64(keep)
	return r.emit(out), nil
}

// Flush emits the samples still held for interpolation.
func (r *LinearResampler) Flush() (Frame, error) {
	if r.closed {
		return Frame{}, errResamplerClosed
	}
	if r.inRate == 0 {
		return r.emit(nil), nil
	}
	step := float64(r.inRate) / float64(r.outRate)
	var out []int16
	for r.pos < float64(len(r.tail)) {
		out = append(out, toInt16(r.tail[int(r.pos)]))
		r.pos += step
	}
	r.tail = nil
	r.pos = 0
	return r.emit(out), nil
}

func (r *LinearResampler) Close() error {
	r.closed = true
	r.tail = nil
	return nil
}

func (r *LinearResampler) emit(samples []int16) Frame {
	f := Frame{
		PTS:        r.nextPTS,
		DTS:        r.nextPTS,
		TimeBase:   Rational{Num: 1, Den: int64(r.outRate)},
		SampleRate: r.outRate,
		Channels:   1,
		Samples:    samples,
	}
	r.nextPTS += int64(len(samples))
	return f
}

func downmix(f Frame) []float64 {
	n := f.Len()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for c := 0; c < f.Channels; c++ {
			sum += float64(f.Samples[i*f.Channels+c])
		}
		out[i] = sum / float64(f.Channels)
	}
	return out
}

func toInt16(v float64) int16 {
	v = math.Round(v)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}
