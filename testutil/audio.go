package testutil

import (
	"context"
	"io"
	"math"

	"github.com/tiroq/whispersub/internal/audio"
)

// ToneDecoder is an audio.Decoder producing a constant mono tone of Length
// seconds, in frames of FrameSize samples.
type ToneDecoder struct {
	Length     float64
	SampleRate int
	FrameSize  int
	// Opened records the start positions passed to Open.
	Opened []float64
}

// Open returns a stream positioned at the frame containing start.
func (d *ToneDecoder) Open(_ context.Context, _ string, start float64) (audio.Stream, error) {
	d.Opened = append(d.Opened, start)
	rate := d.SampleRate
	if rate <= 0 {
		rate = audio.DefaultSampleRate
	}
	size := d.FrameSize
	if size <= 0 {
		size = 1600
	}
	first := int64(math.Floor(start*float64(rate)/float64(size))) * int64(size)
	return &toneStream{
		rate: rate,
		size: int64(size),
		pts:  first,
		end:  int64(math.Round(d.Length * float64(rate))),
	}, nil
}

type toneStream struct {
	rate int
	size int64
	pts  int64
	end  int64
}

func (s *toneStream) ReadFrame() (audio.Frame, error) {
	if s.pts >= s.end {
		return audio.Frame{}, io.EOF
	}
	n := min(s.size, s.end-s.pts)
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = 1000
	}
	f := audio.Frame{
		PTS:        s.pts,
		DTS:        s.pts,
		TimeBase:   audio.Rational{Num: 1, Den: int64(s.rate)},
		SampleRate: s.rate,
		Channels:   1,
		Samples:    samples,
	}
	s.pts += n
	return f, nil
}

func (s *toneStream) Close() error {
	return nil
}
