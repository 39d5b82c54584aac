package audio

import (
	"math"
	"testing"
)

func monoFrame(rate int, pts int64, samples ...int16) Frame {
	return Frame{PTS: pts, DTS: pts, TimeBase: Rational{Num: 1, Den: int64(rate)}, SampleRate: rate, Channels: 1, Samples: samples}
}

func TestLinearResamplerIdentity(t *testing.T) {
	r := NewLinearResampler(16000)
	out, err := r.Resample(monoFrame(16000, 0, 1, 2, 3, 4))
	if err != nil {
		t.Fatal(err)
	}
	tail, err := r.Flush()
	if err != nil {
		t.Fatal(err)
	}
	got := append(out.Samples, tail.Samples...)
	want := []int16{1, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if tail.PTS != 3 {
		t.Errorf("flush PTS = %d, want 3", tail.PTS)
	}
}

func TestLinearResamplerDownsamplesAcrossBatches(t *testing.T) {
	r := NewLinearResampler(16000)
	total := 0
	for i := 0; i < 10; i++ {
		samples := make([]int16, 4800)
		for j := range samples {
			samples[j] = 100
		}
		out, err := r.Resample(monoFrame(48000, int64(i*4800), samples...))
		if err != nil {
			t.Fatal(err)
		}
		for _, v := range out.Samples {
			if v != 100 {
				t.Fatalf("constant input produced %d", v)
			}
		}
		total += len(out.Samples)
	}
	tail, _ := r.Flush()
	total += len(tail.Samples)
	if total != 16000 {
		t.Errorf("produced %d samples, want 16000", total)
	}
}

func TestLinearResamplerDownmix(t *testing.T) {
	r := NewLinearResampler(8000)
	in := Frame{TimeBase: Rational{Num: 1, Den: 8000}, SampleRate: 8000, Channels: 2, Samples: []int16{100, 300, -200, 200}}
	out, _ := r.Resample(in)
	tail, _ := r.Flush()
	got := append(out.Samples, tail.Samples...)
	if len(got) != 2 || got[0] != 200 || got[1] != 0 {
		t.Errorf("downmix = %v, want [200 0]", got)
	}
}

func TestLinearResamplerStartTime(t *testing.T) {
	r := NewLinearResampler(16000)
	out, _ := r.Resample(monoFrame(48000, 48000*15, 1, 2, 3, 4, 5, 6))
	if math.Abs(out.DecodeTime()-15) > 1e-9 {
		t.Errorf("output time = %v, want 15", out.DecodeTime())
	}
}

func TestLinearResamplerRejectsRateChangeAndUseAfterClose(t *testing.T) {
	r := NewLinearResampler(16000)
	if _, err := r.Resample(monoFrame(48000, 0, 1, 2)); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Resample(monoFrame(44100, 2, 1, 2)); err == nil {
		t.Error("expected error on sample rate change")
	}
	_ = r.Close()
	if _, err := r.Resample(monoFrame(48000, 4, 1)); err == nil {
		t.Error("expected error after Close")
	}
}

func TestToInt16Clamps(t *testing.T) {
	if toInt16(40000) != math.MaxInt16 || toInt16(-40000) != math.MinInt16 {
		t.Error("clamping failed")
	}
}
