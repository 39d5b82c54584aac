package asr

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
)

// EncodeWAV writes samples as a 16-bit PCM mono WAV stream.
func EncodeWAV(w io.Writer, samples []float32, sampleRate int) error {
	dataSize := len(samples) * 2
	header := []any{
		[]byte("RIFF"), uint32(36 + dataSize), []byte("WAVE"),
		[]byte("fmt "), uint32(16), uint16(1), uint16(1),
		uint32(sampleRate), uint32(sampleRate * 2), uint16(2), uint16(16),
		[]byte("data"), uint32(dataSize),
	}
	for _, field := range header {
		if err := binary.Write(w, binary.LittleEndian, field); err != nil {
			return err
		}
	}

	pcm := make([]byte, dataSize)
	for i, s := range samples {
		v := math.Round(float64(s) * 32768)
		v = math.Max(math.MinInt16, math.Min(math.MaxInt16, v))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
	}
	_, err := w.Write(pcm)
	return err
}

// WAVBytes encodes samples into an in-memory WAV file.
func WAVBytes(samples []float32, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(44 + len(samples)*2)
	if err := EncodeWAV(&buf, samples, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
