package asr

import (
	"encoding/binary"
	"testing"
)

func TestWAVBytes(t *testing.T) {
	data, err := WAVBytes([]float32{0, 0.5, -1, 1.5}, 16000)
	if err != nil {
		t.Fatalf("WAVBytes: %v", err)
	}
	if len(data) != 44+8 {
		t.Fatalf("length = %d, want 52", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[36:40]) != "data" {
		t.Fatalf("bad chunk ids: %q", data[:40])
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 16000 {
		t.Errorf("sample rate = %d", rate)
	}
	if size := binary.LittleEndian.Uint32(data[40:44]); size != 8 {
		t.Errorf("data size = %d", size)
	}

	want := []int16{0, 16384, -32768, 32767}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(data[44+i*2:]))
		if got != w {
			t.Errorf("sample %d = %d, want %d", i, got, w)
		}
	}
}
