package audio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

const samplesPerFrame = 1024

// FFmpegDecoder decodes the first audio stream of a source with ffmpeg,
// reading raw s16le PCM from its stdout.
type FFmpegDecoder struct {
	FFmpeg  string
	FFprobe string
	Logger  *slog.Logger
}

// Open probes the source for its native format, then starts ffmpeg seeked
// to start. Frame timestamps count samples from start.
func (d *FFmpegDecoder) Open(ctx context.Context, source string, start float64) (Stream, error) {
	probe, err := Probe(ctx, d.FFprobe, source)
	if err != nil {
		return nil, err
	}
	info, ok := probe.AudioStream()
	if !ok {
		return nil, fmt.Errorf("%s: no audio stream", source)
	}
	rate, channels := info.SampleRateHz(), info.Channels
	if rate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%s: unsupported audio format %q Hz x %d channels", source, info.SampleRate, channels)
	}

	bin := strings.TrimSpace(d.FFmpeg)
	if bin == "" {
		bin = "ffmpeg"
	}
	args := []string{"-nostdin", "-hide_banner", "-loglevel", "error"}
	if start > 0 {
		args = append(args, "-ss", strconv.FormatFloat(start, 'f', 3, 64))
	}
	args = append(args,
		"-i", source,
		"-vn", "-map", "0:a:0",
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(rate),
		"-f", "s16le", "pipe:1",
	)

	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	if d.Logger != nil {
		d.Logger.Debug("ffmpeg started", "source", source, "start", start, "sample_rate", rate, "channels", channels)
	}

	return &ffmpegStream{
		cmd:      cmd,
		stdout:   stdout,
		reader:   bufio.NewReaderSize(stdout, samplesPerFrame*channels*2*4),
		stderr:   &stderr,
		rate:     rate,
		channels: channels,
		pts:      int64(math.Round(start * float64(rate))),
	}, nil
}

type ffmpegStream struct {
	cmd      *exec.Cmd
	stdout   io.ReadCloser
	reader   *bufio.Reader
	stderr   *bytes.Buffer
	rate     int
	channels int
	pts      int64
	done     bool
}

func (s *ffmpegStream) ReadFrame() (Frame, error) {
	if s.done {
		return Frame{}, io.EOF
	}
	buf := make([]byte, samplesPerFrame*s.channels*2)
	n, err := io.ReadFull(s.reader, buf)
	if err != nil {
		if !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return Frame{}, err
		}
		s.done = true
		if waitErr := s.wait(); waitErr != nil {
			return Frame{}, waitErr
		}
	}
	n -= n % (s.channels * 2)
	if n == 0 {
		return Frame{}, io.EOF
	}

	samples := make([]int16, n/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
	f := Frame{
		PTS:        s.pts,
		DTS:        s.pts,
		TimeBase:   Rational{Num: 1, Den: int64(s.rate)},
		SampleRate: s.rate,
		Channels:   s.channels,
		Samples:    samples,
	}
	s.pts += int64(len(samples) / s.channels)
	return f, nil
}

func (s *ffmpegStream) wait() error {
	if err := s.cmd.Wait(); err != nil {
		if msg := strings.TrimSpace(s.stderr.String()); msg != "" {
			return fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

// Close stops ffmpeg if it is still running.
func (s *ffmpegStream) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	_ = s.stdout.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	return nil
}
