package decode

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tonearm/tonearm/internal/model"
)

// Decoder resolves audio files to signals, preferring the native WAV
// reader and falling back to ffmpeg for compressed formats.
type Decoder struct {
	FFmpegPath string
	// SampleRate is the rate ffmpeg resamples to. Analysis does not need
	// full fidelity; 22050 halves the work.
	SampleRate int
}

// NewDecoder returns a decoder with standard settings.
func NewDecoder(ffmpegPath string, sampleRate int) *Decoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if sampleRate <= 0 {
		sampleRate = 22050
	}
	return &Decoder{FFmpegPath: ffmpegPath, SampleRate: sampleRate}
}

// Decode loads the file at path into a mono AudioSignal.
func (d *Decoder) Decode(ctx context.Context, path string) (*model.AudioSignal, error) {
	if strings.HasSuffix(strings.ToLower(path), ".wav") {
		sig, err := ReadWAV(path)
		if err == nil {
			return sig, nil
		}
		zap.L().Debug("decode: native wav read failed, trying ffmpeg",
			zap.String("path", path),
			zap.Error(err),
		)
	}
	return d.ffmpegDecode(ctx, path)
}

// ffmpegDecode shells out for raw 32-bit float mono samples.
func (d *Decoder) ffmpegDecode(ctx context.Context, path string) (*model.AudioSignal, error) {
	if _, err := exec.LookPath(d.FFmpegPath); err != nil {
		return nil, eris.Wrapf(err, "decode: ffmpeg not found (%s)", d.FFmpegPath)
	}

	cmd := exec.CommandContext(ctx, d.FFmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-i", path,
		"-ac", "1",
		"-ar", strconv.Itoa(d.SampleRate),
		"-f", "f32le",
		"pipe:1",
	)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, eris.Errorf("decode: ffmpeg: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, eris.Wrap(err, "decode: run ffmpeg")
	}
	if len(out) < 4 {
		return nil, eris.Errorf("decode: ffmpeg produced no audio for %s", path)
	}

	samples := make([]float64, len(out)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(out[i*4:])
		samples[i] = float64(math.Float32frombits(bits))
	}
	return &model.AudioSignal{Path: path, Samples: samples, SampleRate: d.SampleRate}, nil
}
