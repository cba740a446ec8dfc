// Package decode turns audio files into model.AudioSignal buffers. WAV
// files are read natively; everything else goes through ffmpeg.
package decode

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"

	"github.com/rotisserie/eris"

	"github.com/tonearm/tonearm/internal/model"
)

// ReadWAV decodes a RIFF/WAVE file into a mono signal. PCM 16/24/32-bit
// and 32-bit float formats are supported; multi-channel audio is downmixed
// by averaging.
func ReadWAV(path string) (*model.AudioSignal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "decode: read %s", path)
	}
	sig, err := parseWAV(data)
	if err != nil {
		return nil, eris.Wrapf(err, "decode: %s", path)
	}
	sig.Path = path
	return sig, nil
}

func parseWAV(data []byte) (*model.AudioSignal, error) {
	if len(data) < 44 || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return nil, eris.New("not a RIFF/WAVE file")
	}

	var (
		format        uint16
		channels      int
		sampleRate    int
		bitsPerSample int
		pcm           []byte
	)

	// Walk the chunk list; fmt must precede data.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, eris.New("truncated fmt chunk")
			}
			format = binary.LittleEndian.Uint16(data[body : body+2])
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body : body+size]
		}
		// Chunks are word-aligned.
		off = body + size + (size & 1)
	}

	if channels <= 0 || sampleRate <= 0 {
		return nil, eris.New("missing fmt chunk")
	}
	if pcm == nil {
		return nil, eris.New("missing data chunk")
	}

	samples, err := decodePCM(pcm, format, channels, bitsPerSample)
	if err != nil {
		return nil, err
	}
	return &model.AudioSignal{Samples: samples, SampleRate: sampleRate}, nil
}

const (
	fmtPCM       = 1
	fmtIEEEFloat = 3
)

func decodePCM(pcm []byte, format uint16, channels, bits int) ([]float64, error) {
	bytesPer := bits / 8
	if bytesPer == 0 {
		return nil, eris.Errorf("unsupported bit depth %d", bits)
	}
	frameSize := bytesPer * channels
	nFrames := len(pcm) / frameSize
	out := make([]float64, nFrames)

	for i := 0; i < nFrames; i++ {
		var acc float64
		for ch := 0; ch < channels; ch++ {
			p := pcm[i*frameSize+ch*bytesPer:]
			v, err := sampleValue(p, format, bits)
			if err != nil {
				return nil, err
			}
			acc += v
		}
		out[i] = acc / float64(channels)
	}
	return out, nil
}

func sampleValue(p []byte, format uint16, bits int) (float64, error) {
	switch {
	case format == fmtPCM && bits == 16:
		return float64(int16(binary.LittleEndian.Uint16(p))) / 32768, nil
	case format == fmtPCM && bits == 24:
		v := int32(p[0]) | int32(p[1])<<8 | int32(p[2])<<16
		if v&0x800000 != 0 {
			v |= ^int32(0xffffff)
		}
		return float64(v) / 8388608, nil
	case format == fmtPCM && bits == 32:
		return float64(int32(binary.LittleEndian.Uint32(p))) / 2147483648, nil
	case format == fmtIEEEFloat && bits == 32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(p))), nil
	default:
		return 0, eris.Errorf("unsupported sample format %d/%d-bit", format, bits)
	}
}
