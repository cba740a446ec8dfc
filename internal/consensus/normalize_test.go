package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonearm/tonearm/internal/model"
)

func TestFoldTempo(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name      string
		raw       float64
		want      float64
		wantRatio float64
	}{
		{"in band stays put", 120, 120, 1},
		{"band edges stay put", 60, 60, 1},
		{"half-tempo doubles", 45, 90, 2},
		{"double-tempo halves", 240, 120, 0.5},
		{"slow tempo doubles before halving", 30, 60, 2},
		{"just below band doubles", 55, 110, 2},
		{"unfoldable keeps raw", 500, 500, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ratio := FoldTempo(tt.raw, cfg)
			assert.InDelta(t, tt.want, got, 0.001)
			assert.Equal(t, tt.wantRatio, ratio)
		})
	}
}

func TestFoldTempo_TripleRatio(t *testing.T) {
	// 25 BPM: 2x gives 50 (out of band), 0.5x gives 12.5, 3x gives 75.
	got, ratio := FoldTempo(25, DefaultConfig())
	assert.InDelta(t, 75, got, 0.001)
	assert.Equal(t, 3.0, ratio)
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		in   string
		want model.KeySignature
	}{
		{"C", model.KeySignature{PitchClass: 0, Mode: model.ModeMajor}},
		{"C major", model.KeySignature{PitchClass: 0, Mode: model.ModeMajor}},
		{"c minor", model.KeySignature{PitchClass: 0, Mode: model.ModeMinor}},
		{"C#m", model.KeySignature{PitchClass: 1, Mode: model.ModeMinor}},
		{"Db minor", model.KeySignature{PitchClass: 1, Mode: model.ModeMinor}},
		{"A# maj", model.KeySignature{PitchClass: 10, Mode: model.ModeMajor}},
		{"Bb major", model.KeySignature{PitchClass: 10, Mode: model.ModeMajor}},
		{"B♭ minor", model.KeySignature{PitchClass: 10, Mode: model.ModeMinor}},
		{"F♯ major", model.KeySignature{PitchClass: 6, Mode: model.ModeMajor}},
		{"GM", model.KeySignature{PitchClass: 7, Mode: model.ModeMajor}},
		{"Gm", model.KeySignature{PitchClass: 7, Mode: model.ModeMinor}},
		{"Cb major", model.KeySignature{PitchClass: 11, Mode: model.ModeMajor}},
		{"B# minor", model.KeySignature{PitchClass: 0, Mode: model.ModeMinor}},
		{"a aeolian", model.KeySignature{PitchClass: 9, Mode: model.ModeMinor}},
		{"8A", model.KeySignature{PitchClass: 9, Mode: model.ModeMinor}},
		{"8B", model.KeySignature{PitchClass: 0, Mode: model.ModeMajor}},
		{"12b", model.KeySignature{PitchClass: 4, Mode: model.ModeMajor}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKey(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKey_EnharmonicsCompareEqual(t *testing.T) {
	sharp, err := ParseKey("C# minor")
	require.NoError(t, err)
	flat, err := ParseKey("Db minor")
	require.NoError(t, err)
	assert.Equal(t, sharp, flat)
}

func TestParseKey_PassthroughSignature(t *testing.T) {
	k := model.KeySignature{PitchClass: 5, Mode: model.ModeMinor}
	got, err := ParseKey(k)
	require.NoError(t, err)
	assert.Equal(t, k, got)

	_, err = ParseKey(model.KeySignature{PitchClass: 14, Mode: model.ModeMinor})
	require.Error(t, err)
}

func TestParseKey_Invalid(t *testing.T) {
	for _, in := range []string{"", "H major", "C dorian", "13A", "#m"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseKey(in)
			require.Error(t, err)
		})
	}
}

func TestParseTempo(t *testing.T) {
	got, err := parseTempo(128.5)
	require.NoError(t, err)
	assert.Equal(t, 128.5, got)

	got, err = parseTempo("90.2")
	require.NoError(t, err)
	assert.Equal(t, 90.2, got)

	got, err = parseTempo(120)
	require.NoError(t, err)
	assert.Equal(t, 120.0, got)

	_, err = parseTempo("fast")
	require.Error(t, err)

	_, err = parseTempo([]byte("120"))
	require.Error(t, err)
}
