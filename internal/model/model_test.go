package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fp(v float64) *float64 { return &v }

func TestBucketFor(t *testing.T) {
	tests := []struct {
		name       string
		confidence *float64
		want       ConfidenceBucket
	}{
		{"nil is not analyzed", nil, BucketUnanalyzed},
		{"zero is low", fp(0), BucketLow},
		{"just below medium", fp(49.9), BucketLow},
		{"medium boundary", fp(50), BucketMedium},
		{"just below high", fp(79.9), BucketMedium},
		{"high boundary", fp(80), BucketHigh},
		{"maximum", fp(100), BucketHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BucketFor(tt.confidence))
		})
	}
}

func TestKeySignatureString(t *testing.T) {
	assert.Equal(t, "C major", KeySignature{PitchClass: 0, Mode: ModeMajor}.String())
	assert.Equal(t, "A minor", KeySignature{PitchClass: 9, Mode: ModeMinor}.String())
	assert.Equal(t, "F# major", KeySignature{PitchClass: 6, Mode: ModeMajor}.String())
	assert.Contains(t, KeySignature{PitchClass: 12, Mode: ModeMajor}.String(), "invalid")
}

func TestKeySignatureComparable(t *testing.T) {
	a := KeySignature{PitchClass: 1, Mode: ModeMajor}
	b := KeySignature{PitchClass: 1, Mode: ModeMajor}
	c := KeySignature{PitchClass: 1, Mode: ModeMinor}
	assert.True(t, a == b)
	assert.False(t, a == c)
}

func TestPitchName(t *testing.T) {
	assert.Equal(t, "C", PitchName(0))
	assert.Equal(t, "A#", PitchName(10))
	assert.Equal(t, "?", PitchName(-1))
	assert.Equal(t, "?", PitchName(12))
}

func TestFeatureKind(t *testing.T) {
	assert.True(t, FeatureTempo.Valid())
	assert.True(t, FeatureKey.Valid())
	assert.False(t, FeatureKind("loudness").Valid())
	assert.Equal(t, []FeatureKind{FeatureTempo, FeatureKey}, AllFeatures())
}

func TestAudioSignalDuration(t *testing.T) {
	s := &AudioSignal{Samples: make([]float64, 22050), SampleRate: 22050}
	assert.Equal(t, time.Second, s.Duration())

	assert.Equal(t, time.Duration(0), (&AudioSignal{SampleRate: 0}).Duration())
}

func TestAudioSignalEmpty(t *testing.T) {
	var nilSignal *AudioSignal
	assert.True(t, nilSignal.Empty())
	assert.True(t, (&AudioSignal{}).Empty())
	assert.False(t, (&AudioSignal{Samples: []float64{0.1}}).Empty())
}
