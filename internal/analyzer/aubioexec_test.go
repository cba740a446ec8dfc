package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonearm/tonearm/internal/model"
)

func TestMedianBPM(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want float64
		n    int
		ok   bool
	}{
		{
			name: "single reading",
			out:  "128.0 bpm\n",
			want: 128.0, n: 1, ok: true,
		},
		{
			name: "odd series takes middle",
			out:  "120.0 bpm\n124.0 bpm\n180.0 bpm\n",
			want: 124.0, n: 3, ok: true,
		},
		{
			name: "even series averages middle pair",
			out:  "120.0 bpm\n122.0 bpm\n124.0 bpm\n126.0 bpm\n",
			want: 123.0, n: 4, ok: true,
		},
		{
			name: "outlier does not drag the median",
			out:  "120.1 bpm\n119.9 bpm\n120.0 bpm\n120.2 bpm\n240.0 bpm\n",
			want: 120.1, n: 5, ok: true,
		},
		{
			name: "uppercase and prose lines",
			out:  "Overall BPM estimate:\n118.5 BPM\n",
			want: 118.5, n: 1, ok: true,
		},
		{
			name: "no readings",
			out:  "aubio could not open the file\n",
			ok:   false,
		},
		{
			name: "empty output",
			out:  "",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n, ok := medianBPM(tt.out)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 0.001)
				assert.Equal(t, tt.n, n)
			}
		})
	}
}

func TestAubioExec_WrongFeature(t *testing.T) {
	a := NewAubioExec("")
	out := a.Analyze(context.Background(), &model.AudioSignal{Path: "/music/a.wav"}, model.FeatureKey)
	assert.Equal(t, StatusUnavailable, out.Status)
}

func TestAubioExec_NoPath(t *testing.T) {
	a := NewAubioExec("")
	signal := &model.AudioSignal{Samples: make([]float64, 1024), SampleRate: 22050}
	out := a.Analyze(context.Background(), signal, model.FeatureTempo)
	assert.Equal(t, StatusUnavailable, out.Status)
	assert.Contains(t, out.Reason, "no source path")
}

func TestAubioExec_MissingBinary(t *testing.T) {
	a := NewAubioExec("definitely-not-aubio-binary")
	signal := &model.AudioSignal{Path: "/music/a.wav", SampleRate: 22050}
	out := a.Analyze(context.Background(), signal, model.FeatureTempo)
	assert.Equal(t, StatusUnavailable, out.Status)
	assert.Contains(t, out.Reason, "not found")
}

func TestAubioExec_DefaultBinPath(t *testing.T) {
	a := NewAubioExec("")
	assert.Equal(t, "aubio", a.binPath)
	assert.Equal(t, "aubio", a.Name())
	assert.True(t, a.Supports(model.FeatureTempo))
	assert.False(t, a.Supports(model.FeatureKey))
}
