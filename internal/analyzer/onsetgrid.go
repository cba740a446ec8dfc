package analyzer

import (
	"context"
	"fmt"
	"math"

	"github.com/tonearm/tonearm/internal/model"
)

// OnsetGrid estimates tempo from the periodicity of the onset-energy
// envelope: frame-level energy flux autocorrelated over the lag range
// corresponding to 30-300 BPM.
type OnsetGrid struct {
	frameSize int
	hopSize   int
}

// NewOnsetGrid creates the onset-autocorrelation tempo provider.
func NewOnsetGrid() *OnsetGrid {
	return &OnsetGrid{frameSize: 1024, hopSize: 512}
}

func (o *OnsetGrid) Name() string { return "onsetgrid" }

func (o *OnsetGrid) Features() []model.FeatureKind {
	return []model.FeatureKind{model.FeatureTempo}
}

func (o *OnsetGrid) Supports(feature model.FeatureKind) bool {
	return feature == model.FeatureTempo
}

func (o *OnsetGrid) Analyze(ctx context.Context, signal *model.AudioSignal, feature model.FeatureKind) Outcome {
	if !o.Supports(feature) {
		return Unavailable(fmt.Sprintf("onsetgrid does not estimate %s", feature))
	}
	if signal.Empty() || signal.SampleRate <= 0 {
		return Failed("empty or invalid audio signal")
	}
	if len(signal.Samples) < o.frameSize*8 {
		return Failed("signal too short for tempo analysis")
	}

	flux, err := o.onsetFlux(ctx, signal.Samples)
	if err != nil {
		return Unavailable(err.Error())
	}

	frameRate := float64(signal.SampleRate) / float64(o.hopSize)
	bpm, strength := dominantPeriod(flux, frameRate, 30, 300)
	if bpm <= 0 {
		return Failed("no periodic onset structure detected")
	}

	conf := periodicityConfidence(strength)
	return Ok(Estimate{
		Provider:      o.Name(),
		Feature:       model.FeatureTempo,
		RawValue:      bpm,
		RawConfidence: &conf,
		Method:        "onset-autocorrelation",
	})
}

// onsetFlux computes the half-wave rectified frame-to-frame energy
// difference. Checks ctx between frames since long files take a while.
func (o *OnsetGrid) onsetFlux(ctx context.Context, samples []float64) ([]float64, error) {
	nFrames := (len(samples) - o.frameSize) / o.hopSize
	if nFrames < 4 {
		return nil, fmt.Errorf("too few frames: %d", nFrames)
	}

	energies := make([]float64, nFrames)
	for i := 0; i < nFrames; i++ {
		if i%4096 == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
		start := i * o.hopSize
		var e float64
		for _, s := range samples[start : start+o.frameSize] {
			e += s * s
		}
		energies[i] = e
	}

	flux := make([]float64, nFrames-1)
	for i := 1; i < nFrames; i++ {
		d := energies[i] - energies[i-1]
		if d > 0 {
			flux[i-1] = d
		}
	}
	return flux, nil
}

// dominantPeriod autocorrelates the flux and returns the BPM of the
// strongest lag in [minBPM, maxBPM], plus the normalized peak strength.
func dominantPeriod(flux []float64, frameRate, minBPM, maxBPM float64) (float64, float64) {
	mean := 0.0
	for _, f := range flux {
		mean += f
	}
	mean /= float64(len(flux))

	centered := make([]float64, len(flux))
	var norm float64
	for i, f := range flux {
		centered[i] = f - mean
		norm += centered[i] * centered[i]
	}
	if norm == 0 {
		return 0, 0
	}

	minLag := int(frameRate * 60 / maxBPM)
	maxLag := int(frameRate * 60 / minBPM)
	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= len(centered) {
		maxLag = len(centered) - 1
	}
	if maxLag <= minLag {
		return 0, 0
	}

	bestLag, bestVal := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var acc float64
		for i := 0; i+lag < len(centered); i++ {
			acc += centered[i] * centered[i+lag]
		}
		acc /= norm
		if acc > bestVal {
			bestVal = acc
			bestLag = lag
		}
	}
	if bestLag == 0 || bestVal <= 0 {
		return 0, 0
	}

	bpm := frameRate * 60 / float64(bestLag)
	return bpm, bestVal
}

// periodicityConfidence maps autocorrelation peak strength (0..1) to the
// 0-100 confidence scale. A razor-sharp periodic signal saturates near 95;
// weak periodicity bottoms out around 20.
func periodicityConfidence(strength float64) float64 {
	c := 20 + 75*math.Min(1, math.Max(0, strength))
	return math.Round(c*10) / 10
}
