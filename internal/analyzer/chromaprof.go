package analyzer

import (
	"context"
	"fmt"
	"math"

	"github.com/tonearm/tonearm/internal/model"
)

// Krumhansl-Schmuckler key profiles: perceived stability of each pitch
// class relative to the tonic, from probe-tone experiments.
var (
	majorProfile = [12]float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
	minorProfile = [12]float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}
)

// ChromaProfile estimates musical key by folding spectral energy into a
// 12-bin chroma vector and correlating it against rotated major/minor
// key profiles.
type ChromaProfile struct {
	lowOctave  int
	highOctave int
}

// NewChromaProfile creates the chroma-correlation key provider.
func NewChromaProfile() *ChromaProfile {
	return &ChromaProfile{lowOctave: 2, highOctave: 6}
}

func (c *ChromaProfile) Name() string { return "chromaprof" }

func (c *ChromaProfile) Features() []model.FeatureKind {
	return []model.FeatureKind{model.FeatureKey}
}

func (c *ChromaProfile) Supports(feature model.FeatureKind) bool {
	return feature == model.FeatureKey
}

func (c *ChromaProfile) Analyze(ctx context.Context, signal *model.AudioSignal, feature model.FeatureKind) Outcome {
	if !c.Supports(feature) {
		return Unavailable(fmt.Sprintf("chromaprof does not estimate %s", feature))
	}
	if signal.Empty() || signal.SampleRate <= 0 {
		return Failed("empty or invalid audio signal")
	}

	chroma, err := c.chromaVector(ctx, signal)
	if err != nil {
		return Unavailable(err.Error())
	}

	key, score, margin := bestKey(chroma)
	if score <= 0 {
		return Failed("no tonal content detected")
	}

	conf := keyConfidence(score, margin)
	return Ok(Estimate{
		Provider:      c.Name(),
		Feature:       model.FeatureKey,
		RawValue:      key.String(),
		RawConfidence: &conf,
		Method:        "chroma-profile-correlation",
	})
}

// chromaVector accumulates per-pitch-class energy with a Goertzel filter
// bank over octaves lowOctave..highOctave (A4 = 440 Hz tuning).
func (c *ChromaProfile) chromaVector(ctx context.Context, signal *model.AudioSignal) ([12]float64, error) {
	var chroma [12]float64

	// Analyze up to 60s from the middle of the track, in 4096-sample blocks.
	const block = 4096
	samples := signal.Samples
	maxSamples := signal.SampleRate * 60
	if len(samples) > maxSamples {
		off := (len(samples) - maxSamples) / 2
		samples = samples[off : off+maxSamples]
	}

	nyquist := float64(signal.SampleRate) / 2
	for start := 0; start+block <= len(samples); start += block {
		select {
		case <-ctx.Done():
			return chroma, ctx.Err()
		default:
		}
		frame := samples[start : start+block]
		for pc := 0; pc < 12; pc++ {
			for oct := c.lowOctave; oct <= c.highOctave; oct++ {
				freq := pitchFrequency(pc, oct)
				if freq >= nyquist {
					continue
				}
				chroma[pc] += goertzelPower(frame, freq, signal.SampleRate)
			}
		}
	}
	return chroma, nil
}

// pitchFrequency returns the equal-temperament frequency of pitch class
// pc (C=0) in the given octave.
func pitchFrequency(pc, octave int) float64 {
	midi := (octave+1)*12 + pc
	return 440 * math.Pow(2, float64(midi-69)/12)
}

// goertzelPower measures energy at a single frequency.
func goertzelPower(frame []float64, freq float64, sampleRate int) float64 {
	w := 2 * math.Pi * freq / float64(sampleRate)
	coeff := 2 * math.Cos(w)
	var s0, s1, s2 float64
	for _, x := range frame {
		s0 = x + coeff*s1 - s2
		s2 = s1
		s1 = s0
	}
	return s1*s1 + s2*s2 - coeff*s1*s2
}

// bestKey correlates the chroma vector with all 24 rotated profiles and
// returns the winner with its score and the margin over the runner-up.
func bestKey(chroma [12]float64) (model.KeySignature, float64, float64) {
	best := model.KeySignature{}
	bestScore, secondScore := math.Inf(-1), math.Inf(-1)

	for pc := 0; pc < 12; pc++ {
		for _, mode := range []model.Mode{model.ModeMajor, model.ModeMinor} {
			profile := majorProfile
			if mode == model.ModeMinor {
				profile = minorProfile
			}
			score := rotatedCorrelation(chroma, profile, pc)
			if score > bestScore {
				secondScore = bestScore
				bestScore = score
				best = model.KeySignature{PitchClass: pc, Mode: mode}
			} else if score > secondScore {
				secondScore = score
			}
		}
	}
	return best, bestScore, bestScore - secondScore
}

// rotatedCorrelation is the Pearson correlation between the chroma vector
// and the profile rotated so its tonic sits at pitch class root.
func rotatedCorrelation(chroma [12]float64, profile [12]float64, root int) float64 {
	var mc, mp float64
	for i := 0; i < 12; i++ {
		mc += chroma[i]
		mp += profile[i]
	}
	mc /= 12
	mp /= 12

	var num, dc, dp float64
	for i := 0; i < 12; i++ {
		cv := chroma[i] - mc
		pv := profile[(i-root+12)%12] - mp
		num += cv * pv
		dc += cv * cv
		dp += pv * pv
	}
	if dc == 0 || dp == 0 {
		return 0
	}
	return num / math.Sqrt(dc*dp)
}

// keyConfidence blends correlation strength with the margin over the
// runner-up key: a strong fit that barely beats its neighbor is still
// ambiguous.
func keyConfidence(score, margin float64) float64 {
	c := 50*math.Max(0, score) + 250*math.Max(0, margin)
	if c > 95 {
		c = 95
	}
	if c < 15 {
		c = 15
	}
	return math.Round(c*10) / 10
}
