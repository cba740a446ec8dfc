// Package consensus resolves disagreeing tempo/key estimates from
// multiple analysis providers into a single value with a calibrated
// confidence score and a complete per-provider audit trail.
package consensus

import (
	"time"

	"github.com/tonearm/tonearm/internal/analyzer"
	"github.com/tonearm/tonearm/internal/model"
)

// Contribution is one provider's entry in the audit trail. Every
// provider invoked for a feature appears exactly once, including ones
// that failed or never ran.
type Contribution struct {
	Provider      string          `json:"provider"`
	Status        analyzer.Status `json:"status"`
	RawValue      any             `json:"raw_value,omitempty"`
	RawConfidence *float64        `json:"raw_confidence,omitempty"`
	Method        string          `json:"method,omitempty"`
	Weight        float64         `json:"weight"`
	Reason        string          `json:"reason,omitempty"`
	IsWinner      bool            `json:"is_winner"`
}

// Result is the consensus outcome for a single feature of a single
// track. Value fields are pointers so "not analyzed" serializes as JSON
// null, never as zero.
type Result struct {
	Feature model.FeatureKind `json:"feature"`

	// Tempo is set when Feature is tempo and at least one provider
	// produced a usable estimate.
	Tempo *float64 `json:"tempo_bpm,omitempty"`
	// Key is set when Feature is key and at least one provider produced
	// a usable estimate.
	Key *model.KeySignature `json:"key,omitempty"`

	Confidence       *float64 `json:"confidence"`
	WasCorrected     bool     `json:"was_corrected"`
	CorrectionReason string   `json:"correction_reason,omitempty"`

	Contributions []Contribution `json:"contributions"`
}

// Resolved reports whether any provider contributed a usable value.
func (r *Result) Resolved() bool {
	return r != nil && r.Confidence != nil
}

// Winner returns the winning contribution, or nil when nothing resolved.
func (r *Result) Winner() *Contribution {
	for i := range r.Contributions {
		if r.Contributions[i].IsWinner {
			return &r.Contributions[i]
		}
	}
	return nil
}

// TrackAnalysis bundles the per-feature results for one audio item,
// ready for storage or API exposure.
type TrackAnalysis struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	SampleRate int       `json:"sample_rate"`
	DurationMS int64     `json:"duration_ms"`
	Tempo      *Result   `json:"tempo,omitempty"`
	Key        *Result   `json:"key,omitempty"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// normalized pairs a successful estimate with its canonical comparison
// value and the weight and fold bookkeeping consensus needs.
type normalized struct {
	est       analyzer.Estimate
	weight    float64
	canonical float64            // folded BPM for tempo
	key       model.KeySignature // canonical tuple for key
	foldRatio float64            // 1 when no fold was applied
}

// cluster is a group of normalized estimates that agree within tolerance.
type cluster struct {
	members []normalized
}

func (c *cluster) totalWeight() float64 {
	var w float64
	for _, m := range c.members {
		w += m.weight
	}
	return w
}

// weightedTempo is the reliability-weighted average of the members'
// canonical tempo values.
func (c *cluster) weightedTempo() float64 {
	var sum, w float64
	for _, m := range c.members {
		sum += m.canonical * m.weight
		w += m.weight
	}
	if w == 0 {
		return 0
	}
	return sum / w
}

// maxRawConfidence returns the highest reported confidence among members;
// members without one do not participate.
func (c *cluster) maxRawConfidence() float64 {
	best := -1.0
	for _, m := range c.members {
		if m.est.RawConfidence != nil && *m.est.RawConfidence > best {
			best = *m.est.RawConfidence
		}
	}
	return best
}

// minProvider returns the lexicographically smallest member provider ID,
// the final deterministic tiebreak.
func (c *cluster) minProvider() string {
	min := ""
	for _, m := range c.members {
		if min == "" || m.est.Provider < min {
			min = m.est.Provider
		}
	}
	return min
}
