package consensus

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Range is an inclusive BPM interval.
type Range struct {
	Min float64 `yaml:"min" mapstructure:"min"`
	Max float64 `yaml:"max" mapstructure:"max"`
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Config holds every tunable of the consensus engine. The additive
// confidence formula is calibrated empirically, so nothing here is
// hard-coded at call sites.
type Config struct {
	// TempoToleranceBPM is the max absolute difference for two canonical
	// tempo values to count as agreeing.
	TempoToleranceBPM float64 `yaml:"tempo_tolerance_bpm" mapstructure:"tempo_tolerance_bpm"`
	// PlausibleTempo is the band raw tempos are folded into and corrected
	// against.
	PlausibleTempo Range `yaml:"plausible_tempo" mapstructure:"plausible_tempo"`
	// FoldRatios are tried in order when folding a raw tempo into the
	// plausible band. 1 must come first so in-band values stay put.
	FoldRatios []float64 `yaml:"fold_ratios" mapstructure:"fold_ratios"`
	// CorrectionRatios are tried in order when an out-of-band consensus
	// value is projected back into the band.
	CorrectionRatios []float64 `yaml:"correction_ratios" mapstructure:"correction_ratios"`

	// Confidence formula.
	AgreementBonus       float64 `yaml:"agreement_bonus" mapstructure:"agreement_bonus"`
	DisagreementPenalty  float64 `yaml:"disagreement_penalty" mapstructure:"disagreement_penalty"`
	CorrectionPenalty    float64 `yaml:"correction_penalty" mapstructure:"correction_penalty"`
	DefaultRawConfidence float64 `yaml:"default_raw_confidence" mapstructure:"default_raw_confidence"`
	SingleEstimateCap    float64 `yaml:"single_estimate_cap" mapstructure:"single_estimate_cap"`

	// ProviderTimeoutSecs bounds each adapter invocation. Expiry
	// downgrades the provider to unavailable; it never stalls the request.
	ProviderTimeoutSecs float64 `yaml:"provider_timeout_secs" mapstructure:"provider_timeout_secs"`
}

// ProviderTimeout returns the per-provider deadline as a duration.
func (c Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSecs * float64(time.Second))
}

// DefaultConfig returns the calibrated defaults.
func DefaultConfig() Config {
	return Config{
		TempoToleranceBPM:    2,
		PlausibleTempo:       Range{Min: 60, Max: 180},
		FoldRatios:           []float64{1, 2, 0.5, 3},
		CorrectionRatios:     []float64{0.5, 2, 3},
		AgreementBonus:       15,
		DisagreementPenalty:  10,
		CorrectionPenalty:    10,
		DefaultRawConfidence: 50,
		SingleEstimateCap:    70,
		ProviderTimeoutSecs:  30,
	}
}

// LoadConfig reads engine tuning from a YAML file. The file has a
// top-level "consensus" key; absent fields keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, eris.Wrapf(err, "consensus: read config %s", path)
	}

	var wrapper struct {
		Consensus *Config `yaml:"consensus" mapstructure:"consensus"`
	}
	wrapper.Consensus = &cfg
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return cfg, eris.Wrap(err, "consensus: parse config")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks internal consistency.
func (c Config) Validate() error {
	var errs []string

	if c.TempoToleranceBPM <= 0 {
		errs = append(errs, "tempo_tolerance_bpm must be > 0")
	}
	if c.PlausibleTempo.Min <= 0 || c.PlausibleTempo.Max <= c.PlausibleTempo.Min {
		errs = append(errs, "plausible_tempo must satisfy 0 < min < max")
	}
	if len(c.FoldRatios) == 0 || c.FoldRatios[0] != 1 {
		errs = append(errs, "fold_ratios must start with 1")
	}
	for _, r := range append(append([]float64{}, c.FoldRatios...), c.CorrectionRatios...) {
		if r <= 0 {
			errs = append(errs, fmt.Sprintf("ratio %v must be > 0", r))
		}
	}
	for name, v := range map[string]float64{
		"agreement_bonus":      c.AgreementBonus,
		"disagreement_penalty": c.DisagreementPenalty,
		"correction_penalty":   c.CorrectionPenalty,
	} {
		if v < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}
	if c.DefaultRawConfidence < 0 || c.DefaultRawConfidence > 100 {
		errs = append(errs, "default_raw_confidence must be within 0..100")
	}
	if c.SingleEstimateCap < 0 || c.SingleEstimateCap > 100 {
		errs = append(errs, "single_estimate_cap must be within 0..100")
	}
	if c.ProviderTimeoutSecs <= 0 {
		errs = append(errs, "provider_timeout_secs must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("consensus: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
