// Package analyzer defines the adapter interface around tempo/key
// estimation providers and the registry the consensus engine draws from.
package analyzer

import (
	"context"
	"sort"
	"sync"

	"github.com/tonearm/tonearm/internal/model"
)

// Status classifies the outcome of a single provider invocation.
type Status string

const (
	// StatusOK means the provider produced a usable estimate.
	StatusOK Status = "ok"
	// StatusUnavailable means the provider could not run at all: missing
	// binary, unsupported feature, or deadline expired before it finished.
	StatusUnavailable Status = "unavailable"
	// StatusFailed means the provider ran but its result is unusable.
	StatusFailed Status = "failed"
)

// Estimate is one provider's raw reading for one feature. RawValue is a
// float64 BPM for tempo and a provider-spelled key string (e.g. "Db minor",
// "C#m", Camelot "8A") for key; the consensus normalizer canonicalizes it.
type Estimate struct {
	Provider      string            `json:"provider"`
	Feature       model.FeatureKind `json:"feature"`
	RawValue      any               `json:"raw_value"`
	RawConfidence *float64          `json:"raw_confidence,omitempty"`
	Method        string            `json:"method,omitempty"`
}

// Outcome is the explicit result variant returned by an adapter call.
// Provider failures are data, not errors: the engine records them in the
// audit trail and moves on.
type Outcome struct {
	Status   Status
	Estimate *Estimate // set iff Status == StatusOK
	Reason   string    // set iff Status != StatusOK
}

// Ok wraps a usable estimate.
func Ok(est Estimate) Outcome {
	return Outcome{Status: StatusOK, Estimate: &est}
}

// Unavailable marks a provider that could not run.
func Unavailable(reason string) Outcome {
	return Outcome{Status: StatusUnavailable, Reason: reason}
}

// Failed marks a provider that ran but produced nothing usable.
func Failed(reason string) Outcome {
	return Outcome{Status: StatusFailed, Reason: reason}
}

// Analyzer is the uniform wrapper around one estimation provider.
// Implementations are computation-only (no side effects), may take
// seconds, and must honor ctx cancellation.
type Analyzer interface {
	// Name returns the provider identifier used in config and audit trails.
	Name() string
	// Features returns the feature kinds this provider can estimate.
	Features() []model.FeatureKind
	// Supports checks a single feature kind.
	Supports(feature model.FeatureKind) bool
	// Analyze estimates one feature for the signal. It never returns a Go
	// error; failure modes are encoded in the Outcome.
	Analyze(ctx context.Context, signal *model.AudioSignal, feature model.FeatureKind) Outcome
}

// Entry pairs an analyzer with its configured reliability weight.
type Entry struct {
	Analyzer Analyzer
	Weight   float64
}

// Registry holds the configured providers. Reads are concurrency-safe;
// registration happens once at startup.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds a provider with its reliability weight. A non-positive
// weight is coerced to 1.
func (r *Registry) Register(a Analyzer, weight float64) {
	if weight <= 0 {
		weight = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[a.Name()] = Entry{Analyzer: a, Weight: weight}
}

// Get returns the entry for a provider name.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// ForFeature returns every registered provider supporting the feature,
// sorted by name so callers iterate deterministically.
func (r *Registry) ForFeature(feature model.FeatureKind) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry
	for _, e := range r.entries {
		if e.Analyzer.Supports(feature) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Analyzer.Name() < out[j].Analyzer.Name()
	})
	return out
}

// Names returns all registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
