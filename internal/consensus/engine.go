package consensus

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tonearm/tonearm/internal/analyzer"
	"github.com/tonearm/tonearm/internal/model"
)

// ErrUnsupportedFeature indicates a caller bug: the engine was asked for
// a feature kind it does not know. It is the only error the engine
// surfaces; provider failures are absorbed into the audit trail.
var ErrUnsupportedFeature = eris.New("consensus: unsupported feature kind")

// Engine computes consensus tempo/key metadata from the providers in its
// registry. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	cfg      Config
	registry *analyzer.Registry
}

// NewEngine validates the config and builds an engine over the registry.
func NewEngine(cfg Config, registry *analyzer.Registry) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, eris.New("consensus: nil provider registry")
	}
	return &Engine{cfg: cfg, registry: registry}, nil
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Analyze resolves every requested feature for one signal and bundles
// the results. With no explicit features it analyzes all of them.
func (e *Engine) Analyze(ctx context.Context, signal *model.AudioSignal, features ...model.FeatureKind) (*TrackAnalysis, error) {
	if len(features) == 0 {
		features = model.AllFeatures()
	}

	ta := &TrackAnalysis{
		ID:         uuid.NewString(),
		Path:       signal.Path,
		SampleRate: signal.SampleRate,
		DurationMS: signal.Duration().Milliseconds(),
		AnalyzedAt: time.Now().UTC(),
	}

	for _, f := range features {
		res, err := e.Resolve(ctx, signal, f)
		if err != nil {
			return nil, err
		}
		switch f {
		case model.FeatureTempo:
			ta.Tempo = res
		case model.FeatureKey:
			ta.Key = res
		}
	}
	return ta, nil
}

// Resolve runs every provider supporting the feature, normalizes the
// estimates, groups them into agreement clusters, selects the winner by
// weighted majority, applies tempo octave correction, and scores the
// final confidence. Provider failures never abort the request.
func (e *Engine) Resolve(ctx context.Context, signal *model.AudioSignal, feature model.FeatureKind) (*Result, error) {
	if !feature.Valid() {
		return nil, eris.Wrapf(ErrUnsupportedFeature, "%q", feature)
	}

	result := &Result{Feature: feature}

	entries := e.registry.ForFeature(feature)
	estimates := make([]normalized, 0, len(entries))
	for _, entry := range entries {
		outcome := e.invoke(ctx, entry, signal, feature)

		contrib := Contribution{
			Provider: entry.Analyzer.Name(),
			Status:   outcome.Status,
			Weight:   entry.Weight,
			Reason:   outcome.Reason,
		}
		if outcome.Estimate != nil {
			contrib.RawValue = outcome.Estimate.RawValue
			contrib.RawConfidence = outcome.Estimate.RawConfidence
			contrib.Method = outcome.Estimate.Method
		}

		if outcome.Status == analyzer.StatusOK {
			norm, err := e.normalize(*outcome.Estimate, entry.Weight, feature)
			if err != nil {
				// A provider handing back a value the normalizer cannot
				// read counts as a failed run, not a vote.
				contrib.Status = analyzer.StatusFailed
				contrib.Reason = err.Error()
				zap.L().Warn("consensus: unparseable estimate",
					zap.String("provider", entry.Analyzer.Name()),
					zap.String("feature", string(feature)),
					zap.Error(err),
				)
			} else {
				estimates = append(estimates, norm)
			}
		}

		result.Contributions = append(result.Contributions, contrib)
	}

	if len(estimates) == 0 {
		// Nothing usable: null value, null confidence, full trail.
		return result, nil
	}

	clusters := e.clusterEstimates(estimates, feature)
	win := pickWinner(clusters)

	var corrected bool
	var correctionReason string
	switch feature {
	case model.FeatureTempo:
		value := win.weightedTempo()
		value, corrected, correctionReason = e.correctTempo(value, win)
		value = math.Round(value*10) / 10
		result.Tempo = &value
	case model.FeatureKey:
		key := win.members[0].key
		result.Key = &key
	}
	result.WasCorrected = corrected
	result.CorrectionReason = correctionReason

	conf := e.score(win, len(estimates), corrected)
	result.Confidence = &conf

	markWinner(result, win)
	return result, nil
}

// invoke runs one adapter under the configured deadline. A provider that
// overruns is reported unavailable; a panicking provider is treated as a
// crash, also unavailable.
func (e *Engine) invoke(ctx context.Context, entry analyzer.Entry, signal *model.AudioSignal, feature model.FeatureKind) analyzer.Outcome {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout())
	defer cancel()

	ch := make(chan analyzer.Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- analyzer.Unavailable(fmt.Sprintf("provider crashed: %v", r))
			}
		}()
		ch <- entry.Analyzer.Analyze(ctx, signal, feature)
	}()

	select {
	case out := <-ch:
		return out
	case <-ctx.Done():
		zap.L().Warn("consensus: provider deadline exceeded",
			zap.String("provider", entry.Analyzer.Name()),
			zap.Duration("timeout", e.cfg.ProviderTimeout()),
		)
		return analyzer.Unavailable("deadline exceeded")
	}
}

func (e *Engine) normalize(est analyzer.Estimate, weight float64, feature model.FeatureKind) (normalized, error) {
	n := normalized{est: est, weight: weight, foldRatio: 1}
	switch feature {
	case model.FeatureTempo:
		raw, err := parseTempo(est.RawValue)
		if err != nil {
			return n, err
		}
		if raw <= 0 {
			return n, eris.Errorf("consensus: non-positive tempo %v", raw)
		}
		n.canonical, n.foldRatio = FoldTempo(raw, e.cfg)
	case model.FeatureKey:
		key, err := ParseKey(est.RawValue)
		if err != nil {
			return n, err
		}
		n.key = key
	}
	return n, nil
}

// clusterEstimates groups estimates that agree within the feature
// tolerance. Input arrives in provider-name order, so cluster layout is
// deterministic for identical inputs.
func (e *Engine) clusterEstimates(estimates []normalized, feature model.FeatureKind) []*cluster {
	var clusters []*cluster
	for _, n := range estimates {
		placed := false
		for _, c := range clusters {
			if e.agrees(c, n, feature) {
				c.members = append(c.members, n)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, &cluster{members: []normalized{n}})
		}
	}
	return clusters
}

func (e *Engine) agrees(c *cluster, n normalized, feature model.FeatureKind) bool {
	switch feature {
	case model.FeatureTempo:
		return math.Abs(c.weightedTempo()-n.canonical) <= e.cfg.TempoToleranceBPM
	case model.FeatureKey:
		return c.members[0].key == n.key
	}
	return false
}

// pickWinner selects the heaviest cluster by total reliability weight.
// Ties fall to the cluster holding the single highest raw confidence,
// then to the one holding the lexicographically smallest provider ID.
func pickWinner(clusters []*cluster) *cluster {
	win := clusters[0]
	for _, c := range clusters[1:] {
		cw, ww := c.totalWeight(), win.totalWeight()
		switch {
		case cw > ww:
			win = c
		case cw == ww:
			cc, wc := c.maxRawConfidence(), win.maxRawConfidence()
			if cc > wc || (cc == wc && c.minProvider() < win.minProvider()) {
				win = c
			}
		}
	}
	return win
}

// correctTempo applies the octave-error policy. Two triggers:
//   - the consensus value falls outside the plausible band and a
//     configured ratio projects it back inside; the value moves.
//   - the winning cluster only agreed because a member's raw reading was
//     octave-folded; the value stands but the correction is flagged so
//     scoring discounts the manufactured agreement.
func (e *Engine) correctTempo(value float64, win *cluster) (float64, bool, string) {
	if !e.cfg.PlausibleTempo.Contains(value) {
		for _, r := range e.cfg.CorrectionRatios {
			if v := value * r; e.cfg.PlausibleTempo.Contains(v) {
				return v, true, formatRatio(r)
			}
		}
	}

	for _, m := range win.members {
		if m.foldRatio != 1 {
			return value, true, formatRatio(m.foldRatio)
		}
	}
	return value, false, ""
}

func formatRatio(r float64) string {
	if r == math.Trunc(r) {
		return fmt.Sprintf("%.0fx", r)
	}
	return fmt.Sprintf("%gx", r)
}

// markWinner flags the audit-trail entry of the winning cluster's
// representative: heaviest member, ties broken by raw confidence, then
// provider ID. Exactly one contribution ends up flagged.
func markWinner(result *Result, win *cluster) {
	rep := win.members[0]
	for _, m := range win.members[1:] {
		switch {
		case m.weight > rep.weight:
			rep = m
		case m.weight == rep.weight:
			mc, rc := rawConf(m), rawConf(rep)
			if mc > rc || (mc == rc && m.est.Provider < rep.est.Provider) {
				rep = m
			}
		}
	}
	for i := range result.Contributions {
		if result.Contributions[i].Provider == rep.est.Provider {
			result.Contributions[i].IsWinner = true
			return
		}
	}
}

func rawConf(n normalized) float64 {
	if n.est.RawConfidence == nil {
		return -1
	}
	return *n.est.RawConfidence
}
