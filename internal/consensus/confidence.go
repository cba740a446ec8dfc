package consensus

// score derives the 0-100 confidence for a winning cluster.
//
//	confidence = clamp(0, 100, base + agreementBonus - disagreementPenalty - correctionPenalty)
//
// base is the reliability-weighted average of the winning cluster's raw
// confidences, substituting the configured default where a provider
// reported none. The agreement bonus requires at least two estimates,
// unanimity across all successful estimates, and no octave correction: a
// cluster that only agrees after folding did not independently confirm
// the value. When a single estimate contributed the result is capped
// because no cross-validation occurred.
func (e *Engine) score(win *cluster, successful int, corrected bool) float64 {
	base := e.weightedBase(win)

	conf := base
	unanimous := len(win.members) == successful

	if len(win.members) >= 2 && unanimous && !corrected {
		conf += e.cfg.AgreementBonus
	}
	if !unanimous {
		conf -= e.cfg.DisagreementPenalty
	}
	if corrected {
		conf -= e.cfg.CorrectionPenalty
	}

	if conf < 0 {
		conf = 0
	}
	if conf > 100 {
		conf = 100
	}

	if successful == 1 && conf > e.cfg.SingleEstimateCap {
		conf = e.cfg.SingleEstimateCap
	}
	return conf
}

func (e *Engine) weightedBase(win *cluster) float64 {
	var sum, w float64
	for _, m := range win.members {
		c := e.cfg.DefaultRawConfidence
		if m.est.RawConfidence != nil {
			c = *m.est.RawConfidence
		}
		sum += c * m.weight
		w += m.weight
	}
	if w == 0 {
		return e.cfg.DefaultRawConfidence
	}
	return sum / w
}
