package analyzer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tonearm/tonearm/internal/model"
)

var bpmLineRe = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*bpm`)

// AubioExec wraps the aubio command-line tool as a tempo provider. It is
// Unavailable rather than Failed when the binary is not installed or the
// signal has no source path to hand to it.
type AubioExec struct {
	binPath string
}

// NewAubioExec creates the aubio adapter. binPath defaults to "aubio"
// resolved from PATH.
func NewAubioExec(binPath string) *AubioExec {
	if binPath == "" {
		binPath = "aubio"
	}
	return &AubioExec{binPath: binPath}
}

func (a *AubioExec) Name() string { return "aubio" }

func (a *AubioExec) Features() []model.FeatureKind {
	return []model.FeatureKind{model.FeatureTempo}
}

func (a *AubioExec) Supports(feature model.FeatureKind) bool {
	return feature == model.FeatureTempo
}

func (a *AubioExec) Analyze(ctx context.Context, signal *model.AudioSignal, feature model.FeatureKind) Outcome {
	if !a.Supports(feature) {
		return Unavailable(fmt.Sprintf("aubio does not estimate %s", feature))
	}
	if signal == nil || signal.Path == "" {
		return Unavailable("no source path for exec-based analysis")
	}
	if _, err := exec.LookPath(a.binPath); err != nil {
		return Unavailable(fmt.Sprintf("aubio binary not found: %s", a.binPath))
	}

	out, err := exec.CommandContext(ctx, a.binPath, "tempo", "-i", signal.Path).Output()
	if ctx.Err() != nil {
		return Unavailable("deadline exceeded")
	}
	if err != nil && len(out) == 0 {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Failed(fmt.Sprintf("aubio tempo exited: %s", strings.TrimSpace(string(exitErr.Stderr))))
		}
		return Unavailable(fmt.Sprintf("aubio tempo: %v", err))
	}

	bpm, n, ok := medianBPM(string(out))
	if !ok {
		return Failed("aubio produced no bpm readings")
	}

	// aubio reports a beat-by-beat series; a long stable series is worth
	// more than a handful of readings.
	conf := 55.0
	if n >= 8 {
		conf = 80
	} else if n >= 3 {
		conf = 70
	}
	return Ok(Estimate{
		Provider:      a.Name(),
		Feature:       model.FeatureTempo,
		RawValue:      bpm,
		RawConfidence: &conf,
		Method:        "aubio-tempo",
	})
}

// medianBPM parses aubio's per-beat bpm lines and returns the median of
// the series.
func medianBPM(out string) (float64, int, bool) {
	var vals []float64
	sc := bufio.NewScanner(strings.NewReader(strings.ToLower(out)))
	for sc.Scan() {
		if m := bpmLineRe.FindStringSubmatch(sc.Text()); len(m) >= 2 {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 0 {
				vals = append(vals, v)
			}
		}
	}
	if len(vals) == 0 {
		return 0, 0, false
	}
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 0 {
		return (vals[mid-1] + vals[mid]) / 2, len(vals), true
	}
	return vals[mid], len(vals), true
}
