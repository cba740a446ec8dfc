// Package store persists track analyses with their audit trails.
// SQLite backs the single-machine setup; Postgres the shared one.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/tonearm/tonearm/internal/consensus"
)

// ErrNotFound is returned when a requested analysis does not exist.
var ErrNotFound = eris.New("store: analysis not found")

// AnalysisFilter specifies criteria for listing analyses.
type AnalysisFilter struct {
	PathPrefix string `json:"path_prefix,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

// Store is the persistence interface for analysis results. Confidence
// and value columns stay NULL for unanalyzed features, so readers can
// tell "unknown" from "low confidence".
type Store interface {
	SaveAnalysis(ctx context.Context, ta *consensus.TrackAnalysis) error
	GetAnalysis(ctx context.Context, id string) (*consensus.TrackAnalysis, error)
	// GetByPath returns the most recent analysis for a file path.
	GetByPath(ctx context.Context, path string) (*consensus.TrackAnalysis, error)
	ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]consensus.TrackAnalysis, error)

	Migrate(ctx context.Context) error
	Close() error
}

// scalarColumns extracts the nullable query columns from a feature
// result. Everything stays nil unless the feature actually resolved.
func scalarColumns(ta *consensus.TrackAnalysis) (tempoBPM, tempoConf *float64, keyName *string, keyConf *float64) {
	if ta.Tempo != nil && ta.Tempo.Resolved() {
		tempoBPM = ta.Tempo.Tempo
		tempoConf = ta.Tempo.Confidence
	}
	if ta.Key != nil && ta.Key.Resolved() && ta.Key.Key != nil {
		n := ta.Key.Key.String()
		keyName = &n
		keyConf = ta.Key.Confidence
	}
	return
}
