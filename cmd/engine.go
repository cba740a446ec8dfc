package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/tonearm/tonearm/internal/analyzer"
	"github.com/tonearm/tonearm/internal/config"
	"github.com/tonearm/tonearm/internal/consensus"
	"github.com/tonearm/tonearm/internal/decode"
	"github.com/tonearm/tonearm/internal/model"
	"github.com/tonearm/tonearm/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "tonearm.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// buildRegistry wires the enabled providers from config into a registry.
func buildRegistry(cfg *config.Config) (*analyzer.Registry, error) {
	reg := analyzer.NewRegistry()
	for _, p := range cfg.Providers {
		if !p.Enabled {
			continue
		}
		switch p.Name {
		case "onsetgrid":
			reg.Register(analyzer.NewOnsetGrid(), p.Weight)
		case "chromaprof":
			reg.Register(analyzer.NewChromaProfile(), p.Weight)
		case "aubio":
			reg.Register(analyzer.NewAubioExec(cfg.Aubio.Path), p.Weight)
		default:
			return nil, eris.Errorf("unknown provider: %s", p.Name)
		}
	}
	return reg, nil
}

func buildEngine(cfg *config.Config) (*consensus.Engine, error) {
	reg, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}
	return consensus.NewEngine(cfg.Consensus, reg)
}

func newDecoder(cfg *config.Config) *decode.Decoder {
	return decode.NewDecoder(cfg.Decode.FFmpegPath, cfg.Decode.SampleRate)
}

// parseFeatures maps a comma-separated flag value onto feature kinds.
// Empty means all features.
func parseFeatures(s string) ([]model.FeatureKind, error) {
	if strings.TrimSpace(s) == "" {
		return model.AllFeatures(), nil
	}
	var out []model.FeatureKind
	for _, part := range strings.Split(s, ",") {
		f := model.FeatureKind(strings.TrimSpace(part))
		if !f.Valid() {
			return nil, eris.Errorf("unknown feature: %s", part)
		}
		out = append(out, f)
	}
	return out, nil
}

// analysisOutput decorates a stored analysis with the display buckets
// downstream tooling keys on.
type analysisOutput struct {
	*consensus.TrackAnalysis
	TempoBucket model.ConfidenceBucket `json:"tempo_bucket"`
	KeyBucket   model.ConfidenceBucket `json:"key_bucket"`
}

func newAnalysisOutput(ta *consensus.TrackAnalysis) analysisOutput {
	out := analysisOutput{
		TrackAnalysis: ta,
		TempoBucket:   model.BucketUnanalyzed,
		KeyBucket:     model.BucketUnanalyzed,
	}
	if ta.Tempo != nil {
		out.TempoBucket = model.BucketFor(ta.Tempo.Confidence)
	}
	if ta.Key != nil {
		out.KeyBucket = model.BucketFor(ta.Key.Confidence)
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
