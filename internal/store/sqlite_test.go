package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonearm/tonearm/internal/analyzer"
	"github.com/tonearm/tonearm/internal/consensus"
	"github.com/tonearm/tonearm/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func fp(v float64) *float64 { return &v }

func sampleAnalysis(path string) *consensus.TrackAnalysis {
	key := model.KeySignature{PitchClass: 9, Mode: model.ModeMinor}
	return &consensus.TrackAnalysis{
		ID:         uuid.NewString(),
		Path:       path,
		SampleRate: 44100,
		DurationMS: 215000,
		AnalyzedAt: time.Now().UTC().Truncate(time.Millisecond),
		Tempo: &consensus.Result{
			Feature:    model.FeatureTempo,
			Tempo:      fp(128.0),
			Confidence: fp(92.5),
			Contributions: []consensus.Contribution{
				{Provider: "onsetgrid", Status: analyzer.StatusOK, RawValue: 128.0, RawConfidence: fp(88), Weight: 1, IsWinner: true},
				{Provider: "aubio", Status: analyzer.StatusOK, RawValue: 128.3, RawConfidence: fp(80), Weight: 1.2},
			},
		},
		Key: &consensus.Result{
			Feature:    model.FeatureKey,
			Key:        &key,
			Confidence: fp(70),
			Contributions: []consensus.Contribution{
				{Provider: "chromaprof", Status: analyzer.StatusOK, RawValue: "A minor", RawConfidence: fp(82), Weight: 1, IsWinner: true},
			},
		},
	}
}

func TestSQLite_SaveAndGet(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	ta := sampleAnalysis("/music/track.flac")
	require.NoError(t, s.SaveAnalysis(ctx, ta))

	got, err := s.GetAnalysis(ctx, ta.ID)
	require.NoError(t, err)

	assert.Equal(t, ta.ID, got.ID)
	assert.Equal(t, ta.Path, got.Path)
	require.NotNil(t, got.Tempo)
	require.NotNil(t, got.Tempo.Tempo)
	assert.InDelta(t, 128.0, *got.Tempo.Tempo, 0.001)
	assert.Len(t, got.Tempo.Contributions, 2)
	require.NotNil(t, got.Key)
	require.NotNil(t, got.Key.Key)
	assert.Equal(t, model.KeySignature{PitchClass: 9, Mode: model.ModeMinor}, *got.Key.Key)

	win := got.Tempo.Winner()
	require.NotNil(t, win)
	assert.Equal(t, "onsetgrid", win.Provider)
}

func TestSQLite_GetByPath_Latest(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	older := sampleAnalysis("/music/track.flac")
	older.AnalyzedAt = time.Now().UTC().Add(-time.Hour)
	newer := sampleAnalysis("/music/track.flac")
	newer.Tempo.Tempo = fp(130.0)

	require.NoError(t, s.SaveAnalysis(ctx, older))
	require.NoError(t, s.SaveAnalysis(ctx, newer))

	got, err := s.GetByPath(ctx, "/music/track.flac")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)
}

func TestSQLite_NotFound(t *testing.T) {
	s := newTestSQLite(t)

	_, err := s.GetAnalysis(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.GetByPath(context.Background(), "/nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_UnresolvedStaysNull(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	ta := sampleAnalysis("/music/silence.wav")
	// Every provider was unavailable: no value, no confidence.
	ta.Tempo = &consensus.Result{
		Feature: model.FeatureTempo,
		Contributions: []consensus.Contribution{
			{Provider: "onsetgrid", Status: analyzer.StatusUnavailable, Reason: "deadline exceeded", Weight: 1},
		},
	}
	ta.Key = nil
	require.NoError(t, s.SaveAnalysis(ctx, ta))

	// Scalar columns must be NULL, not zero.
	var tempoBPM, tempoConf, keyConf *float64
	var keyName *string
	row := s.db.QueryRow(`SELECT tempo_bpm, tempo_confidence, key_name, key_confidence FROM track_analyses WHERE id = ?`, ta.ID)
	require.NoError(t, row.Scan(&tempoBPM, &tempoConf, &keyName, &keyConf))
	assert.Nil(t, tempoBPM)
	assert.Nil(t, tempoConf)
	assert.Nil(t, keyName)
	assert.Nil(t, keyConf)

	got, err := s.GetAnalysis(ctx, ta.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Tempo)
	assert.Nil(t, got.Tempo.Confidence)
	assert.False(t, got.Tempo.Resolved())
	assert.Nil(t, got.Key)
	require.Len(t, got.Tempo.Contributions, 1)
	assert.Equal(t, analyzer.StatusUnavailable, got.Tempo.Contributions[0].Status)
}

func TestSQLite_ListAnalyses(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	for i, path := range []string{"/a/one.wav", "/a/two.wav", "/b/three.wav"} {
		ta := sampleAnalysis(path)
		ta.AnalyzedAt = time.Now().UTC().Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.SaveAnalysis(ctx, ta))
	}

	all, err := s.ListAnalyses(ctx, AnalysisFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, "/b/three.wav", all[0].Path)

	prefixed, err := s.ListAnalyses(ctx, AnalysisFilter{PathPrefix: "/a/"})
	require.NoError(t, err)
	assert.Len(t, prefixed, 2)

	limited, err := s.ListAnalyses(ctx, AnalysisFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "/a/two.wav", limited[0].Path)
}
