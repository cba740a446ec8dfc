package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/tonearm/tonearm/internal/consensus"
	"github.com/tonearm/tonearm/internal/model"
	"github.com/tonearm/tonearm/internal/store"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	}
}

func TestCollectAudioFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir,
		"b.wav",
		"a.flac",
		"notes.txt",
		"cover.jpg",
		"nested/deep/c.MP3",
	)

	files, err := collectAudioFiles(dir)
	require.NoError(t, err)

	require.Len(t, files, 3)
	// Sorted by path, extension case-insensitive.
	assert.Equal(t, filepath.Join(dir, "a.flac"), files[0])
	assert.Equal(t, filepath.Join(dir, "b.wav"), files[1])
	assert.Equal(t, filepath.Join(dir, "nested/deep/c.MP3"), files[2])
}

func TestCollectAudioFiles_MissingDir(t *testing.T) {
	_, err := collectAudioFiles("/definitely/not/a/dir")
	assert.Error(t, err)
}

func batchAnalysis(path string) *consensus.TrackAnalysis {
	conf := 88.0
	bpm := 124.0
	return &consensus.TrackAnalysis{
		ID:         uuid.NewString(),
		Path:       path,
		SampleRate: 22050,
		DurationMS: 1000,
		Tempo: &consensus.Result{
			Feature:    model.FeatureTempo,
			Tempo:      &bpm,
			Confidence: &conf,
		},
		AnalyzedAt: time.Now().UTC(),
	}
}

func newBatchStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestProcessBatch_SavesAll(t *testing.T) {
	st := newBatchStore(t)
	files := []string{"/music/a.wav", "/music/b.wav", "/music/c.wav"}

	err := processBatch(context.Background(), files, 0, 2, rate.NewLimiter(rate.Inf, 1), st, func(ctx context.Context, path string) (*consensus.TrackAnalysis, error) {
		return batchAnalysis(path), nil
	})
	require.NoError(t, err)

	list, err := st.ListAnalyses(context.Background(), store.AnalysisFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestProcessBatch_AppliesLimit(t *testing.T) {
	st := newBatchStore(t)
	files := []string{"/music/a.wav", "/music/b.wav", "/music/c.wav"}

	err := processBatch(context.Background(), files, 2, 1, rate.NewLimiter(rate.Inf, 1), st, func(ctx context.Context, path string) (*consensus.TrackAnalysis, error) {
		return batchAnalysis(path), nil
	})
	require.NoError(t, err)

	list, err := st.ListAnalyses(context.Background(), store.AnalysisFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestProcessBatch_FailureDoesNotAbort(t *testing.T) {
	st := newBatchStore(t)
	files := []string{"/music/a.wav", "/music/bad.wav", "/music/c.wav"}

	err := processBatch(context.Background(), files, 0, 1, rate.NewLimiter(rate.Inf, 1), st, func(ctx context.Context, path string) (*consensus.TrackAnalysis, error) {
		if path == "/music/bad.wav" {
			return nil, eris.New("corrupt header")
		}
		return batchAnalysis(path), nil
	})
	require.NoError(t, err)

	list, err := st.ListAnalyses(context.Background(), store.AnalysisFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestProcessBatch_EmptyList(t *testing.T) {
	st := newBatchStore(t)
	err := processBatch(context.Background(), nil, 0, 4, rate.NewLimiter(rate.Inf, 1), st, func(ctx context.Context, path string) (*consensus.TrackAnalysis, error) {
		t.Fatal("analyze should not be called")
		return nil, nil
	})
	assert.NoError(t, err)
}

func TestProcessBatch_CanceledContext(t *testing.T) {
	st := newBatchStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A limited limiter forces the workers to block on Wait, which then
	// surfaces the canceled context.
	err := processBatch(ctx, []string{"/music/a.wav"}, 0, 1, rate.NewLimiter(0.0001, 0), st, func(ctx context.Context, path string) (*consensus.TrackAnalysis, error) {
		return batchAnalysis(path), nil
	})
	assert.Error(t, err)
}
