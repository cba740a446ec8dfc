package main

import (
	"context"
	"io/fs"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tonearm/tonearm/internal/consensus"
	"github.com/tonearm/tonearm/internal/model"
	"github.com/tonearm/tonearm/internal/store"
)

var batchLimit int

// audioExtensions are the file types batch picks up while walking.
var audioExtensions = map[string]bool{
	".wav":  true,
	".flac": true,
	".mp3":  true,
	".ogg":  true,
	".m4a":  true,
	".aiff": true,
	".aif":  true,
}

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Analyze every audio file under a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("batch"); err != nil {
			return err
		}

		engine, err := buildEngine(cfg)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		files, err := collectAudioFiles(args[0])
		if err != nil {
			return err
		}

		dec := newDecoder(cfg)
		limiter := rate.NewLimiter(rate.Limit(cfg.Batch.RatePerSec), 1)

		return processBatch(ctx, files, batchLimit, cfg.Batch.MaxConcurrentFiles, limiter, st, func(ctx context.Context, path string) (*consensus.TrackAnalysis, error) {
			sig, err := dec.Decode(ctx, path)
			if err != nil {
				return nil, err
			}
			return engine.Analyze(ctx, sig, model.AllFeatures()...)
		})
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of files to process (0 = all)")
	rootCmd.AddCommand(batchCmd)
}

// collectAudioFiles walks root and returns its audio files sorted by
// path, so runs over the same tree process in the same order.
func collectAudioFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if audioExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "walk %s", root)
	}
	sort.Strings(files)
	return files, nil
}

// analyzeFunc is the callback signature for analyzing one file.
type analyzeFunc func(ctx context.Context, path string) (*consensus.TrackAnalysis, error)

// processBatch applies limit, then fans the files out across workers.
// Each worker waits on the shared rate limiter before starting a file.
func processBatch(ctx context.Context, files []string, limit, concurrency int, limiter *rate.Limiter, st store.Store, analyze analyzeFunc) error {
	if len(files) == 0 {
		zap.L().Info("no audio files found")
		return nil
	}

	// Apply limit
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}

	zap.L().Info("processing batch",
		zap.Int("files", len(files)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, path := range files {
		g.Go(func() error {
			log := zap.L().With(zap.String("path", path))

			if err := limiter.Wait(gctx); err != nil {
				return err
			}

			ta, err := analyze(gctx, path)
			if err != nil {
				failed.Add(1)
				log.Error("analysis failed", zap.Error(err))
				// One bad file does not sink the batch.
				return nil
			}

			if err := st.SaveAnalysis(gctx, ta); err != nil {
				failed.Add(1)
				log.Error("save failed", zap.Error(err))
				return nil
			}

			succeeded.Add(1)
			log.Info("analyzed",
				zap.String("id", ta.ID),
				zap.Int64("duration_ms", ta.DurationMS),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}
