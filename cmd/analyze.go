package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	analyzeFeatures string
	analyzeNoStore  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Analyze a single audio file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("analyze"); err != nil {
			return err
		}

		features, err := parseFeatures(analyzeFeatures)
		if err != nil {
			return err
		}

		engine, err := buildEngine(cfg)
		if err != nil {
			return err
		}

		signal, err := newDecoder(cfg).Decode(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "decode audio")
		}

		ta, err := engine.Analyze(ctx, signal, features...)
		if err != nil {
			return eris.Wrap(err, "analyze")
		}

		if !analyzeNoStore {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}
			if err := st.SaveAnalysis(ctx, ta); err != nil {
				return eris.Wrap(err, "save analysis")
			}
		}

		zap.L().Info("analysis complete",
			zap.String("id", ta.ID),
			zap.String("path", ta.Path),
			zap.Int64("duration_ms", ta.DurationMS),
		)

		return printJSON(newAnalysisOutput(ta))
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeFeatures, "features", "", "comma-separated features to analyze (default: all)")
	analyzeCmd.Flags().BoolVar(&analyzeNoStore, "no-store", false, "print the result without persisting it")
	rootCmd.AddCommand(analyzeCmd)
}
