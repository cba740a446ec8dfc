package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/tonearm/tonearm/internal/store"
)

var (
	resultsPrefix string
	resultsLimit  int
	resultsOffset int
)

var resultsCmd = &cobra.Command{
	Use:   "results [id]",
	Short: "List stored analyses, or show one by ID",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		if len(args) == 1 {
			ta, err := st.GetAnalysis(ctx, args[0])
			if err != nil {
				return eris.Wrapf(err, "get analysis %s", args[0])
			}
			return printJSON(newAnalysisOutput(ta))
		}

		list, err := st.ListAnalyses(ctx, store.AnalysisFilter{
			PathPrefix: resultsPrefix,
			Limit:      resultsLimit,
			Offset:     resultsOffset,
		})
		if err != nil {
			return eris.Wrap(err, "list analyses")
		}

		out := make([]analysisOutput, 0, len(list))
		for i := range list {
			out = append(out, newAnalysisOutput(&list[i]))
		}
		return printJSON(out)
	},
}

func init() {
	resultsCmd.Flags().StringVar(&resultsPrefix, "prefix", "", "only list analyses whose path starts with this prefix")
	resultsCmd.Flags().IntVar(&resultsLimit, "limit", 50, "max analyses to list")
	resultsCmd.Flags().IntVar(&resultsOffset, "offset", 0, "number of analyses to skip")
	rootCmd.AddCommand(resultsCmd)
}
