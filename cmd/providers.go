package main

import (
	"github.com/spf13/cobra"

	"github.com/tonearm/tonearm/internal/model"
)

// providerInfo is the JSON shape of one registry entry.
type providerInfo struct {
	Name     string              `json:"name"`
	Weight   float64             `json:"weight"`
	Features []model.FeatureKind `json:"features"`
	Enabled  bool                `json:"enabled"`
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured analysis providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := buildRegistry(cfg)
		if err != nil {
			return err
		}

		var out []providerInfo
		for _, p := range cfg.Providers {
			info := providerInfo{Name: p.Name, Weight: p.Weight, Enabled: p.Enabled}
			if entry, ok := reg.Get(p.Name); ok {
				info.Features = entry.Analyzer.Features()
				info.Weight = entry.Weight
			}
			out = append(out, info)
		}

		return printJSON(out)
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}
