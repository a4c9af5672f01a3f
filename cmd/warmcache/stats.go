package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/warmcache"
	"github.com/IvanBrykalov/warmcache/coordinator"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print entry counts of the durable tiers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(settings)
		if err != nil {
			return err
		}
		layer, err := warmcache.New(cfg, warmcache.Options{Logger: zap.NewNop()})
		if err != nil {
			return err
		}
		defer func() { _ = layer.Close() }()

		s := layer.Coordinator.Stats(cmd.Context())
		if statsJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		}
		printStats(cmd.OutOrStdout(), s)
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print JSON instead of text")
}

func printStats(w io.Writer, s coordinator.Stats) {
	fmt.Fprintf(w, "images:      %s records, %s\n", count(s.BlobDurable), size(s.BlobBytes))
	fmt.Fprintf(w, "local:       %s entries\n", count(s.LocalEntries))
	fmt.Fprintf(w, "api:         %s entries\n", count(s.APIEntries))
	fmt.Fprintf(w, "components:  %s snapshots\n", count(s.ComponentStates))
	fmt.Fprintf(w, "session:     %s entries\n", count(s.SessionEntries))
}

// count renders n with thousands separators, or "n/a" for an unavailable tier.
func count(n int) string {
	if n < 0 {
		return "n/a"
	}
	return humanize.Comma(int64(n))
}

func size(n int64) string {
	if n < 0 {
		return "n/a"
	}
	return humanize.Bytes(uint64(n))
}
