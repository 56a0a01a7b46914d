package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ebmlmux/gomkvmerge/internal/engine"
	"github.com/ebmlmux/gomkvmerge/internal/muxcfg"
)

// runIdentify implements -i/--identify: report each input's container
// format and track list without muxing (spec §3 supplemented feature).
func runIdentify(cmd *cobra.Command, cfg muxcfg.Config) error {
	results, err := engine.Identify(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, fi := range results {
		fmt.Fprintf(out, "File '%s': container: %s\n", fi.Path, fi.Format)
		for _, tr := range fi.Tracks {
			fmt.Fprintf(out, "Track ID %d: %s (%s)\n", tr.Number, tr.TypeName(), tr.CodecID)
		}
	}
	return nil
}
