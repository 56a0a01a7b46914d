// Command gomkvmerge merges audio, video, and subtitle tracks from one or
// more input files into a single Matroska (.mkv) output.
package main

import (
	"fmt"
	"os"

	"github.com/ebmlmux/gomkvmerge/cmd/gomkvmerge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gomkvmerge:", err)
		os.Exit(1)
	}
}
