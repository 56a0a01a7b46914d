package cmd

import (
	"fmt"
	"io"

	"github.com/ebmlmux/gomkvmerge/internal/demux"
)

// printListTypes implements -l/--list-types: the demultiplexer registry,
// in the exact order inputs are probed against it (spec §6).
func printListTypes(w io.Writer) {
	fmt.Fprintln(w, "Supported input formats, in probe order:")
	for _, name := range demux.FormatNames() {
		fmt.Fprintf(w, "  %s\n", name)
	}
}

// printListLanguages implements --list-languages: gomkvmerge validates
// --language against ISO-639-2 via golang.org/x/text's BCP-47 parser rather
// than a bundled table, so this reports the rule instead of enumerating
// every accepted code.
func printListLanguages(w io.Writer) {
	fmt.Fprintln(w, "Language codes are validated as ISO-639-2 (e.g. eng, fre, jpn, und).")
}
