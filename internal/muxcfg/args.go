// Package muxcfg implements spec §4.7's option and argument assembly:
// @path options-file expansion followed by a two-pass left-to-right walk
// that accumulates per-file configuration and binds it to the next input
// path argument.
//
// This is deliberately bespoke: no library in the retrieval pack performs
// open-ended argv rewriting ahead of a flag parser (see DESIGN.md), so it
// follows the teacher's plain-error-wrapping style instead of reaching for
// a third-party CLI-preprocessing package that doesn't exist in the corpus.
package muxcfg

import (
	"fmt"
	"strings"

	"github.com/ebmlmux/gomkvmerge/internal/ioseek"
)

// ExpandArgs replaces every "@path" token in argv with the lines of that
// file (leading/trailing whitespace stripped, blank lines and
// "#"-prefixed lines discarded), recursively, so an options file may itself
// reference another. Cycles are rejected rather than looping forever.
func ExpandArgs(argv []string) ([]string, error) {
	return expandArgs(argv, map[string]bool{})
}

func expandArgs(argv []string, seen map[string]bool) ([]string, error) {
	out := make([]string, 0, len(argv))
	for _, a := range argv {
		if !strings.HasPrefix(a, "@") {
			out = append(out, a)
			continue
		}
		path := a[1:]
		if seen[path] {
			return nil, fmt.Errorf("muxcfg: options file cycle detected at %q", path)
		}
		lines, err := readOptionLines(path)
		if err != nil {
			return nil, err
		}
		nested := map[string]bool{path: true}
		for k := range seen {
			nested[k] = true
		}
		expanded, err := expandArgs(lines, nested)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

// readOptionLines reads path and splits it into argv-style tokens: each
// surviving line that begins with '-' is split at its first space into a
// flag token and a value token (so "-o out.mkv" on one line becomes two
// argv entries); every other line is a single token.
func readOptionLines(path string) ([]string, error) {
	r, err := ioseek.OpenForRead(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var tokens []string
	for {
		line, err := r.ReadLine()
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			if strings.HasPrefix(trimmed, "-") {
				if i := strings.IndexByte(trimmed, ' '); i >= 0 {
					tokens = append(tokens, trimmed[:i], strings.TrimSpace(trimmed[i+1:]))
				} else {
					tokens = append(tokens, trimmed)
				}
			} else {
				tokens = append(tokens, trimmed)
			}
		}
		if err != nil {
			break
		}
	}
	return tokens, nil
}

// requireValue pops the next argument as a value, failing with an
// actionable message if the flag was the last token.
func requireValue(argv []string, i int, flag string) (string, error) {
	if i+1 >= len(argv) {
		return "", fmt.Errorf("muxcfg: %s requires a value", flag)
	}
	return argv[i+1], nil
}
