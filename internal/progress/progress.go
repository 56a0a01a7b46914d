// Package progress implements the progress-selector half of spec §4.2/§4.7:
// picking the most informative input demuxer to report completion from, and
// emitting its one-line percentage as the engine's merge loop runs.
//
// Grounded on jmylchreest-tvarr's structured slog usage: progress lines are
// logged at Info level through the same *slog.Logger the rest of the engine
// uses, rather than written directly to stdout, so callers can redirect or
// silence them independently of the CLI's own output.
package progress

import (
	"fmt"
	"log/slog"
)

// Source is the subset of demux.Demuxer progress reporting depends on, kept
// narrow so this package doesn't import internal/demux.
type Source interface {
	DisplayPriority() int
	DisplayProgress() int
}

// Reporter tracks every input's progress source and periodically logs the
// single most informative one's completion percentage.
type Reporter struct {
	log     *slog.Logger
	sources []namedSource
	last    int // last percentage reported, to suppress duplicate log lines
}

type namedSource struct {
	name string
	src  Source
}

// New constructs a Reporter. log may be nil, in which case a discard logger
// is used.
func New(log *slog.Logger) *Reporter {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Reporter{log: log, last: -1}
}

// Add registers one input's progress source under a display name (typically
// its file path), for selection consideration.
func (r *Reporter) Add(name string, src Source) {
	r.sources = append(r.sources, namedSource{name: name, src: src})
}

// best returns the registered source with the highest DisplayPriority that
// can currently estimate progress (DisplayProgress() >= 0), or false if none
// can.
func (r *Reporter) best() (namedSource, bool) {
	var chosen namedSource
	found := false
	bestPriority := -1
	for _, ns := range r.sources {
		if ns.src.DisplayProgress() < 0 {
			continue
		}
		if p := ns.src.DisplayPriority(); !found || p > bestPriority {
			chosen, bestPriority, found = ns, p, true
		}
	}
	return chosen, found
}

// Tick re-evaluates the best progress source and logs a one-line percentage
// if it has advanced since the last call. Called once per scheduler
// iteration by the engine; cheap enough to call unconditionally.
func (r *Reporter) Tick() {
	ns, ok := r.best()
	if !ok {
		return
	}
	pct := ns.src.DisplayProgress()
	if pct == r.last {
		return
	}
	r.last = pct
	r.log.Info("progress", "input", ns.name, "percent", pct)
}

// Line renders the current best source's progress as a one-line percentage
// (spec §4.2 "writes a one-line percentage"), e.g. "input.avi: 42%". The CLI
// does not call it; Tick logs progress instead. Returns "" if no source can
// estimate.
func (r *Reporter) Line() string {
	ns, ok := r.best()
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s: %d%%", ns.name, ns.src.DisplayProgress())
}
