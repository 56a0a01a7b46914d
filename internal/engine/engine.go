// Package engine wires the assembled configuration (package muxcfg) to the
// demux registry, the per-track packetizers, the merge scheduler, and the
// container writer, in the exact construction order spec §9 fixes: "config
// -> writer -> segment/meta-seek placeholders -> demuxers -> packetizers ->
// cluster builder -> scheduler." Opening demuxers has to happen before the
// writer can be told TotalInputBytes/HasVideo, so in practice that means:
// open every input first (discovering tracks and binding packetizers as a
// side effect of Open), THEN construct the writer, THEN hand it the
// scheduler to drive cluster emission.
package engine

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/ebmlmux/gomkvmerge/internal/clusterbuild"
	"github.com/ebmlmux/gomkvmerge/internal/demux"
	"github.com/ebmlmux/gomkvmerge/internal/ioseek"
	"github.com/ebmlmux/gomkvmerge/internal/mergesched"
	"github.com/ebmlmux/gomkvmerge/internal/mkvwriter"
	"github.com/ebmlmux/gomkvmerge/internal/muxcfg"
	"github.com/ebmlmux/gomkvmerge/internal/progress"
	"github.com/ebmlmux/gomkvmerge/internal/trackpac"
)

// Result summarizes a completed run for the CLI layer to report.
type Result struct {
	TracksMuxed int
	Warnings    []string
}

// Run assembles and executes one full mux: open every input (applying
// track-selection flags as each is opened), wire the resulting packetizers
// into a scheduler, and drive the container writer to completion. log may
// be nil.
func Run(cfg muxcfg.Config, log *slog.Logger) (Result, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if cfg.Output == "" {
		return Result{}, fmt.Errorf("engine: no output file given (-o)")
	}
	if len(cfg.Inputs) == 0 {
		return Result{}, fmt.Errorf("engine: no input files given")
	}

	e := &engine{cfg: cfg, log: log, sched: mergesched.New(), nextTrack: 1}
	defer e.closeAll()

	for _, in := range cfg.Inputs {
		if err := e.openInput(in); err != nil {
			return Result{}, err
		}
	}
	if len(e.entries) == 0 {
		return Result{}, fmt.Errorf("engine: every track was excluded by track-selection flags; nothing to mux")
	}

	applyTrackOrder(cfg.TrackOrder, e.entries)

	out, err := ioseek.Create(cfg.Output)
	if err != nil {
		return Result{}, err
	}
	e.out = out

	segUID := uuid.New()

	wcfg := mkvwriter.DefaultConfig()
	wcfg.Title = cfg.Title
	wcfg.SegmentUID = segUID[:]
	wcfg.NoMetaSeek = cfg.NoMetaSeek
	wcfg.NoCues = cfg.NoCues
	wcfg.MetaSeekBytes = cfg.MetaSeekSize
	wcfg.TotalInputBytes = e.totalBytes
	wcfg.HasVideo = e.hasVideo
	if cfg.TimestampScale != 0 {
		if err := validateTimestampScale(cfg.TimestampScale); err != nil {
			return Result{}, err
		}
		wcfg.TimecodeScale = cfg.TimestampScale
	}
	if cfg.ClusterLengthMS > 0 {
		limits := clusterbuild.DefaultLimits()
		if cfg.ClusterLengthIsBlocks {
			limits.MaxBlocks = cfg.ClusterLengthMS
		} else {
			limits.MaxLengthMS = int64(cfg.ClusterLengthMS)
		}
		wcfg.ClusterLimits = limits
	}

	if e.reporter != nil {
		wcfg.OnPacket = func(*trackpac.Packet) { e.reporter.Tick() }
	}

	wr := mkvwriter.New(out, wcfg, log)
	if err := wr.Run(e.entries, e.sched); err != nil {
		return Result{}, err
	}

	if err := out.Flush(); err != nil {
		return Result{}, err
	}
	if err := out.Close(); err != nil {
		return Result{}, err
	}
	e.out = nil

	return Result{TracksMuxed: len(e.entries), Warnings: e.warnings}, nil
}

// validateTimestampScale enforces that a --timestamp-scale override divides
// evenly into the fixed 1,000,000ns default, since every cluster and block
// timecode in the writer and cluster builder is computed in units of that
// scale; a non-divisor would silently misrepresent fractional milliseconds.
func validateTimestampScale(scale uint64) error {
	const defaultScale = 1000000
	if scale == 0 || defaultScale%scale != 0 {
		return fmt.Errorf("engine: --timestamp-scale %d does not divide evenly into the default %d", scale, defaultScale)
	}
	return nil
}

// applyTrackOrder reorders entries in place to match a "FILE:TID,FILE:TID"
// --track-order spec by output track number, falling back to input order
// for any track the spec doesn't mention. Malformed specs are ignored
// (spec §3 marks --track-order as best-effort sequencing, not validated
// input).
func applyTrackOrder(spec string, entries []trackpac.TrackEntry) {
	if strings.TrimSpace(spec) == "" {
		return
	}
	rank := map[uint64]int{}
	for i, part := range strings.Split(spec, ",") {
		fields := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(fields) != 2 {
			continue
		}
		var tid uint64
		if _, err := fmt.Sscanf(fields[1], "%d", &tid); err != nil {
			continue
		}
		rank[tid] = i
	}
	if len(rank) == 0 {
		return
	}
	orderOf := func(e trackpac.TrackEntry) int {
		if r, ok := rank[e.Number]; ok {
			return r
		}
		return len(rank) + int(e.Number)
	}
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && orderOf(entries[j]) < orderOf(entries[j-1]); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

type engine struct {
	cfg       muxcfg.Config
	log       *slog.Logger
	sched     *mergesched.Scheduler
	reporter  *progress.Reporter
	out       *ioseek.Writer
	entries   []trackpac.TrackEntry
	demuxers  []demux.Demuxer
	readers   []*ioseek.Reader
	nextTrack uint64

	totalBytes int64
	hasVideo   bool
	warnings   []string
}

// openInput opens one input file, probing for its format and binding a
// Packetizer to every source track that survives the file's track-selection
// flags. Track numbers are assigned contiguously starting at 1 in the order
// tracks are bound across all input files (spec §3: "assigned contiguously
// from 1 by the engine during demux-open").
func (e *engine) openInput(in muxcfg.Input) error {
	r, err := ioseek.OpenForRead(in.Path)
	if err != nil {
		return err
	}
	e.readers = append(e.readers, r)

	if size, err := r.Size(); err == nil {
		e.totalBytes += size
	}

	var filePacs []*trackpac.Packetizer

	bind := func(spec demux.TrackSpec) (*trackpac.Packetizer, bool) {
		sel := e.selectionFor(in.Options, spec.Type)
		if !sel.Includes(int(spec.Entry.Number)) {
			return nil, false
		}

		entry := spec.Entry
		entry.Number = e.nextTrack
		e.nextTrack++
		if entry.UID == 0 {
			entry.UID = fallbackUID()
		}
		if in.Options.Language != "" {
			entry.Language = in.Options.Language
		}
		if in.Options.DefaultTrack {
			entry.Default = true
		}
		if !e.cfg.NoLacing {
			entry.Lacing = true
		}

		applyVideoOverrides(&entry, spec.Type, in.Options)

		if spec.Type == demux.TrackVideo {
			e.hasVideo = true
		}

		pac := trackpac.New(entry, cuePolicyFor(in.Options.CuePolicy, spec.Type), syncFor(spec.Type, in.Options.Sync))
		filePacs = append(filePacs, pac)
		e.entries = append(e.entries, entry)
		return pac, true
	}

	d, _, err := demux.Probe(r, in.Path, bind)
	if err != nil {
		return err
	}
	e.demuxers = append(e.demuxers, d)
	if wn, ok := d.(interface{ Warnings() []string }); ok {
		e.warnings = append(e.warnings, wn.Warnings()...)
	}

	for _, pac := range filePacs {
		e.sched.AddTrack(pac, d)
	}

	if e.reporter == nil {
		e.reporter = progress.New(e.log)
	}
	e.reporter.Add(in.Path, d)

	return nil
}

func (e *engine) selectionFor(opts muxcfg.FileOptions, t demux.TrackType) muxcfg.TrackSelection {
	switch t {
	case demux.TrackVideo:
		return opts.Video
	case demux.TrackAudio:
		return opts.Audio
	case demux.TrackSubtitle:
		return opts.Subs
	default:
		return muxcfg.AllTracks()
	}
}

// cuePolicyFor resolves a track's cue-point emission policy (spec §4.3):
// video tracks get keyframe-only cues by default, everything else gets
// none, unless --cues overrides it for the whole file.
func cuePolicyFor(override string, t demux.TrackType) trackpac.CuePolicy {
	switch override {
	case "none":
		return trackpac.CueNone
	case "all":
		return trackpac.CueAll
	case "iframes":
		return trackpac.CueIFramesOnly
	}
	if t == demux.TrackVideo {
		return trackpac.CueIFramesOnly
	}
	return trackpac.CueNone
}

// syncFor applies -y only to the track kind the spec documents it for:
// audio (spec §6 sync semantics describe correcting audio drift against
// video).
func syncFor(t demux.TrackType, sync *muxcfg.SyncSpec) trackpac.SyncConfig {
	if t != demux.TrackAudio || sync == nil {
		return trackpac.DefaultSyncConfig()
	}
	return trackpac.SyncConfig{DisplacementMS: sync.DisplacementMS, Linear: sync.Linear}
}

// applyVideoOverrides folds -f/--aspect-ratio into a video track's settings.
func applyVideoOverrides(entry *trackpac.TrackEntry, t demux.TrackType, opts muxcfg.FileOptions) {
	if t != demux.TrackVideo || entry.Video == nil {
		return
	}
	if opts.FourCC != "" {
		entry.Video.FourCC = opts.FourCC
	}
	if opts.Aspect != nil && opts.Aspect.Den != 0 && entry.Video.PixelWidth > 0 {
		ratio := opts.Aspect.Num / opts.Aspect.Den
		entry.Video.DisplayWidth = entry.Video.PixelWidth
		entry.Video.DisplayHeight = uint64(float64(entry.Video.PixelWidth) / ratio)
	}
}

// fallbackUID generates a UID the same way jmylchreest-tvarr mints
// request/client identifiers: uuid.New(), here folded down to a uint64
// because TrackEntry.UID is an EBML unsigned integer rather than a string.
func fallbackUID() uint64 {
	id := uuid.New()
	return binary.BigEndian.Uint64(id[:8])
}

func (e *engine) closeAll() {
	for _, d := range e.demuxers {
		_ = d.Close()
	}
	for _, r := range e.readers {
		_ = r.Close()
	}
	if e.out != nil {
		_ = e.out.Close()
	}
}
