package muxcfg

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ebmlmux/gomkvmerge/internal/mkverrors"
)

// TrackSelection resolves -a/-d/-s, -A/-D/-S, and --noaudio/--novideo/
// --nosubs for one track kind on one input file (spec §4.2).
type TrackSelection struct {
	All  bool        // default: every source track of this kind
	None bool        // -A/-D/-S or --noX: no track of this kind
	IDs  map[int]bool // -a/-d/-s LIST: explicit source track ids
}

// AllTracks is the default selection.
func AllTracks() TrackSelection { return TrackSelection{All: true} }

// Includes reports whether source track id should be selected.
func (s TrackSelection) Includes(id int) bool {
	if s.None {
		return false
	}
	if s.All {
		return true
	}
	return s.IDs[id]
}

// SyncSpec is a parsed "-y d[,o[/p]]" argument (spec §6 sync semantics).
type SyncSpec struct {
	DisplacementMS int64
	Linear         float64 // o/p, default 1.0
}

// AspectSpec is a parsed "--aspect-ratio f|a/b" argument.
type AspectSpec struct {
	Num, Den float64
}

// FileOptions is the pending per-file configuration accumulated by flags
// that precede an input path, then bound to that path and reset (spec
// §4.7).
type FileOptions struct {
	Audio, Video, Subs TrackSelection
	Sync               *SyncSpec
	FourCC             string
	Aspect             *AspectSpec
	CuePolicy          string // "", "none", "iframes", "all"
	DefaultTrack       bool
	Language           string
	SubCharset         string

	audioExplicit, audioNone bool
	videoExplicit, videoNone bool
	subsExplicit, subsNone   bool
}

func newFileOptions() FileOptions {
	return FileOptions{Audio: AllTracks(), Video: AllTracks(), Subs: AllTracks()}
}

// Input pairs a resolved input path with the FileOptions pending when it
// was encountered.
type Input struct {
	Path    string
	Options FileOptions
}

// Config is the fully assembled result of a command line (spec §6).
type Config struct {
	Output          string
	ClusterLengthMS int
	// ClusterLengthIsBlocks is true when --cluster-length was given without
	// a "ms" suffix, meaning ClusterLengthMS is actually a block count
	// rather than a millisecond span (spec §9 Design Notes' corrected
	// reading of the original's reversed-argument bug).
	ClusterLengthIsBlocks bool
	NoCues                bool
	NoMetaSeek            bool
	MetaSeekSize          int
	NoLacing              bool
	Verbosity             int // positive = more -v, negative = more -q
	Title                 string
	TrackOrder            string
	TimestampScale        uint64

	ListTypes     bool
	ListLanguages bool
	Help          bool
	Version       bool
	Identify      bool // -i/--identify: report tracks, do not mux

	Inputs []Input
}

// Assemble runs ExpandArgs then the two-pass walk described in spec §4.7:
// a first pass extracts --output/--list-types/--list-languages/-V/-h (so
// callers can short-circuit on those before touching input files), then a
// second pass walks the fully expanded argv left to right, accumulating
// per-file options and binding them to each positional input path.
func Assemble(argv []string) (Config, error) {
	expanded, err := ExpandArgs(argv)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{MetaSeekSize: 0}
	firstPass(expanded, &cfg)
	if cfg.Help || cfg.Version || cfg.ListTypes || cfg.ListLanguages {
		return cfg, nil
	}
	if err := secondPass(expanded, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// firstPass extracts the flags that can short-circuit the whole run before
// any input file is touched.
func firstPass(argv []string, cfg *Config) {
	for i := 0; i < len(argv); i++ {
		switch argv[i] {
		case "-o", "--output":
			if i+1 < len(argv) {
				cfg.Output = argv[i+1]
				i++
			}
		case "-l", "--list-types":
			cfg.ListTypes = true
		case "--list-languages":
			cfg.ListLanguages = true
		case "-V", "--version":
			cfg.Version = true
		case "-h", "--help":
			cfg.Help = true
		case "-i", "--identify":
			cfg.Identify = true
		}
	}
}

// secondPass walks the expanded argv left to right: global flags take
// immediate effect, per-file flags accumulate into pending, and a
// positional argument binds pending to a new Input and resets it.
func secondPass(argv []string, cfg *Config) error {
	pending := newFileOptions()

	for i := 0; i < len(argv); i++ {
		a := argv[i]
		switch {
		case a == "-o" || a == "--output":
			i++ // consumed by firstPass; just skip its value here
		case a == "-v":
			cfg.Verbosity++
		case a == "-q":
			cfg.Verbosity--
		case a == "--cluster-length":
			v, err := requireValue(argv, i, a)
			if err != nil {
				return err
			}
			i++
			ms, isBlocks, err := parseClusterLength(v)
			if err != nil {
				return err
			}
			cfg.ClusterLengthMS = ms
			cfg.ClusterLengthIsBlocks = isBlocks
		case a == "--no-cues":
			cfg.NoCues = true
		case a == "--no-meta-seek":
			cfg.NoMetaSeek = true
		case a == "--meta-seek-size":
			v, err := requireValue(argv, i, a)
			if err != nil {
				return err
			}
			i++
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return fmt.Errorf("muxcfg: --meta-seek-size must be a positive integer, got %q", v)
			}
			cfg.MetaSeekSize = n
		case a == "--no-lacing":
			cfg.NoLacing = true
		case a == "--title":
			v, err := requireValue(argv, i, a)
			if err != nil {
				return err
			}
			i++
			cfg.Title = v
		case a == "--track-order":
			v, err := requireValue(argv, i, a)
			if err != nil {
				return err
			}
			i++
			cfg.TrackOrder = v
		case a == "--timestamp-scale":
			v, err := requireValue(argv, i, a)
			if err != nil {
				return err
			}
			i++
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("muxcfg: --timestamp-scale must be a positive integer, got %q", v)
			}
			cfg.TimestampScale = n
		case a == "-a" || a == "-d" || a == "-s":
			v, err := requireValue(argv, i, a)
			if err != nil {
				return err
			}
			i++
			if err := applyExplicitSelection(&pending, a, v); err != nil {
				return err
			}
		case a == "-A":
			if pending.audioExplicit {
				return &mkverrors.TrackSelectionError{Detail: "-A conflicts with -a on the same input"}
			}
			pending.audioNone = true
			pending.Audio = TrackSelection{None: true}
		case a == "-D":
			if pending.videoExplicit {
				return &mkverrors.TrackSelectionError{Detail: "-D conflicts with -d on the same input"}
			}
			pending.videoNone = true
			pending.Video = TrackSelection{None: true}
		case a == "-S":
			if pending.subsExplicit {
				return &mkverrors.TrackSelectionError{Detail: "-S conflicts with -s on the same input"}
			}
			pending.subsNone = true
			pending.Subs = TrackSelection{None: true}
		case a == "--noaudio":
			pending.Audio = TrackSelection{None: true}
		case a == "--novideo":
			pending.Video = TrackSelection{None: true}
		case a == "--nosubs":
			pending.Subs = TrackSelection{None: true}
		case a == "-y":
			v, err := requireValue(argv, i, a)
			if err != nil {
				return err
			}
			i++
			spec, err := parseSync(v)
			if err != nil {
				return err
			}
			pending.Sync = spec
		case a == "-f":
			v, err := requireValue(argv, i, a)
			if err != nil {
				return err
			}
			i++
			if len(v) != 4 {
				return &mkverrors.FourCCInvalidError{Detail: fmt.Sprintf("%q is not exactly 4 characters", v)}
			}
			pending.FourCC = v
		case a == "--aspect-ratio":
			v, err := requireValue(argv, i, a)
			if err != nil {
				return err
			}
			i++
			spec, err := parseAspect(v)
			if err != nil {
				return err
			}
			pending.Aspect = spec
		case a == "--cues":
			v, err := requireValue(argv, i, a)
			if err != nil {
				return err
			}
			i++
			switch v {
			case "none", "iframes", "all":
				pending.CuePolicy = v
			default:
				return fmt.Errorf("muxcfg: --cues must be none|iframes|all, got %q", v)
			}
		case a == "--default-track":
			pending.DefaultTrack = true
		case a == "--language":
			v, err := requireValue(argv, i, a)
			if err != nil {
				return err
			}
			i++
			if err := validateLanguage(v); err != nil {
				return err
			}
			pending.Language = v
		case a == "--sub-charset":
			v, err := requireValue(argv, i, a)
			if err != nil {
				return err
			}
			i++
			pending.SubCharset = v
		case a == "-l" || a == "--list-types" || a == "--list-languages" || a == "-V" || a == "--version" || a == "-h" || a == "--help" || a == "-i" || a == "--identify":
			// handled in firstPass; nothing more to do here
		case strings.HasPrefix(a, "-"):
			return fmt.Errorf("muxcfg: unrecognized option %q", a)
		default:
			cfg.Inputs = append(cfg.Inputs, Input{Path: a, Options: pending})
			pending = newFileOptions()
		}
	}
	return nil
}

func applyExplicitSelection(pending *FileOptions, flag, list string) error {
	ids, err := parseTrackIDList(list)
	if err != nil {
		return err
	}
	sel := TrackSelection{IDs: ids}
	switch flag {
	case "-a":
		if pending.audioNone {
			return &mkverrors.TrackSelectionError{Detail: "-a conflicts with -A on the same input"}
		}
		pending.audioExplicit = true
		pending.Audio = sel
	case "-d":
		if pending.videoNone {
			return &mkverrors.TrackSelectionError{Detail: "-d conflicts with -D on the same input"}
		}
		pending.videoExplicit = true
		pending.Video = sel
	case "-s":
		if pending.subsNone {
			return &mkverrors.TrackSelectionError{Detail: "-s conflicts with -S on the same input"}
		}
		pending.subsExplicit = true
		pending.Subs = sel
	}
	return nil
}

func parseTrackIDList(list string) (map[int]bool, error) {
	ids := map[int]bool{}
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 || n > 255 {
			return nil, &mkverrors.TrackSelectionError{Detail: fmt.Sprintf("track id %q out of range [1,255]", part)}
		}
		ids[n] = true
	}
	return ids, nil
}

// parseClusterLength parses "--cluster-length N[ms]": a trailing "ms"
// suffix selects milliseconds directly, otherwise the number is a block
// count which the engine applies as the per-cluster block limit. This is
// the spec's corrected reading of the original's reversed-argument
// strstr("ms", argv[i+1]) bug (spec §9 Design Notes: "the spec mandates
// the correct behavior").
func parseClusterLength(v string) (int, bool, error) {
	if n, ok := strings.CutSuffix(v, "ms"); ok {
		ms, err := strconv.Atoi(n)
		if err != nil || ms < 0 || ms > 65535 {
			return 0, false, fmt.Errorf("muxcfg: --cluster-length value %q out of range [0,65535]", v)
		}
		return ms, false, nil
	}
	blocks, err := strconv.Atoi(v)
	if err != nil || blocks < 0 || blocks > 65535 {
		return 0, false, fmt.Errorf("muxcfg: --cluster-length value %q out of range [0,65535]", v)
	}
	return blocks, true, nil
}

// parseSync parses "-y d[,o[/p]]": d is a signed millisecond displacement,
// o/p forms the linear scale (default 1.0), p defaulting to 1000 when o is
// given without it.
func parseSync(v string) (*SyncSpec, error) {
	parts := strings.SplitN(v, ",", 2)
	d, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, &mkverrors.SyncInvalidError{Detail: fmt.Sprintf("bad displacement %q", parts[0])}
	}
	spec := &SyncSpec{DisplacementMS: d, Linear: 1.0}
	if len(parts) == 1 {
		return spec, nil
	}

	op := strings.SplitN(parts[1], "/", 2)
	o, err := strconv.ParseFloat(op[0], 64)
	if err != nil {
		return nil, &mkverrors.SyncInvalidError{Detail: fmt.Sprintf("bad sync numerator %q", op[0])}
	}
	p := 1000.0
	if len(op) == 2 {
		p, err = strconv.ParseFloat(op[1], 64)
		if err != nil {
			return nil, &mkverrors.SyncInvalidError{Detail: fmt.Sprintf("bad sync denominator %q", op[1])}
		}
	}
	if p == 0 {
		return nil, &mkverrors.SyncInvalidError{Detail: "sync divisor must not be zero"}
	}
	spec.Linear = o / p
	if spec.Linear <= 0 {
		return nil, &mkverrors.SyncInvalidError{Detail: fmt.Sprintf("linear factor must be > 0, got %g", spec.Linear)}
	}
	return spec, nil
}

// parseAspect parses "--aspect-ratio f|a/b".
func parseAspect(v string) (*AspectSpec, error) {
	if i := strings.IndexByte(v, '/'); i >= 0 {
		num, errN := strconv.ParseFloat(v[:i], 64)
		den, errD := strconv.ParseFloat(v[i+1:], 64)
		if errN != nil || errD != nil {
			return nil, &mkverrors.AspectInvalidError{Detail: fmt.Sprintf("bad ratio %q", v)}
		}
		if den == 0 {
			return nil, &mkverrors.AspectInvalidError{Detail: "aspect ratio divisor must not be zero"}
		}
		return &AspectSpec{Num: num, Den: den}, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, &mkverrors.AspectInvalidError{Detail: fmt.Sprintf("bad aspect ratio %q", v)}
	}
	return &AspectSpec{Num: f, Den: 1}, nil
}
