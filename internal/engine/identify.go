package engine

import (
	"github.com/ebmlmux/gomkvmerge/internal/demux"
	"github.com/ebmlmux/gomkvmerge/internal/ioseek"
	"github.com/ebmlmux/gomkvmerge/internal/muxcfg"
	"github.com/ebmlmux/gomkvmerge/internal/trackpac"
)

// TrackIdentity is one track reported by Identify.
type TrackIdentity struct {
	Number  uint64
	Type    demux.TrackType
	CodecID string
}

// FileIdentity is one input file's probe result under --identify/-i: the
// format it was recognized as, and every track it holds, independent of
// any -a/-d/-s selection (spec §3: "reports tracks without applying the
// file's own track-selection flags").
type FileIdentity struct {
	Path   string
	Format string
	Tracks []TrackIdentity
}

// Identify probes every input in cfg without muxing, reporting the
// container format and track list of each (spec §3 supplemented feature).
func Identify(cfg muxcfg.Config) ([]FileIdentity, error) {
	results := make([]FileIdentity, 0, len(cfg.Inputs))
	for _, in := range cfg.Inputs {
		fi, err := identifyOne(in.Path)
		if err != nil {
			return nil, err
		}
		results = append(results, fi)
	}
	return results, nil
}

func identifyOne(path string) (FileIdentity, error) {
	r, err := ioseek.OpenForRead(path)
	if err != nil {
		return FileIdentity{}, err
	}
	defer r.Close()

	var tracks []TrackIdentity
	bind := func(spec demux.TrackSpec) (*trackpac.Packetizer, bool) {
		tracks = append(tracks, TrackIdentity{
			Number:  spec.Entry.Number,
			Type:    spec.Type,
			CodecID: spec.Entry.CodecID,
		})
		return nil, false
	}

	d, format, err := demux.Probe(r, path, bind)
	if err != nil {
		return FileIdentity{}, err
	}
	defer d.Close()

	return FileIdentity{Path: path, Format: format, Tracks: tracks}, nil
}

func (t TrackIdentity) TypeName() string {
	switch t.Type {
	case demux.TrackVideo:
		return "video"
	case demux.TrackAudio:
		return "audio"
	case demux.TrackSubtitle:
		return "subtitles"
	default:
		return "other"
	}
}
