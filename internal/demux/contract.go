// Package demux defines the demultiplexer contract (spec §4.2) and the
// fixed-order format registry every input file is probed against.
package demux

import (
	"io"

	"github.com/ebmlmux/gomkvmerge/internal/trackpac"
)

// TrackSpec is what a demultiplexer reports about one track it found in the
// input, before the engine decides (via -a/-d/-s and friends) whether to
// include it in the output.
type TrackSpec struct {
	Entry trackpac.TrackEntry
	Type  TrackType
}

// TrackType classifies a TrackSpec for the -A/-D/-S/--noaudio/--novideo/
// --nosubs track-selection flags (spec §4.2/§6).
type TrackType int

const (
	TrackVideo TrackType = iota
	TrackAudio
	TrackSubtitle
	TrackOther
)

// Demuxer is the contract every input-format adapter implements (spec §4.2):
// probe the stream, open it to discover tracks, then serve one Packet at a
// time per selected track until exhaustion.
type Demuxer interface {
	// Tracks lists every track the container holds, in file order, with
	// their source track numbers. It is not filtered by track selection,
	// which is applied through the BindFunc the demuxer calls during Open.
	Tracks() []TrackSpec

	// Read pulls the next raw frame for any track and pushes it (already
	// timecoded in milliseconds) onto the matching Packetizer via PushRaw.
	// It returns io.EOF once the source is exhausted, satisfying the
	// mergesched.Demuxer interface directly.
	Read() error

	// DisplayPriority ranks how informative this demuxer's progress
	// reporting is, relative to the other inputs feeding the same mux run
	// (spec §4.2/§7): containers with an explicit Duration outrank ones
	// that only know a byte offset.
	DisplayPriority() int

	// DisplayProgress returns a 0..100 completion estimate, or -1 if this
	// demuxer cannot estimate progress at all.
	DisplayProgress() int

	// Close releases any file handle the demuxer opened.
	Close() error
}

// OpenFunc probes r and, if it recognizes the format, returns a ready-to-use
// Demuxer wired to packetizers via bind. A demuxer that recognizes the
// format but cannot serve it (today: MP4) returns mkverrors.ErrUnsupportedFormat
// rather than mkverrors.ErrProbeFailed, so the registry does not keep trying
// later formats against the same bytes (spec §7: "explicit preserved quirk").
type OpenFunc func(r io.ReadSeeker, path string, bind BindFunc) (Demuxer, error)

// BindFunc is supplied by the engine; a demuxer calls it once per track it
// finds during Open. The engine applies the user's track-selection flags
// inside it and returns the Packetizer the demuxer should push raw frames
// into, or false when the track is not selected.
type BindFunc func(spec TrackSpec) (*trackpac.Packetizer, bool)
