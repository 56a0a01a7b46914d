// Package mergesched implements the merge scheduler (spec §4.5): an N-way
// k-way merge across one Packetizer per output track, with a bounded
// one-packet lookahead per track, lowest-track-number tie-breaking, and
// mandatory-duration tagging on each track's final packet.
package mergesched

import (
	"errors"
	"fmt"
	"io"

	"github.com/ebmlmux/gomkvmerge/internal/mkverrors"
	"github.com/ebmlmux/gomkvmerge/internal/trackpac"
)

// Demuxer is the pull side of a track: calling Read once attempts to push
// at least one more packet into some packetizer's FIFO (its own, or another
// track multiplexed in the same source file), returning io.EOF once the
// source is exhausted. This mirrors demux.Demuxer.Read in spec §4.2, kept
// as a narrow interface here so the scheduler doesn't need the whole demux
// contract.
type Demuxer interface {
	Read() error
}

// track pairs a packetizer with the demultiplexer that feeds it.
type track struct {
	pac   *trackpac.Packetizer
	demux Demuxer
}

// Scheduler drives the packetizers and produces the single globally
// time-ordered packet stream the cluster builder consumes.
type Scheduler struct {
	tracks []*track
}

// New constructs a Scheduler with no tracks registered yet.
func New() *Scheduler {
	return &Scheduler{}
}

// AddTrack registers an output track's packetizer together with the
// demultiplexer that fills it. Tracks should be added in the order their
// track numbers were assigned; ties in Next() break by this TrackEntry
// number (spec §9: "the spec fixes it to lowest track number").
func (s *Scheduler) AddTrack(pac *trackpac.Packetizer, demux Demuxer) {
	s.tracks = append(s.tracks, &track{pac: pac, demux: demux})
}

// fill ensures t's packetizer has its lookahead head set, if possible,
// pulling from the owning demux while the FIFO has room (spec §4.5: "queue
// len < 2").
func (s *Scheduler) fill(t *track) error {
	for !t.pac.HasHead() && t.pac.Status() == trackpac.MoreData && t.pac.PacketAvailable() < 2 {
		if err := t.demux.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				t.pac.SetStatus(trackpac.EndOfStream)
				break
			}
			t.pac.SetStatus(trackpac.Failed)
			return fmt.Errorf("mergesched: reading track %d: %w", t.pac.TrackEntry().Number, err)
		}
	}
	if t.pac.Status() == trackpac.Failed {
		return fmt.Errorf("mergesched: track %d: %w", t.pac.TrackEntry().Number, mkverrors.ErrInternalInvariant)
	}
	if !t.pac.HasHead() {
		if pkt := t.pac.PopQueued(); pkt != nil {
			t.pac.SetHead(pkt)
		}
	}
	if t.pac.HasHead() && t.pac.PacketAvailable() == 0 && t.pac.Status() == trackpac.EndOfStream {
		t.pac.Head().DurationMandatory = true
	}
	return nil
}

// Next returns the next packet in global timecode order, or (nil, false,
// nil) once every track is exhausted. Ties between equal head timecodes
// break by lowest track number (spec §9).
func (s *Scheduler) Next() (*trackpac.Packet, bool, error) {
	var winner *track
	for _, t := range s.tracks {
		if err := s.fill(t); err != nil {
			return nil, false, err
		}
		if !t.pac.HasHead() {
			continue
		}
		if winner == nil {
			winner = t
			continue
		}
		wh, th := winner.pac.Head(), t.pac.Head()
		if th.Timecode < wh.Timecode ||
			(th.Timecode == wh.Timecode && t.pac.TrackEntry().Number < winner.pac.TrackEntry().Number) {
			winner = t
		}
	}
	if winner == nil {
		return nil, false, nil
	}
	pkt := winner.pac.Head()
	winner.pac.ClearHead()
	return pkt, true, nil
}
