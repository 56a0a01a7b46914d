// Package matroska reads back a Matroska/WebM segment: EBML header, segment
// info, track table, and the cluster/block stream, surfaced through Demuxer
// for use as a remux input (internal/demux wraps it behind the Demuxer
// contract the rest of the engine speaks).
package matroska

import (
	"fmt"
	"io"
)

// Demuxer reads tracks and packets back out of a parsed Matroska segment.
type Demuxer struct {
	parser *MatroskaParser
	reader io.ReadSeeker

	lowestQTimecode uint64
}

// NewDemuxer opens a Matroska demuxer on a seekable input.
func NewDemuxer(r io.ReadSeeker) (*Demuxer, error) {
	parser, err := NewMatroskaParser(r, false)
	if err != nil {
		return nil, fmt.Errorf("matroska: open demuxer: %w", err)
	}

	return &Demuxer{
		parser: parser,
		reader: r,
	}, nil
}

// NewStreamingDemuxer opens a Matroska demuxer on an io.Reader with no seek
// support, via fakeSeeker (segments with an unknown-size top-level Segment
// element never need to seek backward to parse).
func NewStreamingDemuxer(r io.Reader) (*Demuxer, error) {
	fs := &fakeSeeker{r: r}
	parser, err := NewMatroskaParser(fs, true)
	if err != nil {
		return nil, fmt.Errorf("matroska: open streaming demuxer: %w", err)
	}

	return &Demuxer{
		parser: parser,
		reader: fs,
	}, nil
}

// Close releases the demuxer. The parser holds no resources beyond the
// reader handed to NewDemuxer/NewStreamingDemuxer, which the caller owns.
func (d *Demuxer) Close() {}

// GetNumTracks gets the number of tracks available to a given demuxer.
func (d *Demuxer) GetNumTracks() (uint, error) {
	return d.parser.GetNumTracks(), nil
}

// GetTrackInfo returns all track-level information available for a given track,
// where track is less than what is returned by GetNumTracks.
func (d *Demuxer) GetTrackInfo(track uint) (*TrackInfo, error) {
	trackInfo := d.parser.GetTrackInfo(track)
	if trackInfo == nil {
		return nil, fmt.Errorf("track %d not found", track)
	}
	return trackInfo, nil
}

// GetFileInfo gets all top-level (whole file) info available for a given
// demuxer.
func (d *Demuxer) GetFileInfo() (*SegmentInfo, error) {
	fileInfo := d.parser.GetFileInfo()
	if fileInfo == nil {
		return nil, fmt.Errorf("no file info available")
	}
	return fileInfo, nil
}

// GetAttachments returns information on all available attachments
// for a given demuxer. The returned slice may be of length 0.
func (d *Demuxer) GetAttachments() []*Attachment {
	return d.parser.GetAttachments()
}

// GetChapters returns all chapters for a given demuxer. The returned slice may
// be of length 0.
func (d *Demuxer) GetChapters() []*Chapter {
	return d.parser.GetChapters()
}

// GetTags returns all tags for a given demuxer. The returned slice may be of
// length 0.
func (d *Demuxer) GetTags() []*Tag {
	return d.parser.GetTags()
}

// GetCues returns all cues for a given demuxer. The returned slice may be
// of length 0.
func (d *Demuxer) GetCues() []*Cue {
	return d.parser.GetCues()
}

// GetLowestQTimecode returns the timecode of the most recently read packet,
// for progress.Source callers that poll read position against a known
// duration rather than tracking an internal read queue.
func (d *Demuxer) GetLowestQTimecode() uint64 {
	return d.lowestQTimecode
}

// ReadPacket returns the next packet from a demuxer.
func (d *Demuxer) ReadPacket() (*Packet, error) {
	pkt, err := d.parser.ReadPacket()
	if err != nil {
		return nil, err
	}
	d.lowestQTimecode = pkt.StartTime
	return pkt, nil
}
