package demux

import (
	"errors"
	"fmt"
	"io"

	"github.com/ebmlmux/gomkvmerge/internal/mkverrors"
	"github.com/ebmlmux/gomkvmerge/internal/trackpac"
	"github.com/ebmlmux/gomkvmerge/matroska"
)

// probeMatroska checks only the leading EBML header ID; DocType and the rest
// of the structure are validated by matroska.NewDemuxer in Open, so a file
// that starts with the EBML ID but is otherwise malformed fails there with a
// DemuxInitError rather than with ErrProbeFailed.
func probeMatroska(r io.ReadSeeker) (bool, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, err
	}
	return hdr == [4]byte{0x1A, 0x45, 0xDF, 0xA3}, nil
}

// mkvDemux adapts the matroska package's read-back parser to the Demuxer
// contract: each TrackInfo becomes a TrackSpec, and each matroska.Packet
// pulled by Read is timecode-converted from the segment's TimecodeScale
// into milliseconds before being pushed onto its track's Packetizer.
type mkvDemux struct {
	d            *matroska.Demuxer
	path         string
	scaleToMS    float64 // milliseconds per one unit of matroska.Packet.StartTime
	durationMS   int64
	haveDuration bool

	bind     BindFunc
	pacByNum map[uint8]*trackpac.Packetizer
	specs    []TrackSpec
	warnings []string
}

// droppedMetadataWarnings reports segment-level metadata mkvwriter never
// re-emits on remux, so a caller can surface what silently didn't make it
// into the output instead of the user noticing only after the fact.
func droppedMetadataWarnings(d *matroska.Demuxer, path string) []string {
	var warnings []string
	if n := len(d.GetChapters()); n > 0 {
		warnings = append(warnings, fmt.Sprintf("%s: dropping %d chapter(s); not carried over on remux", path, n))
	}
	if n := len(d.GetTags()); n > 0 {
		warnings = append(warnings, fmt.Sprintf("%s: dropping %d tag(s); not carried over on remux", path, n))
	}
	if n := len(d.GetAttachments()); n > 0 {
		warnings = append(warnings, fmt.Sprintf("%s: dropping %d attachment(s); not carried over on remux", path, n))
	}
	return warnings
}

// Warnings returns any non-fatal notices gathered while opening the file.
func (m *mkvDemux) Warnings() []string { return m.warnings }

func openMatroska(r io.ReadSeeker, path string, bind BindFunc) (Demuxer, error) {
	d, err := matroska.NewDemuxer(r)
	if err != nil {
		return nil, &mkverrors.DemuxInitError{Format: "matroska", Detail: err.Error(), Err: err}
	}

	info, err := d.GetFileInfo()
	if err != nil {
		return nil, &mkverrors.DemuxInitError{Format: "matroska", Detail: "reading segment info: " + err.Error(), Err: err}
	}

	md := &mkvDemux{
		d:         d,
		path:      path,
		scaleToMS: float64(info.TimecodeScale) / 1e6,
		bind:      bind,
		pacByNum:  make(map[uint8]*trackpac.Packetizer),
	}
	if info.Duration > 0 {
		md.durationMS = int64(float64(info.Duration) * md.scaleToMS)
		md.haveDuration = true
	}

	numTracks, err := d.GetNumTracks()
	if err != nil {
		return nil, &mkverrors.DemuxInitError{Format: "matroska", Detail: err.Error(), Err: err}
	}

	for i := uint(0); i < numTracks; i++ {
		ti, err := d.GetTrackInfo(i)
		if err != nil {
			return nil, &mkverrors.DemuxInitError{Format: "matroska", Detail: err.Error(), Err: err}
		}
		md.specs = append(md.specs, TrackSpec{Entry: entryFromMatroska(ti), Type: typeFromMatroska(ti.Type)})
	}

	md.warnings = droppedMetadataWarnings(d, path)

	for _, spec := range md.specs {
		if pac, ok := bind(spec); ok {
			md.pacByNum[uint8(spec.Entry.Number)] = pac
		}
	}

	return md, nil
}

func entryFromMatroska(ti *matroska.TrackInfo) trackpac.TrackEntry {
	entry := trackpac.TrackEntry{
		Number:       uint64(ti.Number),
		UID:          ti.UID,
		CodecID:      ti.CodecID,
		CodecPrivate: ti.CodecPrivate,
		Name:         ti.Name,
		Language:     ti.Language,
		Default:      ti.Default,
		Lacing:       ti.Lacing,
	}
	switch ti.Type {
	case matroska.TypeVideo:
		entry.Video = &trackpac.VideoSettings{
			PixelWidth:    uint64(ti.Video.PixelWidth),
			PixelHeight:   uint64(ti.Video.PixelHeight),
			DisplayWidth:  uint64(ti.Video.DisplayWidth),
			DisplayHeight: uint64(ti.Video.DisplayHeight),
		}
	case matroska.TypeAudio:
		entry.Audio = &trackpac.AudioSettings{
			SamplingFrequency: ti.Audio.OutputSamplingFreq,
			Channels:          uint64(ti.Audio.Channels),
			BitDepth:          uint64(ti.Audio.BitDepth),
		}
	}
	return entry
}

func typeFromMatroska(t uint8) TrackType {
	switch t {
	case matroska.TypeVideo:
		return TrackVideo
	case matroska.TypeAudio:
		return TrackAudio
	case matroska.TypeSubtitle:
		return TrackSubtitle
	default:
		return TrackOther
	}
}

func (m *mkvDemux) Tracks() []TrackSpec { return m.specs }

func (m *mkvDemux) Read() error {
	pkt, err := m.d.ReadPacket()
	if err != nil {
		return err // io.EOF passes through unwrapped, satisfying mergesched.Demuxer
	}
	pac, ok := m.pacByNum[pkt.Track]
	if !ok {
		return m.Read() // track wasn't selected for output; skip and pull the next one
	}
	ms := int64(float64(pkt.StartTime) * m.scaleToMS)
	pac.PushRaw(pkt.Data, ms, nil, pkt.Flags&matroska.KF != 0)
	return nil
}

func (m *mkvDemux) DisplayPriority() int {
	if m.haveDuration {
		return 100
	}
	return 10
}

func (m *mkvDemux) DisplayProgress() int {
	if !m.haveDuration || m.durationMS == 0 {
		return -1
	}
	pos := m.d.GetLowestQTimecode()
	posMS := int64(float64(pos) * m.scaleToMS)
	pct := int(posMS * 100 / m.durationMS)
	if pct > 100 {
		pct = 100
	}
	return pct
}

func (m *mkvDemux) Close() error {
	m.d.Close()
	return nil
}
