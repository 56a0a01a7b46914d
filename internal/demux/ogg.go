//go:build !noogg

package demux

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ebmlmux/gomkvmerge/internal/mkverrors"
	"github.com/ebmlmux/gomkvmerge/internal/trackpac"
)

// Ogg page parsing is grounded on the same page-framing fields the
// retrieval pack's own from-scratch Ogg page *writer* uses in
// other_examples' webm_demuxer.go (createOGGPage): "OggS" capture pattern,
// little-endian granule position, and a page-sequence counter. This file
// walks those fields in reverse to read pages instead of writing them.
//
// Build tag !noogg: a noogg.go stub (tag noogg) lets a build exclude Ogg
// support entirely for a minimal binary, mirroring mkvmerge's own
// compile-time feature toggles for optional container formats.

func probeOgg(r io.ReadSeeker) (bool, error) {
	var capturePattern [4]byte
	if _, err := io.ReadFull(r, capturePattern[:]); err != nil {
		return false, nil
	}
	return string(capturePattern[:]) == "OggS", nil
}

type oggPage struct {
	granulePos  uint64
	headerType  byte
	packets     [][]byte
	incomplete  bool // last packet segment was exactly 255 bytes; continues on next page
}

func readOggPage(r io.Reader) (oggPage, error) {
	var hdr [27]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return oggPage{}, err
	}
	if string(hdr[0:4]) != "OggS" {
		return oggPage{}, fmt.Errorf("demux ogg: bad capture pattern")
	}
	headerType := hdr[5]
	granulePos := binary.LittleEndian.Uint64(hdr[6:14])
	segCount := int(hdr[26])

	segTable := make([]byte, segCount)
	if _, err := io.ReadFull(r, segTable); err != nil {
		return oggPage{}, err
	}

	page := oggPage{granulePos: granulePos, headerType: headerType}
	var current []byte
	for _, segLen := range segTable {
		buf := make([]byte, segLen)
		if segLen > 0 {
			if _, err := io.ReadFull(r, buf); err != nil {
				return oggPage{}, err
			}
		}
		current = append(current, buf...)
		if segLen < 255 {
			page.packets = append(page.packets, current)
			current = nil
		}
	}
	if current != nil {
		page.packets = append(page.packets, current)
		page.incomplete = true
	}
	return page, nil
}

// oggDemux reassembles logical-stream packets across pages (spec §4.2 OGG
// variant) and pushes each completed packet with a timecode derived from
// the page's granule position: Opus packets always use a 48kHz clock per
// the Opus-in-Ogg mapping; Vorbis uses the sample rate from its identification
// header. Any other codec is rejected by openOgg.
type oggDemux struct {
	r          io.Reader
	sampleRate int
	codecID    string
	pending    []byte
	pac        *trackpac.Packetizer
	samplesIn  int64
	packetNum  int
}

func openOgg(r io.ReadSeeker, path string, bind BindFunc) (Demuxer, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, &mkverrors.IOError{Kind: mkverrors.IOErrorSeekFailed, Op: "open", Path: path, Err: err}
	}

	page, err := readOggPage(r)
	if err != nil {
		return nil, &mkverrors.DemuxInitError{Format: "ogg", Detail: "reading first page", Err: err}
	}
	if len(page.packets) == 0 {
		return nil, &mkverrors.DemuxInitError{Format: "ogg", Detail: "first page carries no packets"}
	}

	d := &oggDemux{r: r, sampleRate: 48000, codecID: "A_OPUS"}
	head := page.packets[0]
	switch {
	case bytes.HasPrefix(head, []byte("OpusHead")):
		d.codecID = "A_OPUS"
		d.sampleRate = 48000 // Opus-in-Ogg timestamps are always in 48kHz units
		d.packetNum = 1      // OpusTags is the only header packet left to skip
	case bytes.HasPrefix(head, []byte{0x01, 'v', 'o', 'r', 'b', 'i', 's'}) && len(head) >= 16:
		d.codecID = "A_VORBIS"
		d.sampleRate = int(binary.LittleEndian.Uint32(head[12:16]))
	default:
		return nil, &mkverrors.DemuxInitError{Format: "ogg", Detail: "unrecognized Ogg codec identification packet"}
	}
	if d.sampleRate == 0 {
		d.sampleRate = 48000
	}

	spec := TrackSpec{
		Entry: trackpac.TrackEntry{Number: 1, CodecID: d.codecID, Audio: &trackpac.AudioSettings{SamplingFrequency: float64(d.sampleRate)}},
		Type:  TrackAudio,
	}
	if pac, ok := bind(spec); ok {
		d.pac = pac
	}

	for i := 1; i < len(page.packets); i++ {
		d.pushPacket(page.packets[i], page.granulePos)
	}
	return d, nil
}

func (d *oggDemux) pushPacket(data []byte, granulePos uint64) {
	d.packetNum++
	if d.packetNum <= 2 {
		return // skip the header packets after the identification packet: the comment header (plus Vorbis's setup header)
	}
	timecodeMS := int64(granulePos) * 1000 / int64(d.sampleRate)
	if d.pac != nil {
		d.pac.PushRaw(data, timecodeMS, nil, true)
	}
}

func (d *oggDemux) Tracks() []TrackSpec {
	return []TrackSpec{{Entry: trackpac.TrackEntry{Number: 1, CodecID: d.codecID}, Type: TrackAudio}}
}

func (d *oggDemux) Read() error {
	page, err := readOggPage(d.r)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return io.EOF
		}
		return fmt.Errorf("demux ogg: reading page: %w", err)
	}
	packets := page.packets
	if d.pending != nil && len(packets) > 0 {
		packets[0] = append(d.pending, packets[0]...)
		d.pending = nil
	}
	if page.incomplete && len(packets) > 0 {
		d.pending = packets[len(packets)-1]
		packets = packets[:len(packets)-1]
	}
	for _, pkt := range packets {
		d.pushPacket(pkt, page.granulePos)
	}
	return nil
}

func (d *oggDemux) DisplayPriority() int { return 40 }

func (d *oggDemux) DisplayProgress() int { return -1 }

func (d *oggDemux) Close() error { return nil }
