package demux

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"

	"github.com/ebmlmux/gomkvmerge/internal/mkverrors"
	"github.com/ebmlmux/gomkvmerge/internal/trackpac"
)

// probeAVI recognizes a RIFF/AVI container by its 12-byte outer header.
func probeAVI(r io.ReadSeeker) (bool, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return false, nil
	}
	return string(hdr[0:4]) == "RIFF" && string(hdr[8:12]) == "AVI ", nil
}

type aviStream struct {
	fccType       string // "vids" or "auds"
	fps           float64
	sampleRate    uint32
	avgBytesPerSec uint32
	pac           *trackpac.Packetizer
	bytesRead     uint32
	frameIdx      uint32
}

// aviDemux walks RIFF chunks directly: the hdrl list to discover stream
// headers, then the movi list's two-character-stream-index-tagged chunks
// ("00dc", "01wb", ...) for frame data (spec §4.2 AVI variant).
type aviDemux struct {
	r       io.ReadSeeker
	streams []*aviStream
	specs   []TrackSpec
	movEnd  int64
}

func riffChunkHeader(r io.ReadSeeker) (id string, size uint32, err error) {
	var hdr [8]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return "", 0, err
	}
	return string(hdr[0:4]), binary.LittleEndian.Uint32(hdr[4:8]), nil
}

func openAVI(r io.ReadSeeker, path string, bind BindFunc) (Demuxer, error) {
	if _, err := r.Seek(12, io.SeekStart); err != nil {
		return nil, &mkverrors.IOError{Kind: mkverrors.IOErrorSeekFailed, Op: "open", Path: path, Err: err}
	}

	d := &aviDemux{r: r}
	var usecPerFrame uint32

	for {
		id, size, err := riffChunkHeader(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &mkverrors.DemuxInitError{Format: "avi", Detail: "reading chunk header", Err: err}
		}

		if id != "LIST" {
			if _, err := r.Seek(int64(size+size%2), io.SeekCurrent); err != nil {
				return nil, &mkverrors.IOError{Kind: mkverrors.IOErrorSeekFailed, Op: "open", Path: path, Err: err}
			}
			continue
		}

		listStart, _ := r.Seek(0, io.SeekCurrent)
		var listType [4]byte
		if _, err := io.ReadFull(r, listType[:]); err != nil {
			return nil, &mkverrors.DemuxInitError{Format: "avi", Detail: "truncated LIST type", Err: err}
		}
		listEnd := listStart + int64(size)

		switch string(listType[:]) {
		case "hdrl":
			if err := d.parseHdrl(listEnd, &usecPerFrame); err != nil {
				return nil, err
			}
		case "movi":
			d.movEnd = listEnd
			// Rewind to just past the LIST/movi tag; Read() will consume
			// chunks from here lazily.
			if _, err := r.Seek(listStart+4, io.SeekStart); err != nil {
				return nil, &mkverrors.IOError{Kind: mkverrors.IOErrorSeekFailed, Op: "open", Path: path, Err: err}
			}
			goto streamsReady
		default:
			if _, err := r.Seek(listEnd, io.SeekStart); err != nil {
				return nil, &mkverrors.IOError{Kind: mkverrors.IOErrorSeekFailed, Op: "open", Path: path, Err: err}
			}
		}
	}
streamsReady:
	for i, s := range d.streams {
		var entry trackpac.TrackEntry
		entry.Number = uint64(i + 1)
		var typ TrackType
		switch s.fccType {
		case "vids":
			typ = TrackVideo
			entry.CodecID = "V_MS/VFW/FOURCC"
			if usecPerFrame > 0 {
				s.fps = 1e6 / float64(usecPerFrame)
			}
			entry.Video = &trackpac.VideoSettings{}
		case "auds":
			typ = TrackAudio
			entry.CodecID = "A_MS/ACM"
			entry.Audio = &trackpac.AudioSettings{SamplingFrequency: float64(s.sampleRate)}
		default:
			typ = TrackOther
		}
		spec := TrackSpec{Entry: entry, Type: typ}
		d.specs = append(d.specs, spec)
		if pac, ok := bind(spec); ok {
			s.pac = pac
		}
	}

	return d, nil
}

// parseHdrl reads the avih main header (for dwMicroSecPerFrame) and each
// strl's strh sub-chunk (for fccType and stream rate), appending one
// aviStream per strl encountered, in file order.
func (d *aviDemux) parseHdrl(end int64, usecPerFrame *uint32) error {
	for {
		pos, _ := d.r.Seek(0, io.SeekCurrent)
		if pos >= end {
			return nil
		}
		id, size, err := riffChunkHeader(d.r)
		if err != nil {
			return &mkverrors.DemuxInitError{Format: "avi", Detail: "reading hdrl chunk", Err: err}
		}

		switch id {
		case "avih":
			body := make([]byte, size)
			if _, err := io.ReadFull(d.r, body); err != nil {
				return &mkverrors.DemuxInitError{Format: "avi", Detail: "truncated avih", Err: err}
			}
			if len(body) >= 4 {
				*usecPerFrame = binary.LittleEndian.Uint32(body[0:4])
			}
			if size%2 == 1 {
				d.r.Seek(1, io.SeekCurrent)
			}
		case "LIST":
			var listType [4]byte
			if _, err := io.ReadFull(d.r, listType[:]); err != nil {
				return &mkverrors.DemuxInitError{Format: "avi", Detail: "truncated strl LIST", Err: err}
			}
			listEnd := pos + 8 + int64(size)
			if string(listType[:]) == "strl" {
				s, err := d.parseStrl(listEnd)
				if err != nil {
					return err
				}
				d.streams = append(d.streams, s)
			}
			if _, err := d.r.Seek(listEnd, io.SeekStart); err != nil {
				return err
			}
		default:
			if _, err := d.r.Seek(int64(size+size%2), io.SeekCurrent); err != nil {
				return err
			}
		}
	}
}

func (d *aviDemux) parseStrl(end int64) (*aviStream, error) {
	s := &aviStream{}
	for {
		pos, _ := d.r.Seek(0, io.SeekCurrent)
		if pos >= end {
			return s, nil
		}
		id, size, err := riffChunkHeader(d.r)
		if err != nil {
			return nil, &mkverrors.DemuxInitError{Format: "avi", Detail: "reading strl chunk", Err: err}
		}
		switch id {
		case "strh":
			body := make([]byte, size)
			if _, err := io.ReadFull(d.r, body); err != nil {
				return nil, &mkverrors.DemuxInitError{Format: "avi", Detail: "truncated strh", Err: err}
			}
			if len(body) >= 4 {
				s.fccType = string(body[0:4])
			}
			if len(body) >= 32 {
				scale := binary.LittleEndian.Uint32(body[20:24])
				rate := binary.LittleEndian.Uint32(body[24:28])
				if scale > 0 {
					s.sampleRate = rate / scale
				}
			}
			if size%2 == 1 {
				d.r.Seek(1, io.SeekCurrent)
			}
		case "strf":
			body := make([]byte, size)
			if _, err := io.ReadFull(d.r, body); err != nil {
				return nil, &mkverrors.DemuxInitError{Format: "avi", Detail: "truncated strf", Err: err}
			}
			if s.fccType == "auds" && len(body) >= 12 {
				s.sampleRate = binary.LittleEndian.Uint32(body[4:8])
				s.avgBytesPerSec = binary.LittleEndian.Uint32(body[8:12])
			}
			if size%2 == 1 {
				d.r.Seek(1, io.SeekCurrent)
			}
		default:
			if _, err := d.r.Seek(int64(size+size%2), io.SeekCurrent); err != nil {
				return nil, err
			}
		}
	}
}

func (d *aviDemux) Tracks() []TrackSpec { return d.specs }

func (d *aviDemux) Read() error {
	pos, err := d.r.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if pos >= d.movEnd {
		return io.EOF
	}

	id, size, err := riffChunkHeader(d.r)
	if err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("demux avi: reading movi chunk: %w", err)
	}
	if len(id) != 4 {
		return io.EOF
	}

	idx, convErr := strconv.Atoi(id[0:2])
	data := make([]byte, size)
	if _, err := io.ReadFull(d.r, data); err != nil {
		return fmt.Errorf("demux avi: reading chunk payload: %w", err)
	}
	if size%2 == 1 {
		d.r.Seek(1, io.SeekCurrent)
	}

	if convErr != nil || idx < 0 || idx >= len(d.streams) {
		return nil // LIST rec chunks and other non-stream chunks are skipped
	}
	s := d.streams[idx]
	if s.pac == nil {
		return nil
	}

	switch id[2:4] {
	case "dc", "db":
		timecodeMS := int64(0)
		if s.fps > 0 {
			timecodeMS = int64(float64(s.frameIdx) * 1000 / s.fps)
		}
		s.pac.PushRaw(data, timecodeMS, nil, id[2:4] == "dc")
		s.frameIdx++
	case "wb":
		timecodeMS := int64(0)
		if s.avgBytesPerSec > 0 {
			timecodeMS = int64(s.bytesRead) * 1000 / int64(s.avgBytesPerSec)
		}
		s.pac.PushRaw(data, timecodeMS, nil, true)
		s.bytesRead += uint32(len(data))
	}
	return nil
}

func (d *aviDemux) DisplayPriority() int { return 60 }

func (d *aviDemux) DisplayProgress() int {
	pos, err := d.r.Seek(0, io.SeekCurrent)
	if err != nil || d.movEnd == 0 {
		return -1
	}
	return int(pos * 100 / d.movEnd)
}

func (d *aviDemux) Close() error { return nil }
