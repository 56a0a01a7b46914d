package demux

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ebmlmux/gomkvmerge/internal/mkverrors"
	"github.com/ebmlmux/gomkvmerge/internal/trackpac"
)

// probeWAV recognizes a RIFF/WAVE container by its 12-byte outer header.
func probeWAV(r io.ReadSeeker) (bool, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return false, nil
	}
	return string(hdr[0:4]) == "RIFF" && string(hdr[8:12]) == "WAVE", nil
}

type wavFmt struct {
	audioFormat   uint16
	channels      uint16
	sampleRate    uint32
	bitsPerSample uint16
}

// wavDemux reads the fmt chunk once, then streams the data chunk out as
// fixed-size PCM blocks (one output packet per chunkFrames frames), since
// WAV carries no internal framing at all (spec §4.2 WAV variant).
type wavDemux struct {
	r           io.ReadSeeker
	fmt_        wavFmt
	dataStart   int64
	dataSize    uint32
	bytesPerSec uint32
	blockAlign  uint16
	pos         uint32

	pac *trackpac.Packetizer
}

const wavChunkFrames = 4096

func openWAV(r io.ReadSeeker, path string, bind BindFunc) (Demuxer, error) {
	if _, err := r.Seek(12, io.SeekStart); err != nil {
		return nil, &mkverrors.IOError{Kind: mkverrors.IOErrorSeekFailed, Op: "open", Path: path, Err: err}
	}

	w := &wavDemux{r: r}
	var haveFmt, haveData bool

	for !haveData {
		var chunkHdr [8]byte
		if _, err := io.ReadFull(r, chunkHdr[:]); err != nil {
			return nil, &mkverrors.DemuxInitError{Format: "wav", Detail: "truncated chunk header", Err: err}
		}
		id := string(chunkHdr[0:4])
		size := binary.LittleEndian.Uint32(chunkHdr[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, &mkverrors.DemuxInitError{Format: "wav", Detail: "truncated fmt chunk", Err: err}
			}
			w.fmt_ = wavFmt{
				audioFormat:   binary.LittleEndian.Uint16(body[0:2]),
				channels:      binary.LittleEndian.Uint16(body[2:4]),
				sampleRate:    binary.LittleEndian.Uint32(body[4:8]),
				bitsPerSample: binary.LittleEndian.Uint16(body[14:16]),
			}
			w.bytesPerSec = binary.LittleEndian.Uint32(body[8:12])
			w.blockAlign = binary.LittleEndian.Uint16(body[12:14])
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, &mkverrors.DemuxInitError{Format: "wav", Detail: "data chunk before fmt chunk"}
			}
			pos, err := r.Seek(0, io.SeekCurrent)
			if err != nil {
				return nil, &mkverrors.IOError{Kind: mkverrors.IOErrorSeekFailed, Op: "open", Path: path, Err: err}
			}
			w.dataStart = pos
			w.dataSize = size
			haveData = true
		default:
			if _, err := r.Seek(int64(size), io.SeekCurrent); err != nil {
				return nil, &mkverrors.IOError{Kind: mkverrors.IOErrorSeekFailed, Op: "open", Path: path, Err: err}
			}
		}
	}

	entry := trackpac.TrackEntry{
		Number:  1,
		CodecID: "A_PCM/INT/LIT",
		Audio: &trackpac.AudioSettings{
			SamplingFrequency: float64(w.fmt_.sampleRate),
			Channels:          uint64(w.fmt_.channels),
			BitDepth:          uint64(w.fmt_.bitsPerSample),
		},
	}
	spec := TrackSpec{Entry: entry, Type: TrackAudio}
	if pac, ok := bind(spec); ok {
		w.pac = pac
	}

	if _, err := r.Seek(w.dataStart, io.SeekStart); err != nil {
		return nil, &mkverrors.IOError{Kind: mkverrors.IOErrorSeekFailed, Op: "open", Path: path, Err: err}
	}
	return w, nil
}

func (w *wavDemux) Tracks() []TrackSpec {
	return []TrackSpec{{
		Entry: trackpac.TrackEntry{Number: 1, CodecID: "A_PCM/INT/LIT", Audio: &trackpac.AudioSettings{
			SamplingFrequency: float64(w.fmt_.sampleRate),
			Channels:          uint64(w.fmt_.channels),
			BitDepth:          uint64(w.fmt_.bitsPerSample),
		}},
		Type: TrackAudio,
	}}
}

func (w *wavDemux) Read() error {
	if w.pos >= w.dataSize {
		return io.EOF
	}
	remaining := w.dataSize - w.pos
	chunkBytes := uint32(wavChunkFrames) * uint32(w.blockAlign)
	if chunkBytes > remaining {
		chunkBytes = remaining
	}
	buf := make([]byte, chunkBytes)
	if _, err := io.ReadFull(w.r, buf); err != nil {
		return fmt.Errorf("demux wav: reading data chunk: %w", err)
	}

	timecodeMS := int64(0)
	if w.bytesPerSec > 0 {
		timecodeMS = int64(w.pos) * 1000 / int64(w.bytesPerSec)
	}
	w.pos += chunkBytes

	if w.pac != nil {
		w.pac.PushRaw(buf, timecodeMS, nil, true)
	}
	return nil
}

func (w *wavDemux) DisplayPriority() int { return 50 }

func (w *wavDemux) DisplayProgress() int {
	if w.dataSize == 0 {
		return -1
	}
	return int(uint64(w.pos) * 100 / uint64(w.dataSize))
}

func (w *wavDemux) Close() error { return nil }
