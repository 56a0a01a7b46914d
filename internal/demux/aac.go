package demux

import (
	"fmt"
	"io"

	"github.com/ebmlmux/gomkvmerge/internal/mkverrors"
	"github.com/ebmlmux/gomkvmerge/internal/trackpac"
)

// aacSampleRates is the ADTS sampling_frequency_index table.
var aacSampleRates = [16]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350, 0, 0, 0,
}

func probeAAC(r io.ReadSeeker) (bool, error) {
	var hdr [7]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return false, nil
	}
	_, ok := readADTSHeader(hdr[:])
	return ok, nil
}

type adtsHeader struct {
	sampleRate  int
	channels    int
	frameLen    int
	hasCRC      bool
	headerBytes int
}

// readADTSHeader decodes a 7-byte (no CRC) or 9-byte (with CRC) ADTS header.
// Sync word is 12 bits of 1s; layout per ISO/IEC 13818-7 Annex B.
func readADTSHeader(b []byte) (adtsHeader, bool) {
	if len(b) < 7 {
		return adtsHeader{}, false
	}
	if b[0] != 0xFF || b[1]&0xF0 != 0xF0 {
		return adtsHeader{}, false
	}
	protectionAbsent := b[1] & 0x01
	sampleRateIdx := (b[2] >> 2) & 0x0F
	channelCfg := ((b[2] & 0x01) << 2) | ((b[3] >> 6) & 0x03)
	frameLen := (uint32(b[3]&0x03) << 11) | (uint32(b[4]) << 3) | (uint32(b[5]) >> 5)

	rate := aacSampleRates[sampleRateIdx]
	if rate == 0 || frameLen < 7 {
		return adtsHeader{}, false
	}

	h := adtsHeader{sampleRate: rate, channels: int(channelCfg), frameLen: int(frameLen), hasCRC: protectionAbsent == 0}
	if h.hasCRC {
		h.headerBytes = 9
	} else {
		h.headerBytes = 7
	}
	return h, true
}

// aacDemux scans ADTS frame headers (spec §4.2 AAC variant); each output
// packet is one AAC access unit, including its ADTS header (mkvmerge keeps
// ADTS framing rather than stripping it to raw LATM/loas payloads).
type aacDemux struct {
	r          io.ReadSeeker
	sampleRate int
	samplesIn  int64
	size       int64
	pac        *trackpac.Packetizer
}

func openAAC(r io.ReadSeeker, path string, bind BindFunc) (Demuxer, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, &mkverrors.IOError{Kind: mkverrors.IOErrorSeekFailed, Op: "open", Path: path, Err: err}
	}
	hdrBytes := make([]byte, 9)
	n, err := io.ReadFull(r, hdrBytes)
	if err != nil && n < 7 {
		return nil, &mkverrors.DemuxInitError{Format: "aac", Detail: "truncated ADTS header", Err: err}
	}
	hdr, ok := readADTSHeader(hdrBytes)
	if !ok {
		return nil, &mkverrors.DemuxInitError{Format: "aac", Detail: "invalid ADTS sync at start of stream"}
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, &mkverrors.IOError{Kind: mkverrors.IOErrorSeekFailed, Op: "open", Path: path, Err: err}
	}

	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, &mkverrors.IOError{Kind: mkverrors.IOErrorSeekFailed, Op: "open", Path: path, Err: err}
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, &mkverrors.IOError{Kind: mkverrors.IOErrorSeekFailed, Op: "open", Path: path, Err: err}
	}

	d := &aacDemux{r: r, sampleRate: hdr.sampleRate, size: size}
	spec := TrackSpec{
		Entry: trackpac.TrackEntry{Number: 1, CodecID: "A_AAC", Audio: &trackpac.AudioSettings{
			SamplingFrequency: float64(hdr.sampleRate),
			Channels:          uint64(hdr.channels),
		}},
		Type: TrackAudio,
	}
	if pac, ok := bind(spec); ok {
		d.pac = pac
	}
	return d, nil
}

func (d *aacDemux) Tracks() []TrackSpec {
	return []TrackSpec{{Entry: trackpac.TrackEntry{Number: 1, CodecID: "A_AAC"}, Type: TrackAudio}}
}

func (d *aacDemux) Read() error {
	hdrBytes := make([]byte, 9)
	start, _ := d.r.Seek(0, io.SeekCurrent)
	n, _ := io.ReadFull(d.r, hdrBytes)
	d.r.Seek(start, io.SeekStart)
	if n < 7 {
		return io.EOF
	}
	hdr, ok := readADTSHeader(hdrBytes)
	if !ok {
		return io.EOF
	}

	buf := make([]byte, hdr.frameLen)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return fmt.Errorf("demux aac: reading frame: %w", err)
	}
	timecodeMS := d.samplesIn * 1000 / int64(d.sampleRate)
	d.samplesIn += 1024
	if d.pac != nil {
		d.pac.PushRaw(buf, timecodeMS, nil, true)
	}
	return nil
}

func (d *aacDemux) DisplayPriority() int { return 30 }

func (d *aacDemux) DisplayProgress() int {
	pos, err := d.r.Seek(0, io.SeekCurrent)
	if err != nil || d.size == 0 {
		return -1
	}
	return int(pos * 100 / d.size)
}

func (d *aacDemux) Close() error { return nil }
