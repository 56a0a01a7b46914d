package demux

import (
	"fmt"
	"io"

	"github.com/ebmlmux/gomkvmerge/internal/mkverrors"
	"github.com/ebmlmux/gomkvmerge/internal/trackpac"
)

// MPEG1 Layer III bitrate table, kbps, indexed by the 4-bit bitrate_index
// (index 0 and 15 are reserved/free and unsupported here).
var mp3BitrateTableV1L3 = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}

// mp3SampleRates maps MPEG version id (3=MPEG1, 2=MPEG2, 0=MPEG2.5) and
// the 2-bit sampling_rate_index to a sample rate in Hz.
var mp3SampleRates = map[uint8][4]int{
	3: {44100, 48000, 32000, 0},
	2: {22050, 24000, 16000, 0},
	0: {11025, 12000, 8000, 0},
}

func probeMP3(r io.ReadSeeker) (bool, error) {
	hdr, ok := readMP3FrameHeader(r)
	return ok && hdr.bitrate > 0 && hdr.sampleRate > 0, nil
}

type mp3FrameHeader struct {
	bitrate    int
	sampleRate int
	padding    int
	frameLen   int
}

// readMP3FrameHeader reads 4 bytes at the current position and decodes them
// as an MPEG1 Layer III frame header, without advancing past the header
// (caller re-seeks as needed).
func readMP3FrameHeader(r io.ReadSeeker) (mp3FrameHeader, bool) {
	start, _ := r.Seek(0, io.SeekCurrent)
	var b [4]byte
	n, _ := io.ReadFull(r, b[:])
	r.Seek(start, io.SeekStart)
	if n != 4 {
		return mp3FrameHeader{}, false
	}
	if b[0] != 0xFF || b[1]&0xE0 != 0xE0 {
		return mp3FrameHeader{}, false
	}
	versionID := (b[1] >> 3) & 0x03
	layer := (b[1] >> 1) & 0x03
	if layer != 0x01 { // 01 = Layer III
		return mp3FrameHeader{}, false
	}
	bitrateIdx := (b[2] >> 4) & 0x0F
	sampleRateIdx := (b[2] >> 2) & 0x03
	padding := int((b[2] >> 1) & 0x01)

	rates, ok := mp3SampleRates[versionID]
	if !ok || sampleRateIdx == 3 {
		return mp3FrameHeader{}, false
	}
	sampleRate := rates[sampleRateIdx]
	bitrate := mp3BitrateTableV1L3[bitrateIdx]
	if sampleRate == 0 || bitrate == 0 {
		return mp3FrameHeader{}, false
	}

	samplesPerFrame := 1152
	if versionID != 3 {
		samplesPerFrame = 576
	}
	frameLen := samplesPerFrame/8*bitrate*1000/sampleRate + padding

	return mp3FrameHeader{bitrate: bitrate, sampleRate: sampleRate, padding: padding, frameLen: frameLen}, true
}

// mp3Demux scans MPEG audio frame sync words one frame at a time (spec
// §4.2 MP3 variant); each output packet is exactly one MPEG frame.
type mp3Demux struct {
	r          io.ReadSeeker
	sampleRate int
	samplesIn  int64
	pac        *trackpac.Packetizer
	size       int64
}

func openMP3(r io.ReadSeeker, path string, bind BindFunc) (Demuxer, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, &mkverrors.IOError{Kind: mkverrors.IOErrorSeekFailed, Op: "open", Path: path, Err: err}
	}
	hdr, ok := readMP3FrameHeader(r)
	if !ok {
		return nil, &mkverrors.DemuxInitError{Format: "mp3", Detail: "no valid frame sync found at start of stream"}
	}

	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, &mkverrors.IOError{Kind: mkverrors.IOErrorSeekFailed, Op: "open", Path: path, Err: err}
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, &mkverrors.IOError{Kind: mkverrors.IOErrorSeekFailed, Op: "open", Path: path, Err: err}
	}

	d := &mp3Demux{r: r, sampleRate: hdr.sampleRate, size: size}
	spec := TrackSpec{
		Entry: trackpac.TrackEntry{Number: 1, CodecID: "A_MPEG/L3", Audio: &trackpac.AudioSettings{SamplingFrequency: float64(hdr.sampleRate)}},
		Type:  TrackAudio,
	}
	if pac, ok := bind(spec); ok {
		d.pac = pac
	}
	return d, nil
}

func (d *mp3Demux) Tracks() []TrackSpec {
	return []TrackSpec{{Entry: trackpac.TrackEntry{Number: 1, CodecID: "A_MPEG/L3"}, Type: TrackAudio}}
}

func (d *mp3Demux) Read() error {
	hdr, ok := readMP3FrameHeader(d.r)
	if !ok {
		return io.EOF
	}
	buf := make([]byte, hdr.frameLen)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return fmt.Errorf("demux mp3: short frame read: %w", err)
	}
	timecodeMS := d.samplesIn * 1000 / int64(d.sampleRate)
	d.samplesIn += 1152
	if d.pac != nil {
		d.pac.PushRaw(buf, timecodeMS, nil, true)
	}
	return nil
}

func (d *mp3Demux) DisplayPriority() int { return 30 }

func (d *mp3Demux) DisplayProgress() int {
	pos, err := d.r.Seek(0, io.SeekCurrent)
	if err != nil || d.size == 0 {
		return -1
	}
	return int(pos * 100 / d.size)
}

func (d *mp3Demux) Close() error { return nil }
