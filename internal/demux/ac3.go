package demux

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ebmlmux/gomkvmerge/internal/mkverrors"
	"github.com/ebmlmux/gomkvmerge/internal/trackpac"
)

// ac3FrameSizeTable maps frmsizecod (0..37) to the frame size in 16-bit
// words, one column per sample rate (32000, 44100, 48000 Hz, the reverse of
// fscod order, hence the 2-fscod column index); from the ATSC A/52
// frame-size table.
var ac3FrameSizeTable = [38][3]int{
	{96, 69, 64}, {96, 70, 64}, {120, 87, 80}, {120, 88, 80},
	{144, 104, 96}, {144, 105, 96}, {168, 121, 112}, {168, 122, 112},
	{192, 139, 128}, {192, 140, 128}, {240, 174, 160}, {240, 175, 160},
	{288, 208, 192}, {288, 209, 192}, {336, 243, 224}, {336, 244, 224},
	{384, 278, 256}, {384, 279, 256}, {480, 348, 320}, {480, 349, 320},
	{576, 417, 384}, {576, 418, 384}, {672, 487, 448}, {672, 488, 448},
	{768, 557, 512}, {768, 558, 512}, {960, 696, 640}, {960, 697, 640},
	{1152, 835, 768}, {1152, 836, 768}, {1344, 975, 896}, {1344, 976, 896},
	{1536, 1114, 1024}, {1536, 1115, 1024}, {1728, 1253, 1152}, {1728, 1254, 1152},
	{1920, 1393, 1280}, {1920, 1394, 1280},
}

var ac3SampleRates = [4]int{48000, 44100, 32000, 0}

func probeAC3(r io.ReadSeeker) (bool, error) {
	var hdr [5]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return false, nil
	}
	if binary.BigEndian.Uint16(hdr[0:2]) != 0x0B77 {
		return false, nil
	}
	fscod := (hdr[4] >> 6) & 0x03
	return fscod != 3, nil
}

// ac3Demux scans AC-3 sync frames (spec §4.2 AC3 variant): constant frame
// size per stream (it never changes mid-stream for a conformant encode), so
// only the first frame's header needs decoding.
type ac3Demux struct {
	r          io.ReadSeeker
	frameBytes int
	sampleRate int
	samplesIn  int64
	size       int64
	pac        *trackpac.Packetizer
}

func openAC3(r io.ReadSeeker, path string, bind BindFunc) (Demuxer, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, &mkverrors.IOError{Kind: mkverrors.IOErrorSeekFailed, Op: "open", Path: path, Err: err}
	}
	var hdr [5]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, &mkverrors.DemuxInitError{Format: "ac3", Detail: "truncated sync header", Err: err}
	}
	fscod := (hdr[4] >> 6) & 0x03
	frmsizecod := hdr[4] & 0x3F
	if fscod == 3 || int(frmsizecod) >= len(ac3FrameSizeTable) {
		return nil, &mkverrors.DemuxInitError{Format: "ac3", Detail: "invalid fscod/frmsizecod in first frame"}
	}
	sampleRate := ac3SampleRates[fscod]
	frameBytes := ac3FrameSizeTable[frmsizecod][2-fscod] * 2

	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, &mkverrors.IOError{Kind: mkverrors.IOErrorSeekFailed, Op: "open", Path: path, Err: err}
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, &mkverrors.IOError{Kind: mkverrors.IOErrorSeekFailed, Op: "open", Path: path, Err: err}
	}

	d := &ac3Demux{r: r, frameBytes: frameBytes, sampleRate: sampleRate, size: size}
	spec := TrackSpec{
		Entry: trackpac.TrackEntry{Number: 1, CodecID: "A_AC3", Audio: &trackpac.AudioSettings{SamplingFrequency: float64(sampleRate)}},
		Type:  TrackAudio,
	}
	if pac, ok := bind(spec); ok {
		d.pac = pac
	}
	return d, nil
}

func (d *ac3Demux) Tracks() []TrackSpec {
	return []TrackSpec{{Entry: trackpac.TrackEntry{Number: 1, CodecID: "A_AC3"}, Type: TrackAudio}}
}

func (d *ac3Demux) Read() error {
	buf := make([]byte, d.frameBytes)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("demux ac3: reading frame: %w", err)
	}
	if binary.BigEndian.Uint16(buf[0:2]) != 0x0B77 {
		return io.EOF // sync lost: treat as end of valid stream rather than fail the whole mux
	}
	timecodeMS := d.samplesIn * 1000 / int64(d.sampleRate)
	d.samplesIn += 1536
	if d.pac != nil {
		d.pac.PushRaw(buf, timecodeMS, nil, true)
	}
	return nil
}

func (d *ac3Demux) DisplayPriority() int { return 30 }

func (d *ac3Demux) DisplayProgress() int {
	pos, err := d.r.Seek(0, io.SeekCurrent)
	if err != nil || d.size == 0 {
		return -1
	}
	return int(pos * 100 / d.size)
}

func (d *ac3Demux) Close() error { return nil }
