package demux

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ebmlmux/gomkvmerge/internal/mkverrors"
	"github.com/ebmlmux/gomkvmerge/internal/trackpac"
)

// dtsSampleRates maps the 4-bit SFREQ field to Hz (DTS Coherent Acoustics
// core sample rate table; indices 0 and the high reserved entries carry no
// rate and are rejected).
var dtsSampleRates = [16]int{
	0, 8000, 16000, 32000, 0, 0, 11025, 22050, 44100, 0, 0, 12000, 24000, 48000, 0, 0,
}

func probeDTS(r io.ReadSeeker) (bool, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return false, nil
	}
	return binary.BigEndian.Uint32(hdr[:]) == 0x7FFE8001, nil
}

// dtsDemux scans DTS Coherent Acoustics frames by the 32-bit big-endian
// sync word 0x7FFE8001 (spec §4.2 DTS variant). The frame-size and
// sample-rate fields sit in the 10 bytes following the sync word; decoding
// them needs bit-level (not byte-aligned) field extraction.
type dtsDemux struct {
	r          io.ReadSeeker
	sampleRate int
	samplesIn  int64
	size       int64
	pac        *trackpac.Packetizer
}

// dtsFrameInfo is what Read needs from one frame header: its total byte
// length (including the sync word) and sample rate.
type dtsFrameInfo struct {
	frameBytes int
	sampleRate int
	samples    int
}

func readDTSFrameInfo(hdr []byte) (dtsFrameInfo, bool) {
	if len(hdr) < 14 || binary.BigEndian.Uint32(hdr[0:4]) != 0x7FFE8001 {
		return dtsFrameInfo{}, false
	}
	// Bitstream after the 32-bit sync word (MSB first):
	// FTYPE(1) SHORT(5) CPF(1) NBLKS(7) FSIZE(14) AMODE(6) SFREQ(4) ...
	bits := newBitReader(hdr[4:])
	bits.skip(1 + 5 + 1)
	nblks := bits.read(7)
	fsize := bits.read(14)
	bits.skip(6)
	sfreqIdx := bits.read(4)

	rate := dtsSampleRates[sfreqIdx]
	if rate == 0 {
		return dtsFrameInfo{}, false
	}
	return dtsFrameInfo{frameBytes: int(fsize) + 1, sampleRate: rate, samples: (int(nblks) + 1) * 32}, true
}

// bitReader pulls fixed-width big-endian bitfields out of a byte slice,
// MSB first, matching the DTS (and most MPEG-family) header bit layout.
type bitReader struct {
	data []byte
	pos  int // bit offset from start of data
}

func newBitReader(data []byte) *bitReader { return &bitReader{data: data} }

func (b *bitReader) read(n int) uint32 {
	var v uint32
	for i := 0; i < n; i++ {
		byteIdx := b.pos / 8
		bitIdx := 7 - (b.pos % 8)
		var bit uint32
		if byteIdx < len(b.data) {
			bit = uint32((b.data[byteIdx] >> uint(bitIdx)) & 1)
		}
		v = (v << 1) | bit
		b.pos++
	}
	return v
}

func (b *bitReader) skip(n int) { b.pos += n }

func openDTS(r io.ReadSeeker, path string, bind BindFunc) (Demuxer, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, &mkverrors.IOError{Kind: mkverrors.IOErrorSeekFailed, Op: "open", Path: path, Err: err}
	}
	hdr := make([]byte, 16)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, &mkverrors.DemuxInitError{Format: "dts", Detail: "truncated frame header", Err: err}
	}
	info, ok := readDTSFrameInfo(hdr)
	if !ok {
		return nil, &mkverrors.DemuxInitError{Format: "dts", Detail: "invalid first frame header"}
	}

	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, &mkverrors.IOError{Kind: mkverrors.IOErrorSeekFailed, Op: "open", Path: path, Err: err}
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, &mkverrors.IOError{Kind: mkverrors.IOErrorSeekFailed, Op: "open", Path: path, Err: err}
	}

	d := &dtsDemux{r: r, sampleRate: info.sampleRate, size: size}
	spec := TrackSpec{
		Entry: trackpac.TrackEntry{Number: 1, CodecID: "A_DTS", Audio: &trackpac.AudioSettings{SamplingFrequency: float64(info.sampleRate)}},
		Type:  TrackAudio,
	}
	if pac, ok := bind(spec); ok {
		d.pac = pac
	}
	return d, nil
}

func (d *dtsDemux) Tracks() []TrackSpec {
	return []TrackSpec{{Entry: trackpac.TrackEntry{Number: 1, CodecID: "A_DTS"}, Type: TrackAudio}}
}

func (d *dtsDemux) Read() error {
	hdr := make([]byte, 16)
	start, _ := d.r.Seek(0, io.SeekCurrent)
	n, _ := io.ReadFull(d.r, hdr)
	d.r.Seek(start, io.SeekStart)
	if n < 16 {
		return io.EOF
	}
	info, ok := readDTSFrameInfo(hdr)
	if !ok {
		return io.EOF
	}

	buf := make([]byte, info.frameBytes)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return fmt.Errorf("demux dts: reading frame: %w", err)
	}
	timecodeMS := d.samplesIn * 1000 / int64(d.sampleRate)
	d.samplesIn += int64(info.samples)
	if d.pac != nil {
		d.pac.PushRaw(buf, timecodeMS, nil, true)
	}
	return nil
}

func (d *dtsDemux) DisplayPriority() int { return 30 }

func (d *dtsDemux) DisplayProgress() int {
	pos, err := d.r.Seek(0, io.SeekCurrent)
	if err != nil || d.size == 0 {
		return -1
	}
	return int(pos * 100 / d.size)
}

func (d *dtsDemux) Close() error { return nil }
