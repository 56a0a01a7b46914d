package demux

import (
	"io"

	"github.com/ebmlmux/gomkvmerge/internal/mkverrors"
)

// probeMP4 recognizes the ISO base media file format by its leading box:
// a 4-byte size followed by an "ftyp", "moov" or "mdat" FourCC.
func probeMP4(r io.ReadSeeker) (bool, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return false, nil
	}
	fourcc := string(hdr[4:8])
	return fourcc == "ftyp" || fourcc == "moov" || fourcc == "mdat", nil
}

// openMP4 never actually opens anything: MP4 input is recognized but
// rejected as unsupported (spec §7, a preserved quirk of the original
// engine's probe order — MP4 returns ErrUnsupportedFormat rather than
// falling through to ErrProbeFailed, so it is never mistaken for an
// elementary audio stream by the probes below it).
func openMP4(r io.ReadSeeker, path string, bind BindFunc) (Demuxer, error) {
	return nil, mkverrors.ErrUnsupportedFormat
}
