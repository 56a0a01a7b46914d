package demux

import (
	"errors"
	"fmt"
	"io"

	"github.com/ebmlmux/gomkvmerge/internal/mkverrors"
)

// Format pairs a container/elementary-stream sniffer with the OpenFunc that
// can actually parse it.
type Format struct {
	Name  string
	Probe func(r io.ReadSeeker) (bool, error)
	Open  OpenFunc
}

// registry is probed in this exact order (spec §4.2, preserved quirk: MP4 is
// recognized but rejected with ErrUnsupportedFormat, not ErrProbeFailed, so
// a .mp4 never falls through to the byte-sniffing elementary-stream probes
// below it).
var registry = []Format{
	{Name: "avi", Probe: probeAVI, Open: openAVI},
	{Name: "matroska", Probe: probeMatroska, Open: openMatroska},
	{Name: "wav", Probe: probeWAV, Open: openWAV},
	{Name: "mp4", Probe: probeMP4, Open: openMP4},
	{Name: "ogg", Probe: probeOgg, Open: openOgg},
	{Name: "srt", Probe: probeSRT, Open: openSRT},
	{Name: "mp3", Probe: probeMP3, Open: openMP3},
	{Name: "ac3", Probe: probeAC3, Open: openAC3},
	{Name: "dts", Probe: probeDTS, Open: openDTS},
	{Name: "aac", Probe: probeAAC, Open: openAAC},
}

// FormatNames lists the registry's format names in probe order, for -l/
// --list-types.
func FormatNames() []string {
	names := make([]string, len(registry))
	for i, f := range registry {
		names[i] = f.Name
	}
	return names
}

// Probe runs the fixed-order registry against r, rewinding between each
// attempt, and opens the first format that claims the stream. It returns
// mkverrors.ErrProbeFailed if nothing recognizes it.
func Probe(r io.ReadSeeker, path string, bind BindFunc) (Demuxer, string, error) {
	for _, f := range registry {
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return nil, "", &mkverrors.IOError{Kind: mkverrors.IOErrorSeekFailed, Op: "probe", Path: path, Err: err}
		}
		ok, err := f.Probe(r)
		if err != nil {
			return nil, "", fmt.Errorf("probing %s as %s: %w", path, f.Name, err)
		}
		if !ok {
			continue
		}
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return nil, "", &mkverrors.IOError{Kind: mkverrors.IOErrorSeekFailed, Op: "probe", Path: path, Err: err}
		}
		d, err := f.Open(r, path, bind)
		if err != nil {
			if errors.Is(err, mkverrors.ErrUnsupportedFormat) {
				return nil, f.Name, err
			}
			return nil, "", fmt.Errorf("opening %s as %s: %w", path, f.Name, err)
		}
		return d, f.Name, nil
	}
	return nil, "", fmt.Errorf("%s: %w", path, mkverrors.ErrProbeFailed)
}
