//go:build noogg

package demux

import (
	"io"

	"github.com/ebmlmux/gomkvmerge/internal/mkverrors"
)

// Built with -tags noogg, Ogg/Opus/Vorbis input is never recognized,
// trading away that format for a smaller binary (spec §9 supplemented
// feature: compile-time container toggles, mirroring mkvmerge's own build
// options for optional third-party format support).

func probeOgg(r io.ReadSeeker) (bool, error) { return false, nil }

func openOgg(r io.ReadSeeker, path string, bind BindFunc) (Demuxer, error) {
	return nil, mkverrors.ErrProbeFailed
}
