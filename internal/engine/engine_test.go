package engine

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ebmlmux/gomkvmerge/internal/muxcfg"
	"github.com/ebmlmux/gomkvmerge/matroska"
)

// writeWAV writes a minimal PCM WAV file: mono, 8000Hz, 16-bit, numFrames
// frames of silence.
func writeWAV(t *testing.T, path string, numFrames int) {
	t.Helper()
	const (
		channels   = 1
		sampleRate = 8000
		bitDepth   = 16
	)
	blockAlign := channels * bitDepth / 8
	data := make([]byte, numFrames*blockAlign)

	var buf []byte
	appendStr := func(s string) { buf = append(buf, []byte(s)...) }
	appendU32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf = append(buf, b[:]...)
	}
	appendU16 := func(v uint16) {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], v)
		buf = append(buf, b[:]...)
	}

	appendStr("RIFF")
	appendU32(uint32(36 + len(data)))
	appendStr("WAVE")
	appendStr("fmt ")
	appendU32(16)
	appendU16(1) // PCM
	appendU16(channels)
	appendU32(sampleRate)
	appendU32(uint32(sampleRate * blockAlign))
	appendU16(uint16(blockAlign))
	appendU16(bitDepth)
	appendStr("data")
	appendU32(uint32(len(data)))
	buf = append(buf, data...)

	require.NoError(t, os.WriteFile(path, buf, 0o644))
}

func TestRunMuxesSingleWAVInput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.wav")
	out := filepath.Join(dir, "out.mkv")
	writeWAV(t, in, 16000)

	cfg, err := muxcfg.Assemble([]string{"-o", out, in})
	require.NoError(t, err)

	result, err := Run(cfg, nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.TracksMuxed)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	r, err := matroska.NewDemuxer(f)
	require.NoError(t, err)
	defer r.Close()

	numTracks, err := r.GetNumTracks()
	require.NoError(t, err)
	require.EqualValues(t, 1, numTracks)

	count := 0
	for {
		_, err := r.ReadPacket()
		if err != nil {
			break
		}
		count++
	}
	require.Greater(t, count, 0)
}

func TestRunRejectsWhenNoOutput(t *testing.T) {
	_, err := Run(muxcfg.Config{Inputs: []muxcfg.Input{{Path: "a.wav"}}}, nil)
	require.Error(t, err)
}

func TestRunRejectsWhenAllTracksExcluded(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.wav")
	out := filepath.Join(dir, "out.mkv")
	writeWAV(t, in, 1000)

	cfg, err := muxcfg.Assemble([]string{"-o", out, "--noaudio", in})
	require.NoError(t, err)

	_, err = Run(cfg, nil)
	require.Error(t, err)
}

func TestRunHonorsClusterLengthInMilliseconds(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.wav")
	out := filepath.Join(dir, "out.mkv")
	writeWAV(t, in, 80000)

	cfg, err := muxcfg.Assemble([]string{"-o", out, "--cluster-length", "250ms", in})
	require.NoError(t, err)
	require.False(t, cfg.ClusterLengthIsBlocks)

	_, err = Run(cfg, nil)
	require.NoError(t, err)

	info, err := os.Stat(out)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}
