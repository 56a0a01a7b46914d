package demux

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ebmlmux/gomkvmerge/internal/mkverrors"
	"github.com/ebmlmux/gomkvmerge/internal/trackpac"
)

type seekableBuf struct{ *bytes.Reader }

func newSeekableBuf(b []byte) *seekableBuf { return &seekableBuf{bytes.NewReader(b)} }

func noopBind(spec TrackSpec) (*trackpac.Packetizer, bool) {
	return trackpac.New(spec.Entry, trackpac.CueNone, trackpac.DefaultSyncConfig()), true
}

func buildWAV(t *testing.T, samples []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(samples)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))     // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1))     // mono
	binary.Write(&buf, binary.LittleEndian, uint32(8000))  // sample rate
	binary.Write(&buf, binary.LittleEndian, uint32(16000)) // byte rate
	binary.Write(&buf, binary.LittleEndian, uint16(2))     // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16))    // bits per sample

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(samples)))
	buf.Write(samples)
	return buf.Bytes()
}

func TestProbeRecognizesWAV(t *testing.T) {
	data := buildWAV(t, make([]byte, 200))
	r := newSeekableBuf(data)

	d, name, err := Probe(r, "test.wav", noopBind)
	require.NoError(t, err)
	require.Equal(t, "wav", name)
	require.NotNil(t, d)
	require.NoError(t, d.Read())
}

func TestProbeRejectsMP4AsUnsupported(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(24))
	buf.WriteString("ftyp")
	buf.WriteString("isom")
	buf.Write(make([]byte, 16))
	r := newSeekableBuf(buf.Bytes())

	_, name, err := Probe(r, "test.mp4", noopBind)
	require.ErrorIs(t, err, mkverrors.ErrUnsupportedFormat)
	require.Equal(t, "mp4", name)
}

func TestProbeFailsForUnrecognizedInput(t *testing.T) {
	r := newSeekableBuf([]byte("not a media file at all, just text"))
	_, _, err := Probe(r, "test.bin", noopBind)
	require.True(t, errors.Is(err, mkverrors.ErrProbeFailed))
}

func TestProbeRecognizesSRT(t *testing.T) {
	data := []byte("1\n00:00:01,000 --> 00:00:02,000\nHello\n\n2\n00:00:02,500 --> 00:00:03,000\nWorld\n\n")
	r := newSeekableBuf(data)

	d, name, err := Probe(r, "test.srt", noopBind)
	require.NoError(t, err)
	require.Equal(t, "srt", name)
	require.NoError(t, d.Read())
	require.NoError(t, d.Read())
	require.ErrorIs(t, d.Read(), io.EOF)
}
