package clusterbuild

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ebmlmux/gomkvmerge/internal/trackpac"
)

func pushPacket(t *testing.T, b *Builder, pac *trackpac.Packetizer, ms int64, keyframe bool) {
	t.Helper()
	ok := pac.PushRaw([]byte{0xAB}, ms, nil, keyframe)
	require.True(t, ok)
	pkt := pac.PopQueued()
	require.NoError(t, b.Push(pkt))
}

func pushPacketWithDuration(t *testing.T, b *Builder, pac *trackpac.Packetizer, ms int64, durationMS int64) {
	t.Helper()
	ok := pac.PushRaw([]byte{0xAB}, ms, &durationMS, false)
	require.True(t, ok)
	pkt := pac.PopQueued()
	require.NoError(t, b.Push(pkt))
}

func TestPushWritesClusterAndBlocks(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf, DefaultLimits(), 0, func() int64 { return int64(buf.Len()) })
	pac := trackpac.New(trackpac.TrackEntry{Number: 1}, trackpac.CueAll, trackpac.DefaultSyncConfig())

	pushPacket(t, b, pac, 0, true)
	pushPacket(t, b, pac, 40, false)

	require.NoError(t, b.Close())
	require.True(t, buf.Len() > 0)
	require.Equal(t, byte(idCluster>>24), buf.Bytes()[0])
	require.Len(t, b.ClusterOffsets, 1)
	require.Equal(t, int64(0), b.ClusterOffsets[0])
}

func TestPushRecordsCuesPerPolicy(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf, DefaultLimits(), 0, func() int64 { return int64(buf.Len()) })
	pac := trackpac.New(trackpac.TrackEntry{Number: 3}, trackpac.CueIFramesOnly, trackpac.DefaultSyncConfig())

	pushPacket(t, b, pac, 0, true)
	pushPacket(t, b, pac, 40, false)
	pushPacket(t, b, pac, 80, true)

	require.Len(t, b.Cues, 2)
	require.Equal(t, uint64(3), b.Cues[0].Track)
	require.Equal(t, int64(0), b.Cues[0].TimecodeMS)
	require.Equal(t, int64(80), b.Cues[1].TimecodeMS)
}

func TestPushClosesClusterOnMaxLength(t *testing.T) {
	var buf bytes.Buffer
	limits := Limits{MaxBlocks: 65535, MaxLengthMS: 50, MaxBytes: 1500000}
	b := New(&buf, limits, 0, func() int64 { return int64(buf.Len()) })
	pac := trackpac.New(trackpac.TrackEntry{Number: 1}, trackpac.CueNone, trackpac.DefaultSyncConfig())

	pushPacket(t, b, pac, 0, true)
	pushPacket(t, b, pac, 60, false) // exceeds MaxLengthMS relative to base -> auto-closes

	require.False(t, b.open)
	require.Len(t, b.ClusterOffsets, 1)
}

func TestPushClosesClusterOnMaxBlocks(t *testing.T) {
	var buf bytes.Buffer
	limits := Limits{MaxBlocks: 2, MaxLengthMS: 100000, MaxBytes: 1500000}
	b := New(&buf, limits, 0, func() int64 { return int64(buf.Len()) })
	pac := trackpac.New(trackpac.TrackEntry{Number: 1}, trackpac.CueNone, trackpac.DefaultSyncConfig())

	pushPacket(t, b, pac, 0, true)
	pushPacket(t, b, pac, 10, false)

	require.False(t, b.open)
}

func TestPushReopensClusterOnOffsetOverflow(t *testing.T) {
	var buf bytes.Buffer
	limits := Limits{MaxBlocks: 65535, MaxLengthMS: 1000000, MaxBytes: 1500000}
	b := New(&buf, limits, 0, func() int64 { return int64(buf.Len()) })
	pac := trackpac.New(trackpac.TrackEntry{Number: 1}, trackpac.CueNone, trackpac.DefaultSyncConfig())

	pushPacket(t, b, pac, 0, true)
	pushPacket(t, b, pac, 40000, false) // would overflow signed 16-bit offset -> new cluster

	require.Len(t, b.ClusterOffsets, 1) // first cluster closed; second still open
	require.True(t, b.open)
}

func TestPushWritesSimpleBlockWhenDurationUnknown(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf, DefaultLimits(), 0, func() int64 { return int64(buf.Len()) })
	pac := trackpac.New(trackpac.TrackEntry{Number: 1}, trackpac.CueNone, trackpac.DefaultSyncConfig())

	pushPacket(t, b, pac, 0, true)
	require.NoError(t, b.Close())

	require.True(t, bytes.Contains(buf.Bytes(), []byte{byte(idSimpleBlk)}))
	require.False(t, bytes.Contains(buf.Bytes(), []byte{byte(idBlockGroup)}))
}

// TestPushWritesBlockGroupForKnownDuration covers the case srt.go exercises:
// every SRT cue carries a real duration, which must survive as an explicit
// BlockDuration rather than being silently dropped on a bare SimpleBlock.
func TestPushWritesBlockGroupForKnownDuration(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf, DefaultLimits(), 0, func() int64 { return int64(buf.Len()) })
	pac := trackpac.New(trackpac.TrackEntry{Number: 1}, trackpac.CueNone, trackpac.DefaultSyncConfig())

	pushPacketWithDuration(t, b, pac, 0, 500)
	require.NoError(t, b.Close())

	require.True(t, bytes.Contains(buf.Bytes(), []byte{byte(idBlockGroup)}))
	require.True(t, bytes.Contains(buf.Bytes(), []byte{byte(idBlockDuration)}))
	require.False(t, bytes.Contains(buf.Bytes(), []byte{byte(idSimpleBlk)}))
}

// TestPushWritesBlockGroupForMandatoryDuration covers mergesched's final
// per-track packet, which sets DurationMandatory even when the duration
// itself is nil.
func TestPushWritesBlockGroupForMandatoryDuration(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf, DefaultLimits(), 0, func() int64 { return int64(buf.Len()) })
	pac := trackpac.New(trackpac.TrackEntry{Number: 1}, trackpac.CueNone, trackpac.DefaultSyncConfig())

	ok := pac.PushRaw([]byte{0xAB}, 0, nil, true)
	require.True(t, ok)
	pkt := pac.PopQueued()
	pkt.DurationMandatory = true
	require.NoError(t, b.Push(pkt))
	require.NoError(t, b.Close())

	require.True(t, bytes.Contains(buf.Bytes(), []byte{byte(idBlockGroup)}))
}

func TestWriteBlockGroupEncodesBlockAndDuration(t *testing.T) {
	var buf bytes.Buffer
	pkt := &trackpac.Packet{Payload: []byte{0xCD, 0xEF}, IsKeyframe: true}
	n, err := writeBlockGroup(&buf, 1, 10, pkt, 500)
	require.NoError(t, err)
	require.Equal(t, n, buf.Len())
	require.Equal(t, byte(idBlockGroup), buf.Bytes()[0])
	require.True(t, bytes.Contains(buf.Bytes(), pkt.Payload))
	require.True(t, bytes.Contains(buf.Bytes(), []byte{byte(idBlockDuration)}))
}

// TestPushScalesTimecodeByTimecodeScale covers --timestamp-scale: a scale of
// 500000ns/tick is 2 ticks per millisecond, so both the Cluster Timecode and
// a block's cluster-relative offset must be encoded in ticks, not raw ms.
func TestPushScalesTimecodeByTimecodeScale(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf, DefaultLimits(), 500000, func() int64 { return int64(buf.Len()) })
	require.Equal(t, int64(2), b.ticksPerMS)
	require.Equal(t, int64(80), b.msToTicks(40))

	pac := trackpac.New(trackpac.TrackEntry{Number: 1}, trackpac.CueNone, trackpac.DefaultSyncConfig())
	pushPacket(t, b, pac, 0, true)
	pushPacket(t, b, pac, 40, false)
	require.NoError(t, b.Close())

	require.True(t, buf.Len() > 0)
}
