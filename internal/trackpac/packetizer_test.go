package trackpac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPushRawIdentitySync(t *testing.T) {
	p := New(TrackEntry{Number: 1, CodecID: "A_PCM/INT/LIT"}, CueNone, DefaultSyncConfig())

	ok := p.PushRaw([]byte("a"), 0, nil, false)
	require.True(t, ok)
	ok = p.PushRaw([]byte("b"), 20, nil, false)
	require.True(t, ok)

	require.Equal(t, 2, p.PacketAvailable())
	pkt := p.PopQueued()
	require.Equal(t, int64(0), pkt.Timecode)
	pkt = p.PopQueued()
	require.Equal(t, int64(20), pkt.Timecode)
	require.Nil(t, p.PopQueued())
}

func TestPushRawNegativeDisplacementDropsLeadingSamples(t *testing.T) {
	sync := SyncConfig{DisplacementMS: -200, Linear: 1.0}
	p := New(TrackEntry{Number: 1}, CueNone, sync)

	for ms := int64(0); ms <= 220; ms += 20 {
		p.PushRaw([]byte{byte(ms)}, ms, nil, false)
	}

	// Packets at original timecodes 0..180 (adjusted negative) are dropped;
	// 200 -> 0, 220 -> 20 survive.
	require.Equal(t, 2, p.PacketAvailable())
	first := p.PopQueued()
	require.Equal(t, int64(0), first.Timecode)
	second := p.PopQueued()
	require.Equal(t, int64(20), second.Timecode)
}

func TestPushRawLinearScale(t *testing.T) {
	sync := SyncConfig{Linear: 2.0}
	p := New(TrackEntry{Number: 1}, CueNone, sync)
	p.PushRaw(nil, 100, nil, false)
	pkt := p.PopQueued()
	require.Equal(t, int64(200), pkt.Timecode)
}

func TestHeadCache(t *testing.T) {
	p := New(TrackEntry{Number: 1}, CueIFramesOnly, DefaultSyncConfig())
	require.False(t, p.HasHead())
	p.PushRaw([]byte("x"), 5, nil, true)
	pkt := p.PopQueued()
	p.SetHead(pkt)
	require.True(t, p.HasHead())
	require.Equal(t, pkt, p.Head())
	p.ClearHead()
	require.False(t, p.HasHead())
}
