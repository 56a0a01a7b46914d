package mergesched

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ebmlmux/gomkvmerge/internal/trackpac"
)

// feedDemux pushes a fixed sequence of (timecode, payload) pairs into a
// packetizer one at a time per Read call, then returns io.EOF.
type feedDemux struct {
	pac    *trackpac.Packetizer
	ticks  []int64
	cursor int
}

func (f *feedDemux) Read() error {
	if f.cursor >= len(f.ticks) {
		return io.EOF
	}
	f.pac.PushRaw([]byte{byte(f.cursor)}, f.ticks[f.cursor], nil, false)
	f.cursor++
	return nil
}

func TestSchedulerOrdersByTimecode(t *testing.T) {
	s := New()

	pacA := trackpac.New(trackpac.TrackEntry{Number: 1}, trackpac.CueNone, trackpac.DefaultSyncConfig())
	demA := &feedDemux{pac: pacA, ticks: []int64{0, 40, 80}}
	s.AddTrack(pacA, demA)

	pacB := trackpac.New(trackpac.TrackEntry{Number: 2}, trackpac.CueNone, trackpac.DefaultSyncConfig())
	demB := &feedDemux{pac: pacB, ticks: []int64{10, 20, 60}}
	s.AddTrack(pacB, demB)

	var order []int64
	for {
		pkt, ok, err := s.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		order = append(order, pkt.Timecode)
	}

	require.Equal(t, []int64{0, 10, 20, 40, 60, 80}, order)
}

func TestSchedulerTieBreaksByLowestTrackNumber(t *testing.T) {
	s := New()

	pacHigh := trackpac.New(trackpac.TrackEntry{Number: 5}, trackpac.CueNone, trackpac.DefaultSyncConfig())
	s.AddTrack(pacHigh, &feedDemux{pac: pacHigh, ticks: []int64{0}})

	pacLow := trackpac.New(trackpac.TrackEntry{Number: 1}, trackpac.CueNone, trackpac.DefaultSyncConfig())
	s.AddTrack(pacLow, &feedDemux{pac: pacLow, ticks: []int64{0}})

	pkt, ok, err := s.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Same(t, pacLow, pkt.Packetizer)
}

func TestSchedulerTagsFinalPacketDurationMandatory(t *testing.T) {
	s := New()
	pac := trackpac.New(trackpac.TrackEntry{Number: 1}, trackpac.CueNone, trackpac.DefaultSyncConfig())
	s.AddTrack(pac, &feedDemux{pac: pac, ticks: []int64{0, 10, 20}})

	var last *trackpac.Packet
	for {
		pkt, ok, err := s.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		last = pkt
	}

	require.NotNil(t, last)
	require.True(t, last.DurationMandatory)
}

type failingDemux struct{ failed bool }

func (f *failingDemux) Read() error {
	if !f.failed {
		f.failed = true
		return errNotEOF
	}
	return io.EOF
}

var errNotEOF = &ioError{"simulated read failure"}

type ioError struct{ msg string }

func (e *ioError) Error() string { return e.msg }

func TestSchedulerPropagatesReadFailure(t *testing.T) {
	s := New()
	pac := trackpac.New(trackpac.TrackEntry{Number: 1}, trackpac.CueNone, trackpac.DefaultSyncConfig())
	s.AddTrack(pac, &failingDemux{})

	_, _, err := s.Next()
	require.Error(t, err)
	require.Equal(t, trackpac.Failed, pac.Status())
}
