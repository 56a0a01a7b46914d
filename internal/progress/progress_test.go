package progress

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	priority int
	pct      int
}

func (f fakeSource) DisplayPriority() int { return f.priority }
func (f fakeSource) DisplayProgress() int { return f.pct }

func TestBestPrefersHighestPriorityAmongEstimable(t *testing.T) {
	r := New(nil)
	r.Add("audio.wav", fakeSource{priority: 10, pct: 50})
	r.Add("video.avi", fakeSource{priority: 90, pct: 20})
	r.Add("subs.srt", fakeSource{priority: 5, pct: -1})

	require.Equal(t, "video.avi: 20%", r.Line())
}

func TestBestSkipsSourcesThatCannotEstimate(t *testing.T) {
	r := New(nil)
	r.Add("subs.srt", fakeSource{priority: 99, pct: -1})
	r.Add("audio.wav", fakeSource{priority: 1, pct: 75})

	require.Equal(t, "audio.wav: 75%", r.Line())
}

func TestLineEmptyWhenNoSourceCanEstimate(t *testing.T) {
	r := New(nil)
	r.Add("subs.srt", fakeSource{priority: 1, pct: -1})
	require.Equal(t, "", r.Line())
}

func TestTickSuppressesDuplicatePercentages(t *testing.T) {
	r := New(nil)
	src := &mutableSource{priority: 1, pct: 10}
	r.Add("x", src)

	r.Tick()
	require.Equal(t, 10, r.last)

	r.Tick()
	require.Equal(t, 10, r.last)

	src.pct = 20
	r.Tick()
	require.Equal(t, 20, r.last)
}

type mutableSource struct {
	priority int
	pct      int
}

func (m *mutableSource) DisplayPriority() int { return m.priority }
func (m *mutableSource) DisplayProgress() int { return m.pct }
