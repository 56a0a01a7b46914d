package trackpac

import "math"

// SyncConfig holds the -y d[,o[/p]] audio sync parameters (spec §6): every
// timecode of the affected track is scaled by Linear (o/p, default 1.0,
// must be > 0) and then shifted by DisplacementMS milliseconds.
type SyncConfig struct {
	DisplacementMS int64
	Linear         float64
}

// DefaultSyncConfig is the identity transform applied to tracks without an
// explicit -y flag.
func DefaultSyncConfig() SyncConfig { return SyncConfig{Linear: 1.0} }

// Packetizer holds one output track's packet FIFO, track metadata, and cue
// policy (spec §4.3). One concrete type serves every codec: format-specific
// behavior (codec id, private data, video/audio settings) lives entirely in
// the TrackEntry a demultiplexer constructs when it opens the file, not in
// packetizer logic, so the packetizer itself never branches on codec.
type Packetizer struct {
	entry  TrackEntry
	sync   SyncConfig
	policy CuePolicy

	queue  []*Packet
	head   *Packet
	status Status

	lastTimecode int64
	haveLast     bool
}

// New constructs a Packetizer for the given output track number, assigned
// contiguously from 1 by the engine during demux-open (spec §3 lifecycle).
func New(entry TrackEntry, policy CuePolicy, sync SyncConfig) *Packetizer {
	return &Packetizer{entry: entry, sync: sync, policy: policy, status: MoreData}
}

// TrackEntry returns the metadata this packetizer contributes to the
// container writer's Tracks element (spec §4.3 fill_headers).
func (p *Packetizer) TrackEntry() TrackEntry { return p.entry }

// CuePolicy returns the track's cue-emission policy (spec §4.3).
func (p *Packetizer) CuePolicy() CuePolicy { return p.policy }

// Status returns the packetizer's current lifecycle state.
func (p *Packetizer) Status() Status { return p.status }

// SetStatus transitions the packetizer's lifecycle state; called by the
// merge scheduler when the owning demultiplexer's Read reports end of
// stream or fails.
func (p *Packetizer) SetStatus(s Status) { p.status = s }

// PushRaw applies audio sync (timecode' = round(timecode*linear) + displacement)
// and enqueues a packet, unless the adjusted timecode is negative, in which
// case the packet is dropped (spec §4.3: "rejects negative adjusted
// timecodes by clamping ... displacement may drop leading samples"). It
// returns false when the packet was dropped rather than enqueued.
func (p *Packetizer) PushRaw(payload []byte, timecodeMS int64, durationMS *int64, keyframe bool) bool {
	adjusted := int64(math.Round(float64(timecodeMS)*p.sync.Linear)) + p.sync.DisplacementMS
	if adjusted < 0 {
		return false
	}
	if p.haveLast && adjusted < p.lastTimecode {
		adjusted = p.lastTimecode // per-track timecodes are non-decreasing (spec §3 invariant)
	}
	p.lastTimecode = adjusted
	p.haveLast = true

	pkt := &Packet{
		Timecode:   adjusted,
		Duration:   durationMS,
		Payload:    payload,
		IsKeyframe: keyframe,
		Packetizer: p,
	}
	p.queue = append(p.queue, pkt)
	return true
}

// PacketAvailable reports how many packets are queued, not counting a
// cached head.
func (p *Packetizer) PacketAvailable() int { return len(p.queue) }

// PopQueued pops the next packet from the FIFO (not the cached head); used
// by the merge scheduler to refill Head.
func (p *Packetizer) PopQueued() *Packet {
	if len(p.queue) == 0 {
		return nil
	}
	pkt := p.queue[0]
	p.queue = p.queue[1:]
	return pkt
}

// HasHead reports whether the scheduler's one-packet lookahead is filled.
func (p *Packetizer) HasHead() bool { return p.head != nil }

// Head returns the cached lookahead packet, or nil.
func (p *Packetizer) Head() *Packet { return p.head }

// SetHead installs the scheduler's one-packet lookahead.
func (p *Packetizer) SetHead(pkt *Packet) { p.head = pkt }

// ClearHead empties the lookahead cache after the scheduler hands the head
// packet to the cluster builder.
func (p *Packetizer) ClearHead() { p.head = nil }
