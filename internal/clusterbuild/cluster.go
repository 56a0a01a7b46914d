// Package clusterbuild implements the cluster builder of spec §4.4: it
// groups the scheduler's globally-ordered packet stream into Matroska
// Cluster elements bounded by block count, timecode span, and byte size. A
// packet with a known or mandatory duration is wrapped in a BlockGroup
// carrying an explicit BlockDuration; every other packet is emitted as a
// bare SimpleBlock. Both forms carry a signed 16-bit cluster-relative
// timecode offset, scaled from the packet's millisecond timecode into
// TimecodeScale ticks. Cue points are recorded per each packet's owning
// packetizer's cue policy.
package clusterbuild

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ebmlmux/gomkvmerge/internal/ebmlwrite"
	"github.com/ebmlmux/gomkvmerge/internal/mkverrors"
	"github.com/ebmlmux/gomkvmerge/internal/trackpac"
)

// Matroska cluster/block element IDs (spec §4.4, matroska.org/technical/specs).
const (
	idCluster       = 0x1F43B675
	idTimecode      = 0xE7
	idSimpleBlk     = 0xA3
	idBlockGroup    = 0xA0
	idBlock         = 0xA1
	idBlockDuration = 0x9B
)

// defaultTimecodeScale is the TimecodeScale mkvwriter falls back to, in
// nanoseconds per tick. Matroska timecodes in this package are always
// encoded in units of the scale a Builder was constructed with, not raw
// milliseconds, though the two coincide at this default.
const defaultTimecodeScale = 1000000

// Limits bounds how large a single cluster is allowed to grow before it is
// closed and a new one opened (spec §4.4 defaults, overridable via
// --cluster-length and the fixed 65535/1500000 ceilings).
type Limits struct {
	MaxBlocks    int
	MaxLengthMS  int64
	MaxBytes     int64
}

// DefaultLimits matches mkvmerge's built-in ceilings.
func DefaultLimits() Limits {
	return Limits{MaxBlocks: 65535, MaxLengthMS: 1000, MaxBytes: 1500000}
}

// Cue is one cue point: a track's packet landed at a known cluster/block
// byte offset, recorded so the container writer can emit the Cues element
// (spec §4.4/§4.6).
type Cue struct {
	Track         uint64
	TimecodeMS    int64
	ClusterOffset int64
	BlockOffset   int64
}

// Builder accumulates packets into clusters and writes them to w, keeping
// a running list of cue points and the byte offset of every cluster it
// opens (consumed later for the SeekHead and the Cues element).
type Builder struct {
	w      io.Writer
	limits Limits
	ticksPerMS int64 // 1,000,000 / TimecodeScale; always an exact integer ratio (engine.validateTimestampScale enforces it)

	writtenAt func() int64 // absolute byte offset of the next write, for cue/seek bookkeeping

	open        bool
	clusterBase int64 // timecode of the cluster's first packet, ms
	blockCount  int
	clusterOff  int64 // absolute byte offset where the open cluster's header started
	bytesInCur  int64

	Cues          []Cue
	ClusterOffsets []int64
}

// New constructs a Builder. timecodeScale is the segment's TimecodeScale in
// nanoseconds per tick (0 picks the default 1,000,000, i.e. 1 tick == 1ms);
// every Cluster Timecode and block offset this Builder writes is converted
// from the packet's millisecond timecode into ticks of that scale. writtenAt
// must return the absolute byte offset the next Write call to w will land
// at; the container writer supplies this from its own running offset
// counter since ebmlwrite only ever appends.
func New(w io.Writer, limits Limits, timecodeScale uint64, writtenAt func() int64) *Builder {
	if timecodeScale == 0 {
		timecodeScale = defaultTimecodeScale
	}
	return &Builder{w: w, limits: limits, ticksPerMS: int64(defaultTimecodeScale / timecodeScale), writtenAt: writtenAt}
}

// msToTicks converts a millisecond value into TimecodeScale ticks.
func (b *Builder) msToTicks(ms int64) int64 { return ms * b.ticksPerMS }

// Push writes one packet as a SimpleBlock, or as a BlockGroup when it
// carries a known or mandatory duration, opening a new cluster first if
// none is open, the limits would be exceeded, or the cluster-relative
// timecode offset would overflow the signed 16-bit block field (spec §4.4:
// "closes and reopens the cluster rather than truncating the offset").
func (b *Builder) Push(pkt *trackpac.Packet) error {
	if b.open && b.wouldOverflow(pkt) {
		if err := b.Close(); err != nil {
			return err
		}
	}
	if !b.open {
		if err := b.openCluster(pkt.Timecode); err != nil {
			return err
		}
	}

	relTicks := b.msToTicks(pkt.Timecode - b.clusterBase)
	if relTicks < -32768 || relTicks > 32767 {
		return fmt.Errorf("clusterbuild: %w: offset %d out of signed-16 range", mkverrors.ErrClusterOverflow, relTicks)
	}

	blockOff := b.writtenAt()
	track := pkt.Packetizer.TrackEntry().Number
	var n int
	var err error
	if pkt.Duration != nil || pkt.DurationMandatory {
		n, err = writeBlockGroup(b.w, track, int16(relTicks), pkt, b.msToTicks(durationMS(pkt)))
	} else {
		n, err = writeSimpleBlock(b.w, track, int16(relTicks), pkt)
	}
	if err != nil {
		return err
	}
	b.bytesInCur += int64(n)
	b.blockCount++

	if shouldCue(pkt) {
		b.Cues = append(b.Cues, Cue{
			Track:         pkt.Packetizer.TrackEntry().Number,
			TimecodeMS:    pkt.Timecode,
			ClusterOffset: b.clusterOff,
			BlockOffset:   blockOff,
		})
	}

	if b.blockCount >= b.limits.MaxBlocks ||
		pkt.Timecode-b.clusterBase >= b.limits.MaxLengthMS ||
		b.bytesInCur >= b.limits.MaxBytes {
		return b.Close()
	}
	return nil
}

// shouldCue implements the spec §4.4 cue-emission rule: CueAll cues every
// packet, CueIFramesOnly cues only keyframes, CueNone never cues.
func shouldCue(pkt *trackpac.Packet) bool {
	switch pkt.Packetizer.CuePolicy() {
	case trackpac.CueAll:
		return true
	case trackpac.CueIFramesOnly:
		return pkt.IsKeyframe
	default:
		return false
	}
}

func (b *Builder) wouldOverflow(pkt *trackpac.Packet) bool {
	relTicks := b.msToTicks(pkt.Timecode - b.clusterBase)
	return relTicks < -32768 || relTicks > 32767
}

func (b *Builder) openCluster(baseMS int64) error {
	b.clusterOff = b.writtenAt()
	n, err := ebmlwrite.UnknownSizeHeader(b.w, idCluster)
	if err != nil {
		return err
	}
	b.bytesInCur = int64(n)

	tcBytes := ebmlwrite.EncodeUint(uint64(b.msToTicks(baseMS)))
	n2, err := ebmlwrite.Element(b.w, idTimecode, tcBytes)
	if err != nil {
		return err
	}
	b.bytesInCur += int64(n2)

	b.clusterBase = baseMS
	b.blockCount = 0
	b.open = true
	return nil
}

// durationMS returns a packet's duration in milliseconds, treating a
// mandatory-but-unknown duration (DurationMandatory set with a nil Duration)
// as zero rather than panicking on the nil pointer.
func durationMS(pkt *trackpac.Packet) int64 {
	if pkt.Duration == nil {
		return 0
	}
	return *pkt.Duration
}

// Close finalizes the currently open cluster, if any. Matroska clusters
// opened with the unknown-size marker don't need an explicit close, but
// Builder tracks ClusterOffsets so the caller can still find cluster
// boundaries (e.g. for a future SeekHead level-1 reference).
func (b *Builder) Close() error {
	if !b.open {
		return nil
	}
	b.ClusterOffsets = append(b.ClusterOffsets, b.clusterOff)
	b.open = false
	b.blockCount = 0
	b.bytesInCur = 0
	return nil
}

// writeSimpleBlock encodes one SimpleBlock: track number VINT, 16-bit signed
// timecode offset, one flag byte (bit 0x80 set for keyframes), payload.
func writeSimpleBlock(w io.Writer, track uint64, relTimecode int16, pkt *trackpac.Packet) (int, error) {
	trackVInt, err := ebmlwrite.EncodeVInt(track)
	if err != nil {
		return 0, fmt.Errorf("clusterbuild: encoding track number: %w", err)
	}

	body := make([]byte, 0, len(trackVInt)+3+len(pkt.Payload))
	body = append(body, trackVInt...)
	body = append(body, byte(relTimecode>>8), byte(relTimecode))

	var flags byte
	if pkt.IsKeyframe {
		flags |= 0x80
	}
	body = append(body, flags)
	body = append(body, pkt.Payload...)

	return ebmlwrite.Element(w, idSimpleBlk, body)
}

// writeBlockGroup wraps pkt in a BlockGroup: a Block (the same track/offset/
// payload framing as a SimpleBlock, but without the keyframe flag bit, which
// only SimpleBlock defines) followed by an explicit BlockDuration in ticks.
// Used whenever a packet carries a known or mandatory duration (spec §3/§4.4:
// a packetizer whose format always knows its end time, e.g. SRT cues, must
// not lose it to a bare SimpleBlock).
func writeBlockGroup(w io.Writer, track uint64, relTicks int16, pkt *trackpac.Packet, durationTicks int64) (int, error) {
	trackVInt, err := ebmlwrite.EncodeVInt(track)
	if err != nil {
		return 0, fmt.Errorf("clusterbuild: encoding track number: %w", err)
	}

	blockBody := make([]byte, 0, len(trackVInt)+3+len(pkt.Payload))
	blockBody = append(blockBody, trackVInt...)
	blockBody = append(blockBody, ebmlwrite.EncodeInt16(relTicks)...)
	blockBody = append(blockBody, 0) // no lacing, no keyframe bit on Block
	blockBody = append(blockBody, pkt.Payload...)

	var group bytes.Buffer
	if _, err := ebmlwrite.Element(&group, idBlock, blockBody); err != nil {
		return 0, err
	}
	if _, err := ebmlwrite.Element(&group, idBlockDuration, ebmlwrite.EncodeUint(uint64(durationTicks))); err != nil {
		return 0, err
	}

	return ebmlwrite.Element(w, idBlockGroup, group.Bytes())
}
