// Package trackpac implements the Packet and Packetizer types of spec §3/§4.3:
// a per-output-track FIFO of timecoded packets, the track metadata that feeds
// the container writer's Tracks element, audio-sync timecode adjustment, and
// cue policy.
package trackpac

// Packet is an immutable-after-emission record produced by a Packetizer and
// consumed by the cluster builder. Timecode and Duration are in milliseconds;
// the cluster builder scales them by TimecodeScale when it encodes a block.
type Packet struct {
	Timecode          int64
	Duration          *int64
	Payload           []byte
	IsKeyframe        bool
	DurationMandatory bool

	// Packetizer is the owning packetizer, consulted by the cluster builder
	// for TrackEntry().Number and CuePolicy() (spec §3: "back-reference to its
	// owning packetizer (for track number)").
	Packetizer *Packetizer
}

// Status is a Packetizer's demux-driven lifecycle state (spec §3/§4.3).
type Status int

const (
	MoreData Status = iota
	EndOfStream
	Failed
)

func (s Status) String() string {
	switch s {
	case MoreData:
		return "more_data"
	case EndOfStream:
		return "end_of_stream"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// CuePolicy controls which packets of a track generate cue points (spec §4.3).
type CuePolicy int

const (
	CueNone CuePolicy = iota
	CueIFramesOnly
	CueAll
)

// VideoSettings carries the video-specific TrackEntry subelements (spec §4.3).
type VideoSettings struct {
	PixelWidth    uint64
	PixelHeight   uint64
	DisplayWidth  uint64
	DisplayHeight uint64
	FourCC        string
}

// AudioSettings carries the audio-specific TrackEntry subelements (spec §4.3).
type AudioSettings struct {
	SamplingFrequency float64
	Channels          uint64
	BitDepth          uint64
}

// TrackEntry is the metadata a Packetizer contributes to the Tracks element.
type TrackEntry struct {
	Number       uint64
	UID          uint64
	CodecID      string
	CodecPrivate []byte
	Name         string
	Language     string
	Default      bool
	Lacing       bool
	Video        *VideoSettings
	Audio        *AudioSettings
}
