package matroska

// Track type values from the Matroska TrackType element (spec: matroska.org
// track-types table). The muxing engine only ever assigns Video/Audio/
// Subtitle; the rest exist so a parsed TrackEntry round-trips faithfully
// even for track kinds this engine never originates itself.
const (
	TypeVideo    uint8 = 0x01
	TypeAudio    uint8 = 0x02
	TypeComplex  uint8 = 0x03
	TypeLogo     uint8 = 0x10
	TypeSubtitle uint8 = 0x11
	TypeButtons  uint8 = 0x12
	TypeControl  uint8 = 0x20
)

// KF marks a packet as carrying a keyframe, either because the SimpleBlock
// flags byte had bit 0x80 set or because it arrived in a BlockGroup (which
// carries no per-block keyframe flag and is treated as one, matching how
// most writers only use BlockGroup for frames that need a ReferenceBlock-free
// keyframe marker).
const KF uint32 = 0x80

// VideoTrackInfo carries the parsed Video sub-element of a TrackEntry.
type VideoTrackInfo struct {
	PixelWidth    uint32
	PixelHeight   uint32
	DisplayWidth  uint32
	DisplayHeight uint32
	Interlaced    bool
}

// AudioTrackInfo carries the parsed Audio sub-element of a TrackEntry.
type AudioTrackInfo struct {
	SamplingFreq       float64
	OutputSamplingFreq float64
	Channels           uint8
	BitDepth           uint8
}

// TrackInfo is the parsed form of one Tracks/TrackEntry element.
type TrackInfo struct {
	Number        uint8
	UID           uint64
	Type          uint8
	Name          string
	Language      string
	CodecID       string
	CodecPrivate  []byte
	Enabled       bool
	Default       bool
	Lacing        bool
	TimecodeScale float64
	Video         VideoTrackInfo
	Audio         AudioTrackInfo
}

// SegmentInfo is the parsed form of the Segment's Info element.
type SegmentInfo struct {
	UID          [16]byte
	Filename     string
	PrevUID      [16]byte
	PrevFilename string
	NextUID      [16]byte
	NextFilename string

	TimecodeScale uint64
	Duration      uint64

	DateUTC      int64
	DateUTCValid bool

	Title      string
	MuxingApp  string
	WritingApp string
}

// Packet is one demuxed frame, in the pre-adjustment form the matroska
// package hands to a Packetizer (see internal/trackpac.Packetizer.PushRaw):
// timestamps are in the Segment's own TimecodeScale units, not yet
// converted to milliseconds.
type Packet struct {
	Track     uint8
	StartTime uint64
	EndTime   uint64
	FilePos   uint64
	Data      []byte
	Flags     uint32
}

// Chapter is a placeholder for one ChapterAtom; chapter parsing is not
// implemented (parseChapters skips the element), so this engine never
// populates one, but the type exists so GetChapters' contract is stable
// for callers that only check len() == 0.
type Chapter struct {
	UID   uint64
	Start uint64
	End   uint64
	Title string
}

// Tag is a placeholder for one SimpleTag; tag parsing is not implemented
// (parseTags skips the element).
type Tag struct {
	Name   string
	Value  string
	Target uint64
}

// Attachment is a placeholder for one AttachedFile; attachment parsing is
// not implemented (parseAttachments skips the element).
type Attachment struct {
	Name        string
	MimeType    string
	Data        []byte
	UID         uint64
	Description string
}

// Cue is one CuePoint/CueTrackPositions pair.
type Cue struct {
	Time          uint64
	Track         uint64
	ClusterOffset uint64
	BlockOffset   uint64
}

// fakeSeeker adapts a plain io.Reader to io.ReadSeeker for NewStreamingDemuxer
// (spec §4.2: a demultiplexer must accept non-seekable stdin input). Seek
// always fails. NewStreamingDemuxer builds the parser with avoidSeeks=true,
// which stops the segment walk at the first Cluster and reads past unknown
// elements before it; Cues, Chapters, Tags and Attachments elements, and
// any element ReadPacket skips, are still passed over with Seek, which
// fails on a fakeSeeker.
type fakeSeeker struct {
	r   interface{ Read([]byte) (int, error) }
	pos int64
}

func (f *fakeSeeker) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	f.pos += int64(n)
	return n, err
}

func (f *fakeSeeker) Seek(offset int64, whence int) (int64, error) {
	return -1, errNotSeekable
}

var errNotSeekable = fakeSeekError("streaming input does not support seeking")

type fakeSeekError string

func (e fakeSeekError) Error() string { return string(e) }
