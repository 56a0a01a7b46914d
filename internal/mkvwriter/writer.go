// Package mkvwriter implements the container writer of spec §4.6: the
// eleven-phase EBML emission that turns the merge scheduler's packet stream
// into a complete Matroska file, including the reserved-void/back-patched
// SeekHead, Cues, and Duration/segment-size trailers.
//
// It is grounded the same way package ebmlwrite is: no example repo or
// ecosystem library ships a from-scratch Matroska container writer, so this
// follows the hand-rolled id/size/data framing style of other_examples'
// webm_muxer.go and encoded_mkv_writer.go, built on top of ebmlwrite's
// primitives and matroska's own EBML ID constants.
package mkvwriter

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ebmlmux/gomkvmerge/internal/clusterbuild"
	"github.com/ebmlmux/gomkvmerge/internal/ebmlwrite"
	"github.com/ebmlmux/gomkvmerge/internal/ioseek"
	"github.com/ebmlmux/gomkvmerge/internal/mergesched"
	"github.com/ebmlmux/gomkvmerge/internal/mkverrors"
	"github.com/ebmlmux/gomkvmerge/internal/trackpac"
	"github.com/ebmlmux/gomkvmerge/matroska"
)

// Config holds the segment-level knobs a muxing run is parameterized by
// (spec §6 CLI options feeding the container writer).
type Config struct {
	Title         string
	MuxingApp     string
	WritingApp    string
	SegmentUID    []byte // 16 raw bytes; nil omits the element
	TimecodeScale uint64 // nanoseconds per internal timecode unit, default 1,000,000 (1ms)
	ClusterLimits clusterbuild.Limits
	MetaSeekBytes int // reserved SeekHead void footprint; 0 picks the heuristic below
	NoMetaSeek    bool
	NoCues        bool

	// TotalInputBytes and HasVideo feed the reserved-void heuristic (spec
	// §4.6 phase 3): round(total_input_bytes*1.5/10240) with a video track
	// present, else round(total_input_bytes*3/4096). This is empirical, not
	// a contract (spec §9) — any reserved size that fits is acceptable.
	TotalInputBytes int64
	HasVideo        bool

	// OnPacket, if set, is called once per packet as it is handed to the
	// cluster builder, so a caller can drive a progress.Reporter tick
	// without the writer depending on package progress itself.
	OnPacket func(*trackpac.Packet)
}

// DefaultConfig returns the engine's out-of-the-box settings.
func DefaultConfig() Config {
	return Config{
		TimecodeScale: 1000000,
		ClusterLimits: clusterbuild.DefaultLimits(),
		WritingApp:    "gomkvmerge",
		MuxingApp:     "gomkvmerge",
	}
}

// seekEntry records where one top-level element landed, for the SeekHead.
type seekEntry struct {
	id     uint32
	offset int64 // segment-relative
}

// Writer drives the eleven-phase emission described in spec §4.6/§9.
type Writer struct {
	w      *ioseek.Writer
	cfg    Config
	log    *slog.Logger
	offset int64 // bytes written so far (mirrors w.Tell(), kept for clusterbuild's writtenAt callback)

	segmentDataStart int64
	seekHeadVoidAt    int64
	seekHeadVoidSize  int
	infoDurationAt    int64
	segmentSizeAt     int64

	seeks []seekEntry
	cues  []clusterbuild.Cue
}

// New wraps an already-open ioseek.Writer for w. log may be nil, in which
// case a discard logger is used.
func New(w *ioseek.Writer, cfg Config, log *slog.Logger) *Writer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if cfg.TimecodeScale == 0 {
		cfg.TimecodeScale = 1000000
	}
	return &Writer{w: w, cfg: cfg, log: log}
}

func (wr *Writer) writeRaw(b []byte) error {
	n, err := wr.w.Write(b)
	wr.offset += int64(n)
	return err
}

func (wr *Writer) element(id uint32, data []byte) error {
	var buf bytes.Buffer
	if _, err := ebmlwrite.Element(&buf, id, data); err != nil {
		return err
	}
	return wr.writeRaw(buf.Bytes())
}

func (wr *Writer) segRelative(abs int64) int64 { return abs - wr.segmentDataStart }

// Run executes all eleven phases: EBML head, segment open, reserved
// SeekHead void, Info with placeholder Duration, Tracks, Clusters (driven
// by sched, bounded per wr.cfg.ClusterLimits), Cues, SeekHead back-patch
// (gracefully degrading on overflow), Duration back-patch, segment-size
// back-patch.
func (wr *Writer) Run(tracks []trackpac.TrackEntry, sched *mergesched.Scheduler) error {
	if err := wr.writeEBMLHead(); err != nil {
		return fmt.Errorf("mkvwriter: writing EBML head: %w", err)
	}
	if err := wr.openSegment(); err != nil {
		return fmt.Errorf("mkvwriter: opening segment: %w", err)
	}
	if err := wr.reserveSeekHeadVoid(); err != nil {
		return fmt.Errorf("mkvwriter: reserving seek head: %w", err)
	}
	if err := wr.writeInfo(); err != nil {
		return fmt.Errorf("mkvwriter: writing info: %w", err)
	}
	if err := wr.writeTracks(tracks); err != nil {
		return fmt.Errorf("mkvwriter: writing tracks: %w", err)
	}

	lastMS, err := wr.writeClusters(sched)
	if err != nil {
		return fmt.Errorf("mkvwriter: writing clusters: %w", err)
	}

	if err := wr.writeCues(); err != nil {
		return fmt.Errorf("mkvwriter: writing cues: %w", err)
	}
	if err := wr.backpatchSeekHead(); err != nil {
		var overflow *mkverrors.MetaSeekOverflowError
		if !errors.As(err, &overflow) {
			return fmt.Errorf("mkvwriter: back-patching seek head: %w", err)
		}
		// Non-fatal: the file is still valid without a SeekHead (spec §4.6
		// phase 8 degrade). backpatchSeekHead already logged the warning.
	}
	if err := wr.backpatchDuration(lastMS); err != nil {
		return fmt.Errorf("mkvwriter: back-patching duration: %w", err)
	}
	if err := wr.backpatchSegmentSize(); err != nil {
		return fmt.Errorf("mkvwriter: back-patching segment size: %w", err)
	}
	return wr.w.Flush()
}

// Phase 1: EBML header.
func (wr *Writer) writeEBMLHead() error {
	var body bytes.Buffer
	writeSub := func(id uint32, data []byte) { ebmlwrite.Element(&body, id, data) }
	writeSub(matroska.IDEBMLVersion, ebmlwrite.EncodeUint(1))
	writeSub(matroska.IDEBMLReadVersion, ebmlwrite.EncodeUint(1))
	writeSub(matroska.IDEBMLMaxIDLength, ebmlwrite.EncodeUint(4))
	writeSub(matroska.IDEBMLMaxSizeLength, ebmlwrite.EncodeUint(8))
	writeSub(matroska.IDEBMLDocType, []byte("matroska"))
	writeSub(matroska.IDEBMLDocTypeVersion, ebmlwrite.EncodeUint(1))
	writeSub(matroska.IDEBMLDocTypeReadVersion, ebmlwrite.EncodeUint(1))
	return wr.element(matroska.IDEBMLHeader, body.Bytes())
}

// Phase 2: open the Segment with an unknown-size header; its real size is
// back-patched once every cluster has been written (spec §9).
func (wr *Writer) openSegment() error {
	var buf bytes.Buffer
	if _, err := ebmlwrite.UnknownSizeHeader(&buf, matroska.IDSegment); err != nil {
		return err
	}
	wr.segmentSizeAt = wr.offset + int64(len(ebmlwrite.EncodeID(matroska.IDSegment)))
	if err := wr.writeRaw(buf.Bytes()); err != nil {
		return err
	}
	wr.segmentDataStart = wr.offset
	return nil
}

// metaSeekReserveSize picks the reserved void footprint: the caller's
// explicit --meta-seek-size override if given, else the spec's empirical
// heuristic (§4.6 phase 3), with a floor generous enough to hold at least a
// couple of Seek entries even for tiny inputs.
func (wr *Writer) metaSeekReserveSize() int {
	if wr.cfg.MetaSeekBytes > 0 {
		return wr.cfg.MetaSeekBytes
	}
	var heuristic float64
	if wr.cfg.HasVideo {
		heuristic = float64(wr.cfg.TotalInputBytes) * 1.5 / 10240
	} else {
		heuristic = float64(wr.cfg.TotalInputBytes) * 3 / 4096
	}
	size := int(heuristic + 0.5)
	if size < 128 {
		size = 128
	}
	return size
}

// Phase 3: reserve a Void element sized to hold the SeekHead once it's
// known what it needs to point at. Skipped entirely under --no-meta-seek.
func (wr *Writer) reserveSeekHeadVoid() error {
	if wr.cfg.NoMetaSeek {
		return nil
	}
	wr.seekHeadVoidAt = wr.offset
	wr.seekHeadVoidSize = wr.metaSeekReserveSize()
	var buf bytes.Buffer
	if err := ebmlwrite.ReserveVoid(&buf, wr.seekHeadVoidSize); err != nil {
		return err
	}
	return wr.writeRaw(buf.Bytes())
}

// Phase 4: Info, with Duration written as a placeholder so its later
// back-patch never changes the Info element's total size: EncodeFloat64
// always produces exactly 8 bytes, and EncodeVInt(8) always chooses the
// minimal 1-byte size field, so the slot's width is fixed by construction.
func (wr *Writer) writeInfo() error {
	infoStart := wr.offset
	wr.seeks = append(wr.seeks, seekEntry{id: matroska.IDSegmentInfo, offset: wr.segRelative(infoStart)})

	var body bytes.Buffer
	ebmlwrite.Element(&body, matroska.IDTimestampScale, ebmlwrite.EncodeUint(wr.cfg.TimecodeScale))
	if len(wr.cfg.SegmentUID) > 0 {
		ebmlwrite.Element(&body, matroska.IDSegmentUID, wr.cfg.SegmentUID)
	}
	if wr.cfg.Title != "" {
		ebmlwrite.Element(&body, matroska.IDTitle, []byte(wr.cfg.Title))
	}
	if wr.cfg.MuxingApp != "" {
		ebmlwrite.Element(&body, matroska.IDMuxingApp, []byte(wr.cfg.MuxingApp))
	}
	if wr.cfg.WritingApp != "" {
		ebmlwrite.Element(&body, matroska.IDWritingApp, []byte(wr.cfg.WritingApp))
	}

	durationHeaderLen := len(ebmlwrite.EncodeID(matroska.IDDuration)) + 1 // size field is always 1 byte for an 8-byte payload
	durationOffsetInBody := body.Len() + durationHeaderLen
	ebmlwrite.Element(&body, matroska.IDDuration, ebmlwrite.EncodeFloat64(0))

	infoHeaderLen := len(ebmlwrite.EncodeID(matroska.IDSegmentInfo)) + len(mustVInt(uint64(body.Len())))
	wr.infoDurationAt = infoStart + int64(infoHeaderLen) + int64(durationOffsetInBody)

	return wr.element(matroska.IDSegmentInfo, body.Bytes())
}

// mustVInt encodes n as a VINT, panicking only if n exceeds the 8-byte
// VINT range (2**56), which no element size in this writer ever will.
func mustVInt(n uint64) []byte {
	b, err := ebmlwrite.EncodeVInt(n)
	if err != nil {
		panic(err)
	}
	return b
}

// Phase 5: Tracks.
func (wr *Writer) writeTracks(tracks []trackpac.TrackEntry) error {
	wr.seeks = append(wr.seeks, seekEntry{id: matroska.IDTracks, offset: wr.segRelative(wr.offset)})

	var body bytes.Buffer
	for _, te := range tracks {
		entryBytes := encodeTrackEntry(te)
		ebmlwrite.Element(&body, matroska.IDTrackEntry, entryBytes)
	}
	return wr.element(matroska.IDTracks, body.Bytes())
}

func encodeTrackEntry(te trackpac.TrackEntry) []byte {
	var body bytes.Buffer
	ebmlwrite.Element(&body, matroska.IDTrackNum, ebmlwrite.EncodeUint(te.Number))
	ebmlwrite.Element(&body, matroska.IDTrackUID, ebmlwrite.EncodeUint(te.UID))

	typ := uint64(matroska.TypeSubtitle)
	switch {
	case te.Video != nil:
		typ = uint64(matroska.TypeVideo)
	case te.Audio != nil:
		typ = uint64(matroska.TypeAudio)
	}
	ebmlwrite.Element(&body, matroska.IDTrackType, ebmlwrite.EncodeUint(typ))

	if te.Name != "" {
		ebmlwrite.Element(&body, matroska.IDTrackName, []byte(te.Name))
	}
	if te.Language != "" {
		ebmlwrite.Element(&body, matroska.IDLanguage, []byte(te.Language))
	}
	ebmlwrite.Element(&body, matroska.IDCodecID, []byte(te.CodecID))
	if len(te.CodecPrivate) > 0 {
		ebmlwrite.Element(&body, matroska.IDCodecPriv, te.CodecPrivate)
	}

	if te.Video != nil {
		var v bytes.Buffer
		ebmlwrite.Element(&v, matroska.IDPixelWidth, ebmlwrite.EncodeUint(te.Video.PixelWidth))
		ebmlwrite.Element(&v, matroska.IDPixelHeight, ebmlwrite.EncodeUint(te.Video.PixelHeight))
		if te.Video.DisplayWidth > 0 {
			ebmlwrite.Element(&v, matroska.IDDisplayWidth, ebmlwrite.EncodeUint(te.Video.DisplayWidth))
		}
		if te.Video.DisplayHeight > 0 {
			ebmlwrite.Element(&v, matroska.IDDisplayHeight, ebmlwrite.EncodeUint(te.Video.DisplayHeight))
		}
		ebmlwrite.Element(&body, matroska.IDVideo, v.Bytes())
	}
	if te.Audio != nil {
		var a bytes.Buffer
		ebmlwrite.Element(&a, matroska.IDSamplingFrequency, ebmlwrite.EncodeFloat64(te.Audio.SamplingFrequency))
		ebmlwrite.Element(&a, matroska.IDChannels, ebmlwrite.EncodeUint(te.Audio.Channels))
		if te.Audio.BitDepth > 0 {
			ebmlwrite.Element(&a, matroska.IDBitDepth, ebmlwrite.EncodeUint(te.Audio.BitDepth))
		}
		ebmlwrite.Element(&body, matroska.IDAudio, a.Bytes())
	}

	return body.Bytes()
}

// Phase 6: Clusters, driven by the scheduler and grouped by clusterbuild.
// Returns the last packet's timecode in milliseconds, used for the segment
// Duration back-patch.
func (wr *Writer) writeClusters(sched *mergesched.Scheduler) (int64, error) {
	wr.seeks = append(wr.seeks, seekEntry{id: matroska.IDCluster, offset: wr.segRelative(wr.offset)})

	// clusterbuild writes straight to wr.w; mirror its byte count back into
	// wr.offset via a wrapping writer so segRelative stays correct.
	countingBuilder := clusterbuild.New(&countingWriter{w: wr.w, n: &wr.offset}, wr.cfg.ClusterLimits, wr.cfg.TimecodeScale, func() int64 { return wr.offset })

	var lastMS int64
	for {
		pkt, ok, err := sched.Next()
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		if err := countingBuilder.Push(pkt); err != nil {
			return 0, fmt.Errorf("%w", err)
		}
		if wr.cfg.OnPacket != nil {
			wr.cfg.OnPacket(pkt)
		}
		lastMS = pkt.Timecode
	}
	if err := countingBuilder.Close(); err != nil {
		return 0, err
	}
	wr.cues = countingBuilder.Cues
	return lastMS, nil
}

// countingWriter mirrors every byte written through to an ioseek.Writer
// while keeping an external offset counter in sync, since clusterbuild
// only knows the io.Writer interface.
type countingWriter struct {
	w *ioseek.Writer
	n *int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	*c.n += int64(n)
	return n, err
}

// Phase 7: Cues, one CuePoint per recorded cue (spec §4.4 CuePolicy).
func (wr *Writer) writeCues() error {
	if wr.cfg.NoCues || len(wr.cues) == 0 {
		return nil
	}
	wr.seeks = append(wr.seeks, seekEntry{id: matroska.IDCues, offset: wr.segRelative(wr.offset)})

	var body bytes.Buffer
	for _, cue := range wr.cues {
		var pos bytes.Buffer
		ebmlwrite.Element(&pos, matroska.IDCueTrack, ebmlwrite.EncodeUint(cue.Track))
		ebmlwrite.Element(&pos, matroska.IDCueClusterPosition, ebmlwrite.EncodeUint(uint64(cue.ClusterOffset)))

		var point bytes.Buffer
		ebmlwrite.Element(&point, matroska.IDCueTime, ebmlwrite.EncodeUint(uint64(cue.TimecodeMS)))
		ebmlwrite.Element(&point, matroska.IDCueTrackPositions, pos.Bytes())

		ebmlwrite.Element(&body, matroska.IDCuePoint, point.Bytes())
	}
	return wr.element(matroska.IDCues, body.Bytes())
}

// Phase 8: back-patch the reserved SeekHead void with real seek entries for
// Info, Tracks, Cluster, and Cues (spec §9 scopes SeekHead to top-level
// elements other than individual clusters). If the encoded SeekHead doesn't
// fit the reserved void, this degrades gracefully: the file is still valid
// without a SeekHead, just slower to open in seek-sensitive players, and the
// caller is told via the returned error so it can log a retry hint.
func (wr *Writer) backpatchSeekHead() error {
	if wr.cfg.NoMetaSeek {
		return nil
	}

	encoded, err := encodeSeekHead(wr.seeks)
	if err != nil {
		return err
	}
	firstErr := (*mkverrors.MetaSeekOverflowError)(nil)
	if encoded.Len() > wr.seekHeadVoidSize {
		firstErr = &mkverrors.MetaSeekOverflowError{Encoded: encoded.Len(), Reserved: wr.seekHeadVoidSize}
		wr.log.Warn("seek head does not fit reserved void; retrying with cues-only entry",
			"encoded", encoded.Len(), "reserved", wr.seekHeadVoidSize)

		cuesOnly := cuesOnlySeeks(wr.seeks)
		encoded, err = encodeSeekHead(cuesOnly)
		if err != nil {
			return err
		}
	}

	if encoded.Len() > wr.seekHeadVoidSize {
		wr.log.Warn("seek head still does not fit reserved void; proceeding without meta seek",
			"encoded", encoded.Len(), "reserved", wr.seekHeadVoidSize)
		return firstErr
	}

	remainder := wr.seekHeadVoidSize - encoded.Len()
	var padded bytes.Buffer
	padded.Write(encoded.Bytes())
	if remainder > 0 {
		if err := ebmlwrite.ReserveVoid(&padded, remainder); err != nil {
			return err
		}
	}
	if err := wr.w.WriteAt(wr.seekHeadVoidAt, padded.Bytes()); err != nil {
		return err
	}
	if firstErr != nil {
		return firstErr
	}
	return nil
}

func encodeSeekHead(entries []seekEntry) (bytes.Buffer, error) {
	var body bytes.Buffer
	for _, s := range entries {
		var entry bytes.Buffer
		ebmlwrite.Element(&entry, matroska.IDSeekID, ebmlwrite.EncodeID(s.id))
		ebmlwrite.Element(&entry, matroska.IDSeekPos, ebmlwrite.EncodeUint(uint64(s.offset)))
		ebmlwrite.Element(&body, matroska.IDSeek, entry.Bytes())
	}
	var encoded bytes.Buffer
	_, err := ebmlwrite.Element(&encoded, matroska.IDSeekHead, body.Bytes())
	return encoded, err
}

func cuesOnlySeeks(entries []seekEntry) []seekEntry {
	out := make([]seekEntry, 0, 1)
	for _, s := range entries {
		if s.id == matroska.IDCues {
			out = append(out, s)
		}
	}
	return out
}

// Phase 9: back-patch Duration, converting lastMS into TimecodeScale units.
func (wr *Writer) backpatchDuration(lastMS int64) error {
	scaleMS := float64(wr.cfg.TimecodeScale) / 1e6
	duration := float64(lastMS)
	if scaleMS > 0 {
		duration = float64(lastMS) / scaleMS
	}
	return wr.w.WriteAt(wr.infoDurationAt, ebmlwrite.EncodeFloat64(duration))
}

// Phase 10: back-patch the Segment element's unknown-size header with its
// real size now that every child has been written.
func (wr *Writer) backpatchSegmentSize() error {
	size := wr.offset - wr.segmentDataStart
	encoded, err := encodeVIntWidth8(uint64(size))
	if err != nil {
		return err
	}
	return wr.w.WriteAt(wr.segmentSizeAt, encoded)
}

// encodeVIntWidth8 forces n into the fixed 8-byte VINT width that
// UnknownSizeHeader always reserves, so the segment size back-patch never
// needs to grow the header it's overwriting.
func encodeVIntWidth8(n uint64) ([]byte, error) {
	const width = 8
	maxVal := uint64(1)<<(width*7) - 2
	if n > maxVal {
		return nil, fmt.Errorf("mkvwriter: segment size %d exceeds 8-byte VINT range", n)
	}
	buf := make([]byte, width)
	marker := byte(1) << (8 - width)
	v := n
	for i := width - 1; i >= 1; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	buf[0] = marker | byte(v)
	return buf, nil
}
