// Package ebmlwrite implements the EBML encoding primitives the container
// writer (spec §4.6) needs: element ID/size framing, minimal-width unsigned
// integer and 8-byte IEEE-754 float encodings, and the unknown-size marker used for
// the Segment and Cluster elements.
//
// It is the write-side counterpart of matroska.EBMLReader
// (github.com/ebmlmux/gomkvmerge/matroska), and is grounded the same way the
// retrieval pack's own from-scratch Matroska writers are: other_examples'
// webm_muxer.go and encoded_mkv_writer.go both hand-roll exactly this kind
// of ID/VINT/element helper set directly over an io.Writer, because no
// example repo or ecosystem library ships a Matroska-aware EBML encoder.
package ebmlwrite

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// UnknownSize is the all-ones VINT payload used for Segment and Cluster
// elements whose size is not yet known when the element header is written.
var UnknownSize = []byte{0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// EncodeID returns the big-endian bytes of an EBML element ID, including its
// length-marker bits (the ID constants in package matroska already carry
// them, e.g. IDSegment = 0x18538067).
func EncodeID(id uint32) []byte {
	switch {
	case id <= 0xFF:
		return []byte{byte(id)}
	case id <= 0xFFFF:
		return []byte{byte(id >> 8), byte(id)}
	case id <= 0xFFFFFF:
		return []byte{byte(id >> 16), byte(id >> 8), byte(id)}
	default:
		return []byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}
	}
}

// EncodeVInt encodes n as a minimal-width EBML variable-length integer
// (size field), choosing the smallest of the 1..8 byte forms that fits.
func EncodeVInt(n uint64) ([]byte, error) {
	for length := 1; length <= 8; length++ {
		maxVal := uint64(1)<<(uint(length)*7) - 2
		if n <= maxVal {
			marker := uint64(1) << (8*uint(length) - uint(length))
			v := n | marker
			buf := make([]byte, length)
			for i := length - 1; i >= 0; i-- {
				buf[i] = byte(v)
				v >>= 8
			}
			return buf, nil
		}
	}
	return nil, fmt.Errorf("ebmlwrite: value %d too large to encode as VINT", n)
}

// EncodeUint returns the minimal big-endian encoding of n (no leading zero
// bytes, at least one byte), the representation Matroska uses for unsigned
// integer elements such as TrackNumber or TimecodeScale.
func EncodeUint(n uint64) []byte {
	if n == 0 {
		return []byte{0}
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	i := 0
	for i < 7 && buf[i] == 0 {
		i++
	}
	return buf[i:]
}

// EncodeFloat64 returns the 8-byte big-endian IEEE-754 encoding Matroska
// uses for float elements such as Duration and SamplingFrequency.
func EncodeFloat64(f float64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(f))
	return buf[:]
}

// EncodeInt16 returns the 2-byte big-endian two's-complement encoding used
// for a block's cluster-relative timecode offset.
func EncodeInt16(v int16) []byte {
	return []byte{byte(uint16(v) >> 8), byte(v)}
}

// Element writes a complete id+size+data element to w and returns the
// number of bytes written.
func Element(w io.Writer, id uint32, data []byte) (int, error) {
	sizeBytes, err := EncodeVInt(uint64(len(data)))
	if err != nil {
		return 0, err
	}
	total := 0
	if n, err := w.Write(EncodeID(id)); err != nil {
		return total, err
	} else {
		total += n
	}
	if n, err := w.Write(sizeBytes); err != nil {
		return total, err
	} else {
		total += n
	}
	n, err := w.Write(data)
	total += n
	return total, err
}

// UnknownSizeHeader writes an element header with the unknown-size marker,
// for Segment and Cluster elements whose length is back-patched or simply
// never written (spec §4.6 phase 2).
func UnknownSizeHeader(w io.Writer, id uint32) (int, error) {
	total := 0
	if n, err := w.Write(EncodeID(id)); err != nil {
		return total, err
	} else {
		total += n
	}
	n, err := w.Write(UnknownSize)
	total += n
	return total, err
}

// idVoid is the EBML Void element ID, used by ReserveVoid to reserve space
// for the seek head before the engine knows how many entries it will
// contain (spec §4.6 phase 3).
const idVoid = 0xEC

// ReserveVoid writes a Void element whose total on-disk footprint is
// exactly size bytes, by computing the size-field width first and padding
// the remainder with zero bytes.
func ReserveVoid(w io.Writer, size int) error {
	if size < 2 {
		return fmt.Errorf("ebmlwrite: void reservation too small: %d bytes", size)
	}
	idBytes := EncodeID(idVoid)
	// Find the smallest size-field width whose header leaves a payload we
	// can pad exactly; EBML size fields can always be widened with leading
	// "doesn't matter" marker bits, so try widths from 1 up and use the
	// first whose remaining payload size - len(idBytes) - width is
	// non-negative and encodable in that width.
	for width := 1; width <= 8; width++ {
		headerLen := len(idBytes) + width
		if size < headerLen {
			continue
		}
		payloadLen := size - headerLen
		sizeField, err := encodeVIntWidth(uint64(payloadLen), width)
		if err != nil {
			continue
		}
		if _, err := w.Write(idBytes); err != nil {
			return err
		}
		if _, err := w.Write(sizeField); err != nil {
			return err
		}
		if payloadLen > 0 {
			if _, err := w.Write(make([]byte, payloadLen)); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("ebmlwrite: cannot reserve void of size %d", size)
}

// encodeVIntWidth encodes n as an EBML VINT using exactly width bytes,
// widening the marker bit pattern rather than the minimal width EncodeVInt
// would choose. Used by ReserveVoid so a later smaller seek head can
// overwrite the Void's header with a correctly-sized Void of the remainder.
func encodeVIntWidth(n uint64, width int) ([]byte, error) {
	maxVal := uint64(1)<<(uint(width)*7) - 2
	if n > maxVal {
		return nil, fmt.Errorf("value %d does not fit in a %d-byte VINT", n, width)
	}
	marker := uint64(1) << (8*uint(width) - uint(width))
	v := n | marker
	buf := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf, nil
}
