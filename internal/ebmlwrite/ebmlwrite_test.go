package ebmlwrite

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeVIntRoundtrips(t *testing.T) {
	cases := []uint64{0, 1, 126, 127, 128, 16383, 16384, 2097151, 2097152}
	for _, n := range cases {
		enc, err := EncodeVInt(n)
		require.NoError(t, err)
		require.NotEmpty(t, enc)

		// Decode using the same rule matroska.EBMLReader.readVInt applies:
		// the length marker is the position of the first set bit.
		first := enc[0]
		length := 0
		mask := byte(0x80)
		for i := 0; i < 8; i++ {
			if first&mask != 0 {
				length = i + 1
				break
			}
			mask >>= 1
		}
		require.Equal(t, len(enc), length)

		val := uint64(first & (mask - 1))
		for _, b := range enc[1:] {
			val = (val << 8) | uint64(b)
		}
		require.Equal(t, n, val)
	}
}

func TestEncodeID(t *testing.T) {
	require.Equal(t, []byte{0xEC}, EncodeID(0xEC))
	require.Equal(t, []byte{0xA3}, EncodeID(0xA3))
	require.Equal(t, []byte{0x15, 0x49, 0xA9, 0x66}, EncodeID(0x1549A966))
}

func TestEncodeUintMinimalWidth(t *testing.T) {
	require.Equal(t, []byte{0}, EncodeUint(0))
	require.Equal(t, []byte{1}, EncodeUint(1))
	require.Equal(t, []byte{0x0F, 0x42, 0x40}, EncodeUint(1000000))
}

func TestElementFraming(t *testing.T) {
	var buf bytes.Buffer
	n, err := Element(&buf, 0xA3, []byte("hi"))
	require.NoError(t, err)
	require.Equal(t, buf.Len(), n)
	require.Equal(t, []byte{0xA3, 0x82, 'h', 'i'}, buf.Bytes())
}

func TestReserveVoidExactSize(t *testing.T) {
	for _, size := range []int{2, 3, 10, 4096, 100000} {
		var buf bytes.Buffer
		require.NoError(t, ReserveVoid(&buf, size))
		require.Equal(t, size, buf.Len())
		require.Equal(t, byte(idVoid), buf.Bytes()[0])
	}
}

func TestReserveVoidTooSmall(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, ReserveVoid(&buf, 1))
}
