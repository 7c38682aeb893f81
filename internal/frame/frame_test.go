package frame

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/brres/internal/binfile"
)

// packTEX0 writes a version 3 TEX0 frame with body bytes after the frame so
// that exactly bodyAfterLen bytes follow the magic and length fields.
func packTEX0(tb testing.TB, name string, bodyAfterLen int) []byte {
	tb.Helper()

	w := binfile.NewWriter()
	fw, err := Pack(w, MagicTEX0, 3, name)
	require.NoError(tb, err)
	assert.Equal(tb, StateHeaderWritten, fw.State())

	// frame after magic+len: version, outer, one section, name = 16 bytes
	require.NoError(tb, fw.Section(0))
	for i := range bodyAfterLen - 16 {
		w.U8(uint8(i)) //nolint:gosec // test pattern
	}
	require.NoError(tb, fw.Close())
	assert.Equal(tb, StateClosed, fw.State())
	require.NoError(tb, w.PackNames())

	data, err := w.Bytes()
	require.NoError(tb, err)
	return data
}

func TestFrameDeclaredLength(t *testing.T) {
	t.Parallel()

	data := packTEX0(t, "stone", 120)

	fr, err := Unpack(binfile.NewReader(data), MagicTEX0)
	require.NoError(t, err)
	assert.Equal(t, "TEX0", fr.Magic)
	assert.Equal(t, uint32(3), fr.Version)
	assert.Equal(t, uint32(128), fr.Length)
	assert.Equal(t, "stone", fr.Name)
	assert.Equal(t, []int{24}, fr.Sections)
	assert.Equal(t, int32(0), fr.OuterOffset)
	assert.Equal(t, StateHeaderRead, fr.State())

	pos, err := fr.Recall()
	require.NoError(t, err)
	assert.Equal(t, 24, pos)
	assert.Equal(t, StateBodyDecoding, fr.State())

	require.NoError(t, fr.Close())
	assert.Equal(t, StateClosed, fr.State())
	assert.ErrorIs(t, fr.Close(), ErrInvalidState)
}

func TestFrameMagicGate(t *testing.T) {
	t.Parallel()

	data := packTEX0(t, "stone", 120)
	copy(data, "TEX1")

	r := binfile.NewReader(data)
	_, err := Unpack(r, MagicTEX0)

	var mismatch *MagicMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.ErrorIs(t, err, ErrMagicMismatch)
	assert.Equal(t, "TEX1", mismatch.Got)
	assert.Equal(t, "TEX0", mismatch.Want)
	assert.Equal(t, 0, r.Offset(), "no field is consumed before the tag check")
	assert.Equal(t, 0, r.BlockStart())
}

func TestFrameMagicGateBeforeTruncation(t *testing.T) {
	t.Parallel()

	// A tag alone is enough to reject the wrong type.
	_, err := Unpack(binfile.NewReader([]byte("CLR0")), MagicTEX0)
	assert.ErrorIs(t, err, ErrMagicMismatch)

	_, err = Unpack(binfile.NewReader([]byte("TEX0")), MagicTEX0)
	assert.ErrorIs(t, err, binfile.ErrTruncatedData)
}

func TestFrameUnsupportedVersion(t *testing.T) {
	t.Parallel()

	data := packTEX0(t, "stone", 120)
	binary.BigEndian.PutUint32(data[8:], 7)

	r := binfile.NewReader(data)
	_, err := Unpack(r, MagicTEX0)

	var unsupported *UnsupportedVersionError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, uint32(7), unsupported.Version)
	assert.Equal(t, 0, r.Offset())

	_, err = Pack(binfile.NewWriter(), MagicCLR0, 9, "x")
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestFrameLengthPastEnd(t *testing.T) {
	t.Parallel()

	data := packTEX0(t, "stone", 120)
	binary.BigEndian.PutUint32(data[4:], 4096)

	_, err := Unpack(binfile.NewReader(data), MagicTEX0)
	assert.ErrorIs(t, err, binfile.ErrTruncatedData)
}

func TestFrameSections(t *testing.T) {
	t.Parallel()

	t.Run("unresolved section fails close", func(t *testing.T) {
		t.Parallel()
		w := binfile.NewWriter()
		fw, err := Pack(w, MagicCLR0, 4, "anim")
		require.NoError(t, err)
		assert.Equal(t, 2, fw.Sections())
		require.NoError(t, fw.Section(0))
		assert.ErrorIs(t, fw.Close(), binfile.ErrUnresolvedReference)
	})

	t.Run("null and explicit sections", func(t *testing.T) {
		t.Parallel()
		w := binfile.NewWriter()
		fw, err := Pack(w, MagicCLR0, 4, "anim")
		require.NoError(t, err)
		w.Advance(8)
		require.NoError(t, fw.Section(0))
		require.NoError(t, fw.SectionNull(1))
		assert.ErrorIs(t, fw.Section(1), binfile.ErrAlreadyResolved)
		assert.Error(t, fw.Section(2))
		require.NoError(t, fw.Close())
		assert.ErrorIs(t, fw.Section(0), ErrInvalidState)
		require.NoError(t, w.PackNames())

		data, err := w.Bytes()
		require.NoError(t, err)

		fr, err := Unpack(binfile.NewReader(data), MagicCLR0)
		require.NoError(t, err)
		assert.Equal(t, []int{36, 0}, fr.Sections)

		pos, err := fr.Recall()
		require.NoError(t, err)
		assert.Equal(t, 36, pos)
		pos, err = fr.Recall()
		require.NoError(t, err)
		assert.Zero(t, pos)
		_, err = fr.Recall()
		assert.ErrorIs(t, err, binfile.ErrResolverUnderflow)
	})

	t.Run("aligned close", func(t *testing.T) {
		t.Parallel()
		w := binfile.NewWriter()
		w.Advance(4)
		fw, err := Pack(w, MagicVIS0, 3, "vis")
		require.NoError(t, err)
		require.NoError(t, fw.SectionNull(0))
		w.Advance(3)
		require.NoError(t, fw.CloseAligned(0x20))
		assert.Equal(t, 4+0x20, w.Offset())
	})
}

func TestFrameLengthPatched(t *testing.T) {
	t.Parallel()

	w := binfile.NewWriter()
	fw, err := Pack(w, MagicCLR0, 4, "anim")
	require.NoError(t, err)
	assert.ErrorIs(t, fw.PatchLength(1), binfile.ErrUnresolvedReference)
	assert.Equal(t, StateHeaderWritten, fw.State())

	require.NoError(t, fw.SectionNull(0))
	require.NoError(t, fw.SectionNull(1))
	assert.Equal(t, StateBodyEncoding, fw.State())
	w.Advance(5)

	require.NoError(t, fw.PatchLength(0x10))
	assert.Equal(t, StateLengthPatched, fw.State())
	assert.Equal(t, "length patched", fw.State().String())
	assert.Equal(t, 1, w.Depth(), "the sub-file block stays open")

	assert.ErrorIs(t, fw.Section(0), ErrInvalidState)
	assert.ErrorIs(t, fw.PatchLength(1), ErrInvalidState)

	require.NoError(t, fw.CloseAligned(0x20))
	assert.Equal(t, StateClosed, fw.State())
	assert.Equal(t, 0x30, w.Offset(), "alignment is not reapplied after the length is patched")
	assert.ErrorIs(t, fw.CloseAligned(1), ErrInvalidState)

	require.NoError(t, w.PackNames())
	data, err := w.Bytes()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x30), binary.BigEndian.Uint32(data[4:]))
}

func TestFrameRequireAbsent(t *testing.T) {
	t.Parallel()

	w := binfile.NewWriter()
	fw, err := Pack(w, MagicCLR0, 4, "anim")
	require.NoError(t, err)
	w.Advance(8)
	require.NoError(t, fw.Section(0))
	w.Advance(8)
	require.NoError(t, fw.Section(1))
	require.NoError(t, fw.Close())
	require.NoError(t, w.PackNames())
	data, err := w.Bytes()
	require.NoError(t, err)

	fr, err := Unpack(binfile.NewReader(data), MagicCLR0)
	require.NoError(t, err)
	require.NoError(t, fr.RequireAbsent(2))

	err = fr.RequireAbsent(1)
	var section *SectionError
	require.ErrorAs(t, err, &section)
	assert.ErrorIs(t, err, ErrUnsupportedSection)
	assert.Equal(t, MagicCLR0, section.Magic)
	assert.Equal(t, 1, section.Index)
	assert.Equal(t, "brres: CLR0 section 1 is not supported", err.Error())
}

func TestFrameOuterOffset(t *testing.T) {
	t.Parallel()

	w := binfile.NewWriter()
	outer := w.Start()
	w.Advance(0x40)
	fw, err := Pack(w, MagicTEX0, 1, "t")
	require.NoError(t, err)
	require.NoError(t, fw.SectionNull(0))
	require.NoError(t, fw.Close())
	require.NoError(t, w.End(outer))
	require.NoError(t, w.PackNames())
	data, err := w.Bytes()
	require.NoError(t, err)

	h, err := Peek(binfile.NewReader(data[0x40:]))
	require.NoError(t, err)
	assert.Equal(t, int32(-0x40), h.OuterOffset)
	assert.Equal(t, "TEX0", h.Magic)
	assert.Equal(t, uint32(1), h.Version)
}

func TestFrameBody(t *testing.T) {
	t.Parallel()

	data := packTEX0(t, "stone", 40)
	fr, err := Unpack(binfile.NewReader(data), MagicTEX0)
	require.NoError(t, err)

	body, err := fr.Body()
	require.NoError(t, err)
	assert.Len(t, body, 24)
	assert.Equal(t, byte(0), body[0])
	assert.Equal(t, byte(23), body[23])
	require.NoError(t, fr.Close())
}

func TestVersionTables(t *testing.T) {
	t.Parallel()

	tests := []struct {
		magic   string
		version uint32
		want    int
	}{
		{MagicMDL0, 8, 11},
		{MagicMDL0, 11, 14},
		{MagicTEX0, 2, 2},
		{MagicCLR0, 4, 2},
		{MagicCHR0, 5, 2},
		{MagicSRT0, 4, 1},
		{MagicPAT0, 4, 6},
		{MagicSCN0, 5, 7},
		{MagicSHP0, 3, 2},
		{MagicVIS0, 4, 2},
	}
	for _, tt := range tests {
		n, ok := SectionCount(tt.magic, tt.version)
		require.True(t, ok, "%s v%d", tt.magic, tt.version)
		assert.Equal(t, tt.want, n, "%s v%d", tt.magic, tt.version)
	}

	_, ok := SectionCount("bres", 0)
	assert.False(t, ok)
	assert.True(t, Known(MagicSHP0))
	assert.False(t, Known("root"))
	assert.Equal(t, []uint32{8, 9, 10, 11}, Versions(MagicMDL0))
}
