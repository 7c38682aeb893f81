package clr0

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/brres/internal/binfile"
	"github.com/meigma/brres/internal/frame"
)

func sampleAnimation(tb testing.TB) *Animation {
	tb.Helper()

	a := New("glow", 3, true)
	water := a.AddMaterial("water")
	require.NoError(tb, water.SetTrack(Track{
		Target: TargetColor1,
		Colors: []Color{{0, 0, 0, 255}, {128, 128, 128, 255}, {255, 255, 255, 255}},
	}))
	require.NoError(tb, water.SetTrack(Track{
		Target:   TargetMaterial0,
		Mask:     Color{0, 0, 0, 0xFF},
		Constant: true,
		Colors:   []Color{{10, 20, 30, 0}},
	}))
	lava := a.AddMaterial("lava")
	require.NoError(tb, lava.SetTrack(Track{
		Target: TargetKonst3,
		Colors: []Color{{1, 2, 3, 4}, {5, 6, 7, 8}, {9, 10, 11, 12}},
	}))
	return a
}

func mustPack(tb testing.TB, a *Animation) []byte {
	tb.Helper()

	w := binfile.NewWriter()
	require.NoError(tb, a.Pack(w))
	require.NoError(tb, w.PackNames())
	data, err := w.Bytes()
	require.NoError(tb, err)
	return data
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	for _, version := range frame.Versions(frame.MagicCLR0) {
		a := sampleAnimation(t)
		a.Version = version
		data := mustPack(t, a)

		r := binfile.NewReader(data)
		got, err := Unpack(r)
		require.NoError(t, err)
		if diff := cmp.Diff(a, got); diff != "" {
			t.Errorf("v%d round trip mismatch (-want +got):\n%s", version, diff)
		}
		assert.Equal(t, int(binary.BigEndian.Uint32(data[4:])), r.Offset())
		assert.Equal(t, data, mustPack(t, got), "v%d repack", version)
	}
}

func TestUnpackUserData(t *testing.T) {
	t.Parallel()

	a := sampleAnimation(t)
	a.Version = 4
	data := mustPack(t, a)
	require.Zero(t, binary.BigEndian.Uint32(data[20:]))
	binary.BigEndian.PutUint32(data[20:], binary.BigEndian.Uint32(data[16:]))

	_, err := Unpack(binfile.NewReader(data))
	var section *frame.SectionError
	require.ErrorAs(t, err, &section)
	assert.ErrorIs(t, err, frame.ErrUnsupportedSection)
	assert.Equal(t, frame.MagicCLR0, section.Magic)
	assert.Equal(t, 1, section.Index)

	// Version 3 has no user data section.
	a.Version = 3
	_, err = Unpack(binfile.NewReader(mustPack(t, a)))
	require.NoError(t, err)
}

func TestEntryLayout(t *testing.T) {
	t.Parallel()

	a := New("one", 2, false)
	m := a.AddMaterial("m")
	require.NoError(t, m.SetTrack(Track{Target: TargetAmbient0, Colors: []Color{{1, 1, 1, 1}, {2, 2, 2, 2}}}))
	a.Version = 3
	data := mustPack(t, a)

	// frame 24, header 12, folder with one entry 40
	entry := 24 + 12 + binfile.FolderSize(1)
	flags := binary.BigEndian.Uint32(data[entry+4:])
	assert.Equal(t, uint32(1<<4), flags, "enabled, not constant")

	field := entry + 12 // after name, flags, and mask
	rel := int(int32(binary.BigEndian.Uint32(data[field:])))
	assert.Equal(t, 4, rel, "list follows the entry fields")
	assert.Equal(t, []byte{1, 1, 1, 1, 2, 2, 2, 2}, data[field+rel:field+rel+8])
}

func TestFlags(t *testing.T) {
	t.Parallel()

	m := &Material{Tracks: []Track{
		{Target: TargetMaterial0, Constant: true},
		{Target: TargetKonst3},
	}}
	flags, err := m.flags()
	require.NoError(t, err)
	assert.Equal(t, uint32(0b11|1<<20), flags)

	m.Tracks = append(m.Tracks, Track{Target: TargetKonst3})
	_, err = m.flags()
	assert.ErrorIs(t, err, ErrDuplicateTarget)

	assert.ErrorIs(t, m.SetTrack(Track{Target: NumTargets}), ErrInvalidTarget)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	a := New("short", 4, false)
	require.NoError(t, a.AddMaterial("m").SetTrack(Track{Target: TargetColor0, Colors: make([]Color, 3)}))
	err := a.Pack(binfile.NewWriter())
	assert.ErrorIs(t, err, ErrTrackLength)

	a.Materials[0].Tracks[0].Constant = true
	assert.ErrorIs(t, a.Validate(), ErrTrackLength)
	a.Materials[0].Tracks[0].Colors = a.Materials[0].Tracks[0].Colors[:1]
	assert.NoError(t, a.Validate())
}

func TestMaterials(t *testing.T) {
	t.Parallel()

	a := sampleAnimation(t)
	m, ok := a.Material("lava")
	require.True(t, ok)
	assert.Same(t, m, a.AddMaterial("lava"))

	tr, ok := m.Track(TargetKonst3)
	require.True(t, ok)
	assert.Len(t, tr.Colors, 3)
	_, ok = m.Track(TargetColor0)
	assert.False(t, ok)

	water, _ := a.Material("water")
	assert.Equal(t, TargetMaterial0, water.Tracks[0].Target, "tracks stay in target order")
	require.NoError(t, water.SetTrack(Track{Target: TargetMaterial0, Constant: true, Colors: []Color{{9, 9, 9, 9}}}))
	assert.Len(t, water.Tracks, 2)

	assert.True(t, a.RemoveMaterial("lava"))
	assert.False(t, a.RemoveMaterial("lava"))
	assert.Len(t, a.Materials, 1)
}

func TestTargetString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Konst3", TargetKonst3.String())
	assert.Equal(t, "Target(11)", Target(11).String())
}
