package mdl0

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/brres/internal/binfile"
	"github.com/meigma/brres/internal/frame"
)

// sampleModel builds a small skinned model:
//
//	root
//	├── spine
//	│   └── head
//	└── tail
func sampleModel(tb testing.TB, version uint32) *Model {
	tb.Helper()

	m := New("course")
	m.Version = version
	m.ScalingRule = 1
	m.FacepointCount = 3
	m.FaceCount = 1
	if version >= 10 {
		m.Min = [3]float32{-1, -2, -3}
		m.Max = [3]float32{1, 2, 3}
	}

	add := func(name string, parent int) int {
		b := &Bone{
			Name:        name,
			Flags:       BoneVisible | BoneFixedScale,
			Scale:       [3]float32{1, 1, 1},
			Translation: [3]float32{0, float32(len(name)), 0},
			Transform:   [12]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0},
			Inverse:     [12]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0},
		}
		i, err := m.AddBone(b, parent)
		require.NoError(tb, err)
		return i
	}
	root := add("root", -1)
	spine := add("spine", root)
	add("head", spine)
	add("tail", root)

	m.Definitions = append(m.Definitions, DrawList(DefDrawOpa, []DrawCall{{Material: 0, Object: 0, Bone: 2, Priority: 1}}))
	m.Vertices = []*PointArray{{
		Name: "course_verts", CompCount: 1, Format: FormatF32, Stride: 12, Count: 3,
		Min: [3]float32{-1, -1, 0}, Max: [3]float32{1, 1, 0},
		Data: bytes.Repeat([]byte{0x3F}, 36),
	}}
	m.Normals = []*PointArray{{
		Name: "course_norms", CompCount: 0, Format: FormatS8, Divisor: 6, Stride: 3, Count: 2,
		Data: []byte{0, 0, 64, 0, 64, 0},
	}}
	m.Colors = []*PointArray{{
		Name: "course_colors", CompCount: 1, Format: 5, Stride: 4, Count: 1,
		Data: []byte{255, 0, 0, 255},
	}}
	m.UVs = []*PointArray{{
		Name: "course_uv", CompCount: 1, Format: FormatS16, Divisor: 10, Stride: 4, Count: 2,
		Min: [3]float32{0, 0}, Max: [3]float32{1, 1},
		Data: []byte{0, 0, 0, 0, 4, 0, 4, 0},
	}}
	return m
}

func mustPack(tb testing.TB, m *Model) []byte {
	tb.Helper()

	w := binfile.NewWriter()
	require.NoError(tb, m.Pack(w))
	require.NoError(tb, w.PackNames())
	data, err := w.Bytes()
	require.NoError(tb, err)
	return data
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	for _, version := range frame.Versions(frame.MagicMDL0) {
		m := sampleModel(t, version)
		data := mustPack(t, m)

		length := binary.BigEndian.Uint32(data[4:])
		assert.Zero(t, length%0x20, "v%d model is 0x20 aligned", version)

		r := binfile.NewReader(data)
		got, err := Unpack(r)
		require.NoError(t, err, "v%d", version)
		if diff := cmp.Diff(m, got, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("v%d round trip mismatch (-want +got):\n%s", version, diff)
		}
		assert.Equal(t, int(length), r.Offset())
		assert.Equal(t, data, mustPack(t, got), "v%d repack", version)
	}
}

// boneOffsets returns the absolute offset of every bone in a packed model.
func boneOffsets(tb testing.TB, data []byte, version uint32) map[string]int {
	tb.Helper()

	fr, err := frame.Unpack(binfile.NewReader(data), frame.MagicMDL0)
	require.NoError(tb, err)
	slot := 1 // bones follow definitions in every layout
	require.Equal(tb, SectionBones, layout(version)[slot])

	r := binfile.NewReader(data)
	require.NoError(tb, r.Seek(fr.Sections[slot]))
	f, err := binfile.UnpackFolder(r)
	require.NoError(tb, err)

	out := make(map[string]int)
	for _, name := range f.Names() {
		off, ok := f.Offset(name)
		require.True(tb, ok)
		out[name] = off
	}
	return out
}

func TestBoneLinks(t *testing.T) {
	t.Parallel()

	m := sampleModel(t, DefaultVersion)
	data := mustPack(t, m)
	off := boneOffsets(t, data, DefaultVersion)

	link := func(bone string, field int) int {
		v := int32(binary.BigEndian.Uint32(data[off[bone]+field:]))
		if v == 0 {
			return 0
		}
		return off[bone] + int(v)
	}
	const (
		parentField = 0x5C
		childField  = 0x60
		nextField   = 0x64
		prevField   = 0x68
	)

	assert.Equal(t, uint32(boneSize), binary.BigEndian.Uint32(data[off["root"]:]))

	assert.Zero(t, link("root", parentField))
	assert.Equal(t, off["spine"], link("root", childField))
	assert.Zero(t, link("root", nextField))

	assert.Equal(t, off["root"], link("spine", parentField))
	assert.Equal(t, off["head"], link("spine", childField))
	assert.Equal(t, off["tail"], link("spine", nextField))
	assert.Zero(t, link("spine", prevField))

	assert.Equal(t, off["spine"], link("tail", prevField))
	assert.Zero(t, link("tail", nextField))
	assert.Zero(t, link("head", childField))

	// Outer offsets point back to the model start.
	assert.Equal(t, -off["head"], int(int32(binary.BigEndian.Uint32(data[off["head"]+4:]))))
}

func TestUnsupportedSection(t *testing.T) {
	t.Parallel()

	m := sampleModel(t, DefaultVersion)
	data := mustPack(t, m)

	// Point the materials slot at the definitions folder.
	const materialsSlot = 8
	fr, err := frame.Unpack(binfile.NewReader(data), frame.MagicMDL0)
	require.NoError(t, err)
	binary.BigEndian.PutUint32(data[frame.HeaderSize+4*materialsSlot:], uint32(fr.Sections[0])) //nolint:gosec // test offset

	_, err = Unpack(binfile.NewReader(data))
	var unsupported *UnsupportedSectionError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, SectionMaterials, unsupported.Section)
	assert.ErrorIs(t, err, ErrUnsupportedSection)
}

func TestEmptyModel(t *testing.T) {
	t.Parallel()

	m := New("empty")
	data := mustPack(t, m)
	got, err := Unpack(binfile.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "empty", got.Name)
	assert.Empty(t, got.Bones)
	assert.Empty(t, got.Definitions)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	m := sampleModel(t, DefaultVersion)
	m.Bones[1].Parent = 3
	assert.ErrorIs(t, m.Validate(), ErrBoneOrder)

	m = sampleModel(t, DefaultVersion)
	m.Version = 12
	assert.ErrorIs(t, m.Validate(), frame.ErrUnsupportedVersion)

	m = sampleModel(t, DefaultVersion)
	m.Vertices[0].Count = 4
	assert.ErrorIs(t, m.Pack(binfile.NewWriter()), ErrInvalidArray)

	m = sampleModel(t, DefaultVersion)
	m.Definitions[0].Code = m.Definitions[0].Code[:len(m.Definitions[0].Code)-1]
	assert.ErrorIs(t, m.Validate(), ErrInvalidDefinition)

	_, err := m.AddBone(&Bone{Name: "orphan"}, 99)
	assert.ErrorIs(t, err, ErrBoneOrder)
}

func TestHierarchy(t *testing.T) {
	t.Parallel()

	m := sampleModel(t, DefaultVersion)
	assert.Equal(t, []int{1, 3}, m.Children(0))
	assert.Equal(t, []int{2}, m.Children(1))
	assert.Nil(t, m.Children(2))

	i, ok := m.Bone("tail")
	require.True(t, ok)
	assert.Equal(t, 3, i)
	_, ok = m.Bone("wing")
	assert.False(t, ok)

	assert.Equal(t, []int32{0, 1, 2, 3}, m.BoneTable)
	assert.Equal(t, DefNodeTree, m.Definitions[0].Name)
	assert.Equal(t, []int{-1, 0, 1, 0}, []int{m.Bones[0].Parent, m.Bones[1].Parent, m.Bones[2].Parent, m.Bones[3].Parent})
	assert.Equal(t, []int{-1, -1, -1, 1}, prevSiblings(m.Bones))
}

func TestBoneFlags(t *testing.T) {
	t.Parallel()

	f := BoneVisible | BoneHasGeometry
	assert.True(t, f.Has(BoneVisible))
	assert.True(t, f.Has(BoneVisible|BoneHasGeometry))
	assert.False(t, f.Has(BoneNoTransform))
	assert.Equal(t, BoneFlags(1<<8), BoneVisible)
	assert.Equal(t, BoneFlags(1<<10), BoneHasBillboardParent)
}
