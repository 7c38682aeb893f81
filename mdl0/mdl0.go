// Package mdl0 encodes and decodes MDL0 model sub-files.
//
// The representative subset covers the model header, the bone table,
// definitions, bones, and the vertex, normal, color, and UV arrays. A model
// carrying any other section (materials, shaders, objects, texture links,
// palettes, fur, user data) is rejected with ErrUnsupportedSection so the
// caller can keep it as an opaque sub-file.
package mdl0

import (
	"errors"
	"fmt"

	"github.com/meigma/brres/internal/binfile"
	"github.com/meigma/brres/internal/frame"
	"github.com/meigma/brres/internal/sizing"
)

var (
	// ErrUnsupportedSection is returned for a model section outside the decoded subset.
	ErrUnsupportedSection = frame.ErrUnsupportedSection

	// ErrBoneOrder is returned when a bone's parent does not precede it.
	ErrBoneOrder = errors.New("brres: bone parent must precede child")

	// ErrInvalidArray is returned when geometry data does not match its declared count.
	ErrInvalidArray = errors.New("brres: invalid geometry array")

	// ErrInvalidDefinition is returned for malformed definition bytecode.
	ErrInvalidDefinition = errors.New("brres: invalid definition")

	// ErrTooManyEntries is returned when a section exceeds its index width.
	ErrTooManyEntries = errors.New("brres: too many entries")
)

// UnsupportedSectionError names the section that could not be decoded.
type UnsupportedSectionError struct {
	Section Section
}

func (e *UnsupportedSectionError) Error() string {
	return fmt.Sprintf("brres: unsupported model section %s", e.Section)
}

func (e *UnsupportedSectionError) Unwrap() error { return ErrUnsupportedSection }

// DefaultVersion is the MDL0 version written for new models.
const DefaultVersion = 11

// headerLength is the value of the header's length field.
const headerLength = 0x40

// matrixFlag is the constant word preceding the bone table offset.
const matrixFlag = 0x01000000

// Section identifies a model section folder.
type Section uint8

const (
	SectionDefinitions Section = iota
	SectionBones
	SectionVertices
	SectionNormals
	SectionColors
	SectionUVs
	SectionFurVectors
	SectionFurLayers
	SectionMaterials
	SectionShaders
	SectionObjects
	SectionTextures
	SectionPalettes
	SectionUserData
)

var sectionNames = [...]string{
	"Definitions", "Bones", "Vertices", "Normals", "Colors", "UVs",
	"FurVectors", "FurLayers", "Materials", "Shaders", "Objects",
	"Textures", "Palettes", "UserData",
}

// String returns the section name.
func (s Section) String() string {
	if int(s) < len(sectionNames) {
		return sectionNames[s]
	}
	return fmt.Sprintf("Section(%d)", uint8(s))
}

// layout lists the sections present in the frame table of a version, in
// table order.
func layout(version uint32) []Section {
	if version >= 10 {
		return []Section{
			SectionDefinitions, SectionBones, SectionVertices, SectionNormals,
			SectionColors, SectionUVs, SectionFurVectors, SectionFurLayers,
			SectionMaterials, SectionShaders, SectionObjects, SectionTextures,
			SectionPalettes, SectionUserData,
		}
	}
	return []Section{
		SectionDefinitions, SectionBones, SectionVertices, SectionNormals,
		SectionColors, SectionUVs, SectionMaterials, SectionShaders,
		SectionObjects, SectionTextures, SectionPalettes,
	}
}

// Model is a decoded MDL0 sub-file.
type Model struct {
	Name           string
	Version        uint32
	ScalingRule    uint32
	TexMatrixMode  uint32
	FacepointCount uint32
	FaceCount      uint32
	Min            [3]float32 // bounding box, versions 10 and later
	Max            [3]float32
	BoneTable      []int32
	Definitions    []Definition
	Bones          []*Bone
	Vertices       []*PointArray
	Normals        []*PointArray
	Colors         []*PointArray
	UVs            []*PointArray
}

// New creates an empty model.
func New(name string) *Model {
	return &Model{Name: name, Version: DefaultVersion}
}

// Magic returns the sub-file tag.
func (m *Model) Magic() string { return frame.MagicMDL0 }

// SubfileName returns the model name.
func (m *Model) SubfileName() string { return m.Name }

// Bone returns the index of the named bone.
func (m *Model) Bone(name string) (int, bool) {
	for i, b := range m.Bones {
		if b.Name == name {
			return i, true
		}
	}
	return -1, false
}

// AddBone appends a bone under parent (-1 for a root) and returns its index.
// The bone table and NodeTree definition are regenerated.
func (m *Model) AddBone(b *Bone, parent int) (int, error) {
	if parent < -1 || parent >= len(m.Bones) {
		return -1, fmt.Errorf("bone %q: %w: parent %d", b.Name, ErrBoneOrder, parent)
	}
	b.Parent = parent
	m.Bones = append(m.Bones, b)
	m.rebuildNodeTree()
	return len(m.Bones) - 1, nil
}

// rebuildNodeTree replaces the bone table and NodeTree definition with ones
// that map each bone to its own matrix.
func (m *Model) rebuildNodeTree() {
	m.BoneTable = m.BoneTable[:0]
	for i := range m.Bones {
		m.BoneTable = append(m.BoneTable, int32(i)) //nolint:gosec // bone counts fit i32
	}
	tree := NodeTree(m.Bones)
	for i := range m.Definitions {
		if m.Definitions[i].Name == DefNodeTree {
			m.Definitions[i] = tree
			return
		}
	}
	m.Definitions = append([]Definition{tree}, m.Definitions...)
}

// Children returns the indices of the bones whose parent is i.
func (m *Model) Children(i int) []int {
	var out []int
	for j, b := range m.Bones {
		if b.Parent == i {
			out = append(out, j)
		}
	}
	return out
}

// Validate checks the model for packing.
func (m *Model) Validate() error {
	if _, ok := frame.SectionCount(frame.MagicMDL0, m.Version); !ok {
		return &frame.UnsupportedVersionError{Magic: frame.MagicMDL0, Version: m.Version}
	}
	for i := range m.Definitions {
		if err := m.Definitions[i].Validate(); err != nil {
			return err
		}
	}
	return validateBones(m.Bones)
}

// sectionEntries returns the entry names of a section, nil if empty.
func (m *Model) sectionEntries(s Section) []string {
	var names []string
	switch s {
	case SectionDefinitions:
		for _, d := range m.Definitions {
			names = append(names, d.Name)
		}
	case SectionBones:
		for _, b := range m.Bones {
			names = append(names, b.Name)
		}
	case SectionVertices, SectionNormals, SectionColors, SectionUVs:
		for _, p := range m.arrays(s) {
			names = append(names, p.Name)
		}
	}
	return names
}

func (m *Model) arrays(s Section) []*PointArray {
	switch s {
	case SectionVertices:
		return m.Vertices
	case SectionNormals:
		return m.Normals
	case SectionColors:
		return m.Colors
	case SectionUVs:
		return m.UVs
	}
	return nil
}

// Pack writes the model at the cursor.
func (m *Model) Pack(w *binfile.Writer) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("model %q: %w", m.Name, err)
	}
	fw, err := frame.Pack(w, frame.MagicMDL0, m.Version, m.Name)
	if err != nil {
		return err
	}
	if err := m.packHeader(w); err != nil {
		return fmt.Errorf("model %q header: %w", m.Name, err)
	}

	folders := make(map[Section]*binfile.Folder)
	for slot, s := range layout(m.Version) {
		names := m.sectionEntries(s)
		if len(names) == 0 {
			if err := fw.SectionNull(slot); err != nil {
				return err
			}
			continue
		}
		if err := fw.Section(slot); err != nil {
			return err
		}
		f, err := binfile.FolderOf(names...)
		if err != nil {
			return fmt.Errorf("model %q %s: %w", m.Name, s, err)
		}
		if err := f.Pack(w); err != nil {
			return err
		}
		folders[s] = f
	}

	if f := folders[SectionDefinitions]; f != nil {
		for _, d := range m.Definitions {
			if err := f.CreateEntryRef(w, d.Name); err != nil {
				return err
			}
			w.Raw(d.Code)
		}
		w.Align(4)
	}
	if f := folders[SectionBones]; f != nil {
		if err := packBones(w, fw.Block(), f, m.Bones); err != nil {
			return fmt.Errorf("model %q: %w", m.Name, err)
		}
	}
	kinds := []struct {
		section Section
		kind    ArrayKind
	}{
		{SectionVertices, KindVertex},
		{SectionNormals, KindNormal},
		{SectionColors, KindColor},
		{SectionUVs, KindUV},
	}
	for _, k := range kinds {
		if f := folders[k.section]; f != nil {
			if err := packArrays(w, f, k.kind, m.arrays(k.section)); err != nil {
				return fmt.Errorf("model %q: %w", m.Name, err)
			}
		}
	}
	return fw.CloseAligned(0x20)
}

func (m *Model) packHeader(w *binfile.Writer) error {
	bones, err := sizing.ToUint32(len(m.Bones), ErrTooManyEntries)
	if err != nil {
		return err
	}
	table, err := sizing.ToUint32(len(m.BoneTable), ErrTooManyEntries)
	if err != nil {
		return err
	}
	b := w.Start()
	w.U32(headerLength)
	w.WriteOuterOffset()
	if err := w.Write(m.ScalingRule, m.TexMatrixMode, m.FacepointCount, m.FaceCount,
		uint32(0), bones, uint32(matrixFlag)); err != nil {
		return err
	}
	tableRef := w.Mark(1)[0]
	if m.Version >= 10 {
		if err := w.Write(m.Min, m.Max); err != nil {
			return err
		}
	}
	if err := w.CreateRef(tableRef, binfile.RefBlock); err != nil {
		return err
	}
	w.U32(table)
	if err := w.Write(m.BoneTable); err != nil {
		return err
	}
	return w.End(b)
}

// Unpack decodes a model at the cursor, leaving the cursor after it.
func Unpack(r *binfile.Reader) (*Model, error) {
	fr, err := frame.Unpack(r, frame.MagicMDL0)
	if err != nil {
		return nil, err
	}
	m := &Model{Name: fr.Name, Version: fr.Version}
	if err := m.unpackHeader(r); err != nil {
		return nil, fmt.Errorf("model %q header: %w", m.Name, err)
	}

	folders := make(map[Section]*binfile.Folder)
	for slot, s := range layout(m.Version) {
		pos := fr.Sections[slot]
		if pos == 0 {
			continue
		}
		switch s {
		case SectionDefinitions, SectionBones, SectionVertices, SectionNormals, SectionColors, SectionUVs:
		default:
			return nil, &UnsupportedSectionError{Section: s}
		}
		if err := r.Seek(pos); err != nil {
			return nil, err
		}
		f, err := binfile.UnpackFolder(r)
		if err != nil {
			return nil, fmt.Errorf("model %q %s: %w", m.Name, s, err)
		}
		folders[s] = f
	}

	if f := folders[SectionDefinitions]; f != nil {
		for _, name := range f.Names() {
			off, _ := f.Offset(name)
			if err := r.Seek(off); err != nil {
				return nil, err
			}
			rest, err := r.Bytes(fr.End() - off)
			if err != nil {
				return nil, err
			}
			_, n, err := ParseInstructions(rest)
			if err != nil {
				return nil, fmt.Errorf("model %q definition %q: %w", m.Name, name, err)
			}
			m.Definitions = append(m.Definitions, Definition{Name: name, Code: append([]byte(nil), rest[:n]...)})
		}
	}
	if f := folders[SectionBones]; f != nil {
		if m.Bones, err = unpackBones(r, f); err != nil {
			return nil, fmt.Errorf("model %q: %w", m.Name, err)
		}
	}
	arrays := []struct {
		section Section
		kind    ArrayKind
		dst     *[]*PointArray
	}{
		{SectionVertices, KindVertex, &m.Vertices},
		{SectionNormals, KindNormal, &m.Normals},
		{SectionColors, KindColor, &m.Colors},
		{SectionUVs, KindUV, &m.UVs},
	}
	for _, a := range arrays {
		if f := folders[a.section]; f != nil {
			if *a.dst, err = unpackArrays(r, f, a.kind); err != nil {
				return nil, fmt.Errorf("model %q: %w", m.Name, err)
			}
		}
	}
	if err := fr.Close(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) unpackHeader(r *binfile.Reader) error {
	b := r.Start()
	var (
		length, reserved, bones, flag uint32
		outer, tableRel               int32
	)
	if err := r.Read(&length, &outer, &m.ScalingRule, &m.TexMatrixMode, &m.FacepointCount,
		&m.FaceCount, &reserved, &bones, &flag, &tableRel); err != nil {
		return err
	}
	if m.Version >= 10 {
		if err := r.Read(&m.Min, &m.Max); err != nil {
			return err
		}
	}
	if tableRel != 0 {
		if err := r.Seek(b.Start() + int(tableRel)); err != nil {
			return err
		}
		count, err := r.U32()
		if err != nil {
			return err
		}
		if uint64(count)*4 > uint64(r.Remaining()) {
			return &binfile.TruncatedDataError{Offset: r.Offset(), Need: int(count) * 4, Have: r.Remaining()}
		}
		m.BoneTable = make([]int32, count)
		if err := r.Read(m.BoneTable); err != nil {
			return err
		}
	}
	return r.End(b)
}
