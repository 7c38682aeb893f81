package mdl0

import (
	"fmt"

	"github.com/meigma/brres/internal/binfile"
	"github.com/meigma/brres/internal/sizing"
)

// boneSize is the packed size of one bone.
const boneSize = 0xD0

// BoneFlags are the bone transform and visibility bits.
type BoneFlags uint32

const (
	BoneNoTransform BoneFlags = 1 << iota
	BoneFixedTranslation
	BoneFixedRotation
	BoneFixedScale
	BoneScaleEqual
	BoneSegScaleCompApply
	BoneSegScaleCompParent
	BoneClassicScaleOff
	BoneVisible
	BoneHasGeometry
	BoneHasBillboardParent
)

// Has reports whether all bits of mask are set.
func (f BoneFlags) Has(mask BoneFlags) bool {
	return f&mask == mask
}

// Bone is one node of the model skeleton.
//
// The hierarchy is expressed by Parent alone; sibling and child links are
// derived from the order of Model.Bones when packing, so a parent must
// precede its children.
type Bone struct {
	Name        string
	WeightID    uint32
	Flags       BoneFlags
	Billboard   uint32
	Scale       [3]float32
	Rotation    [3]float32
	Translation [3]float32
	Min         [3]float32
	Max         [3]float32
	Parent      int // index into Model.Bones, -1 for a root
	Part2       int32
	Transform   [12]float32
	Inverse     [12]float32
}

// prevSiblings returns the index of each bone's previous sibling, -1 for a first child.
func prevSiblings(bones []*Bone) []int {
	prev := make([]int, len(bones))
	last := make(map[int]int, len(bones))
	for i, b := range bones {
		p, ok := last[b.Parent]
		if !ok {
			p = -1
		}
		prev[i] = p
		last[b.Parent] = i
	}
	return prev
}

func validateBones(bones []*Bone) error {
	for i, b := range bones {
		if b.Parent < -1 || b.Parent >= i {
			return fmt.Errorf("bone %q: %w: parent %d at index %d", b.Name, ErrBoneOrder, b.Parent, i)
		}
	}
	return nil
}

// packBones writes bones in order. Child and next links are owned by the
// model block and resolved by the bone they point at, or explicitly nulled
// once every bone is written.
func packBones(w *binfile.Writer, owner binfile.Block, folder *binfile.Folder, bones []*Bone) error {
	prev := prevSiblings(bones)
	starts := make([]int, len(bones))
	links := make([][]binfile.Mark, len(bones)) // child, next

	for i, b := range bones {
		if err := folder.CreateEntryRef(w, b.Name); err != nil {
			return err
		}
		blk := w.Start()
		starts[i] = blk.Start()
		switch {
		case prev[i] >= 0:
			if err := w.CreateRef(links[prev[i]][1], binfile.RefBlock); err != nil {
				return fmt.Errorf("bone %q next link: %w", bones[prev[i]].Name, err)
			}
		case b.Parent >= 0:
			if err := w.CreateRef(links[b.Parent][0], binfile.RefBlock); err != nil {
				return fmt.Errorf("bone %q child link: %w", bones[b.Parent].Name, err)
			}
		}

		w.MarkLen()
		w.WriteOuterOffset()
		w.StoreNameRef(b.Name)
		index, err := sizing.ToUint32(i, ErrTooManyEntries)
		if err != nil {
			return err
		}
		if err := w.Write(index, b.WeightID, uint32(b.Flags), b.Billboard, uint32(0)); err != nil {
			return err
		}
		if err := w.Write(b.Scale, b.Rotation, b.Translation, b.Min, b.Max); err != nil {
			return err
		}
		if b.Parent >= 0 {
			w.I32(int32(starts[b.Parent] - starts[i])) //nolint:gosec // bounded by buffer size
		} else {
			w.I32(0)
		}
		links[i], err = w.MarkOwned(owner, 2)
		if err != nil {
			return err
		}
		if prev[i] >= 0 {
			w.I32(int32(starts[prev[i]] - starts[i])) //nolint:gosec // bounded by buffer size
		} else {
			w.I32(0)
		}
		w.I32(b.Part2)
		if err := w.Write(b.Transform, b.Inverse); err != nil {
			return err
		}
		if err := w.End(blk); err != nil {
			return fmt.Errorf("bone %q: %w", b.Name, err)
		}
	}

	for _, l := range links {
		for _, m := range l {
			if !w.Resolved(m) {
				if err := w.ResolveNull(m); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// unpackBones decodes the bones listed in folder, resolving parent links
// to indices.
func unpackBones(r *binfile.Reader, folder *binfile.Folder) ([]*Bone, error) {
	names := folder.Names()
	bones := make([]*Bone, 0, len(names))
	parents := make([]int, 0, len(names))
	index := make(map[int]int, len(names))

	for i, name := range names {
		off, _ := folder.Offset(name)
		if err := r.Seek(off); err != nil {
			return nil, err
		}
		b, parent, err := unpackBone(r)
		if err != nil {
			return nil, fmt.Errorf("bone %q: %w", name, err)
		}
		index[off] = i
		bones = append(bones, b)
		parents = append(parents, parent)
	}
	for i, p := range parents {
		if p == 0 {
			bones[i].Parent = -1
			continue
		}
		pi, ok := index[p]
		if !ok {
			return nil, fmt.Errorf("bone %q: %w: parent at 0x%x is not a bone", bones[i].Name, ErrBoneOrder, p)
		}
		bones[i].Parent = pi
	}
	return bones, nil
}

// unpackBone returns the bone and the absolute offset of its parent, 0 for a root.
func unpackBone(r *binfile.Reader) (*Bone, int, error) {
	blk := r.Start()
	var (
		length uint32
		outer  int32
	)
	if err := r.Read(&length, &outer); err != nil {
		return nil, 0, err
	}
	if length < boneSize {
		return nil, 0, &binfile.TruncatedDataError{Offset: blk.Start(), Need: boneSize, Have: int(length)}
	}
	name, err := r.ReadName()
	if err != nil {
		return nil, 0, err
	}
	b := &Bone{Name: name}
	var index, flags, reserved uint32
	if err := r.Read(&index, &b.WeightID, &flags, &b.Billboard, &reserved); err != nil {
		return nil, 0, err
	}
	b.Flags = BoneFlags(flags)
	if err := r.Read(&b.Scale, &b.Rotation, &b.Translation, &b.Min, &b.Max); err != nil {
		return nil, 0, err
	}
	var parentRel, child, next, prev int32
	if err := r.Read(&parentRel, &child, &next, &prev, &b.Part2); err != nil {
		return nil, 0, err
	}
	if err := r.Read(&b.Transform, &b.Inverse); err != nil {
		return nil, 0, err
	}
	parent := 0
	if parentRel != 0 {
		parent = blk.Start() + int(parentRel)
	}
	return b, parent, r.End(blk)
}
