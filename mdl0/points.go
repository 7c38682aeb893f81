package mdl0

import (
	"fmt"

	"github.com/meigma/brres/internal/binfile"
	"github.com/meigma/brres/internal/sizing"
)

// ArrayKind selects the layout of a geometry array.
type ArrayKind uint8

const (
	KindVertex ArrayKind = iota
	KindNormal
	KindColor
	KindUV
)

// String returns the section name of the kind.
func (k ArrayKind) String() string {
	switch k {
	case KindVertex:
		return "Vertices"
	case KindNormal:
		return "Normals"
	case KindColor:
		return "Colors"
	case KindUV:
		return "UVs"
	default:
		return "unknown"
	}
}

// bounds returns the number of bounding-box components stored per corner.
func (k ArrayKind) bounds() int {
	switch k {
	case KindVertex:
		return 3
	case KindUV:
		return 2
	default:
		return 0
	}
}

// Component formats of geometry data.
const (
	FormatU8  uint32 = 0
	FormatS8  uint32 = 1
	FormatU16 uint32 = 2
	FormatS16 uint32 = 3
	FormatF32 uint32 = 4
)

// dataAlign is the alignment of array data from the array start.
const dataAlign = 0x20

// PointArray is a vertex, normal, color, or UV array. Data holds Count
// points of Stride bytes each in their encoded form.
type PointArray struct {
	Name      string
	CompCount uint32
	Format    uint32
	Divisor   uint8 // fixed-point shift, unused for colors
	Stride    uint8
	Count     uint16
	Min       [3]float32 // vertices use 3 components, UVs 2
	Max       [3]float32
	Data      []byte
}

// validate checks the data length against the declared point count.
func (p *PointArray) validate() error {
	if want := int(p.Count) * int(p.Stride); len(p.Data) != want {
		return fmt.Errorf("%w: %q has %d bytes, want %d", ErrInvalidArray, p.Name, len(p.Data), want)
	}
	return nil
}

func packArrays(w *binfile.Writer, folder *binfile.Folder, kind ArrayKind, arrays []*PointArray) error {
	for i, p := range arrays {
		if err := folder.CreateEntryRef(w, p.Name); err != nil {
			return err
		}
		if err := packArray(w, kind, i, p); err != nil {
			return fmt.Errorf("%s %q: %w", kind, p.Name, err)
		}
	}
	return nil
}

func packArray(w *binfile.Writer, kind ArrayKind, index int, p *PointArray) error {
	if err := p.validate(); err != nil {
		return err
	}
	idx, err := sizing.ToUint32(index, ErrTooManyEntries)
	if err != nil {
		return err
	}
	blk := w.Start()
	w.MarkLen()
	w.WriteOuterOffset()
	data := w.Mark(1)[0]
	w.StoreNameRef(p.Name)
	w.U32(idx)
	w.U32(p.CompCount)
	w.U32(p.Format)
	if kind == KindColor {
		w.U8(p.Stride)
		w.U8(0)
	} else {
		w.U8(p.Divisor)
		w.U8(p.Stride)
	}
	w.U16(p.Count)
	if n := kind.bounds(); n > 0 {
		if err := w.Write(p.Min[:n], p.Max[:n]); err != nil {
			return err
		}
	}
	w.Align(dataAlign)
	if err := w.CreateRef(data, binfile.RefBlock); err != nil {
		return err
	}
	w.Raw(p.Data)
	return w.AlignAndEnd(blk, dataAlign)
}

func unpackArrays(r *binfile.Reader, folder *binfile.Folder, kind ArrayKind) ([]*PointArray, error) {
	out := make([]*PointArray, 0, folder.Len())
	for _, name := range folder.Names() {
		off, _ := folder.Offset(name)
		if err := r.Seek(off); err != nil {
			return nil, err
		}
		p, err := unpackArray(r, kind)
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", kind, name, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func unpackArray(r *binfile.Reader, kind ArrayKind) (*PointArray, error) {
	blk := r.Start()
	var (
		length  uint32
		outer   int32
		dataRel int32
	)
	if err := r.Read(&length, &outer, &dataRel); err != nil {
		return nil, err
	}
	name, err := r.ReadName()
	if err != nil {
		return nil, err
	}
	p := &PointArray{Name: name}
	var index uint32
	if err := r.Read(&index, &p.CompCount, &p.Format); err != nil {
		return nil, err
	}
	var a, b uint8
	if err := r.Read(&a, &b, &p.Count); err != nil {
		return nil, err
	}
	if kind == KindColor {
		p.Stride = a
	} else {
		p.Divisor, p.Stride = a, b
	}
	if n := kind.bounds(); n > 0 {
		if err := r.Read(p.Min[:n], p.Max[:n]); err != nil {
			return nil, err
		}
	}

	size := int(p.Count) * int(p.Stride)
	if int(dataRel)+size > int(length) {
		return nil, fmt.Errorf("%w: data runs past array end", ErrInvalidArray)
	}
	if err := r.Seek(blk.Start() + int(dataRel)); err != nil {
		return nil, err
	}
	data, err := r.Bytes(size)
	if err != nil {
		return nil, err
	}
	p.Data = append([]byte(nil), data...)
	return p, r.End(blk)
}
