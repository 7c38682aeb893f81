package brres

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/meigma/brres/internal/binfile"
	"github.com/meigma/brres/internal/frame"
	"github.com/meigma/brres/internal/sizing"
)

// origin is the tail of a loaded file that its opaque sub-files are written
// back from: everything from the first opaque sub-file to the end of the
// file. Typed sub-files inside the tail are re-encoded elsewhere, so only
// the opaque sub-files and the bytes after the last sub-file are kept.
// Writing them at their original distances keeps every name reference
// inside the opaque bytes pointing into the copied name pool.
type origin struct {
	start   int         // source offset of the first opaque sub-file
	pool    []byte      // bytes after the last sub-file, normally the name pool
	poolRel int         // offset of pool from start
	sizes   map[int]int // opaque sub-file sizes by offset from start
}

// subfileEnd returns the declared end of the sub-file at off, or 0 if its
// frame cannot be read.
func subfileEnd(data []byte, off int) int {
	r := binfile.NewReader(data)
	if err := r.Seek(off); err != nil {
		return 0
	}
	h, err := frame.Peek(r)
	if err != nil {
		return 0
	}
	return min(off+int(h.Length), len(data))
}

// attachOrigin links opaque sub-files read from data to the tail they are
// written back from. Each o.rel holds its source offset on entry. last is
// the end of the last sub-file in data.
func attachOrigin(data []byte, last int, opaque []*Opaque) {
	if len(opaque) == 0 {
		return
	}
	start := opaque[0].rel
	for _, o := range opaque[1:] {
		start = min(start, o.rel)
	}
	last = min(max(last, start), len(data))
	src := &origin{
		start:   start,
		pool:    bytes.Clone(data[last:]),
		poolRel: last - start,
		sizes:   make(map[int]int, len(opaque)),
	}
	for _, o := range opaque {
		o.rel -= start
		o.src = src
		src.sizes[o.rel] = len(o.Data)
	}
}

// placedOpaque is an opaque sub-file and the folder whose entry points at it.
type placedOpaque struct {
	folder *binfile.Folder
	o      *Opaque
}

// packOpaque writes the tail of every origin once, in order of first use.
func (b *Brres) packOpaque(w *binfile.Writer, placed []placedOpaque) error {
	var order []*origin
	members := make(map[*origin][]placedOpaque)
	for _, p := range placed {
		if _, ok := members[p.o.src]; !ok {
			order = append(order, p.o.src)
		}
		members[p.o.src] = append(members[p.o.src], p)
	}
	for _, src := range order {
		if err := b.packOrigin(w, src, members[src]); err != nil {
			return err
		}
	}
	return nil
}

// packOrigin places the opaque sub-files of src at their source distances
// from each other and from the copied name pool. Their outer offsets are
// moved by the distance the tail travelled.
func (b *Brres) packOrigin(w *binfile.Writer, src *origin, members []placedOpaque) error {
	slices.SortFunc(members, func(x, y placedOpaque) int { return cmp.Compare(x.o.rel, y.o.rel) })

	lead := members[0].o.rel
	w.AlignAbs(subfileAlign)
	w.Advance((src.start + lead) % subfileAlign)
	base := w.Offset() - lead
	shift := base - src.start

	for _, m := range members {
		o := m.o
		at := base + o.rel
		if at < w.Offset() {
			return fmt.Errorf("%s %q: shares data with another sub-file: %w", o.Tag, o.Name, ErrOpaqueSubfile)
		}
		w.Advance(at - w.Offset())
		if err := m.folder.CreateEntryRef(w, o.Name); err != nil {
			return err
		}
		data := bytes.Clone(o.Data)
		if outer := int32(binary.BigEndian.Uint32(data[12:])); outer != 0 { //nolint:gosec // two's complement reinterpretation
			v, err := sizing.ToInt32(int(outer)-shift, binfile.ErrOffsetOverflow)
			if err != nil {
				return fmt.Errorf("%s %q: %w", o.Tag, o.Name, err)
			}
			binary.BigEndian.PutUint32(data[12:], uint32(v)) //nolint:gosec // two's complement reinterpretation
		}
		w.Raw(data)
		b.log().Debug("relocated opaque sub-file", "folder", o.Folder, "name", o.Name, "magic", o.Tag, "offset", at, "size", len(data))
	}

	w.Advance(base + src.poolRel - w.Offset())
	n := w.ReusePool(src.pool)
	b.log().Debug("reused name pool", "offset", base+src.poolRel, "size", len(src.pool), "names", n)
	return nil
}
