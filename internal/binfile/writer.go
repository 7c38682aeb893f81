package binfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/meigma/brres/internal/sizing"
)

// RefKind selects the base a patched offset is measured from.
type RefKind uint8

const (
	// RefAbsolute stores the target's offset from the start of the buffer.
	RefAbsolute RefKind = iota

	// RefBlock stores the target's offset from the start of the block that
	// was innermost when the mark was made.
	RefBlock

	// RefField stores the target's offset from the marked field itself.
	RefField
)

// String returns the human-readable name of the reference kind.
func (k RefKind) String() string {
	switch k {
	case RefAbsolute:
		return "absolute"
	case RefBlock:
		return "block"
	case RefField:
		return "field"
	default:
		return "unknown"
	}
}

// Mark is a handle to a reserved 4-byte offset field awaiting its target.
type Mark struct {
	idx int
}

type markState struct {
	pos      int
	base     int
	owner    *writeBlock
	resolved bool
}

type writeBlock struct {
	id      int
	start   int
	lenSlot int // -1 when no length field was reserved
	pending int // unresolved marks owned by this block
}

type nameRef struct {
	pos  int
	base int
}

// Writer assembles a buffer front to back and patches reserved offset
// fields once their targets are known.
//
// Writes only ever append at the cursor. Previously written bytes change
// only through the resolver: Mark/CreateRef, MarkLen, and the name pool.
type Writer struct {
	buf    []byte
	blocks []*writeBlock // blocks[0] is the buffer itself
	nextID int
	marks  []markState
	names  map[string][]nameRef
	pooled map[string]int // names already present in the buffer, by character offset
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{
		buf:    make([]byte, 0, 4096),
		blocks: []*writeBlock{{id: 0, start: 0, lenSlot: -1}},
		nextID: 1,
		names:  make(map[string][]nameRef),
		pooled: make(map[string]int),
	}
}

// Offset returns the absolute cursor position, which is also the buffer length.
func (w *Writer) Offset() int {
	return len(w.buf)
}

// Start pushes a block beginning at the cursor.
func (w *Writer) Start() Block {
	b := &writeBlock{id: w.nextID, start: len(w.buf), lenSlot: -1}
	w.nextID++
	w.blocks = append(w.blocks, b)
	return Block{id: b.id, start: b.start}
}

// Current returns the innermost open block.
func (w *Writer) Current() Block {
	b := w.top()
	return Block{id: b.id, start: b.start}
}

// BlockStart returns the start of the innermost block (0 outside any block).
func (w *Writer) BlockStart() int {
	return w.top().start
}

// Depth returns the number of open blocks.
func (w *Writer) Depth() int {
	return len(w.blocks) - 1
}

func (w *Writer) top() *writeBlock {
	return w.blocks[len(w.blocks)-1]
}

func (w *Writer) lookup(b Block) *writeBlock {
	for i := len(w.blocks) - 1; i >= 0; i-- {
		if w.blocks[i].id == b.id {
			return w.blocks[i]
		}
	}
	return nil
}

// End pops the innermost block, patching its reserved length field.
//
// End fails with an *UnresolvedReferenceError if any mark owned by the block
// is still pending.
func (w *Writer) End(b Block) error {
	if err := w.PatchLen(b); err != nil {
		return err
	}
	w.blocks = w.blocks[:len(w.blocks)-1]
	return nil
}

// PatchLen fills the innermost block's reserved length field with its
// current length, leaving the block open. It fails like End.
func (w *Writer) PatchLen(b Block) error {
	top := w.top()
	if len(w.blocks) == 1 || top.id != b.id {
		return fmt.Errorf("%w: ending block at 0x%x, innermost is 0x%x", ErrBlockMismatch, b.start, top.start)
	}
	if top.pending > 0 {
		return &UnresolvedReferenceError{Slot: w.firstPending(top), BlockStart: top.start, Pending: top.pending}
	}
	if top.lenSlot >= 0 {
		n, err := sizing.ToUint32(len(w.buf)-top.start, ErrOffsetOverflow)
		if err != nil {
			return err
		}
		binary.BigEndian.PutUint32(w.buf[top.lenSlot:], n)
	}
	return nil
}

// AlignAndEnd pads to a multiple of n from the block start and ends the block.
func (w *Writer) AlignAndEnd(b Block, n int) error {
	w.Align(n)
	return w.End(b)
}

func (w *Writer) firstPending(b *writeBlock) int {
	for _, m := range w.marks {
		if m.owner == b && !m.resolved {
			return m.pos
		}
	}
	return -1
}

// MarkLen reserves a u32 at the cursor that End fills with the innermost
// block's final length.
func (w *Writer) MarkLen() {
	w.top().lenSlot = len(w.buf)
	w.U32(0)
}

// Mark reserves n consecutive 4-byte offset fields owned by the innermost block.
func (w *Writer) Mark(n int) []Mark {
	return w.mark(w.top(), n)
}

// MarkOwned reserves n offset fields whose resolution deadline is the end of
// owner rather than the innermost block. Relative offsets are still measured
// from the innermost block start.
//
// This is used for links that outlive the structure holding them, such as
// folder data references and sibling links between bones.
func (w *Writer) MarkOwned(owner Block, n int) ([]Mark, error) {
	ob := w.lookup(owner)
	if ob == nil {
		return nil, fmt.Errorf("%w: owner block at 0x%x is not open", ErrBlockMismatch, owner.start)
	}
	return w.mark(ob, n), nil
}

func (w *Writer) mark(owner *writeBlock, n int) []Mark {
	base := w.top().start
	out := make([]Mark, n)
	for i := range n {
		out[i] = Mark{idx: len(w.marks)}
		w.marks = append(w.marks, markState{pos: len(w.buf), base: base, owner: owner})
		owner.pending++
		w.U32(0)
	}
	return out
}

// Resolved reports whether a mark has been patched.
func (w *Writer) Resolved(m Mark) bool {
	return w.marks[m.idx].resolved
}

// MarkPos returns the position of a mark's reserved field.
func (w *Writer) MarkPos(m Mark) int {
	return w.marks[m.idx].pos
}

// CreateRef patches a mark with the cursor position measured per kind.
func (w *Writer) CreateRef(m Mark, kind RefKind) error {
	return w.CreateRefTo(m, kind, len(w.buf))
}

// CreateRefTo patches a mark with an explicit absolute target measured per kind.
func (w *Writer) CreateRefTo(m Mark, kind RefKind, target int) error {
	if m.idx < 0 || m.idx >= len(w.marks) {
		return fmt.Errorf("brres: invalid mark %d", m.idx)
	}
	st := &w.marks[m.idx]
	var v int
	switch kind {
	case RefAbsolute:
		v = target
	case RefBlock:
		v = target - st.base
	case RefField:
		v = target - st.pos
	default:
		return fmt.Errorf("brres: unknown reference kind %d", kind)
	}
	return w.resolve(st, v)
}

// ResolveNull resolves a mark whose target does not exist, leaving zero in its field.
func (w *Writer) ResolveNull(m Mark) error {
	if m.idx < 0 || m.idx >= len(w.marks) {
		return fmt.Errorf("brres: invalid mark %d", m.idx)
	}
	return w.resolve(&w.marks[m.idx], 0)
}

func (w *Writer) resolve(st *markState, v int) error {
	if st.resolved {
		return fmt.Errorf("%w: slot 0x%x", ErrAlreadyResolved, st.pos)
	}
	iv, err := sizing.ToInt32(v, ErrOffsetOverflow)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(w.buf[st.pos:], uint32(iv)) //nolint:gosec // two's complement reinterpretation
	st.resolved = true
	st.owner.pending--
	return nil
}

// Write appends fixed-width values in big-endian order.
//
// Supported values are those accepted by encoding/binary: integers,
// float32, and arrays, slices or structs of them.
func (w *Writer) Write(values ...any) error {
	for _, v := range values {
		out, err := binary.Append(w.buf, binary.BigEndian, v)
		if err != nil {
			return fmt.Errorf("encode %T at 0x%x: %w", v, len(w.buf), err)
		}
		w.buf = out
	}
	return nil
}

// U8 appends one byte.
func (w *Writer) U8(v uint8) {
	w.buf = append(w.buf, v)
}

// U16 appends a big-endian uint16.
func (w *Writer) U16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

// U32 appends a big-endian uint32.
func (w *Writer) U32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

// I32 appends a big-endian int32.
func (w *Writer) I32(v int32) {
	w.U32(uint32(v)) //nolint:gosec // two's complement reinterpretation
}

// F32 appends a big-endian IEEE-754 float32.
func (w *Writer) F32(v float32) {
	w.U32(math.Float32bits(v))
}

// Raw appends bytes verbatim.
func (w *Writer) Raw(p []byte) {
	w.buf = append(w.buf, p...)
}

// WriteMagic appends a 4-byte tag.
func (w *Writer) WriteMagic(magic string) error {
	if len(magic) != 4 {
		return fmt.Errorf("brres: magic %q is not 4 bytes", magic)
	}
	w.buf = append(w.buf, magic...)
	return nil
}

// WriteOuterOffset appends the signed distance from the innermost block to
// its parent block.
func (w *Writer) WriteOuterOffset() {
	parent := 0
	if len(w.blocks) > 2 {
		parent = w.blocks[len(w.blocks)-2].start
	}
	w.I32(int32(parent - w.top().start)) //nolint:gosec // bounded by buffer size
}

// Advance appends n zero bytes for reserved fields.
func (w *Writer) Advance(n int) {
	w.buf = append(w.buf, make([]byte, n)...)
}

// Align zero-fills to the next multiple of n measured from the innermost block start.
func (w *Writer) Align(n int) {
	w.Advance(padding(len(w.buf)-w.top().start, n))
}

// AlignAbs zero-fills to the next multiple of n measured from the buffer start.
func (w *Writer) AlignAbs(n int) {
	w.Advance(padding(len(w.buf), n))
}

// StoreNameRef reserves a name field relative to the innermost block start.
// The field is patched when the name pool is written by PackNames.
// An empty name is written as a zero reference.
func (w *Writer) StoreNameRef(name string) {
	if name != "" {
		w.names[name] = append(w.names[name], nameRef{pos: len(w.buf), base: w.top().start})
	}
	w.U32(0)
}

// PackNames writes the name pool at the cursor and patches every pending
// name reference. Strings are written once each, in byte order, as a u32
// length followed by the characters and at least one zero byte of padding
// up to a 4-byte boundary. Names already placed by ReusePool are not
// written again.
func (w *Writer) PackNames() error {
	keys := make([]string, 0, len(w.names))
	for k := range w.names {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, name := range keys {
		pos, ok := w.pooled[name]
		if !ok {
			n, err := sizing.ToUint32(len(name), ErrOffsetOverflow)
			if err != nil {
				return err
			}
			w.U32(n)
			pos = len(w.buf)
			w.buf = append(w.buf, name...)
			w.Advance(padding(len(name)+1, 4) + 1)
		}
		for _, ref := range w.names[name] {
			v, err := sizing.ToInt32(pos-ref.base, ErrOffsetOverflow)
			if err != nil {
				return err
			}
			binary.BigEndian.PutUint32(w.buf[ref.pos:], uint32(v)) //nolint:gosec // two's complement reinterpretation
		}
		delete(w.names, name)
	}
	return nil
}

// ReusePool writes p, a name pool copied from another buffer, at the cursor
// and returns how many names it registered for PackNames. Zero bytes
// between entries are skipped; scanning stops at the first malformed entry.
func (w *Writer) ReusePool(p []byte) int {
	base := len(w.buf)
	w.buf = append(w.buf, p...)

	found := 0
	for i := 0; i < len(p); {
		if p[i] == 0 {
			i++
			continue
		}
		// p[i] is the first non-zero byte of a big-endian length.
		start, end, ok := -1, 0, false
		for lead := 3; lead >= 1 && !ok; lead-- {
			start = i - lead
			if start < 0 {
				continue
			}
			end, ok = poolEntry(p, start)
		}
		if !ok {
			break
		}
		name := string(p[start+4 : end])
		if _, dup := w.pooled[name]; !dup {
			w.pooled[name] = base + start + 4
			found++
		}
		i = end + padding(end-start-3, 4) + 1
	}
	return found
}

// poolEntry reports whether a well-formed pool entry starts at p[start:],
// returning the end of its characters.
func poolEntry(p []byte, start int) (int, bool) {
	if start+4 > len(p) {
		return 0, false
	}
	n := int(binary.BigEndian.Uint32(p[start:]))
	if n == 0 || n > len(p)-start-4 {
		return 0, false
	}
	end := start + 4 + n
	next := end + padding(n+1, 4) + 1
	if next > len(p) || bytes.IndexByte(p[start+4:end], 0) >= 0 {
		return 0, false
	}
	for _, c := range p[end:next] {
		if c != 0 {
			return 0, false
		}
	}
	return end, true
}

// Pending returns the number of unresolved marks and name references.
func (w *Writer) Pending() int {
	n := 0
	for _, b := range w.blocks {
		n += b.pending
	}
	for _, refs := range w.names {
		n += len(refs)
	}
	return n
}

// Bytes returns the finished buffer.
//
// Bytes fails if any block besides the buffer itself is open, or if any mark
// or name reference is still unresolved.
func (w *Writer) Bytes() ([]byte, error) {
	if len(w.blocks) > 1 {
		return nil, fmt.Errorf("%w: %d blocks still open", ErrBlockMismatch, len(w.blocks)-1)
	}
	if root := w.blocks[0]; root.pending > 0 {
		return nil, &UnresolvedReferenceError{Slot: w.firstPending(root), BlockStart: 0, Pending: root.pending}
	}
	if len(w.names) > 0 {
		first, count := -1, 0
		for _, refs := range w.names {
			for _, ref := range refs {
				if first < 0 || ref.pos < first {
					first = ref.pos
				}
				count++
			}
		}
		return nil, &UnresolvedReferenceError{Slot: first, BlockStart: -1, Pending: count}
	}
	return w.buf, nil
}
