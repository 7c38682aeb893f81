// Package binfile implements the cursor, field codec, and deferred reference
// resolver used to read and write Brres containers.
//
// All multi-byte fields are big-endian. A Reader and a Writer are separate
// types so that a single buffer is only ever walked in one direction.
//
// Both sides scope offsets with blocks: Start pushes a block whose start is
// the current cursor, and relative fields (names, section tables, folder
// entries) are interpreted against the innermost block.
package binfile

import (
	"encoding/binary"
	"fmt"
)

// Block is a handle to a nested region started with Start.
type Block struct {
	id    int
	start int
}

// Start returns the absolute offset at which the block begins.
func (b Block) Start() int {
	return b.start
}

// readBlock tracks a reader block and the offsets stored while it was innermost.
type readBlock struct {
	id     int
	start  int
	stored []int
}

// Reader decodes fields from an immutable byte view.
type Reader struct {
	data   []byte
	off    int
	blocks []*readBlock // blocks[0] is the buffer itself
	nextID int
}

// NewReader creates a Reader positioned at the start of data.
// The data is retained; callers must not modify it while reading.
func NewReader(data []byte) *Reader {
	return &Reader{
		data:   data,
		blocks: []*readBlock{{id: 0, start: 0}},
		nextID: 1,
	}
}

// Offset returns the absolute cursor position.
func (r *Reader) Offset() int {
	return r.off
}

// Len returns the size of the underlying buffer.
func (r *Reader) Len() int {
	return len(r.data)
}

// Remaining returns the number of bytes after the cursor.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// Seek moves the cursor to an absolute position within [0, Len()].
func (r *Reader) Seek(pos int) error {
	if pos < 0 || pos > len(r.data) {
		return &TruncatedDataError{Offset: pos, Need: 0, Have: len(r.data) - pos}
	}
	r.off = pos
	return nil
}

// Start pushes a block beginning at the cursor.
func (r *Reader) Start() Block {
	b := &readBlock{id: r.nextID, start: r.off}
	r.nextID++
	r.blocks = append(r.blocks, b)
	return Block{id: b.id, start: b.start}
}

// End pops the innermost block. Offsets stored in it and never recalled are dropped.
func (r *Reader) End(b Block) error {
	top := r.blocks[len(r.blocks)-1]
	if len(r.blocks) == 1 || top.id != b.id {
		return fmt.Errorf("%w: ending block at 0x%x, innermost is 0x%x", ErrBlockMismatch, b.start, top.start)
	}
	r.blocks = r.blocks[:len(r.blocks)-1]
	return nil
}

// BlockStart returns the start of the innermost block (0 outside any block).
func (r *Reader) BlockStart() int {
	return r.blocks[len(r.blocks)-1].start
}

// need verifies n bytes are available at the cursor.
func (r *Reader) need(n int) error {
	if n < 0 || n > len(r.data)-r.off {
		return &TruncatedDataError{Offset: r.off, Need: n, Have: len(r.data) - r.off}
	}
	return nil
}

// Read decodes fixed-width fields into the given pointers in order.
//
// Supported targets are pointers to fixed-size values accepted by
// encoding/binary: integers, float32, and arrays, slices or structs of them.
// On failure the cursor stays at the field that could not be decoded.
func (r *Reader) Read(fields ...any) error {
	for _, f := range fields {
		n := binary.Size(f)
		if n < 0 {
			return fmt.Errorf("brres: unsupported field type %T", f)
		}
		if err := r.need(n); err != nil {
			return err
		}
		if _, err := binary.Decode(r.data[r.off:r.off+n], binary.BigEndian, f); err != nil {
			return fmt.Errorf("decode %T at 0x%x: %w", f, r.off, err)
		}
		r.off += n
	}
	return nil
}

// U8 reads one byte.
func (r *Reader) U8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.data[r.off]
	r.off++
	return v, nil
}

// U16 reads a big-endian uint16.
func (r *Reader) U16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v, nil
}

// U32 reads a big-endian uint32.
func (r *Reader) U32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

// I32 reads a big-endian int32.
func (r *Reader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err //nolint:gosec // two's complement reinterpretation
}

// Bytes returns the next n bytes and advances past them.
// The returned slice aliases the reader's buffer.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.data[r.off : r.off+n : r.off+n]
	r.off += n
	return b, nil
}

// PeekMagic returns the 4-byte tag at the cursor without consuming it.
func (r *Reader) PeekMagic() (string, error) {
	if err := r.need(4); err != nil {
		return "", err
	}
	return string(r.data[r.off : r.off+4]), nil
}

// ReadMagic consumes a 4-byte tag.
func (r *Reader) ReadMagic() (string, error) {
	m, err := r.PeekMagic()
	if err != nil {
		return "", err
	}
	r.off += 4
	return m, nil
}

// Skip advances the cursor over n reserved bytes.
func (r *Reader) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.off += n
	return nil
}

// Align skips to the next multiple of n measured from the innermost block start.
func (r *Reader) Align(n int) error {
	return r.Skip(padding(r.off-r.BlockStart(), n))
}

// ReadName reads a name reference relative to the innermost block start
// and returns the referenced string. A zero reference is an empty name.
func (r *Reader) ReadName() (string, error) {
	rel, err := r.I32()
	if err != nil {
		return "", err
	}
	if rel == 0 {
		return "", nil
	}
	return r.NameAt(r.BlockStart() + int(rel))
}

// NameAt decodes the pooled string whose first character is at pos.
// The 4-byte length precedes the characters.
func (r *Reader) NameAt(pos int) (string, error) {
	if pos < 4 || pos > len(r.data) {
		return "", &TruncatedDataError{Offset: pos, Need: 4, Have: 0}
	}
	n := int(binary.BigEndian.Uint32(r.data[pos-4:]))
	if n > len(r.data)-pos {
		return "", &TruncatedDataError{Offset: pos, Need: n, Have: len(r.data) - pos}
	}
	return string(r.data[pos : pos+n]), nil
}

// Store reads n u32 offsets (relative to the innermost block) at the cursor
// and queues them, in order, for later Recall. Zero offsets stay zero.
func (r *Reader) Store(n int) error {
	b := r.blocks[len(r.blocks)-1]
	for range n {
		rel, err := r.U32()
		if err != nil {
			return err
		}
		abs := 0
		if rel != 0 {
			abs = b.start + int(rel)
		}
		b.stored = append(b.stored, abs)
	}
	return nil
}

// Recall pops the oldest stored offset of the innermost block and moves the
// cursor there. A stored zero offset is returned as 0 without moving the
// cursor. Offsets stored by enclosing blocks are not reachable until the
// inner blocks end.
func (r *Reader) Recall() (int, error) {
	b := r.blocks[len(r.blocks)-1]
	if len(b.stored) == 0 {
		return 0, fmt.Errorf("%w: no stored offset in block at 0x%x", ErrResolverUnderflow, b.start)
	}
	pos := b.stored[0]
	b.stored = b.stored[1:]
	if pos == 0 {
		return 0, nil
	}
	if err := r.Seek(pos); err != nil {
		return 0, err
	}
	return pos, nil
}

// RecallRestore is Recall that also returns a func moving the cursor back to
// where it was before the call.
func (r *Reader) RecallRestore() (int, func() error, error) {
	back := r.off
	pos, err := r.Recall()
	if err != nil {
		return 0, nil, err
	}
	return pos, func() error { return r.Seek(back) }, nil
}

// Stored returns how many offsets are waiting to be recalled across all open blocks.
func (r *Reader) Stored() int {
	n := 0
	for _, b := range r.blocks {
		n += len(b.stored)
	}
	return n
}

// padding returns the bytes needed to bring rel up to a multiple of n.
func padding(rel, n int) int {
	if n <= 1 {
		return 0
	}
	return (n - rel%n) % n
}
