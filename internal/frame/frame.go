// Package frame reads and writes the header shared by every Brres sub-file.
//
// A frame is the 4-byte magic, the sub-file length, the version, a signed
// offset back to the enclosing container, a version-dependent table of
// section offsets, and a name reference. All offsets in the frame are
// relative to the start of the sub-file.
package frame

import (
	"fmt"
	"slices"

	"github.com/meigma/brres/internal/binfile"
)

// Sub-file tags.
const (
	MagicMDL0 = "MDL0"
	MagicTEX0 = "TEX0"
	MagicCLR0 = "CLR0"
	MagicCHR0 = "CHR0"
	MagicSRT0 = "SRT0"
	MagicPAT0 = "PAT0"
	MagicSCN0 = "SCN0"
	MagicSHP0 = "SHP0"
	MagicVIS0 = "VIS0"
)

// HeaderSize is the byte size of the fixed frame fields before the section table.
const HeaderSize = 16

// sections maps each tag to its version -> section count table.
var sections = map[string]map[uint32]int{
	MagicMDL0: {8: 11, 9: 11, 10: 14, 11: 14},
	MagicTEX0: {1: 1, 2: 2, 3: 1},
	MagicCLR0: {3: 1, 4: 2},
	MagicCHR0: {3: 1, 5: 2},
	MagicSRT0: {4: 1, 5: 2},
	MagicPAT0: {3: 5, 4: 6},
	MagicSCN0: {4: 6, 5: 7},
	MagicSHP0: {3: 2, 4: 3},
	MagicVIS0: {3: 1, 4: 2},
}

// Known reports whether magic is a recognised sub-file tag.
func Known(magic string) bool {
	_, ok := sections[magic]
	return ok
}

// SectionCount returns the number of section offsets a sub-file of the given
// type and version carries.
func SectionCount(magic string, version uint32) (int, bool) {
	n, ok := sections[magic][version]
	return n, ok
}

// Versions returns the supported versions of magic in ascending order.
func Versions(magic string) []uint32 {
	out := make([]uint32, 0, len(sections[magic]))
	for v := range sections[magic] {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// State is a step of a frame's read or write lifecycle.
//
// Reading goes Unopened, HeaderRead, BodyDecoding, Closed. Writing goes
// HeaderWritten, BodyEncoding, LengthPatched, Closed.
type State uint8

const (
	StateUnopened State = iota
	StateHeaderRead
	StateBodyDecoding
	StateHeaderWritten
	StateBodyEncoding
	StateLengthPatched
	StateClosed
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateHeaderRead:
		return "header read"
	case StateBodyDecoding:
		return "body decoding"
	case StateHeaderWritten:
		return "header written"
	case StateBodyEncoding:
		return "body encoding"
	case StateLengthPatched:
		return "length patched"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Header holds the decoded frame fields.
type Header struct {
	Magic       string
	Length      uint32 // declared sub-file length including magic and length
	Version     uint32
	OuterOffset int32
	Sections    []int // absolute section offsets, 0 where absent
	Name        string
	Start       int // absolute offset of the sub-file
}

// Peek decodes the frame at the cursor without consuming it or validating
// the tag against an expected type. The section table is not decoded.
func Peek(r *binfile.Reader) (Header, error) {
	start := r.Offset()
	defer func() { _ = r.Seek(start) }()

	var h Header
	magic, err := r.ReadMagic()
	if err != nil {
		return h, err
	}
	h.Magic, h.Start = magic, start
	if err := r.Read(&h.Length, &h.Version, &h.OuterOffset); err != nil {
		return h, err
	}
	return h, nil
}

// Reader walks the body of a sub-file after its frame has been validated.
type Reader struct {
	Header

	r     *binfile.Reader
	block binfile.Block
	state State
}

// Unpack validates and decodes the frame at the cursor.
//
// The tag is compared before any other field is read. On failure the
// cursor is restored to the start of the sub-file. On success the section
// offsets are queued for Recall and the cursor is left after the name
// reference, inside the sub-file block that Close ends.
func Unpack(r *binfile.Reader, magic string) (*Reader, error) {
	start := r.Offset()
	got, err := r.PeekMagic()
	if err != nil {
		return nil, err
	}
	if got != magic {
		return nil, &MagicMismatchError{Offset: start, Want: magic, Got: got}
	}

	b := r.Start()
	fr := &Reader{r: r, block: b, state: StateUnopened}
	if err := fr.readHeader(magic); err != nil {
		_ = r.End(b)
		_ = r.Seek(start)
		return nil, err
	}
	fr.state = StateHeaderRead
	return fr, nil
}

func (fr *Reader) readHeader(magic string) error {
	r := fr.r
	h := &fr.Header
	h.Start = fr.block.Start()
	h.Magic = magic
	if err := r.Skip(4); err != nil {
		return err
	}
	if err := r.Read(&h.Length, &h.Version, &h.OuterOffset); err != nil {
		return err
	}
	if int(h.Length) > r.Len()-h.Start {
		return &binfile.TruncatedDataError{Offset: h.Start, Need: int(h.Length), Have: r.Len() - h.Start}
	}
	n, ok := SectionCount(magic, h.Version)
	if !ok {
		return &UnsupportedVersionError{Magic: magic, Version: h.Version}
	}

	table := r.Offset()
	rel := make([]uint32, n)
	if err := r.Read(rel); err != nil {
		return err
	}
	h.Sections = make([]int, n)
	for i, v := range rel {
		if v != 0 {
			h.Sections[i] = h.Start + int(v)
		}
	}
	if err := r.Seek(table); err != nil {
		return err
	}
	if err := r.Store(n); err != nil {
		return err
	}

	name, err := r.ReadName()
	if err != nil {
		return fmt.Errorf("%s name: %w", magic, err)
	}
	h.Name = name
	return nil
}

// State returns the lifecycle step of the frame.
func (fr *Reader) State() State {
	return fr.state
}

// End returns the absolute offset one past the sub-file's declared length.
func (fr *Reader) End() int {
	return fr.Start + int(fr.Length)
}

// RequireAbsent returns a *SectionError for the first section at index from
// or later that is present.
func (fr *Reader) RequireAbsent(from int) error {
	for i := from; i < len(fr.Sections); i++ {
		if fr.Sections[i] != 0 {
			return &SectionError{Magic: fr.Magic, Index: i}
		}
	}
	return nil
}

// Recall moves the cursor to the next stored section offset and returns it.
// An absent section returns 0 without moving the cursor.
func (fr *Reader) Recall() (int, error) {
	if fr.state != StateHeaderRead && fr.state != StateBodyDecoding {
		return 0, fmt.Errorf("%w: recall in state %s", ErrInvalidState, fr.state)
	}
	fr.state = StateBodyDecoding
	return fr.r.Recall()
}

// Body returns the bytes of the sub-file after the frame, up to its declared end.
func (fr *Reader) Body() ([]byte, error) {
	if fr.state != StateHeaderRead && fr.state != StateBodyDecoding {
		return nil, fmt.Errorf("%w: body in state %s", ErrInvalidState, fr.state)
	}
	fr.state = StateBodyDecoding
	n := fr.End() - fr.r.Offset()
	if n < 0 {
		return nil, &binfile.TruncatedDataError{Offset: fr.r.Offset(), Need: 0, Have: n}
	}
	return fr.r.Bytes(n)
}

// Close ends the sub-file block and leaves the cursor at the declared end.
func (fr *Reader) Close() error {
	if fr.state == StateClosed {
		return fmt.Errorf("%w: already closed", ErrInvalidState)
	}
	if err := fr.r.End(fr.block); err != nil {
		return err
	}
	fr.state = StateClosed
	return fr.r.Seek(fr.End())
}

// Writer emits a sub-file frame and tracks its pending section offsets.
type Writer struct {
	w        *binfile.Writer
	block    binfile.Block
	magic    string
	sections []binfile.Mark
	state    State
}

// Pack writes the frame for a sub-file at the cursor and opens the
// sub-file block. The length is patched by Close once the body is written.
func Pack(w *binfile.Writer, magic string, version uint32, name string) (*Writer, error) {
	n, ok := SectionCount(magic, version)
	if !ok {
		return nil, &UnsupportedVersionError{Magic: magic, Version: version}
	}
	b := w.Start()
	if err := w.WriteMagic(magic); err != nil {
		return nil, err
	}
	w.MarkLen()
	w.U32(version)
	w.WriteOuterOffset()
	fw := &Writer{
		w:        w,
		block:    b,
		magic:    magic,
		sections: w.Mark(n),
		state:    StateHeaderWritten,
	}
	w.StoreNameRef(name)
	return fw, nil
}

// Block returns the sub-file block handle.
func (fw *Writer) Block() binfile.Block {
	return fw.block
}

// State returns the lifecycle step of the frame.
func (fw *Writer) State() State {
	return fw.state
}

// Sections returns the number of section offsets in the frame.
func (fw *Writer) Sections() int {
	return len(fw.sections)
}

// Section points section i at the cursor.
func (fw *Writer) Section(i int) error {
	return fw.resolve(i, func(m binfile.Mark) error {
		return fw.w.CreateRef(m, binfile.RefBlock)
	})
}

// SectionNull marks section i as absent.
func (fw *Writer) SectionNull(i int) error {
	return fw.resolve(i, fw.w.ResolveNull)
}

func (fw *Writer) resolve(i int, fn func(binfile.Mark) error) error {
	if fw.state != StateHeaderWritten && fw.state != StateBodyEncoding {
		return fmt.Errorf("%w: section in state %s", ErrInvalidState, fw.state)
	}
	if i < 0 || i >= len(fw.sections) {
		return fmt.Errorf("brres: %s has no section %d", fw.magic, i)
	}
	fw.state = StateBodyEncoding
	if err := fn(fw.sections[i]); err != nil {
		return fmt.Errorf("%s section %d: %w", fw.magic, i, err)
	}
	return nil
}

// PatchLength pads the body to a multiple of n from the sub-file start and
// writes the final length. Every section must be resolved first. Nothing
// may be written to the sub-file afterwards.
func (fw *Writer) PatchLength(n int) error {
	if fw.state != StateHeaderWritten && fw.state != StateBodyEncoding {
		return fmt.Errorf("%w: patch length in state %s", ErrInvalidState, fw.state)
	}
	fw.w.Align(n)
	if err := fw.w.PatchLen(fw.block); err != nil {
		return fmt.Errorf("close %s: %w", fw.magic, err)
	}
	fw.state = StateLengthPatched
	return nil
}

// Close ends the sub-file block, patching its length if PatchLength was
// not called.
func (fw *Writer) Close() error {
	return fw.CloseAligned(1)
}

// CloseAligned pads the body to a multiple of n from the sub-file start and
// then closes it.
func (fw *Writer) CloseAligned(n int) error {
	if fw.state == StateClosed {
		return fmt.Errorf("%w: already closed", ErrInvalidState)
	}
	if fw.state != StateLengthPatched {
		if err := fw.PatchLength(n); err != nil {
			return err
		}
	}
	if err := fw.w.End(fw.block); err != nil {
		return fmt.Errorf("close %s: %w", fw.magic, err)
	}
	fw.state = StateClosed
	return nil
}
