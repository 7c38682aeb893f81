package binfile

import (
	"fmt"

	"github.com/meigma/brres/internal/sizing"
)

const (
	// FolderHeaderSize is the byte size of a folder's length and count fields.
	FolderHeaderSize = 8

	// FolderNodeSize is the byte size of one folder node.
	FolderNodeSize = 16

	// rootID is the id of the sentinel node that heads every folder.
	rootID = 0xFFFF
)

// FolderSize returns the packed size of a folder holding n entries.
func FolderSize(n int) int {
	return FolderHeaderSize + (n+1)*FolderNodeSize
}

// FolderNode is one on-disk folder node. Node 0 is the sentinel.
type FolderNode struct {
	ID     uint16
	Flags  uint16
	Left   uint16
	Right  uint16
	Name   string
	Offset int // absolute offset of the referenced data, 0 if none
}

type folderNode struct {
	FolderNode
	bound  bool // Offset is final
	mark   Mark
	marked bool
}

// Folder is a name-keyed index of child structures.
//
// Entries keep insertion order, which is also the on-disk node order. The
// node tree (id, left, right) is rebuilt on every Pack using the same
// bit-branching scheme as the reference tool, so repacking an unchanged name
// list is byte-identical.
type Folder struct {
	nodes []*folderNode // nodes[0] is the sentinel
	index map[string]int
	next  int // next entry for CreateEntryRefNext
	start int // folder start once packed or unpacked
}

// NewFolder creates an empty folder.
func NewFolder() *Folder {
	return &Folder{
		nodes: []*folderNode{{FolderNode: FolderNode{ID: rootID}}},
		index: make(map[string]int),
		next:  1,
		start: -1,
	}
}

// FolderOf creates a folder holding names in order.
func FolderOf(names ...string) (*Folder, error) {
	f := NewFolder()
	for _, name := range names {
		if err := f.Add(name); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// MaxNameLen is the longest folder name whose tree ids fit below the root id.
const MaxNameLen = rootID >> 3

// Add registers a child by name.
func (f *Folder) Add(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrNameTooLong, len(name), MaxNameLen)
	}
	if _, ok := f.index[name]; ok {
		return &DuplicateEntryError{Name: name}
	}
	f.index[name] = len(f.nodes)
	f.nodes = append(f.nodes, &folderNode{FolderNode: FolderNode{Name: name}})
	return nil
}

// Len returns the number of entries.
func (f *Folder) Len() int {
	return len(f.nodes) - 1
}

// Names returns entry names in on-disk order.
func (f *Folder) Names() []string {
	out := make([]string, 0, f.Len())
	for _, n := range f.nodes[1:] {
		out = append(out, n.Name)
	}
	return out
}

// Offset returns the absolute data offset recorded for name.
func (f *Folder) Offset(name string) (int, bool) {
	i, ok := f.index[name]
	if !ok || !f.nodes[i].bound {
		return 0, false
	}
	return f.nodes[i].Offset, true
}

// Find looks name up by walking the node tree the way the engine does,
// following links while node ids strictly decrease. The tree exists only
// after Pack or UnpackFolder.
func (f *Folder) Find(name string) (FolderNode, bool) {
	key := []byte(name)
	prev := f.nodes[0]
	idx := int(prev.Left)
	for idx < len(f.nodes) {
		cur := f.nodes[idx]
		if cur.ID >= prev.ID {
			if idx == 0 || cur.Name != name {
				return FolderNode{}, false
			}
			return cur.FolderNode, true
		}
		prev = cur
		if idBit(key, cur.ID) {
			idx = int(cur.Right)
		} else {
			idx = int(cur.Left)
		}
	}
	return FolderNode{}, false
}

// Nodes returns a copy of all nodes including the sentinel.
func (f *Folder) Nodes() []FolderNode {
	out := make([]FolderNode, len(f.nodes))
	for i, n := range f.nodes {
		out[i] = n.FolderNode
	}
	return out
}

// Start returns the absolute offset of the folder once packed or unpacked, or -1.
func (f *Folder) Start() int {
	return f.start
}

// Bind records the final offset of an already-packed child.
// Bound entries are written directly by Pack instead of being marked.
func (f *Folder) Bind(name string, offset int) error {
	i, ok := f.index[name]
	if !ok {
		return fmt.Errorf("brres: folder has no entry %q", name)
	}
	f.nodes[i].Offset = offset
	f.nodes[i].bound = true
	return nil
}

// Pack writes the folder at the cursor.
//
// Name references are relative to the folder start. Data references of
// bound entries are written immediately; the others are marked, owned by the
// block enclosing the folder, and must be filled with CreateEntryRef or
// CreateEntryRefNext before that block ends.
func (f *Folder) Pack(w *Writer) error {
	return f.PackOwned(w, w.Current())
}

// PackOwned is Pack with the pending data references owned by owner, which
// must be open. It lets entries point past the end of the enclosing block.
func (f *Folder) PackOwned(w *Writer, owner Block) error {
	b := w.Start()
	f.start = b.Start()
	f.build()

	size, err := sizing.ToUint32(FolderSize(f.Len()), ErrOffsetOverflow)
	if err != nil {
		return err
	}
	w.U32(size)
	w.U32(uint32(f.Len())) //nolint:gosec // bounded by size above

	for i, n := range f.nodes {
		w.U16(n.ID)
		w.U16(n.Flags)
		w.U16(n.Left)
		w.U16(n.Right)
		if i == 0 {
			w.U32(0)
			w.U32(0)
			continue
		}
		w.StoreNameRef(n.Name)
		if n.bound {
			rel, err := sizing.ToInt32(n.Offset-f.start, ErrOffsetOverflow)
			if err != nil {
				return err
			}
			w.I32(rel)
			continue
		}
		marks, err := w.MarkOwned(owner, 1)
		if err != nil {
			return err
		}
		n.mark, n.marked = marks[0], true
	}
	f.next = 1
	return w.End(b)
}

// CreateEntryRef points the named entry's data reference at the cursor.
func (f *Folder) CreateEntryRef(w *Writer, name string) error {
	i, ok := f.index[name]
	if !ok {
		return fmt.Errorf("brres: folder has no entry %q", name)
	}
	n := f.nodes[i]
	if !n.marked {
		return fmt.Errorf("brres: folder entry %q has no pending reference", name)
	}
	if err := w.CreateRef(n.mark, RefBlock); err != nil {
		return fmt.Errorf("folder entry %q: %w", name, err)
	}
	n.Offset = w.Offset()
	n.bound = true
	return nil
}

// CreateEntryRefNext points the next pending entry, in insertion order, at
// the cursor and returns its name.
func (f *Folder) CreateEntryRefNext(w *Writer) (string, error) {
	for f.next < len(f.nodes) {
		n := f.nodes[f.next]
		f.next++
		if n.marked && !w.Resolved(n.mark) {
			return n.Name, f.CreateEntryRef(w, n.Name)
		}
	}
	return "", fmt.Errorf("%w: no pending folder entry", ErrResolverUnderflow)
}

// UnpackFolder reads a folder at the cursor and leaves the cursor after it.
// Entries are returned in on-disk node order with absolute data offsets.
func UnpackFolder(r *Reader) (*Folder, error) {
	b := r.Start()
	var size, count uint32
	if err := r.Read(&size, &count); err != nil {
		return nil, err
	}
	if uint64(count) > uint64(r.Remaining()/FolderNodeSize) {
		return nil, &TruncatedDataError{Offset: r.Offset(), Need: int(count) * FolderNodeSize, Have: r.Remaining()}
	}
	f := NewFolder()
	f.start = b.Start()
	for i := 0; i <= int(count); i++ {
		var hdr [4]uint16
		var nameRel, dataRel int32
		if err := r.Read(&hdr, &nameRel, &dataRel); err != nil {
			return nil, err
		}
		node := f.nodes[0]
		if i > 0 {
			name := ""
			if nameRel != 0 {
				var err error
				if name, err = r.NameAt(f.start + int(nameRel)); err != nil {
					return nil, fmt.Errorf("folder entry %d name: %w", i, err)
				}
			}
			if err := f.Add(name); err != nil {
				return nil, fmt.Errorf("folder entry %d: %w", i, err)
			}
			node = f.nodes[i]
			if dataRel != 0 {
				node.Offset = f.start + int(dataRel)
			}
			node.bound = true
		}
		node.ID, node.Flags, node.Left, node.Right = hdr[0], hdr[1], hdr[2], hdr[3]
	}
	if err := r.End(b); err != nil {
		return nil, err
	}
	return f, nil
}

// build recomputes ids and links for all entries in insertion order.
func (f *Folder) build() {
	head := f.nodes[0]
	head.ID, head.Flags, head.Left, head.Right = rootID, 0, 0, 0
	for i := 1; i < len(f.nodes); i++ {
		f.nodes[i].Flags = 0
		f.insert(i)
	}
}

// insert links entry idx into the tree rooted at the sentinel.
func (f *Folder) insert(idx int) {
	e := f.nodes[idx]
	name := []byte(e.Name)
	self := uint16(idx) //nolint:gosec // entry counts are bounded by u16 node ids
	e.ID = brresID(nil, name)
	e.Left, e.Right = self, self

	prev := f.nodes[0]
	cur := f.nodes[prev.Left]
	curIdx := prev.Left
	isRight := false

	for e.ID <= cur.ID && cur.ID < prev.ID {
		if e.ID == cur.ID {
			cname := []byte(cur.Name)
			e.ID = brresID(cname, name)
			if idBit(cname, e.ID) {
				e.Left, e.Right = self, curIdx
			} else {
				e.Left, e.Right = curIdx, self
			}
		}
		prev = cur
		isRight = idBit(name, cur.ID)
		if isRight {
			curIdx = cur.Right
		} else {
			curIdx = cur.Left
		}
		cur = f.nodes[curIdx]
	}

	if len(cur.Name) == len(name) && idBit([]byte(cur.Name), e.ID) {
		e.Right = curIdx
	} else {
		e.Left = curIdx
	}
	if isRight {
		prev.Right = self
	} else {
		prev.Left = self
	}
}

// brresID computes the branching id of subject against object.
//
// With an object shorter than the subject the id selects the highest set bit
// of the subject's last byte. Otherwise it selects the highest differing bit
// of the last differing byte. Identical prefixes yield 0xFFFF.
func brresID(object, subject []byte) uint16 {
	if len(object) < len(subject) {
		n := len(subject) - 1
		return uint16(n<<3) | highestBit(subject[n]) //nolint:gosec // name length bounded by id width
	}
	for n := len(subject) - 1; n >= 0; n-- {
		if ch := object[n] ^ subject[n]; ch != 0 {
			return uint16(n<<3) | highestBit(ch) //nolint:gosec // name length bounded by id width
		}
	}
	return rootID
}

// idBit reports the bit of name selected by id; bits past the end are zero.
func idBit(name []byte, id uint16) bool {
	i := int(id >> 3)
	return i < len(name) && (name[i]>>(id&7))&1 == 1
}

// highestBit returns the index (0-7) of the highest set bit of v, 0 for v == 0.
func highestBit(v uint8) uint16 {
	var i uint16 = 7
	for i > 0 && v&0x80 == 0 {
		i--
		v <<= 1
	}
	return i
}
