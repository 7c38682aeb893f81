package brres

import (
	"errors"
	"fmt"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/brres/clr0"
	"github.com/meigma/brres/internal/binfile"
	"github.com/meigma/brres/internal/frame"
	"github.com/meigma/brres/internal/storage"
	"github.com/meigma/brres/mdl0"
	"github.com/meigma/brres/tex0"
)

const (
	byteOrderMark = 0xFEFF
	headerSize    = 0x10
	subfileAlign  = 0x20
	rootMagic     = "root"
)

// header is the fixed container header.
type header struct {
	length     uint32
	rootOffset uint16
	sections   uint16
}

// Open loads the container file at path. Zstd-compressed files are
// decompressed transparently and saved compressed again by default.
func Open(path string, opts ...Option) (*Brres, error) {
	b := New(path, opts...)
	data, c, err := storage.Load(path, b.maxFileSize)
	if err != nil {
		return nil, err
	}
	b.compression = c
	if err := b.unpack(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	b.digest = digest.FromBytes(data)
	b.log().Debug("opened container", "path", path, "subfiles", b.Len(), "compression", c)
	return b, nil
}

// Unpack decodes a container from memory. The path is only recorded for Save.
func Unpack(path string, data []byte, opts ...Option) (*Brres, error) {
	b := New(path, opts...)
	if err := b.unpack(data); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Brres) unpack(data []byte) error {
	r := binfile.NewReader(data)
	h, err := readHeader(r)
	if err != nil {
		return err
	}
	if err := r.Seek(int(h.rootOffset)); err != nil {
		return err
	}

	blk := r.Start()
	magic, err := r.ReadMagic()
	if err != nil {
		return err
	}
	if magic != rootMagic {
		return &MagicMismatchError{Offset: blk.Start(), Want: rootMagic, Got: magic}
	}
	if _, err := r.U32(); err != nil {
		return err
	}
	root, err := binfile.UnpackFolder(r)
	if err != nil {
		return fmt.Errorf("root index: %w", err)
	}

	last := 0
	for _, category := range root.Names() {
		off, ok := root.Offset(category)
		if !ok || off == 0 {
			continue
		}
		if err := r.Seek(off); err != nil {
			return err
		}
		folder, err := binfile.UnpackFolder(r)
		if err != nil {
			return fmt.Errorf("folder %q: %w", category, err)
		}
		b.folders = append(b.folders, category)
		for _, name := range folder.Names() {
			off, _ := folder.Offset(name)
			if err := b.unpackSubfile(data, category, name, off); err != nil {
				return err
			}
			last = max(last, subfileEnd(data, off))
		}
	}
	if err := r.End(blk); err != nil {
		return err
	}
	attachOrigin(data[:h.length], last, b.Opaque)

	if want := int(h.sections) - 1; want != b.Len() {
		b.log().Debug("section count differs from index", "header", want, "index", b.Len())
	}
	b.modified = false
	return nil
}

func readHeader(r *binfile.Reader) (header, error) {
	var h header
	magic, err := r.ReadMagic()
	if err != nil {
		return h, err
	}
	if magic != Magic {
		return h, &MagicMismatchError{Offset: 0, Want: Magic, Got: magic}
	}
	var bom, pad uint16
	if err := r.Read(&bom, &pad, &h.length, &h.rootOffset, &h.sections); err != nil {
		return h, err
	}
	if bom != byteOrderMark {
		return h, fmt.Errorf("%w: byte order mark 0x%04x", ErrInvalidHeader, bom)
	}
	if int(h.length) > r.Len() {
		return h, &TruncatedDataError{Offset: 0, Need: int(h.length), Have: r.Len()}
	}
	if h.rootOffset < headerSize || int(h.rootOffset) >= r.Len() {
		return h, fmt.Errorf("%w: root offset 0x%x", ErrInvalidHeader, h.rootOffset)
	}
	return h, nil
}

// unpackSubfile decodes one sub-file with a reader of its own, so a failed
// decode leaves no state behind and the bytes can still be kept opaque.
func (b *Brres) unpackSubfile(data []byte, category, name string, off int) error {
	r := binfile.NewReader(data)
	if err := r.Seek(off); err != nil {
		return fmt.Errorf("%s %q: %w", category, name, err)
	}
	magic, err := r.PeekMagic()
	if err != nil {
		return fmt.Errorf("%s %q: %w", category, name, err)
	}

	switch magic {
	case frame.MagicMDL0:
		var m *mdl0.Model
		if m, err = mdl0.Unpack(r); err == nil {
			b.Models = append(b.Models, m)
		}
	case frame.MagicTEX0:
		var t *tex0.Texture
		if t, err = tex0.Unpack(r); err == nil {
			b.Textures = append(b.Textures, t)
		}
	case frame.MagicCLR0:
		var a *clr0.Animation
		if a, err = clr0.Unpack(r); err == nil {
			b.ColorAnims = append(b.ColorAnims, a)
		}
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedSubfile, magic)
	}
	if err == nil {
		b.log().Debug("decoded sub-file", "folder", category, "name", name, "magic", magic)
		return nil
	}

	if b.strict || !keepOpaque(err) {
		return fmt.Errorf("%s %q: %w", category, name, err)
	}
	o, operr := newOpaque(data, category, name, off)
	if operr != nil {
		return fmt.Errorf("%s %q: %w", category, name, operr)
	}
	o.Reason = err
	b.Opaque = append(b.Opaque, o)
	b.log().Warn("keeping sub-file opaque", "folder", category, "name", name, "magic", magic, "reason", err)
	return nil
}

// keepOpaque reports whether a decode failure means "not understood" rather
// than "corrupt".
func keepOpaque(err error) bool {
	return errors.Is(err, ErrUnsupportedSubfile) ||
		errors.Is(err, ErrUnsupportedVersion) ||
		errors.Is(err, ErrUnsupportedSection)
}

func newOpaque(data []byte, category, name string, off int) (*Opaque, error) {
	r := binfile.NewReader(data)
	if err := r.Seek(off); err != nil {
		return nil, err
	}
	h, err := frame.Peek(r)
	if err != nil {
		return nil, err
	}
	if int(h.Length) > len(data)-off || h.Length < frame.HeaderSize {
		return nil, &TruncatedDataError{Offset: off, Need: int(h.Length), Have: len(data) - off}
	}
	return &Opaque{
		Folder:  category,
		Name:    name,
		Tag:     h.Magic,
		Version: h.Version,
		Data:    append([]byte(nil), data[off:off+int(h.Length)]...),
		rel:     off,
	}, nil
}
