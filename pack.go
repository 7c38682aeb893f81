package brres

import (
	"fmt"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/brres/internal/binfile"
	"github.com/meigma/brres/internal/sizing"
	"github.com/meigma/brres/internal/storage"
)

// group is one category folder and the sub-files it indexes.
type group struct {
	folder   string
	subfiles []Subfile
}

// groups collects sub-files per category in pack order.
func (b *Brres) groups(cfg *packConfig) ([]group, error) {
	byFolder := make(map[string][]Subfile, folderCategories)
	for _, s := range b.Subfiles() {
		f := folderForMagic[s.Magic()]
		byFolder[f] = append(byFolder[f], s)
	}
	for _, o := range b.Opaque {
		switch {
		case cfg.dropOpaque:
			b.log().Warn("dropping opaque sub-file", "folder", o.Folder, "name", o.Name, "magic", o.Tag)
			continue
		case !o.Relocatable():
			return nil, fmt.Errorf("%s %q: %w", o.Tag, o.Name, ErrOpaqueSubfile)
		}
		byFolder[o.Folder] = append(byFolder[o.Folder], o)
	}

	var out []group
	for _, name := range b.Folders() {
		if subs := byFolder[name]; len(subs) > 0 {
			out = append(out, group{folder: name, subfiles: subs})
		}
	}
	return out, nil
}

// Pack encodes the container.
//
// The layout is the header, the root section holding the root index and one
// folder per category, every sub-file starting on a 0x20 boundary, and
// finally the name pool. Opaque sub-files follow the typed ones together
// with the name pool of the file they were loaded from, which new names
// are appended to.
func (b *Brres) Pack(opts ...PackOption) ([]byte, error) {
	cfg := &packConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	groups, err := b.groups(cfg)
	if err != nil {
		return nil, err
	}
	return b.packGroups(groups)
}

func (b *Brres) packGroups(groups []group) ([]byte, error) {
	count := 1
	for _, g := range groups {
		count += len(g.subfiles)
	}
	sections, err := sizing.ToUint16(count, ErrTooManySubfiles)
	if err != nil {
		return nil, err
	}

	w := binfile.NewWriter()
	file := w.Start()
	if err := w.WriteMagic(Magic); err != nil {
		return nil, err
	}
	w.U16(byteOrderMark)
	w.U16(0)
	w.MarkLen()
	w.U16(headerSize)
	w.U16(sections)

	folders, err := packRoot(w, file, groups)
	if err != nil {
		return nil, err
	}

	var opaque []placedOpaque
	for i, g := range groups {
		for _, s := range g.subfiles {
			if o, ok := s.(*Opaque); ok {
				opaque = append(opaque, placedOpaque{folder: folders[i], o: o})
				continue
			}
			w.AlignAbs(subfileAlign)
			if err := folders[i].CreateEntryRef(w, s.SubfileName()); err != nil {
				return nil, err
			}
			start := w.Offset()
			if err := s.Pack(w); err != nil {
				return nil, fmt.Errorf("%s %q: %w", s.Magic(), s.SubfileName(), err)
			}
			b.log().Debug("encoded sub-file", "folder", g.folder, "name", s.SubfileName(), "offset", start, "size", w.Offset()-start)
		}
	}

	if err := b.packOpaque(w, opaque); err != nil {
		return nil, err
	}

	if err := w.PackNames(); err != nil {
		return nil, err
	}
	if err := w.End(file); err != nil {
		return nil, err
	}
	return w.Bytes()
}

// packRoot writes the root section. Category folder entries are owned by
// the file block because the sub-files they point at follow the section.
func packRoot(w *binfile.Writer, file binfile.Block, groups []group) ([]*binfile.Folder, error) {
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.folder
	}
	root, err := binfile.FolderOf(names...)
	if err != nil {
		return nil, err
	}

	blk := w.Start()
	if err := w.WriteMagic(rootMagic); err != nil {
		return nil, err
	}
	w.MarkLen()
	if err := root.Pack(w); err != nil {
		return nil, err
	}

	folders := make([]*binfile.Folder, len(groups))
	for i, g := range groups {
		if err := root.CreateEntryRef(w, g.folder); err != nil {
			return nil, err
		}
		entries := make([]string, len(g.subfiles))
		for j, s := range g.subfiles {
			entries[j] = s.SubfileName()
		}
		f, err := binfile.FolderOf(entries...)
		if err != nil {
			return nil, fmt.Errorf("folder %q: %w", g.folder, err)
		}
		if err := f.PackOwned(w, file); err != nil {
			return nil, err
		}
		folders[i] = f
	}
	w.AlignAbs(subfileAlign)
	if err := w.End(blk); err != nil {
		return nil, err
	}
	return folders, nil
}

// Save packs the container and atomically writes it to its path.
// On success the modified flag is cleared. The write is skipped when the
// packed bytes and compression match the file as last read or written.
func (b *Brres) Save(opts ...SaveOption) error {
	return b.SaveAs(b.path, opts...)
}

// SaveAs packs the container and atomically writes it to path, which
// becomes the container's path.
func (b *Brres) SaveAs(path string, opts ...SaveOption) error {
	cfg := &saveConfig{compression: b.compression}
	for _, opt := range opts {
		opt(cfg)
	}
	data, err := b.Pack(cfg.pack...)
	if err != nil {
		return err
	}
	d := digest.FromBytes(data)
	if path == b.path && cfg.compression == b.compression && d == b.digest {
		b.log().Debug("container unchanged, skipping write", "path", path, "digest", d)
		b.modified = false
		return nil
	}
	if err := storage.Save(path, data, cfg.compression); err != nil {
		return err
	}
	b.log().Info("saved container", "path", path, "size", len(data), "compression", cfg.compression, "digest", d)
	b.path = path
	b.digest = d
	b.compression = cfg.compression
	b.modified = false
	return nil
}
