package brres

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/brres/clr0"
	"github.com/meigma/brres/internal/binfile"
	"github.com/meigma/brres/internal/frame"
	"github.com/meigma/brres/internal/storage"
	"github.com/meigma/brres/mdl0"
	"github.com/meigma/brres/tex0"
)

// Magic is the tag at the start of every container file.
const Magic = "bres"

// Category folder names of the root index.
const (
	FolderModels     = "3DModels(NW4R)"
	FolderTextures   = "Textures(NW4R)"
	FolderAnmChr     = "AnmChr(NW4R)"
	FolderAnmClr     = "AnmClr(NW4R)"
	FolderAnmTexSrt  = "AnmTexSrt(NW4R)"
	FolderAnmTexPat  = "AnmTexPat(NW4R)"
	FolderAnmScn     = "AnmScn(NW4R)"
	FolderAnmShp     = "AnmShp(NW4R)"
	FolderAnmVis     = "AnmVis(NW4R)"
	folderCategories = 9
)

// defaultFolderOrder is the order of categories in a newly created container.
var defaultFolderOrder = [folderCategories]string{
	FolderModels,
	FolderTextures,
	FolderAnmChr,
	FolderAnmClr,
	FolderAnmTexSrt,
	FolderAnmTexPat,
	FolderAnmScn,
	FolderAnmShp,
	FolderAnmVis,
}

// folderForMagic maps a sub-file tag to the category folder that holds it.
var folderForMagic = map[string]string{
	frame.MagicMDL0: FolderModels,
	frame.MagicTEX0: FolderTextures,
	frame.MagicCHR0: FolderAnmChr,
	frame.MagicCLR0: FolderAnmClr,
	frame.MagicSRT0: FolderAnmTexSrt,
	frame.MagicPAT0: FolderAnmTexPat,
	frame.MagicSCN0: FolderAnmScn,
	frame.MagicSHP0: FolderAnmShp,
	frame.MagicVIS0: FolderAnmVis,
}

// FolderFor returns the category folder that holds sub-files tagged magic.
func FolderFor(magic string) (string, bool) {
	f, ok := folderForMagic[magic]
	return f, ok
}

// Sentinel errors for container operations.
var (
	// ErrOpaqueSubfile is returned when packing an opaque sub-file that was
	// not loaded from a container, or whose data was resized.
	ErrOpaqueSubfile = errors.New("brres: opaque sub-file cannot be repacked")

	// ErrUnsupportedSubfile is returned for a sub-file tag with no typed codec.
	ErrUnsupportedSubfile = errors.New("brres: unsupported sub-file type")

	// ErrInvalidHeader is returned when the container header is malformed.
	ErrInvalidHeader = errors.New("brres: invalid container header")

	// ErrNotFound is returned when a named sub-file does not exist.
	ErrNotFound = errors.New("brres: sub-file not found")

	// ErrTooManySubfiles is returned when the section count overflows its field.
	ErrTooManySubfiles = errors.New("brres: too many sub-files")
)

// Subfile is a sub-file that can be packed into a container.
type Subfile interface {
	// SubfileName is the folder entry name.
	SubfileName() string
	// Magic is the 4-byte type tag.
	Magic() string
	// Pack writes the complete sub-file at the cursor.
	Pack(w *binfile.Writer) error
}

// Compile-time interface implementation checks.
var (
	_ Subfile = (*mdl0.Model)(nil)
	_ Subfile = (*tex0.Texture)(nil)
	_ Subfile = (*clr0.Animation)(nil)
	_ Subfile = (*Opaque)(nil)
)

// Opaque is a sub-file kept as raw bytes because no typed codec accepted it.
//
// An Opaque loaded from a container is written back by Pack together with
// the rest of the file it came from, so its internal references keep
// pointing at the names they were read with. Data must not be resized.
type Opaque struct {
	Folder  string
	Name    string
	Tag     string
	Version uint32
	Data    []byte // the sub-file from its tag to its declared end
	Reason  error  // why the typed decode was skipped

	src *origin // nil when not loaded from a container
	rel int     // offset of Data from src.start
}

// Magic implements Subfile.
func (o *Opaque) Magic() string { return o.Tag }

// SubfileName implements Subfile.
func (o *Opaque) SubfileName() string { return o.Name }

// Relocatable reports whether the container can write o back.
func (o *Opaque) Relocatable() bool {
	return o.src != nil && len(o.Data) == o.size()
}

func (o *Opaque) size() int {
	if o.src == nil {
		return -1
	}
	return o.src.sizes[o.rel]
}

// Pack implements Subfile. An opaque sub-file cannot be written on its own
// and always fails with ErrOpaqueSubfile; the container writes it instead.
func (o *Opaque) Pack(*binfile.Writer) error {
	return fmt.Errorf("%s %q: %w", o.Tag, o.Name, ErrOpaqueSubfile)
}

// Brres is an in-memory container.
//
// Sub-files keep the order they were loaded or added in, and categories
// keep the order of the root index they were loaded from. Brres is not safe
// for concurrent use; share containers through a registry instead.
type Brres struct {
	Models     []*mdl0.Model
	Textures   []*tex0.Texture
	ColorAnims []*clr0.Animation
	Opaque     []*Opaque

	path        string
	folders     []string // category order read from the root index
	modified    bool
	digest      digest.Digest // of the decoded file as last read or written
	compression storage.Compression
	maxFileSize uint64
	strict      bool
	logger      *slog.Logger
}

// log returns the logger, falling back to a discard logger if nil.
func (b *Brres) log() *slog.Logger {
	if b.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.logger
}

// New creates an empty container that saves to path.
func New(path string, opts ...Option) *Brres {
	b := &Brres{
		path:        path,
		maxFileSize: storage.DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Path returns the file the container was loaded from or will be saved to.
func (b *Brres) Path() string {
	return b.path
}

// Compression returns the compression the container was loaded with, which
// is also the default for Save.
func (b *Brres) Compression() Compression {
	return b.compression
}

// Digest returns the digest of the decoded container bytes as last read
// from or written to its file. It is empty for a container that has never
// touched disk.
func (b *Brres) Digest() digest.Digest {
	return b.digest
}

// Modified reports whether the container changed since it was loaded or saved.
func (b *Brres) Modified() bool {
	return b.modified
}

// MarkModified flags the container as changed. Edits made directly to
// sub-file values are not tracked and must be flagged by the caller.
func (b *Brres) MarkModified() {
	b.modified = true
}

// MarkUnmodified clears the modified flag.
func (b *Brres) MarkUnmodified() {
	b.modified = false
}

// Folders returns the category folders in the order they will be packed.
// Empty categories are omitted.
func (b *Brres) Folders() []string {
	present := make(map[string]bool, folderCategories)
	for _, s := range b.Subfiles() {
		present[folderForMagic[s.Magic()]] = true
	}
	for _, o := range b.Opaque {
		present[o.Folder] = true
	}

	out := make([]string, 0, len(present))
	for _, name := range b.folders {
		if present[name] && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	for _, name := range defaultFolderOrder {
		if present[name] && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	for _, o := range b.Opaque {
		if !slices.Contains(out, o.Folder) {
			out = append(out, o.Folder)
		}
	}
	return out
}

// Subfiles returns every typed sub-file in pack order, excluding opaque ones.
func (b *Brres) Subfiles() []Subfile {
	out := make([]Subfile, 0, len(b.Models)+len(b.Textures)+len(b.ColorAnims))
	for _, m := range b.Models {
		out = append(out, m)
	}
	for _, t := range b.Textures {
		out = append(out, t)
	}
	for _, a := range b.ColorAnims {
		out = append(out, a)
	}
	return out
}

// Len returns the number of sub-files including opaque ones.
func (b *Brres) Len() int {
	return len(b.Models) + len(b.Textures) + len(b.ColorAnims) + len(b.Opaque)
}

// Model returns the model named name.
func (b *Brres) Model(name string) (*mdl0.Model, bool) {
	i := slices.IndexFunc(b.Models, func(m *mdl0.Model) bool { return m.Name == name })
	if i < 0 {
		return nil, false
	}
	return b.Models[i], true
}

// AddModel adds m, replacing any model with the same name in place.
func (b *Brres) AddModel(m *mdl0.Model) {
	b.modified = true
	if i := slices.IndexFunc(b.Models, func(x *mdl0.Model) bool { return x.Name == m.Name }); i >= 0 {
		b.Models[i] = m
		return
	}
	b.Models = append(b.Models, m)
}

// RemoveModel deletes the named model and reports whether it existed.
func (b *Brres) RemoveModel(name string) bool {
	n := len(b.Models)
	b.Models = slices.DeleteFunc(b.Models, func(m *mdl0.Model) bool { return m.Name == name })
	if len(b.Models) == n {
		return false
	}
	b.modified = true
	return true
}

func checkName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > binfile.MaxNameLen {
		return fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(name))
	}
	return nil
}

// RenameModel renames a model. The new name must not be in use.
func (b *Brres) RenameModel(from, to string) error {
	m, ok := b.Model(from)
	if !ok {
		return fmt.Errorf("model %q: %w", from, ErrNotFound)
	}
	if from == to {
		return nil
	}
	if err := checkName(to); err != nil {
		return err
	}
	if _, ok := b.Model(to); ok {
		return &DuplicateEntryError{Name: to}
	}
	m.Name = to
	b.modified = true
	return nil
}

// Texture returns the texture named name.
func (b *Brres) Texture(name string) (*tex0.Texture, bool) {
	i := slices.IndexFunc(b.Textures, func(t *tex0.Texture) bool { return t.Name == name })
	if i < 0 {
		return nil, false
	}
	return b.Textures[i], true
}

// TextureNames returns the texture names in order.
func (b *Brres) TextureNames() []string {
	out := make([]string, len(b.Textures))
	for i, t := range b.Textures {
		out[i] = t.Name
	}
	return out
}

// AddTexture adds t. An existing texture with the same name is replaced in
// place when replace is set; otherwise AddTexture leaves the container
// unchanged and returns false.
func (b *Brres) AddTexture(t *tex0.Texture, replace bool) bool {
	if i := slices.IndexFunc(b.Textures, func(x *tex0.Texture) bool { return x.Name == t.Name }); i >= 0 {
		if !replace {
			return false
		}
		b.log().Debug("replacing texture", "name", t.Name)
		b.Textures[i] = t
		b.modified = true
		return true
	}
	b.Textures = append(b.Textures, t)
	b.modified = true
	return true
}

// RemoveTexture deletes the named texture and reports whether it existed.
func (b *Brres) RemoveTexture(name string) bool {
	n := len(b.Textures)
	b.Textures = slices.DeleteFunc(b.Textures, func(t *tex0.Texture) bool { return t.Name == name })
	if len(b.Textures) == n {
		b.log().Warn("no texture to remove", "name", name, "path", b.path)
		return false
	}
	b.modified = true
	return true
}

// RenameTexture renames a texture. The new name must not be in use.
func (b *Brres) RenameTexture(from, to string) error {
	t, ok := b.Texture(from)
	if !ok {
		return fmt.Errorf("texture %q: %w", from, ErrNotFound)
	}
	if from == to {
		return nil
	}
	if err := checkName(to); err != nil {
		return err
	}
	if _, ok := b.Texture(to); ok {
		return &DuplicateEntryError{Name: to}
	}
	t.Name = to
	b.modified = true
	return nil
}

// ColorAnim returns the color animation named name.
func (b *Brres) ColorAnim(name string) (*clr0.Animation, bool) {
	i := slices.IndexFunc(b.ColorAnims, func(a *clr0.Animation) bool { return a.Name == name })
	if i < 0 {
		return nil, false
	}
	return b.ColorAnims[i], true
}

// AddColorAnim adds a, replacing any animation with the same name in place.
func (b *Brres) AddColorAnim(a *clr0.Animation) {
	b.modified = true
	if i := slices.IndexFunc(b.ColorAnims, func(x *clr0.Animation) bool { return x.Name == a.Name }); i >= 0 {
		b.ColorAnims[i] = a
		return
	}
	b.ColorAnims = append(b.ColorAnims, a)
}

// RemoveColorAnim deletes the named animation and reports whether it existed.
func (b *Brres) RemoveColorAnim(name string) bool {
	n := len(b.ColorAnims)
	b.ColorAnims = slices.DeleteFunc(b.ColorAnims, func(a *clr0.Animation) bool { return a.Name == name })
	if len(b.ColorAnims) == n {
		return false
	}
	b.modified = true
	return true
}

// DropOpaque discards every opaque sub-file and returns how many were removed.
func (b *Brres) DropOpaque() int {
	n := len(b.Opaque)
	if n > 0 {
		b.Opaque = nil
		b.modified = true
	}
	return n
}
