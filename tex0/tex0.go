// Package tex0 encodes and decodes TEX0 texture sub-files.
//
// Pixel data is carried verbatim in its GX encoding. Only the geometry of the
// encoding is interpreted, to validate that the image data has the size its
// header declares.
package tex0

import (
	"errors"
	"fmt"
	"math"

	"github.com/meigma/brres/internal/binfile"
	"github.com/meigma/brres/internal/frame"
)

var (
	// ErrInvalidImageSize is returned when image data does not match the
	// size implied by dimensions, format, and mipmap count.
	ErrInvalidImageSize = errors.New("brres: invalid image size")

	// ErrUnknownFormat is returned for an unrecognised GX format.
	ErrUnknownFormat = errors.New("brres: unknown texture format")
)

// DefaultVersion is the TEX0 version written for new textures.
const DefaultVersion = 3

// headerSize is the offset of the image data from the sub-file start.
const headerSize = 0x40

// Texture is a decoded TEX0 sub-file.
type Texture struct {
	Name     string
	Version  uint32
	Paletted bool
	Width    uint16
	Height   uint16
	Format   Format
	Images   uint32 // base level plus mipmaps
	MinLOD   float32
	MaxLOD   float32
	Data     []byte
}

// New creates a texture from encoded image data.
// The LOD range covers all supplied images.
func New(name string, width, height uint16, format Format, images int, data []byte) (*Texture, error) {
	if images < 1 || images > math.MaxUint8 {
		return nil, fmt.Errorf("%w: %d images", ErrInvalidImageSize, images)
	}
	t := &Texture{
		Name:     name,
		Version:  DefaultVersion,
		Paletted: format.Paletted(),
		Width:    width,
		Height:   height,
		Format:   format,
		Images:   uint32(images),
		MaxLOD:   float32(images - 1),
		Data:     data,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Magic returns the sub-file tag.
func (t *Texture) Magic() string { return frame.MagicTEX0 }

// SubfileName returns the texture name.
func (t *Texture) SubfileName() string { return t.Name }

// Mipmaps returns the number of images below the base level.
func (t *Texture) Mipmaps() int {
	if t.Images == 0 {
		return 0
	}
	return int(t.Images) - 1
}

// DataSize returns the expected size of the image data.
func (t *Texture) DataSize() (int, error) {
	return t.Format.ImageSize(int(t.Width), int(t.Height), int(t.Images))
}

// Validate checks the image data against the header geometry.
func (t *Texture) Validate() error {
	want, err := t.DataSize()
	if err != nil {
		return fmt.Errorf("texture %q: %w", t.Name, err)
	}
	if len(t.Data) != want {
		return fmt.Errorf("texture %q: %w: have %d bytes, want %d", t.Name, ErrInvalidImageSize, len(t.Data), want)
	}
	return nil
}

// Pack writes the texture at the cursor.
func (t *Texture) Pack(w *binfile.Writer) error {
	if err := t.Validate(); err != nil {
		return err
	}
	fw, err := frame.Pack(w, frame.MagicTEX0, t.Version, t.Name)
	if err != nil {
		return err
	}
	var paletted uint32
	if t.Paletted {
		paletted = 1
	}
	if err := w.Write(paletted, t.Width, t.Height, uint32(t.Format), t.Images, t.MinLOD, t.MaxLOD); err != nil {
		return err
	}
	w.Align(headerSize)
	if err := fw.Section(0); err != nil {
		return err
	}
	for i := 1; i < fw.Sections(); i++ {
		if err := fw.SectionNull(i); err != nil {
			return err
		}
	}
	w.Raw(t.Data)
	return fw.Close()
}

// Unpack decodes a texture at the cursor, leaving the cursor after it.
// A version 2 texture with user data fails with frame.ErrUnsupportedSection.
func Unpack(r *binfile.Reader) (*Texture, error) {
	fr, err := frame.Unpack(r, frame.MagicTEX0)
	if err != nil {
		return nil, err
	}
	if err := fr.RequireAbsent(1); err != nil {
		return nil, err
	}
	t := &Texture{Name: fr.Name, Version: fr.Version}
	var paletted, format uint32
	if err := r.Read(&paletted, &t.Width, &t.Height, &format, &t.Images, &t.MinLOD, &t.MaxLOD); err != nil {
		return nil, fmt.Errorf("texture %q header: %w", t.Name, err)
	}
	t.Paletted = paletted != 0
	t.Format = Format(format)

	size, err := t.DataSize()
	if err != nil {
		return nil, fmt.Errorf("texture %q: %w", t.Name, err)
	}
	pos, err := fr.Recall()
	if err != nil {
		return nil, err
	}
	if pos == 0 {
		return nil, fmt.Errorf("texture %q: %w: no image data", t.Name, ErrInvalidImageSize)
	}
	if pos+size > fr.End() {
		return nil, fmt.Errorf("texture %q: %w: data runs past sub-file end", t.Name, ErrInvalidImageSize)
	}
	data, err := r.Bytes(size)
	if err != nil {
		return nil, err
	}
	t.Data = append([]byte(nil), data...)
	if err := fr.Close(); err != nil {
		return nil, err
	}
	return t, nil
}
