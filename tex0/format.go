package tex0

import "fmt"

// Format is a GX texture encoding.
type Format uint32

const (
	FormatI4     Format = 0x0
	FormatI8     Format = 0x1
	FormatIA4    Format = 0x2
	FormatIA8    Format = 0x3
	FormatRGB565 Format = 0x4
	FormatRGB5A3 Format = 0x5
	FormatRGBA8  Format = 0x6
	FormatC4     Format = 0x8
	FormatC8     Format = 0x9
	FormatC14X2  Format = 0xA
	FormatCMPR   Format = 0xE
)

// block describes the tile geometry of a format.
type block struct {
	width, height int
	bytes         int
}

var blocks = map[Format]block{
	FormatI4:     {8, 8, 32},
	FormatI8:     {8, 4, 32},
	FormatIA4:    {8, 4, 32},
	FormatIA8:    {4, 4, 32},
	FormatRGB565: {4, 4, 32},
	FormatRGB5A3: {4, 4, 32},
	FormatRGBA8:  {4, 4, 64},
	FormatC4:     {8, 8, 32},
	FormatC8:     {8, 4, 32},
	FormatC14X2:  {4, 4, 32},
	FormatCMPR:   {8, 8, 32},
}

// String returns the conventional name of the format.
func (f Format) String() string {
	switch f {
	case FormatI4:
		return "I4"
	case FormatI8:
		return "I8"
	case FormatIA4:
		return "IA4"
	case FormatIA8:
		return "IA8"
	case FormatRGB565:
		return "RGB565"
	case FormatRGB5A3:
		return "RGB5A3"
	case FormatRGBA8:
		return "RGBA8"
	case FormatC4:
		return "C4"
	case FormatC8:
		return "C8"
	case FormatC14X2:
		return "C14X2"
	case FormatCMPR:
		return "CMPR"
	default:
		return fmt.Sprintf("Format(0x%x)", uint32(f))
	}
}

// Valid reports whether f is a known encoding.
func (f Format) Valid() bool {
	_, ok := blocks[f]
	return ok
}

// Paletted reports whether f indexes into a palette.
func (f Format) Paletted() bool {
	return f == FormatC4 || f == FormatC8 || f == FormatC14X2
}

// ImageSize returns the encoded byte size of a width x height image with
// the given number of images (base level plus mipmaps).
func (f Format) ImageSize(width, height, images int) (int, error) {
	b, ok := blocks[f]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownFormat, f)
	}
	if width <= 0 || height <= 0 || images <= 0 {
		return 0, fmt.Errorf("%w: %dx%d with %d images", ErrInvalidImageSize, width, height, images)
	}
	total := 0
	for range images {
		cols := (width + b.width - 1) / b.width
		rows := (height + b.height - 1) / b.height
		total += cols * rows * b.bytes
		width = max(width>>1, 1)
		height = max(height>>1, 1)
	}
	return total, nil
}
