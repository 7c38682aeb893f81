package brres

import (
	"github.com/meigma/brres/clr0"
	"github.com/meigma/brres/internal/binfile"
	"github.com/meigma/brres/internal/frame"
	"github.com/meigma/brres/internal/storage"
	"github.com/meigma/brres/mdl0"
	"github.com/meigma/brres/tex0"
)

// Errors re-exported from the binary layer.
var (
	// ErrTruncatedData is returned when a read runs past the end of the data.
	ErrTruncatedData = binfile.ErrTruncatedData

	// ErrUnresolvedReference is returned when a packed structure closes with
	// an offset field that was never patched.
	ErrUnresolvedReference = binfile.ErrUnresolvedReference

	// ErrResolverUnderflow is returned when more section offsets are recalled than stored.
	ErrResolverUnderflow = binfile.ErrResolverUnderflow

	// ErrDuplicateEntry is returned when two entries of one folder share a name.
	ErrDuplicateEntry = binfile.ErrDuplicateEntry

	// ErrBlockMismatch is returned when nested structures are closed out of order.
	ErrBlockMismatch = binfile.ErrBlockMismatch

	// ErrAlreadyResolved is returned when an offset field is patched twice.
	ErrAlreadyResolved = binfile.ErrAlreadyResolved

	// ErrEmptyName is returned when an entry is given an empty name.
	ErrEmptyName = binfile.ErrEmptyName

	// ErrNameTooLong is returned when a name exceeds the folder tree's id range.
	ErrNameTooLong = binfile.ErrNameTooLong
)

// Errors re-exported from the sub-file frame.
var (
	// ErrMagicMismatch is returned when a tag differs from the expected type.
	ErrMagicMismatch = frame.ErrMagicMismatch

	// ErrUnsupportedVersion is returned for a sub-file version with no known layout.
	ErrUnsupportedVersion = frame.ErrUnsupportedVersion
)

// Errors re-exported from the typed sub-files.
var (
	// ErrUnsupportedSection is returned when a sub-file holds a section its
	// codec does not decode.
	ErrUnsupportedSection = frame.ErrUnsupportedSection

	// ErrInvalidImageSize is returned when texture data does not match its dimensions.
	ErrInvalidImageSize = tex0.ErrInvalidImageSize

	// ErrTrackLength is returned when a color track does not hold one color per frame.
	ErrTrackLength = clr0.ErrTrackLength
)

// Errors re-exported from storage.
var (
	// ErrFileTooLarge is returned when a container exceeds the size limit.
	ErrFileTooLarge = storage.ErrFileTooLarge

	// ErrDecompression is returned when a compressed container cannot be inflated.
	ErrDecompression = storage.ErrDecompression
)

// Error types carrying the location of a failure. Use errors.As to inspect them.
type (
	TruncatedDataError       = binfile.TruncatedDataError
	UnresolvedReferenceError = binfile.UnresolvedReferenceError
	DuplicateEntryError      = binfile.DuplicateEntryError
	MagicMismatchError       = frame.MagicMismatchError
	UnsupportedVersionError  = frame.UnsupportedVersionError
	UnsupportedSectionError  = mdl0.UnsupportedSectionError
	SectionError             = frame.SectionError
)

// Compression is the on-disk compression of a container file.
type Compression = storage.Compression

// Compression constants.
const (
	CompressionNone = storage.CompressionNone
	CompressionZstd = storage.CompressionZstd
)
