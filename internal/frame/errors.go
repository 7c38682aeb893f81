package frame

import (
	"errors"
	"fmt"
)

var (
	// ErrMagicMismatch is returned when a sub-file tag differs from the type being decoded.
	ErrMagicMismatch = errors.New("brres: magic mismatch")

	// ErrUnsupportedVersion is returned when a sub-file version has no section table.
	ErrUnsupportedVersion = errors.New("brres: unsupported version")

	// ErrInvalidState is returned when a frame operation is called out of order.
	ErrInvalidState = errors.New("brres: invalid frame state")

	// ErrUnsupportedSection is returned when a sub-file carries a section its
	// codec does not decode.
	ErrUnsupportedSection = errors.New("brres: unsupported section")
)

// MagicMismatchError reports the tag found where another was expected.
type MagicMismatchError struct {
	Offset int
	Want   string
	Got    string
}

func (e *MagicMismatchError) Error() string {
	return fmt.Sprintf("brres: magic %q at 0x%x does not match expected %q", e.Got, e.Offset, e.Want)
}

func (e *MagicMismatchError) Unwrap() error { return ErrMagicMismatch }

// UnsupportedVersionError reports a sub-file version outside its type's table.
type UnsupportedVersionError struct {
	Magic   string
	Version uint32
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("brres: %s version %d is not supported", e.Magic, e.Version)
}

func (e *UnsupportedVersionError) Unwrap() error { return ErrUnsupportedVersion }

// SectionError reports a present section that the codec does not decode.
type SectionError struct {
	Magic string
	Index int
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("brres: %s section %d is not supported", e.Magic, e.Index)
}

func (e *SectionError) Unwrap() error { return ErrUnsupportedSection }
