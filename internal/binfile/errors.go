package binfile

import (
	"errors"
	"fmt"
)

// Sentinel errors for packing and unpacking.
var (
	// ErrTruncatedData is returned when a read runs past the end of the buffer.
	ErrTruncatedData = errors.New("brres: truncated data")

	// ErrUnresolvedReference is returned when a block or buffer is closed
	// while a reference slot is still waiting to be patched.
	ErrUnresolvedReference = errors.New("brres: unresolved reference")

	// ErrResolverUnderflow is returned by Recall when no stored offset remains.
	ErrResolverUnderflow = errors.New("brres: recall without stored offset")

	// ErrDuplicateEntry is returned when a folder already holds the name.
	ErrDuplicateEntry = errors.New("brres: duplicate folder entry")

	// ErrBlockMismatch is returned when blocks are not ended in LIFO order.
	ErrBlockMismatch = errors.New("brres: block ended out of order")

	// ErrAlreadyResolved is returned when a mark is patched twice.
	ErrAlreadyResolved = errors.New("brres: reference already resolved")

	// ErrEmptyName is returned when an empty name is added to a folder.
	ErrEmptyName = errors.New("brres: empty name")

	// ErrNameTooLong is returned when a folder name is longer than MaxNameLen.
	ErrNameTooLong = errors.New("brres: name too long")

	// ErrOffsetOverflow is returned when a displacement does not fit its field.
	ErrOffsetOverflow = errors.New("brres: offset overflow")
)

// TruncatedDataError describes a read that needed more bytes than remain.
type TruncatedDataError struct {
	Offset int // cursor position at the failed read
	Need   int
	Have   int
}

func (e *TruncatedDataError) Error() string {
	return fmt.Sprintf("brres: truncated data at 0x%x: need %d bytes, have %d", e.Offset, e.Need, e.Have)
}

func (e *TruncatedDataError) Unwrap() error { return ErrTruncatedData }

// UnresolvedReferenceError reports the first pending slot found when a block closed.
type UnresolvedReferenceError struct {
	Slot       int // position of the unpatched 4-byte field
	BlockStart int // start of the block that owned it, -1 for the name pool
	Pending    int // total unresolved slots in that scope
}

func (e *UnresolvedReferenceError) Error() string {
	if e.BlockStart < 0 {
		return fmt.Sprintf("brres: unresolved name reference at 0x%x (%d pending)", e.Slot, e.Pending)
	}
	return fmt.Sprintf("brres: unresolved reference at 0x%x in block 0x%x (%d pending)", e.Slot, e.BlockStart, e.Pending)
}

func (e *UnresolvedReferenceError) Unwrap() error { return ErrUnresolvedReference }

// DuplicateEntryError names the folder entry that was added twice.
type DuplicateEntryError struct {
	Name string
}

func (e *DuplicateEntryError) Error() string {
	return fmt.Sprintf("brres: duplicate folder entry %q", e.Name)
}

func (e *DuplicateEntryError) Unwrap() error { return ErrDuplicateEntry }
