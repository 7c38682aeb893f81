// Package sizing provides safe size arithmetic and conversions to prevent overflow.
package sizing

import (
	"io"
	"math"
)

// ToInt32 converts an int displacement to int32, returning overflowErr if it doesn't fit.
func ToInt32(v int, overflowErr error) (int32, error) {
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0, overflowErr
	}
	return int32(v), nil
}

// ToUint32 converts a non-negative int to uint32, returning overflowErr if it doesn't fit.
func ToUint32(v int, overflowErr error) (uint32, error) {
	if v < 0 || uint64(v) > math.MaxUint32 {
		return 0, overflowErr
	}
	return uint32(v), nil
}

// ToUint16 converts a non-negative int to uint16, returning overflowErr if it doesn't fit.
func ToUint16(v int, overflowErr error) (uint16, error) {
	if v < 0 || v > math.MaxUint16 {
		return 0, overflowErr
	}
	return uint16(v), nil
}

// ReadAllWithLimit reads up to maxSize bytes from r.
// Returns overflowErr if more than maxSize bytes are available.
// A maxSize of 0 disables the limit.
func ReadAllWithLimit(r io.Reader, maxSize uint64, overflowErr error) ([]byte, error) {
	if maxSize == 0 {
		return io.ReadAll(r)
	}
	if maxSize > uint64(math.MaxInt-1) {
		return nil, overflowErr
	}
	limit := int64(maxSize) + 1 //nolint:gosec // checked above
	lr := &io.LimitedReader{R: r, N: limit}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) > maxSize { //nolint:gosec // len is always non-negative
		return nil, overflowErr
	}
	return data, nil
}
