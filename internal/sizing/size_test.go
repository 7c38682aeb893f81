package sizing

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOverflow = errors.New("overflow")

func TestConversions(t *testing.T) {
	t.Parallel()

	v32, err := ToInt32(-0x80, errOverflow)
	require.NoError(t, err)
	assert.Equal(t, int32(-0x80), v32)
	_, err = ToInt32(math.MaxInt32+1, errOverflow)
	assert.ErrorIs(t, err, errOverflow)

	u32, err := ToUint32(0xFC, errOverflow)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xFC), u32)
	_, err = ToUint32(-1, errOverflow)
	assert.ErrorIs(t, err, errOverflow)

	u16, err := ToUint16(math.MaxUint16, errOverflow)
	require.NoError(t, err)
	assert.Equal(t, uint16(math.MaxUint16), u16)
	_, err = ToUint16(math.MaxUint16+1, errOverflow)
	assert.ErrorIs(t, err, errOverflow)
}

func TestReadAllWithLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		limit   uint64
		wantErr bool
	}{
		{name: "no limit", input: "abcdef", limit: 0},
		{name: "exact", input: "abcd", limit: 4},
		{name: "under", input: "ab", limit: 4},
		{name: "over", input: "abcde", limit: 4, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ReadAllWithLimit(strings.NewReader(tt.input), tt.limit, errOverflow)
			if tt.wantErr {
				assert.ErrorIs(t, err, errOverflow)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, string(got))
		})
	}
}
