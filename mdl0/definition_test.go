package mdl0

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInstructions(t *testing.T) {
	t.Parallel()

	code := []byte{
		OpNodeTree, 0, 0, 0, 0,
		OpNodeMix, 0, 5, 2, 0, 1, 0x3F, 0, 0, 0, 0, 2, 0x3F, 0, 0, 0,
		OpDraw, 0, 0, 0, 1, 0, 2, 9,
		OpWeight, 1, 2, 3, 4,
		OpEnd,
		0xAA, // trailing data belongs to the next structure
	}
	ins, n, err := ParseInstructions(code)
	require.NoError(t, err)
	assert.Equal(t, len(code)-1, n)
	require.Len(t, ins, 5)
	assert.Equal(t, OpNodeMix, ins[1].Op)
	assert.Len(t, ins[1].Args, 3+2*6)
	assert.Equal(t, []byte{0, 0, 0, 1, 0, 2, 9}, ins[2].Args)
	assert.Equal(t, OpEnd, ins[4].Op)

	d := Definition{Name: "x", Code: code}
	assert.ErrorIs(t, d.Validate(), ErrInvalidDefinition)
	d.Code = code[:n]
	assert.NoError(t, d.Validate())
}

func TestParseInstructionsErrors(t *testing.T) {
	t.Parallel()

	tests := map[string][]byte{
		"unknown opcode": {0x09, OpEnd},
		"missing end":    {OpNodeTree, 0, 0, 0, 0},
		"short operand":  {OpDraw, 0, 0},
		"short mix":      {OpNodeMix, 0, 0, 1, 0},
		"empty":          nil,
	}
	for name, code := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, _, err := ParseInstructions(code)
			assert.ErrorIs(t, err, ErrInvalidDefinition)
		})
	}
}

func TestNodeTree(t *testing.T) {
	t.Parallel()

	bones := []*Bone{{Name: "a", Parent: -1}, {Name: "b", Parent: 0}, {Name: "c", Parent: 1}}
	d := NodeTree(bones)
	assert.Equal(t, DefNodeTree, d.Name)
	assert.Equal(t, []byte{
		OpNodeTree, 0, 0, 0, 0,
		OpNodeTree, 0, 1, 0, 0,
		OpNodeTree, 0, 2, 0, 1,
		OpEnd,
	}, d.Code)
	assert.NoError(t, d.Validate())
}

func TestDrawList(t *testing.T) {
	t.Parallel()

	d := DrawList(DefDrawXlu, []DrawCall{{Material: 1, Object: 2, Bone: 3, Priority: 4}})
	assert.Equal(t, []byte{OpDraw, 0, 1, 0, 2, 0, 3, 4, OpEnd}, d.Code)
	assert.NoError(t, d.Validate())
}
