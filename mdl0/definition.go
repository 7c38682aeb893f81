package mdl0

import (
	"encoding/binary"
	"fmt"
)

// Definition opcodes.
const (
	OpEnd      byte = 0x01
	OpNodeTree byte = 0x02
	OpNodeMix  byte = 0x03
	OpDraw     byte = 0x04
	OpWeight   byte = 0x05
	OpCopy     byte = 0x06
)

// Standard definition names.
const (
	DefNodeTree = "NodeTree"
	DefNodeMix  = "NodeMix"
	DefDrawOpa  = "DrawOpa"
	DefDrawXlu  = "DrawXlu"
)

// Definition is a named bytecode list describing the node hierarchy,
// skinning, or draw order of a model.
type Definition struct {
	Name string
	Code []byte // includes the terminating OpEnd
}

// Instruction is one decoded definition command.
type Instruction struct {
	Op   byte
	Args []byte
}

// operandSize returns the fixed operand length of op, or -1 when the length
// depends on the operands.
func operandSize(op byte) (int, error) {
	switch op {
	case OpEnd:
		return 0, nil
	case OpNodeTree, OpWeight, OpCopy:
		return 4, nil
	case OpDraw:
		return 7, nil
	case OpNodeMix:
		return -1, nil
	default:
		return 0, fmt.Errorf("%w: 0x%02x", ErrInvalidDefinition, op)
	}
}

// ParseInstructions decodes code up to and including the first OpEnd and
// returns the instructions and the number of bytes consumed.
func ParseInstructions(code []byte) ([]Instruction, int, error) {
	var out []Instruction
	pos := 0
	for pos < len(code) {
		op := code[pos]
		n, err := operandSize(op)
		if err != nil {
			return nil, 0, err
		}
		if n < 0 {
			// u16 weight id, u8 count, then count x (u16 node, f32 weight)
			if pos+4 > len(code) {
				break
			}
			n = 3 + int(code[pos+3])*6
		}
		if pos+1+n > len(code) {
			break
		}
		out = append(out, Instruction{Op: op, Args: code[pos+1 : pos+1+n]})
		pos += 1 + n
		if op == OpEnd {
			return out, pos, nil
		}
	}
	return nil, 0, fmt.Errorf("%w: missing end opcode", ErrInvalidDefinition)
}

// Validate checks that the code is a complete instruction list.
func (d *Definition) Validate() error {
	_, n, err := ParseInstructions(d.Code)
	if err != nil {
		return fmt.Errorf("definition %q: %w", d.Name, err)
	}
	if n != len(d.Code) {
		return fmt.Errorf("definition %q: %w: %d trailing bytes", d.Name, ErrInvalidDefinition, len(d.Code)-n)
	}
	return nil
}

// NodeTree builds the NodeTree definition for the model's bones: one
// command per bone naming its parent's matrix.
func NodeTree(bones []*Bone) Definition {
	code := make([]byte, 0, len(bones)*5+1)
	for i, b := range bones {
		parent := 0
		if b.Parent >= 0 {
			parent = b.Parent
		}
		code = append(code, OpNodeTree)
		code = binary.BigEndian.AppendUint16(code, uint16(i))      //nolint:gosec // bone counts fit u16
		code = binary.BigEndian.AppendUint16(code, uint16(parent)) //nolint:gosec // bone counts fit u16
	}
	code = append(code, OpEnd)
	return Definition{Name: DefNodeTree, Code: code}
}

// DrawCall is one entry of a draw list.
type DrawCall struct {
	Material uint16
	Object   uint16
	Bone     uint16
	Priority uint8
}

// DrawList builds a draw definition from calls in the order given.
func DrawList(name string, calls []DrawCall) Definition {
	code := make([]byte, 0, len(calls)*8+1)
	for _, c := range calls {
		code = append(code, OpDraw)
		code = binary.BigEndian.AppendUint16(code, c.Material)
		code = binary.BigEndian.AppendUint16(code, c.Object)
		code = binary.BigEndian.AppendUint16(code, c.Bone)
		code = append(code, c.Priority)
	}
	code = append(code, OpEnd)
	return Definition{Name: name, Code: code}
}
