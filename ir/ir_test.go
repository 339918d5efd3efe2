package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppendLinksInOrder(t *testing.T) {
	b := NewBasicBlock(LocationRef{PC: 0x8000}, 0xE)
	v0 := b.NewVariable()
	v1 := b.NewVariable()
	i0 := b.Append(IROp{Op: OpConstant, Dst: v0, Args: [3]Arg{ImmArg(1)}})
	i1 := b.Append(IROp{Op: OpConstant, Dst: v1, Args: [3]Arg{ImmArg(2)}})

	assert.Equal(t, i0, b.Head())
	assert.Equal(t, i1, b.Tail())
	assert.Equal(t, i1, b.Next(i0))
	assert.Equal(t, i0, b.Prev(i1))
}

func TestEraseUnlinksWithoutShiftingIndices(t *testing.T) {
	b := NewBasicBlock(LocationRef{}, 0xE)
	v0 := b.NewVariable()
	i0 := b.Append(IROp{Op: OpConstant, Dst: v0, Args: [3]Arg{ImmArg(10)}})
	i1 := b.Append(IROp{Op: OpCopy, Dst: b.NewVariable(), Args: [3]Arg{VarArg(v0)}})
	i2 := b.Append(IROp{Op: OpCopy, Dst: b.NewVariable(), Args: [3]Arg{VarArg(v0)}})

	b.Erase(i1)

	assert.True(t, b.Erased(i1))
	assert.Equal(t, i2, b.Next(i0))
	assert.Equal(t, i0, b.Prev(i2))
	assert.Equal(t, i2, b.Tail())
}

func TestInsertBeforeRewritesNeighborLinks(t *testing.T) {
	b := NewBasicBlock(LocationRef{}, 0xE)
	i0 := b.Append(IROp{Op: OpConstant, Args: [3]Arg{ImmArg(1)}})
	i2 := b.Append(IROp{Op: OpConstant, Args: [3]Arg{ImmArg(3)}})
	i1 := b.InsertBefore(i2, IROp{Op: OpConstant, Args: [3]Arg{ImmArg(2)}})

	assert.Equal(t, i1, b.Next(i0))
	assert.Equal(t, i2, b.Next(i1))
	assert.Equal(t, i1, b.Prev(i2))
}

func TestWalkVisitsOnlyLiveOpsInOrder(t *testing.T) {
	b := NewBasicBlock(LocationRef{}, 0xE)
	i0 := b.Append(IROp{Op: OpConstant, Args: [3]Arg{ImmArg(1)}})
	_ = b.Append(IROp{Op: OpConstant, Args: [3]Arg{ImmArg(2)}})
	i2 := b.Append(IROp{Op: OpConstant, Args: [3]Arg{ImmArg(3)}})
	b.Erase(b.Next(i0))

	var seen []int32
	b.Walk(func(idx int32, op *IROp) { seen = append(seen, idx) })

	assert.Equal(t, []int32{i0, i2}, seen)
}

type fakeMem struct{ data [16]byte }

func (m *fakeMem) ReadByte(addr uint32) uint8    { return m.data[addr] }
func (m *fakeMem) ReadWord(addr uint32) uint32   { return uint32(m.data[addr]) }
func (m *fakeMem) WriteByte(addr uint32, v uint8) { m.data[addr] = v }
func (m *fakeMem) WriteWord(addr uint32, v uint32) { m.data[addr] = uint8(v) }

func TestEvalComputesAddAndStoresRegister(t *testing.T) {
	b := NewBasicBlock(LocationRef{PC: 0x8000}, 0xE)
	r1 := b.NewVariable()
	b.Append(IROp{Op: OpGetReg, Dst: r1, Args: [3]Arg{GPRArg(1, 0)}})
	five := b.NewVariable()
	b.Append(IROp{Op: OpConstant, Dst: five, Args: [3]Arg{ImmArg(5)}})
	sum := b.NewVariable()
	b.Append(IROp{Op: OpAdd, Dst: sum, Args: [3]Arg{VarArg(r1), VarArg(five)}})
	b.Append(IROp{Op: OpSetReg, Args: [3]Arg{GPRArg(0, 0), VarArg(sum)}})

	state := &EvalState{}
	state.GPR[1] = 37
	Eval(b, state, &fakeMem{})

	assert.Equal(t, uint32(42), state.GPR[0])
}
