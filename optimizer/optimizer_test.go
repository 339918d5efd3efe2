package optimizer

import (
	"testing"

	"github.com/arm7core/armjit/ir"
	"github.com/stretchr/testify/assert"
)

func TestConstantPropagationFoldsAdd(t *testing.T) {
	b := ir.NewBasicBlock(ir.LocationRef{}, 0xE)
	c1 := b.NewVariable()
	c2 := b.NewVariable()
	sum := b.NewVariable()
	b.Append(ir.IROp{Op: ir.OpConstant, Dst: c1, Args: [3]ir.Arg{ir.ImmArg(2)}})
	b.Append(ir.IROp{Op: ir.OpConstant, Dst: c2, Args: [3]ir.Arg{ir.ImmArg(3)}})
	idx := b.Append(ir.IROp{Op: ir.OpAdd, Dst: sum, Args: [3]ir.Arg{ir.VarArg(c1), ir.VarArg(c2)}})

	changed := constantPropagation(b)

	assert.True(t, changed)
	assert.Equal(t, ir.OpConstant, b.Op(idx).Op)
	assert.Equal(t, uint32(5), b.Op(idx).Args[0].Immediate)
}

func TestDeadVariableStoreEliminationDropsUnreadOp(t *testing.T) {
	b := ir.NewBasicBlock(ir.LocationRef{}, 0xE)
	dead := b.NewVariable()
	idx := b.Append(ir.IROp{Op: ir.OpConstant, Dst: dead, Args: [3]ir.Arg{ir.ImmArg(1)}})

	changed := deadVariableStoreElimination(b)

	assert.True(t, changed)
	assert.True(t, b.Erased(idx))
}

func TestDeadRegisterStoreEliminationKeepsOnlyFinalWrite(t *testing.T) {
	b := ir.NewBasicBlock(ir.LocationRef{}, 0xE)
	v1 := b.NewVariable()
	v2 := b.NewVariable()
	first := b.Append(ir.IROp{Op: ir.OpSetReg, Args: [3]ir.Arg{ir.GPRArg(0, 0), ir.VarArg(v1)}})
	second := b.Append(ir.IROp{Op: ir.OpSetReg, Args: [3]ir.Arg{ir.GPRArg(0, 0), ir.VarArg(v2)}})

	changed := deadRegisterStoreElimination(b)

	assert.True(t, changed)
	assert.True(t, b.Erased(first))
	assert.False(t, b.Erased(second))
}

func TestBitwiseCoalescenceFoldsSelfXorToZero(t *testing.T) {
	b := ir.NewBasicBlock(ir.LocationRef{}, 0xE)
	v := b.NewVariable()
	idx := b.Append(ir.IROp{Op: ir.OpXor, Args: [3]ir.Arg{ir.VarArg(v), ir.VarArg(v)}})

	changed := bitwiseCoalescence(b)

	assert.True(t, changed)
	assert.Equal(t, ir.OpConstant, b.Op(idx).Op)
	assert.Equal(t, uint32(0), b.Op(idx).Args[0].Immediate)
}

func TestDetectIdleLoopFlagsSelfBranchingBlock(t *testing.T) {
	b := ir.NewBasicBlock(ir.LocationRef{PC: 0x8000}, 0xE)
	b.Terminal = ir.TerminalDirectLink
	b.TargetPC = 0x8000
	b.Append(ir.IROp{Op: ir.OpBranch, Args: [3]ir.Arg{ir.ImmArg(0x8000)}})

	assert.True(t, DetectIdleLoop(b))
}

func TestDetectIdleLoopRejectsBlockThatWritesOtherRegisters(t *testing.T) {
	b := ir.NewBasicBlock(ir.LocationRef{PC: 0x8000}, 0xE)
	b.Terminal = ir.TerminalDirectLink
	b.TargetPC = 0x8000
	b.Append(ir.IROp{Op: ir.OpSetReg, Args: [3]ir.Arg{ir.GPRArg(3, 0), ir.ImmArg(1)}})

	assert.False(t, DetectIdleLoop(b))
}

func TestRunReachesFixedPointOnConstantFoldableBlock(t *testing.T) {
	b := ir.NewBasicBlock(ir.LocationRef{}, 0xE)
	c1 := b.NewVariable()
	c2 := b.NewVariable()
	sum := b.NewVariable()
	b.Append(ir.IROp{Op: ir.OpConstant, Dst: c1, Args: [3]ir.Arg{ir.ImmArg(10)}})
	b.Append(ir.IROp{Op: ir.OpConstant, Dst: c2, Args: [3]ir.Arg{ir.ImmArg(20)}})
	b.Append(ir.IROp{Op: ir.OpAdd, Dst: sum, Args: [3]ir.Arg{ir.VarArg(c1), ir.VarArg(c2)}})
	b.Append(ir.IROp{Op: ir.OpSetReg, Args: [3]ir.Arg{ir.GPRArg(0, 0), ir.VarArg(sum)}})

	Run(b)

	var live []ir.Opcode
	b.Walk(func(idx int32, op *ir.IROp) { live = append(live, op.Op) })
	assert.Contains(t, live, ir.OpSetReg)
}

type evalMem struct{ data [256]byte }

func (m *evalMem) ReadByte(addr uint32) uint8   { return m.data[addr] }
func (m *evalMem) ReadWord(addr uint32) uint32  { return uint32(m.data[addr]) }
func (m *evalMem) WriteByte(addr uint32, v uint8) { m.data[addr] = v }
func (m *evalMem) WriteWord(addr uint32, v uint32) { m.data[addr] = uint8(v) }

// buildFoldableBlock mirrors a translated "r0 = (r1 + 5) - 5; r2 = r3 ^
// r3" sequence: constant folding, dead-variable elimination and
// bitwise coalescence all fire on it.
func buildFoldableBlock() *ir.BasicBlock {
	b := ir.NewBasicBlock(ir.LocationRef{PC: 0x8000}, 0xE)
	r1 := b.NewVariable()
	b.Append(ir.IROp{Op: ir.OpGetReg, Dst: r1, Args: [3]ir.Arg{ir.GPRArg(1, 0)}})
	five := b.NewVariable()
	b.Append(ir.IROp{Op: ir.OpConstant, Dst: five, Args: [3]ir.Arg{ir.ImmArg(5)}})
	sum := b.NewVariable()
	b.Append(ir.IROp{Op: ir.OpAdd, Dst: sum, Args: [3]ir.Arg{ir.VarArg(r1), ir.VarArg(five)}})
	diff := b.NewVariable()
	b.Append(ir.IROp{Op: ir.OpSub, Dst: diff, Args: [3]ir.Arg{ir.VarArg(sum), ir.VarArg(five)}})
	b.Append(ir.IROp{Op: ir.OpSetReg, Args: [3]ir.Arg{ir.GPRArg(0, 0), ir.VarArg(diff)}})

	r3 := b.NewVariable()
	b.Append(ir.IROp{Op: ir.OpGetReg, Dst: r3, Args: [3]ir.Arg{ir.GPRArg(3, 0)}})
	xor := b.NewVariable()
	b.Append(ir.IROp{Op: ir.OpXor, Dst: xor, Args: [3]ir.Arg{ir.VarArg(r3), ir.VarArg(r3)}})
	b.Append(ir.IROp{Op: ir.OpSetReg, Args: [3]ir.Arg{ir.GPRArg(2, 0), ir.VarArg(xor)}})

	return b
}

func TestRunPreservesSemanticsOfFoldableBlock(t *testing.T) {
	unoptimized := buildFoldableBlock()
	optimized := buildFoldableBlock()
	Run(optimized)

	mem := &evalMem{}
	before := &ir.EvalState{}
	before.GPR[1] = 100
	before.GPR[3] = 77
	ir.Eval(unoptimized, before, mem)

	after := &ir.EvalState{}
	after.GPR[1] = 100
	after.GPR[3] = 77
	ir.Eval(optimized, after, mem)

	assert.Equal(t, before.GPR, after.GPR)
}
