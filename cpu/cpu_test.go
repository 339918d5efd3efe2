package cpu

import (
	"testing"

	"github.com/arm7core/armjit/memory"
	"github.com/arm7core/armjit/register"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCore(t *testing.T, variant Variant) (*CPUState, *memory.FlatMemory) {
	t.Helper()
	mem := memory.NewFlatMemory(0x20000)
	c := NewCPUState(variant, mem)
	return c, mem
}

// Scenario A: movs r0, #0xDE000000 (E3B004DE) rotates an 8-bit
// immediate and must set N=1, C=1 from the shifter's carry-out.
func TestScenarioADataProcessingCarryRotation(t *testing.T) {
	c, mem := newTestCore(t, V4T)
	c.Regs.SetMode(register.System)
	for i := 0; i < 16; i++ {
		c.Regs.SetGPR(i, (uint32(0xFF-i))|(uint32(i)<<8))
	}
	mem.WriteWord(0x10000, 0xE3B004DE)
	c.ReloadPipeline(0x10000)

	c.Step()

	assert.Equal(t, uint32(0xDE000000), c.Regs.GPR(0))
	assert.True(t, c.Regs.CPSR()&register.CPSRNegative != 0)
	assert.False(t, c.Regs.CPSR()&register.CPSRZero != 0)
	assert.True(t, c.Regs.CPSR()&register.CPSRCarry != 0)
}

// Scenario B: in IRQ mode, stmdb sp!, {r0-r3, r12, lr} decrements the
// banked R13_irq by 24 and stores six registers in ascending order.
func TestScenarioBBankedSPStoreMultiple(t *testing.T) {
	c, mem := newTestCore(t, V4T)
	c.Regs.SetMode(register.User)
	c.Regs.SetGPR(13, 0xDD)
	c.Regs.SetMode(register.IRQ)
	c.Regs.SetGPR(13, 0x400)
	for i := 0; i < 4; i++ {
		c.Regs.SetGPR(i, 0x1000+uint32(i))
	}
	c.Regs.SetGPR(12, 0x2000)
	c.Regs.SetGPR(14, 0x3000)

	mem.WriteWord(0x10000, 0xE92D500F)
	c.ReloadPipeline(0x10000)

	c.Step()

	require.Equal(t, uint32(0x400-24), c.Regs.GPR(13))
	base := c.Regs.GPR(13)
	assert.Equal(t, uint32(0x1000), mem.ReadWord(base))
	assert.Equal(t, uint32(0x1001), mem.ReadWord(base+4))
	assert.Equal(t, uint32(0x1002), mem.ReadWord(base+8))
	assert.Equal(t, uint32(0x1003), mem.ReadWord(base+12))
	assert.Equal(t, uint32(0x2000), mem.ReadWord(base+16))
	assert.Equal(t, uint32(0x3000), mem.ReadWord(base+20))
}

func TestConditionFailureSkipsAndAdvancesPC(t *testing.T) {
	c, mem := newTestCore(t, V4T)
	c.Regs.SetCPSRRaw(c.Regs.CPSR() &^ register.CPSRZero) // Z clear
	mem.WriteWord(0x10000, 0x03A00001)                    // moveq r0, #1 (EQ, will not fire)
	c.ReloadPipeline(0x10000)

	c.Step()

	assert.Equal(t, uint32(0), c.Regs.GPR(0))
}

func TestSWIEntersSupervisorVector(t *testing.T) {
	c, mem := newTestCore(t, V4T)
	c.Regs.SetMode(register.User)
	mem.WriteWord(0x10000, 0xEF000000)
	c.ReloadPipeline(0x10000)

	c.Step()

	assert.Equal(t, register.Supervisor, c.Regs.CurrentMode())
	assert.Equal(t, uint32(0x10004), c.Regs.GPR(14))
	assert.Equal(t, uint32(8), c.Regs.GPR(15)-8) // PC now two-ahead of the SWI vector (vector 2 * 4).
	assert.True(t, c.Regs.CPSR()&register.CPSRIRQDis != 0)
}

func TestCP15ControlWriteMasksReservedBits(t *testing.T) {
	c, _ := newTestCore(t, V5TE)
	c.CP15.Write(1, 0, 0, 0xFFFFFFFF, &c.State)
	assert.Equal(t, CtlWritableMask, c.CP15.control)
}

func TestCP15WFIHaltsCore(t *testing.T) {
	c, _ := newTestCore(t, V5TE)
	c.CP15.Write(7, 0, 4, 0, &c.State)
	assert.Equal(t, Halt, c.State)
	assert.Equal(t, uint64(0), c.Step())
}

func TestThumbUnconditionalBranch(t *testing.T) {
	c, mem := newTestCore(t, V4T)
	c.Regs.SetCPSRRaw(c.Regs.CPSR() | register.CPSRThumb)
	mem.WriteHalf(0x10000, 0xE000) // B #0
	c.ReloadPipeline(0x10000)

	c.Step()

	assert.Equal(t, uint32(0x10004), c.Regs.GPR(15)-4)
}

func TestRunStopsAtCycleBudget(t *testing.T) {
	c, mem := newTestCore(t, V4T)
	for i := uint32(0); i < 8; i++ {
		mem.WriteWord(0x10000+i*4, 0xE1A00000) // NOP-equivalent MOV r0, r0
	}
	c.ReloadPipeline(0x10000)
	consumed := c.Run(4)
	assert.GreaterOrEqual(t, consumed, uint64(4))
}
