package translator

import (
	"testing"

	"github.com/arm7core/armjit/ir"
	"github.com/arm7core/armjit/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateARMStopsAtBranch(t *testing.T) {
	mem := memory.NewFlatMemory(0x1000)
	mem.WriteWord(0x0, 0xE2800001) // ADD r0, r0, #1
	mem.WriteWord(0x4, 0xEAFFFFFE) // B $ (back to self)

	b := TranslateARM(mem, ir.LocationRef{PC: 0})

	assert.Equal(t, 2, b.InstrCount)
	assert.Equal(t, ir.TerminalDirectLink, b.Terminal)
}

func TestTranslateARMSplitsOnConditionChange(t *testing.T) {
	mem := memory.NewFlatMemory(0x1000)
	mem.WriteWord(0x0, 0xE2800001) // AL: ADD r0, r0, #1
	mem.WriteWord(0x4, 0x02811001) // EQ: ADDEQ r1, r1, #1

	b := TranslateARM(mem, ir.LocationRef{PC: 0})

	assert.Equal(t, 1, b.InstrCount)
	assert.Equal(t, ir.TerminalDirectLink, b.Terminal)
	assert.Equal(t, uint32(4), b.TargetPC)
}

func TestTranslateARMMovImmediateEmitsConstantAndSetReg(t *testing.T) {
	mem := memory.NewFlatMemory(0x1000)
	mem.WriteWord(0x0, 0xE3B004DE) // MOVS r0, #0xDE000000
	mem.WriteWord(0x4, 0xEAFFFFFE) // B (force termination)

	b := TranslateARM(mem, ir.LocationRef{PC: 0})

	var sawConstant, sawSetReg bool
	b.Walk(func(idx int32, op *ir.IROp) {
		if op.Op == ir.OpConstant {
			sawConstant = true
		}
		if op.Op == ir.OpSetReg && op.Args[0].GPRNum == 0 {
			sawSetReg = true
		}
	})
	require.True(t, sawConstant)
	assert.True(t, sawSetReg)
}

func TestTranslateARMStopsAtMaxBlockSize(t *testing.T) {
	mem := memory.NewFlatMemory(0x400)
	for i := uint32(0); i < MaxBlockSize+8; i++ {
		mem.WriteWord(i*4, 0xE2800001) // ADD r0, r0, #1 (never terminates on its own)
	}

	b := TranslateARM(mem, ir.LocationRef{PC: 0})

	assert.Equal(t, MaxBlockSize, b.InstrCount)
	assert.Equal(t, ir.TerminalDirectLink, b.Terminal)
}
