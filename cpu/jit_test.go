package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnableJITSkipsSelfBranchIdleLoop(t *testing.T) {
	c, mem := newTestCore(t, V4T)
	c.EnableJIT()
	mem.WriteWord(0x10000, 0xEAFFFFFE) // B #0 (branch to self)
	c.ReloadPipeline(0x10000)

	consumed := c.Run(1000)

	assert.Equal(t, uint64(1000), consumed)
	assert.Equal(t, uint32(0x10008), c.Regs.GPR(15)) // pipeline never advances past the loop head
}

func TestEnableJITDoesNotSkipNonIdleCode(t *testing.T) {
	c, mem := newTestCore(t, V4T)
	c.EnableJIT()
	mem.WriteWord(0x10000, 0xE2800001) // ADD r0, r0, #1
	mem.WriteWord(0x10004, 0xEAFFFFFD) // B #0x10000
	c.ReloadPipeline(0x10000)

	consumed := c.Run(6)

	assert.Less(t, consumed, uint64(1000))
	assert.Greater(t, c.Regs.GPR(0), uint32(0))
}

func TestJITRespectsPendingIRQ(t *testing.T) {
	c, mem := newTestCore(t, V4T)
	c.EnableJIT()
	mem.WriteWord(0x10000, 0xEAFFFFFE) // B #0
	c.ReloadPipeline(0x10000)
	c.IRQLine = true

	_, skipped := c.tryIdleSkip(1000)

	assert.False(t, skipped)
}

func TestDisableJITFallsBackToInterpreting(t *testing.T) {
	c, mem := newTestCore(t, V4T)
	c.EnableJIT()
	c.DisableJIT()
	mem.WriteWord(0x10000, 0xEAFFFFFE) // B #0
	c.ReloadPipeline(0x10000)

	consumed := c.Run(10)

	assert.GreaterOrEqual(t, consumed, uint64(10))
	assert.Less(t, consumed, uint64(1000))
}
