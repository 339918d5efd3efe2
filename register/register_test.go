package register

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResetState(t *testing.T) {
	var f File
	f.Reset()
	assert.Equal(t, Supervisor, f.CurrentMode())
	assert.Equal(t, uint32(0), f.GPR(0))
}

func TestModeChangeRoundTrip(t *testing.T) {
	// Universal property 6: set_mode(A); set_mode(B); set_mode(A) restores
	// the visible registers seen before the first call.
	var f File
	f.Reset()
	f.SetMode(IRQ)
	for i := 0; i < 16; i++ {
		f.SetGPR(i, uint32(i)*0x11)
	}
	before := f.gpr

	// Only R13/R14 are banked between IRQ and Supervisor; r0-r12 and PC
	// are shared, so only the banked pair is clobbered in between.
	f.SetMode(Supervisor)
	for i := 13; i <= 14; i++ {
		f.SetGPR(i, 0xFFFFFFFF)
	}
	f.SetMode(IRQ)

	assert.Equal(t, before, f.gpr)
}

func TestBankedSPIndependentOfUser(t *testing.T) {
	// Scenario B setup: R13_irq and R13_user are independent values.
	var f File
	f.Reset()
	f.SetMode(User)
	f.SetGPR(13, 0xDD)
	f.SetMode(IRQ)
	f.SetGPR(13, 0x4)

	assert.Equal(t, uint32(0x4), f.GPR(13))
	assert.Equal(t, uint32(0xDD), f.GPRByMode(13, User))
}

func TestFIQBanksR8ThroughR12(t *testing.T) {
	var f File
	f.Reset()
	f.SetMode(User)
	for i := 8; i <= 12; i++ {
		f.SetGPR(i, uint32(i))
	}
	f.SetMode(FIQ)
	for i := 8; i <= 12; i++ {
		f.SetGPR(i, 0x1000+uint32(i))
	}
	f.SetMode(Supervisor) // non-FIQ: should restore User's R8-R12.
	for i := 8; i <= 12; i++ {
		assert.Equal(t, uint32(i), f.GPR(i))
	}

	f.SetMode(FIQ)
	for i := 8; i <= 12; i++ {
		assert.Equal(t, uint32(0x1000+uint32(i)), f.GPR(i))
	}
}

func TestSupervisorToAbortDoesNotSwapR8R12(t *testing.T) {
	var f File
	f.Reset()
	f.SetGPR(8, 0x77)
	f.SetMode(Supervisor)
	f.SetMode(Abort)
	assert.Equal(t, uint32(0x77), f.GPR(8))
}

func TestCurrentSPSRAliasesInUserMode(t *testing.T) {
	var f File
	f.Reset()
	f.SetMode(User)
	f.SetCPSRRaw(f.CPSR() | CPSRNegative)

	value, aliased := f.CurrentSPSR()
	assert.True(t, aliased)
	assert.Equal(t, f.CPSR(), value)

	ok := f.SetCurrentSPSR(0)
	assert.False(t, ok)
	assert.Equal(t, f.CPSR(), value)
}

func TestCurrentSPSRPrivateInIRQMode(t *testing.T) {
	var f File
	f.Reset()
	f.SetMode(IRQ)
	ok := f.SetCurrentSPSR(0xABCD)
	assert.True(t, ok)

	value, aliased := f.CurrentSPSR()
	assert.False(t, aliased)
	assert.Equal(t, uint32(0xABCD), value)
}

func TestInvalidModeMapsToUser(t *testing.T) {
	var f File
	f.Reset()
	f.SetMode(IRQ)
	f.SetGPR(13, 0x4)
	f.SetMode(Mode(0x03))
	assert.Equal(t, User, f.CurrentMode())
}
