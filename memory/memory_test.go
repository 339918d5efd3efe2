package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWordRoundTrip(t *testing.T) {
	m := NewFlatMemory(256)
	m.WriteWord(0x10, 0xDEADBEEF)
	assert.Equal(t, uint32(0xDEADBEEF), m.ReadWord(0x10))
	assert.Equal(t, uint32(0xDEADBEEF), m.PeekWord(0x10))
}

func TestHalfAndByteAccess(t *testing.T) {
	m := NewFlatMemory(256)
	m.WriteHalf(0x20, 0xBEEF)
	assert.Equal(t, uint16(0xBEEF), m.ReadHalf(0x20))
	assert.Equal(t, uint8(0xEF), m.ReadByte(0x20))
	assert.Equal(t, uint8(0xBE), m.ReadByte(0x21))
}

func TestOutOfRangeReadsAreZero(t *testing.T) {
	m := NewFlatMemory(16)
	assert.Equal(t, uint32(0), m.ReadWord(0x1000))
	assert.Equal(t, uint8(0), m.ReadByte(0x1000))
}

func TestPeekHasNoSideEffects(t *testing.T) {
	m := NewFlatMemory(16)
	before := m.AccessCycles(0, Code, Sequential, SizeWord)
	m.PeekWord(0)
	m.PeekByte(4)
	after := m.AccessCycles(0, Code, Sequential, SizeWord)
	assert.Equal(t, before, after)
}

func TestAccessCyclesFixedFallback(t *testing.T) {
	m := NewFlatMemory(16)
	assert.Equal(t, uint64(1), m.AccessCycles(0, Data, NonSequential, SizeWord))

	m.UseTimingHints(true)
	assert.Equal(t, uint64(3), m.AccessCycles(0, Data, NonSequential, SizeWord))
	assert.Equal(t, uint64(1), m.AccessCycles(0, Code, Sequential, SizeByte))
}
