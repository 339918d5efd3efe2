package arith

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLSLBoundaries(t *testing.T) {
	v, c := LSL(0x80000001, 0, false)
	assert.Equal(t, uint32(0x80000001), v)
	assert.False(t, c)

	v, c = LSL(1, 32, false)
	assert.Equal(t, uint32(0), v)
	assert.True(t, c)

	v, c = LSL(1, 33, true)
	assert.Equal(t, uint32(0), v)
	assert.False(t, c)

	v, c = LSL(0x1, 4, false)
	assert.Equal(t, uint32(0x10), v)
	assert.False(t, c)
}

func TestLSRImmediateVsRegisterZero(t *testing.T) {
	// Immediate form: shift-by-zero means shift-by-32.
	v, c := LSR(0x80000000, 0, true, false)
	assert.Equal(t, uint32(0), v)
	assert.True(t, c)

	// Register form: shift-by-zero leaves value and carry untouched.
	v, c = LSR(0x80000000, 0, false, true)
	assert.Equal(t, uint32(0x80000000), v)
	assert.True(t, c)
}

func TestASRSignExtends(t *testing.T) {
	v, c := ASR(0x80000000, 31, true, false)
	assert.Equal(t, uint32(0xFFFFFFFF), v)
	assert.False(t, c)

	v, c = ASR(0x80000000, 32, true, false)
	assert.Equal(t, uint32(0xFFFFFFFF), v)
	assert.True(t, c)

	v, c = ASR(0x7FFFFFFF, 32, true, false)
	assert.Equal(t, uint32(0), v)
	assert.False(t, c)
}

func TestRORRRXOnImmediateZero(t *testing.T) {
	v, c := ROR(0x1, 0, true, true)
	assert.Equal(t, uint32(0x80000000), v)
	assert.True(t, c)

	v, c = ROR(0x80000000, 0, false, false)
	assert.Equal(t, uint32(0x80000000), v)
	assert.False(t, c)
}

func TestRotateImmediate(t *testing.T) {
	assert.Equal(t, uint32(0xDE000000), RotateImmediate(0xDE, 4))
	assert.Equal(t, uint32(0x000000DE), RotateImmediate(0xDE, 0))
}

func TestAddWithCarry(t *testing.T) {
	result, carry, overflow := AddWithCarry(0xFFFFFFFF, 1, false)
	assert.Equal(t, uint32(0), result)
	assert.True(t, carry)
	assert.False(t, overflow)

	result, carry, overflow = AddWithCarry(0x7FFFFFFF, 1, false)
	assert.Equal(t, uint32(0x80000000), result)
	assert.False(t, carry)
	assert.True(t, overflow)
}

func TestSubWithCarry(t *testing.T) {
	result, carry, overflow := SubWithCarry(5, 3, true)
	assert.Equal(t, uint32(2), result)
	assert.True(t, carry)
	assert.False(t, overflow)

	result, carry, overflow = SubWithCarry(3, 5, true)
	assert.Equal(t, uint32(0xFFFFFFFE), result)
	assert.False(t, carry)
	assert.False(t, overflow)
}

func TestSaturate(t *testing.T) {
	v, sat := Saturate(int64(1) << 40)
	assert.Equal(t, int32(0x7FFFFFFF), v)
	assert.True(t, sat)

	v, sat = Saturate(-(int64(1) << 40))
	assert.Equal(t, int32(-0x80000000), v)
	assert.True(t, sat)

	v, sat = Saturate(42)
	assert.Equal(t, int32(42), v)
	assert.False(t, sat)
}
