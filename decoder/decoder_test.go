package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestARMIndexExtractsBitfields(t *testing.T) {
	// bits 27:20 = 0xAB, bits 7:4 = 0xC
	raw := uint32(0xAB) << 20
	raw |= uint32(0xC) << 4
	assert.Equal(t, 0xABC, ARMIndex(raw))
}

func TestThumbIndexIsTopTenBits(t *testing.T) {
	raw := uint16(0x3FF) << 6
	assert.Equal(t, 0x3FF, ThumbIndex(raw))
}

func TestBuildTableAppliesFallbackAndPatterns(t *testing.T) {
	type handler int
	const (
		hFallback handler = iota
		hDataProcessing
		hBranch
	)

	table := BuildTable(16, hFallback, []Entry[handler]{
		{IndexMask: 0xC, IndexValue: 0x0, Handler: hDataProcessing},
		{IndexMask: 0xF, IndexValue: 0xF, Handler: hBranch},
	})

	assert.Equal(t, hDataProcessing, table[0x0])
	assert.Equal(t, hDataProcessing, table[0x3])
	assert.Equal(t, hFallback, table[0x4])
	assert.Equal(t, hBranch, table[0xF])
}

func TestBuildTableLaterEntriesOverwriteEarlier(t *testing.T) {
	table := BuildTable(4, "fallback", []Entry[string]{
		{IndexMask: 0x0, IndexValue: 0x0, Handler: "broad"},
		{IndexMask: 0x3, IndexValue: 0x2, Handler: "narrow"},
	})
	assert.Equal(t, "broad", table[0])
	assert.Equal(t, "narrow", table[2])
}

func TestConditionPassedEQ(t *testing.T) {
	assert.True(t, ConditionPassed(0x4, 0x0))  // Z set, EQ
	assert.False(t, ConditionPassed(0x0, 0x0)) // Z clear, EQ
}

func TestConditionPassedGEAndLT(t *testing.T) {
	// N == V (both clear): GE true, LT false.
	assert.True(t, ConditionPassed(0x0, 0xA))
	assert.False(t, ConditionPassed(0x0, 0xB))
	// N set, V clear: GE false, LT true.
	assert.False(t, ConditionPassed(0x8, 0xA))
	assert.True(t, ConditionPassed(0x8, 0xB))
}

func TestConditionPassedHIAndLS(t *testing.T) {
	// C set, Z clear: HI true, LS false.
	assert.True(t, ConditionPassed(0x2, 0x8))
	assert.False(t, ConditionPassed(0x2, 0x9))
	// C clear: HI false, LS true.
	assert.False(t, ConditionPassed(0x0, 0x8))
	assert.True(t, ConditionPassed(0x0, 0x9))
}

func TestConditionPassedALAndNV(t *testing.T) {
	assert.True(t, ConditionPassed(0x0, 0xE))
	assert.False(t, ConditionPassed(0xF, 0xF))
}
