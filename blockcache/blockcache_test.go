package blockcache

import (
	"testing"

	"github.com/arm7core/armjit/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingTranslator(calls *int) Translator {
	return func(loc ir.LocationRef) *ir.BasicBlock {
		*calls++
		return ir.NewBasicBlock(loc, 0xE)
	}
}

func TestGetOrDecodeCachesOnSecondLookup(t *testing.T) {
	var calls int
	c := New(countingTranslator(&calls), nil)
	loc := ir.LocationRef{PC: 0x8000}

	first := c.GetOrDecode(loc)
	second := c.GetOrDecode(loc)

	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestInvalidateAddressForcesRetranslation(t *testing.T) {
	var calls int
	c := New(countingTranslator(&calls), nil)
	loc := ir.LocationRef{PC: 0x8000}

	c.GetOrDecode(loc)
	c.InvalidateAddress(0x8000)
	c.GetOrDecode(loc)

	assert.Equal(t, 2, calls)
}

func TestInvalidateRangeOnlyDropsOverlappingBlocks(t *testing.T) {
	var calls int
	c := New(countingTranslator(&calls), nil)
	inside := ir.LocationRef{PC: 0x8010}
	outside := ir.LocationRef{PC: 0x9000}

	c.GetOrDecode(inside)
	c.GetOrDecode(outside)
	require.Equal(t, 2, c.Len())

	c.InvalidateRange(0x8000, 0x8100)

	assert.Equal(t, 1, c.Len())
	c.GetOrDecode(outside)
	assert.Equal(t, 2, calls) // outside block survived, no retranslation
}

func TestInvalidatePageDropsEveryEntryInThatPage(t *testing.T) {
	var calls int
	c := New(countingTranslator(&calls), nil)
	a := ir.LocationRef{PC: 0x100000}
	b := ir.LocationRef{PC: 0x1FFFFC}

	c.GetOrDecode(a)
	c.GetOrDecode(b)
	require.Equal(t, 2, c.Len())

	c.InvalidatePage(0x100000)

	assert.Equal(t, 0, c.Len())
}

func TestClearDropsEverything(t *testing.T) {
	var calls int
	c := New(countingTranslator(&calls), nil)
	c.GetOrDecode(ir.LocationRef{PC: 0x8000})
	c.GetOrDecode(ir.LocationRef{PC: 0x9000})

	c.Clear()

	assert.Equal(t, 0, c.Len())
}

func TestAddressTranslatorRemapsMirroredAddresses(t *testing.T) {
	var calls int
	remap := func(pc uint32) uint32 { return pc &^ 0x01000000 } // fold a mirror bit
	c := New(countingTranslator(&calls), remap)

	c.GetOrDecode(ir.LocationRef{PC: 0x8000})
	c.GetOrDecode(ir.LocationRef{PC: 0x01008000})

	assert.Equal(t, 1, calls)
}

func TestInvalidatePageThenDecodeDoesNotResurrectOtherStaleEntries(t *testing.T) {
	var calls int
	c := New(countingTranslator(&calls), nil)
	a := ir.LocationRef{PC: 0x100000}
	b := ir.LocationRef{PC: 0x100100}

	c.GetOrDecode(a)
	c.GetOrDecode(b)
	c.InvalidatePage(0x100000)

	// Re-decoding one stale entry must not make the OTHER stale entry
	// in the same page look live again.
	c.GetOrDecode(a)

	assert.Equal(t, 1, c.Len())
	c.GetOrDecode(b)
	assert.Equal(t, 4, calls)
}
