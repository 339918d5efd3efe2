/*
   BlockCache: maps a guest PC to its translated-and-optimized IR block,
   using a two-level page/entry/offset index so invalidating one guest
   page never walks the whole cache (spec.md §4.6).

   Copyright (c) 2024, Richard Cornwell

   Permission is hereby granted, free of charge, to any person obtaining a
   copy of this software and associated documentation files (the "Software"),
   to deal in the Software without restriction, including without limitation
   the rights to use, copy, modify, merge, publish, distribute, sublicense,
   and/or sell copies of the Software, and to permit persons to whom the
   Software is furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
   ROBERT M SUPNIK BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
   IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
   CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

*/

// Package blockcache stores translated ir.BasicBlocks keyed by guest
// entry address, lazily allocating one table per 1MB page so a
// program that only ever touches a handful of pages never pays for a
// full flat array over the 32-bit address space (spec.md §4.6).
package blockcache

import (
	"github.com/arm7core/armjit/internal/tracelog"
	"github.com/arm7core/armjit/ir"
)

const (
	entryBits  = 12
	offsetBits = 8

	entriesPerPage = 1 << entryBits
	pageShift      = entryBits + offsetBits
)

func split(pc uint32) (pageNum, entryNum uint32) {
	return pc >> pageShift, (pc >> offsetBits) & (entriesPerPage - 1)
}

// entrySlot holds one cached block plus the page generation it was
// decoded under, so a page-wide invalidation doesn't need to touch
// every entry to take effect.
type entrySlot struct {
	block *ir.BasicBlock
	valid bool
	gen   uint32
}

// page is lazily allocated on first use of any address inside it.
// generation is bumped by InvalidatePage/InvalidateRange's whole-page
// path; an entry is only live if its gen matches the page's current
// generation, so a miss decoded right after a bulk invalidate can
// never resurrect some *other*, still-stale entry the way a single
// page-level "valid" bool would (that entry's old gen keeps it dead).
type page struct {
	entries    [entriesPerPage]entrySlot
	generation uint32
}

// Translator produces a fresh IR block for a guest location. Cache
// calls whatever function New was given; cpu.EnableJIT supplies one
// that runs translator.TranslateARM and then optimizer.Run.
type Translator func(loc ir.LocationRef) *ir.BasicBlock

// AddressTranslator optionally remaps a guest PC before it is used as
// a cache key, for systems where the same physical block is visible at
// multiple mirrored addresses (§4.6 "optional address-translator
// hook").
type AddressTranslator func(pc uint32) uint32

// Cache is the block cache itself: a sparse array of pages, each a
// dense array of per-block entries.
type Cache struct {
	pages     map[uint32]*page
	translate Translator
	remap     AddressTranslator
}

// New constructs an empty cache backed by translate for misses. remap
// may be nil, meaning addresses are used as cache keys verbatim.
func New(translate Translator, remap AddressTranslator) *Cache {
	return &Cache{pages: make(map[uint32]*page), translate: translate, remap: remap}
}

func (c *Cache) resolve(pc uint32) uint32 {
	if c.remap != nil {
		return c.remap(pc)
	}
	return pc
}

// GetOrDecode returns the cached block for loc.PC, translating (and
// optimizing, via the Translator the caller supplied) on a miss. When
// an AddressTranslator is installed, the canonical (remapped) address
// is what gets cached and handed to the Translator, so every mirror of
// a physical block shares one cache entry.
func (c *Cache) GetOrDecode(loc ir.LocationRef) *ir.BasicBlock {
	key := c.resolve(loc.PC)
	canonical := loc
	canonical.PC = key
	pageNum, entryNum := split(key)

	p, ok := c.pages[pageNum]
	if !ok {
		p = &page{}
		c.pages[pageNum] = p
	}

	slot := &p.entries[entryNum]
	if slot.valid && slot.gen == p.generation && slot.block != nil && slot.block.Location == canonical {
		return slot.block
	}

	block := c.translate(canonical)
	slot.block = block
	slot.valid = true
	slot.gen = p.generation
	tracelog.Tracef(tracelog.Cache, "miss pc=%#x thumb=%v", canonical.PC, canonical.Thumb)
	return block
}

// InvalidateAddress drops the single cached block whose entry point is
// addr, if any.
func (c *Cache) InvalidateAddress(addr uint32) {
	key := c.resolve(addr)
	pageNum, entryNum := split(key)
	if p, ok := c.pages[pageNum]; ok {
		p.entries[entryNum] = entrySlot{}
		tracelog.Tracef(tracelog.BlockInv, "invalidate addr=%#x", addr)
	}
}

// InvalidateRange drops every cached block whose entry point falls in
// [start, end), used when a guest DMA or code-patch write spans more
// than one instruction (§4.6).
func (c *Cache) InvalidateRange(start, end uint32) {
	if end <= start {
		return
	}
	resolvedStart := c.resolve(start)
	resolvedEnd := c.resolve(end - 1) + 1
	startPage, _ := split(resolvedStart)
	endPage, _ := split(resolvedEnd - 1)

	for pn := startPage; pn <= endPage; pn++ {
		p, ok := c.pages[pn]
		if !ok {
			continue
		}
		if pn > startPage && pn < endPage {
			p.generation++
			continue
		}
		for i := range p.entries {
			if !p.entries[i].valid || p.entries[i].gen != p.generation || p.entries[i].block == nil {
				continue
			}
			pc := p.entries[i].block.Location.PC
			if pc >= resolvedStart && pc < resolvedEnd {
				p.entries[i] = entrySlot{}
			}
		}
	}
	tracelog.Tracef(tracelog.BlockInv, "invalidate range=[%#x,%#x)", start, end)
}

// InvalidatePage drops every cached block in the 1MB page containing
// addr, in O(1) by bumping the page's generation counter rather than
// walking its 4096 entries.
func (c *Cache) InvalidatePage(addr uint32) {
	pageNum, _ := split(c.resolve(addr))
	if p, ok := c.pages[pageNum]; ok {
		p.generation++
		tracelog.Tracef(tracelog.BlockInv, "invalidate page=%#x", pageNum)
	}
}

// Clear drops every cached block, used on a full CP15 cache-invalidate
// with no address argument and when the guest remaps memory wholesale.
func (c *Cache) Clear() {
	c.pages = make(map[uint32]*page)
	tracelog.Tracef(tracelog.BlockInv, "cache cleared")
}

// Len reports how many live blocks are currently cached, for tests and
// diagnostics; it is not on the execution hot path.
func (c *Cache) Len() int {
	n := 0
	for _, p := range c.pages {
		for i := range p.entries {
			if p.entries[i].valid && p.entries[i].gen == p.generation {
				n++
			}
		}
	}
	return n
}
