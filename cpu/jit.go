/*
   Idle-loop acceleration: an optional block-cache-backed fast path that
   lets Run skip straight to the end of its cycle budget once it
   recognizes the CPU is spinning in a block the optimizer proved does
   nothing but branch to itself (spec.md §4.6, §4.9).

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

package cpu

import (
	"github.com/arm7core/armjit/blockcache"
	"github.com/arm7core/armjit/internal/tracelog"
	"github.com/arm7core/armjit/ir"
	"github.com/arm7core/armjit/optimizer"
	"github.com/arm7core/armjit/register"
	"github.com/arm7core/armjit/translator"
)

// EnableJIT installs a block cache over ARM-mode code and turns on the
// idle-loop fast path in Run. Thumb code is never looked up in the
// cache: package translator only lifts the ARM instruction set, so a
// Thumb PC falls straight through to the interpreter (Open Question,
// resolved: Thumb idle-loop acceleration deferred until a Thumb
// translator exists).
func (c *CPUState) EnableJIT() {
	c.idleCache = blockcache.New(func(loc ir.LocationRef) *ir.BasicBlock {
		block := translator.TranslateARM(c.Mem, loc)
		optimizer.Run(block)
		return block
	}, nil)
}

// DisableJIT drops the block cache and returns Run to pure
// instruction-at-a-time interpretation.
func (c *CPUState) DisableJIT() {
	c.idleCache = nil
}

// InvalidateCodeRange must be called by any MMIO or DMA path that
// writes guest code memory while the JIT is enabled, so a stale
// translation of self-modifying code can't be mistaken for a live idle
// loop. The CLI's flat-image harness never patches code after load, so
// main.go never calls this; a host embedding CPUState with a richer
// memory map owns that responsibility (spec.md §4.6 has no device
// model to hang a write-trap on).
func (c *CPUState) InvalidateCodeRange(start, end uint32) {
	if c.idleCache != nil {
		c.idleCache.InvalidateRange(start, end)
	}
}

// tryIdleSkip looks up the block starting at the CPU's current
// execution address and, if the optimizer proved it is an idle loop,
// consumes the rest of the caller's cycle budget in one step instead of
// re-interpreting the spin instruction by instruction. It returns false
// (and touches nothing) whenever acceleration can't apply: JIT
// disabled, Thumb state, or a pending interrupt that the loop is
// presumably waiting on.
func (c *CPUState) tryIdleSkip(remaining uint64) (uint64, bool) {
	if c.idleCache == nil || c.Thumb() || c.IRQLine || c.FIQLine {
		return 0, false
	}
	pc := c.Regs.GPR(15) - 2*c.instrWidth()
	loc := ir.LocationRef{PC: pc, Mode: uint32(c.Regs.CPSR() & register.CPSRModeMask), Thumb: false}
	block := c.idleCache.GetOrDecode(loc)
	if block.Terminal != ir.TerminalIdleLoop {
		return 0, false
	}
	tracelog.Tracef(tracelog.IR, "idle skip pc=%#x cycles=%d", pc, remaining)
	return remaining, true
}
