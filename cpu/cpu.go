/*
   CPU: main fetch/decode/execute loop for the ARM7TDMI (ARMv4T) and
   ARM946E-S (ARMv5TE) interpreter core.

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

// Package cpu implements the ARM interpreter core: the fetch/decode/
// execute pipeline, exception entry, CP15, and the v4T/v5TE handler
// tables built on top of package decoder and package register.
package cpu

import (
	"log/slog"

	"github.com/arm7core/armjit/blockcache"
	"github.com/arm7core/armjit/decoder"
	"github.com/arm7core/armjit/internal/tracelog"
	"github.com/arm7core/armjit/memory"
	"github.com/arm7core/armjit/register"
)

// Variant selects which ARM generation this core emulates.
type Variant int

const (
	V4T Variant = iota
	V5TE
)

// ExecState is the tri-state run/halt/stop machine of §4.4.4.
type ExecState int

const (
	Run ExecState = iota
	Halt
	Stop
)

// Handler executes one decoded ARM instruction and returns its cycle cost.
type Handler func(c *CPUState, opcode uint32) uint64

// ThumbHandler executes one decoded Thumb instruction.
type ThumbHandler func(c *CPUState, opcode uint16) uint64

// ExecHook is invoked before every executed instruction when hooks are
// installed (§6.2).
type ExecHook func(c *CPUState, pc uint32, opcode uint32, thumb bool)

// CPUState is one ARM CPU core: registers, memory bus, CP15 (v5TE
// only), the two-slot pipeline, and the precomputed dispatch tables.
type CPUState struct {
	Regs    register.File
	Mem     memory.Interface
	Variant Variant
	State   ExecState
	CP15    CP15

	IRQLine bool
	FIQLine bool

	Hooks           []ExecHook
	BreakpointCheck func(pc uint32) bool

	Log *slog.Logger

	useMemoryTimings bool
	pipeline         [2]uint32

	armTable   []Handler
	thumbTable []ThumbHandler

	idleCache *blockcache.Cache
}

// NewCPUState constructs a core for the given variant and memory bus,
// reset to architectural reset state.
func NewCPUState(variant Variant, mem memory.Interface) *CPUState {
	c := &CPUState{
		Mem:        mem,
		Variant:    variant,
		armTable:   buildARMTable(),
		thumbTable: buildThumbTable(),
	}
	c.Reset()
	return c
}

// UseMemoryInterfaceAccessTimings toggles whether handler cycle counts
// consult Mem.AccessCycles or use the fixed fallback (§4.4.1).
func (c *CPUState) UseMemoryInterfaceAccessTimings(use bool) {
	c.useMemoryTimings = use
}

// Reset restores architectural reset state and reloads the pipeline
// from the current vector base (always 0 at reset).
func (c *CPUState) Reset() {
	c.Regs.Reset()
	c.State = Run
	c.CP15 = CP15{}
	c.ReloadPipeline(0)
}

// Thumb reports whether the CPSR T bit is currently set.
func (c *CPUState) Thumb() bool {
	return c.Regs.CPSR()&register.CPSRThumb != 0
}

func (c *CPUState) instrWidth() uint32 {
	if c.Thumb() {
		return 2
	}
	return 4
}

// ReloadPipeline refills both pipeline slots from newPC and sets PC to
// the pipeline's two-ahead convention. Branches, exception entry, and
// any PC-modifying or T-bit-modifying handler must call this instead
// of writing GPR 15 directly.
func (c *CPUState) ReloadPipeline(newPC uint32) {
	if c.Thumb() {
		newPC &^= 1
		c.pipeline[0] = uint32(c.Mem.ReadHalf(newPC))
		c.pipeline[1] = uint32(c.Mem.ReadHalf(newPC + 2))
		c.Regs.SetGPR(15, newPC+4)
		return
	}
	newPC &^= 3
	c.pipeline[0] = c.Mem.ReadWord(newPC)
	c.pipeline[1] = c.Mem.ReadWord(newPC + 4)
	c.Regs.SetGPR(15, newPC+8)
}

// WritePC implements a non-BX write to the program counter: an ALU
// result, an LDR, or an LDM with r15 in its register list. BX/BLX
// always interwork by switching instruction sets on the target's low
// bit (branchExchange handles that unconditionally); these other
// writes only behave that way on ARMv5TE with CP15's legacy "L4" bit
// (CtlPreARMv5) clear. On ARMv4T, or with L4 set, the instruction set
// never changes and the value is just aligned by ReloadPipeline.
func (c *CPUState) WritePC(value uint32) {
	if c.Variant == V5TE && c.CP15.control&CtlPreARMv5 == 0 {
		cpsr := c.Regs.CPSR() &^ register.CPSRThumb
		if value&1 != 0 {
			cpsr |= register.CPSRThumb
		}
		c.Regs.SetCPSRRaw(cpsr)
	}
	c.ReloadPipeline(value)
}

// AccessCycles is the handler-facing wrapper over MemoryInterface's
// timing hint, honoring useMemoryInterfaceAccessTimings (§4.4.1).
func (c *CPUState) AccessCycles(addr uint32, bus memory.Bus, kind memory.AccessType, size memory.Size) uint64 {
	if !c.useMemoryTimings {
		return 1
	}
	return c.Mem.AccessCycles(addr, bus, kind, size)
}

// Step executes exactly one instruction (or one failed-condition skip)
// and returns its cycle cost. It is a no-op returning 0 while stopped,
// and while halted with no interrupt line asserted; WFI's Halt state
// (§4.4.4) wakes back to Run here the instant IRQ or FIQ is raised,
// even though the line is also visible to a caller polling State.
func (c *CPUState) Step() uint64 {
	if c.State == Stop {
		return 0
	}
	if c.State == Halt {
		if !c.IRQLine && !c.FIQLine {
			return 0
		}
		c.State = Run
	}
	if c.FIQLine && c.Regs.CPSR()&register.CPSRFIQDis == 0 {
		c.enterException(vectorFIQ)
		return 1
	}
	if c.IRQLine && c.Regs.CPSR()&register.CPSRIRQDis == 0 {
		c.enterException(vectorIRQ)
		return 1
	}

	opcode := c.pipeline[0]
	c.pipeline[0] = c.pipeline[1]
	fetchAddr := c.Regs.GPR(15)
	thumb := c.Thumb()
	width := c.instrWidth()
	execAddr := fetchAddr - 2*width

	if c.BreakpointCheck != nil && c.BreakpointCheck(execAddr) {
		c.pipeline[1] = c.fetchSlot(fetchAddr, thumb)
		return 0
	}

	for _, h := range c.Hooks {
		h(c, execAddr, opcode, thumb)
	}

	c.pipeline[1] = c.fetchSlot(fetchAddr, thumb)

	if thumb {
		idx := decoder.ThumbIndex(uint16(opcode))
		handler := c.thumbTable[idx]
		if handler == nil {
			panic("cpu: unmapped thumb dispatch index")
		}
		tracelog.Tracef(tracelog.Exec, "thumb pc=%#x op=%#04x", execAddr, opcode)
		return handler(c, uint16(opcode))
	}

	cond := uint8(opcode >> 28)
	nzcv := uint8(c.Regs.CPSR() >> 28)
	if cond != 0xF && !decoder.ConditionPassed(nzcv, cond) {
		c.Regs.SetGPR(15, c.Regs.GPR(15)+width)
		return c.AccessCycles(execAddr, memory.Code, memory.Sequential, memory.SizeWord)
	}

	idx := decoder.ARMIndex(opcode)
	handler := c.armTable[idx]
	if handler == nil {
		panic("cpu: unmapped arm dispatch index")
	}
	tracelog.Tracef(tracelog.Exec, "arm pc=%#x op=%#08x", execAddr, opcode)
	return handler(c, opcode)
}

func (c *CPUState) fetchSlot(addr uint32, thumb bool) uint32 {
	if thumb {
		return uint32(c.Mem.ReadHalf(addr))
	}
	return c.Mem.ReadWord(addr)
}

// Run executes instructions until at least cycles have been consumed
// or the core leaves the Run state, returning the cycles actually
// consumed. It is the only externally visible blocking call (§5).
func (c *CPUState) Run(cycles uint64) uint64 {
	var consumed uint64
	for consumed < cycles {
		if c.State == Stop {
			break
		}
		if c.State == Halt && !c.IRQLine && !c.FIQLine {
			break
		}
		if c.State == Run {
			if skip, ok := c.tryIdleSkip(cycles - consumed); ok {
				consumed += skip
				break
			}
		}
		consumed += c.Step()
	}
	return consumed
}
