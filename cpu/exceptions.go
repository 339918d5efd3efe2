/*
   Exception entry: the eight ARM vectors and the state transition each
   one performs on SPSR, mode, CPSR control bits, LR and PC (spec.md
   §4.4.2).

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
	"github.com/arm7core/armjit/internal/tracelog"
	"github.com/arm7core/armjit/register"
)

// vector identifies one of the eight exception entry points.
type vector int

const (
	vectorReset vector = iota
	vectorUndefinedInstruction
	vectorSWI
	vectorPrefetchAbort
	vectorDataAbort
	vectorAddressExceeds26bit
	vectorIRQ
	vectorFIQ
)

type vectorInfo struct {
	mode       register.Mode
	setsF      bool
	armOffset  uint32 // R14 = faulting PC + this offset, ARM mode
	thumbOffset uint32
}

var vectorTable = [...]vectorInfo{
	vectorReset:                {mode: register.Supervisor, setsF: true},
	vectorUndefinedInstruction: {mode: register.Undefined, armOffset: 4, thumbOffset: 2},
	vectorSWI:                  {mode: register.Supervisor, armOffset: 4, thumbOffset: 2},
	vectorPrefetchAbort:        {mode: register.Abort, armOffset: 4, thumbOffset: 4},
	vectorDataAbort:            {mode: register.Abort, armOffset: 8, thumbOffset: 8},
	vectorAddressExceeds26bit:  {mode: register.Supervisor, armOffset: 4, thumbOffset: 2},
	vectorIRQ:                  {mode: register.IRQ, armOffset: 4, thumbOffset: 4},
	vectorFIQ:                  {mode: register.FIQ, setsF: true, armOffset: 4, thumbOffset: 4},
}

// enterException performs the five-step vector entry sequence
// described in §4.4.2 and reloads the ARM pipeline at the vector.
func (c *CPUState) enterException(v vector) {
	info := vectorTable[v]
	thumb := c.Thumb()
	faultingPC := c.Regs.GPR(15) - 2*c.instrWidth()

	savedCPSR := c.Regs.CPSR()
	c.Regs.SetMode(info.mode)
	c.Regs.SetCurrentSPSR(savedCPSR)

	newCPSR := c.Regs.CPSR() &^ register.CPSRThumb
	newCPSR |= register.CPSRIRQDis
	if info.setsF {
		newCPSR |= register.CPSRFIQDis
	}
	c.Regs.SetCPSRRaw(newCPSR)

	offset := info.armOffset
	if thumb {
		offset = info.thumbOffset
	}
	c.Regs.SetGPR(14, faultingPC+offset)

	base := uint32(0)
	if c.Variant == V5TE {
		base = c.CP15.BaseVectorAddress()
	}
	c.ReloadPipeline(base + uint32(v)*4)

	tracelog.Tracef(tracelog.Exec, "exception vector=%d mode=%#x pc=%#x", v, info.mode, base+uint32(v)*4)
}

// RaiseDataAbort lets a MemoryInterface report a failed access (§7).
func (c *CPUState) RaiseDataAbort() {
	c.enterException(vectorDataAbort)
}

// RaisePrefetchAbort lets instruction fetch report a failed access.
func (c *CPUState) RaisePrefetchAbort() {
	c.enterException(vectorPrefetchAbort)
}
