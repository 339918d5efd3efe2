/*
   Thumb instruction handlers and the 1024-entry dispatch table.

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
	"github.com/arm7core/armjit/arith"
	"github.com/arm7core/armjit/decoder"
	"github.com/arm7core/armjit/memory"
	"github.com/arm7core/armjit/register"
)

func thumbAdvance(c *CPUState) {
	c.Regs.SetGPR(15, c.Regs.GPR(15)+2)
}

// thumbMoveShifted implements format 1: LSL/LSR/ASR Rd, Rs, #imm5.
func thumbMoveShifted(c *CPUState, opcode uint16) uint64 {
	op := (opcode >> 11) & 0x3
	imm := uint32((opcode >> 6) & 0x1F)
	rs := int((opcode >> 3) & 0x7)
	rd := int(opcode & 0x7)
	v := c.Regs.GPR(rs)
	var result uint32
	var carry bool
	switch op {
	case 0:
		result, carry = arith.LSL(v, imm, carryFlag(c))
	case 1:
		result, carry = arith.LSR(v, imm, true, carryFlag(c))
	default:
		result, carry = arith.ASR(v, imm, true, carryFlag(c))
	}
	c.Regs.SetGPR(rd, result)
	setNZC(c, result, carry)
	thumbAdvance(c)
	return 1
}

// thumbAddSub implements format 2: ADD/SUB Rd, Rs, Rn|#imm3.
func thumbAddSub(c *CPUState, opcode uint16) uint64 {
	immFlag := opcode&(1<<10) != 0
	sub := opcode&(1<<9) != 0
	rs := int((opcode >> 3) & 0x7)
	rd := int(opcode & 0x7)
	var operand uint32
	if immFlag {
		operand = uint32((opcode >> 6) & 0x7)
	} else {
		operand = c.Regs.GPR(int((opcode >> 6) & 0x7))
	}
	a := c.Regs.GPR(rs)
	var result uint32
	var carry, overflow bool
	if sub {
		result, carry, overflow = arith.SubWithCarry(a, operand, true)
	} else {
		result, carry, overflow = arith.AddWithCarry(a, operand, false)
	}
	c.Regs.SetGPR(rd, result)
	setNZCV(c, result, carry, overflow)
	thumbAdvance(c)
	return 1
}

// thumbImmediate implements format 3: MOV/CMP/ADD/SUB Rd, #imm8.
func thumbImmediate(c *CPUState, opcode uint16) uint64 {
	op := (opcode >> 11) & 0x3
	rd := int((opcode >> 8) & 0x7)
	imm := uint32(opcode & 0xFF)
	a := c.Regs.GPR(rd)
	switch op {
	case 0: // MOV
		c.Regs.SetGPR(rd, imm)
		setNZC(c, imm, carryFlag(c))
	case 1: // CMP
		r, carry, overflow := arith.SubWithCarry(a, imm, true)
		setNZCV(c, r, carry, overflow)
	case 2: // ADD
		r, carry, overflow := arith.AddWithCarry(a, imm, false)
		c.Regs.SetGPR(rd, r)
		setNZCV(c, r, carry, overflow)
	default: // SUB
		r, carry, overflow := arith.SubWithCarry(a, imm, true)
		c.Regs.SetGPR(rd, r)
		setNZCV(c, r, carry, overflow)
	}
	thumbAdvance(c)
	return 1
}

// thumbALU implements format 4: the 16 two-register ALU operations.
func thumbALU(c *CPUState, opcode uint16) uint64 {
	op := (opcode >> 6) & 0xF
	rs := int((opcode >> 3) & 0x7)
	rd := int(opcode & 0x7)
	a := c.Regs.GPR(rd)
	b := c.Regs.GPR(rs)
	var result uint32
	writesRd := true
	switch op {
	case 0x0:
		result = a & b
		setNZC(c, result, carryFlag(c))
	case 0x1:
		result = a ^ b
		setNZC(c, result, carryFlag(c))
	case 0x2:
		result, carry := arith.LSL(a, b&0xFF, carryFlag(c))
		setNZC(c, result, carry)
		_ = result
		c.Regs.SetGPR(rd, result)
		thumbAdvance(c)
		return 2
	case 0x3:
		result, carry := arith.LSR(a, b&0xFF, false, carryFlag(c))
		c.Regs.SetGPR(rd, result)
		setNZC(c, result, carry)
		thumbAdvance(c)
		return 2
	case 0x4:
		result, carry := arith.ASR(a, b&0xFF, false, carryFlag(c))
		c.Regs.SetGPR(rd, result)
		setNZC(c, result, carry)
		thumbAdvance(c)
		return 2
	case 0x5:
		r, carry, overflow := arith.AddWithCarry(a, b, carryFlag(c))
		result = r
		setNZCV(c, result, carry, overflow)
	case 0x6:
		r, carry, overflow := arith.SubWithCarry(a, b, carryFlag(c))
		result = r
		setNZCV(c, result, carry, overflow)
	case 0x7:
		result, carry := arith.ROR(a, b&0xFF, false, carryFlag(c))
		c.Regs.SetGPR(rd, result)
		setNZC(c, result, carry)
		thumbAdvance(c)
		return 2
	case 0x8:
		writesRd = false
		setNZC(c, a&b, carryFlag(c))
	case 0x9:
		r, carry, overflow := arith.SubWithCarry(0, b, true)
		result = r
		setNZCV(c, result, carry, overflow)
	case 0xA:
		writesRd = false
		r, carry, overflow := arith.SubWithCarry(a, b, true)
		setNZCV(c, r, carry, overflow)
	case 0xB:
		writesRd = false
		r, carry, overflow := arith.AddWithCarry(a, b, false)
		setNZCV(c, r, carry, overflow)
	case 0xC:
		result = a | b
		setNZC(c, result, carryFlag(c))
	case 0xD:
		result = a * b
		setNZ(c, result)
	case 0xE:
		result = a &^ b
		setNZC(c, result, carryFlag(c))
	default:
		result = ^b
		setNZC(c, result, carryFlag(c))
	}
	if writesRd {
		c.Regs.SetGPR(rd, result)
	}
	thumbAdvance(c)
	return 1
}

// thumbHiRegBX implements format 5: hi-register ADD/CMP/MOV and BX/BLX.
func thumbHiRegBX(c *CPUState, opcode uint16) uint64 {
	op := (opcode >> 8) & 0x3
	h1 := opcode&(1<<7) != 0
	h2 := opcode&(1<<6) != 0
	rs := int((opcode >> 3) & 0x7)
	if h2 {
		rs += 8
	}
	rd := int(opcode & 0x7)
	if h1 {
		rd += 8
	}

	if op == 0x3 { // BX/BLX
		return branchExchange(c, c.Regs.GPR(rs), h1)
	}

	a := c.Regs.GPR(rd)
	b := c.Regs.GPR(rs)
	switch op {
	case 0x0:
		result := a + b
		if rd == 15 {
			c.WritePC(result)
			return 3
		}
		c.Regs.SetGPR(rd, result)
	case 0x1:
		r, carry, overflow := arith.SubWithCarry(a, b, true)
		setNZCV(c, r, carry, overflow)
	case 0x2:
		if rd == 15 {
			c.WritePC(b)
			return 3
		}
		c.Regs.SetGPR(rd, b)
	}
	thumbAdvance(c)
	return 1
}

// thumbPCRelLoad implements format 6: LDR Rd, [PC, #imm8*4].
func thumbPCRelLoad(c *CPUState, opcode uint16) uint64 {
	rd := int((opcode >> 8) & 0x7)
	imm := uint32(opcode&0xFF) << 2
	base := (c.Regs.GPR(15) &^ 3)
	value := c.Mem.ReadWord(base + imm)
	c.Regs.SetGPR(rd, value)
	thumbAdvance(c)
	return 2 + c.AccessCycles(base+imm, memory.Data, memory.NonSequential, memory.SizeWord)
}

// thumbLoadStoreReg implements format 7: LDR/STR[B] Rd, [Rb, Ro].
func thumbLoadStoreReg(c *CPUState, opcode uint16) uint64 {
	load := opcode&(1<<11) != 0
	byteAccess := opcode&(1<<10) != 0
	ro := int((opcode >> 6) & 0x7)
	rb := int((opcode >> 3) & 0x7)
	rd := int(opcode & 0x7)
	addr := c.Regs.GPR(rb) + c.Regs.GPR(ro)
	cycles := uint64(1)
	if load {
		var value uint32
		if byteAccess {
			value = uint32(c.Mem.ReadByte(addr))
		} else {
			value = c.Mem.ReadWord(addr)
		}
		c.Regs.SetGPR(rd, value)
	} else {
		if byteAccess {
			c.Mem.WriteByte(addr, uint8(c.Regs.GPR(rd)))
		} else {
			c.Mem.WriteWord(addr, c.Regs.GPR(rd))
		}
	}
	thumbAdvance(c)
	return cycles + c.AccessCycles(addr, memory.Data, memory.NonSequential, memory.SizeWord)
}

// thumbLoadStoreSigned implements format 8: STRH/LDRH/LDSB/LDSH Rd, [Rb, Ro].
func thumbLoadStoreSigned(c *CPUState, opcode uint16) uint64 {
	h := opcode&(1<<11) != 0
	signed := opcode&(1<<10) != 0
	ro := int((opcode >> 6) & 0x7)
	rb := int((opcode >> 3) & 0x7)
	rd := int(opcode & 0x7)
	addr := c.Regs.GPR(rb) + c.Regs.GPR(ro)
	switch {
	case !signed && !h: // STRH
		c.Mem.WriteHalf(addr, uint16(c.Regs.GPR(rd)))
	case !signed && h: // LDRH
		c.Regs.SetGPR(rd, uint32(c.Mem.ReadHalf(addr)))
	case signed && !h: // LDSB
		c.Regs.SetGPR(rd, uint32(int32(int8(c.Mem.ReadByte(addr)))))
	default: // LDSH
		c.Regs.SetGPR(rd, uint32(int32(int16(c.Mem.ReadHalf(addr)))))
	}
	thumbAdvance(c)
	return 2 + c.AccessCycles(addr, memory.Data, memory.NonSequential, memory.SizeHalf)
}

// thumbLoadStoreHalfword implements format 10: STRH/LDRH Rd, [Rb, #imm5*2].
func thumbLoadStoreHalfword(c *CPUState, opcode uint16) uint64 {
	load := opcode&(1<<11) != 0
	imm := uint32((opcode>>6)&0x1F) << 1
	rb := int((opcode >> 3) & 0x7)
	rd := int(opcode & 0x7)
	addr := c.Regs.GPR(rb) + imm
	if load {
		c.Regs.SetGPR(rd, uint32(c.Mem.ReadHalf(addr)))
	} else {
		c.Mem.WriteHalf(addr, uint16(c.Regs.GPR(rd)))
	}
	thumbAdvance(c)
	return 2 + c.AccessCycles(addr, memory.Data, memory.NonSequential, memory.SizeHalf)
}

// thumbLoadStoreImm implements format 9: LDR/STR[B] Rd, [Rb, #imm].
func thumbLoadStoreImm(c *CPUState, opcode uint16) uint64 {
	byteAccess := opcode&(1<<12) != 0
	load := opcode&(1<<11) != 0
	rb := int((opcode >> 3) & 0x7)
	rd := int(opcode & 0x7)
	imm := uint32((opcode >> 6) & 0x1F)
	if !byteAccess {
		imm <<= 2
	}
	addr := c.Regs.GPR(rb) + imm
	if load {
		var value uint32
		if byteAccess {
			value = uint32(c.Mem.ReadByte(addr))
		} else {
			value = c.Mem.ReadWord(addr)
		}
		c.Regs.SetGPR(rd, value)
	} else {
		if byteAccess {
			c.Mem.WriteByte(addr, uint8(c.Regs.GPR(rd)))
		} else {
			c.Mem.WriteWord(addr, c.Regs.GPR(rd))
		}
	}
	thumbAdvance(c)
	return 2
}

// thumbSPRelLoadStore implements format 11: LDR/STR Rd, [SP, #imm8*4].
func thumbSPRelLoadStore(c *CPUState, opcode uint16) uint64 {
	load := opcode&(1<<11) != 0
	rd := int((opcode >> 8) & 0x7)
	imm := uint32(opcode&0xFF) << 2
	addr := c.Regs.GPR(13) + imm
	if load {
		c.Regs.SetGPR(rd, c.Mem.ReadWord(addr))
	} else {
		c.Mem.WriteWord(addr, c.Regs.GPR(rd))
	}
	thumbAdvance(c)
	return 2
}

// thumbLoadAddress implements format 12: ADD Rd, PC|SP, #imm8*4.
func thumbLoadAddress(c *CPUState, opcode uint16) uint64 {
	sp := opcode&(1<<11) != 0
	rd := int((opcode >> 8) & 0x7)
	imm := uint32(opcode&0xFF) << 2
	var base uint32
	if sp {
		base = c.Regs.GPR(13)
	} else {
		base = c.Regs.GPR(15) &^ 3
	}
	c.Regs.SetGPR(rd, base+imm)
	thumbAdvance(c)
	return 1
}

// thumbAddSPOffset implements format 13: ADD SP, #+/-imm7*4.
func thumbAddSPOffset(c *CPUState, opcode uint16) uint64 {
	neg := opcode&(1<<7) != 0
	imm := uint32(opcode&0x7F) << 2
	sp := c.Regs.GPR(13)
	if neg {
		sp -= imm
	} else {
		sp += imm
	}
	c.Regs.SetGPR(13, sp)
	thumbAdvance(c)
	return 1
}

// thumbPushPop implements format 14: PUSH/POP {rlist, lr/pc}.
func thumbPushPop(c *CPUState, opcode uint16) uint64 {
	load := opcode&(1<<11) != 0
	storeExtra := opcode&(1<<8) != 0
	sp := c.Regs.GPR(13)
	cycles := uint64(1)

	if load {
		for i := 0; i < 8; i++ {
			if opcode&(1<<uint(i)) != 0 {
				c.Regs.SetGPR(i, c.Mem.ReadWord(sp))
				sp += 4
				cycles++
			}
		}
		if storeExtra {
			pc := c.Mem.ReadWord(sp)
			sp += 4
			c.WritePC(pc)
		} else {
			thumbAdvance(c)
		}
		c.Regs.SetGPR(13, sp)
		return cycles
	}

	count := 0
	for i := 0; i < 8; i++ {
		if opcode&(1<<uint(i)) != 0 {
			count++
		}
	}
	if storeExtra {
		count++
	}
	sp -= uint32(count) * 4
	addr := sp
	for i := 0; i < 8; i++ {
		if opcode&(1<<uint(i)) != 0 {
			c.Mem.WriteWord(addr, c.Regs.GPR(i))
			addr += 4
			cycles++
		}
	}
	if storeExtra {
		c.Mem.WriteWord(addr, c.Regs.GPR(14))
	}
	c.Regs.SetGPR(13, sp)
	thumbAdvance(c)
	return cycles
}

// thumbMultipleLoadStore implements format 15: LDMIA/STMIA Rb!, {rlist}.
func thumbMultipleLoadStore(c *CPUState, opcode uint16) uint64 {
	load := opcode&(1<<11) != 0
	rb := int((opcode >> 8) & 0x7)
	addr := c.Regs.GPR(rb)
	cycles := uint64(1)
	for i := 0; i < 8; i++ {
		if opcode&(1<<uint(i)) != 0 {
			if load {
				c.Regs.SetGPR(i, c.Mem.ReadWord(addr))
			} else {
				c.Mem.WriteWord(addr, c.Regs.GPR(i))
			}
			addr += 4
			cycles++
		}
	}
	c.Regs.SetGPR(rb, addr)
	thumbAdvance(c)
	return cycles
}

// thumbCondBranch implements format 16: conditional branch.
func thumbCondBranch(c *CPUState, opcode uint16) uint64 {
	cond := uint8((opcode >> 8) & 0xF)
	nzcv := uint8(c.Regs.CPSR() >> 28)
	if !decoder.ConditionPassed(nzcv, cond) {
		thumbAdvance(c)
		return 1
	}
	offset := int32(int8(opcode&0xFF)) * 2
	target := uint32(int32(c.Regs.GPR(15)) + offset)
	c.ReloadPipeline(target)
	return 3
}

func thumbSWI(c *CPUState, opcode uint16) uint64 {
	c.enterException(vectorSWI)
	return 3
}

// thumbUncondBranch implements format 18: B label.
func thumbUncondBranch(c *CPUState, opcode uint16) uint64 {
	offset := int32(int16(opcode<<5)>>4) // sign-extend 11-bit offset*2
	target := uint32(int32(c.Regs.GPR(15)) + offset)
	c.ReloadPipeline(target)
	return 3
}

// thumbBranchLink implements format 19: the BL/BLX 2-instruction pair
// exercised by scenario C (spec.md §8).
func thumbBranchLink(c *CPUState, opcode uint16) uint64 {
	high := opcode&(1<<11) == 0
	offset11 := uint32(opcode & 0x7FF)
	if high {
		signExtended := int32(offset11<<21) >> 9 // sign-extend 11 bits, pre-shifted by <<12
		lr := uint32(int32(c.Regs.GPR(15)) + signExtended)
		c.Regs.SetGPR(14, lr)
		thumbAdvance(c)
		return 1
	}
	if opcode&(1<<12) == 0 && c.Variant != V5TE {
		return thumbUndefined(c, opcode)
	}

	lr := c.Regs.GPR(14)
	nextInstr := c.Regs.GPR(15) - 2
	target := lr + (offset11 << 1)
	exchange := opcode&(1<<12) == 0 && c.Variant == V5TE
	c.Regs.SetGPR(14, nextInstr|1)
	if exchange {
		target &^= 3
		cpsr := c.Regs.CPSR() &^ register.CPSRThumb
		c.Regs.SetCPSRRaw(cpsr)
	}
	c.ReloadPipeline(target)
	return 3
}

func thumbUndefined(c *CPUState, opcode uint16) uint64 {
	c.enterException(vectorUndefinedInstruction)
	return 3
}

// buildThumbTable computes the 10-bit index (opcode bits 15:6, per
// decoder.ThumbIndex) each of the 19 Thumb instruction formats claims.
// Entries are listed broad-pattern-first so a later, narrower entry
// overrides the format it nests inside (format 2 inside format 1,
// format 17 SWI inside format 16's conditional-branch space), per
// decoder.BuildTable's "later entry wins" rule.
func buildThumbTable() []ThumbHandler {
	entries := []decoder.Entry[ThumbHandler]{
		{IndexMask: 0x380, IndexValue: 0x000, Handler: thumbMoveShifted},      // 000
		{IndexMask: 0x3E0, IndexValue: 0x060, Handler: thumbAddSub},           // 00011
		{IndexMask: 0x380, IndexValue: 0x080, Handler: thumbImmediate},        // 001
		{IndexMask: 0x3F0, IndexValue: 0x100, Handler: thumbALU},              // 010000
		{IndexMask: 0x3F0, IndexValue: 0x110, Handler: thumbHiRegBX},          // 010001
		{IndexMask: 0x3E0, IndexValue: 0x120, Handler: thumbPCRelLoad},        // 01001
		{IndexMask: 0x3C8, IndexValue: 0x140, Handler: thumbLoadStoreReg},     // 0101xx0
		{IndexMask: 0x3C8, IndexValue: 0x148, Handler: thumbLoadStoreSigned},  // 0101xx1
		{IndexMask: 0x380, IndexValue: 0x180, Handler: thumbLoadStoreImm},     // 011
		{IndexMask: 0x3C0, IndexValue: 0x200, Handler: thumbLoadStoreHalfword}, // 1000
		{IndexMask: 0x3C0, IndexValue: 0x240, Handler: thumbSPRelLoadStore},   // 1001
		{IndexMask: 0x3C0, IndexValue: 0x280, Handler: thumbLoadAddress},      // 1010
		{IndexMask: 0x3FC, IndexValue: 0x2C0, Handler: thumbAddSPOffset},      // 10110000
		{IndexMask: 0x3D8, IndexValue: 0x2D0, Handler: thumbPushPop},          // 1011x10x
		{IndexMask: 0x3C0, IndexValue: 0x300, Handler: thumbMultipleLoadStore}, // 1100
		{IndexMask: 0x3C0, IndexValue: 0x340, Handler: thumbCondBranch},       // 1101
		{IndexMask: 0x3FC, IndexValue: 0x37C, Handler: thumbSWI},              // 11011111
		{IndexMask: 0x3E0, IndexValue: 0x380, Handler: thumbUncondBranch},     // 11100
		{IndexMask: 0x3E0, IndexValue: 0x3A0, Handler: thumbBranchLink},       // 11101
		{IndexMask: 0x3C0, IndexValue: 0x3C0, Handler: thumbBranchLink},       // 1111
	}
	return decoder.BuildTable(decoder.ThumbTableSize, ThumbHandler(thumbUndefined), entries)
}
