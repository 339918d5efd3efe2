/*
   ARM instruction handlers and the 4096-entry dispatch table built
   from them by buildARMTable, which NewCPUState calls (spec.md §4.3,
   §4.4, §9).

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

func carryFlag(c *CPUState) bool { return c.Regs.CPSR()&register.CPSRCarry != 0 }

func setNZ(c *CPUState, result uint32) {
	cpsr := c.Regs.CPSR() &^ (register.CPSRNegative | register.CPSRZero)
	if result&0x80000000 != 0 {
		cpsr |= register.CPSRNegative
	}
	if result == 0 {
		cpsr |= register.CPSRZero
	}
	c.Regs.SetCPSRRaw(cpsr)
}

func setNZCV(c *CPUState, result uint32, carry, overflow bool) {
	cpsr := c.Regs.CPSR() &^ (register.CPSRNegative | register.CPSRZero | register.CPSRCarry | register.CPSROverflow)
	if result&0x80000000 != 0 {
		cpsr |= register.CPSRNegative
	}
	if result == 0 {
		cpsr |= register.CPSRZero
	}
	if carry {
		cpsr |= register.CPSRCarry
	}
	if overflow {
		cpsr |= register.CPSROverflow
	}
	c.Regs.SetCPSRRaw(cpsr)
}

func setNZC(c *CPUState, result uint32, carry bool) {
	cpsr := c.Regs.CPSR() &^ (register.CPSRNegative | register.CPSRZero | register.CPSRCarry)
	if result&0x80000000 != 0 {
		cpsr |= register.CPSRNegative
	}
	if result == 0 {
		cpsr |= register.CPSRZero
	}
	if carry {
		cpsr |= register.CPSRCarry
	}
	c.Regs.SetCPSRRaw(cpsr)
}

// shifterOperand evaluates the data-processing/load-store shifter
// operand (immediate or register-shifted-register forms) and returns
// the operand value plus the shifter's carry-out.
func shifterOperand(c *CPUState, opcode uint32) (uint32, bool) {
	if opcode&(1<<25) != 0 {
		imm := opcode & 0xFF
		rot := (opcode >> 8) & 0xF
		return arith.RotateImmediate(imm, rot), rotatedImmCarry(c, imm, rot)
	}
	rm := c.Regs.GPR(int(opcode & 0xF))
	var n uint32
	regShift := opcode&(1<<4) != 0
	if regShift {
		n = c.Regs.GPR(int((opcode>>8)&0xF)) & 0xFF
	} else {
		n = (opcode >> 7) & 0x1F
	}
	shiftType := (opcode >> 5) & 0x3
	immForm := !regShift
	switch shiftType {
	case 0:
		return arith.LSL(rm, n, carryFlag(c))
	case 1:
		return arith.LSR(rm, n, immForm, carryFlag(c))
	case 2:
		return arith.ASR(rm, n, immForm, carryFlag(c))
	default:
		return arith.ROR(rm, n, immForm, carryFlag(c))
	}
}

func rotatedImmCarry(c *CPUState, imm, rot uint32) bool {
	if rot == 0 {
		return carryFlag(c)
	}
	rotated := arith.RotateImmediate(imm, rot)
	return rotated&0x80000000 != 0
}

// dataProcessingHandler builds a Handler for one of the 16 ALU opcodes.
func dataProcessingHandler(opc uint32) Handler {
	return func(c *CPUState, opcode uint32) uint64 {
		rn := int((opcode >> 16) & 0xF)
		rd := int((opcode >> 12) & 0xF)
		s := opcode&(1<<20) != 0
		op2, shiftCarry := shifterOperand(c, opcode)
		a := c.Regs.GPR(rn)

		var result uint32
		var writesRd = true
		switch opc {
		case 0x0: // AND
			result = a & op2
			if s {
				setNZC(c, result, shiftCarry)
			}
		case 0x1: // EOR
			result = a ^ op2
			if s {
				setNZC(c, result, shiftCarry)
			}
		case 0x2: // SUB
			var carry, overflow bool
			result, carry, overflow = arith.SubWithCarry(a, op2, true)
			if s {
				setNZCV(c, result, carry, overflow)
			}
		case 0x3: // RSB
			var carry, overflow bool
			result, carry, overflow = arith.SubWithCarry(op2, a, true)
			if s {
				setNZCV(c, result, carry, overflow)
			}
		case 0x4: // ADD
			var carry, overflow bool
			result, carry, overflow = arith.AddWithCarry(a, op2, false)
			if s {
				setNZCV(c, result, carry, overflow)
			}
		case 0x5: // ADC
			var carry, overflow bool
			result, carry, overflow = arith.AddWithCarry(a, op2, carryFlag(c))
			if s {
				setNZCV(c, result, carry, overflow)
			}
		case 0x6: // SBC
			var carry, overflow bool
			result, carry, overflow = arith.SubWithCarry(a, op2, carryFlag(c))
			if s {
				setNZCV(c, result, carry, overflow)
			}
		case 0x7: // RSC
			var carry, overflow bool
			result, carry, overflow = arith.SubWithCarry(op2, a, carryFlag(c))
			if s {
				setNZCV(c, result, carry, overflow)
			}
		case 0x8: // TST
			writesRd = false
			setNZC(c, a&op2, shiftCarry)
		case 0x9: // TEQ
			writesRd = false
			setNZC(c, a^op2, shiftCarry)
		case 0xA: // CMP
			writesRd = false
			r, carry, overflow := arith.SubWithCarry(a, op2, true)
			setNZCV(c, r, carry, overflow)
		case 0xB: // CMN
			writesRd = false
			r, carry, overflow := arith.AddWithCarry(a, op2, false)
			setNZCV(c, r, carry, overflow)
		case 0xC: // ORR
			result = a | op2
			if s {
				setNZC(c, result, shiftCarry)
			}
		case 0xD: // MOV
			result = op2
			if s {
				setNZC(c, result, shiftCarry)
			}
		case 0xE: // BIC
			result = a &^ op2
			if s {
				setNZC(c, result, shiftCarry)
			}
		case 0xF: // MVN
			result = ^op2
			if s {
				setNZC(c, result, shiftCarry)
			}
		}

		if writesRd {
			if rd == 15 {
				if s {
					if value, aliased := c.Regs.CurrentSPSR(); !aliased {
						c.Regs.SetMode(register.Mode(value & register.CPSRModeMask))
						c.Regs.SetCPSRRaw(value)
					}
				}
				c.WritePC(result)
				return 2 + c.AccessCycles(result, memory.Code, memory.NonSequential, memory.SizeWord)
			}
			c.Regs.SetGPR(rd, result)
		}
		c.Regs.SetGPR(15, c.Regs.GPR(15)+4)
		return 1
	}
}

func branchHandler(c *CPUState, opcode uint32) uint64 {
	cond := opcode >> 28
	link := opcode&(1<<24) != 0
	offset := int32(opcode&0xFFFFFF) << 8 >> 6 // sign-extend 24-bit word offset to bytes
	pc := c.Regs.GPR(15)
	if cond == 0xF {
		// BLX immediate: bit 24 supplies an extra halfword of offset and
		// the target always switches to Thumb.
		if opcode&(1<<24) != 0 {
			offset += 2
		}
		target := uint32(int32(pc) + offset)
		c.Regs.SetGPR(14, pc-4)
		cpsr := c.Regs.CPSR() | register.CPSRThumb
		c.Regs.SetCPSRRaw(cpsr)
		c.ReloadPipeline(target)
		return 3
	}
	if link {
		c.Regs.SetGPR(14, pc-4)
	}
	target := uint32(int32(pc) + offset)
	c.ReloadPipeline(target)
	return 3
}

func bxHandler(c *CPUState, opcode uint32) uint64 {
	rm := c.Regs.GPR(int(opcode & 0xF))
	blx := (opcode>>4)&0xF == 0x3
	return branchExchange(c, rm, blx)
}

// branchExchange is the shared BX/BLX(register) core used by both the
// ARM and Thumb handlers: switch instruction sets per the target's low
// bit, optionally link, and reload the pipeline.
func branchExchange(c *CPUState, target uint32, link bool) uint64 {
	if link {
		c.Regs.SetGPR(14, c.Regs.GPR(15)-4)
	}
	cpsr := c.Regs.CPSR() &^ register.CPSRThumb
	if target&1 != 0 {
		cpsr |= register.CPSRThumb
	}
	c.Regs.SetCPSRRaw(cpsr)
	c.ReloadPipeline(target &^ 1)
	return 3
}

func clzHandler(c *CPUState, opcode uint32) uint64 {
	rd := int((opcode >> 12) & 0xF)
	rm := c.Regs.GPR(int(opcode & 0xF))
	n := 0
	for i := 31; i >= 0; i-- {
		if rm&(1<<uint(i)) != 0 {
			break
		}
		n++
	}
	c.Regs.SetGPR(rd, uint32(n))
	c.Regs.SetGPR(15, c.Regs.GPR(15)+4)
	return 1
}

func mulHandler(c *CPUState, opcode uint32) uint64 {
	rd := int((opcode >> 16) & 0xF)
	rn := int((opcode >> 12) & 0xF)
	rs := int((opcode >> 8) & 0xF)
	rm := int(opcode & 0xF)
	accumulate := opcode&(1<<21) != 0
	s := opcode&(1<<20) != 0
	result := c.Regs.GPR(rm) * c.Regs.GPR(rs)
	if accumulate {
		result += c.Regs.GPR(rn)
	}
	c.Regs.SetGPR(rd, result)
	if s {
		setNZ(c, result)
	}
	c.Regs.SetGPR(15, c.Regs.GPR(15)+4)
	return 2
}

func singleDataTransferHandler(c *CPUState, opcode uint32) uint64 {
	load := opcode&(1<<20) != 0
	byteAccess := opcode&(1<<22) != 0
	up := opcode&(1<<23) != 0
	pre := opcode&(1<<24) != 0
	writeback := opcode&(1<<21) != 0
	rn := int((opcode >> 16) & 0xF)
	rd := int((opcode >> 12) & 0xF)

	var offset uint32
	if opcode&(1<<25) != 0 {
		// For LDR/STR, I=1 selects the shifted-register offset, which
		// shifterOperand decodes when bit 25 is clear.
		offset, _ = shifterOperand(c, opcode&^(1<<25))
	} else {
		offset = opcode & 0xFFF
	}

	base := c.Regs.GPR(rn)
	addr := base
	if pre {
		if up {
			addr = base + offset
		} else {
			addr = base - offset
		}
	}

	var cycles uint64 = 1
	if load {
		var value uint32
		if byteAccess {
			value = uint32(c.Mem.ReadByte(addr))
			cycles += c.AccessCycles(addr, memory.Data, memory.NonSequential, memory.SizeByte)
		} else {
			value = c.Mem.ReadWord(addr)
			cycles += c.AccessCycles(addr, memory.Data, memory.NonSequential, memory.SizeWord)
		}
		if rd == 15 {
			c.WritePC(value)
		} else {
			c.Regs.SetGPR(rd, value)
		}
	} else {
		value := c.Regs.GPR(rd)
		if byteAccess {
			c.Mem.WriteByte(addr, uint8(value))
			cycles += c.AccessCycles(addr, memory.Data, memory.NonSequential, memory.SizeByte)
		} else {
			c.Mem.WriteWord(addr, value)
			cycles += c.AccessCycles(addr, memory.Data, memory.NonSequential, memory.SizeWord)
		}
	}

	if !pre {
		if up {
			addr = base + offset
		} else {
			addr = base - offset
		}
		c.Regs.SetGPR(rn, addr)
	} else if writeback {
		c.Regs.SetGPR(rn, addr)
	}

	if rd != 15 || !load {
		c.Regs.SetGPR(15, c.Regs.GPR(15)+4)
	}
	return cycles
}

// blockDataTransferHandler implements LDM/STM, including the STMDB
// form exercised by scenario B (spec.md §8).
func blockDataTransferHandler(c *CPUState, opcode uint32) uint64 {
	load := opcode&(1<<20) != 0
	writeback := opcode&(1<<21) != 0
	userBank := opcode&(1<<22) != 0
	up := opcode&(1<<23) != 0
	pre := opcode&(1<<24) != 0
	rn := int((opcode >> 16) & 0xF)
	list := opcode & 0xFFFF

	regs := make([]int, 0, 16)
	for i := 0; i < 16; i++ {
		if list&(1<<uint(i)) != 0 {
			regs = append(regs, i)
		}
	}

	base := c.Regs.GPR(rn)
	count := uint32(len(regs))
	var start uint32
	if up {
		start = base
		if pre {
			start += 4
		}
	} else {
		start = base - count*4
		if !pre {
			start += 4
		}
	}

	addr := start
	var cycles uint64 = 1
	for _, r := range regs {
		if load {
			value := c.Mem.ReadWord(addr)
			cycles += c.AccessCycles(addr, memory.Data, memory.Sequential, memory.SizeWord)
			if userBank && r != 15 {
				c.Regs.SetUserModeGPR(r, value)
			} else if r == 15 {
				c.WritePC(value)
			} else {
				c.Regs.SetGPR(r, value)
			}
		} else {
			var value uint32
			if userBank {
				value = c.Regs.UserModeGPR(r)
			} else {
				value = c.Regs.GPR(r)
			}
			c.Mem.WriteWord(addr, value)
			cycles += c.AccessCycles(addr, memory.Data, memory.Sequential, memory.SizeWord)
		}
		addr += 4
	}

	if writeback {
		if up {
			c.Regs.SetGPR(rn, base+count*4)
		} else {
			c.Regs.SetGPR(rn, base-count*4)
		}
	}

	if list&(1<<15) == 0 || !load {
		c.Regs.SetGPR(15, c.Regs.GPR(15)+4)
	}
	return cycles
}

func swiHandler(c *CPUState, opcode uint32) uint64 {
	c.enterException(vectorSWI)
	return 3
}

func undefinedHandler(c *CPUState, opcode uint32) uint64 {
	c.enterException(vectorUndefinedInstruction)
	return 3
}

func mrsHandler(c *CPUState, opcode uint32) uint64 {
	rd := int((opcode >> 12) & 0xF)
	useSPSR := opcode&(1<<22) != 0
	if useSPSR {
		value, _ := c.Regs.CurrentSPSR()
		c.Regs.SetGPR(rd, value)
	} else {
		c.Regs.SetGPR(rd, c.Regs.CPSR())
	}
	c.Regs.SetGPR(15, c.Regs.GPR(15)+4)
	return 1
}

func msrHandler(c *CPUState, opcode uint32) uint64 {
	useSPSR := opcode&(1<<22) != 0
	var value uint32
	if opcode&(1<<25) != 0 {
		imm := opcode & 0xFF
		rot := (opcode >> 8) & 0xF
		value = arith.RotateImmediate(imm, rot)
	} else {
		value = c.Regs.GPR(int(opcode & 0xF))
	}

	var mask uint32
	if opcode&(1<<19) != 0 {
		mask |= 0xFF000000 // flags field
	}
	if opcode&(1<<16) != 0 {
		mask |= 0x000000FF // control field (mode/T/I/F)
	}

	if useSPSR {
		current, aliased := c.Regs.CurrentSPSR()
		if !aliased {
			c.Regs.SetCurrentSPSR((current &^ mask) | (value & mask))
		}
		c.Regs.SetGPR(15, c.Regs.GPR(15)+4)
		return 1
	}

	newCPSR := (c.Regs.CPSR() &^ mask) | (value & mask)
	if mask&0xFF != 0 {
		c.Regs.SetMode(register.Mode(newCPSR & register.CPSRModeMask))
	}
	c.Regs.SetCPSRRaw(newCPSR)
	c.Regs.SetGPR(15, c.Regs.GPR(15)+4)
	return 1
}

// coprocessorHandler routes MRC/MCR to CP15 on v5TE, or to the v4T
// dummy CP14 debug-comms register which echoes the current fetch-slot
// opcode (§3 expansion, resolving Open Question 3).
func coprocessorHandler(c *CPUState, opcode uint32) uint64 {
	cpnum := (opcode >> 8) & 0xF
	crn := (opcode >> 16) & 0xF
	crm := opcode & 0xF
	opc2 := (opcode >> 5) & 0x7
	rd := int((opcode >> 12) & 0xF)
	toCoprocessor := opcode&(1<<20) == 0

	if c.Variant == V5TE && cpnum == 15 {
		if toCoprocessor {
			c.CP15.Write(crn, crm, opc2, c.Regs.GPR(rd), &c.State)
		} else {
			value := c.CP15.Read(crn, crm, opc2)
			if rd == 15 {
				setNZ(c, value)
			} else {
				c.Regs.SetGPR(rd, value)
			}
		}
		c.Regs.SetGPR(15, c.Regs.GPR(15)+4)
		return 1
	}

	if c.Variant == V4T && cpnum == 14 {
		if !toCoprocessor && rd != 15 {
			c.Regs.SetGPR(rd, c.pipeline[1])
		}
		c.Regs.SetGPR(15, c.Regs.GPR(15)+4)
		return 1
	}

	c.enterException(vectorUndefinedInstruction)
	return 3
}

func buildARMTable() []Handler {
	var entries []decoder.Entry[Handler]

	for opc := uint32(0); opc < 16; opc++ {
		handler := dataProcessingHandler(opc)
		// bits 27:21 carry the opcode in positions [8:5] of the packed
		// index (bits 24:21 of the original word), bit 20 (S) in bit 4.
		entries = append(entries, decoder.Entry[Handler]{
			IndexMask:  0xDE0,
			IndexValue: opc << 5,
			Handler:    handler,
		})
	}

	entries = append(entries,
		// B/BL: bits 27:25 = 101.
		decoder.Entry[Handler]{IndexMask: 0xE00, IndexValue: 0xA00, Handler: branchHandler},
		// MRS: bits 27:23=00010, bit 21:16=001111, bits 11:0 zero.
		decoder.Entry[Handler]{IndexMask: 0xFBF, IndexValue: 0x100, Handler: mrsHandler},
		// MSR (register or immediate form): bits 27:23=00010, bit 21=1.
		// Its mask also covers the BX/BLX and CLZ indices, so it comes
		// before them and they override it.
		decoder.Entry[Handler]{IndexMask: 0xDB0, IndexValue: 0x120, Handler: msrHandler},
		// BX/BLX(register): bits 27:20 = 0x12, bits 7:4 = 0001/0011.
		decoder.Entry[Handler]{IndexMask: 0xFFF, IndexValue: 0x121, Handler: bxHandler},
		decoder.Entry[Handler]{IndexMask: 0xFFF, IndexValue: 0x123, Handler: bxHandler},
		// CLZ: bits 27:20 = 0x16, bits 7:4 = 0001.
		decoder.Entry[Handler]{IndexMask: 0xFFF, IndexValue: 0x161, Handler: clzHandler},
		// MUL/MLA: bits 27:22 = 000000, bits 7:4 = 1001.
		decoder.Entry[Handler]{IndexMask: 0xFCF, IndexValue: 0x009, Handler: mulHandler},
		// Single data transfer (LDR/STR family): bits 27:26 = 01.
		decoder.Entry[Handler]{IndexMask: 0xC00, IndexValue: 0x400, Handler: singleDataTransferHandler},
		// Block data transfer (LDM/STM): bits 27:25 = 100.
		decoder.Entry[Handler]{IndexMask: 0xE00, IndexValue: 0x800, Handler: blockDataTransferHandler},
		// Coprocessor register transfer / data processing: bits 27:25 = 111.
		decoder.Entry[Handler]{IndexMask: 0xE00, IndexValue: 0xE00, Handler: coprocessorHandler},
		// SWI: bits 27:24 = 1111. Overrides the coprocessor entry's claim
		// on this sub-range since it is appended last.
		decoder.Entry[Handler]{IndexMask: 0xF00, IndexValue: 0xF00, Handler: swiHandler},
	)

	return decoder.BuildTable(decoder.ARMTableSize, Handler(undefinedHandler), entries)
}
