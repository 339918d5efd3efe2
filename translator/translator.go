/*
   Translator: decodes a run of guest ARM instructions into an IR basic
   block with its own opcode switch, emitting ops instead of executing
   them (spec.md §4.7). Thumb code is not translated.

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

// Package translator lifts a run of guest instructions starting at a
// LocationRef into an ir.BasicBlock, applying the block-termination
// rules of spec.md §4.7: a maximum instruction count, any control-flow
// instruction, and any change to the block's governing condition or to
// flags that could change it.
package translator

import (
	"github.com/arm7core/armjit/ir"
	"github.com/arm7core/armjit/memory"
)

// MaxBlockSize bounds how many guest instructions one block may
// contain before the translator forces a DirectLink terminal (§4.7).
const MaxBlockSize = 64

// emitter wraps a BasicBlock with the running register-to-variable map
// a single translation pass needs: which variable currently holds the
// up to date value of each GPR and of the flags, so repeated reads of
// the same register within one block fold onto one IR variable instead
// of re-emitting GetReg.
type emitter struct {
	block   *ir.BasicBlock
	gprVar  [16]ir.Variable
	cpsrVar ir.Variable
}

func newEmitter(loc ir.LocationRef, cond uint8) *emitter {
	b := ir.NewBasicBlock(loc, cond)
	e := &emitter{block: b, cpsrVar: ir.Absent}
	for i := range e.gprVar {
		e.gprVar[i] = ir.Absent
	}
	return e
}

// reg returns a variable holding GPR i's current value, materializing
// a GetReg the first time i is read in this block.
func (e *emitter) reg(i int) ir.Variable {
	if e.gprVar[i].Valid() {
		return e.gprVar[i]
	}
	v := e.block.NewVariable()
	e.block.Append(ir.IROp{Op: ir.OpGetReg, Dst: v, Args: [3]ir.Arg{ir.GPRArg(uint8(i), 0)}})
	e.gprVar[i] = v
	return v
}

// setReg records a pending write of GPR i as variable v. The SetReg op
// is only materialized once the block leaves (Flush), so a GPR written
// and re-read several times within one block costs one SetReg, not one
// per write; dead-store elimination then drops the intermediate
// SetRegs downstream ops never observe.
func (e *emitter) setReg(i int, v ir.Variable) {
	e.gprVar[i] = v
}

// setRegOrBranch writes v to GPR i, unless i is the program counter, in
// which case the write instead terminates the block with an
// IndirectLink: the target isn't known until v is evaluated at runtime
// (§4.7, "branch-exchange ... or ALU write to PC").
func (e *emitter) setRegOrBranch(i int, v ir.Variable) bool {
	if i == 15 {
		e.block.Terminal = ir.TerminalIndirectLink
		e.emitVoid(ir.OpBranchExchange, 0, ir.VarArg(v))
		return true
	}
	e.setReg(i, v)
	return false
}

func (e *emitter) emit(op ir.Opcode, flags ir.FlagMask, args ...ir.Arg) ir.Variable {
	v := e.block.NewVariable()
	var packed [3]ir.Arg
	copy(packed[:], args)
	e.block.Append(ir.IROp{Op: op, Dst: v, Args: packed, Flags: flags})
	return v
}

func (e *emitter) emitVoid(op ir.Opcode, flags ir.FlagMask, args ...ir.Arg) {
	var packed [3]ir.Arg
	copy(packed[:], args)
	e.block.Append(ir.IROp{Op: op, Dst: ir.Absent, Args: packed, Flags: flags})
}

// Flush materializes a SetReg for every GPR the block read or wrote (a
// register that was only read is written back with its own GetReg
// value), in ascending register-number order for reproducibility.
func (e *emitter) flush() {
	for i := 0; i < 16; i++ {
		if e.gprVar[i].Valid() {
			e.emitVoid(ir.OpSetReg, 0, ir.GPRArg(uint8(i), 0), ir.VarArg(e.gprVar[i]))
		}
	}
}

// shiftOp maps a 2-bit ARM shift-type field to its IR opcode.
var shiftOp = [4]ir.Opcode{ir.OpLSL, ir.OpLSR, ir.OpASR, ir.OpROR}

// dpOpToIR maps the 4-bit ARM data-processing opcode to its IR
// equivalent where one exists directly (logical/move ops); arithmetic
// ops (ADD/ADC/SUB/SBC/CMP/CMN) are handled separately since they need
// AddWithCarry/SubWithCarry-style flag computation.
var dpOpToIR = map[uint32]ir.Opcode{
	0x0: ir.OpAnd, 0x1: ir.OpXor, 0xC: ir.OpOr, 0xE: ir.OpBic,
	0xD: ir.OpMov, 0xF: ir.OpMvn,
}

// TranslateARM decodes ARM instructions from mem starting at loc.PC
// until a block-ending condition is reached, returning the finished IR
// block.
func TranslateARM(mem memory.Interface, loc ir.LocationRef) *ir.BasicBlock {
	e := newEmitter(loc, 0xE)
	pc := loc.PC
	blockCond := uint8(0xE)

	for e.block.InstrCount < MaxBlockSize {
		raw := mem.PeekWord(pc)
		cond := uint8(raw >> 28)
		if e.block.InstrCount == 0 {
			blockCond = cond
			e.block.Cond = cond
		} else if cond != blockCond {
			// A condition change ends the block; this instruction
			// belongs to the next one (§4.7).
			e.block.Terminal = ir.TerminalDirectLink
			e.block.TargetPC = pc
			break
		}

		done := translateARMOp(e, raw, pc)
		e.block.InstrCount++
		pc += 4

		if done {
			break
		}
	}

	if e.block.Terminal == ir.TerminalReturn && e.block.InstrCount >= MaxBlockSize {
		e.block.Terminal = ir.TerminalDirectLink
		e.block.TargetPC = pc
	}
	e.flush()
	return e.block
}

// translateARMOp lowers one ARM word at pc into IR ops appended to e,
// returning true if it terminates the block (branch, branch-exchange,
// ALU/load write to PC, coprocessor system control write, SWI). The
// PSR-transfer and branch-exchange forms (MRS/MSR/BX/BLX/CLZ/SWP) share
// bits27:26==00 with ordinary data processing, so they're matched by
// their narrower, more specific patterns before the data-processing
// catch-all is allowed to claim the opcode.
func translateARMOp(e *emitter, raw uint32, pc uint32) bool {
	bits2720 := (raw >> 20) & 0xFF
	bits74 := (raw >> 4) & 0xF

	switch {
	case bits2720&0xFB == 0x10 && bits74 == 0x0: // MRS
		translateMRS(e, raw)
		return false

	case bits2720 == 0x12 && (bits74 == 0x1 || bits74 == 0x3): // BX/BLX
		translateBranchExchange(e, raw, pc)
		return true

	case bits2720 == 0x16 && bits74 == 0x1: // CLZ
		translateCLZ(e, raw)
		return false

	case bits2720&0xDB == 0x12: // MSR, immediate or register operand
		translateMSR(e, raw)
		return false

	case bits2720&0xFB == 0x10 && bits74 == 0x9: // SWP/SWPB
		translateSwap(e, raw)
		return false

	case bits2720&0xE0 == 0x00 && bits74 == 0x9: // MUL/MLA family
		translateMultiply(e, raw)
		return false

	case bits2720&0xC0 == 0x00: // data processing
		return translateDataProcessing(e, raw)

	case bits2720&0xE0 == 0x80: // LDM/STM
		return translateBlockTransfer(e, raw)

	case bits2720&0xC0 == 0x40: // single data transfer
		return translateSingleTransfer(e, raw)

	case bits2720&0xE0 == 0xA0: // B/BL
		translateBranch(e, raw, pc)
		return true

	case bits2720 == 0xF0 || bits2720&0xF0 == 0xF0: // SWI
		e.emitVoid(ir.OpBranch, 0, ir.ImmArg(2)) // vectorSWI
		return true

	case bits2720>>4 == 0xE && bits74&0x1 == 1: // MRC/MCR
		translateCoprocessorRegTransfer(e, raw)
		return raw&(1<<20) == 0 // an MCR write ends the block

	default:
		return false
	}
}

// translateMRS implements MRS Rd, CPSR|SPSR.
func translateMRS(e *emitter, raw uint32) {
	useSPSR := raw&(1<<22) != 0
	rd := int((raw >> 12) & 0xF)
	op := ir.OpGetCPSR
	if useSPSR {
		op = ir.OpGetSPSR
	}
	val := e.emit(op, 0)
	e.setReg(rd, val)
}

// translateMSR implements MSR CPSR|SPSR_cf, #imm|Rm, merging only the
// control (mode/T/I/F) and flags bytes the interpreter's msrHandler
// honors.
func translateMSR(e *emitter, raw uint32) {
	useSPSR := raw&(1<<22) != 0
	var value ir.Variable
	if raw&(1<<25) != 0 {
		imm := raw & 0xFF
		rot := (raw >> 8) & 0xF
		val := imm
		if rot != 0 {
			val = (val >> (rot * 2)) | (val << (32 - rot*2))
		}
		value = e.emit(ir.OpConstant, 0, ir.ImmArg(val))
	} else {
		value = e.reg(int(raw & 0xF))
	}

	var mask uint32
	if raw&(1<<19) != 0 {
		mask |= 0xFF000000
	}
	if raw&(1<<16) != 0 {
		mask |= 0x000000FF
	}

	getOp, setOp := ir.OpGetCPSR, ir.OpSetCPSR
	if useSPSR {
		getOp, setOp = ir.OpGetSPSR, ir.OpSetSPSR
	}
	current := e.emit(getOp, 0)
	kept := e.emit(ir.OpBic, 0, ir.VarArg(current), ir.ImmArg(mask))
	masked := e.emit(ir.OpAnd, 0, ir.VarArg(value), ir.ImmArg(mask))
	merged := e.emit(ir.OpOr, 0, ir.VarArg(kept), ir.VarArg(masked))
	e.emitVoid(setOp, 0, ir.VarArg(merged))
}

// translateBranchExchange implements BX/BLX Rm, always terminating the
// block: the target, and possibly the instruction set (low bit of Rm),
// are only known once Rm is evaluated.
func translateBranchExchange(e *emitter, raw uint32, pc uint32) {
	rm := e.reg(int(raw & 0xF))
	if raw&(1<<5) != 0 { // BLX(register)
		lr := e.emit(ir.OpConstant, 0, ir.ImmArg(pc+4))
		e.setReg(14, lr)
	}
	e.block.Terminal = ir.TerminalIndirectLink
	e.emitVoid(ir.OpBranchExchange, 0, ir.VarArg(rm))
}

// translateCLZ implements CLZ Rd, Rm.
func translateCLZ(e *emitter, raw uint32) {
	rd := int((raw >> 12) & 0xF)
	rm := e.reg(int(raw & 0xF))
	res := e.emit(ir.OpCLZ, 0, ir.VarArg(rm))
	e.setReg(rd, res)
}

// translateSwap implements SWP/SWPB Rd, Rm, [Rn].
func translateSwap(e *emitter, raw uint32) {
	byteAccess := raw&(1<<22) != 0
	rn := int((raw >> 16) & 0xF)
	rd := int((raw >> 12) & 0xF)
	rm := int(raw & 0xF)
	addr := e.reg(rn)
	size := ir.ImmArg(4)
	if byteAccess {
		size = ir.ImmArg(1)
	}
	loaded := e.emit(ir.OpMemRead, 0, ir.VarArg(addr), size)
	e.emitVoid(ir.OpMemWrite, 0, ir.VarArg(addr), ir.VarArg(e.reg(rm)), size)
	e.setReg(rd, loaded)
}

// translateCoprocessorRegTransfer implements MRC/MCR, handing the whole
// instruction word to OpCopLoad/OpCopStore for the coprocessor's own
// register-transfer decode (mirrors coprocessorHandler's CP15 dispatch).
func translateCoprocessorRegTransfer(e *emitter, raw uint32) {
	load := raw&(1<<20) != 0
	rd := int((raw >> 12) & 0xF)
	if load {
		val := e.emit(ir.OpCopLoad, 0, ir.ImmArg(raw))
		if rd != 15 { // MRC Rd=PC updates condition flags, not a GPR
			e.setReg(rd, val)
		}
	} else {
		e.emitVoid(ir.OpCopStore, 0, ir.ImmArg(raw), ir.VarArg(e.reg(rd)))
	}
}

func translateDataProcessing(e *emitter, raw uint32) bool {
	opc := (raw >> 21) & 0xF
	setFlags := (raw>>20)&1 != 0
	rn := int((raw >> 16) & 0xF)
	rd := int((raw >> 12) & 0xF)

	var rhs ir.Variable
	if raw&(1<<25) != 0 {
		imm := raw & 0xFF
		rot := (raw >> 8) & 0xF
		val := uint32(imm)
		if rot != 0 {
			val = (val >> (rot * 2)) | (val << (32 - rot*2))
		}
		rhs = e.emit(ir.OpConstant, 0, ir.ImmArg(val))
	} else {
		rm := e.reg(int(raw & 0xF))
		shiftType := (raw >> 5) & 0x3
		var amountArg ir.Arg
		if raw&(1<<4) != 0 {
			amountArg = ir.VarArg(e.reg(int((raw>>8)&0xF)))
		} else {
			amountArg = ir.ImmArg((raw >> 7) & 0x1F)
		}
		flags := ir.FlagMask(0)
		if setFlags {
			flags = ir.FlagC
		}
		rhs = e.emit(shiftOp[shiftType], flags, ir.VarArg(rm), amountArg)
	}

	lhs := e.reg(rn)
	flags := ir.FlagMask(0)
	if setFlags {
		flags = ir.FlagN | ir.FlagZ | ir.FlagC | ir.FlagV
	}

	switch opc {
	case 0x4, 0x5, 0xB: // ADD, ADC, CMN
		res := e.emit(ir.OpAdd, flags, ir.VarArg(lhs), ir.VarArg(rhs))
		if opc != 0xB {
			return e.setRegOrBranch(rd, res)
		}
	case 0x2, 0x6, 0xA, 0x3, 0x7: // SUB, SBC, CMP, RSB, RSC
		a, b := lhs, rhs
		if opc == 0x3 || opc == 0x7 {
			a, b = rhs, lhs
		}
		res := e.emit(ir.OpSub, flags, ir.VarArg(a), ir.VarArg(b))
		if opc != 0xA {
			return e.setRegOrBranch(rd, res)
		}
	case 0x8: // TST
		e.emit(ir.OpAnd, flags, ir.VarArg(lhs), ir.VarArg(rhs))
	case 0x9: // TEQ
		e.emit(ir.OpXor, flags, ir.VarArg(lhs), ir.VarArg(rhs))
	default:
		irOp := dpOpToIR[opc]
		var res ir.Variable
		if opc == 0xD || opc == 0xF { // MOV, MVN ignore Rn
			res = e.emit(irOp, flags, ir.VarArg(rhs))
		} else {
			res = e.emit(irOp, flags, ir.VarArg(lhs), ir.VarArg(rhs))
		}
		return e.setRegOrBranch(rd, res)
	}
	return false
}

func translateMultiply(e *emitter, raw uint32) {
	rd := int((raw >> 16) & 0xF)
	rn := int((raw >> 12) & 0xF)
	rs := int((raw >> 8) & 0xF)
	rm := int(raw & 0xF)
	accumulate := raw&(1<<21) != 0
	setFlags := raw&(1<<20) != 0

	flags := ir.FlagMask(0)
	if setFlags {
		flags = ir.FlagN | ir.FlagZ
	}
	prod := e.emit(ir.OpMul, flags, ir.VarArg(e.reg(rm)), ir.VarArg(e.reg(rs)))
	if accumulate {
		prod = e.emit(ir.OpAdd, flags, ir.VarArg(prod), ir.VarArg(e.reg(rn)))
	}
	e.setReg(rd, prod)
}

func translateSingleTransfer(e *emitter, raw uint32) bool {
	rn := int((raw >> 16) & 0xF)
	rd := int((raw >> 12) & 0xF)
	load := raw&(1<<20) != 0
	byteAccess := raw&(1<<22) != 0
	up := raw&(1<<23) != 0
	pre := raw&(1<<24) != 0
	writeback := raw&(1<<21) != 0

	base := e.reg(rn)
	var offset ir.Variable
	if raw&(1<<25) != 0 {
		rm := e.reg(int(raw & 0xF))
		shiftType := (raw >> 5) & 0x3
		amount := ir.ImmArg((raw >> 7) & 0x1F)
		offset = e.emit(shiftOp[shiftType], 0, ir.VarArg(rm), amount)
	} else {
		offset = e.emit(ir.OpConstant, 0, ir.ImmArg(raw&0xFFF))
	}

	addOp := ir.OpAdd
	if !up {
		addOp = ir.OpSub
	}

	addr := base
	if pre {
		addr = e.emit(addOp, 0, ir.VarArg(base), ir.VarArg(offset))
	}

	size := ir.ImmArg(4)
	if byteAccess {
		size = ir.ImmArg(1)
	}
	var loaded ir.Variable
	if load {
		loaded = e.emit(ir.OpMemRead, 0, ir.VarArg(addr), size)
	} else {
		e.emitVoid(ir.OpMemWrite, 0, ir.VarArg(addr), ir.VarArg(e.reg(rd)), size)
	}

	if !pre {
		addr = e.emit(addOp, 0, ir.VarArg(base), ir.VarArg(offset))
		e.setReg(rn, addr)
	} else if writeback {
		e.setReg(rn, addr)
	}

	if load {
		return e.setRegOrBranch(rd, loaded)
	}
	return false
}

func translateBlockTransfer(e *emitter, raw uint32) bool {
	rn := int((raw >> 16) & 0xF)
	load := raw&(1<<20) != 0
	writeback := raw&(1<<21) != 0
	up := raw&(1<<23) != 0
	pre := raw&(1<<24) != 0
	list := raw & 0xFFFF

	count := 0
	for i := 0; i < 16; i++ {
		if list&(1<<i) != 0 {
			count++
		}
	}
	base := e.reg(rn)
	step := int32(4)
	if !up {
		step = -4
	}

	offsetFromBase := int32(0)
	if !up {
		offsetFromBase = -int32(count) * 4
	}
	// Addresses ascend from the lowest one; a decrementing transfer
	// starts at base-4n with its pre/post sense inverted.
	preInc := pre == up
	running := e.emit(ir.OpAdd, 0, ir.VarArg(base), ir.ImmArg(uint32(offsetFromBase)))
	for i := 0; i < 16; i++ {
		if list&(1<<i) == 0 {
			continue
		}
		if preInc {
			running = e.emit(ir.OpAdd, 0, ir.VarArg(running), ir.ImmArg(4))
		}
		if load {
			val := e.emit(ir.OpMemRead, 0, ir.VarArg(running), ir.ImmArg(4))
			if i == 15 {
				if writeback {
					final := e.emit(ir.OpAdd, 0, ir.VarArg(base), ir.ImmArg(uint32(int32(count)*step)))
					e.setReg(rn, final)
				}
				e.block.Terminal = ir.TerminalIndirectLink
				e.emitVoid(ir.OpBranchExchange, 0, ir.VarArg(val))
				return true
			}
			e.setReg(i, val)
		} else {
			e.emitVoid(ir.OpMemWrite, 0, ir.VarArg(running), ir.VarArg(e.reg(i)), ir.ImmArg(4))
		}
		if !preInc {
			running = e.emit(ir.OpAdd, 0, ir.VarArg(running), ir.ImmArg(4))
		}
	}

	if writeback {
		final := e.emit(ir.OpAdd, 0, ir.VarArg(base), ir.ImmArg(uint32(int32(count)*step)))
		e.setReg(rn, final)
	}
	return false
}

func translateBranch(e *emitter, raw uint32, pc uint32) {
	link := raw&(1<<24) != 0
	offset := int32(raw&0xFFFFFF) << 8 >> 6 // sign-extend 24-bit word offset to byte offset
	target := uint32(int32(pc) + 8 + offset)

	if link {
		lr := e.emit(ir.OpConstant, 0, ir.ImmArg(pc+4))
		e.setReg(14, lr)
	}
	e.block.Terminal = ir.TerminalDirectLink
	e.block.TargetPC = target
	e.emitVoid(ir.OpBranch, 0, ir.ImmArg(target))
}
