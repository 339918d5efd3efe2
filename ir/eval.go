/*
   Eval: a reference interpreter over a live op list, used only by tests
   to check that an optimized block computes the same outcome as its
   unoptimized original (spec.md §8, Property 5).

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

package ir

// EvalMemory is the minimal guest-memory contract Eval needs. Callers
// pass a memory.Interface value (or a test double); rather than import
// package memory's full Interface, ir names just the methods it uses.
type EvalMemory interface {
	ReadByte(addr uint32) uint8
	ReadWord(addr uint32) uint32
	WriteByte(addr uint32, v uint8)
	WriteWord(addr uint32, v uint32)
}

// EvalState is the register state Eval reads and mutates. It holds
// exactly the state a block's GetReg/SetReg/GetCPSR/SetCPSR ops touch,
// not a full CPUState.
type EvalState struct {
	GPR  [16]uint32
	CPSR uint32
}

// Eval interprets b's live ops in order against state and mem. It
// understands enough of the opcode set to check GPR/CPSR outcomes
// match before and after an optimizer pass runs; it is not a
// production execution path and never appears on the interpreter's or
// JIT's hot path.
func Eval(b *BasicBlock, state *EvalState, mem EvalMemory) {
	vars := make([]uint32, b.VariableCount())
	var flags uint32

	read := func(a Arg) uint32 {
		switch a.Kind {
		case ArgImmediate:
			return a.Immediate
		case ArgVariable:
			if a.Var.Valid() {
				return vars[a.Var]
			}
			return 0
		case ArgGPR:
			return state.GPR[a.GPRNum]
		default:
			return 0
		}
	}

	b.Walk(func(_ int32, op *IROp) {
		var result uint32
		switch op.Op {
		case OpConstant, OpCopy, OpMov:
			result = read(op.Args[0])
		case OpGetReg:
			result = state.GPR[op.Args[0].GPRNum]
		case OpSetReg:
			state.GPR[op.Args[0].GPRNum] = read(op.Args[1])
			return
		case OpGetCPSR:
			result = state.CPSR
		case OpSetCPSR:
			state.CPSR = read(op.Args[0])
			return
		case OpMemRead:
			addr := read(op.Args[0])
			if read(op.Args[1]) == 1 {
				result = uint32(mem.ReadByte(addr))
			} else {
				result = mem.ReadWord(addr)
			}
		case OpMemWrite:
			addr, val, size := read(op.Args[0]), read(op.Args[1]), read(op.Args[2])
			if size == 1 {
				mem.WriteByte(addr, uint8(val))
			} else {
				mem.WriteWord(addr, val)
			}
			return
		case OpLSL:
			result = evalShiftLeft(read(op.Args[0]), read(op.Args[1]))
		case OpLSR:
			result = evalShiftRight(read(op.Args[0]), read(op.Args[1]))
		case OpASR:
			result = uint32(int32(read(op.Args[0])) >> evalShiftAmount(read(op.Args[1])))
		case OpROR:
			result = evalRotateRight(read(op.Args[0]), read(op.Args[1]))
		case OpAnd:
			result = read(op.Args[0]) & read(op.Args[1])
		case OpOr:
			result = read(op.Args[0]) | read(op.Args[1])
		case OpXor:
			result = read(op.Args[0]) ^ read(op.Args[1])
		case OpBic:
			result = read(op.Args[0]) &^ read(op.Args[1])
		case OpMvn:
			result = ^read(op.Args[0])
		case OpAdd, OpAdc:
			result = read(op.Args[0]) + read(op.Args[1])
		case OpSub, OpSbc:
			result = read(op.Args[0]) - read(op.Args[1])
		case OpMul:
			result = read(op.Args[0]) * read(op.Args[1])
		case OpStoreFlags:
			flags = read(op.Args[0])
			return
		case OpLoadFlags:
			result = flags
		case OpBranch, OpBranchExchange, OpPreload, OpCopLoad, OpCopStore:
			return
		default:
			return
		}
		if op.Dst.Valid() {
			vars[op.Dst] = result
		}
	})
}

func evalShiftAmount(n uint32) uint32 {
	if n > 31 {
		return 31
	}
	return n
}

func evalShiftLeft(v, n uint32) uint32 {
	if n >= 32 {
		return 0
	}
	return v << n
}

func evalShiftRight(v, n uint32) uint32 {
	if n >= 32 {
		return 0
	}
	return v >> n
}

func evalRotateRight(v, n uint32) uint32 {
	n &= 31
	if n == 0 {
		return v
	}
	return (v >> n) | (v << (32 - n))
}
