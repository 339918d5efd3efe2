/*
   IR: the SSA intermediate representation basic blocks are built from,
   consumed by the optimizer pipeline and (out of scope) a downstream
   code generator (spec.md §3, §4.9).

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

// Package ir implements the linear SSA intermediate representation
// basic blocks are translated into and the optimizer rewrites:
// variables, typed arguments, ops, and block-level metadata. Ops are
// referenced by arena index (§9 design note) rather than raw pointers
// so erase never invalidates a foreign reference.
package ir

// Variable is an SSA value identity: a non-negative arena index, or
// Absent.
type Variable int32

// Absent is the sentinel for "no variable" (e.g. an untracked shifter
// carry-out).
const Absent Variable = -1

func (v Variable) Valid() bool { return v != Absent }

// ArgKind tags which representation an Arg currently holds.
type ArgKind int

const (
	ArgNone ArgKind = iota
	ArgVariable
	ArgImmediate
	ArgGPR
)

// Arg is the tagged union backing VarOrImm/VariableArg/GPRArg/
// ImmediateArg from spec.md §3: either a variable, an immediate, or a
// GPR-by-mode reference.
type Arg struct {
	Kind      ArgKind
	Var       Variable
	Immediate uint32
	GPRNum    uint8
	GPRMode   uint32
}

func ImmArg(v uint32) Arg  { return Arg{Kind: ArgImmediate, Immediate: v} }
func VarArg(v Variable) Arg { return Arg{Kind: ArgVariable, Var: v} }
func GPRArg(num uint8, mode uint32) Arg {
	return Arg{Kind: ArgGPR, GPRNum: num, GPRMode: mode}
}

// IsConstant reports whether this arg already holds a literal 32-bit
// value without needing a variable lookup.
func (a Arg) IsConstant() bool { return a.Kind == ArgImmediate }

// Opcode enumerates the IR operation set (§3): register/PSR access,
// memory access, shifts, bitwise and arithmetic ALU ops, multiply,
// flag storage, branches, coprocessor access and literals.
type Opcode int

const (
	OpConstant Opcode = iota
	OpCopy
	OpGetReg
	OpSetReg
	OpGetCPSR
	OpSetCPSR
	OpGetSPSR
	OpSetSPSR
	OpGetBaseVectorAddress
	OpMemRead
	OpMemWrite
	OpPreload
	OpLSL
	OpLSR
	OpASR
	OpROR
	OpRRX
	OpAnd
	OpOr
	OpXor
	OpBic
	OpCLZ
	OpAdd
	OpAdc
	OpSub
	OpSbc
	OpMov
	OpMvn
	OpSaturatingAdd
	OpSaturatingSub
	OpMul
	OpMulLong
	OpMulAccumulate
	OpStoreFlags
	OpLoadFlags
	OpBranch
	OpBranchExchange
	OpCopLoad
	OpCopStore
)

// FlagMask selects a subset of {N,Z,C,V,Q} for ops that read or write
// host flags (StoreFlags/LoadFlags, and the NZCV-setting ALU ops).
type FlagMask uint8

const (
	FlagN FlagMask = 1 << iota
	FlagZ
	FlagC
	FlagV
	FlagQ
)

// IROp is one node of a basic block's doubly-linked op list. prev/next
// are arena indices into the owning BasicBlock's ops slice, -1 at the
// list ends.
type IROp struct {
	Op    Opcode
	Dst   Variable
	Args  [3]Arg
	Flags FlagMask // flags this op reads (for consumers) or writes (for producers)
	Cond  uint8    // per-op condition code; the translator leaves it 0 and records the block's condition in BasicBlock.Cond

	prev, next int32
}

// Terminal is the basic block's exit classification (§3).
type Terminal int

const (
	TerminalReturn Terminal = iota
	TerminalDirectLink
	TerminalIndirectLink
	TerminalIdleLoop
)

// LocationRef identifies a basic block's entry point in guest address
// space.
type LocationRef struct {
	PC    uint32
	Mode  uint32
	Thumb bool
}

// BasicBlock owns a bump-arena list of IROps plus the metadata the
// translator, optimizer and (eventually) a code generator need.
type BasicBlock struct {
	Location LocationRef
	Cond     uint8

	ops        []IROp
	head, tail int32 // arena indices, -1 when empty

	varCount   int32
	InstrCount int

	Terminal     Terminal
	TargetPC     uint32 // valid when Terminal == DirectLink
	PassCycles   uint64
	FailCycles   uint64
}

// NewBasicBlock returns an empty block rooted at loc, with a default
// Return terminal per §3 ("default is Return; the translator
// upgrades it").
func NewBasicBlock(loc LocationRef, cond uint8) *BasicBlock {
	return &BasicBlock{Location: loc, Cond: cond, head: -1, tail: -1, Terminal: TerminalReturn}
}

// NewVariable allocates a fresh SSA variable index.
func (b *BasicBlock) NewVariable() Variable {
	v := Variable(b.varCount)
	b.varCount++
	return v
}

// VariableCount returns the number of variables allocated so far.
func (b *BasicBlock) VariableCount() int32 { return b.varCount }

// Head/Tail return the arena index of the first/last op, or -1 if empty.
func (b *BasicBlock) Head() int32 { return b.head }
func (b *BasicBlock) Tail() int32 { return b.tail }

// Op returns a pointer to the op at arena index idx. Erase never moves
// slots, so the pointer survives it; Append and InsertBefore may grow
// the arena and invalidate it.
func (b *BasicBlock) Op(idx int32) *IROp {
	if idx < 0 {
		return nil
	}
	return &b.ops[idx]
}

// Next/Prev walk the intrusive list; callers must not follow raw
// struct fields directly (§4.8.1 emitter-cursor invariant).
func (b *BasicBlock) Next(idx int32) int32 {
	if idx < 0 {
		return -1
	}
	return b.ops[idx].next
}

func (b *BasicBlock) Prev(idx int32) int32 {
	if idx < 0 {
		return -1
	}
	return b.ops[idx].prev
}

// Append adds op to the tail of the list and returns its arena index.
func (b *BasicBlock) Append(op IROp) int32 {
	op.prev = b.tail
	op.next = -1
	idx := int32(len(b.ops))
	b.ops = append(b.ops, op)
	if b.tail >= 0 {
		b.ops[b.tail].next = idx
	} else {
		b.head = idx
	}
	b.tail = idx
	return idx
}

// InsertBefore inserts op immediately before at, returning the new
// op's arena index. at must be a live index in this block.
func (b *BasicBlock) InsertBefore(at int32, op IROp) int32 {
	prevIdx := b.ops[at].prev
	op.prev = prevIdx
	op.next = at
	idx := int32(len(b.ops))
	b.ops = append(b.ops, op)
	b.ops[at].prev = idx
	if prevIdx >= 0 {
		b.ops[prevIdx].next = idx
	} else {
		b.head = idx
	}
	return idx
}

// Erase unlinks the op at idx from the list in O(1). The arena slot is
// left allocated (never reused), matching the teacher's append-only
// storage idiom and keeping other indices stable.
func (b *BasicBlock) Erase(idx int32) {
	op := &b.ops[idx]
	if op.prev >= 0 {
		b.ops[op.prev].next = op.next
	} else {
		b.head = op.next
	}
	if op.next >= 0 {
		b.ops[op.next].prev = op.prev
	} else {
		b.tail = op.prev
	}
	op.prev, op.next = -2, -2 // mark erased; -2 distinguishes from a live list end (-1)
}

// Erased reports whether idx has been unlinked by Erase.
func (b *BasicBlock) Erased(idx int32) bool {
	return b.ops[idx].prev == -2 && b.ops[idx].next == -2
}

// Walk calls fn for every live op from Head to Tail in order.
func (b *BasicBlock) Walk(fn func(idx int32, op *IROp)) {
	for idx := b.head; idx >= 0; idx = b.ops[idx].next {
		fn(idx, &b.ops[idx])
	}
}
