/*
   Optimizer: the fixed-point pass driver and the nine standard passes
   that rewrite a freshly translated IR block in place before it enters
   the block cache (spec.md §4.8, §4.8.1-§4.8.3).

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

// Package optimizer runs the standard pass pipeline over a translated
// ir.BasicBlock to a fixed point: constant propagation, five dead-code
// elimination passes and three op-coalescence passes, plus the
// idle-loop detector that tags a block as a spin-wait candidate
// (spec.md §4.8).
package optimizer

import (
	"github.com/arm7core/armjit/internal/tracelog"
	"github.com/arm7core/armjit/ir"
)

// Every pass below rewrites ops in place via BasicBlock.Op and removes
// dead ones via BasicBlock.Erase; neither ever touches the block's
// arena slice directly, so an op's index stays valid across passes
// even after it is erased (§4.8.1).

// Pass is one rewrite step. It reports whether it changed the block,
// which drives the fixed-point loop in Run.
type Pass func(b *ir.BasicBlock) bool

// Run applies every pass in order repeatedly until a full pass over
// the list makes no further changes, per §4.8's fixed-point contract.
// It then runs the idle-loop detector once, since idle-loop tagging
// depends on the block already being in its most reduced form.
func Run(b *ir.BasicBlock) {
	passes := []Pass{
		constantPropagation,
		deadRegisterStoreElimination,
		deadRegisterLoadElimination,
		deadHostFlagElimination,
		deadFlagValueElimination,
		deadVariableStoreElimination,
		bitwiseCoalescence,
		arithmeticCoalescence,
		hostFlagOpsCoalescence,
	}

	for {
		changed := false
		for _, p := range passes {
			if p(b) {
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	if DetectIdleLoop(b) {
		b.Terminal = ir.TerminalIdleLoop
		tracelog.Tracef(tracelog.Opt, "idle loop detected pc=%#x", b.Location.PC)
	}
}

// constValue resolves an Arg to a known uint32 if it is already an
// immediate or a variable produced by a live, unerased OpConstant.
func constValue(b *ir.BasicBlock, a ir.Arg) (uint32, bool) {
	if a.Kind == ir.ArgImmediate {
		return a.Immediate, true
	}
	if a.Kind != ir.ArgVariable || !a.Var.Valid() {
		return 0, false
	}
	found := uint32(0)
	ok := false
	b.Walk(func(idx int32, op *ir.IROp) {
		if ok || op.Dst != a.Var {
			return
		}
		if op.Op == ir.OpConstant {
			found, ok = op.Args[0].Immediate, true
		}
	})
	return found, ok
}

// constantPropagation (§4.8.2) folds arithmetic and bitwise ops whose
// operands are both compile-time constants into a single OpConstant,
// and rewrites Arg references to already-constant variables into
// immediates directly so later passes don't need to re-walk for them.
func constantPropagation(b *ir.BasicBlock) bool {
	changed := false
	b.Walk(func(idx int32, op *ir.IROp) {
		for i := range op.Args {
			if op.Args[i].Kind != ir.ArgVariable {
				continue
			}
			if v, ok := constValue(b, op.Args[i]); ok {
				op.Args[i] = ir.ImmArg(v)
				changed = true
			}
		}
		if op.Op == ir.OpConstant || op.Flags != 0 {
			return
		}
		a, aok := constValue(b, op.Args[0])
		bv, bok := constValue(b, op.Args[1])
		if !aok || !bok {
			return
		}
		var folded uint32
		switch op.Op {
		case ir.OpAnd:
			folded = a & bv
		case ir.OpOr:
			folded = a | bv
		case ir.OpXor:
			folded = a ^ bv
		case ir.OpBic:
			folded = a &^ bv
		case ir.OpAdd:
			folded = a + bv
		case ir.OpSub:
			folded = a - bv
		default:
			return
		}
		op.Op = ir.OpConstant
		op.Args = [3]ir.Arg{ir.ImmArg(folded)}
		changed = true
	})
	return changed
}

// usedVars collects every variable read by a live op in the block,
// excluding the op at index skip (so a def can check its own liveness).
func usedVars(b *ir.BasicBlock, skip int32) map[ir.Variable]bool {
	used := make(map[ir.Variable]bool)
	b.Walk(func(idx int32, op *ir.IROp) {
		if idx == skip {
			return
		}
		for _, a := range op.Args {
			if a.Kind == ir.ArgVariable && a.Var.Valid() {
				used[a.Var] = true
			}
		}
	})
	return used
}

// deadVariableStoreElimination drops any op whose Dst variable is
// never read by a later live op and which has no side effect.
func deadVariableStoreElimination(b *ir.BasicBlock) bool {
	changed := false
	var dead []int32
	b.Walk(func(idx int32, op *ir.IROp) {
		if !op.Dst.Valid() || hasSideEffect(op.Op) {
			return
		}
		used := usedVars(b, idx)
		if !used[op.Dst] {
			dead = append(dead, idx)
		}
	})
	for _, idx := range dead {
		b.Erase(idx)
		changed = true
	}
	return changed
}

func hasSideEffect(op ir.Opcode) bool {
	switch op {
	case ir.OpSetReg, ir.OpSetCPSR, ir.OpSetSPSR, ir.OpMemWrite,
		ir.OpBranch, ir.OpBranchExchange, ir.OpCopStore, ir.OpStoreFlags, ir.OpPreload:
		return true
	default:
		return false
	}
}

// regSlot names a last-write slot tracked by deadRegisterStoreElimination:
// either one of the 16 GPRs or the current mode's CPSR/SPSR.
type regSlot struct {
	kind uint8 // 0 = GPR, 1 = CPSR, 2 = SPSR
	num  uint8
}

const (
	slotGPR uint8 = iota
	slotCPSR
	slotSPSR
)

// deadRegisterStoreElimination (§4.8.2, "tracks PSR/GPR versions")
// drops a SetReg/SetCPSR/SetSPSR when a later write to the same
// register or PSR exists with nothing reading it in between, leaving
// only the final write live.
func deadRegisterStoreElimination(b *ir.BasicBlock) bool {
	changed := false
	lastWrite := map[regSlot]int32{}
	var dead []int32
	record := func(slot regSlot, idx int32) {
		if prev, ok := lastWrite[slot]; ok {
			dead = append(dead, prev)
		}
		lastWrite[slot] = idx
	}
	b.Walk(func(idx int32, op *ir.IROp) {
		switch op.Op {
		case ir.OpGetReg:
			delete(lastWrite, regSlot{slotGPR, op.Args[0].GPRNum})
		case ir.OpGetCPSR:
			delete(lastWrite, regSlot{kind: slotCPSR})
		case ir.OpGetSPSR:
			delete(lastWrite, regSlot{kind: slotSPSR})
		case ir.OpSetReg:
			record(regSlot{slotGPR, op.Args[0].GPRNum}, idx)
		case ir.OpSetCPSR:
			record(regSlot{kind: slotCPSR}, idx)
		case ir.OpSetSPSR:
			record(regSlot{kind: slotSPSR}, idx)
		}
	})
	for _, idx := range dead {
		if !b.Erased(idx) {
			b.Erase(idx)
			changed = true
		}
	}
	return changed
}

// deadRegisterLoadElimination removes a GetReg/GetCPSR/GetSPSR whose
// result variable is never used once constant propagation and
// register-store elimination have already rewritten its consumers
// away. This is a distinct optimization from
// deadRegisterStoreElimination: it kills unread loads rather than
// superseded stores.
func deadRegisterLoadElimination(b *ir.BasicBlock) bool {
	changed := false
	var dead []int32
	b.Walk(func(idx int32, op *ir.IROp) {
		switch op.Op {
		case ir.OpGetReg, ir.OpGetCPSR, ir.OpGetSPSR:
		default:
			return
		}
		if !op.Dst.Valid() {
			return
		}
		used := usedVars(b, idx)
		if !used[op.Dst] {
			dead = append(dead, idx)
		}
	})
	for _, idx := range dead {
		b.Erase(idx)
		changed = true
	}
	return changed
}

// flagsConsumedLater reports whether any op after idx may read the host
// NZCV/Q state: an OpLoadFlags, or any op whose Cond is not AL (0xE).
// Ops the translator emits carry Cond 0, so in a translated block every
// later op counts as a consumer.
func flagsConsumedLater(b *ir.BasicBlock, after int32) bool {
	seen := false
	consumed := false
	b.Walk(func(idx int32, op *ir.IROp) {
		if !seen {
			if idx == after {
				seen = true
			}
			return
		}
		if op.Op == ir.OpLoadFlags || op.Cond != 0xE {
			consumed = true
		}
	})
	return consumed
}

// deadHostFlagElimination (§4.8.2) clears the Flags mask on an op
// whose flag outputs are never subsequently consumed, letting a code
// generator skip computing them.
func deadHostFlagElimination(b *ir.BasicBlock) bool {
	changed := false
	b.Walk(func(idx int32, op *ir.IROp) {
		if op.Flags == 0 {
			return
		}
		if !flagsConsumedLater(b, idx) {
			op.Flags = 0
			changed = true
		}
	})
	return changed
}

// deadFlagValueElimination drops an OpStoreFlags whose Dst variable no
// live op reads; OpLoadFlags ops are left alone.
func deadFlagValueElimination(b *ir.BasicBlock) bool {
	changed := false
	var dead []int32
	b.Walk(func(idx int32, op *ir.IROp) {
		if op.Op != ir.OpStoreFlags || !op.Dst.Valid() {
			return
		}
		used := usedVars(b, idx)
		if !used[op.Dst] {
			dead = append(dead, idx)
		}
	})
	for _, idx := range dead {
		b.Erase(idx)
		changed = true
	}
	return changed
}

// bitRecord is the per-variable Value record of §4.8.2's worked
// contract: the bits of a derived value that are already known, the
// bits still pending an XOR, and the variable the chain ultimately
// derives from. known_mask/known_value/flipped hold their meaning
// directly in the coordinate frame of the current value; there is no
// rotate_right field and the source is never rotated. The shift merges
// below rotate all three bit patterns together, and deriveRecord keeps
// a shift's record only when it leaves every bit known; any other
// shift result starts a new chain as an opaque source.
type bitRecord struct {
	knownMask  uint32
	knownValue uint32
	flipped    uint32
	source     ir.Variable
}

func constRecord(v uint32) bitRecord {
	return bitRecord{knownMask: 0xFFFFFFFF, knownValue: v, source: ir.Absent}
}

func andMerge(r bitRecord, c uint32) bitRecord {
	return bitRecord{
		knownMask:  r.knownMask | ^c,
		knownValue: r.knownValue & r.knownMask & c,
		flipped:    r.flipped & c,
		source:     r.source,
	}
}

func orMerge(r bitRecord, c uint32) bitRecord {
	return bitRecord{
		knownMask:  r.knownMask | c,
		knownValue: r.knownValue | c,
		flipped:    r.flipped &^ c,
		source:     r.source,
	}
}

func bicMerge(r bitRecord, c uint32) bitRecord { return andMerge(r, ^c) }

// xorMerge folds an EOR by c into r: bits already known simply flip in
// place (the affected bits are known, per §4.8.2); bits still unknown
// accumulate into flipped, to be emitted as a trailing EOR.
func xorMerge(r bitRecord, c uint32) bitRecord {
	return bitRecord{
		knownMask:  r.knownMask,
		knownValue: r.knownValue ^ (c & r.knownMask),
		flipped:    r.flipped ^ (c &^ r.knownMask),
		source:     r.source,
	}
}

func rotateRight32(v, n uint32) uint32 {
	n &= 31
	if n == 0 {
		return v
	}
	return (v >> n) | (v << (32 - n))
}

func rorMerge(r bitRecord, amount uint32) bitRecord {
	return bitRecord{
		knownMask:  rotateRight32(r.knownMask, amount),
		knownValue: rotateRight32(r.knownValue, amount),
		flipped:    rotateRight32(r.flipped, amount),
		source:     r.source,
	}
}

func lsrMerge(r bitRecord, amount uint32) bitRecord {
	if amount == 0 {
		return r
	}
	if amount >= 32 {
		return constRecord(0)
	}
	rotated := rorMerge(r, amount)
	top := ^uint32(0) << (32 - amount)
	rotated.knownMask |= top
	rotated.knownValue &^= top
	rotated.flipped &^= top
	return rotated
}

func lslMerge(r bitRecord, amount uint32) bitRecord {
	if amount == 0 {
		return r
	}
	if amount >= 32 {
		return constRecord(0)
	}
	rotated := rorMerge(r, 32-amount)
	bottom := ^(^uint32(0) << amount)
	rotated.knownMask |= bottom
	rotated.knownValue &^= bottom
	rotated.flipped &^= bottom
	return rotated
}

// asrMerge folds an ASR by amount into r. Per §4.8.2, ASR can only be
// folded when the sign bit is already known, since the bits it shifts
// in depend on it.
func asrMerge(r bitRecord, amount uint32) (bitRecord, bool) {
	if amount == 0 {
		return r, true
	}
	if r.knownMask&(1<<31) == 0 {
		return bitRecord{}, false
	}
	sign := uint32(0)
	if r.knownValue&(1<<31) != 0 {
		sign = ^uint32(0)
	}
	if amount >= 32 {
		return constRecord(sign), true
	}
	rotated := rorMerge(r, amount)
	top := ^uint32(0) << (32 - amount)
	rotated.knownMask |= top
	rotated.knownValue = (rotated.knownValue &^ top) | (sign & top)
	rotated.flipped &^= top
	return rotated, true
}

// recordOfVar finds the live op defining v and derives its bitRecord,
// recursing through the chain; an undecodable or absent definition
// (a GetReg, MemRead, or anything else not in the supported
// derivation set) is treated as the chain's opaque source.
func recordOfVar(b *ir.BasicBlock, v ir.Variable) bitRecord {
	if !v.Valid() {
		return bitRecord{source: v}
	}
	var found *ir.IROp
	b.Walk(func(idx int32, op *ir.IROp) {
		if found == nil && op.Dst == v {
			found = op
		}
	})
	if found == nil {
		return bitRecord{source: v}
	}
	if rec, ok := deriveRecord(b, found); ok {
		return rec
	}
	return bitRecord{source: v}
}

// deriveRecord computes op's bitRecord if op is one of §4.8.2's
// supported derivations (AND/OR/BIC/XOR by an immediate, MOV/COPY,
// MVN, or a shift/rotate by an immediate amount whose result is fully
// known), reporting false otherwise.
func deriveRecord(b *ir.BasicBlock, op *ir.IROp) (bitRecord, bool) {
	switch op.Op {
	case ir.OpConstant:
		return constRecord(op.Args[0].Immediate), true
	case ir.OpCopy, ir.OpMov:
		if op.Args[0].Kind != ir.ArgVariable {
			return bitRecord{}, false
		}
		return recordOfVar(b, op.Args[0].Var), true
	case ir.OpMvn:
		if op.Args[0].Kind != ir.ArgVariable {
			return bitRecord{}, false
		}
		return xorMerge(recordOfVar(b, op.Args[0].Var), 0xFFFFFFFF), true
	case ir.OpAnd, ir.OpOr, ir.OpBic, ir.OpXor:
		if op.Args[0].Kind != ir.ArgVariable || op.Args[1].Kind != ir.ArgImmediate {
			return bitRecord{}, false
		}
		r := recordOfVar(b, op.Args[0].Var)
		switch op.Op {
		case ir.OpAnd:
			return andMerge(r, op.Args[1].Immediate), true
		case ir.OpOr:
			return orMerge(r, op.Args[1].Immediate), true
		case ir.OpBic:
			return bicMerge(r, op.Args[1].Immediate), true
		default:
			return xorMerge(r, op.Args[1].Immediate), true
		}
	case ir.OpLSR, ir.OpLSL, ir.OpROR, ir.OpASR:
		if op.Args[0].Kind != ir.ArgVariable || op.Args[1].Kind != ir.ArgImmediate {
			return bitRecord{}, false
		}
		r := recordOfVar(b, op.Args[0].Var)
		amount := op.Args[1].Immediate
		var rec bitRecord
		ok := true
		switch op.Op {
		case ir.OpLSR:
			rec = lsrMerge(r, amount)
		case ir.OpLSL:
			rec = lslMerge(r, amount)
		case ir.OpROR:
			rec = rorMerge(r, amount)
		default:
			rec, ok = asrMerge(r, amount)
		}
		// The emitted sequence never shifts the source, so a shift is
		// folded only when it leaves every bit known.
		if !ok || rec.knownMask != 0xFFFFFFFF {
			return bitRecord{}, false
		}
		return rec, true
	default:
		return bitRecord{}, false
	}
}

type bitStep struct {
	op   ir.Opcode
	mask uint32
}

// canonicalSteps emits rec's output sequence per §4.8.2: ORR for known
// ones, then BIC for known zeros, then EOR for flipped bits, skipping
// any step whose mask is zero. A nil result with rec fully known means
// the caller should emit a single Constant instead.
func canonicalSteps(rec bitRecord) []bitStep {
	var steps []bitStep
	if ones := rec.knownMask & rec.knownValue; ones != 0 {
		steps = append(steps, bitStep{ir.OpOr, ones})
	}
	if zeros := rec.knownMask &^ rec.knownValue; zeros != 0 {
		steps = append(steps, bitStep{ir.OpBic, zeros})
	}
	if rec.flipped != 0 {
		steps = append(steps, bitStep{ir.OpXor, rec.flipped})
	}
	return steps
}

// bitwiseCoalescence (§4.8.2) propagates known/flipped bits through
// chains of AND/OR/BIC/XOR/MOV/COPY/MVN ops (and shift-by-immediate
// ops whose result is fully known) and
// rewrites each link to the minimal equivalent form: a Constant if the
// whole value is known, a Copy if the chain cancels out entirely, or
// the ORR/BIC/EOR sequence §4.8.2 specifies otherwise. It also merges
// an AND/OR/XOR of a value with itself into a copy or zero constant,
// independent of the known-bit machinery above.
func bitwiseCoalescence(b *ir.BasicBlock) bool {
	changed := false
	b.Walk(func(idx int32, op *ir.IROp) {
		switch op.Op {
		case ir.OpAnd, ir.OpOr:
			if op.Args[0].Kind == ir.ArgVariable && op.Args[0] == op.Args[1] {
				op.Op = ir.OpCopy
				op.Args[1] = ir.Arg{}
				changed = true
				return
			}
		case ir.OpXor:
			if op.Args[0].Kind == ir.ArgVariable && op.Args[0] == op.Args[1] {
				op.Op = ir.OpConstant
				op.Args = [3]ir.Arg{ir.ImmArg(0)}
				changed = true
				return
			}
		}

		if !op.Dst.Valid() {
			return
		}
		rec, ok := deriveRecord(b, op)
		if !ok {
			return
		}

		if rec.knownMask == 0xFFFFFFFF {
			if op.Op == ir.OpConstant && op.Args[0].Immediate == rec.knownValue {
				return
			}
			op.Op = ir.OpConstant
			op.Args = [3]ir.Arg{ir.ImmArg(rec.knownValue)}
			changed = true
			return
		}

		steps := canonicalSteps(rec)
		if len(steps) == 0 {
			if op.Op == ir.OpCopy && op.Args[0].Kind == ir.ArgVariable && op.Args[0].Var == rec.source {
				return
			}
			op.Op = ir.OpCopy
			op.Args = [3]ir.Arg{ir.VarArg(rec.source), {}}
			changed = true
			return
		}

		if len(steps) == 1 && op.Op == steps[0].op &&
			op.Args[0].Kind == ir.ArgVariable && op.Args[0].Var == rec.source &&
			op.Args[1].Kind == ir.ArgImmediate && op.Args[1].Immediate == steps[0].mask {
			return
		}
		// Already canonical: the last step applied to a value whose own
		// record yields exactly the earlier steps.
		if n := len(steps); n > 1 && op.Op == steps[n-1].op && op.Args[0].Kind == ir.ArgVariable &&
			op.Args[1].Kind == ir.ArgImmediate && op.Args[1].Immediate == steps[n-1].mask {
			prev := recordOfVar(b, op.Args[0].Var)
			prevSteps := canonicalSteps(prev)
			same := prev.source == rec.source && prev.knownMask != 0xFFFFFFFF && len(prevSteps) == n-1
			for i := 0; same && i < n-1; i++ {
				same = prevSteps[i] == steps[i]
			}
			if same {
				return
			}
		}

		cond := op.Cond
		cur := rec.source
		for i := 0; i < len(steps)-1; i++ {
			next := b.NewVariable()
			b.InsertBefore(idx, ir.IROp{
				Op:   steps[i].op,
				Dst:  next,
				Args: [3]ir.Arg{ir.VarArg(cur), ir.ImmArg(steps[i].mask)},
				Cond: cond,
			})
			cur = next
		}
		// InsertBefore may have grown and reallocated b.ops, stranding the
		// op pointer Walk handed us; re-fetch before the final mutation.
		last := steps[len(steps)-1]
		final := b.Op(idx)
		final.Op = last.op
		final.Args = [3]ir.Arg{ir.VarArg(cur), ir.ImmArg(last.mask)}
		changed = true
	})
	return changed
}

// arithmeticCoalescence folds an Add/Sub of an immediate zero into a
// plain copy of the other operand.
func arithmeticCoalescence(b *ir.BasicBlock) bool {
	changed := false
	b.Walk(func(idx int32, op *ir.IROp) {
		if op.Op != ir.OpAdd && op.Op != ir.OpSub {
			return
		}
		if op.Args[1].Kind == ir.ArgImmediate && op.Args[1].Immediate == 0 {
			op.Op = ir.OpCopy
			op.Args[1] = ir.Arg{}
			changed = true
		}
	})
	return changed
}

// hostFlagOpsCoalescence merges a LoadFlags immediately followed by a
// StoreFlags of the exact same mask back onto the same variable by
// erasing both ops, since the intervening round trip changes nothing.
func hostFlagOpsCoalescence(b *ir.BasicBlock) bool {
	changed := false
	var dead []int32
	prevLoad := int32(-1)
	b.Walk(func(idx int32, op *ir.IROp) {
		if op.Op == ir.OpLoadFlags {
			prevLoad = idx
			return
		}
		if op.Op == ir.OpStoreFlags && prevLoad >= 0 {
			prev := b.Op(prevLoad)
			if prev.Flags == op.Flags && prev.Args[0] == op.Args[0] {
				dead = append(dead, prevLoad, idx)
			}
		}
		prevLoad = -1
	})
	for _, idx := range dead {
		if !b.Erased(idx) {
			b.Erase(idx)
			changed = true
		}
	}
	return changed
}

// DetectIdleLoop recognizes the canonical spin-wait shape (§4.8,
// Scenario F): a block whose only live GPR write is to PC (via its
// Terminal) and whose body never writes memory or any other GPR,
// looping directly back to its own entry PC. Interpreters hand such
// blocks to the host scheduler instead of re-executing them.
func DetectIdleLoop(b *ir.BasicBlock) bool {
	if b.Terminal != ir.TerminalDirectLink || b.TargetPC != b.Location.PC {
		return false
	}
	writesOutside := false
	b.Walk(func(idx int32, op *ir.IROp) {
		if op.Op == ir.OpMemWrite || op.Op == ir.OpSetCPSR || op.Op == ir.OpSetSPSR {
			writesOutside = true
		}
		if op.Op == ir.OpSetReg && op.Args[0].GPRNum != 15 {
			writesOutside = true
		}
	})
	return !writesOutside
}
