/*
   Decoder: pure opcode-to-handler-index mapping for ARM and Thumb,
   realized as dispatch tables built once at process start from a
   declarative list of bitfield patterns (spec.md §4.3, §9).

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

// Package decoder builds the ARM and Thumb dispatch tables from a
// declarative list of (mask, value, handler) entries over the 12-bit
// and 10-bit index spaces spec.md §4.3 defines, so the interpreter's
// hot path never does more than a single table lookup.
package decoder

// ARMTableSize is the size of the ARM dispatch table: 4096 entries
// indexed by bits 27:20 (8 bits) concatenated with bits 7:4 (4 bits).
const ARMTableSize = 4096

// ThumbTableSize is the size of the Thumb dispatch table: 1024 entries
// indexed by the opcode's top 10 bits.
const ThumbTableSize = 1024

// ARMIndex computes the 12-bit ARM dispatch index for a raw 32-bit
// instruction word.
func ARMIndex(raw uint32) int {
	return int(((raw >> 16) & 0xFF0) | ((raw >> 4) & 0xF))
}

// ThumbIndex computes the 10-bit Thumb dispatch index for a raw 16-bit
// instruction half-word.
func ThumbIndex(raw uint16) int {
	return int(raw >> 6)
}

// Entry declares that every dispatch index whose bits match
// (index & IndexMask) == IndexValue resolves to Handler. Entries are
// applied in order; a later entry overwrites an earlier one's claim on
// an index, letting callers list broad patterns first and narrower
// exceptions afterward.
type Entry[T any] struct {
	IndexMask  uint32
	IndexValue uint32
	Handler    T
}

// BuildTable allocates a table of the given size, fills every slot with
// fallback, then applies entries in order. It is used once at init time
// to materialize both the ARM and Thumb dispatch tables.
func BuildTable[T any](size int, fallback T, entries []Entry[T]) []T {
	table := make([]T, size)
	for i := range table {
		table[i] = fallback
	}
	for _, e := range entries {
		for idx := 0; idx < size; idx++ {
			if uint32(idx)&e.IndexMask == e.IndexValue {
				table[idx] = e.Handler
			}
		}
	}
	return table
}

// conditionTable[cond|nzcv<<4] reports whether condition cond passes
// given CPSR's N Z C V bits packed into nzcv's low nibble (spec.md
// §4.4 step 3).
var conditionTable [256]bool

func init() {
	for nzcv := 0; nzcv < 16; nzcv++ {
		n := nzcv&0x8 != 0
		z := nzcv&0x4 != 0
		c := nzcv&0x2 != 0
		v := nzcv&0x1 != 0
		for cond := 0; cond < 16; cond++ {
			conditionTable[(nzcv<<4)|cond] = evalCondition(cond, n, z, c, v)
		}
	}
}

func evalCondition(cond int, n, z, c, v bool) bool {
	switch cond {
	case 0x0: // EQ
		return z
	case 0x1: // NE
		return !z
	case 0x2: // CS/HS
		return c
	case 0x3: // CC/LO
		return !c
	case 0x4: // MI
		return n
	case 0x5: // PL
		return !n
	case 0x6: // VS
		return v
	case 0x7: // VC
		return !v
	case 0x8: // HI
		return c && !z
	case 0x9: // LS
		return !c || z
	case 0xA: // GE
		return n == v
	case 0xB: // LT
		return n != v
	case 0xC: // GT
		return !z && n == v
	case 0xD: // LE
		return z || n != v
	case 0xE: // AL
		return true
	default: // NV
		return false
	}
}

// ConditionPassed looks up whether the 4-bit condition code cond
// passes given the CPSR NZCV nibble, via the precomputed 256-entry
// truth table.
func ConditionPassed(nzcv uint8, cond uint8) bool {
	return conditionTable[(uint16(nzcv&0xF)<<4)|uint16(cond&0xF)]
}
