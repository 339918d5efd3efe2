/*
   Primitive 32-bit shift, rotate and addition helpers shared by the
   interpreter and the IR translator.

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

// Package arith implements the ARM barrel-shifter and ALU primitives that
// both the interpreter and the IR translator build their instruction
// handlers on top of.
package arith

// LSL shifts v left by n bits, handling the n==32/n>32 boundary cases
// that only register-specified shift amounts can reach; n==0 leaves v
// and the carry unchanged in both forms, so no immediate-form flag is
// taken.
func LSL(v, n uint32, carryIn bool) (result uint32, carryOut bool) {
	switch {
	case n == 0:
		return v, carryIn
	case n == 32:
		return 0, v&1 != 0
	case n > 32:
		return 0, false
	default:
		return v << n, (v>>(32-n))&1 != 0
	}
}

// LSR shifts v right by n bits. immForm selects the ARM encoding rule that
// an immediate shift amount of zero means "shift by 32", as used by data
// processing and single-register load/store shifter operands.
func LSR(v, n uint32, immForm bool, carryIn bool) (result uint32, carryOut bool) {
	if n == 0 {
		if !immForm {
			return v, carryIn
		}
		n = 32
	}
	switch {
	case n == 32:
		return 0, v>>31 != 0
	case n > 32:
		return 0, false
	default:
		return v >> n, (v>>(n-1))&1 != 0
	}
}

// ASR is LSR's arithmetic counterpart: the vacated high bits are filled
// with the sign bit of v rather than zero.
func ASR(v, n uint32, immForm bool, carryIn bool) (result uint32, carryOut bool) {
	if n == 0 {
		if !immForm {
			return v, carryIn
		}
		n = 32
	}
	sign := int32(v) < 0
	switch {
	case n >= 32:
		if sign {
			return 0xFFFFFFFF, true
		}
		return 0, false
	default:
		return uint32(int32(v) >> n), (v>>(n-1))&1 != 0
	}
}

// ROR rotates v right by n bits. For the immediate-form encoding, n==0
// denotes RRX: a 33-bit rotation through the current carry flag.
func ROR(v, n uint32, immForm bool, carryIn bool) (result uint32, carryOut bool) {
	if n == 0 {
		if !immForm {
			return v, carryIn
		}
		result = v >> 1
		if carryIn {
			result |= 0x80000000
		}
		return result, v&1 != 0
	}
	n &= 31
	if n == 0 {
		return v, v>>31 != 0
	}
	result = (v >> n) | (v << (32 - n))
	return result, result>>31 != 0
}

// RotateImmediate right-rotates an 8-bit immediate by rotate*2, as used by
// the data-processing immediate shifter operand encoding.
func RotateImmediate(imm uint32, rotate uint32) uint32 {
	rotate = (rotate & 0xF) * 2
	if rotate == 0 {
		return imm
	}
	return (imm >> rotate) | (imm << (32 - rotate))
}

// AddWithCarry computes a+b+carryIn and reports the unsigned carry-out and
// signed overflow flags using the standard ARM ADD/ADC definition.
func AddWithCarry(a, b uint32, carryIn bool) (result uint32, carryOut, overflow bool) {
	cin := uint64(0)
	if carryIn {
		cin = 1
	}
	wide := uint64(a) + uint64(b) + cin
	result = uint32(wide)
	carryOut = wide > 0xFFFFFFFF
	signA := a>>31 != 0
	signB := b>>31 != 0
	signR := result>>31 != 0
	overflow = signA == signB && signA != signR
	return result, carryOut, overflow
}

// SubWithCarry computes a-b-(1-carryIn) (the ARM SUB/SBC convention, where
// carryIn=true means "no borrow") and reports ARM's NOT-borrow carry flag
// and signed overflow.
func SubWithCarry(a, b uint32, carryIn bool) (result uint32, carryOut, overflow bool) {
	borrow := uint32(0)
	if !carryIn {
		borrow = 1
	}
	result = a - b - borrow
	carryOut = uint64(a) >= uint64(b)+uint64(borrow)
	signA := a>>31 != 0
	signB := b>>31 != 0
	signR := result>>31 != 0
	overflow = signA != signB && signA != signR
	return result, carryOut, overflow
}

// Saturate clamps a 64-bit intermediate result to the signed 32-bit range,
// reporting whether clamping actually occurred (used to set the Q flag on
// v5TE saturating arithmetic).
func Saturate(v int64) (result int32, saturated bool) {
	const (
		maxI32 = int64(1<<31) - 1
		minI32 = -int64(1 << 31)
	)
	if v > maxI32 {
		return int32(maxI32), true
	}
	if v < minI32 {
		return int32(minI32), true
	}
	return int32(v), false
}
