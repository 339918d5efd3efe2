/*
   Memory: the guest bus contract the interpreter, block cache and
   translator read and write through, plus a flat reference
   implementation used by tests and the CLI harness.

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

// Package memory defines the guest bus contract (§6.1) and a flat
// reference implementation of it.
package memory

// Bus identifies which logical bus an access is charged against.
type Bus int

const (
	Code Bus = iota
	Data
)

// AccessType distinguishes sequential (burst, same page as the previous
// access) from non-sequential bus cycles for timing purposes.
type AccessType int

const (
	Sequential AccessType = iota
	NonSequential
)

// Size identifies the width of a bus access.
type Size int

const (
	SizeByte Size = iota
	SizeHalf
	SizeWord
)

// Interface is the contract between the interpreter/block cache and the
// emulated system's memory map. Implementations must make Peek* calls
// side-effect free: no timing, no MMIO side effects, no access-flag
// bookkeeping.
type Interface interface {
	ReadByte(addr uint32) uint8
	ReadHalf(addr uint32) uint16
	ReadWord(addr uint32) uint32

	WriteByte(addr uint32, v uint8)
	WriteHalf(addr uint32, v uint16)
	WriteWord(addr uint32, v uint32)

	PeekByte(addr uint32) uint8
	PeekHalf(addr uint32) uint16
	PeekWord(addr uint32) uint32

	AccessCycles(addr uint32, bus Bus, kind AccessType, size Size) uint64
}

// FlatMemory is a reference Interface implementation backing the entire
// 32-bit address space with one byte slice sized to fit the caller's
// needs, used by tests and the CLI harness in place of a real memory
// map (out of scope per spec.md §1).
type FlatMemory struct {
	data          []byte
	fixedCycles   uint64
	useTimingHint bool
}

// NewFlatMemory allocates size bytes of guest memory with a fixed
// per-access cost of 1 cycle, which AccessCycles returns while timing
// hints are off (§4.4.1).
func NewFlatMemory(size uint32) *FlatMemory {
	return &FlatMemory{data: make([]byte, size), fixedCycles: 1}
}

// UseTimingHints toggles whether AccessCycles adds one cycle for a
// non-sequential access and one for a word-sized data access, or always
// returns the fixed 1-cycle fallback.
func (m *FlatMemory) UseTimingHints(use bool) {
	m.useTimingHint = use
}

func (m *FlatMemory) ReadByte(addr uint32) uint8 {
	if int(addr) >= len(m.data) {
		return 0
	}
	return m.data[addr]
}

func (m *FlatMemory) ReadHalf(addr uint32) uint16 {
	addr &^= 1
	if int(addr)+1 >= len(m.data) {
		return 0
	}
	return uint16(m.data[addr]) | uint16(m.data[addr+1])<<8
}

func (m *FlatMemory) ReadWord(addr uint32) uint32 {
	addr &^= 3
	if int(addr)+3 >= len(m.data) {
		return 0
	}
	return uint32(m.data[addr]) | uint32(m.data[addr+1])<<8 |
		uint32(m.data[addr+2])<<16 | uint32(m.data[addr+3])<<24
}

func (m *FlatMemory) WriteByte(addr uint32, v uint8) {
	if int(addr) >= len(m.data) {
		return
	}
	m.data[addr] = v
}

func (m *FlatMemory) WriteHalf(addr uint32, v uint16) {
	addr &^= 1
	if int(addr)+1 >= len(m.data) {
		return
	}
	m.data[addr] = byte(v)
	m.data[addr+1] = byte(v >> 8)
}

func (m *FlatMemory) WriteWord(addr uint32, v uint32) {
	addr &^= 3
	if int(addr)+3 >= len(m.data) {
		return
	}
	m.data[addr] = byte(v)
	m.data[addr+1] = byte(v >> 8)
	m.data[addr+2] = byte(v >> 16)
	m.data[addr+3] = byte(v >> 24)
}

func (m *FlatMemory) PeekByte(addr uint32) uint8   { return m.ReadByte(addr) }
func (m *FlatMemory) PeekHalf(addr uint32) uint16  { return m.ReadHalf(addr) }
func (m *FlatMemory) PeekWord(addr uint32) uint32  { return m.ReadWord(addr) }

func (m *FlatMemory) AccessCycles(addr uint32, bus Bus, kind AccessType, size Size) uint64 {
	if !m.useTimingHint {
		return m.fixedCycles
	}
	cycles := m.fixedCycles
	if kind == NonSequential {
		cycles++
	}
	if size == SizeWord && bus == Data {
		cycles++
	}
	return cycles
}

// Len reports the size of the backing store in bytes.
func (m *FlatMemory) Len() uint32 {
	return uint32(len(m.data))
}
