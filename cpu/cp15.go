/*
   CP15: the ARMv5TE system control coprocessor -- control register,
   protection unit regions, TCM configuration and cache-maintenance
   operations (spec.md §4.5). Not present on the v4T variant.

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

import "github.com/arm7core/armjit/internal/tracelog"

// protectionRegion is one of CP15's eight PU regions.
type protectionRegion struct {
	enable  bool
	sizeExp uint32 // region size = 2^(sizeExp+1)
	base    uint32 // 4KB-aligned base address
}

// CP15 holds the ARMv5TE system control coprocessor state. Every
// CPUState carries one; coprocessorHandler checks Variant and only
// routes CP15 accesses here on a V5TE core.
type CP15 struct {
	control uint32 // writable mask 0x000FF085

	cacheability       uint32 // 0x200
	bufferability      uint32 // 0x201
	accessNormal       uint32 // 0x300
	accessExtended     [4]uint32 // 0x500/0x501: data region access permissions
	instAccessExtended [4]uint32 // 0x502/0x503: instruction region access permissions

	dataRegions [8]protectionRegion
	instRegions [8]protectionRegion // regionWrite keeps it identical to dataRegions

	itcmParams uint32
	dtcmParams uint32
	itcmWriteSize, itcmReadSize uint32
	dtcmWriteSize, dtcmReadSize uint32
	dtcmBase uint32

	invalidate func() // notifies the owning BlockCache; nil-safe.
}

// Control register bit layout (§4.5).
const (
	CtlWritableMask uint32 = 0x000FF085
	CtlPUEnable     uint32 = 1 << 0
	CtlDCacheEnable uint32 = 1 << 2
	CtlICacheEnable uint32 = 1 << 12
	CtlITCMEnable   uint32 = 1 << 18
	CtlITCMLoadMode uint32 = 1 << 19
	CtlDTCMEnable   uint32 = 1 << 16
	CtlDTCMLoadMode uint32 = 1 << 17
	CtlVectorHigh   uint32 = 1 << 13
	CtlPreARMv5     uint32 = 1 << 15 // "L4": legacy load/store PC behavior
)

const mainIDValue = 0x41059461   // fixed constant identifying an ARM946E-S-class core
const cacheTypeValue = 0x0F006006
const tcmSizeValue = 0x00140180 // 32KB ITCM / 16KB DTCM size descriptor

// SetInvalidateNotifier installs the callback CP15 calls on cache
// maintenance operations and TCM reconfiguration.
func (c *CP15) SetInvalidateNotifier(fn func()) {
	c.invalidate = fn
}

func (c *CP15) notify() {
	if c.invalidate != nil {
		c.invalidate()
	}
}

// BaseVectorAddress returns 0xFFFF0000 when the control register's V
// bit is set, else 0.
func (c *CP15) BaseVectorAddress() uint32 {
	if c.control&CtlVectorHigh != 0 {
		return 0xFFFF0000
	}
	return 0
}

// regNumber packs (crn, crm, opcode2) into the addressing scheme used
// by the register map in §4.5.
func regNumber(crn, crm, opc2 uint32) uint32 {
	return (crn << 8) | (crm << 4) | opc2
}

// Read implements an MRC from CP15.
func (c *CP15) Read(crn, crm, opc2 uint32) uint32 {
	switch regNumber(crn, crm, opc2) {
	case 0x000:
		return mainIDValue
	case 0x001:
		return cacheTypeValue
	case 0x002:
		return tcmSizeValue
	case 0x100:
		return c.control
	case 0x200:
		return c.cacheability
	case 0x201:
		return c.bufferability
	case 0x300:
		return c.accessNormal
	case 0x500:
		return packAccessPermission(c.accessExtended)
	case 0x501:
		return c.accessExtended[0]
	case 0x502:
		return packAccessPermission(c.instAccessExtended)
	case 0x503:
		return c.instAccessExtended[0]
	case 0x910:
		return c.itcmParams
	case 0x911:
		return c.dtcmParams
	default:
		return c.regionRead(crn, crm, opc2)
	}
}

// Write implements an MCR to CP15.
func (c *CP15) Write(crn, crm, opc2, value uint32, state *ExecState) {
	switch regNumber(crn, crm, opc2) {
	case 0x100:
		c.control = value & CtlWritableMask
		tracelog.Tracef(tracelog.CP15, "control=%#x", c.control)
		c.configureITCM()
		c.configureDTCM()
		c.notify()
	case 0x200:
		c.cacheability = value
	case 0x201:
		c.bufferability = value
	case 0x300:
		c.accessNormal = value
	case 0x500:
		unpackAccessPermission(value, &c.accessExtended)
	case 0x501:
		c.accessExtended[0] = value
	case 0x502:
		unpackAccessPermission(value, &c.instAccessExtended)
	case 0x503:
		c.instAccessExtended[0] = value
	case 0x704, 0x782:
		*state = Halt
	case 0x910:
		c.itcmParams = value
		c.configureITCM()
		c.notify()
	case 0x911:
		c.dtcmParams = value
		c.configureDTCM()
		c.notify()
	default:
		if regNumber(crn, crm, opc2) >= 0x750 && regNumber(crn, crm, opc2) <= 0x7A2 {
			c.notify() // cache/TLB invalidate: no cache model here, just drop the JIT's blocks.
			return
		}
		c.regionWrite(crn, crm, opc2, value)
	}
}

func (c *CP15) regionRead(crn, crm, opc2 uint32) uint32 {
	n := regNumber(crn, crm, opc2)
	if n < 0x600 || n > 0x671 {
		return 0
	}
	idx := (n - 0x600) / 0x10 % 8
	r := c.dataRegions[idx]
	var v uint32
	if r.enable {
		v |= 1
	}
	v |= r.sizeExp << 1
	v |= r.base
	return v
}

func (c *CP15) regionWrite(crn, crm, opc2, value uint32) {
	n := regNumber(crn, crm, opc2)
	if n < 0x600 || n > 0x671 {
		return
	}
	idx := (n - 0x600) / 0x10 % 8
	c.dataRegions[idx] = protectionRegion{
		enable:  value&1 != 0,
		sizeExp: (value >> 1) & 0x1F,
		base:    value &^ 0xFFF,
	}
	c.instRegions[idx] = c.dataRegions[idx]
}

// packAccessPermission/unpackAccessPermission emulate the backwards
// compatible 2-bit-per-region packing described into 4-bit slots in
// the "legacy" access permission register (0x500).
func packAccessPermission(ext [4]uint32) uint32 {
	var out uint32
	for i := 0; i < 8; i++ {
		field := (ext[i/2] >> ((i % 2) * 16)) & 0x3
		out |= field << (i * 4)
	}
	return out
}

func unpackAccessPermission(v uint32, ext *[4]uint32) {
	for i := 0; i < 8; i++ {
		field := (v >> (i * 4)) & 0x3
		ext[i/2] |= field << ((i % 2) * 16)
	}
}

func (c *CP15) configureITCM() {
	writeSize := uint32(0x200) << ((c.itcmParams >> 1) & 0x1F)
	readSize := writeSize
	if c.control&CtlITCMLoadMode != 0 {
		readSize = 0
	}
	c.itcmWriteSize, c.itcmReadSize = writeSize, readSize
}

func (c *CP15) configureDTCM() {
	writeSize := uint32(0x200) << ((c.dtcmParams >> 1) & 0x1F)
	readSize := writeSize
	if c.control&CtlDTCMLoadMode != 0 {
		readSize = 0
	}
	c.dtcmWriteSize, c.dtcmReadSize = writeSize, readSize
	c.dtcmBase = c.dtcmParams & 0xFFFFF000
}
