/*
   RegisterFile: the 16 visible GPRs, the banked R8-R14 copies for every
   processor mode, CPSR/SPSR storage and the mode-switch bank-swap logic
   that keeps them consistent (spec.md §4.2).

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

// Package register implements the ARM register file: 16 visible GPRs,
// banked R8-R14 for the six processor mode banks, CPSR and the five
// non-User SPSRs.
package register

// Mode is the 5-bit CPSR mode field.
type Mode uint32

const (
	User       Mode = 0x10
	FIQ        Mode = 0x11
	IRQ        Mode = 0x12
	Supervisor Mode = 0x13
	Abort      Mode = 0x17
	Undefined  Mode = 0x1B
	System     Mode = 0x1F
)

// CPSR field masks.
const (
	CPSRModeMask uint32 = 0x1F
	CPSRThumb    uint32 = 1 << 5
	CPSRFIQDis   uint32 = 1 << 6
	CPSRIRQDis   uint32 = 1 << 7
	CPSRSticky   uint32 = 1 << 27 // Q, v5TE only
	CPSROverflow uint32 = 1 << 28
	CPSRCarry    uint32 = 1 << 29
	CPSRZero     uint32 = 1 << 30
	CPSRNegative uint32 = 1 << 31
)

// bank indices into the R13/R14 table, one per distinct mode (System
// shares User's bank).
const (
	bankUser Mode = iota
	bankFIQ
	bankSupervisor
	bankAbort
	bankIRQ
	bankUndefined
	bankCount
)

func bankOf(mode Mode) Mode {
	switch mode {
	case FIQ:
		return bankFIQ
	case Supervisor:
		return bankSupervisor
	case Abort:
		return bankAbort
	case IRQ:
		return bankIRQ
	case Undefined:
		return bankUndefined
	case User, System:
		return bankUser
	default:
		return bankUser
	}
}

// File holds the full ARM register state for one CPU: the currently
// visible GPRs, every mode's banked R13/R14 and FIQ's banked R8-R12,
// CPSR, and the five non-User SPSRs.
type File struct {
	gpr [16]uint32

	// bankR13R14[bank] = {R13, R14} for that mode.
	bankR13R14 [bankCount][2]uint32
	// bankR8R12[0] = User/System/Supervisor/Abort/IRQ/Undefined shared bank,
	// bankR8R12[1] = FIQ's private bank.
	bankR8R12 [2][5]uint32

	cpsr uint32
	spsr [bankCount]uint32 // spsr[bankUser] is unused; User/System alias CPSR.
}

// Reset clears all registers and sets CPSR to Supervisor mode, ARM
// state, matching the architectural reset state.
func (f *File) Reset() {
	*f = File{}
	f.cpsr = uint32(Supervisor)
}

// GPR returns the value of register i (0-15) as currently visible.
func (f *File) GPR(i int) uint32 {
	return f.gpr[i]
}

// SetGPR writes register i (0-15) in the currently visible bank.
func (f *File) SetGPR(i int, v uint32) {
	f.gpr[i] = v
}

// GPRByMode returns register i as it would read from the given mode,
// without performing any bank swap of the live state. Used by the
// LDM/STM user-bank variant and by SPSR-mode introspection.
func (f *File) GPRByMode(i int, mode Mode) uint32 {
	switch {
	case i < 8 || i == 15:
		return f.gpr[i]
	case i <= 12:
		curFIQ := f.CurrentMode() == FIQ
		if mode == FIQ {
			if curFIQ {
				return f.gpr[i]
			}
			return f.bankR8R12[1][i-8]
		}
		if curFIQ {
			return f.bankR8R12[0][i-8]
		}
		return f.gpr[i]
	default: // 13, 14
		bank := bankOf(mode)
		if bank == bankOf(f.CurrentMode()) {
			return f.gpr[i]
		}
		return f.bankR13R14[bank][i-13]
	}
}

// SetGPRByMode writes register i as seen from the given mode.
func (f *File) SetGPRByMode(i int, mode Mode, v uint32) {
	switch {
	case i < 8 || i == 15:
		f.gpr[i] = v
	case i <= 12:
		if mode == FIQ {
			if f.CurrentMode() == FIQ {
				f.gpr[i] = v
			} else {
				f.bankR8R12[1][i-8] = v
			}
			return
		}
		if f.CurrentMode() == FIQ {
			f.bankR8R12[0][i-8] = v
		} else {
			f.gpr[i] = v
		}
	default:
		bank := bankOf(mode)
		if bank == bankOf(f.CurrentMode()) {
			f.gpr[i] = v
		} else {
			f.bankR13R14[bank][i-13] = v
		}
	}
}

// UserModeGPR reads register i as seen from User mode, for the LDM/STM
// ^ (user-bank) addressing variant.
func (f *File) UserModeGPR(i int) uint32 {
	return f.GPRByMode(i, User)
}

// SetUserModeGPR writes register i as seen from User mode.
func (f *File) SetUserModeGPR(i int, v uint32) {
	f.SetGPRByMode(i, User, v)
}

// CPSR returns the full current program status register.
func (f *File) CPSR() uint32 {
	return f.cpsr
}

// CurrentMode extracts the mode field from CPSR.
func (f *File) CurrentMode() Mode {
	return Mode(f.cpsr & CPSRModeMask)
}

// SetCPSRRaw overwrites CPSR verbatim without performing any bank
// swap; used by exception entry and MSR to the full register, both of
// which call SetMode separately to perform the swap.
func (f *File) SetCPSRRaw(v uint32) {
	f.cpsr = v
}

// CurrentSPSR resolves the sum-type "current SPSR" pointer: in
// User/System mode it aliases CPSR; elsewhere it is the bank's private
// SPSR.
func (f *File) CurrentSPSR() (value uint32, aliased bool) {
	mode := f.CurrentMode()
	if mode == User || mode == System {
		return f.cpsr, true
	}
	return f.spsr[bankOf(mode)], false
}

// SetCurrentSPSR writes the current SPSR. In User/System mode this is
// a silent no-op (§3, §9 Open Question 2 resolved: aliased read,
// dropped write) and reports false.
func (f *File) SetCurrentSPSR(v uint32) bool {
	mode := f.CurrentMode()
	if mode == User || mode == System {
		return false
	}
	f.spsr[bankOf(mode)] = v
	return true
}

// SPSRForMode returns the SPSR for a specific mode bank, regardless of
// the currently active mode. User/System has no SPSR of its own and
// reads back as CPSR.
func (f *File) SPSRForMode(mode Mode) uint32 {
	if mode == User || mode == System {
		return f.cpsr
	}
	return f.spsr[bankOf(mode)]
}

// SetMode performs an ARM mode switch: banking out the old R13/R14 (and
// R8-R12 if either side of the transition is FIQ), banking in the new
// mode's registers, and updating CPSR's mode field. Invalid mode values
// map to User, conservatively.
func (f *File) SetMode(newMode Mode) {
	if !validMode(newMode) {
		newMode = User
	}
	oldMode := f.CurrentMode()
	if oldMode == newMode {
		f.cpsr = (f.cpsr &^ CPSRModeMask) | uint32(newMode)
		return
	}

	oldBank := bankOf(oldMode)
	newBank := bankOf(newMode)

	// Save R13/R14 into the outgoing bank, load the incoming bank.
	f.bankR13R14[oldBank][0] = f.gpr[13]
	f.bankR13R14[oldBank][1] = f.gpr[14]
	f.gpr[13] = f.bankR13R14[newBank][0]
	f.gpr[14] = f.bankR13R14[newBank][1]

	// R8-R12 only ever move between the shared bank and FIQ's private
	// bank; swap iff either side of the transition is FIQ.
	if oldMode == FIQ || newMode == FIQ {
		oldR8R12Bank := 0
		if oldMode == FIQ {
			oldR8R12Bank = 1
		}
		newR8R12Bank := 0
		if newMode == FIQ {
			newR8R12Bank = 1
		}
		for i := range 5 {
			f.bankR8R12[oldR8R12Bank][i] = f.gpr[8+i]
			f.gpr[8+i] = f.bankR8R12[newR8R12Bank][i]
		}
	}

	f.cpsr = (f.cpsr &^ CPSRModeMask) | uint32(newMode)
}

func validMode(m Mode) bool {
	switch m {
	case User, FIQ, IRQ, Supervisor, Abort, Undefined, System:
		return true
	default:
		return false
	}
}
