/*
   Built-in configuration keys: core variant, memory layout, timing
   mode and trace flags (spec.md §4.11).

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

package cpuconfig

import (
	"fmt"
	"strings"

	"github.com/arm7core/armjit/internal/tracelog"
)

// Config holds the resolved settings a config file's CORE/MEMORY/ITCM/
// DTCM/TIMING/TRACE lines accumulate into. The CLI obtains one from
// Reset, calls Load on the config file, and passes its Variant and
// MemorySize to cpu.NewCPUState and memory.NewFlatMemory.
type Config struct {
	Variant string // "V4T" or "V5TE"
	MemorySize uint32
	ITCMSize   uint32
	DTCMSize   uint32
	UseMemoryTimings bool
}

// active is the Config the currently registered option setters mutate.
// cpuconfig intentionally has one global target, mirroring the
// package-level registration idiom the rest of the config loaders use;
// a process only ever boots one core.
var active = &Config{Variant: "V4T"}

func init() {
	RegisterOption("CORE", setCore)
	RegisterOption("MEMORY", setMemory)
	RegisterOption("ITCM", setITCM)
	RegisterOption("DTCM", setDTCM)
	RegisterOption("TIMING", setTiming)
	RegisterOption("TRACE", setTrace)
}

// Reset points future option setters at a fresh Config and returns it, so callers
// get an isolated Config per Load invocation instead of accumulating
// state across repeated loads (tests load multiple small files).
func Reset() *Config {
	active = &Config{Variant: "V4T"}
	return active
}

func setCore(args []string) error {
	if err := RequireArgs("CORE", args, 1); err != nil {
		return err
	}
	v := strings.ToUpper(args[0])
	if v != "V4T" && v != "V5TE" {
		return fmt.Errorf("cpuconfig: unknown CORE variant %q", args[0])
	}
	active.Variant = v
	return nil
}

func setMemory(args []string) error {
	if err := RequireArgs("MEMORY", args, 1); err != nil {
		return err
	}
	size, err := ParseSize(args[0])
	if err != nil {
		return err
	}
	active.MemorySize = size
	return nil
}

func setITCM(args []string) error {
	if err := RequireArgs("ITCM", args, 1); err != nil {
		return err
	}
	size, err := ParseSize(args[0])
	if err != nil {
		return err
	}
	active.ITCMSize = size
	return nil
}

func setDTCM(args []string) error {
	if err := RequireArgs("DTCM", args, 1); err != nil {
		return err
	}
	size, err := ParseSize(args[0])
	if err != nil {
		return err
	}
	active.DTCMSize = size
	return nil
}

func setTiming(args []string) error {
	if err := RequireArgs("TIMING", args, 1); err != nil {
		return err
	}
	switch strings.ToUpper(args[0]) {
	case "ON":
		active.UseMemoryTimings = true
	case "OFF":
		active.UseMemoryTimings = false
	default:
		return fmt.Errorf("cpuconfig: TIMING must be ON or OFF, got %q", args[0])
	}
	return nil
}

func setTrace(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("cpuconfig: TRACE requires at least one subsystem name, line %d", lineNum)
	}
	for _, a := range args {
		tracelog.Enable(a)
	}
	return nil
}

// Current returns the Config most recently populated by Load.
func Current() *Config {
	return active
}
