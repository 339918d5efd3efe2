/*
   Bitmask-driven trace logging shared by the decoder, interpreter, block
   cache and optimizer so individual subsystems can be enabled from the
   config file or CLI without recompiling.

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

package tracelog

import (
	"log/slog"
	"strings"
	"sync"
)

// Mask identifies one traceable subsystem.
type Mask uint32

const (
	Decode Mask = 1 << iota
	Exec
	Cache
	BlockInv
	IR
	Opt
	CP15
)

var names = map[string]Mask{
	"DECODE":   Decode,
	"EXEC":     Exec,
	"CACHE":    Cache,
	"BLOCKINV": BlockInv,
	"IR":       IR,
	"OPT":      Opt,
	"CP15":     CP15,
}

var (
	mu      sync.RWMutex
	enabled Mask
	out     *slog.Logger
)

// SetLogger installs the logger used by Tracef. A nil logger disables
// trace output entirely, independent of the enabled mask.
func SetLogger(l *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	out = l
}

// Enable turns on trace output for one subsystem name. An
// unknown name is ignored rather than rejected, matching the teacher's
// tolerant "DEBUG" config option handling.
func Enable(name string) {
	mask, ok := names[strings.ToUpper(name)]
	if !ok {
		return
	}
	mu.Lock()
	enabled |= mask
	mu.Unlock()
}

// Enabled reports whether the given subsystem mask is currently traced.
func Enabled(m Mask) bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled&m != 0
}

// Tracef logs a formatted message for mask m if that subsystem is
// enabled and a logger has been installed. It is a no-op otherwise, so
// call sites can leave Tracef calls on the hot path.
func Tracef(m Mask, format string, args ...any) {
	mu.RLock()
	active := enabled&m != 0
	logger := out
	mu.RUnlock()
	if !active || logger == nil {
		return
	}
	logger.Debug(format, args...)
}
