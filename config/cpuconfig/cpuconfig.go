/*
   cpuconfig: line-oriented configuration file parser selecting the
   emulated core variant, memory layout and trace flags (spec.md
   §4.11).

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

// Package cpuconfig parses a line-oriented "KEY value" configuration
// file selecting the CPU variant and memory layout the CLI boots with
// (spec.md §4.11). Each key is registered by an init() function in the
// package that owns it, the same registration idiom the rest of the
// pack's config loaders use, so adding a new tunable never touches
// this file.
package cpuconfig

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
)

// Setter applies one configuration line's value. args is the
// whitespace-separated remainder of the line after the key.
type Setter func(args []string) error

var (
	options = map[string]Setter{}
	lineNum int
)

// RegisterOption installs the handler for a configuration key. Called
// from init() by the package that owns the key (core variant, memory
// size, trace flags, ...), matching the rest of the pack's
// register-at-init-time convention.
func RegisterOption(key string, fn Setter) {
	options[strings.ToUpper(key)] = fn
}

// Load reads and applies every line of a configuration file in order.
// '#' starts a line comment; blank lines are ignored.
func Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	lineNum = 0
	reader := bufio.NewReader(file)
	for {
		raw, err := reader.ReadString('\n')
		lineNum++
		if len(raw) == 0 && err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if applyErr := applyLine(raw); applyErr != nil {
			return applyErr
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func applyLine(raw string) error {
	line := stripComment(raw)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	key := strings.ToUpper(fields[0])
	setter, ok := options[key]
	if !ok {
		return fmt.Errorf("cpuconfig: unknown option %q at line %d", fields[0], lineNum)
	}
	return setter(fields[1:])
}

// stripComment removes everything from the first unquoted '#' onward.
func stripComment(line string) string {
	inQuote := false
	for i, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == '#' && !inQuote:
			return line[:i]
		}
	}
	return line
}

// RequireArgs returns an error naming key if args doesn't have exactly
// n elements, the common case for single-value options.
func RequireArgs(key string, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("cpuconfig: %s requires %d argument(s), line %d", key, n, lineNum)
	}
	return nil
}

// ParseSize parses a decimal size optionally suffixed with K or M
// (1024/1024^2 multiplier), the convention the rest of the pack's
// config files use for memory sizes.
func ParseSize(s string) (uint32, error) {
	if s == "" {
		return 0, errors.New("cpuconfig: empty size")
	}
	mult := uint32(1)
	last := s[len(s)-1]
	switch unicode.ToUpper(rune(last)) {
	case 'K':
		mult = 1024
		s = s[:len(s)-1]
	case 'M':
		mult = 1024 * 1024
		s = s[:len(s)-1]
	}
	var value uint32
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return 0, fmt.Errorf("cpuconfig: invalid size %q", s)
		}
		value = value*10 + uint32(r-'0')
	}
	return value * mult, nil
}
