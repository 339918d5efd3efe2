/*
   Fixed-width hex formatting helpers for register and memory dumps, used
   by trace logging and debug tooling.

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

package hexfmt

import "strings"

const digits = "0123456789ABCDEF"

// Word appends the 8-digit hex form of each value in words, space
// separated, to str.
func Word(str *strings.Builder, words []uint32) {
	for _, full := range words {
		shift := 28
		for range 8 {
			str.WriteByte(digits[(full>>shift)&0xf])
			shift -= 4
		}
		str.WriteByte(' ')
	}
}

// Half appends the 4-digit hex form of each value in halves to str.
func Half(str *strings.Builder, halves []uint16) {
	for _, h := range halves {
		shift := 12
		for range 4 {
			str.WriteByte(digits[(h>>shift)&0xf])
			shift -= 4
		}
		str.WriteByte(' ')
	}
}

// Bytes appends the 2-digit hex form of each byte in data to str, space
// separated when space is true.
func Bytes(str *strings.Builder, space bool, data []byte) {
	for _, b := range data {
		str.WriteByte(digits[(b>>4)&0xf])
		str.WriteByte(digits[b&0xf])
		if space {
			str.WriteByte(' ')
		}
	}
}

// WordString is a convenience wrapper returning Word's output directly.
func WordString(words []uint32) string {
	var b strings.Builder
	Word(&b, words)
	return strings.TrimRight(b.String(), " ")
}
