// reQual: base quality score recalibration for SAM/BAM files.
// Copyright (c) 2026 the reQual authors.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License along with this program. If not, see
// <https://github.com/requalib/requal/blob/master/LICENSE.txt>.

package sam

import (
	"log"

	"github.com/requalib/requal/internal"
)

// StringScanner is a utility for parsing the tab-separated fields of
// SAM file lines. Unexpected input makes the scanner panic, in line
// with how parsing errors are handled elsewhere in this library.
type StringScanner struct {
	index int
	data  string
}

// Reset initializes the scanner to parse the given string from the
// start.
func (sc *StringScanner) Reset(s string) {
	sc.index = 0
	sc.data = s
}

// Len returns the number of characters that still need to be parsed.
func (sc *StringScanner) Len() int {
	return len(sc.data) - sc.index
}

func (sc *StringScanner) readUntilByte(c byte) string {
	start := sc.index
	end := start
	for (end < len(sc.data)) && (sc.data[end] != c) {
		end++
	}
	if end < len(sc.data) {
		sc.index = end + 1
	} else {
		sc.index = end
	}
	return sc.data[start:end]
}

// ReadString returns the current field as a string and advances past
// the next tab.
func (sc *StringScanner) ReadString() string {
	return sc.readUntilByte('\t')
}

// ReadByteArray returns the current field as a byte slice and advances
// past the next tab. The result is a copy, so it can be modified
// without clobbering the scanned string.
func (sc *StringScanner) ReadByteArray() []byte {
	return []byte(sc.readUntilByte('\t'))
}

// ReadInt parses the current field as a decimal integer.
func (sc *StringScanner) ReadInt() int64 {
	return internal.ParseInt(sc.readUntilByte('\t'), 10, 64)
}

// ReadFloat parses the current field as a floating point number.
func (sc *StringScanner) ReadFloat() float64 {
	return internal.ParseFloat(sc.readUntilByte('\t'), 64)
}

func (sc *StringScanner) expectByte(c byte) {
	if (sc.index >= len(sc.data)) || (sc.data[sc.index] != c) {
		log.Panic("expected ", string(c), " at position ", sc.index, " in ", sc.data)
	}
	sc.index++
}
