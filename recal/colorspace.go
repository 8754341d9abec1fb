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

package recal

import (
	"fmt"
	"strings"

	"github.com/requalib/requal/fasta"
	"github.com/requalib/requal/sam"
)

// ColorSpaceMode selects how bases that are inconsistent with the
// SOLiD color space information of their read are recalibrated.
type ColorSpaceMode int

const (
	// ColorSpaceDoNothing recalibrates SOLiD reads like any others.
	ColorSpaceDoNothing ColorSpaceMode = iota

	// ColorSpaceSetQZero sets the quality of inconsistent bases to
	// zero.
	ColorSpaceSetQZero

	// ColorSpaceSetQZeroBaseN additionally replaces inconsistent
	// bases with N.
	ColorSpaceSetQZeroBaseN
)

// ParseColorSpaceMode parses the command line form of a ColorSpaceMode.
func ParseColorSpaceMode(value string) (ColorSpaceMode, error) {
	switch strings.ToUpper(value) {
	case "DO_NOTHING":
		return ColorSpaceDoNothing, nil
	case "SET_Q_ZERO":
		return ColorSpaceSetQZero, nil
	case "SET_Q_ZERO_BASE_N":
		return ColorSpaceSetQZeroBaseN, nil
	default:
		return 0, fmt.Errorf("invalid color space recalibration mode %v; use DO_NOTHING, SET_Q_ZERO, or SET_Q_ZERO_BASE_N", value)
	}
}

// NoCallStrategy selects what happens to SOLiD reads that contain a no
// call in their color space information. They cannot be recalibrated,
// because the first pass could not determine their mismatch rates.
type NoCallStrategy int

const (
	// NoCallThrowException fails the run.
	NoCallThrowException NoCallStrategy = iota

	// NoCallLeaveReadUnrecalibrated keeps the read with its original
	// qualities.
	NoCallLeaveReadUnrecalibrated

	// NoCallPurgeRead flags the read as failing vendor quality checks
	// and keeps its original qualities.
	NoCallPurgeRead
)

// ParseNoCallStrategy parses the command line form of a NoCallStrategy.
func ParseNoCallStrategy(value string) (NoCallStrategy, error) {
	switch strings.ToUpper(value) {
	case "THROW_EXCEPTION":
		return NoCallThrowException, nil
	case "LEAVE_READ_UNRECALIBRATED":
		return NoCallLeaveReadUnrecalibrated, nil
	case "PURGE_READ":
		return NoCallPurgeRead, nil
	default:
		return 0, fmt.Errorf("invalid color space no call strategy %v; use THROW_EXCEPTION, LEAVE_READ_UNRECALIBRATED, or PURGE_READ", value)
	}
}

func isColorSpacePlatform(platform string) bool {
	return strings.Contains(strings.ToUpper(platform), "SOLID")
}

// colorSpaceString returns the color space information of a SOLiD
// read: the primer base followed by one color per base.
func colorSpaceString(aln *sam.Alignment) (string, error) {
	value, found := aln.TAGS.Get(sam.CS)
	if !found {
		return "", fmt.Errorf("SOLiD read %v is missing its color space tag CS", aln.QNAME)
	}
	colors, ok := value.(string)
	if !ok || len(colors) == 0 {
		return "", fmt.Errorf("SOLiD read %v has a malformed color space tag CS", aln.QNAME)
	}
	return colors, nil
}

// hasColorSpaceNoCall reports whether any color of the read is a no
// call.
func hasColorSpaceNoCall(aln *sam.Alignment) (bool, error) {
	colors, err := colorSpaceString(aln)
	if err != nil {
		return false, err
	}
	return strings.ContainsRune(colors[1:], '.'), nil
}

// colorTransform applies a SOLiD color to a base, producing the next
// base of the read. Colors encode base transitions: 0 keeps the base,
// 1 swaps A with C and G with T, 2 swaps A with G and C with T, and 3
// swaps A with T and C with G.
func colorTransform(base byte, color byte) byte {
	transforms := [4]string{"ACGT", "CATG", "GTAC", "TGCA"}
	if color < '0' || color > '3' {
		return 'N'
	}
	index := baseIndex(base)
	if index < 0 {
		return 'N'
	}
	return transforms[color-'0'][index]
}

// adjustColorSpaceQualities reconstructs the base sequence implied by
// the color space information of a SOLiD read and compares it with the
// called bases. It returns a copy of quals in which inconsistent bases
// have quality zero; in the SET_Q_ZERO_BASE_N mode it also overwrites
// those bases with N in the alignment itself.
//
// An unexpected no call makes this fail, which is how the
// THROW_EXCEPTION strategy surfaces such reads.
func adjustColorSpaceQualities(aln *sam.Alignment, quals []byte, mode ColorSpaceMode) ([]byte, error) {
	colors, err := colorSpaceString(aln)
	if err != nil {
		return nil, err
	}
	if len(colors) != len(aln.SEQ)+1 {
		return nil, fmt.Errorf("SOLiD read %v has %v colors for %v bases", aln.QNAME, len(colors)-1, len(aln.SEQ))
	}
	// Work in the original machine orientation.
	bases := aln.SEQ
	reversed := aln.IsReversed()
	if reversed {
		bases = reverseComplement(bases)
	}
	inconsistent := make([]bool, len(bases))
	inferred := colors[0]
	for i := range bases {
		color := colors[i+1]
		if color == '.' {
			return nil, fmt.Errorf("SOLiD read %v has a no call in its color space; use a color space no call strategy other than THROW_EXCEPTION to tolerate such reads", aln.QNAME)
		}
		inferred = colorTransform(inferred, color)
		if inferred != fasta.ToUpperAndN(bases[i]) {
			inconsistent[i] = true
		}
	}
	adjusted := make([]byte, len(quals))
	copy(adjusted, quals)
	for i, bad := range inconsistent {
		if !bad {
			continue
		}
		offset := i
		if reversed {
			offset = len(bases) - 1 - i
		}
		adjusted[offset] = 0
		if mode == ColorSpaceSetQZeroBaseN {
			aln.SEQ[offset] = 'N'
		}
	}
	return adjusted, nil
}
