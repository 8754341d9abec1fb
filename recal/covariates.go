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

// Package recal implements the second pass of two-pass base quality
// recalibration: it loads the covariate observation table produced by
// the first pass, turns the observed mismatch counts into empirical
// qualities, and rewrites the quality scores of every read.
package recal

import (
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"

	"github.com/requalib/requal/sam"
)

const (
	// Reads longer than this cannot be recalibrated, because cycle
	// values beyond it were not tabulated by the first pass.
	maximumCycleValue = 500

	// The number of covariates beyond read group and quality score
	// that a table may declare.
	MaxOptionalCovariates = 4

	// missingValue marks a base for which a covariate has no bucket.
	// Such bases take no delta from that covariate's table. It lies
	// outside the value domain of every covariate; in particular,
	// negative machine cycles down to -maximumCycleValue are regular
	// values.
	missingValue = int32(math.MinInt32)
)

// A Covariate computes one dimension of the recalibration table keys.
//
// Parse decodes a covariate value from its text form in a table file.
// Values computes the covariate value for every base of an alignment,
// in read storage order, appending to dst.
type Covariate interface {
	Name() string
	Parse(value string) (int32, error)
	Values(aln *sam.Alignment, dst []int32) []int32
}

// The known covariates. Tables refer to them by name without the
// Covariate suffix.
var knownCovariates = []Covariate{
	readGroupCovariate{},
	qualityScoreCovariate{},
	cycleCovariate{},
	dinucCovariate{},
	contextCovariate{},
}

// ResolveCovariate looks up a covariate by the name used in table
// files. The match is case-insensitive and adds the implicit Covariate
// suffix.
func ResolveCovariate(name string) (Covariate, bool) {
	for _, cov := range knownCovariates {
		if strings.EqualFold(name+"Covariate", cov.Name()) {
			return cov, true
		}
	}
	return nil, false
}

func baseIndex(base byte) int32 {
	switch base {
	case 'A', 'a':
		return 0
	case 'C', 'c':
		return 1
	case 'G', 'g':
		return 2
	case 'T', 't':
		return 3
	default:
		return -1
	}
}

func baseComplement(base byte) byte {
	switch base {
	case 'A', 'a':
		return 'T'
	case 'C', 'c':
		return 'G'
	case 'G', 'g':
		return 'C'
	case 'T', 't':
		return 'A'
	default:
		return 'N'
	}
}

func reverseComplement(seq []byte) []byte {
	result := make([]byte, len(seq))
	for i, base := range seq {
		result[len(seq)-1-i] = baseComplement(base)
	}
	return result
}

type readGroupCovariate struct{}

func (readGroupCovariate) Name() string { return "ReadGroupCovariate" }

// Parse is never invoked for the read group covariate: the read group
// is carried as a string in the table keys, not encoded as an integer.
func (readGroupCovariate) Parse(_ string) (int32, error) { return 0, nil }

func (readGroupCovariate) Values(_ *sam.Alignment, dst []int32) []int32 { return dst }

type qualityScoreCovariate struct{}

func (qualityScoreCovariate) Name() string { return "QualityScoreCovariate" }

func (qualityScoreCovariate) Parse(value string) (int32, error) {
	qual, err := strconv.ParseUint(value, 10, 8)
	if err != nil {
		return 0, err
	}
	return int32(qual), nil
}

func (qualityScoreCovariate) Values(aln *sam.Alignment, dst []int32) []int32 {
	for _, qual := range aln.QUAL {
		dst = append(dst, int32(qual))
	}
	return dst
}

// cycleCovariate tabulates the machine cycle that produced a base. The
// first reported base is cycle 1; reads on the reverse strand count
// from their other end; the cycle is negated for the second read of a
// pair.
type cycleCovariate struct{}

func (cycleCovariate) Name() string { return "CycleCovariate" }

func (cycleCovariate) Parse(value string) (int32, error) {
	cycle, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(cycle), nil
}

func (cycleCovariate) Values(aln *sam.Alignment, dst []int32) []int32 {
	readLength := len(aln.QUAL)
	second := (aln.FLAG & (sam.Multiple | sam.Last)) == (sam.Multiple | sam.Last)
	reversed := aln.IsReversed()
	for i := 0; i < readLength; i++ {
		var cycle int32
		if reversed {
			cycle = int32(readLength - i)
		} else {
			cycle = int32(i + 1)
		}
		if second {
			cycle = -cycle
		}
		if cycle > maximumCycleValue || cycle < -maximumCycleValue {
			log.Fatal("read ", aln.QNAME, " has machine cycle ", cycle, " beyond the supported maximum of ", maximumCycleValue)
		}
		dst = append(dst, cycle)
	}
	return dst
}

// dinucCovariate tabulates the base together with the base from the
// previous machine cycle. Bases are taken in machine order, so reads
// on the reverse strand are reverse complemented first. The five base
// states A, C, G, T, and N are encoded in a radix-5 pair; the first
// cycle has no previous base and gets N for it.
type dinucCovariate struct{}

func (dinucCovariate) Name() string { return "DinucCovariate" }

func dinucIndex(base byte) int32 {
	if index := baseIndex(base); index >= 0 {
		return index
	}
	return 4
}

func encodeDinuc(prev, cur byte) int32 {
	return dinucIndex(prev)*5 + dinucIndex(cur)
}

func (dinucCovariate) Parse(value string) (int32, error) {
	if len(value) != 2 {
		return 0, fmt.Errorf("invalid dinucleotide %v", value)
	}
	return encodeDinuc(value[0], value[1]), nil
}

func (dinucCovariate) Values(aln *sam.Alignment, dst []int32) []int32 {
	seq := aln.SEQ
	if aln.IsReversed() {
		for i := range seq {
			var prev byte = 'N'
			if i+1 < len(seq) {
				prev = baseComplement(seq[i+1])
			}
			dst = append(dst, encodeDinuc(prev, baseComplement(seq[i])))
		}
	} else {
		for i := range seq {
			var prev byte = 'N'
			if i > 0 {
				prev = seq[i-1]
			}
			dst = append(dst, encodeDinuc(prev, seq[i]))
		}
	}
	return dst
}

// contextCovariate tabulates the preceding reference context of each
// base, in machine order. Contexts are packed into an int32 with the
// context length in the low bits and two bits per base above them.
type contextCovariate struct{}

const (
	mismatchesContextSize = 2
	contextLengthBits     = 4
	maxContextSize        = 1<<contextLengthBits - 1
)

func (contextCovariate) Name() string { return "ContextCovariate" }

func packContext(bases string) int32 {
	packed := int32(len(bases))
	for i := 0; i < len(bases); i++ {
		index := baseIndex(bases[i])
		if index < 0 {
			return missingValue
		}
		packed |= index << uint(contextLengthBits+2*i)
	}
	return packed
}

func (contextCovariate) Parse(value string) (int32, error) {
	if len(value) == 0 || len(value) > maxContextSize {
		return 0, fmt.Errorf("invalid context %v", value)
	}
	return packContext(value), nil
}

func contextValues(seq []byte, size int, dst []int32) []int32 {
	for i := range seq {
		if i+1 < size {
			dst = append(dst, missingValue)
			continue
		}
		dst = append(dst, packContext(string(seq[i+1-size:i+1])))
	}
	return dst
}

func (contextCovariate) Values(aln *sam.Alignment, dst []int32) []int32 {
	if !aln.IsReversed() {
		return contextValues(aln.SEQ, mismatchesContextSize, dst)
	}
	stranded := contextValues(reverseComplement(aln.SEQ), mismatchesContextSize, nil)
	for i := range stranded {
		dst = append(dst, stranded[len(stranded)-1-i])
	}
	return dst
}
