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
	"log"

	"github.com/requalib/requal/fasta"
	"github.com/requalib/requal/sam"
)

// walkAlignedPairs calls fn for every read base that is aligned to a
// reference base, with both positions, and also reports the number of
// inserted and deleted bases. Positions beyond the end of the contig
// are skipped.
func walkAlignedPairs(aln *sam.Alignment, refBases []byte, fn func(readOffset int, refOffset int32)) (insertedDeleted int32) {
	cigar := sam.ScanCigarString(aln.CIGAR)
	if len(cigar) > 0 && int(sam.ReadLengthFromCigar(cigar)) != len(aln.SEQ) {
		log.Fatal("the CIGAR string ", aln.CIGAR, " of read ", aln.QNAME, " does not match its sequence length ", len(aln.SEQ))
	}
	readOffset := 0
	refOffset := aln.POS - 1
	for _, op := range cigar {
		switch op.Operation {
		case 'M', '=', 'X':
			for i := int32(0); i < op.Length; i++ {
				if refOffset < int32(len(refBases)) {
					fn(readOffset, refOffset)
				}
				readOffset++
				refOffset++
			}
		case 'I':
			insertedDeleted += op.Length
			readOffset += int(op.Length)
		case 'S':
			readOffset += int(op.Length)
		case 'D':
			insertedDeleted += op.Length
			refOffset += op.Length
		case 'N':
			refOffset += op.Length
		}
	}
	return insertedDeleted
}

// sumQualitiesOfMismatches computes the value of the UQ tag: the sum
// of the quality scores of all read bases that mismatch the reference.
func sumQualitiesOfMismatches(aln *sam.Alignment, refBases []byte) int64 {
	var sum int64
	walkAlignedPairs(aln, refBases, func(readOffset int, refOffset int32) {
		if fasta.ToUpperAndN(aln.SEQ[readOffset]) != refBases[refOffset] {
			sum += int64(aln.QUAL[readOffset])
		}
	})
	return sum
}

// editDistance computes the value of the NM tag: the number of read
// bases that mismatch the reference, plus all inserted and deleted
// bases.
func editDistance(aln *sam.Alignment, refBases []byte) int64 {
	var mismatches int64
	insertedDeleted := walkAlignedPairs(aln, refBases, func(readOffset int, refOffset int32) {
		if fasta.ToUpperAndN(aln.SEQ[readOffset]) != refBases[refOffset] {
			mismatches++
		}
	})
	return mismatches + int64(insertedDeleted)
}
