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

const cigarOperations = "MIDNSHP=X"

var cigarConsumesReadBases = map[byte]bool{'M': true, 'I': true, 'S': true, '=': true, 'X': true}

func isValidCigarOperation(op byte) bool {
	for i := 0; i < len(cigarOperations); i++ {
		if op == cigarOperations[i] {
			return true
		}
	}
	return false
}

// CigarConsumesReadBases tells whether the given CIGAR operation
// advances the position in the read.
func CigarConsumesReadBases(op byte) bool {
	return cigarConsumesReadBases[op]
}

// ReadLengthFromCigar sums the lengths of the CIGAR operations that
// consume read bases.
func ReadLengthFromCigar(cigar []CigarOperation) int32 {
	var length int32
	for _, op := range cigar {
		if CigarConsumesReadBases(op.Operation) {
			length += op.Length
		}
	}
	return length
}
