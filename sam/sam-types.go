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

// Package sam is a library for parsing and modifying the sequence
// alignment/map formats, based on the SAMv1 specification. It is
// deliberately restricted to the parts of the format that base quality
// recalibration needs.
package sam

import (
	"log"
	"strconv"

	psync "github.com/exascience/pargo/sync"
	"github.com/requalib/requal/internal"
	"github.com/requalib/requal/utils"
)

// Header represents the information stored in the header section of a
// SAM file. Each header line maps to a struct field; all tags of a
// header line are represented as a utils.StringMap.
type Header struct {
	// The @HD line.
	HD utils.StringMap

	// The @SQ, @RG, and @PG lines, in the order they occur in the
	// header.
	SQ, RG, PG []utils.StringMap

	// The @CO lines, without the @CO tags.
	CO []string

	// Header lines defined by end users, mapped by their @ tags.
	UserRecords map[string][]utils.StringMap
}

// NewHeader allocates and initializes an empty SAM header.
func NewHeader() *Header { return &Header{} }

// SQLN returns the LN field value of an @SQ header line.
func SQLN(record utils.StringMap) int32 {
	ln, found := record.Find("LN")
	if !found {
		log.Panic("LN field missing from an @SQ header line")
	}
	val, err := strconv.ParseInt(ln, 10, 32)
	if err != nil {
		log.Panic("invalid LN field value ", ln, " in an @SQ header line")
	}
	return int32(val)
}

// ReadGroup returns the @RG header line whose ID field matches the
// given identifier, or nil if there is no such line.
func (hdr *Header) ReadGroup(id string) utils.StringMap {
	for _, rg := range hdr.RG {
		if rgID, found := rg.Find("ID"); found && rgID == id {
			return rg
		}
	}
	return nil
}

// EnsureUserRecords returns the map for user-defined header lines,
// allocating it first if necessary.
func (hdr *Header) EnsureUserRecords() map[string][]utils.StringMap {
	if hdr.UserRecords == nil {
		hdr.UserRecords = make(map[string][]utils.StringMap)
	}
	return hdr.UserRecords
}

// AddUserRecord adds a header line with a user-defined @ tag.
func (hdr *Header) AddUserRecord(code string, record utils.StringMap) {
	if records, found := hdr.UserRecords[code]; found {
		hdr.UserRecords[code] = append(records, record)
	} else {
		hdr.EnsureUserRecords()[code] = []utils.StringMap{record}
	}
}

// Alignment represents a single read and its alignment to a reference.
//
// QUAL stores the base quality scores as raw phred values, not as
// their ASCII encoding in the SAM text representation. SEQ is stored as
// a mutable byte slice because some recalibration policies rewrite
// individual bases.
type Alignment struct {
	QNAME string
	FLAG  uint16
	RNAME string
	POS   int32
	MAPQ  byte
	CIGAR string
	RNEXT string
	PNEXT int32
	TLEN  int32
	SEQ   []byte
	QUAL  []byte
	TAGS  utils.SmallMap
}

// Symbols for the optional fields that reQual reads or writes.
var (
	RG = utils.Intern("RG")
	OQ = utils.Intern("OQ")
	UQ = utils.Intern("UQ")
	NM = utils.Intern("NM")
	CS = utils.Intern("CS")
	CQ = utils.Intern("CQ")
	PG = utils.Intern("PG")
)

// RG returns the read group identifier of this alignment. It is an
// error if the alignment does not have an RG optional field, or if its
// value is not a string.
func (aln *Alignment) RG() string {
	rg, found := aln.TAGS.Get(RG)
	if !found {
		log.Fatal("no RG optional field in alignment ", aln.QNAME, "; run base recalibration on files with read group information only")
	}
	value, ok := rg.(string)
	if !ok {
		log.Fatal("RG optional field in alignment ", aln.QNAME, " is not a string")
	}
	return value
}

// SetRG sets the read group identifier of this alignment.
func (aln *Alignment) SetRG(rg string) {
	aln.TAGS.Set(RG, rg)
}

// ReadLength returns the number of bases in this alignment, which is
// zero when the sequence is not stored.
func (aln *Alignment) ReadLength() int {
	if len(aln.SEQ) == 1 && aln.SEQ[0] == '*' {
		return 0
	}
	return len(aln.SEQ)
}

// Bit values for the FLAG field of an alignment.
const (
	Multiple      = 0x1
	Proper        = 0x2
	Unmapped      = 0x4
	NextUnmapped  = 0x8
	Reversed      = 0x10
	NextReversed  = 0x20
	First         = 0x40
	Last          = 0x80
	Secondary     = 0x100
	QCFailed      = 0x200
	Duplicate     = 0x400
	Supplementary = 0x800
)

// IsUnmapped checks whether the alignment is unmapped based on its
// FLAG field.
func (aln *Alignment) IsUnmapped() bool { return (aln.FLAG & Unmapped) != 0 }

// IsReversed checks whether the alignment maps to the reverse strand
// based on its FLAG field.
func (aln *Alignment) IsReversed() bool { return (aln.FLAG & Reversed) != 0 }

// CigarOperation is a single operation in a CIGAR string.
type CigarOperation struct {
	Length    int32
	Operation byte // 'M', 'I', 'D', 'N', 'S', 'H', 'P', '=', or 'X'
}

func newCigarOperation(cigar string, i int) (op CigarOperation, j int) {
	for n := i; ; n++ {
		if c := cigar[n]; c < '0' || c > '9' {
			length, err := strconv.ParseInt(cigar[i:n], 10, 32)
			if err != nil {
				log.Panic(err, ", while scanning CIGAR string ", cigar)
			}
			if isValidCigarOperation(c) {
				op = CigarOperation{int32(length), c}
				j = n + 1
			} else {
				log.Panic("invalid CIGAR operation ", string(c), " in ", cigar)
			}
			return
		}
	}
}

var cigarOperationsCache = psync.NewMap(16)

type cigarHashKey string

func (c cigarHashKey) Hash() uint64 {
	return internal.StringHash(string(c))
}

func slowScanCigarString(cigar string) interface{} {
	var cigarOperations []CigarOperation
	for i := 0; i < len(cigar); {
		op, j := newCigarOperation(cigar, i)
		cigarOperations = append(cigarOperations, op)
		i = j
	}
	value, _ := cigarOperationsCache.LoadOrStore(cigarHashKey(cigar), cigarOperations)
	return value
}

// ScanCigarString converts a CIGAR string to a slice of
// CigarOperation. It uses an internal cache to reduce memory use,
// since CIGAR strings repeat a lot across reads of the same length.
func ScanCigarString(cigar string) []CigarOperation {
	if cigar == "*" {
		return nil
	}
	if value, found := cigarOperationsCache.Load(cigarHashKey(cigar)); found {
		return value.([]CigarOperation)
	}
	return slowScanCigarString(cigar).([]CigarOperation)
}
