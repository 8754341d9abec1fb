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

	"github.com/willf/bitset"

	"github.com/requalib/requal/sam"
)

// Default values for the recalibration parameters.
const (
	DefaultPreserveQScoresLessThan = 5
	DefaultSmoothing               = 1
	DefaultMaxQualityScore         = 50
)

// Config bundles the recalibration parameters.
type Config struct {
	// Bases with an original quality below this threshold keep their
	// original quality.
	PreserveQScoresLessThan int

	// The count added to both observations and mismatches when
	// computing empirical qualities.
	Smoothing int

	// The largest quality score that recalibration can assign.
	MaxQualityScore int

	// When set, the original quality scores are not stored in the OQ
	// tag.
	NoOriginalQuals bool

	// When set, the UQ tag is not updated even when a reference is
	// available.
	SkipUQUpdate bool

	ColorSpaceMode ColorSpaceMode
	NoCallStrategy NoCallStrategy
}

// DefaultConfig returns a Config with all parameters at their
// defaults.
func DefaultConfig() Config {
	return Config{
		PreserveQScoresLessThan: DefaultPreserveQScoresLessThan,
		Smoothing:               DefaultSmoothing,
		MaxQualityScore:         DefaultMaxQualityScore,
	}
}

// A Recalibrator rewrites the quality scores of reads according to
// finalized recalibration tables.
type Recalibrator struct {
	Tables    *Tables
	Config    Config
	Reference map[string][]byte

	// The number of SOLiD reads with no calls in their color space
	// encountered during the run.
	MalformedColorSpaceReads int64

	cache *QualityCache
}

// NewRecalibrator creates a Recalibrator for the given finalized
// tables. The reference is optional; without it the UQ and NM tags
// are left alone.
func NewRecalibrator(tables *Tables, config Config, reference map[string][]byte) *Recalibrator {
	return &Recalibrator{Tables: tables, Config: config, Reference: reference}
}

// Computations returns how often the recalibrated quality was computed
// rather than served from the cache.
func (r *Recalibrator) Computations() int64 {
	if r.cache == nil {
		return 0
	}
	return r.cache.Computations()
}

// validateSequenceDictionary checks the @SQ lines of the header
// against the contig lengths of the reference. Contigs that the
// reference does not contain are ignored; the UQ and NM updates skip
// them as well.
func validateSequenceDictionary(hdr *sam.Header, reference map[string][]byte) {
	for _, sq := range hdr.SQ {
		name, found := sq.Find("SN")
		if !found {
			log.Fatal("an @SQ line without an SN field in the header")
		}
		contig, ok := reference[name]
		if !ok {
			continue
		}
		if ln := sam.SQLN(sq); ln != int32(len(contig)) {
			log.Fatal("contig ", name, " has length ", len(contig), " in the reference, but the header declares LN:", ln)
		}
	}
}

func readGroupPlatforms(hdr *sam.Header) map[string]string {
	platforms := make(map[string]string)
	for _, rg := range hdr.RG {
		id, idFound := rg.Find("ID")
		if !idFound {
			log.Fatal("an @RG line without an ID field in the header")
		}
		platform, _ := rg.Find("PL")
		platforms[id] = platform
	}
	return platforms
}

// Filter returns the alignment filter that performs the actual
// recalibration. The filter keeps shared mutable state, so it must run
// in a sequential pipeline node; sam.RunPipeline arranges that.
func (r *Recalibrator) Filter(hdr *sam.Header) sam.AlignmentFilter {
	r.cache = NewQualityCache(r.Tables)
	if r.Reference != nil {
		validateSequenceDictionary(hdr, r.Reference)
	}
	optional := r.Tables.OptionalCovariates()
	values := make([][]int32, len(optional))
	platforms := readGroupPlatforms(hdr)
	config := &r.Config
	return func(aln *sam.Alignment) bool {
		// Reads with * as their SEQ field are left alone.
		if aln.ReadLength() == 0 || len(aln.QUAL) == 0 {
			return true
		}
		originalQuals := aln.QUAL
		colorSpace := isColorSpacePlatform(platforms[aln.RG()]) && config.ColorSpaceMode != ColorSpaceDoNothing
		if colorSpace && config.NoCallStrategy != NoCallThrowException {
			noCall, err := hasColorSpaceNoCall(aln)
			if err != nil {
				log.Fatal(err)
			}
			if noCall {
				r.MalformedColorSpaceReads++
				if config.NoCallStrategy == NoCallPurgeRead {
					aln.FLAG |= sam.QCFailed
				}
				return true
			}
		}
		if colorSpace {
			adjusted, err := adjustColorSpaceQualities(aln, originalQuals, config.ColorSpaceMode)
			if err != nil {
				log.Fatal(err)
			}
			originalQuals = adjusted
		}
		for i, cov := range optional {
			values[i] = cov.Values(aln, values[i][:0])
		}
		key := CovariateKey{ReadGroup: aln.RG()}
		recalQuals := make([]byte, len(aln.QUAL))
		for i, qual := range aln.QUAL {
			key.Qual = qual
			for j := range optional {
				key.Optional[j] = values[j][i]
			}
			recalQuals[i] = r.cache.Quality(key)
		}
		preserved := bitset.New(uint(len(originalQuals)))
		for i, qual := range originalQuals {
			if int(qual) < config.PreserveQScoresLessThan {
				preserved.Set(uint(i))
			}
		}
		for i, found := preserved.NextSet(0); found; i, found = preserved.NextSet(i + 1) {
			recalQuals[i] = originalQuals[i]
		}
		aln.QUAL = recalQuals
		if !config.NoOriginalQuals {
			if _, found := aln.TAGS.Get(sam.OQ); !found {
				aln.TAGS.Set(sam.OQ, sam.PhredToFastq(originalQuals))
			}
		}
		if refBases := r.referenceBases(aln); refBases != nil {
			if !config.SkipUQUpdate {
				if _, found := aln.TAGS.Get(sam.UQ); found {
					aln.TAGS.Set(sam.UQ, sumQualitiesOfMismatches(aln, refBases))
				}
			}
			// Replacing bases with N changes the edit distance.
			if config.ColorSpaceMode == ColorSpaceSetQZeroBaseN {
				if _, found := aln.TAGS.Get(sam.NM); found {
					aln.TAGS.Set(sam.NM, editDistance(aln, refBases))
				}
			}
		}
		return true
	}
}

func (r *Recalibrator) referenceBases(aln *sam.Alignment) []byte {
	if r.Reference == nil || aln.IsUnmapped() || aln.RNAME == "*" {
		return nil
	}
	return r.Reference[aln.RNAME]
}

// LogSummary reports reads that could not be recalibrated.
func (r *Recalibrator) LogSummary() {
	if r.MalformedColorSpaceReads == 0 {
		return
	}
	switch r.Config.NoCallStrategy {
	case NoCallLeaveReadUnrecalibrated:
		log.Println("warning: discovered", r.MalformedColorSpaceReads, "SOLiD reads with no calls in the color space; these reads cannot be recalibrated and kept their original quality scores")
	case NoCallPurgeRead:
		log.Println("warning: discovered", r.MalformedColorSpaceReads, "SOLiD reads with no calls in the color space; these reads cannot be recalibrated and were flagged as failing vendor quality checks")
	}
}
