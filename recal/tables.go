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
	"math"

	"github.com/exascience/pargo/parallel"
)

// RecalDatum is one bucket of the recalibration tables: the number of
// observed bases, how many of them mismatched the reference, the
// average quality the sequencer reported for them, and the empirical
// quality computed from the mismatch rate.
type RecalDatum struct {
	Observations       int64
	Mismatches         int64
	EstimatedQReported float64
	EmpiricalQuality   float64
}

// accumulate folds the counts of a table row into the bucket. The
// estimated reported quality is the observation-weighted mean of the
// rows that were folded in.
func (datum *RecalDatum) accumulate(observations, mismatches int64, reportedQuality float64) {
	sumErrors := datum.EstimatedQReported * float64(datum.Observations)
	sumErrors += reportedQuality * float64(observations)
	datum.Observations += observations
	datum.Mismatches += mismatches
	if datum.Observations > 0 {
		datum.EstimatedQReported = sumErrors / float64(datum.Observations)
	}
}

// EmpiricalQuality computes a phred-scaled quality from mismatch and
// observation counts. The smoothing count is added to both, and the
// result is clamped to [0, maxQuality].
func EmpiricalQuality(mismatches, observations int64, smoothing, maxQuality int) float64 {
	doubleMismatches := float64(mismatches) + float64(smoothing)
	doubleObservations := float64(observations) + float64(smoothing)
	quality := -10 * math.Log10(doubleMismatches/doubleObservations)
	if quality < 0 {
		return 0
	}
	if quality > float64(maxQuality) {
		return float64(maxQuality)
	}
	return quality
}

type (
	qualityKey struct {
		ReadGroup string
		Qual      uint8
	}

	covariateKey struct {
		ReadGroup string
		Qual      uint8
		Value     int32
	}
)

// CovariateKey identifies one base of a read in every level of the
// table hierarchy at once: the read group, the reported quality, and
// the values of the optional covariates, in table declaration order.
type CovariateKey struct {
	ReadGroup string
	Qual      uint8
	Optional  [MaxOptionalCovariates]int32
}

// Tables is the collapsed recalibration table hierarchy. The first
// level aggregates per read group, the second per read group and
// reported quality, and each optional covariate gets one further table
// keyed by read group, reported quality, and its own value. Optional
// covariates are never cross-multiplied with each other.
type Tables struct {
	Covariates  []Covariate
	ReadGroups  map[string]*RecalDatum
	Qualities   map[qualityKey]*RecalDatum
	ByCovariate []map[covariateKey]*RecalDatum
	maxQuality  int
	finalized   bool
}

// NewTables allocates an empty table hierarchy for the given covariate
// list. The first two covariates must be the read group and quality
// score covariates.
func NewTables(covariates []Covariate) *Tables {
	byCovariate := make([]map[covariateKey]*RecalDatum, len(covariates)-2)
	for i := range byCovariate {
		byCovariate[i] = make(map[covariateKey]*RecalDatum)
	}
	return &Tables{
		Covariates:  covariates,
		ReadGroups:  make(map[string]*RecalDatum),
		Qualities:   make(map[qualityKey]*RecalDatum),
		ByCovariate: byCovariate,
	}
}

// OptionalCovariates returns the covariates beyond read group and
// quality score, in table declaration order.
func (t *Tables) OptionalCovariates() []Covariate {
	return t.Covariates[2:]
}

// add folds one table row into every level of the hierarchy. Optional
// covariate values without a bucket representation are skipped at
// their own level only.
func (t *Tables) add(key CovariateKey, observations, mismatches int64, reportedQuality float64) {
	rgDatum := t.ReadGroups[key.ReadGroup]
	if rgDatum == nil {
		rgDatum = new(RecalDatum)
		t.ReadGroups[key.ReadGroup] = rgDatum
	}
	rgDatum.accumulate(observations, mismatches, reportedQuality)
	qKey := qualityKey{key.ReadGroup, key.Qual}
	qDatum := t.Qualities[qKey]
	if qDatum == nil {
		qDatum = new(RecalDatum)
		t.Qualities[qKey] = qDatum
	}
	qDatum.accumulate(observations, mismatches, reportedQuality)
	for i, table := range t.ByCovariate {
		value := key.Optional[i]
		if value == missingValue {
			continue
		}
		cKey := covariateKey{key.ReadGroup, key.Qual, value}
		cDatum := table[cKey]
		if cDatum == nil {
			cDatum = new(RecalDatum)
			table[cKey] = cDatum
		}
		cDatum.accumulate(observations, mismatches, reportedQuality)
	}
}

// Finalize computes the empirical quality of every bucket in the
// hierarchy. It must be called exactly once, after loading and before
// quality lookups.
func (t *Tables) Finalize(smoothing, maxQuality int) {
	if t.finalized {
		panic("recalibration tables finalized twice")
	}
	t.maxQuality = maxQuality
	t.finalized = true
	parallel.Do(
		func() {
			for _, datum := range t.ReadGroups {
				datum.EmpiricalQuality = EmpiricalQuality(datum.Mismatches, datum.Observations, smoothing, maxQuality)
			}
		},
		func() {
			for _, datum := range t.Qualities {
				datum.EmpiricalQuality = EmpiricalQuality(datum.Mismatches, datum.Observations, smoothing, maxQuality)
			}
		},
		func() {
			for _, table := range t.ByCovariate {
				for _, datum := range table {
					datum.EmpiricalQuality = EmpiricalQuality(datum.Mismatches, datum.Observations, smoothing, maxQuality)
				}
			}
		},
	)
}
