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
	"testing"
)

func TestEmpiricalQuality(t *testing.T) {
	if q := EmpiricalQuality(0, 999, 1, 50); math.Abs(q-30) > 1e-9 {
		t.Error("unexpected empirical quality", q)
	}
	if q := EmpiricalQuality(99, 899, 1, 50); math.Abs(q-9.54242509) > 1e-6 {
		t.Error("unexpected empirical quality", q)
	}
	if q := EmpiricalQuality(0, 100000000, 1, 50); q != 50 {
		t.Error("empirical quality not clamped to the maximum:", q)
	}
	if q := EmpiricalQuality(1000, 1000, 1, 50); q != 0 {
		t.Error("empirical quality not clamped to zero:", q)
	}
}

func TestAccumulateWeightedMean(t *testing.T) {
	var datum RecalDatum
	datum.accumulate(1500, 15, 30)
	datum.accumulate(200, 20, 20)
	if datum.Observations != 1700 || datum.Mismatches != 35 {
		t.Error("unexpected counts", datum.Observations, datum.Mismatches)
	}
	expected := (30*1500.0 + 20*200.0) / 1700.0
	if math.Abs(datum.EstimatedQReported-expected) > 1e-9 {
		t.Error("unexpected estimated reported quality", datum.EstimatedQReported)
	}
}

func TestAddFillsAllLevels(t *testing.T) {
	cycle, _ := ResolveCovariate("Cycle")
	dinuc, _ := ResolveCovariate("Dinuc")
	tables := NewTables([]Covariate{readGroupCovariate{}, qualityScoreCovariate{}, cycle, dinuc})
	key := CovariateKey{ReadGroup: "rg1", Qual: 30}
	key.Optional[0] = 1
	key.Optional[1] = encodeDinuc('A', 'C')
	tables.add(key, 1000, 10, 30)
	key.Optional[0] = 2
	tables.add(key, 500, 5, 30)
	if datum := tables.ReadGroups["rg1"]; datum == nil || datum.Observations != 1500 {
		t.Fatal("read group level not filled")
	}
	if datum := tables.Qualities[qualityKey{"rg1", 30}]; datum == nil || datum.Observations != 1500 {
		t.Fatal("quality level not filled")
	}
	if datum := tables.ByCovariate[0][covariateKey{"rg1", 30, 1}]; datum == nil || datum.Observations != 1000 {
		t.Fatal("cycle level not filled")
	}
	// the two rows share the dinucleotide, so its bucket collapses them
	if datum := tables.ByCovariate[1][covariateKey{"rg1", 30, encodeDinuc('A', 'C')}]; datum == nil || datum.Observations != 1500 {
		t.Fatal("dinucleotide level not collapsed")
	}
}

func TestAddSkipsMissingCovariateValues(t *testing.T) {
	context, _ := ResolveCovariate("Context")
	tables := NewTables([]Covariate{readGroupCovariate{}, qualityScoreCovariate{}, context})
	key := CovariateKey{ReadGroup: "rg1", Qual: 30}
	key.Optional[0] = missingValue
	tables.add(key, 100, 1, 30)
	if len(tables.ByCovariate[0]) != 0 {
		t.Error("missing covariate value created a bucket")
	}
	if tables.ReadGroups["rg1"].Observations != 100 {
		t.Error("missing covariate value dropped from the higher levels")
	}
}

func TestFinalize(t *testing.T) {
	tables := NewTables([]Covariate{readGroupCovariate{}, qualityScoreCovariate{}})
	tables.add(CovariateKey{ReadGroup: "rg1", Qual: 30}, 999, 0, 30)
	tables.Finalize(1, 50)
	if q := tables.ReadGroups["rg1"].EmpiricalQuality; math.Abs(q-30) > 1e-9 {
		t.Error("unexpected empirical quality after finalization", q)
	}
	if q := tables.Qualities[qualityKey{"rg1", 30}].EmpiricalQuality; math.Abs(q-30) > 1e-9 {
		t.Error("unexpected empirical quality after finalization", q)
	}
}
