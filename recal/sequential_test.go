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

import "testing"

func newTestTables(t *testing.T) *Tables {
	t.Helper()
	cycle, ok := ResolveCovariate("Cycle")
	if !ok {
		t.Fatal("cycle covariate not found")
	}
	tables := NewTables([]Covariate{readGroupCovariate{}, qualityScoreCovariate{}, cycle})
	tables.maxQuality = DefaultMaxQualityScore
	tables.finalized = true
	return tables
}

func TestSequentialQualityEmptyHierarchy(t *testing.T) {
	tables := newTestTables(t)
	if q := tables.SequentialQuality(CovariateKey{ReadGroup: "rg1", Qual: 30}); q != 30 {
		t.Error("empty hierarchy changed the reported quality to", q)
	}
}

func TestSequentialQualityDeltas(t *testing.T) {
	tables := newTestTables(t)
	tables.ReadGroups["rg1"] = &RecalDatum{EstimatedQReported: 30, EmpiricalQuality: 28}
	tables.Qualities[qualityKey{"rg1", 30}] = &RecalDatum{EmpiricalQuality: 27}
	tables.ByCovariate[0][covariateKey{"rg1", 30, 1}] = &RecalDatum{EmpiricalQuality: 26}

	key := CovariateKey{ReadGroup: "rg1", Qual: 30}
	key.Optional[0] = 1
	// globalDeltaQ = -2, deltaQReported = -1, deltaQCycle = -1
	if q := tables.SequentialQuality(key); q != 26 {
		t.Error("unexpected sequential quality", q)
	}

	// a cycle without a bucket contributes no delta
	key.Optional[0] = 2
	if q := tables.SequentialQuality(key); q != 27 {
		t.Error("unexpected sequential quality without a cycle bucket", q)
	}

	// an unknown read group falls back to the reported quality
	if q := tables.SequentialQuality(CovariateKey{ReadGroup: "rg2", Qual: 30}); q != 30 {
		t.Error("unexpected sequential quality for an unknown read group", q)
	}
}

func TestSequentialQualityClamps(t *testing.T) {
	tables := newTestTables(t)
	tables.ReadGroups["rg1"] = &RecalDatum{EstimatedQReported: 40, EmpiricalQuality: 0}
	key := CovariateKey{ReadGroup: "rg1", Qual: 2}
	if q := tables.SequentialQuality(key); q != 0 {
		t.Error("sequential quality not clamped to zero:", q)
	}
	tables.ReadGroups["rg1"] = &RecalDatum{EstimatedQReported: 10, EmpiricalQuality: 50}
	key = CovariateKey{ReadGroup: "rg1", Qual: 40}
	if q := tables.SequentialQuality(key); q != DefaultMaxQualityScore {
		t.Error("sequential quality not clamped to the maximum:", q)
	}
}

func TestSequentialQualityRounding(t *testing.T) {
	tables := newTestTables(t)
	tables.ReadGroups["rg1"] = &RecalDatum{EstimatedQReported: 30, EmpiricalQuality: 29.4}
	if q := tables.SequentialQuality(CovariateKey{ReadGroup: "rg1", Qual: 30}); q != 29 {
		t.Error("unexpected rounding down:", q)
	}
	tables.ReadGroups["rg1"] = &RecalDatum{EstimatedQReported: 30, EmpiricalQuality: 29.6}
	if q := tables.SequentialQuality(CovariateKey{ReadGroup: "rg1", Qual: 30}); q != 30 {
		t.Error("unexpected rounding up:", q)
	}
}

func TestQualityCacheComputesOncePerKey(t *testing.T) {
	tables := newTestTables(t)
	cache := NewQualityCache(tables)
	key1 := CovariateKey{ReadGroup: "rg1", Qual: 30}
	key2 := CovariateKey{ReadGroup: "rg1", Qual: 20}
	for i := 0; i < 10; i++ {
		if q := cache.Quality(key1); q != 30 {
			t.Fatal("unexpected cached quality", q)
		}
		if q := cache.Quality(key2); q != 20 {
			t.Fatal("unexpected cached quality", q)
		}
	}
	if n := cache.Computations(); n != 2 {
		t.Error("calculator invoked", n, "times for 2 distinct keys")
	}
}
