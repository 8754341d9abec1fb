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

func fastRound(value float64) int {
	return int(value + 0.5)
}

func boundQuality(quality, maxQuality int) uint8 {
	if quality < 0 {
		return 0
	}
	if quality > maxQuality {
		return uint8(maxQuality)
	}
	return uint8(quality)
}

// SequentialQuality computes the recalibrated quality for one key by
// walking down the table hierarchy and summing the delta each level
// contributes beyond the levels above it:
//
//	result = reportedQ + globalDeltaQ + deltaQReported + sum(deltaQCovariates)
//
// A level that has no bucket for the key contributes zero. The sum is
// rounded to the nearest integer and clamped to [0, maxQuality].
func (t *Tables) SequentialQuality(key CovariateKey) uint8 {
	reportedQuality := float64(key.Qual)
	var globalDeltaQ float64
	if datum, ok := t.ReadGroups[key.ReadGroup]; ok {
		globalDeltaQ = datum.EmpiricalQuality - datum.EstimatedQReported
	}
	var deltaQReported float64
	if datum, ok := t.Qualities[qualityKey{key.ReadGroup, key.Qual}]; ok {
		deltaQReported = datum.EmpiricalQuality - reportedQuality - globalDeltaQ
	}
	var deltaQCovariates float64
	for i, table := range t.ByCovariate {
		if datum, ok := table[covariateKey{key.ReadGroup, key.Qual, key.Optional[i]}]; ok {
			deltaQCovariates += datum.EmpiricalQuality - reportedQuality - (globalDeltaQ + deltaQReported)
		}
	}
	newQuality := reportedQuality + globalDeltaQ + deltaQReported + deltaQCovariates
	return boundQuality(fastRound(newQuality), t.maxQuality)
}

// QualityCache memoizes SequentialQuality per covariate key. Reads
// revisit the same keys constantly, so almost all lookups hit the
// cache. The cache is not safe for concurrent use; it is meant to live
// inside a sequential pipeline node.
type QualityCache struct {
	tables       *Tables
	scores       map[CovariateKey]uint8
	computations int64
}

// NewQualityCache creates an empty cache backed by the given finalized
// tables.
func NewQualityCache(tables *Tables) *QualityCache {
	return &QualityCache{
		tables: tables,
		scores: make(map[CovariateKey]uint8),
	}
}

// Quality returns the recalibrated quality for the key, computing it
// at most once per distinct key.
func (cache *QualityCache) Quality(key CovariateKey) uint8 {
	if quality, found := cache.scores[key]; found {
		return quality
	}
	quality := cache.tables.SequentialQuality(key)
	cache.computations++
	cache.scores[key] = quality
	return quality
}

// Computations returns how often the underlying calculator has been
// invoked.
func (cache *QualityCache) Computations() int64 {
	return cache.computations
}
