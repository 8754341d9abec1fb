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
	"io"

	"github.com/guptarohit/asciigraph"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat"
)

// WriteStats writes a human readable summary of finalized tables: one
// line per read group, the bucket counts of the optional covariate
// tables, and a histogram of the observations per reported quality.
func (t *Tables) WriteStats(w io.Writer) error {
	readGroups := maps.Keys(t.ReadGroups)
	slices.Sort(readGroups)
	for _, rg := range readGroups {
		datum := t.ReadGroups[rg]
		var quals, weights []float64
		for key, qDatum := range t.Qualities {
			if key.ReadGroup == rg {
				quals = append(quals, float64(key.Qual))
				weights = append(weights, float64(qDatum.Observations))
			}
		}
		meanReported := stat.Mean(quals, weights)
		empiricalShift := datum.EmpiricalQuality - datum.EstimatedQReported
		if _, err := fmt.Fprintf(w, "read group %v: %v observations, %v mismatches, reported Q %.2f (bucket mean %.2f), empirical Q %.2f, shift %+.2f\n",
			rg, datum.Observations, datum.Mismatches, datum.EstimatedQReported, meanReported, datum.EmpiricalQuality, empiricalShift); err != nil {
			return err
		}
	}
	for i, cov := range t.OptionalCovariates() {
		if _, err := fmt.Fprintf(w, "%v: %v buckets\n", cov.Name(), len(t.ByCovariate[i])); err != nil {
			return err
		}
	}
	series := make([]float64, t.maxQuality+1)
	for key, datum := range t.Qualities {
		if int(key.Qual) < len(series) {
			series[key.Qual] += float64(datum.Observations)
		}
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, asciigraph.Plot(series,
		asciigraph.Height(10),
		asciigraph.Caption("observations per reported quality")))
	return err
}
