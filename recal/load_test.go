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
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTableFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recal.csv")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

const testTable = "# collapsed table produced by the first pass\n" +
	"rg,Qreported,cycle,dinuc,nBases,nMismatches,Qempirical\n" +
	"ReadGroup,QualityScore,Cycle,Dinuc,nObservations,nMismatches,Qempirical\n" +
	"rg1,30,1,AC,1000,10,20.00\n" +
	"rg1,30,2,AC,500,5,20.00\n" +
	"rg1,20,1,AA,200,20,10.00\n" +
	"EOF\n"

func TestLoadTables(t *testing.T) {
	path := writeTableFile(t, testTable)
	tables, err := LoadTables(path, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(tables.Covariates) != 4 {
		t.Fatal("unexpected covariate count", len(tables.Covariates))
	}
	if name := tables.Covariates[2].Name(); name != "CycleCovariate" {
		t.Error("unexpected third covariate", name)
	}
	rg := tables.ReadGroups["rg1"]
	if rg == nil {
		t.Fatal("read group rg1 not loaded")
	}
	if rg.Observations != 1700 || rg.Mismatches != 35 {
		t.Error("unexpected read group counts", rg.Observations, rg.Mismatches)
	}
	expected := (30*1500.0 + 20*200.0) / 1700.0
	if math.Abs(rg.EstimatedQReported-expected) > 1e-9 {
		t.Error("unexpected estimated reported quality", rg.EstimatedQReported)
	}
	if datum := tables.Qualities[qualityKey{"rg1", 30}]; datum == nil || datum.Observations != 1500 {
		t.Error("quality bucket for rg1/30 not loaded")
	}
	if datum := tables.ByCovariate[1][covariateKey{"rg1", 30, encodeDinuc('A', 'C')}]; datum == nil || datum.Observations != 1500 {
		t.Error("dinucleotide bucket for rg1/30/AC not loaded")
	}
}

func TestLoadTablesNegativeCycle(t *testing.T) {
	table := "ReadGroup,QualityScore,Cycle,nObservations,nMismatches,Qempirical\n" +
		"rg1,30,-1,1000,1,30.00\n" +
		"rg1,30,1,1000,999,0.00\nEOF\n"
	path := writeTableFile(t, table)
	tables, err := LoadTables(path, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	datum := tables.ByCovariate[0][covariateKey{"rg1", 30, -1}]
	if datum == nil {
		t.Fatal("cycle -1 bucket not loaded")
	}
	if datum.Observations != 1000 || datum.Mismatches != 1 {
		t.Error("unexpected cycle -1 bucket counts", datum.Observations, datum.Mismatches)
	}
	tables.Finalize(DefaultSmoothing, DefaultMaxQualityScore)
	var key CovariateKey
	key.ReadGroup = "rg1"
	key.Qual = 30
	key.Optional[0] = -1
	// The clean cycle -1 bucket must pull the quality well above the
	// mismatch-heavy read group average.
	if quality := tables.SequentialQuality(key); quality <= 20 {
		t.Error("cycle -1 bucket contributed no delta:", quality)
	}
}

func TestLoadTablesPreservesLowQualities(t *testing.T) {
	path := writeTableFile(t, testTable)
	tables, err := LoadTables(path, LoadOptions{PreserveQScoresLessThan: 25})
	if err != nil {
		t.Fatal(err)
	}
	if rg := tables.ReadGroups["rg1"]; rg.Observations != 1500 {
		t.Error("rows below the preserve threshold entered the statistics:", rg.Observations)
	}
	if _, found := tables.Qualities[qualityKey{"rg1", 20}]; found {
		t.Error("quality bucket below the preserve threshold was created")
	}
}

func TestLoadTablesErrors(t *testing.T) {
	malformed := map[string]struct {
		content string
		message string
	}{
		"unknown covariate": {
			content: "ReadGroup,QualityScore,Bogus,nObservations,nMismatches,Qempirical\n" +
				"rg1,30,1,100,1,20.00\nEOF\n",
			message: "BogusCovariate",
		},
		"wrong field count": {
			content: "ReadGroup,QualityScore,Cycle,nObservations,nMismatches,Qempirical\n" +
				"rg1,30,1,100,1\nEOF\n",
			message: "fields",
		},
		"non-numeric quality": {
			content: "ReadGroup,QualityScore,Cycle,nObservations,nMismatches,Qempirical\n" +
				"rg1,abc,1,100,1,20.00\nEOF\n",
			message: "incompatible version",
		},
		"mismatches exceed observations": {
			content: "ReadGroup,QualityScore,Cycle,nObservations,nMismatches,Qempirical\n" +
				"rg1,30,1,100,200,20.00\nEOF\n",
			message: "inconsistent counts",
		},
		"declaration after data": {
			content: "ReadGroup,QualityScore,Cycle,nObservations,nMismatches,Qempirical\n" +
				"rg1,30,1,100,1,20.00\n" +
				"ReadGroup,QualityScore,Dinuc,nObservations,nMismatches,Qempirical\n" +
				"rg1,30,AC,100,1,20.00\nEOF\n",
			message: "intermingled",
		},
		"no declaration line": {
			content: "rg1,30,1,100,1,20.00\nEOF\n",
			message: "declaration",
		},
		"no data": {
			content: "# nothing here\nEOF\n",
			message: "no data",
		},
	}
	for name, test := range malformed {
		path := writeTableFile(t, test.content)
		if _, err := LoadTables(path, LoadOptions{}); err == nil {
			t.Error(name, ": expected an error")
		} else if !strings.Contains(err.Error(), test.message) {
			t.Error(name, ": unexpected error", err)
		}
	}
}

func TestLoadTablesEOFMarker(t *testing.T) {
	withoutEOF := "ReadGroup,QualityScore,Cycle,nObservations,nMismatches,Qempirical\n" +
		"rg1,30,1,100,1,20.00\n"
	path := writeTableFile(t, withoutEOF)
	if _, err := LoadTables(path, LoadOptions{}); err != nil {
		t.Error("missing EOF marker should only warn by default:", err)
	}
	if _, err := LoadTables(path, LoadOptions{RequireEOFMarker: true}); err == nil {
		t.Error("missing EOF marker not reported")
	} else if !strings.Contains(err.Error(), "EOF marker") {
		t.Error("unexpected error", err)
	}
}
