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
	"testing"

	"github.com/requalib/requal/sam"
)

func TestResolveCovariate(t *testing.T) {
	for _, name := range []string{"Cycle", "cycle", "CYCLE"} {
		cov, ok := ResolveCovariate(name)
		if !ok {
			t.Fatal("covariate", name, "not resolved")
		}
		if cov.Name() != "CycleCovariate" {
			t.Error("unexpected covariate", cov.Name(), "for", name)
		}
	}
	if _, ok := ResolveCovariate("Bogus"); ok {
		t.Error("resolved a covariate that does not exist")
	}
}

func TestCycleCovariateValues(t *testing.T) {
	var cycle cycleCovariate
	forward := &sam.Alignment{QUAL: []byte{30, 30, 30}}
	if values := cycle.Values(forward, nil); values[0] != 1 || values[1] != 2 || values[2] != 3 {
		t.Error("unexpected forward cycles", values)
	}
	reverse := &sam.Alignment{FLAG: sam.Reversed, QUAL: []byte{30, 30, 30}}
	if values := cycle.Values(reverse, nil); values[0] != 3 || values[1] != 2 || values[2] != 1 {
		t.Error("unexpected reverse cycles", values)
	}
	second := &sam.Alignment{FLAG: sam.Multiple | sam.Last, QUAL: []byte{30, 30}}
	if values := cycle.Values(second, nil); values[0] != -1 || values[1] != -2 {
		t.Error("unexpected second of pair cycles", values)
	}
}

func TestCycleCovariateParse(t *testing.T) {
	var cycle cycleCovariate
	if value, err := cycle.Parse("-17"); err != nil || value != -17 {
		t.Error("unexpected parse result", value, err)
	}
	if _, err := cycle.Parse("seventeen"); err == nil {
		t.Error("parsed a non-numeric cycle")
	}
}

func TestDinucCovariateValues(t *testing.T) {
	var dinuc dinucCovariate
	forward := &sam.Alignment{SEQ: []byte("ACG")}
	values := dinuc.Values(forward, nil)
	if values[0] != encodeDinuc('N', 'A') || values[1] != encodeDinuc('A', 'C') || values[2] != encodeDinuc('C', 'G') {
		t.Error("unexpected forward dinucleotides", values)
	}
	// the reverse strand sees the complement in machine order
	reverse := &sam.Alignment{FLAG: sam.Reversed, SEQ: []byte("ACG")}
	values = dinuc.Values(reverse, nil)
	if values[2] != encodeDinuc('N', 'C') || values[1] != encodeDinuc('C', 'G') || values[0] != encodeDinuc('G', 'T') {
		t.Error("unexpected reverse dinucleotides", values)
	}
}

func TestDinucCovariateParse(t *testing.T) {
	var dinuc dinucCovariate
	if value, err := dinuc.Parse("AC"); err != nil || value != encodeDinuc('A', 'C') {
		t.Error("unexpected parse result", value, err)
	}
	if value, err := dinuc.Parse("NN"); err != nil || value != encodeDinuc('N', 'N') {
		t.Error("NN should be a regular bucket", value, err)
	}
	if _, err := dinuc.Parse("ACG"); err == nil {
		t.Error("parsed a dinucleotide of length 3")
	}
}

func TestContextCovariate(t *testing.T) {
	var context contextCovariate
	forward := &sam.Alignment{SEQ: []byte("ACGT")}
	values := context.Values(forward, nil)
	if values[0] != missingValue {
		t.Error("first base should have no context", values[0])
	}
	parsed, err := context.Parse("AC")
	if err != nil {
		t.Fatal(err)
	}
	if values[1] != parsed {
		t.Error("context of the second base does not match the parsed text form")
	}
	withN := &sam.Alignment{SEQ: []byte("ANGT")}
	values = context.Values(withN, nil)
	if values[1] != missingValue || values[2] != missingValue {
		t.Error("contexts containing N should be missing", values)
	}
	if values[3] == missingValue {
		t.Error("context beyond the N should be present again")
	}
}
