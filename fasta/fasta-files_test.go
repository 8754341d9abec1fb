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

package fasta

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
)

const testFasta = ">chr1 a description\nacgtACGT\nNNRYacgt\n>chr2\nTTTT\n"

func TestToUpperAndN(t *testing.T) {
	for input, expected := range map[byte]byte{'a': 'A', 'C': 'C', 'g': 'G', 'T': 'T', 'n': 'N', 'R': 'N', '-': 'N'} {
		if base := ToUpperAndN(input); base != expected {
			t.Error("unexpected mapping", string(input), "->", string(base))
		}
	}
}

func checkTestFasta(t *testing.T, fasta map[string][]byte) {
	t.Helper()
	if len(fasta) != 2 {
		t.Fatal("unexpected contig count", len(fasta))
	}
	if string(fasta["chr1"]) != "ACGTACGTNNNNACGT" {
		t.Error("unexpected chr1 sequence", string(fasta["chr1"]))
	}
	if string(fasta["chr2"]) != "TTTT" {
		t.Error("unexpected chr2 sequence", string(fasta["chr2"]))
	}
}

func TestParseFasta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.fasta")
	if err := os.WriteFile(path, []byte(testFasta), 0600); err != nil {
		t.Fatal(err)
	}
	checkTestFasta(t, ParseFasta(path))
}

func TestParseFastaGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.fasta.gz")
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zip := gzip.NewWriter(file)
	if _, err := zip.Write([]byte(testFasta)); err != nil {
		t.Fatal(err)
	}
	if err := zip.Close(); err != nil {
		t.Fatal(err)
	}
	if err := file.Close(); err != nil {
		t.Fatal(err)
	}
	checkTestFasta(t, ParseFasta(path))
}
