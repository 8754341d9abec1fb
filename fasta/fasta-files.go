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

// Package fasta reads reference files in FASTA format.
package fasta

import (
	"bufio"
	"compress/gzip"
	"io"
	"log"
	"strings"

	"github.com/requalib/requal/internal"
)

// Elements that are not standard nucleotides are mapped to N, so that
// downstream code only ever compares against the five bases A, C, G,
// T, and N.
var iupacTable = func() (table [256]byte) {
	for i := range table {
		table[i] = 'N'
	}
	for _, base := range "ACGT" {
		table[base] = byte(base)
		table[base+'a'-'A'] = byte(base)
	}
	return table
}()

// ToUpperAndN maps a nucleotide to its uppercase form, and any
// ambiguous IUPAC element to N.
func ToUpperAndN(base byte) byte {
	return iupacTable[base]
}

func contigName(header string) string {
	name := header[1:]
	if index := strings.IndexAny(name, " \t"); index >= 0 {
		name = name[:index]
	}
	return name
}

// ParseFasta sequentially parses a FASTA file, optionally gzip
// compressed, and returns its sequences keyed by contig name. All
// bases are normalized with ToUpperAndN.
func ParseFasta(filename string) map[string][]byte {
	file := internal.FileOpen(filename)
	defer internal.Close(file)
	var reader *bufio.Reader
	if strings.HasSuffix(filename, ".gz") {
		unzip, err := gzip.NewReader(file)
		if err != nil {
			log.Panic(err, ", while opening ", filename)
		}
		defer internal.Close(unzip)
		reader = bufio.NewReader(unzip)
	} else {
		reader = bufio.NewReader(file)
	}
	fasta := make(map[string][]byte)
	var current []byte
	var name string
	flush := func() {
		if name != "" {
			fasta[name] = current
		}
	}
	for {
		line, err := reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			if line[0] == '>' {
				flush()
				name = contigName(line)
				if name == "" {
					log.Panic("empty contig name in ", filename)
				}
				current = nil
			} else {
				if name == "" {
					log.Panic("missing contig header in ", filename)
				}
				for i := 0; i < len(line); i++ {
					current = append(current, ToUpperAndN(line[i]))
				}
			}
		}
		if err == io.EOF {
			break
		} else if err != nil {
			log.Panic(err, ", while parsing ", filename)
		}
	}
	flush()
	return fasta
}
