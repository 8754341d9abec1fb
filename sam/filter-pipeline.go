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

package sam

import (
	"github.com/exascience/pargo/pipeline"

	"github.com/requalib/requal/internal"
)

// AlignmentFilter receives an alignment that it can modify, and
// reports whether the alignment should be kept in the output.
type AlignmentFilter func(aln *Alignment) bool

// Filter receives a header that it can modify, and returns an
// AlignmentFilter, or nil for filters that only operate on the header.
//
// A Filter is invoked once per run, so it can close over state that is
// shared across all alignments. Such state is safe without locking as
// long as the filter runs in a sequential pipeline node, which is what
// RunPipeline arranges.
type Filter func(hdr *Header) AlignmentFilter

// ComposeFilters applies the header filters and returns the slice of
// non-nil alignment filters.
func ComposeFilters(hdr *Header, filters []Filter) (alnFilters []AlignmentFilter) {
	for _, filter := range filters {
		if alnFilter := filter(hdr); alnFilter != nil {
			alnFilters = append(alnFilters, alnFilter)
		}
	}
	return alnFilters
}

func filterAlignments(alns []*Alignment, filters []AlignmentFilter) []*Alignment {
	kept := alns[:0]
	for _, aln := range alns {
		keep := true
		for _, filter := range filters {
			if !filter(aln) {
				keep = false
				break
			}
		}
		if keep {
			kept = append(kept, aln)
		}
	}
	return kept
}

const (
	minBatchSize = 512
	maxBatchSize = 4096
)

// RunPipeline copies the alignments of an input file to an output
// file, applying the given filters along the way. Parsing and
// formatting run in parallel, while the alignment filters themselves
// run in a single ordered pipeline node. Input order is preserved.
func (f *InputFile) RunPipeline(output *OutputFile, filters []Filter) error {
	hdr := f.ParseHeader()
	alnFilters := ComposeFilters(hdr, filters)
	if err := output.FormatHeader(hdr); err != nil {
		return err
	}
	var p pipeline.Pipeline
	p.Source(f)
	p.SetVariableBatchSize(minBatchSize, maxBatchSize)
	p.Add(
		pipeline.LimitedPar(0, pipeline.Receive(func(_ int, data interface{}) interface{} {
			lines := data.([]string)
			alns := make([]*Alignment, len(lines))
			for i, line := range lines {
				alns[i] = ParseAlignment(line)
			}
			return alns
		})),
		pipeline.Ord(pipeline.Receive(func(_ int, data interface{}) interface{} {
			return filterAlignments(data.([]*Alignment), alnFilters)
		})),
		pipeline.LimitedPar(0, pipeline.Receive(func(_ int, data interface{}) interface{} {
			alns := data.([]*Alignment)
			buf := internal.ReserveByteBuffer()
			for _, aln := range alns {
				buf = aln.Format(buf)
			}
			return buf
		})),
		pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
			buf := data.([]byte)
			if _, err := output.Write(buf); err != nil {
				p.SetErr(err)
			}
			internal.ReleaseByteBuffer(buf)
			return nil
		})),
	)
	p.Run()
	return p.Err()
}
