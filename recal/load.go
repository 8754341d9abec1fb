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
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
)

// EOFMarker is the sentinel that the first pass appends to a table
// file when it finishes successfully. A table without it may be
// truncated.
const EOFMarker = "EOF"

// LoadOptions controls how a recalibration table file is interpreted.
type LoadOptions struct {
	// Rows with a reported quality below this threshold are excluded
	// from the table statistics. Bases with such qualities keep their
	// original scores during recalibration.
	PreserveQScoresLessThan int

	// When set, a table file without the trailing EOF marker is an
	// error instead of a warning.
	RequireEOFMarker bool
}

type tableParseError struct{ err error }

func (e tableParseError) Error() string { return e.err.Error() }

// LoadTables reads a recalibration table file produced by the first
// pass of the recalibration pipeline. The returned tables still need
// to be finalized before quality lookups.
func LoadTables(path string, options LoadOptions) (tables *Tables, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not read recalibration table file: %v", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	var covariates []Covariate
	foundAllCovariates := false
	sawEOFMarker := false
	lineNumber := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		lineNumber++
		switch {
		case line == EOFMarker:
			sawEOFMarker = true
		case line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "rg,"):
			// comments and the legacy format header carry no data
		case strings.HasPrefix(line, "ReadGroup,QualityScore,"):
			if foundAllCovariates {
				return nil, fmt.Errorf("malformed recalibration table %v: covariate names intermingled with data at line %v", path, lineNumber)
			}
			// The declaration line shares its layout with the data
			// lines, so its last three fields are column labels.
			names := strings.Split(line, ",")
			if len(names) < 3 {
				return nil, fmt.Errorf("malformed covariate declaration at line %v in %v", lineNumber, path)
			}
			covariates = nil
			for _, name := range names[:len(names)-3] {
				cov, ok := ResolveCovariate(name)
				if !ok {
					return nil, fmt.Errorf("the requested covariate type (%vCovariate) at line %v in %v is not a known covariate", name, lineNumber, path)
				}
				covariates = append(covariates, cov)
			}
		default:
			if !foundAllCovariates {
				if len(covariates) < 2 {
					return nil, fmt.Errorf("malformed recalibration table %v: the covariate declaration line cannot be found", path)
				}
				if len(covariates)-2 > MaxOptionalCovariates {
					return nil, fmt.Errorf("recalibration table %v declares %v covariates; at most %v beyond read group and quality score are supported", path, len(covariates), MaxOptionalCovariates)
				}
				foundAllCovariates = true
				tables = NewTables(covariates)
			}
			if err := tables.addTableLine(line, options.PreserveQScoresLessThan); err != nil {
				if parseErr, ok := err.(tableParseError); ok {
					return nil, fmt.Errorf("error parsing recalibration data at line %v in %v: %v; the table may have been generated by an incompatible version of the covariate counting tool", lineNumber, path, parseErr.err)
				}
				return nil, fmt.Errorf("%v at line %v in %v", err, lineNumber, path)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not read recalibration table file %v: %v", path, err)
	}
	if tables == nil {
		return nil, fmt.Errorf("recalibration table %v contains no data", path)
	}
	if !sawEOFMarker {
		if options.RequireEOFMarker {
			return nil, fmt.Errorf("no EOF marker was present in the recalibration table %v; this table may be corrupted or truncated", path)
		}
		log.Println("warning: no EOF marker was present in the recalibration table", path, "- this table may be corrupted or truncated")
	}
	return tables, nil
}

// addTableLine parses one comma-separated data line and folds it into
// the hierarchy. A data line carries the covariate values in
// declaration order, the observation count, the mismatch count, and
// the empirical quality written by the producer, which is recomputed
// here and therefore ignored.
func (t *Tables) addTableLine(line string, preserveQScoresLessThan int) error {
	values := strings.Split(line, ",")
	if len(values) != len(t.Covariates)+3 {
		return fmt.Errorf("malformed recalibration data line %q with %v fields where %v were expected; perhaps a read group name contains a comma", line, len(values), len(t.Covariates)+3)
	}
	var key CovariateKey
	key.ReadGroup = values[0]
	qual, err := strconv.ParseUint(values[1], 10, 8)
	if err != nil {
		return tableParseError{err}
	}
	key.Qual = uint8(qual)
	for i, cov := range t.OptionalCovariates() {
		value, err := cov.Parse(values[2+i])
		if err != nil {
			return tableParseError{err}
		}
		key.Optional[i] = value
	}
	observations, err := strconv.ParseInt(values[len(t.Covariates)], 10, 64)
	if err != nil {
		return tableParseError{err}
	}
	mismatches, err := strconv.ParseInt(values[len(t.Covariates)+1], 10, 64)
	if err != nil {
		return tableParseError{err}
	}
	if observations < 0 || mismatches < 0 || mismatches > observations {
		return fmt.Errorf("inconsistent counts in recalibration data line %q", line)
	}
	if int(key.Qual) < preserveQScoresLessThan {
		return nil
	}
	// The reported quality enters the statistics through the same
	// field that keys the second table level.
	reportedQuality, err := strconv.ParseFloat(values[1], 64)
	if err != nil {
		return tableParseError{err}
	}
	t.add(key, observations, mismatches, reportedQuality)
	return nil
}
