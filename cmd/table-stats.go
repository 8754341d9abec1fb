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

package cmd

import (
	"flag"
	"fmt"
	"os"

	"github.com/requalib/requal/recal"
)

// TableStatsHelp shows the usage of the table-stats command.
const TableStatsHelp = "\nrequal table-stats recal-file\n" +
	"[--preserve-qscores-less-than quality]\n" +
	"[--smoothing count]\n" +
	"[--max-quality-score quality]\n" +
	"[--require-eof-marker]\n" +
	"[--log-path path]\n"

// TableStats implements the requal table-stats command. It loads a
// recalibration table and prints its per read group statistics to
// standard output.
func TableStats() error {
	var (
		logPath               string
		preserveQScores       int
		smoothing, maxQuality int
		requireEOFMarker      bool
	)
	var flags flag.FlagSet
	flags.IntVar(&preserveQScores, "preserve-qscores-less-than", recal.DefaultPreserveQScoresLessThan, "qualities below this threshold are excluded from the statistics")
	flags.IntVar(&smoothing, "smoothing", recal.DefaultSmoothing, "count added to observations and mismatches when computing empirical qualities")
	flags.IntVar(&maxQuality, "max-quality-score", recal.DefaultMaxQualityScore, "the largest empirical quality")
	flags.BoolVar(&requireEOFMarker, "require-eof-marker", false, "fail when the recalibration table lacks its trailing EOF marker")
	flags.StringVar(&logPath, "log-path", "", "the directory for the log file")

	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, TableStatsHelp)
		os.Exit(1)
	}
	recalFile := getFilename(os.Args[2], TableStatsHelp)
	parseFlags(flags, 3, TableStatsHelp)

	setLogOutput(logPath)

	if !checkExist("", recalFile) {
		fmt.Fprint(os.Stderr, TableStatsHelp)
		os.Exit(1)
	}

	tables, err := recal.LoadTables(recalFile, recal.LoadOptions{
		PreserveQScoresLessThan: preserveQScores,
		RequireEOFMarker:        requireEOFMarker,
	})
	if err != nil {
		return err
	}
	tables.Finalize(smoothing, maxQuality)
	return tables.WriteStats(os.Stdout)
}
