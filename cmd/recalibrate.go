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
	"log"
	"os"
	"strings"

	"github.com/requalib/requal/fasta"
	"github.com/requalib/requal/recal"
	"github.com/requalib/requal/sam"
	"github.com/requalib/requal/utils"
)

// RecalibrateHelp shows the usage of the recalibrate command.
const RecalibrateHelp = "\nrequal recalibrate sam-file sam-output-file\n" +
	"--recal-file file\n" +
	"[--reference fasta-file]\n" +
	"[--preserve-qscores-less-than quality]\n" +
	"[--smoothing count]\n" +
	"[--max-quality-score quality]\n" +
	"[--no-original-quals]\n" +
	"[--skip-uq-update]\n" +
	"[--solid-recal-mode DO_NOTHING | SET_Q_ZERO | SET_Q_ZERO_BASE_N]\n" +
	"[--solid-nocall-strategy THROW_EXCEPTION | LEAVE_READ_UNRECALIBRATED | PURGE_READ]\n" +
	"[--require-eof-marker]\n" +
	"[--no-pg-record]\n" +
	"[--log-path path]\n" +
	"[--timed]\n" +
	"[--profile file]\n"

// Recalibrate implements the requal recalibrate command.
func Recalibrate() error {
	var (
		recalFile, reference  string
		solidRecalMode        string
		solidNoCallStrategy   string
		logPath, profile      string
		preserveQScores       int
		smoothing, maxQuality int
		noOriginalQuals       bool
		skipUQUpdate          bool
		requireEOFMarker      bool
		noPGRecord, timed     bool
	)
	var flags flag.FlagSet
	flags.StringVar(&recalFile, "recal-file", "", "the recalibration table produced by the first pass")
	flags.StringVar(&reference, "reference", "", "reference sequence in FASTA format, for updating the UQ and NM tags")
	flags.IntVar(&preserveQScores, "preserve-qscores-less-than", recal.DefaultPreserveQScoresLessThan, "bases with a lower original quality keep their original quality")
	flags.IntVar(&smoothing, "smoothing", recal.DefaultSmoothing, "count added to observations and mismatches when computing empirical qualities")
	flags.IntVar(&maxQuality, "max-quality-score", recal.DefaultMaxQualityScore, "the largest quality score that recalibration can assign")
	flags.BoolVar(&noOriginalQuals, "no-original-quals", false, "do not store original qualities in the OQ tag")
	flags.BoolVar(&skipUQUpdate, "skip-uq-update", false, "do not update the UQ tag")
	flags.StringVar(&solidRecalMode, "solid-recal-mode", "DO_NOTHING", "how to recalibrate bases that are inconsistent with their SOLiD color space information")
	flags.StringVar(&solidNoCallStrategy, "solid-nocall-strategy", "THROW_EXCEPTION", "what to do with SOLiD reads that have no calls in their color space information")
	flags.BoolVar(&requireEOFMarker, "require-eof-marker", false, "fail when the recalibration table lacks its trailing EOF marker")
	flags.BoolVar(&noPGRecord, "no-pg-record", false, "do not add a @PG line to the output header")
	flags.StringVar(&logPath, "log-path", "", "the directory for the log file")
	flags.BoolVar(&timed, "timed", false, "measure the runtime of each phase")
	flags.StringVar(&profile, "profile", "", "write a CPU profile per phase to the given file prefix")

	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, RecalibrateHelp)
		os.Exit(1)
	}
	input := getFilename(os.Args[2], RecalibrateHelp)
	output := getFilename(os.Args[3], RecalibrateHelp)
	parseFlags(flags, 4, RecalibrateHelp)

	setLogOutput(logPath)

	sanityChecksFailed := false
	if recalFile == "" {
		log.Println("The --recal-file parameter is required.")
		sanityChecksFailed = true
	} else if !checkExist("--recal-file", recalFile) {
		sanityChecksFailed = true
	}
	if !checkExist("", input) {
		sanityChecksFailed = true
	}
	if !checkCreate("", output) {
		sanityChecksFailed = true
	}
	if reference != "" && !checkExist("--reference", reference) {
		sanityChecksFailed = true
	}
	config := recal.DefaultConfig()
	config.PreserveQScoresLessThan = preserveQScores
	config.Smoothing = smoothing
	config.MaxQualityScore = maxQuality
	config.NoOriginalQuals = noOriginalQuals
	config.SkipUQUpdate = skipUQUpdate
	if mode, err := recal.ParseColorSpaceMode(solidRecalMode); err != nil {
		log.Println(err)
		sanityChecksFailed = true
	} else {
		config.ColorSpaceMode = mode
	}
	if strategy, err := recal.ParseNoCallStrategy(solidNoCallStrategy); err != nil {
		log.Println(err)
		sanityChecksFailed = true
	} else {
		config.NoCallStrategy = strategy
	}
	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, RecalibrateHelp)
		os.Exit(1)
	}

	var tables *recal.Tables
	var loadErr error
	timedRun(timed, profile, "Loading the recalibration table.", 1, func() {
		tables, loadErr = recal.LoadTables(recalFile, recal.LoadOptions{
			PreserveQScoresLessThan: preserveQScores,
			RequireEOFMarker:        requireEOFMarker,
		})
		if loadErr == nil {
			tables.Finalize(smoothing, maxQuality)
		}
	})
	if loadErr != nil {
		return loadErr
	}

	var referenceMap map[string][]byte
	if reference != "" {
		timedRun(timed, profile, "Loading the reference.", 2, func() {
			referenceMap = fasta.ParseFasta(reference)
		})
	}

	recalibrator := recal.NewRecalibrator(tables, config, referenceMap)
	var filters []sam.Filter
	if !noPGRecord {
		filters = append(filters, sam.AddProgramRecord(utils.StringMap{
			{Key: "ID", Value: utils.ProgramName},
			{Key: "PN", Value: utils.ProgramName},
			{Key: "VN", Value: utils.ProgramVersion},
			{Key: "CL", Value: strings.Join(os.Args, " ")},
		}))
	}
	filters = append(filters, recalibrator.Filter)

	in, err := sam.Open(input, reference)
	if err != nil {
		return err
	}
	out, err := sam.Create(output, reference)
	if err != nil {
		return err
	}
	var runErr error
	timedRun(timed, profile, "Recalibrating quality scores.", 3, func() {
		runErr = in.RunPipeline(out, filters)
	})
	if err := in.Close(); runErr == nil {
		runErr = err
	}
	if err := out.Close(); runErr == nil {
		runErr = err
	}
	recalibrator.LogSummary()
	return runErr
}
