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

// reQual is the second pass of a two-pass base quality recalibration
// pipeline. It consumes the covariate table produced by the first pass
// and rewrites the quality scores of every read in a SAM/BAM file.
//
// Please see https://github.com/requalib/requal for a documentation of
// the tool.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/requalib/requal/cmd"
)

func printHelp() {
	fmt.Fprintln(os.Stderr, "Available commands: recalibrate, table-stats")
	fmt.Fprint(os.Stderr, "\n", cmd.RecalibrateHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.TableStatsHelp)
}

func main() {
	fmt.Fprintln(os.Stderr, cmd.ProgramMessage)
	if len(os.Args) < 2 {
		log.Println("Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, cmd.HelpMessage)
		printHelp()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "recalibrate":
		err = cmd.Recalibrate()
	case "table-stats":
		err = cmd.TableStats()
	case "help", "-help", "--help", "-h", "--h":
		printHelp()
	default:
		log.Println("Unknown command:", os.Args[1])
		fmt.Fprint(os.Stderr, cmd.HelpMessage)
		printHelp()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}
