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
	"log"

	"github.com/google/uuid"

	"github.com/requalib/requal/utils"
)

func pgIDExists(hdr *Header, id string) bool {
	return utils.Find(hdr.PG, func(pg utils.StringMap) bool {
		existing, _ := pg.Find("ID")
		return existing == id
	}) >= 0
}

// AddProgramRecord returns a filter that adds an @PG line to the
// header, chained to the last program record already present. When the
// ID is already taken, for example because the file has gone through
// this program before, a random suffix makes it unique.
func AddProgramRecord(record utils.StringMap) Filter {
	return func(hdr *Header) AlignmentFilter {
		id, found := record.Find("ID")
		if !found {
			log.Panic("a program record needs an ID field")
		}
		base := id
		for pgIDExists(hdr, id) {
			id = base + "-" + uuid.New().String()
			record.Set("ID", id)
		}
		if len(hdr.PG) > 0 {
			if previous, found := hdr.PG[len(hdr.PG)-1].Find("ID"); found {
				record.SetUniqueEntry("PP", previous)
			}
		}
		hdr.PG = append(hdr.PG, record)
		return nil
	}
}
