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

package utils

// SmallMapEntry is a key/value pair in a SmallMap.
type SmallMapEntry struct {
	Key   Symbol
	Value interface{}
}

// SmallMap is an association list. For the small numbers of optional
// fields that occur in practice in SAM records, scanning a slice is
// faster than hashing.
type SmallMap []SmallMapEntry

// Get returns the value for the given key, and whether it is present.
func (m SmallMap) Get(key Symbol) (interface{}, bool) {
	for _, entry := range m {
		if entry.Key == key {
			return entry.Value, true
		}
	}
	return nil, false
}

// Set adds or overwrites the value for the given key.
func (m *SmallMap) Set(key Symbol, value interface{}) {
	for index := range *m {
		if (*m)[index].Key == key {
			(*m)[index].Value = value
			return
		}
	}
	*m = append(*m, SmallMapEntry{key, value})
}

// StringMapEntry is a key/value pair in a StringMap.
type StringMapEntry struct {
	Key, Value string
}

// StringMap is an association list that maps tag names to values in
// SAM header records. A slice keeps the tags in the order in which
// they occur in the file, so that headers round-trip unchanged.
type StringMap []StringMapEntry

// Find returns the value for the given key, and whether it is present.
func (record StringMap) Find(key string) (string, bool) {
	for _, entry := range record {
		if entry.Key == key {
			return entry.Value, true
		}
	}
	return "", false
}

// Set overwrites the value for the given key and reports whether the
// key was present.
func (record StringMap) Set(key, value string) bool {
	for index := range record {
		if record[index].Key == key {
			record[index].Value = value
			return true
		}
	}
	return false
}

// SetUniqueEntry adds the key/value pair to the record unless the key
// is already present.
func (record *StringMap) SetUniqueEntry(key, value string) bool {
	if _, found := record.Find(key); found {
		return false
	}
	*record = append(*record, StringMapEntry{key, value})
	return true
}

// Find returns the index of the first record satisfying the predicate,
// or -1.
func Find(dict []StringMap, predicate func(record StringMap) bool) int {
	for index, record := range dict {
		if predicate(record) {
			return index
		}
	}
	return -1
}
