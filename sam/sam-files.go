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
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/requalib/requal/utils"
)

// Hex is the value of an optional field of type H, kept in its text
// form.
type Hex string

// Array is the value of an optional field of type B, kept in its text
// form so that it round-trips unchanged.
type Array string

const qualityBase = 33

// PhredToFastq encodes raw phred quality scores in the ASCII form used
// by the QUAL field and the OQ optional field.
func PhredToFastq(quals []byte) string {
	encoded := make([]byte, len(quals))
	for i, qual := range quals {
		encoded[i] = qual + qualityBase
	}
	return string(encoded)
}

func parseHeaderLineField(field string) (tag, value string) {
	split := strings.SplitN(field, ":", 2)
	if len(split) != 2 {
		log.Panic("invalid field ", field, " in a SAM header line")
	}
	return split[0], split[1]
}

func parseHeaderLine(hdr *Header, line string) {
	if len(line) < 3 || line[0] != '@' {
		log.Panic("invalid SAM header line ", line)
	}
	code := line[:3]
	if code == "@CO" {
		if len(line) > 4 {
			hdr.CO = append(hdr.CO, line[4:])
		} else {
			hdr.CO = append(hdr.CO, "")
		}
		return
	}
	var record utils.StringMap
	for _, field := range strings.Split(line[4:], "\t") {
		tag, value := parseHeaderLineField(field)
		if !record.SetUniqueEntry(tag, value) {
			log.Panic("duplicate field tag ", tag, " in SAM header line ", line)
		}
	}
	switch code {
	case "@HD":
		if hdr.HD != nil {
			log.Panic("duplicate @HD line in a SAM header")
		}
		hdr.HD = record
	case "@SQ":
		hdr.SQ = append(hdr.SQ, record)
	case "@RG":
		hdr.RG = append(hdr.RG, record)
	case "@PG":
		hdr.PG = append(hdr.PG, record)
	default:
		hdr.AddUserRecord(code, record)
	}
}

func formatHeaderRecord(buf []byte, code string, record utils.StringMap) []byte {
	buf = append(buf, code...)
	for _, entry := range record {
		buf = append(buf, '\t')
		buf = append(buf, entry.Key...)
		buf = append(buf, ':')
		buf = append(buf, entry.Value...)
	}
	return append(buf, '\n')
}

// Format writes the header section in its SAM text representation.
func (hdr *Header) Format(buf []byte) []byte {
	if hdr.HD != nil {
		buf = formatHeaderRecord(buf, "@HD", hdr.HD)
	}
	for _, record := range hdr.SQ {
		buf = formatHeaderRecord(buf, "@SQ", record)
	}
	for _, record := range hdr.RG {
		buf = formatHeaderRecord(buf, "@RG", record)
	}
	for _, record := range hdr.PG {
		buf = formatHeaderRecord(buf, "@PG", record)
	}
	for code, records := range hdr.EnsureUserRecords() {
		for _, record := range records {
			buf = formatHeaderRecord(buf, code, record)
		}
	}
	for _, co := range hdr.CO {
		buf = append(buf, "@CO\t"...)
		buf = append(buf, co...)
		buf = append(buf, '\n')
	}
	return buf
}

func (sc *StringScanner) readOptionalField() (utils.Symbol, interface{}) {
	if sc.Len() < 5 {
		log.Panic("truncated optional field in ", sc.data)
	}
	tag := utils.Intern(sc.data[sc.index : sc.index+2])
	sc.index += 2
	sc.expectByte(':')
	typeByte := sc.data[sc.index]
	sc.index++
	sc.expectByte(':')
	switch typeByte {
	case 'A':
		value := sc.data[sc.index]
		sc.index++
		if sc.Len() > 0 {
			sc.expectByte('\t')
		}
		return tag, value
	case 'c', 'C', 's', 'S', 'i', 'I':
		return tag, sc.ReadInt()
	case 'f':
		return tag, sc.ReadFloat()
	case 'Z':
		return tag, sc.ReadString()
	case 'H':
		return tag, Hex(sc.readUntilByte('\t'))
	case 'B':
		return tag, Array(sc.readUntilByte('\t'))
	default:
		log.Panic("invalid optional field type ", string(typeByte), " in ", sc.data)
		return nil, nil
	}
}

// ParseAlignment parses a SAM alignment line. It panics when the line
// is malformed.
func ParseAlignment(line string) *Alignment {
	var sc StringScanner
	sc.Reset(line)
	aln := &Alignment{
		QNAME: sc.ReadString(),
		FLAG:  uint16(sc.ReadInt()),
		RNAME: sc.ReadString(),
		POS:   int32(sc.ReadInt()),
		MAPQ:  byte(sc.ReadInt()),
		CIGAR: sc.ReadString(),
		RNEXT: sc.ReadString(),
		PNEXT: int32(sc.ReadInt()),
		TLEN:  int32(sc.ReadInt()),
		SEQ:   sc.ReadByteArray(),
	}
	qual := sc.ReadByteArray()
	if len(qual) != 1 || qual[0] != '*' {
		for i := range qual {
			qual[i] -= qualityBase
		}
		aln.QUAL = qual
	}
	for sc.Len() > 0 {
		tag, value := sc.readOptionalField()
		aln.TAGS = append(aln.TAGS, utils.SmallMapEntry{Key: tag, Value: value})
	}
	return aln
}

func formatOptionalField(buf []byte, tag utils.Symbol, value interface{}) []byte {
	buf = append(buf, '\t')
	buf = append(buf, *tag...)
	switch v := value.(type) {
	case byte:
		buf = append(buf, ":A:"...)
		buf = append(buf, v)
	case int64:
		buf = append(buf, ":i:"...)
		buf = strconv.AppendInt(buf, v, 10)
	case float64:
		buf = append(buf, ":f:"...)
		buf = strconv.AppendFloat(buf, v, 'g', -1, 64)
	case string:
		buf = append(buf, ":Z:"...)
		buf = append(buf, v...)
	case Hex:
		buf = append(buf, ":H:"...)
		buf = append(buf, v...)
	case Array:
		buf = append(buf, ":B:"...)
		buf = append(buf, v...)
	default:
		log.Panicf("unknown optional field value %v for tag %v", value, *tag)
	}
	return buf
}

// Format writes the alignment in its SAM text representation,
// including the trailing newline.
func (aln *Alignment) Format(buf []byte) []byte {
	buf = append(buf, aln.QNAME...)
	buf = append(buf, '\t')
	buf = strconv.AppendInt(buf, int64(aln.FLAG), 10)
	buf = append(buf, '\t')
	buf = append(buf, aln.RNAME...)
	buf = append(buf, '\t')
	buf = strconv.AppendInt(buf, int64(aln.POS), 10)
	buf = append(buf, '\t')
	buf = strconv.AppendInt(buf, int64(aln.MAPQ), 10)
	buf = append(buf, '\t')
	buf = append(buf, aln.CIGAR...)
	buf = append(buf, '\t')
	buf = append(buf, aln.RNEXT...)
	buf = append(buf, '\t')
	buf = strconv.AppendInt(buf, int64(aln.PNEXT), 10)
	buf = append(buf, '\t')
	buf = strconv.AppendInt(buf, int64(aln.TLEN), 10)
	buf = append(buf, '\t')
	buf = append(buf, aln.SEQ...)
	buf = append(buf, '\t')
	if len(aln.QUAL) == 0 {
		buf = append(buf, '*')
	} else {
		for _, qual := range aln.QUAL {
			buf = append(buf, qual+qualityBase)
		}
	}
	for _, entry := range aln.TAGS {
		buf = formatOptionalField(buf, entry.Key, entry.Value)
	}
	return append(buf, '\n')
}

// InputFile represents a SAM, BAM, or CRAM file opened for reading.
// BAM and CRAM files are converted on the fly by an external samtools
// process.
type InputFile struct {
	rc     io.ReadCloser
	reader *bufio.Reader
	cmd    *exec.Cmd
	batch  []string
	err    error
}

// OutputFile represents a SAM, BAM, or CRAM file opened for writing.
type OutputFile struct {
	wc     io.WriteCloser
	writer *bufio.Writer
	cmd    *exec.Cmd
}

// Open opens a SAM, BAM, or CRAM file for reading. The file format is
// determined by its filename extension. Use /dev/stdin to read from
// standard input. fastaFile optionally names the reference needed for
// decoding CRAM files.
func Open(name, fastaFile string) (*InputFile, error) {
	switch filepath.Ext(name) {
	case ".bam", ".cram":
		args := []string{"view", "-h"}
		if fastaFile != "" {
			args = append(args, "-T", fastaFile)
		}
		args = append(args, name)
		cmd := exec.Command("samtools", args...)
		cmd.Stderr = os.Stderr
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("%v, while starting samtools for reading %v", err, name)
		}
		return &InputFile{rc: stdout, reader: bufio.NewReader(stdout), cmd: cmd}, nil
	default:
		file, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		return &InputFile{rc: file, reader: bufio.NewReader(file)}, nil
	}
}

// Close waits for a potential external conversion process to finish
// and closes the underlying stream.
func (f *InputFile) Close() error {
	if f.cmd != nil {
		return f.cmd.Wait()
	}
	return f.rc.Close()
}

// ParseHeader parses the header section at the current position in the
// file, leaving the reader at the first alignment line.
func (f *InputFile) ParseHeader() *Header {
	hdr := NewHeader()
	for {
		first, err := f.reader.Peek(1)
		if err == io.EOF {
			break
		} else if err != nil {
			log.Panic(err, ", while parsing a SAM header")
		}
		if first[0] != '@' {
			break
		}
		line, err := f.reader.ReadString('\n')
		if err != nil && err != io.EOF {
			log.Panic(err, ", while parsing a SAM header")
		}
		parseHeaderLine(hdr, strings.TrimRight(line, "\r\n"))
	}
	return hdr
}

func (f *InputFile) readLine() (string, error) {
	for {
		line, err := f.reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if err != nil {
			if err == io.EOF && line != "" {
				return line, nil
			}
			return "", err
		}
		if line != "" {
			return line, nil
		}
	}
}

// ReadAlignment reads and parses the next alignment line. It returns
// io.EOF at the end of the file.
func (f *InputFile) ReadAlignment() (*Alignment, error) {
	line, err := f.readLine()
	if err != nil {
		return nil, err
	}
	return ParseAlignment(line), nil
}

// Err implements the Err method of pipeline.Source.
func (f *InputFile) Err() error {
	return f.err
}

// Prepare implements the Prepare method of pipeline.Source. The number
// of alignments in the file is not known in advance.
func (f *InputFile) Prepare(_ context.Context) int {
	return -1
}

// Fetch implements the Fetch method of pipeline.Source. It fetches a
// batch of up to size alignment lines.
func (f *InputFile) Fetch(size int) int {
	batch := make([]string, 0, size)
	for len(batch) < size {
		line, err := f.readLine()
		if err != nil {
			if err != io.EOF {
				f.err = err
			}
			break
		}
		batch = append(batch, line)
	}
	f.batch = batch
	return len(batch)
}

// Data implements the Data method of pipeline.Source.
func (f *InputFile) Data() interface{} {
	return f.batch
}

// Create opens a SAM, BAM, or CRAM file for writing. The file format
// is determined by its filename extension. Use /dev/stdout to write to
// standard output. fastaFile optionally names the reference needed for
// encoding CRAM files.
func Create(name, fastaFile string) (*OutputFile, error) {
	var conversion string
	switch filepath.Ext(name) {
	case ".bam":
		conversion = "-b"
	case ".cram":
		conversion = "-C"
	default:
		file, err := os.Create(name)
		if err != nil {
			return nil, err
		}
		return &OutputFile{wc: file, writer: bufio.NewWriter(file)}, nil
	}
	args := []string{"view", "-h", conversion}
	if fastaFile != "" {
		args = append(args, "-T", fastaFile)
	}
	args = append(args, "-o", name, "-")
	cmd := exec.Command("samtools", args...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%v, while starting samtools for writing %v", err, name)
	}
	return &OutputFile{wc: stdin, writer: bufio.NewWriter(stdin), cmd: cmd}, nil
}

// FormatHeader writes the header section to the output file.
func (f *OutputFile) FormatHeader(hdr *Header) error {
	_, err := f.writer.Write(hdr.Format(nil))
	return err
}

// Write writes raw bytes to the output file.
func (f *OutputFile) Write(p []byte) (int, error) {
	return f.writer.Write(p)
}

// Close flushes pending output, waits for a potential external
// conversion process to finish, and closes the underlying stream.
func (f *OutputFile) Close() error {
	if err := f.writer.Flush(); err != nil {
		return err
	}
	if f.cmd != nil {
		if err := f.wc.Close(); err != nil {
			return err
		}
		return f.cmd.Wait()
	}
	return f.wc.Close()
}
