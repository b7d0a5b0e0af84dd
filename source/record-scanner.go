package source

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// maxRecordBytes caps one logical record. Longer records are truncated and reported as malformed.
const maxRecordBytes = 1024 * 1024

type physicalLine struct {
	text    string
	tooLong bool
}

// record is one logical CSV record. Quoted fields may carry it over several physical lines.
type record struct {
	text         string
	tooLong      bool // the line was cut at maxRecordBytes
	unterminated bool // an open quote never closed into a valid record, so only the first line is kept
}

// recordScanner splits a CSV stream into logical records.
// Lines read ahead for a record that turns out to be broken are pushed back and scanned again,
// so a bad quote costs one row and the row numbers after it do not move.
type recordScanner struct {
	r       *bufio.Reader
	pending []physicalLine
}

func newRecordScanner(r io.Reader) *recordScanner {
	return &recordScanner{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next record or io.EOF.
// accept, when set, decides whether a record that spans lines is complete. A rejected record
// is cut back to its first line.
func (s *recordScanner) Next(accept func(text string) bool) (record, error) {
	first, err := s.nextLine()
	if err != nil {
		return record{}, err
	}
	if first.tooLong {
		return record{text: first.text, tooLong: true}, nil
	}
	q := quoteState{fieldStart: true}
	q.feed(first.text)
	if !q.open {
		return record{text: first.text}, nil
	}
	lines := []physicalLine{first}
	size := len(first.text)
	for q.open { // while a quoted field runs on to the next line...
		l, err := s.nextLine()
		if err != nil && err != io.EOF {
			return record{}, err
		}
		if err == io.EOF || l.tooLong || size+1+len(l.text) > maxRecordBytes {
			if err == nil {
				lines = append(lines, l)
			}
			return s.cutBack(lines), nil
		}
		lines = append(lines, l)
		size += 1 + len(l.text)
		q.feed("\n")
		q.feed(l.text)
	}
	text := joinLines(lines)
	if accept != nil && !accept(text) {
		return s.cutBack(lines), nil
	}
	return record{text: text}, nil
}

// cutBack keeps the first line as an unterminated record and pushes the rest back.
func (s *recordScanner) cutBack(lines []physicalLine) record {
	rest := make([]physicalLine, 0, len(lines)-1+len(s.pending))
	rest = append(rest, lines[1:]...)
	s.pending = append(rest, s.pending...)
	return record{text: lines[0].text, unterminated: true}
}

func (s *recordScanner) nextLine() (physicalLine, error) {
	if len(s.pending) > 0 {
		l := s.pending[0]
		s.pending = s.pending[1:]
		return l, nil
	}
	return s.readLine()
}

// readLine reads up to the next newline without holding more than maxRecordBytes of it.
func (s *recordScanner) readLine() (physicalLine, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, err := s.r.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(chunk) > maxRecordBytes {
				buf = append(buf, chunk[:maxRecordBytes-len(buf)]...)
				tooLong = true
			} else {
				buf = append(buf, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil && err != io.EOF {
			return physicalLine{}, err
		}
		if err == io.EOF && len(buf) == 0 {
			return physicalLine{}, io.EOF
		}
		if !tooLong {
			buf = bytes.TrimSuffix(buf, []byte("\n"))
			buf = bytes.TrimSuffix(buf, []byte("\r"))
		}
		return physicalLine{text: decodeLine(string(buf)), tooLong: tooLong}, nil
	}
}

func joinLines(lines []physicalLine) string {
	s := make([]string, len(lines))
	for i, l := range lines {
		s[i] = l.text
	}
	return strings.Join(s, "\n")
}

// quoteState tracks whether a record is inside a quoted field.
// A quote only opens a field when it is the field's first character, as encoding/csv expects.
type quoteState struct {
	open       bool
	fieldStart bool
}

func (q *quoteState) feed(s string) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if q.open {
			if c == '"' {
				if i+1 < len(s) && s[i+1] == '"' { // escaped quote...
					i++
					continue
				}
				q.open = false
			}
			continue
		}
		if c == '"' && q.fieldStart {
			q.open = true
			q.fieldStart = false
			continue
		}
		q.fieldStart = c == ','
	}
}
