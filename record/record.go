// Package record implements the line format sorted by extsort:
//
//	<int64>. <text><terminator>
//
// Records are ordered solely by their integer key.
package record

import (
	"bytes"
	"strconv"

	"github.com/brimdata/extsort/sorterr"
)

// Record is one decoded line.  It is immutable once constructed.
type Record struct {
	Key  int64
	Text string
}

// padding is the width of ". " between the key and the text.
const padding = 2

var (
	// CRLF is the default codec and matches files written on Windows.
	CRLF = Codec{Separator: '.', Terminator: []byte("\r\n")}
	LF   = Codec{Separator: '.', Terminator: []byte("\n")}
)

// Codec encodes and decodes records.  The terminator width enters every
// offset computation made by the builder and the run readers so it is carried
// here rather than assumed.
type Codec struct {
	Separator  byte
	Terminator []byte
}

// CodecFor returns the codec for an end-of-line name, "crlf" or "lf".
func CodecFor(eol string) (Codec, error) {
	switch eol {
	case "crlf", "CRLF", "":
		return CRLF, nil
	case "lf", "LF":
		return LF, nil
	}
	return Codec{}, sorterr.E(sorterr.Invalid, "unknown line terminator %q (values: crlf, lf)", eol)
}

// EOL returns the name of c's terminator.
func (c Codec) EOL() string {
	if bytes.Equal(c.Terminator, LF.Terminator) {
		return "lf"
	}
	return "crlf"
}

// DecodeKey splits line, which must not include its terminator, into its key
// and text without copying.  The boolean result is false for lines that are
// empty or have no separator; such lines are skipped rather than treated as
// errors.
func (c Codec) DecodeKey(line []byte) (int64, []byte, bool, error) {
	if len(line) == 0 {
		return 0, nil, false, nil
	}
	sep := bytes.LastIndexByte(line, c.Separator)
	if sep < 0 {
		return 0, nil, false, nil
	}
	digits := bytes.TrimRight(line[:sep], " ")
	key, err := strconv.ParseInt(string(digits), 10, 64)
	if err != nil {
		return 0, nil, false, sorterr.E(sorterr.MalformedKey, "%q", line)
	}
	var text []byte
	if off := sep + padding; off <= len(line) {
		text = line[off:]
	}
	return key, text, true, nil
}

// Decode is like DecodeKey but returns a Record that owns a copy of the text.
func (c Codec) Decode(line []byte) (Record, bool, error) {
	key, text, ok, err := c.DecodeKey(line)
	if !ok || err != nil {
		return Record{}, ok, err
	}
	return Record{Key: key, Text: string(text)}, true, nil
}

// Append appends the encoding of key and text, including the terminator,
// to dst.
func (c Codec) Append(dst []byte, key int64, text []byte) []byte {
	dst = strconv.AppendInt(dst, key, 10)
	dst = append(dst, c.Separator, ' ')
	dst = append(dst, text...)
	return append(dst, c.Terminator...)
}

func (c Codec) AppendRecord(dst []byte, r Record) []byte {
	dst = strconv.AppendInt(dst, r.Key, 10)
	dst = append(dst, c.Separator, ' ')
	dst = append(dst, r.Text...)
	return append(dst, c.Terminator...)
}

func (c Codec) Encode(r Record) []byte {
	return c.AppendRecord(nil, r)
}

// LastTerminator returns the offset just past the last terminator in buf or
// -1 if buf holds no complete line.
func (c Codec) LastTerminator(buf []byte) int {
	off := bytes.LastIndex(buf, c.Terminator)
	if off < 0 {
		return -1
	}
	return off + len(c.Terminator)
}

// Lines calls fn for each terminated line in buf with the line, minus its
// terminator, and the offset in buf just past that terminator.  Bytes after
// the last terminator are ignored.  Iteration stops when fn returns false.
func (c Codec) Lines(buf []byte, fn func(line []byte, end int) bool) {
	var off int
	for {
		n := bytes.Index(buf[off:], c.Terminator)
		if n < 0 {
			return
		}
		end := off + n + len(c.Terminator)
		if !fn(buf[off:off+n], end) {
			return
		}
		off = end
	}
}
