package record_test

import (
	"math"
	"strconv"
	"testing"

	"github.com/brimdata/extsort/record"
	"github.com/brimdata/extsort/sorterr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		line string
		rec  record.Record
		ok   bool
	}{
		{"5. fox", record.Record{Key: 5, Text: "fox"}, true},
		{"-12. ice cream", record.Record{Key: -12, Text: "ice cream"}, true},
		{"42 . spaced", record.Record{Key: 42, Text: "spaced"}, true},
		{"7.", record.Record{Key: 7}, true},
		{"7. ", record.Record{Key: 7}, true},
		{strconv.FormatInt(math.MinInt64, 10) + ". min", record.Record{Key: math.MinInt64, Text: "min"}, true},
		{strconv.FormatInt(math.MaxInt64, 10) + ". max", record.Record{Key: math.MaxInt64, Text: "max"}, true},
		{"", record.Record{}, false},
		{"no separator here", record.Record{}, false},
	}
	for _, c := range cases {
		t.Run(c.line, func(t *testing.T) {
			rec, ok, err := record.CRLF.Decode([]byte(c.line))
			require.NoError(t, err)
			assert.Equal(t, c.ok, ok)
			assert.Equal(t, c.rec, rec)
		})
	}
}

func TestDecodeUsesLastSeparator(t *testing.T) {
	_, _, _, err := record.CRLF.DecodeKey([]byte("1. a.b"))
	require.Error(t, err)
	assert.True(t, sorterr.IsKind(err, sorterr.MalformedKey))
}

func TestDecodeMalformedKey(t *testing.T) {
	for _, line := range []string{"abc. text", ". text", "99999999999999999999. overflow"} {
		_, _, err := record.CRLF.Decode([]byte(line))
		require.Error(t, err, line)
		assert.True(t, sorterr.IsKind(err, sorterr.MalformedKey), line)
	}
}

func TestEncode(t *testing.T) {
	r := record.Record{Key: -3, Text: "cherry"}
	assert.Equal(t, "-3. cherry\r\n", string(record.CRLF.Encode(r)))
	assert.Equal(t, "-3. cherry\n", string(record.LF.Encode(r)))
	assert.Equal(t, "9. x\n", string(record.LF.Append(nil, 9, []byte("x"))))

	line := record.CRLF.Encode(r)
	back, ok, err := record.CRLF.Decode(line[:len(line)-2])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, r, back)
}

func TestLines(t *testing.T) {
	buf := []byte("1. a\r\n\r\n2. b\r\npartial")
	var lines []string
	var ends []int
	record.CRLF.Lines(buf, func(line []byte, end int) bool {
		lines = append(lines, string(line))
		ends = append(ends, end)
		return true
	})
	assert.Equal(t, []string{"1. a", "", "2. b"}, lines)
	assert.Equal(t, []int{6, 8, 14}, ends)
	assert.Equal(t, 14, record.CRLF.LastTerminator(buf))
	assert.Equal(t, -1, record.CRLF.LastTerminator([]byte("partial")))
}

func TestLinesStop(t *testing.T) {
	var n int
	record.LF.Lines([]byte("1. a\n2. b\n3. c\n"), func([]byte, int) bool {
		n++
		return n < 2
	})
	assert.Equal(t, 2, n)
}

func TestCodecFor(t *testing.T) {
	c, err := record.CodecFor("lf")
	require.NoError(t, err)
	assert.Equal(t, "lf", c.EOL())
	c, err = record.CodecFor("")
	require.NoError(t, err)
	assert.Equal(t, "crlf", c.EOL())
	_, err = record.CodecFor("cr")
	assert.True(t, sorterr.IsKind(err, sorterr.Invalid))
}
