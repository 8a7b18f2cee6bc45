// Package peeker provides a reader that exposes a window of upcoming bytes
// and lets the caller consume only a prefix of it.  Bytes that are peeked
// but not consumed are presented again at the start of the next window.
package peeker

import (
	"errors"
	"io"
)

type Reader struct {
	io.Reader
	limit  int
	buffer []byte
	cursor []byte
	eof    bool
	// consumed counts the bytes handed out by Read.
	consumed int64
}

var (
	ErrBufferOverflow = errors.New("buffer too big")
	ErrTruncated      = errors.New("truncated input")
)

// NewReader returns a Reader with a fresh buffer of length size that may
// grow up to max.
func NewReader(reader io.Reader, size, max int) *Reader {
	return NewReaderWithBuffer(reader, make([]byte, size), max)
}

// NewReaderWithBuffer is like NewReader but uses buf, typically leased from
// a pool, as the initial buffer.  The Reader stops using buf if a Peek
// larger than cap(buf) forces it to grow.
func NewReaderWithBuffer(reader io.Reader, buf []byte, max int) *Reader {
	if max < cap(buf) {
		max = cap(buf)
	}
	return &Reader{
		Reader: reader,
		limit:  max,
		buffer: buf,
		cursor: buf[:0],
	}
}

func (r *Reader) fill(min int) error {
	if min > r.limit {
		return ErrBufferOverflow
	}
	if min > cap(r.buffer) {
		r.buffer = make([]byte, min)
	}
	r.buffer = r.buffer[:cap(r.buffer)]
	clen := copy(r.buffer, r.cursor)
	for clen < len(r.buffer) {
		cc, err := r.Reader.Read(r.buffer[clen:])
		clen += cc
		if err != nil {
			if err == io.EOF {
				r.eof = true
				break
			}
			return err
		}
	}
	r.buffer = r.buffer[:clen]
	r.cursor = r.buffer
	return nil
}

// Peek returns the next n bytes without consuming them.  At end of input it
// returns the remaining bytes and ErrTruncated, or io.EOF if none remain.
// The returned slice is valid only until the next call to Peek or Read.
func (r *Reader) Peek(n int) ([]byte, error) {
	if len(r.cursor) == 0 && r.eof {
		return nil, io.EOF
	}
	if n > len(r.cursor) && !r.eof {
		if err := r.fill(n); err != nil {
			return nil, err
		}
	}
	if n > len(r.cursor) {
		if len(r.cursor) == 0 {
			return nil, io.EOF
		}
		return r.cursor, ErrTruncated
	}
	return r.cursor[:n], nil
}

// Read consumes and returns the next n bytes.
func (r *Reader) Read(n int) ([]byte, error) {
	b, err := r.Peek(n)
	if err != nil {
		return nil, err
	}
	r.cursor = r.cursor[n:]
	r.consumed += int64(n)
	return b, nil
}

// Consumed returns the number of bytes consumed by Read so far, which is
// the input offset of the next window.
func (r *Reader) Consumed() int64 {
	return r.consumed
}

func (r *Reader) Limit() int {
	return r.limit
}
