package spill

import (
	"bufio"
	"os"

	"github.com/brimdata/extsort/pkg/fs"
	"go.uber.org/multierr"
)

// File is the append-only intermediate file that receives sorted runs.  It
// tracks its own length so the builder can record run boundaries without
// calling stat after every flush.
type File struct {
	file *os.File
	bw   *bufio.Writer
	size int64
}

func CreateFile(path string) (*File, error) {
	f, err := fs.Create(path)
	if err != nil {
		return nil, err
	}
	return &File{
		file: f,
		bw:   bufio.NewWriterSize(f, 1<<20),
	}, nil
}

func (f *File) Write(b []byte) (int, error) {
	n, err := f.bw.Write(b)
	f.size += int64(n)
	return n, err
}

// Flush writes buffered data to the file and returns the file's length.
func (f *File) Flush() (int64, error) {
	return f.size, f.bw.Flush()
}

func (f *File) Name() string {
	return f.file.Name()
}

func (f *File) Close() error {
	return multierr.Append(f.bw.Flush(), f.file.Close())
}

// CloseAndRemove closes and removes the underlying file.
func (f *File) CloseAndRemove() error {
	err := f.file.Close()
	if rmErr := os.Remove(f.file.Name()); err == nil {
		err = rmErr
	}
	return err
}
