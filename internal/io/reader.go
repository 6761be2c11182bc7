package io

import (
	"bufio"
	"io"
)

type BufferReader struct {
	*bufio.Reader
}

// NewBufferReader creates a new buffered reader.
func NewBufferReader(r io.Reader) *BufferReader {
	return &BufferReader{
		Reader: bufio.NewReaderSize(r, 32*1024),
	}
}

// Close do nothing
func (b *BufferReader) Close() error {
	return nil
}

// LineReader yields lines without their terminator. Lines of any length are
// supported; the returned slice is owned by the caller.
type LineReader struct {
	r *bufio.Reader
}

func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{
		r: bufio.NewReaderSize(r, 32*1024),
	}
}

// ReadLine returns the next line, or io.EOF when the input is exhausted. A
// final line without a newline is still returned; io.EOF follows on the next
// call.
func (l *LineReader) ReadLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := l.r.ReadSlice('\n')
		line = append(line, chunk...)
		if err == bufio.ErrBufferFull {
			continue
		}
		if err == io.EOF {
			if len(line) == 0 {
				return nil, io.EOF
			}
			return line, nil
		}
		if err != nil {
			return nil, err
		}
		return line[:len(line)-1], nil
	}
}
