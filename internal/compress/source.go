package compress

import (
	"io"

	"github.com/pkg/errors"
)

// defaultBlockSize is the size of one refill from the underlying file.
const defaultBlockSize = 16 * 1024

// source owns the underlying file and the input buffer shared by all decoder
// states. It counts every compressed byte consumed from the file; that count
// is the basis for the offset semantics of the sidecar index.
type source struct {
	f     io.ReadCloser
	block []byte
	start int // window is block[start:end]
	end   int
	raw   int64 // compressed bytes consumed from f
	eof   bool
}

func newSource(f io.ReadCloser, blockSize int) *source {
	if blockSize <= 0 {
		blockSize = defaultBlockSize
	}
	return &source{
		f:     f,
		block: make([]byte, blockSize),
	}
}

// fill reads one more block from the file, preserving the unconsumed window.
// Returns io.EOF when the file is exhausted and nothing was read.
func (s *source) fill() error {
	if s.eof {
		return io.EOF
	}
	if s.start > 0 {
		copy(s.block, s.block[s.start:s.end])
		s.end -= s.start
		s.start = 0
	}
	n, err := s.f.Read(s.block[s.end:])
	s.raw += int64(n)
	s.end += n
	if err == io.EOF {
		s.eof = true
		if n == 0 {
			return io.EOF
		}
		return nil
	}
	return errors.WithStack(err)
}

// peek ensures at least n bytes are buffered (or the file is exhausted) and
// returns the window without consuming it.
func (s *source) peek(n int) ([]byte, error) {
	for s.end-s.start < n {
		if err := s.fill(); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
	}
	return s.block[s.start:s.end], nil
}

func (s *source) window() []byte {
	return s.block[s.start:s.end]
}

func (s *source) discard(n int) {
	s.start += n
}

// position is the compressed-file offset of the next unconsumed byte.
func (s *source) position() int64 {
	return s.raw - int64(s.end-s.start)
}

// discardTo drops the window and reads the file forward until the given
// compressed offset (or end of file) is reached.
func (s *source) discardTo(target int64) error {
	s.start = 0
	s.end = 0
	for s.raw < target && !s.eof {
		limit := int64(len(s.block))
		if remain := target - s.raw; remain < limit {
			limit = remain
		}
		n, err := s.f.Read(s.block[:limit])
		s.raw += int64(n)
		if err == io.EOF {
			s.eof = true
			return nil
		}
		if err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

func (s *source) Read(p []byte) (int, error) {
	if s.start == s.end {
		if err := s.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, s.block[s.start:s.end])
	s.start += n
	return n, nil
}

// ReadByte makes source a flate.Reader so codec readers consume input exactly
// instead of wrapping it in their own bufio layer. Leftover bytes after a
// stream end therefore stay in the window for the successor decoder.
func (s *source) ReadByte() (byte, error) {
	if s.start == s.end {
		if err := s.fill(); err != nil {
			return 0, err
		}
	}
	b := s.block[s.start]
	s.start++
	return b, nil
}

func (s *source) Close() error {
	return s.f.Close()
}
