package sortmerge

import (
	"io"
	"os"

	"github.com/klauspost/readahead"
	"github.com/pkg/errors"

	"github.com/goto/corpus-preprocess/internal/compress"
	xio "github.com/goto/corpus-preprocess/internal/io"
)

// cursor is the read head over one pre-sorted input: the current raw line and
// its parsed key.
type cursor struct {
	name   string
	src    io.Closer
	lr     *xio.LineReader
	line   []byte
	fields []Field
	n      int
	eof    bool
}

// advance reads and parses the next line. Parse failures are fatal and carry
// the file name and line number.
func (c *cursor) advance(parser *LineParser) error {
	line, err := c.lr.ReadLine()
	if err == io.EOF {
		c.eof = true
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "reading %s", c.name)
	}
	c.n++
	c.line = line
	if c.fields, err = parser.Parse(line, c.fields); err != nil {
		return errors.Wrapf(err, "parse error on line %d of %s", c.n, c.name)
	}
	return nil
}

// Merger produces one sorted stream from inputs that are already sorted
// under the same key specification.
type Merger struct {
	parser  LineParser
	cursors []*cursor
}

func NewMerger(parser LineParser) *Merger {
	return &Merger{parser: parser}
}

// AddFile opens an input file behind an asynchronous read-ahead buffer and a
// decompressing reader, so compressed inputs work transparently.
func (m *Merger) AddFile(name string) error {
	f, err := os.Open(name)
	if err != nil {
		return errors.WithStack(err)
	}
	ra, err := readahead.NewReaderSize(f, 4, readahead.DefaultBufferSize)
	if err != nil {
		f.Close()
		return errors.WithStack(err)
	}
	cr := compress.NewReader(&fileSource{ra: ra, f: f})
	return m.Add(name, cr, cr)
}

// Add registers an already-open input and primes its first line.
func (m *Merger) Add(name string, r io.Reader, closer io.Closer) error {
	c := &cursor{
		name: name,
		src:  closer,
		lr:   xio.NewLineReader(r),
	}
	if err := c.advance(&m.parser); err != nil {
		return err
	}
	m.cursors = append(m.cursors, c)
	return nil
}

// Run emits the merged stream: at every step the minimum of the current
// heads, ties broken by input order, raw lines passed through untouched.
func (m *Merger) Run(out io.Writer) error {
	bw := xio.NewBufferedWriter(out)
	for {
		var best *cursor
		for _, c := range m.cursors {
			if c.eof {
				continue
			}
			if best == nil || Compare(best.fields, c.fields) > 0 {
				best = c
			}
		}
		if best == nil {
			break
		}
		if _, err := bw.Write(append(best.line, '\n')); err != nil {
			return errors.WithStack(err)
		}
		if err := best.advance(&m.parser); err != nil {
			return err
		}
	}
	return errors.WithStack(bw.Flush())
}

// Close closes every input.
func (m *Merger) Close() error {
	var e error
	for _, c := range m.cursors {
		if c.src == nil {
			continue
		}
		if err := c.src.Close(); err != nil && e == nil {
			e = err
		}
	}
	return e
}

// fileSource closes both the read-ahead buffer and the file behind it.
type fileSource struct {
	ra io.ReadCloser
	f  *os.File
}

func (s *fileSource) Read(p []byte) (int, error) {
	return s.ra.Read(p)
}

func (s *fileSource) Close() error {
	err := s.ra.Close()
	if ferr := s.f.Close(); err == nil {
		err = ferr
	}
	return err
}
