package compress

import (
	"bytes"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Compressor turns byte slices into standalone gzip members. Members written
// back to back form a valid multi-member gzip stream, so callers can compress
// records independently and concatenate the results.
//
// A Compressor reuses its internal buffer and deflate state; it is not safe
// for concurrent use, and the returned slice is only valid until the next
// call.
type Compressor struct {
	buf bytes.Buffer
	gw  *gzip.Writer
}

func NewCompressor() *Compressor {
	return &Compressor{}
}

func (c *Compressor) Compress(p []byte) ([]byte, error) {
	c.buf.Reset()
	if c.gw == nil {
		c.gw = gzip.NewWriter(&c.buf)
	} else {
		c.gw.Reset(&c.buf)
	}
	if _, err := c.gw.Write(p); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := c.gw.Close(); err != nil {
		return nil, errors.WithStack(err)
	}
	return c.buf.Bytes(), nil
}
