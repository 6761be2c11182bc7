package compress

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write(data)
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func bzip2Bytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	bw, err := bzip2.NewWriter(&buf, nil)
	require.NoError(t, err)
	_, err = bw.Write(data)
	require.NoError(t, err)
	require.NoError(t, bw.Close())
	return buf.Bytes()
}

func xzBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	_, err = xw.Write(data)
	require.NoError(t, err)
	require.NoError(t, xw.Close())
	return buf.Bytes()
}

func readAll(t *testing.T, raw []byte, opts ...ReaderOption) ([]byte, *Reader) {
	t.Helper()
	r := NewReader(io.NopCloser(bytes.NewReader(raw)), opts...)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return out, r
}

func TestReaderPassthrough(t *testing.T) {
	data := []byte("plain text, no magic anywhere\n")
	out, _ := readAll(t, data)
	assert.Equal(t, data, out)
}

func TestReaderEmptyInput(t *testing.T) {
	out, _ := readAll(t, nil)
	assert.Empty(t, out)
}

func TestReaderGzip(t *testing.T) {
	data := []byte(strings.Repeat("the quick brown fox\n", 1000))
	out, r := readAll(t, gzipBytes(t, data))
	assert.Equal(t, data, out)
	assert.Equal(t, int64(len(gzipBytes(t, data))), r.RawCount())
}

func TestReaderBzip2(t *testing.T) {
	data := []byte(strings.Repeat("pack my box with five dozen liquor jugs\n", 500))
	out, _ := readAll(t, bzip2Bytes(t, data))
	assert.Equal(t, data, out)
}

func TestReaderXz(t *testing.T) {
	data := []byte(strings.Repeat("sphinx of black quartz, judge my vow\n", 500))
	out, _ := readAll(t, xzBytes(t, data))
	assert.Equal(t, data, out)
}

func TestReaderConcatenatedGzip(t *testing.T) {
	a := []byte(strings.Repeat("first stream\n", 300))
	b := []byte(strings.Repeat("second stream\n", 300))
	raw := append(gzipBytes(t, a), gzipBytes(t, b)...)
	out, _ := readAll(t, raw)
	assert.Equal(t, append(append([]byte{}, a...), b...), out)
}

func TestReaderGzipThenPlaintext(t *testing.T) {
	a := []byte(strings.Repeat("compressed leader\n", 200))
	b := []byte("uncompressed tail\nwith more lines\n")
	raw := append(gzipBytes(t, a), b...)
	out, _ := readAll(t, raw, WithBlockSize(512))
	assert.Equal(t, append(append([]byte{}, a...), b...), out)
}

func TestReaderConcatenatedXz(t *testing.T) {
	a := []byte(strings.Repeat("alpha\n", 400))
	b := []byte(strings.Repeat("beta\n", 400))
	raw := append(xzBytes(t, a), xzBytes(t, b)...)
	out, _ := readAll(t, raw)
	assert.Equal(t, append(append([]byte{}, a...), b...), out)
}

func TestReaderSkipToIndexedOffset(t *testing.T) {
	good := gzipBytes(t, []byte("recovered payload\n"))
	// A corrupt gzip header followed by a healthy member at a known offset.
	raw := make([]byte, 0, 64+len(good))
	raw = append(raw, gzipMagic...)
	raw = append(raw, make([]byte, 62)...)
	offset := int64(len(raw))
	raw = append(raw, good...)

	r := NewReader(io.NopCloser(bytes.NewReader(raw)))
	_, err := io.ReadAll(r)
	var derr *DecodeError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "gzip", derr.Codec)

	skipped, err := r.SkipTo([]int64{offset})
	require.NoError(t, err)
	assert.Positive(t, skipped)

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("recovered payload\n"), out)
}

func TestReaderSkipToNoTarget(t *testing.T) {
	raw := append(append([]byte{}, gzipMagic...), make([]byte, 62)...)
	r := NewReader(io.NopCloser(bytes.NewReader(raw)))
	_, err := io.ReadAll(r)
	var derr *DecodeError
	require.ErrorAs(t, err, &derr)

	_, err = r.SkipTo([]int64{0})
	assert.True(t, errors.Is(err, ErrNoTarget))
}

func TestReaderSkipFindsNextXzMagic(t *testing.T) {
	good := xzBytes(t, []byte("after the gap\n"))
	// An xz magic with a mangled header, then junk, then a healthy stream.
	raw := make([]byte, 0, 128+len(good))
	raw = append(raw, xzMagic...)
	raw = append(raw, bytes.Repeat([]byte{0xAA}, 100)...)
	raw = append(raw, good...)

	r := NewReader(io.NopCloser(bytes.NewReader(raw)))
	_, err := io.ReadAll(r)
	var derr *DecodeError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "xz", derr.Codec)

	skipped, err := r.Skip()
	require.NoError(t, err)
	assert.Positive(t, skipped)

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("after the gap\n"), out)
}

func TestReaderSkipUnsupportedOnPlainInput(t *testing.T) {
	r := NewReader(io.NopCloser(strings.NewReader("not compressed")))
	_, err := r.Skip()
	assert.Error(t, err)
}

func TestCompressorMembersConcatenate(t *testing.T) {
	c := NewCompressor()
	var stream []byte
	for _, part := range []string{"one\n", "two\n", "three\n"} {
		member, err := c.Compress([]byte(part))
		require.NoError(t, err)
		stream = append(stream, member...)
	}
	out, _ := readAll(t, stream)
	assert.Equal(t, []byte("one\ntwo\nthree\n"), out)
}
