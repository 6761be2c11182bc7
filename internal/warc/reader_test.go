package warc

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goto/corpus-preprocess/internal/compress"
)

func warcRecord(body string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "WARC/1.0\r\nWARC-Type: response\r\nContent-Length: %d\r\n\r\n", len(body))
	buf.WriteString(body)
	buf.WriteString("\r\n\r\n")
	return buf.Bytes()
}

func newTestReader(raw []byte) *Reader {
	return NewReader(compress.NewReader(io.NopCloser(bytes.NewReader(raw))))
}

func TestReadSingleRecord(t *testing.T) {
	raw := warcRecord("hello body")
	r := newTestReader(raw)

	rec, err := r.Read(0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.Skipped)
	assert.Equal(t, raw, rec.Payload)
	assert.True(t, bytes.HasSuffix(rec.Payload, []byte("\r\n\r\n")))

	_, err = r.Read(0)
	assert.Equal(t, io.EOF, err)
}

func TestReadMultipleRecordsOverhang(t *testing.T) {
	bodies := []string{"first", "second record body", "third"}
	var raw []byte
	for _, b := range bodies {
		raw = append(raw, warcRecord(b)...)
	}
	r := newTestReader(raw)

	var got [][]byte
	var totalPayload int64
	for {
		rec, err := r.Read(0)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.Equal(t, int64(0), rec.Skipped)
		got = append(got, rec.Payload)
		totalPayload += int64(len(rec.Payload))
	}
	require.Len(t, got, len(bodies))
	for i, b := range bodies {
		assert.Equal(t, warcRecord(b), got[i], "record %d", i)
	}
	assert.Equal(t, int64(len(raw)), totalPayload)
}

func TestReadRoundTrip(t *testing.T) {
	// Concatenating payloads of a parse yields a stream that parses to the
	// same records.
	var raw []byte
	for _, b := range []string{"alpha", "beta"} {
		raw = append(raw, warcRecord(b)...)
	}
	first := newTestReader(raw)
	var rejoined []byte
	for {
		rec, err := first.Read(0)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		rejoined = append(rejoined, rec.Payload...)
	}
	assert.Equal(t, raw, rejoined)
}

func TestReadOversizeRecordSkipped(t *testing.T) {
	big := string(bytes.Repeat([]byte("x"), 100_000))
	raw := append(warcRecord(big), warcRecord("small")...)
	r := newTestReader(raw)

	rec, err := r.Read(1024)
	require.NoError(t, err)
	assert.Empty(t, rec.Payload)
	assert.Equal(t, int64(len(warcRecord(big))), rec.Skipped)

	rec, err = r.Read(1024)
	require.NoError(t, err)
	assert.Equal(t, warcRecord("small"), rec.Payload)

	_, err = r.Read(1024)
	assert.Equal(t, io.EOF, err)
}

func TestReadCorruptHeaderRecovery(t *testing.T) {
	good1 := warcRecord("good one")
	garbage := []byte("HTTP/1.1 200 OK\r\nthis is not a warc header\r\n\r\njunk junk junk\n")
	good2 := warcRecord("good two")
	raw := append(append(append([]byte{}, good1...), garbage...), good2...)
	r := newTestReader(raw)

	rec, err := r.Read(0)
	require.NoError(t, err)
	assert.Equal(t, good1, rec.Payload)

	rec, err = r.Read(0)
	require.NoError(t, err)
	assert.Empty(t, rec.Payload)
	assert.Equal(t, int64(len(garbage)), rec.Skipped)

	rec, err = r.Read(0)
	require.NoError(t, err)
	assert.Equal(t, good2, rec.Payload)

	_, err = r.Read(0)
	assert.Equal(t, io.EOF, err)
}

func TestReadAccountsForEveryByte(t *testing.T) {
	good1 := warcRecord("one")
	garbage := []byte("garbage bytes without structure\n")
	good2 := warcRecord("two")
	raw := append(append(append([]byte{}, good1...), garbage...), good2...)
	r := newTestReader(raw)

	var payload, skipped int64
	for {
		rec, err := r.Read(0)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		payload += int64(len(rec.Payload))
		skipped += rec.Skipped
	}
	assert.Equal(t, int64(len(raw)), payload+skipped)
}

func TestReadBadContentLengthResyncs(t *testing.T) {
	bad := []byte("WARC/1.0\r\nContent-Length: 12abc\r\n\r\n\r\n\r\n")
	good := warcRecord("fine")
	raw := append(append([]byte{}, bad...), good...)
	r := newTestReader(raw)

	rec, err := r.Read(0)
	require.NoError(t, err)
	assert.Empty(t, rec.Payload)
	assert.Equal(t, int64(len(bad)), rec.Skipped)

	rec, err = r.Read(0)
	require.NoError(t, err)
	assert.Equal(t, good, rec.Payload)
}

func TestOpenWithSidecarIndexRecovery(t *testing.T) {
	dir := t.TempDir()

	var member1, member2 bytes.Buffer
	gw := gzip.NewWriter(&member1)
	_, err := gw.Write(warcRecord("before corruption"))
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	gw = gzip.NewWriter(&member2)
	_, err = gw.Write(warcRecord("after corruption"))
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	// A gzip magic with a broken header between two healthy members.
	junk := append([]byte{0x1f, 0x8b}, make([]byte, 40)...)
	raw := append(append(append([]byte{}, member1.Bytes()...), junk...), member2.Bytes()...)
	offset2 := int64(member1.Len() + len(junk))

	path := filepath.Join(dir, "crawl.warc.gz")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	index := fmt.Sprintf("0\n%d\n", offset2)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "crawl.txt"), []byte(index), 0o644))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.Read(0)
	require.NoError(t, err)
	assert.Equal(t, warcRecord("before corruption"), rec.Payload)

	rec, err = r.Read(0)
	require.NoError(t, err)
	assert.Empty(t, rec.Payload)
	assert.Positive(t, rec.Skipped)

	rec, err = r.Read(0)
	require.NoError(t, err)
	assert.Equal(t, warcRecord("after corruption"), rec.Payload)

	_, err = r.Read(0)
	assert.Equal(t, io.EOF, err)
}

func TestSidecarPath(t *testing.T) {
	assert.Equal(t, "a/b.txt", sidecarPath("a/b.warc.gz"))
	assert.Equal(t, "a/b.txt", sidecarPath("a/b.warc.xz"))
	assert.Equal(t, "a/b.txt", sidecarPath("a/b.warc"))
	assert.Equal(t, "", sidecarPath("a/b.gz"))
}
