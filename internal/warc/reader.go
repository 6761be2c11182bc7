package warc

import (
	"bytes"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/readahead"
	"github.com/pkg/errors"

	"github.com/goto/corpus-preprocess/internal/compress"
)

var (
	versionToken = []byte("WARC/1.0")
	crlfcrlf     = []byte("\r\n\r\n")
)

const (
	readChunk      = 4096
	contentLength  = "Content-Length:"
	scratchSize    = 32 * 1024
	resyncTailSize = 8
)

// Reader frames WARC/1.0 records on top of a decompressing reader. Framing
// violations and codec corruption are converted into empty records that
// report the number of bytes skipped, so downstream can audit every gap.
type Reader struct {
	src     *compress.Reader
	offsets []int64 // sidecar index of compressed-byte restart offsets

	overhang []byte // bytes read past the previous record boundary
	work     []byte // buffer of the record currently being framed
	scratch  []byte // reused for discarding oversize bodies
}

// NewReader wraps an already-constructed decompressing reader, with no
// sidecar index.
func NewReader(src *compress.Reader) *Reader {
	return &Reader{src: src}
}

// Open opens a WARC file through an asynchronous read-ahead buffer and loads
// the optional sidecar index next to it (the `.warc.<ext>` suffix replaced by
// `.txt`, one decimal compressed-byte offset per line).
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	ra, err := readahead.NewReaderSize(f, 4, readahead.DefaultBufferSize)
	if err != nil {
		f.Close()
		return nil, errors.WithStack(err)
	}
	offsets, err := loadIndex(sidecarPath(path))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{
		src:     compress.NewReader(&readAheadFile{ra: ra, f: f}),
		offsets: offsets,
	}, nil
}

// Close closes the underlying decompressing reader and its file.
func (r *Reader) Close() error {
	return r.src.Close()
}

// Read returns the next record, or nil and io.EOF at true end of input.
// Records whose total framed size exceeds sizeLimit are discarded through a
// scratch buffer and reported as an empty record with the full size in
// Skipped. sizeLimit <= 0 means no limit.
func (r *Reader) Read(sizeLimit int64) (*Record, error) {
	if sizeLimit <= 0 {
		sizeLimit = math.MaxInt64
	}
	// The previous record's over-read becomes this record's leading bytes.
	r.work = r.overhang
	r.overhang = nil

	rec, err := r.readRecord(sizeLimit)
	if err == nil {
		return rec, nil
	}

	var ferr *FramingError
	if errors.As(err, &ferr) {
		return r.resync()
	}
	var derr *compress.DecodeError
	if errors.As(err, &derr) {
		// Corruption below the framing layer. Jump via the sidecar index if
		// we have one, otherwise scan for the next xz stream magic. Whatever
		// was buffered is garbage now.
		r.work = nil
		var skipped int64
		var serr error
		if len(r.offsets) > 0 {
			skipped, serr = r.src.SkipTo(r.offsets)
		} else {
			skipped, serr = r.src.Skip()
		}
		if serr != nil {
			return nil, serr
		}
		return &Record{Skipped: skipped}, nil
	}
	return nil, err
}

// readRecord frames one record in r.work, which carries the overhang of the
// previous call. On success the tail beyond the record boundary is stashed
// back into r.overhang.
func (r *Reader) readRecord(sizeLimit int64) (*Record, error) {
	hdr := headerScanner{r: r}

	line, err := hdr.line()
	if err != nil {
		return nil, err
	}
	// Tolerate stray blank lines between records.
	for len(line) == 0 {
		if line, err = hdr.line(); err != nil {
			return nil, err
		}
	}
	if !bytes.Equal(line, versionToken) {
		return nil, framingErrorf("expected %s header, got %q", versionToken, line)
	}

	var bodyLength int64
	seenLength := false
	for {
		if line, err = hdr.line(); err != nil {
			return nil, err
		}
		if len(line) == 0 {
			break
		}
		if len(line) >= len(contentLength) && strings.EqualFold(string(line[:len(contentLength)]), contentLength) {
			if seenLength {
				return nil, framingErrorf("two Content-Length headers")
			}
			seenLength = true
			value := strings.TrimLeft(string(line[len(contentLength):]), " \t")
			if bodyLength, err = strconv.ParseInt(value, 10, 64); err != nil {
				return nil, framingErrorf("Content-Length parse error in %q", line)
			}
		}
	}
	if !seenLength {
		return nil, framingErrorf("no Content-Length header")
	}

	// Trailing CRLF CRLF after the body, as specified by the standard.
	total := int64(hdr.consumed) + bodyLength + 4

	if total > sizeLimit {
		if total < int64(len(r.work)) {
			r.overhang = r.work[total:]
			r.work = nil
			return &Record{Skipped: total}, nil
		}
		return r.discardOversize(total)
	}
	if total < int64(len(r.work)) {
		r.overhang = r.work[total:]
		return &Record{Payload: r.work[:total]}, nil
	}

	start := int64(len(r.work))
	r.work = append(r.work, make([]byte, total-start)...)
	if _, err := io.ReadFull(r.src, r.work[start:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.Wrapf(io.ErrUnexpectedEOF, "input ended inside record of length %d", bodyLength)
		}
		return nil, err
	}
	if !bytes.HasSuffix(r.work, crlfcrlf) {
		return nil, framingErrorf("end of record missing CRLF CRLF")
	}
	return &Record{Payload: r.work}, nil
}

// discardOversize drains an over-limit record through the scratch buffer and
// reports the whole framed size as skipped. The CRLF CRLF trailer is not
// checked on this path.
func (r *Reader) discardOversize(total int64) (*Record, error) {
	if r.scratch == nil {
		r.scratch = make([]byte, scratchSize)
	}
	skipped := int64(len(r.work))
	r.work = nil
	for skipped < total {
		limit := int64(len(r.scratch))
		if remain := total - skipped; remain < limit {
			limit = remain
		}
		n, err := r.src.Read(r.scratch[:limit])
		skipped += int64(n)
		if err != nil {
			if err == io.EOF {
				return nil, errors.Wrapf(io.ErrUnexpectedEOF, "input ended inside oversize record of %d bytes", total)
			}
			return nil, err
		}
	}
	return &Record{Skipped: total}, nil
}

// resync recovers from a framing error by scanning r.work and further input
// for the next version token, preserving a small tail across refills so a
// token spanning two reads is still found. Scanned bytes count as skipped;
// the token onward becomes the next record's overhang.
func (r *Reader) resync() (*Record, error) {
	buf := r.work
	r.work = nil
	var skipped int64
	// The buffer may itself start with a version token (the framing error
	// came from the headers after it), so the first scan starts one byte in.
	from := 1
	for {
		if len(buf) > from {
			if i := bytes.Index(buf[from:], versionToken); i >= 0 {
				skipped += int64(from + i)
				r.overhang = buf[from+i:]
				return &Record{Skipped: skipped}, nil
			}
		}
		keep := len(buf)
		if keep > resyncTailSize {
			keep = resyncTailSize
		}
		drop := len(buf) - keep
		skipped += int64(drop)
		copy(buf, buf[drop:])
		buf = buf[:keep]
		from = 0

		old := len(buf)
		buf = append(buf, make([]byte, readChunk)...)
		n, err := r.src.Read(buf[old : old+readChunk])
		buf = buf[:old+n]
		if err != nil {
			if err == io.EOF {
				skipped += int64(len(buf))
				if skipped > 0 {
					return &Record{Skipped: skipped}, nil
				}
				return nil, io.EOF
			}
			return nil, err
		}
	}
}

// headerScanner reads header lines into the reader's working buffer,
// tracking how many bytes belong to the header section.
type headerScanner struct {
	r        *Reader
	consumed int
}

// line returns the next header line with the terminating newline (and a
// carriage return, if present) stripped. io.EOF is only returned when the
// buffer is empty and the input is exhausted; an exhausted input with
// buffered bytes is a framing error.
func (h *headerScanner) line() ([]byte, error) {
	for {
		buf := h.r.work
		if i := bytes.IndexByte(buf[h.consumed:], '\n'); i >= 0 {
			line := buf[h.consumed : h.consumed+i]
			h.consumed += i + 1
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			return line, nil
		}
		old := len(buf)
		buf = append(buf, make([]byte, readChunk)...)
		n, err := h.r.src.Read(buf[old : old+readChunk])
		h.r.work = buf[:old+n]
		if err != nil {
			if err == io.EOF {
				if len(h.r.work) == 0 {
					return nil, io.EOF
				}
				return nil, framingErrorf("input ended inside record header")
			}
			return nil, err
		}
	}
}

func sidecarPath(path string) string {
	if i := strings.LastIndex(path, ".warc."); i >= 0 {
		return path[:i] + ".txt"
	}
	if rest, ok := strings.CutSuffix(path, ".warc"); ok {
		return rest + ".txt"
	}
	return ""
}

// loadIndex parses a sidecar offset file. A missing file simply means no
// index.
func loadIndex(path string) ([]int64, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}
	var offsets []int64
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		off, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "bad offset %q in index %s", line, path)
		}
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	return offsets, nil
}

// readAheadFile closes both the read-ahead buffer and the file behind it.
type readAheadFile struct {
	ra io.ReadCloser
	f  *os.File
}

func (r *readAheadFile) Read(p []byte) (int, error) {
	return r.ra.Read(p)
}

func (r *readAheadFile) Close() error {
	err := r.ra.Close()
	if ferr := r.f.Close(); err == nil {
		err = ferr
	}
	return err
}
