package compress

import (
	"bytes"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
)

// Magic prefixes of the supported codecs. Anything else is passed through
// uncompressed.
var (
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte{'B', 'Z', 'h'}
	xzMagic    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

const magicLen = 6 // longest magic prefix (xz)

// decoder is one state of the reader. read may return a successor decoder to
// install before retrying; skip and skipTo likewise hand back the decoder that
// continues after the jump.
type decoder interface {
	read(p []byte) (int, decoder, error)
	skip() (int64, decoder, error)
	skipTo(offsets []int64) (int64, decoder, error)
}

// Reader streams the decompressed form of a gzip, bzip2, xz, or plain byte
// stream, detected by leading magic bytes. Concatenated streams are
// transparent: when a codec reports end of stream with bytes left in the
// input window, a fresh decoder is constructed on the residue, which may even
// be an uncompressed tail after a compressed leader.
type Reader struct {
	src *source
	dec decoder
}

type ReaderOption func(*Reader)

// WithBlockSize sets the refill size for reads from the underlying file.
func WithBlockSize(size int) ReaderOption {
	return func(r *Reader) {
		r.src.block = make([]byte, size)
	}
}

// NewReader takes ownership of f. Codec detection happens on the first read,
// so construction never touches the file.
func NewReader(f io.ReadCloser, opts ...ReaderOption) *Reader {
	r := &Reader{
		src: newSource(f, defaultBlockSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if err := r.ensureDecoder(); err != nil {
			return 0, err
		}
		n, next, err := r.dec.read(p)
		if next != nil {
			// A stream ended; retry on the successor so the caller never
			// sees a spurious zero-length read.
			r.dec = next
		}
		if n > 0 {
			return n, nil
		}
		if err != nil {
			return 0, err
		}
		if next == nil {
			return 0, nil
		}
	}
}

// Skip scans forward for the next xz magic sequence, discarding input, and
// resumes decoding there. It reports the number of compressed bytes skipped.
// Only stream decoders support it.
func (r *Reader) Skip() (int64, error) {
	if err := r.ensureDecoder(); err != nil {
		return 0, err
	}
	n, next, err := r.dec.skip()
	if next != nil {
		r.dec = next
	}
	return n, err
}

// SkipTo advances the underlying file to the smallest offset in the sorted
// list strictly greater than the current compressed position and resumes
// decoding there. It returns ErrNoTarget when no such offset exists.
func (r *Reader) SkipTo(offsets []int64) (int64, error) {
	if err := r.ensureDecoder(); err != nil {
		return 0, err
	}
	n, next, err := r.dec.skipTo(offsets)
	if next != nil {
		r.dec = next
	}
	return n, err
}

// RawCount is the total number of compressed bytes consumed from the
// underlying file so far.
func (r *Reader) RawCount() int64 {
	return r.src.raw
}

func (r *Reader) Close() error {
	return r.src.Close()
}

func (r *Reader) ensureDecoder() error {
	if r.dec != nil {
		return nil
	}
	dec, err := newDecoder(r.src)
	if err != nil {
		return err
	}
	r.dec = dec
	return nil
}

// newDecoder sniffs the magic bytes in the source window and picks the next
// decoder state. The window itself carries any bytes already buffered, so no
// byte is lost across the transition.
func newDecoder(src *source) (decoder, error) {
	w, err := src.peek(magicLen)
	if err != nil {
		return nil, err
	}
	if len(w) == 0 {
		return &complete{}, nil
	}
	switch {
	case bytes.HasPrefix(w, gzipMagic):
		return &streamDecoder{codec: "gzip", src: src}, nil
	case bytes.HasPrefix(w, bzip2Magic):
		return &streamDecoder{codec: "bzip2", src: src}, nil
	case bytes.HasPrefix(w, xzMagic):
		return &streamDecoder{codec: "xz", src: src}, nil
	default:
		return &passthrough{src: src}, nil
	}
}

// complete is the terminal state.
type complete struct{}

func (c *complete) read(p []byte) (int, decoder, error) {
	return 0, nil, io.EOF
}

func (c *complete) skip() (int64, decoder, error) {
	return 0, nil, errors.New("skip: stream already complete")
}

func (c *complete) skipTo(offsets []int64) (int64, decoder, error) {
	return 0, nil, errors.New("skip to offset: stream already complete")
}

// passthrough serves uncompressed bytes straight from the source window and
// file.
type passthrough struct {
	src *source
}

func (u *passthrough) read(p []byte) (int, decoder, error) {
	n, err := u.src.Read(p)
	if err == io.EOF {
		return n, &complete{}, io.EOF
	}
	return n, nil, err
}

func (u *passthrough) skip() (int64, decoder, error) {
	return 0, nil, errors.New("skip: not supported on uncompressed input")
}

func (u *passthrough) skipTo(offsets []int64) (int64, decoder, error) {
	return 0, nil, errors.New("skip to offset: not supported on uncompressed input")
}

// streamDecoder decodes one compressed stream. The codec reader is built
// lazily so that header corruption surfaces as a DecodeError from read while
// the state keeps supporting skip and skipTo for recovery.
type streamDecoder struct {
	codec string
	src   *source
	rd    io.Reader
}

func (d *streamDecoder) init() error {
	switch d.codec {
	case "gzip":
		zr, err := gzip.NewReader(d.src)
		if err != nil {
			return err
		}
		// One member at a time; the successor factory handles concatenation
		// so a non-gzip tail is not an error.
		zr.Multistream(false)
		d.rd = zr
	case "bzip2":
		br, err := bzip2.NewReader(d.src, nil)
		if err != nil {
			return err
		}
		d.rd = br
	case "xz":
		xr, err := xz.NewReader(d.src)
		if err != nil {
			return err
		}
		d.rd = xr
	default:
		return errors.Errorf("unknown codec %s", d.codec)
	}
	return nil
}

func (d *streamDecoder) read(p []byte) (int, decoder, error) {
	if d.rd == nil {
		if err := d.init(); err != nil {
			return 0, nil, &DecodeError{Codec: d.codec, Err: err}
		}
	}
	n, err := d.rd.Read(p)
	switch {
	case err == nil:
		return n, nil, nil
	case err == io.EOF:
		// The compressed stream ended; whatever remains in the window (or
		// the file) belongs to the next stream.
		next, ferr := newDecoder(d.src)
		if ferr != nil {
			return n, nil, ferr
		}
		return n, next, nil
	default:
		return n, nil, &DecodeError{Codec: d.codec, Err: err}
	}
}

// skip scans the input for the next xz magic sequence. A tail of 8 bytes is
// preserved across refills to catch magic spanning two reads.
func (d *streamDecoder) skip() (int64, decoder, error) {
	var skipped int64
	for {
		w := d.src.window()
		if i := bytes.Index(w, xzMagic); i >= 0 {
			skipped += int64(i)
			d.src.discard(i)
			next, err := newDecoder(d.src)
			return skipped, next, err
		}
		keep := len(w)
		if keep > 8 {
			keep = 8
		}
		drop := len(w) - keep
		skipped += int64(drop)
		d.src.discard(drop)
		if err := d.src.fill(); err != nil {
			if err == io.EOF {
				skipped += int64(keep)
				d.src.discard(keep)
				return skipped, &complete{}, nil
			}
			return skipped, nil, err
		}
	}
}

func (d *streamDecoder) skipTo(offsets []int64) (int64, decoder, error) {
	pos := d.src.position()
	var target int64
	for _, off := range offsets {
		if off > pos {
			target = off
			break
		}
	}
	if target == 0 {
		return 0, nil, errors.Wrapf(ErrNoTarget, "position %d", pos)
	}
	if target <= d.src.raw {
		d.src.discard(int(target - pos))
	} else if err := d.src.discardTo(target); err != nil {
		return d.src.position() - pos, nil, err
	}
	next, err := newDecoder(d.src)
	return d.src.position() - pos, next, err
}
