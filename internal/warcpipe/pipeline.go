package warcpipe

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"

	"github.com/goto/corpus-preprocess/internal/compress"
	"github.com/goto/corpus-preprocess/internal/concurrentqueue"
	"github.com/goto/corpus-preprocess/internal/parallel"
	"github.com/goto/corpus-preprocess/internal/warc"
)

const defaultSizeLimit = 20 * 1024 * 1024 // same record cap as warc2text

// Pipeline wraps a WARC-to-WARC child command in a worker pool. Input readers
// jumble records from every input into one bounded queue; each worker's
// feeder streams records into its child and its collector re-frames the
// child's output and writes records to the shared output, optionally
// gzip-compressed per record. Output record order across workers is not
// preserved.
type Pipeline struct {
	l                *slog.Logger
	argv             []string
	workers          int
	sizeLimit        int64
	gzip             bool
	inputConcurrency int
	queueDepth       int
	metrics          *parallel.Metrics
	stats            Stats
}

type Option func(*Pipeline)

// WithSizeLimit caps the framed size of one input record; larger records are
// skipped and counted.
func WithSizeLimit(limit int64) Option {
	return func(p *Pipeline) {
		if limit > 0 {
			p.sizeLimit = limit
		}
	}
}

// WithGzip compresses every output record as its own gzip member.
func WithGzip(enabled bool) Option {
	return func(p *Pipeline) {
		p.gzip = enabled
	}
}

// WithInputConcurrency bounds how many inputs are read at once (default: all
// of them).
func WithInputConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.inputConcurrency = n
		}
	}
}

// WithMetrics attaches pipeline instruments.
func WithMetrics(m *parallel.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func NewPipeline(l *slog.Logger, workers int, argv []string, opts ...Option) *Pipeline {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Pipeline{
		l:          l.WithGroup("warc-parallel"),
		argv:       argv,
		workers:    workers,
		sizeLimit:  defaultSizeLimit,
		queueDepth: workers,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stats returns the run counters; read them after Run returns.
func (p *Pipeline) Stats() *Stats {
	return &p.stats
}

// Run reads WARC records from the inputs (stdin when the list is empty),
// routes them through the worker children, and writes the children's records
// to out. out must be safe for concurrent use; each record is written in
// exactly one call, prepared outside the writer's lock.
func (p *Pipeline) Run(ctx context.Context, inputs []string, out io.Writer) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	children, err := parallel.LaunchAll(ctx, p.argv, p.workers)
	if err != nil {
		cancel(err)
		parallel.Reap(children)
		return err
	}

	queue := make(chan []byte, p.queueDepth)

	var wg sync.WaitGroup
	for _, c := range children {
		w := &worker{pipeline: p, child: c}
		wg.Add(2)
		go func() {
			defer wg.Done()
			w.feed(queue)
		}()
		go func() {
			defer wg.Done()
			w.collect(ctx, cancel, out)
		}()
	}

	readErr := p.readInputs(ctx, inputs, queue)
	close(queue)

	wg.Wait()
	rerr := parallel.Reap(children)

	if err := context.Cause(ctx); err != nil && readErr == nil && rerr == nil {
		return err
	}
	if readErr != nil {
		return readErr
	}
	return rerr
}

// readInputs drives one reader per input concurrently. Skipped recovery
// records are counted and dropped before the queue.
func (p *Pipeline) readInputs(ctx context.Context, inputs []string, queue chan<- []byte) error {
	if len(inputs) == 0 {
		return p.readFrom(ctx, warc.NewReader(compress.NewReader(os.Stdin)), queue)
	}
	limit := p.inputConcurrency
	if limit <= 0 {
		limit = len(inputs)
	}
	cq := concurrentqueue.NewConcurrentQueue(ctx, limit)
	for _, input := range inputs {
		if err := cq.Submit(func() error {
			r, err := warc.Open(input)
			if err != nil {
				return err
			}
			defer r.Close()
			return p.readFrom(ctx, r, queue)
		}); err != nil {
			return err
		}
	}
	return cq.Wait()
}

func (p *Pipeline) readFrom(ctx context.Context, r *warc.Reader, queue chan<- []byte) error {
	for {
		rec, err := r.Read(p.sizeLimit)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if rec.Skipped > 0 {
			p.stats.recordsSkipped.Add(1)
			p.stats.bytesSkipped.Add(rec.Skipped)
			p.metrics.Skipped(ctx, rec.Skipped)
		}
		if len(rec.Payload) == 0 {
			continue
		}
		p.stats.recordsRead.Add(1)
		p.metrics.Record(ctx, int64(len(rec.Payload)))
		select {
		case queue <- rec.Payload:
		case <-ctx.Done():
			return nil
		}
	}
}

type worker struct {
	pipeline *Pipeline
	child    *parallel.Child
}

// feed streams whole records into the child's stdin.
func (w *worker) feed(queue <-chan []byte) {
	bw := bufio.NewWriterSize(w.child.Stdin, 64*1024)
	var werr error
	for rec := range queue {
		if werr != nil {
			continue
		}
		if _, err := bw.Write(rec); err != nil {
			werr = err
			continue
		}
		if err := bw.Flush(); err != nil {
			werr = err
		}
	}
	w.child.Stdin.Close()
}

// collect re-frames the child's stdout into records and writes each one to
// the shared output. Compression happens here, outside the output's lock.
func (w *worker) collect(ctx context.Context, cancel context.CancelCauseFunc, out io.Writer) {
	p := w.pipeline
	r := warc.NewReader(compress.NewReader(w.child.Stdout))
	var comp *compress.Compressor
	if p.gzip {
		comp = compress.NewCompressor()
	}
	for {
		rec, err := r.Read(0)
		if err == io.EOF {
			return
		}
		if err != nil {
			cancel(errors.WithStack(err))
			return
		}
		if len(rec.Payload) == 0 {
			continue
		}
		data := rec.Payload
		if comp != nil {
			if data, err = comp.Compress(rec.Payload); err != nil {
				cancel(err)
				return
			}
		}
		n, err := out.Write(data)
		if err != nil {
			cancel(errors.WithStack(err))
			return
		}
		p.stats.recordsWritten.Add(1)
		p.stats.bytesWritten.Add(int64(n))
	}
}
