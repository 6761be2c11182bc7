package parallel

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	xio "github.com/goto/corpus-preprocess/internal/io"
)

// QueuePipeline assigns line i to worker i mod n like the round-robin
// pipeline, but decouples every hop with bounded queues: a feeder drains the
// worker's task queue into the child, and a collector fills the worker's
// result queue from the child. Order is preserved by construction, and the
// queues absorb bursts that would stall the purely blocking variant. It still
// requires a strictly line-synchronous child.
type QueuePipeline struct {
	l        *slog.Logger
	argv     []string
	workers  int
	settings settings
}

func NewQueuePipeline(l *slog.Logger, workers int, argv []string, opts ...Option) *QueuePipeline {
	w, s := newSettings(workers, opts)
	return &QueuePipeline{
		l:        l.WithGroup("qparallel"),
		argv:     argv,
		workers:  w,
		settings: s,
	}
}

type queueWorker struct {
	child   *Child
	tasks   chan []byte
	results chan outcome
}

func (p *QueuePipeline) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	children, err := LaunchAll(ctx, p.argv, p.workers)
	if err != nil {
		cancel(err)
		Reap(children)
		return err
	}

	workers := make([]*queueWorker, len(children))
	var wg sync.WaitGroup
	for i, c := range children {
		w := &queueWorker{
			child:   c,
			tasks:   make(chan []byte, p.settings.queueDepth),
			results: make(chan outcome, p.settings.queueDepth),
		}
		workers[i] = w
		wg.Add(2)
		go func() {
			defer wg.Done()
			w.feed()
		}()
		go func() {
			defer wg.Done()
			w.collect()
		}()
	}

	writerErr := make(chan error, 1)
	go func() {
		writerErr <- p.writeOutput(ctx, cancel, workers, out)
	}()

	readErr := p.readInput(ctx, in, workers)
	for _, w := range workers {
		close(w.tasks)
	}

	werr := <-writerErr
	wg.Wait()
	rerr := Reap(children)

	switch {
	case readErr != nil:
		return readErr
	case werr != nil:
		return werr
	default:
		return rerr
	}
}

func (p *QueuePipeline) readInput(ctx context.Context, in io.Reader, workers []*queueWorker) error {
	lr := xio.NewLineReader(in)
	for i := 0; ; i++ {
		line, err := lr.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.WithStack(err)
		}
		p.settings.metrics.Record(ctx, int64(len(line)))
		select {
		case workers[i%len(workers)].tasks <- line:
		case <-ctx.Done():
			return nil
		}
	}
}

// writeOutput takes one result per worker in rotation; a worker whose result
// queue has closed drops out of the rotation.
func (p *QueuePipeline) writeOutput(ctx context.Context, cancel context.CancelCauseFunc, workers []*queueWorker, out io.Writer) error {
	aw := newAsyncWriter(out)
	closed := make([]bool, len(workers))
	open := len(workers)
	var werr error
	for i := 0; open > 0; i++ {
		idx := i % len(workers)
		if closed[idx] {
			continue
		}
		o, ok := <-workers[idx].results
		if !ok {
			closed[idx] = true
			open--
			continue
		}
		if werr != nil {
			continue
		}
		if o.err != nil {
			werr = errors.WithStack(o.err)
			cancel(werr)
			continue
		}
		if _, err := aw.Write(append(o.line, '\n')); err != nil {
			werr = errors.WithStack(err)
			cancel(werr)
		}
	}
	cerr := aw.Close()
	if werr != nil {
		return werr
	}
	return errors.WithStack(cerr)
}

func (w *queueWorker) feed() {
	bw := bufio.NewWriterSize(w.child.Stdin, 32*1024)
	var werr error
	for line := range w.tasks {
		if werr != nil {
			continue
		}
		if _, err := bw.Write(line); err != nil {
			werr = err
			continue
		}
		if err := bw.WriteByte('\n'); err != nil {
			werr = err
			continue
		}
		if err := bw.Flush(); err != nil {
			werr = err
		}
	}
	w.child.Stdin.Close()
}

func (w *queueWorker) collect() {
	lr := xio.NewLineReader(w.child.Stdout)
	for {
		line, err := lr.ReadLine()
		if err == io.EOF {
			close(w.results)
			return
		}
		if err != nil {
			w.results <- outcome{err: err}
			close(w.results)
			return
		}
		w.results <- outcome{line: line}
	}
}
