package parallel

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"runtime"
	"sync"

	"github.com/pkg/errors"

	xio "github.com/goto/corpus-preprocess/internal/io"
)

// outcome is the value a worker produces for one input unit: a line, or the
// error that took its place.
type outcome struct {
	line []byte
	err  error
}

// task pairs an input line with the write end of its output slot.
type task struct {
	line []byte
	slot chan outcome
}

type settings struct {
	queueDepth int
	metrics    *Metrics
}

type Option func(*settings)

// WithQueueDepth overrides the bounded queue depth (default: one per worker).
func WithQueueDepth(depth int) Option {
	return func(s *settings) {
		if depth > 0 {
			s.queueDepth = depth
		}
	}
}

// WithMetrics attaches pipeline instruments.
func WithMetrics(m *Metrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

func newSettings(workers int, opts []Option) (int, settings) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	s := settings{queueDepth: workers}
	for _, opt := range opts {
		opt(&s)
	}
	return workers, s
}

// SlotPipeline routes input lines through a pool of child processes while
// preserving input order in the output. A single reader creates a write-once
// slot per line, queues the line on a bounded task queue any free worker may
// take, and queues the slot's read end on a FIFO the writer drains in order.
// Each worker runs a feeder (task queue to child stdin) and a collector
// (child stdout to the slots its feeder forwarded, in feeding order), so a
// slow worker stalls only its own pending slots.
type SlotPipeline struct {
	l        *slog.Logger
	argv     []string
	workers  int
	settings settings
}

func NewSlotPipeline(l *slog.Logger, workers int, argv []string, opts ...Option) *SlotPipeline {
	w, s := newSettings(workers, opts)
	return &SlotPipeline{
		l:        l.WithGroup("sparallel"),
		argv:     argv,
		workers:  w,
		settings: s,
	}
}

func (p *SlotPipeline) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	children, err := LaunchAll(ctx, p.argv, p.workers)
	if err != nil {
		cancel(err)
		Reap(children)
		return err
	}

	tasks := make(chan task, p.settings.queueDepth)
	slots := make(chan chan outcome, p.settings.queueDepth)

	var wg sync.WaitGroup
	for _, c := range children {
		w := &slotWorker{
			l:       p.l,
			child:   c,
			pending: make(chan chan outcome, p.settings.queueDepth+1),
		}
		wg.Add(2)
		go func() {
			defer wg.Done()
			w.feed(tasks)
		}()
		go func() {
			defer wg.Done()
			w.collect()
		}()
	}

	writerErr := make(chan error, 1)
	go func() {
		writerErr <- p.writeOutput(ctx, cancel, slots, out)
	}()

	readErr := p.readInput(ctx, in, tasks, slots)
	close(tasks)
	close(slots)

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

func (p *SlotPipeline) readInput(ctx context.Context, in io.Reader, tasks chan<- task, slots chan<- chan outcome) error {
	lr := xio.NewLineReader(in)
	for {
		line, err := lr.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.WithStack(err)
		}
		p.settings.metrics.Record(ctx, int64(len(line)))
		s := make(chan outcome, 1)
		select {
		case slots <- s:
		case <-ctx.Done():
			return nil
		}
		select {
		case tasks <- task{line: line, slot: s}:
		case <-ctx.Done():
			return nil
		}
	}
}

func (p *SlotPipeline) writeOutput(ctx context.Context, cancel context.CancelCauseFunc, slots <-chan chan outcome, out io.Writer) error {
	aw := newAsyncWriter(out)
	var werr error
	for s := range slots {
		var o outcome
		select {
		case o = <-s:
		case <-ctx.Done():
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

type slotWorker struct {
	l       *slog.Logger
	child   *Child
	pending chan chan outcome
}

// feed forwards tasks to the child's stdin, handing each task's slot to the
// collector first so slots are fulfilled in feeding order. After a write
// failure the remaining slots are still forwarded; the collector reports what
// became of the child.
func (w *slotWorker) feed(tasks <-chan task) {
	bw := bufio.NewWriterSize(w.child.Stdin, 32*1024)
	var werr error
	for t := range tasks {
		w.pending <- t.slot
		if werr != nil {
			continue
		}
		if _, err := bw.Write(t.line); err != nil {
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
	close(w.pending)
}

// collect fulfills the pending slots from the child's stdout. When the child
// stops producing before its slots are exhausted, the remaining slots are
// fulfilled with empty values.
func (w *slotWorker) collect() {
	lr := xio.NewLineReader(w.child.Stdout)
	eof := false
	for s := range w.pending {
		if eof {
			s <- outcome{}
			continue
		}
		line, err := lr.ReadLine()
		switch {
		case err == io.EOF:
			eof = true
			w.l.Debug("child closed its output with slots outstanding")
			s <- outcome{}
		case err != nil:
			s <- outcome{err: err}
		default:
			s <- outcome{line: line}
		}
	}
}

// LaunchAll starts n children running the same command line.
func LaunchAll(ctx context.Context, argv []string, n int) ([]*Child, error) {
	children := make([]*Child, 0, n)
	for i := 0; i < n; i++ {
		c, err := Launch(ctx, argv)
		if err != nil {
			return children, err
		}
		children = append(children, c)
	}
	return children, nil
}
