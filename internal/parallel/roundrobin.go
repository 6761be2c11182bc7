package parallel

import (
	"bufio"
	"context"
	"io"
	"log/slog"

	"github.com/pkg/errors"

	xio "github.com/goto/corpus-preprocess/internal/io"
)

// RoundRobinPipeline is the simple cousin of the queue-based pipelines: line
// i goes to worker i mod n, and because the order is fixed it relies entirely
// on blocking pipe I/O for synchronisation. It is correct only for strictly
// line-synchronous children, and a child that buffers a lot of input before
// producing output can deadlock it: the writer is still blocked on worker A
// while worker B's input pipe is full, so the reader never gets back to A to
// push it over the edge. When it does work it is far less resource hungry
// than the queue-based variants.
type RoundRobinPipeline struct {
	l        *slog.Logger
	argv     []string
	workers  int
	settings settings
}

func NewRoundRobinPipeline(l *slog.Logger, workers int, argv []string, opts ...Option) *RoundRobinPipeline {
	w, s := newSettings(workers, opts)
	return &RoundRobinPipeline{
		l:        l.WithGroup("rparallel"),
		argv:     argv,
		workers:  w,
		settings: s,
	}
}

func (p *RoundRobinPipeline) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	children, err := LaunchAll(ctx, p.argv, p.workers)
	if err != nil {
		cancel(err)
		Reap(children)
		return err
	}

	writerErr := make(chan error, 1)
	go func() {
		writerErr <- p.writeOutput(cancel, children, out)
	}()

	stdins := make([]*bufio.Writer, len(children))
	for i, c := range children {
		stdins[i] = bufio.NewWriterSize(c.Stdin, 32*1024)
	}

	readErr := func() error {
		lr := xio.NewLineReader(in)
		for i := 0; ; i++ {
			line, err := lr.ReadLine()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return errors.WithStack(err)
			}
			if ctx.Err() != nil {
				return nil
			}
			p.settings.metrics.Record(ctx, int64(len(line)))
			w := stdins[i%len(stdins)]
			if _, err := w.Write(line); err != nil {
				return errors.WithStack(err)
			}
			if err := w.WriteByte('\n'); err != nil {
				return errors.WithStack(err)
			}
		}
	}()

	if readErr != nil {
		cancel(readErr)
	}
	// That's it for today: flush and close every worker's input.
	for i, c := range children {
		stdins[i].Flush()
		c.Stdin.Close()
	}

	werr := <-writerErr
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

// writeOutput reads the workers' outputs in the same rotation the reader used
// to feed them; a worker at EOF leaves the rotation.
func (p *RoundRobinPipeline) writeOutput(cancel context.CancelCauseFunc, children []*Child, out io.Writer) error {
	readers := make([]*xio.LineReader, len(children))
	for i, c := range children {
		readers[i] = xio.NewLineReader(c.Stdout)
	}
	bw := xio.NewBufferedWriter(out)
	closed := make([]bool, len(children))
	open := len(children)
	for i := 0; open > 0; i++ {
		idx := i % len(children)
		if closed[idx] {
			continue
		}
		line, err := readers[idx].ReadLine()
		if err == io.EOF {
			closed[idx] = true
			open--
			continue
		}
		if err != nil {
			err = errors.WithStack(err)
			cancel(err)
			return err
		}
		if _, err := bw.Write(append(line, '\n')); err != nil {
			err = errors.WithStack(err)
			cancel(err)
			return err
		}
	}
	return errors.WithStack(bw.Flush())
}
