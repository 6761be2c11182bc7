package parallel

import (
	"io"

	"github.com/djherbis/buffer"
	"github.com/djherbis/nio/v3"
)

const outputBufferSize = 1 << 20

// asyncWriter decouples the ordered writer from output backpressure with an
// in-memory buffered pipe: the writer fills the pipe while a drainer copies
// it to the destination.
type asyncWriter struct {
	pw   io.WriteCloser
	done chan error
}

func newAsyncWriter(dst io.Writer) *asyncWriter {
	pr, pw := nio.Pipe(buffer.New(outputBufferSize))
	w := &asyncWriter{
		pw:   pw,
		done: make(chan error, 1),
	}
	go func() {
		_, err := io.Copy(dst, pr)
		// Unblock the writer if the destination died first.
		pr.CloseWithError(err)
		w.done <- err
	}()
	return w
}

func (w *asyncWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

// Close flushes the pipe and waits for the drainer.
func (w *asyncWriter) Close() error {
	w.pw.Close()
	return <-w.done
}
