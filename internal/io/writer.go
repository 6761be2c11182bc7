package io

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

type WriteFlusher interface {
	io.Writer
	Flush() error
}

type WriteFlushCloser interface {
	WriteFlusher
	io.Closer
}

type BufferedWriter struct {
	*bufio.Writer
}

// NewBufferedWriter creates a new buffered writer.
func NewBufferedWriter(w io.Writer) *BufferedWriter {
	return &BufferedWriter{
		Writer: bufio.NewWriterSize(w, 32*1024),
	}
}

// NewWriteHandler creates a buffered writer for the given path, creating
// parent directories as needed. Flush must be called after use.
func NewWriteHandler(path string) (WriteFlusher, error) {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return NewBufferedWriter(f), nil
}

// LockedWriter serializes writes from multiple goroutines. The mutex is held
// only for the duration of one Write call, so callers can prepare (for
// example compress) their payload outside the lock.
type LockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewLockedWriter(w io.Writer) *LockedWriter {
	return &LockedWriter{w: w}
}

func (l *LockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
