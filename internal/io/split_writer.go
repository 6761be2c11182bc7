package io

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// NameTemplate is a path with a trailing run of X characters; Format replaces
// the run with a zero-padded decimal counter of the same width.
type NameTemplate struct {
	prefix string
	suffix string
	width  int
}

func ParseNameTemplate(tpl string) (NameTemplate, error) {
	end := strings.LastIndexByte(tpl, 'X')
	if end < 0 {
		return NameTemplate{}, errors.Errorf("no X-es in template name %q", tpl)
	}
	start := end
	for start > 0 && tpl[start-1] == 'X' {
		start--
	}
	return NameTemplate{
		prefix: tpl[:start],
		suffix: tpl[end+1:],
		width:  end - start + 1,
	}, nil
}

func (t NameTemplate) Format(n int) string {
	return fmt.Sprintf("%s%0*d%s", t.prefix, t.width, n, t.suffix)
}

// SplitWriter writes at most bytesLimit bytes per file before rolling over to
// the next name in the template sequence. Files are opened lazily, each Write
// lands in exactly one file (a single Write larger than bytesLimit gets a new
// file of its own and exceeds the limit), and writes from multiple goroutines are
// serialized by an internal mutex held only for the duration of the call.
type SplitWriter struct {
	l          *slog.Logger
	tpl        NameTemplate
	bytesLimit int64

	mu      sync.Mutex
	fileN   int
	f       *os.File
	w       *BufferedWriter
	written int64
}

func NewSplitWriter(l *slog.Logger, tpl NameTemplate, bytesLimit int64) *SplitWriter {
	return &SplitWriter{
		l:          l,
		tpl:        tpl,
		bytesLimit: bytesLimit,
	}
}

func (s *SplitWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil || s.written+int64(len(p)) > s.bytesLimit {
		if err := s.openNext(); err != nil {
			return 0, err
		}
	}
	n, err := s.w.Write(p)
	s.written += int64(n)
	return n, errors.WithStack(err)
}

func (s *SplitWriter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCurrent()
}

func (s *SplitWriter) openNext() error {
	if err := s.closeCurrent(); err != nil {
		return err
	}
	name := s.tpl.Format(s.fileN)
	s.fileN++
	f, err := os.Create(name)
	if err != nil {
		return errors.WithStack(err)
	}
	s.l.Info(fmt.Sprintf("writing %s", name))
	s.f = f
	s.w = NewBufferedWriter(f)
	s.written = 0
	return nil
}

func (s *SplitWriter) closeCurrent() error {
	if s.f == nil {
		return nil
	}
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return errors.WithStack(err)
	}
	err := s.f.Close()
	s.f = nil
	s.w = nil
	return errors.WithStack(err)
}
