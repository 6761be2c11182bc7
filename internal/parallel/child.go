package parallel

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/pkg/errors"
)

// ChildError reports a worker child that exited with a non-zero status or was
// terminated abnormally. Code is the exit status to propagate; abnormal
// termination is reported as code 1 with Abnormal set.
type ChildError struct {
	Pid      int
	Code     int
	Abnormal bool
}

func (e *ChildError) Error() string {
	if e.Abnormal {
		return fmt.Sprintf("child process %d terminated abnormally", e.Pid)
	}
	return fmt.Sprintf("child process %d terminated with code %d", e.Pid, e.Code)
}

// Child is one long-lived worker subprocess with pipes to its stdin and
// stdout. Its stderr is inherited from the parent.
type Child struct {
	cmd    *exec.Cmd
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
}

// Launch starts argv as a child process. The context kills the child when
// canceled.
func Launch(ctx context.Context, argv []string) (*Child, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty child command line")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.WithStack(err)
	}
	return &Child{cmd: cmd, Stdin: stdin, Stdout: stdout}, nil
}

func (c *Child) Pid() int {
	return c.cmd.Process.Pid
}

// Wait reaps the child and translates its exit status into a ChildError.
func (c *Child) Wait() error {
	err := c.cmd.Wait()
	if err == nil {
		return nil
	}
	var xerr *exec.ExitError
	if errors.As(err, &xerr) {
		if code := xerr.ExitCode(); code > 0 {
			return &ChildError{Pid: c.Pid(), Code: code}
		}
		return &ChildError{Pid: c.Pid(), Code: 1, Abnormal: true}
	}
	return errors.WithStack(err)
}

// Reap joins every child and folds their statuses into a single error: the
// first abnormal termination, else the worst exit code.
func Reap(children []*Child) error {
	var first error
	var worst *ChildError
	for _, c := range children {
		if c == nil {
			continue
		}
		err := c.Wait()
		if err == nil {
			continue
		}
		var cerr *ChildError
		if !errors.As(err, &cerr) || cerr.Abnormal {
			if first == nil {
				first = err
			}
			continue
		}
		if worst == nil || cerr.Code > worst.Code {
			worst = cerr
		}
	}
	if first != nil {
		return first
	}
	if worst != nil {
		return worst
	}
	return nil
}
