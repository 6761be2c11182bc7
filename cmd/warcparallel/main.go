package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/goto/corpus-preprocess/internal/config"
	xio "github.com/goto/corpus-preprocess/internal/io"
	"github.com/goto/corpus-preprocess/internal/logger"
	"github.com/goto/corpus-preprocess/internal/otel"
	"github.com/goto/corpus-preprocess/internal/parallel"
	"github.com/goto/corpus-preprocess/internal/warcpipe"
)

// warc-parallel parallelizes WARC-to-WARC processing by wrapping a child
// process: records from the inputs are jumbled through the worker pool and
// the children's records land in the output, optionally gzip-compressed and
// sharded across files under a trailing-X name template.
func main() {
	l := logger.NewDefaultLogger()

	var inputs []string
	var output string
	var workers int
	var gzipOut bool
	var bytesLimit int64
	var envs []string
	var help bool
	pflag.SetInterspersed(false)
	pflag.StringArrayVarP(&inputs, "inputs", "i", nil, "Input file, can be given multiple times. Inputs are read in parallel and jumbled together. Default: read from stdin.")
	pflag.StringVarP(&output, "output", "o", "", "Output filename, or name template with trailing X-es when --bytes applies. Default: stdout.")
	pflag.IntVarP(&workers, "jobs", "j", 0, "Number of child process workers to use (default: one per CPU)")
	pflag.BoolVarP(&gzipOut, "gzip", "z", false, "Compress output records in gzip format")
	pflag.Int64VarP(&bytesLimit, "bytes", "b", 1024*1024*1024, "Maximum filesize per output chunk")
	pflag.StringArrayVar(&envs, "env", []string{}, "Pass env as argument (can be used multiple times)")
	pflag.BoolVarP(&help, "help", "h", false, "Show this help message")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr,
			"Parallelizes WARC to WARC processing by wrapping a child process.\n"+
				"Usage: %s [-i INPUT]... [-o OUTPUT] [-j N] [-z] [-b BYTES] -- child [args..]\n"+
				"The child is expected to take WARC on stdin and produce WARC on stdout.\n",
			os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	argv := pflag.Args()
	if help || len(argv) == 0 {
		pflag.Usage()
		os.Exit(1)
	}

	os.Exit(run(l, inputs, output, workers, gzipOut, bytesLimit, argv, envs))
}

func run(l *slog.Logger, inputs []string, output string, workers int, gzipOut bool, bytesLimit int64, argv, envs []string) int {
	cfg, err := config.NewConfig(envs...)
	if err != nil {
		l.Error(fmt.Sprintf("error: %s", err.Error()))
		return 1
	}
	log, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		l.Error(fmt.Sprintf("error: %s", err.Error()))
		return 1
	}
	wcfg, err := config.Warc(envs...)
	if err != nil {
		log.Error(fmt.Sprintf("error: %s", err.Error()))
		return 1
	}

	ctx, cancelFn := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelFn()
	defer otel.Setup(ctx, log, cfg.OtelCollectorGRPCEndpoint, cfg.OtelAttributes)()

	out, closeOut, err := openOutput(log, output, bytesLimit)
	if err != nil {
		log.Error(fmt.Sprintf("error: %s", err.Error()))
		return 1
	}

	m, err := parallel.NewMetrics("warc-parallel")
	if err != nil {
		log.Warn(fmt.Sprintf("metrics disabled: %s", err.Error()))
	}

	p := warcpipe.NewPipeline(log, workers, argv,
		warcpipe.WithGzip(gzipOut),
		warcpipe.WithSizeLimit(wcfg.SizeLimit),
		warcpipe.WithInputConcurrency(wcfg.InputConcurrency),
		warcpipe.WithMetrics(m),
	)
	runErr := p.Run(ctx, inputs, out)
	if err := closeOut(); err != nil && runErr == nil {
		runErr = err
	}

	if summary, err := p.Stats().Summary(); err == nil {
		log.Info(fmt.Sprintf("summary: %s", summary))
	}

	if runErr != nil {
		log.Error(fmt.Sprintf("error: %s", runErr.Error()))
		var cerr *parallel.ChildError
		if errors.As(runErr, &cerr) {
			return cerr.Code
		}
		return 1
	}
	return 0
}

// openOutput picks the output stage: stdout, a single file, or a split
// writer when the name carries a template. All of them serialize concurrent
// record writes.
func openOutput(log *slog.Logger, output string, bytesLimit int64) (io.Writer, func() error, error) {
	if output == "" {
		w := xio.NewLockedWriter(os.Stdout)
		return w, func() error { return nil }, nil
	}
	if tpl, err := xio.ParseNameTemplate(output); err == nil {
		sw := xio.NewSplitWriter(log, tpl, bytesLimit)
		return sw, sw.Close, nil
	}
	f, err := os.Create(output)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}
	return xio.NewLockedWriter(f), f.Close, nil
}
