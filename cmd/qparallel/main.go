package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/goto/corpus-preprocess/internal/config"
	"github.com/goto/corpus-preprocess/internal/logger"
	"github.com/goto/corpus-preprocess/internal/otel"
	"github.com/goto/corpus-preprocess/internal/parallel"
)

// qparallel assigns stdin lines to workers round-robin, decoupled with
// bounded queues on both sides of every child. Order is preserved by
// construction; the child must emit exactly one line per input line.
func main() {
	l := logger.NewDefaultLogger()

	var workers int
	var envs []string
	var help bool
	pflag.SetInterspersed(false)
	pflag.IntVarP(&workers, "jobs", "j", 0, "number of worker children (default: one per CPU)")
	pflag.StringArrayVar(&envs, "env", []string{}, "Pass env as argument (can be used multiple times)")
	pflag.BoolVarP(&help, "help", "h", false, "Show this help message")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-j N] child [args..]\nQueue-buffered round-robin line scheduler\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	argv := pflag.Args()
	if help || len(argv) == 0 {
		pflag.Usage()
		os.Exit(1)
	}

	os.Exit(run(l, workers, argv, envs))
}

func run(l *slog.Logger, workers int, argv, envs []string) int {
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
	pcfg, err := config.Parallel(envs...)
	if err != nil {
		log.Error(fmt.Sprintf("error: %s", err.Error()))
		return 1
	}
	if workers <= 0 {
		workers = pcfg.Workers
	}

	ctx, cancelFn := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelFn()
	defer otel.Setup(ctx, log, cfg.OtelCollectorGRPCEndpoint, cfg.OtelAttributes)()

	m, err := parallel.NewMetrics("qparallel")
	if err != nil {
		log.Warn(fmt.Sprintf("metrics disabled: %s", err.Error()))
	}

	p := parallel.NewQueuePipeline(log, workers, argv,
		parallel.WithQueueDepth(pcfg.QueueDepth),
		parallel.WithMetrics(m),
	)
	if err := p.Run(ctx, os.Stdin, os.Stdout); err != nil {
		log.Error(fmt.Sprintf("error: %s", err.Error()))
		var cerr *parallel.ChildError
		if errors.As(err, &cerr) {
			return cerr.Code
		}
		return 1
	}
	return 0
}
