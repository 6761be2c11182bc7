package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/goto/corpus-preprocess/internal/config"
	xio "github.com/goto/corpus-preprocess/internal/io"
	"github.com/goto/corpus-preprocess/internal/logger"
	"github.com/goto/corpus-preprocess/internal/sortmerge"
)

// merge-sort merges already-sorted inputs into one sorted stream under a
// sort-key grammar compatible with the classical field-range syntax.
func main() {
	l := logger.NewDefaultLogger()

	var keys []string
	var delimiter string
	var output string
	var filelist string
	var envs []string
	var help bool
	pflag.StringArrayVarP(&keys, "key", "k", []string{"1,"}, "Column range(s) to sort by, e.g. 2,3nr. Can be given multiple times.")
	pflag.StringVarP(&delimiter, "field-separator", "t", "\\t", "Field separator")
	pflag.StringVarP(&output, "output", "o", "-", "Output file")
	pflag.StringVarP(&filelist, "files-from", "f", "", "Read file names from separate file (or '-' for stdin)")
	pflag.StringArrayVar(&envs, "env", []string{}, "Pass env as argument (can be used multiple times)")
	pflag.BoolVarP(&help, "help", "h", false, "Produce help message")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-k key] [-t delim] [-o out] [-f filelist] [file ...]\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if help {
		pflag.Usage()
		os.Exit(1)
	}

	os.Exit(run(l, keys, delimiter, output, filelist, pflag.Args(), envs))
}

func run(l *slog.Logger, keys []string, delimiter, output, filelist string, files, envs []string) int {
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

	mcfg, err := config.MergeSort(envs...)
	if err != nil {
		log.Error(fmt.Sprintf("error: %s", err.Error()))
		return 1
	}
	delim := mcfg.Delimiter
	if pflag.CommandLine.Changed("field-separator") {
		if delim, err = config.ParseDelimiter(delimiter); err != nil {
			log.Error(fmt.Sprintf("error: %s", err.Error()))
			return 1
		}
	}

	ranges := make([]sortmerge.FieldRange, 0, len(keys))
	for _, key := range keys {
		r, err := sortmerge.ParseRange(key)
		if err != nil {
			log.Error(fmt.Sprintf("error: %s", err.Error()))
			return 1
		}
		ranges = append(ranges, r)
	}

	if filelist != "" {
		listed, err := readFileList(filelist)
		if err != nil {
			log.Error(fmt.Sprintf("error: %s", err.Error()))
			return 1
		}
		files = append(files, listed...)
	}

	m := sortmerge.NewMerger(sortmerge.LineParser{Ranges: ranges, Delimiter: delim})
	defer m.Close()
	for _, name := range files {
		if err := m.AddFile(name); err != nil {
			log.Error(fmt.Sprintf("error: %s", err.Error()))
			return 1
		}
	}

	if output == "-" {
		if err := m.Run(os.Stdout); err != nil {
			log.Error(fmt.Sprintf("error: %s", err.Error()))
			return 1
		}
		return 0
	}
	w, err := xio.NewWriteHandler(output)
	if err != nil {
		log.Error(fmt.Sprintf("error: %s", err.Error()))
		return 1
	}
	if err := m.Run(w); err != nil {
		log.Error(fmt.Sprintf("error: %s", err.Error()))
		return 1
	}
	if err := w.Flush(); err != nil {
		log.Error(fmt.Sprintf("error: %s", err.Error()))
		return 1
	}
	return 0
}

// readFileList reads one file name per line, skipping blanks.
func readFileList(path string) ([]string, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	lr := xio.NewLineReader(r)
	var names []string
	for {
		line, err := lr.ReadLine()
		if err == io.EOF {
			return names, nil
		}
		if err != nil {
			return nil, err
		}
		if len(line) > 0 {
			names = append(names, string(line))
		}
	}
}
