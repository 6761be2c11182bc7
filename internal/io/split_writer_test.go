package io

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goto/corpus-preprocess/internal/logger"
)

func TestParseNameTemplate(t *testing.T) {
	tpl, err := ParseNameTemplate("out-XXXX.warc.gz")
	require.NoError(t, err)
	assert.Equal(t, "out-0000.warc.gz", tpl.Format(0))
	assert.Equal(t, "out-0042.warc.gz", tpl.Format(42))

	tpl, err = ParseNameTemplate("shardXX")
	require.NoError(t, err)
	assert.Equal(t, "shard07", tpl.Format(7))

	_, err = ParseNameTemplate("no-placeholder.gz")
	assert.Error(t, err)
}

func TestSplitWriterRollover(t *testing.T) {
	dir := t.TempDir()
	tpl, err := ParseNameTemplate(filepath.Join(dir, "part-XX"))
	require.NoError(t, err)

	w := NewSplitWriter(logger.NewDefaultLogger(), tpl, 10)
	records := [][]byte{
		bytes.Repeat([]byte("a"), 6),
		bytes.Repeat([]byte("b"), 6),
		bytes.Repeat([]byte("c"), 4),
		bytes.Repeat([]byte("d"), 6),
	}
	for _, rec := range records {
		_, err := w.Write(rec)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	// No record is ever split across files, and no file exceeds the limit.
	var rejoined []byte
	for i := 0; ; i++ {
		data, err := os.ReadFile(tpl.Format(i))
		if err != nil {
			break
		}
		assert.LessOrEqual(t, len(data), 10)
		rejoined = append(rejoined, data...)
	}
	assert.Equal(t, []byte("aaaaaabbbbbbccccdddddd"), rejoined)
}

func TestSplitWriterOversizeRecordGetsOwnFile(t *testing.T) {
	dir := t.TempDir()
	tpl, err := ParseNameTemplate(filepath.Join(dir, "big-X"))
	require.NoError(t, err)

	w := NewSplitWriter(logger.NewDefaultLogger(), tpl, 4)
	_, err = w.Write([]byte("tiny"))
	require.NoError(t, err)
	_, err = w.Write(bytes.Repeat([]byte("z"), 9))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	first, err := os.ReadFile(tpl.Format(0))
	require.NoError(t, err)
	second, err := os.ReadFile(tpl.Format(1))
	require.NoError(t, err)
	assert.Equal(t, []byte("tiny"), first)
	assert.Equal(t, bytes.Repeat([]byte("z"), 9), second)
}

func TestLineReaderLongLines(t *testing.T) {
	long := bytes.Repeat([]byte("x"), 200_000)
	input := append(append([]byte("short\n"), long...), []byte("\nlast")...)
	r := NewLineReader(bytes.NewReader(input))

	line, err := r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, []byte("short"), line)

	line, err = r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, long, line)

	line, err = r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, []byte("last"), line)

	_, err = r.ReadLine()
	assert.Error(t, err)
}
