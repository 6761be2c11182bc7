package parallel

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goto/corpus-preprocess/internal/logger"
)

func lines(n int) string {
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "%d\n", i)
	}
	return sb.String()
}

func TestSlotPipelineIdentity(t *testing.T) {
	input := "1\n2\n3\n4\n"
	p := NewSlotPipeline(logger.NewDefaultLogger(), 3, []string{"cat"})

	var out bytes.Buffer
	err := p.Run(context.Background(), strings.NewReader(input), &out)
	require.NoError(t, err)
	assert.Equal(t, input, out.String())
}

func TestSlotPipelinePreservesOrderWithSlowWorkers(t *testing.T) {
	input := lines(50)
	// Workers that stall for a varying moment per line still may not reorder
	// the output.
	child := []string{"sh", "-c", `while read l; do sleep 0.0$(((l % 3) + 1)); echo "$l"; done`}
	p := NewSlotPipeline(logger.NewDefaultLogger(), 4, child)

	var out bytes.Buffer
	err := p.Run(context.Background(), strings.NewReader(input), &out)
	require.NoError(t, err)
	assert.Equal(t, input, out.String())
}

func TestSlotPipelineManyLines(t *testing.T) {
	input := lines(1000)
	p := NewSlotPipeline(logger.NewDefaultLogger(), 4, []string{"cat"})

	var out bytes.Buffer
	err := p.Run(context.Background(), strings.NewReader(input), &out)
	require.NoError(t, err)
	assert.Equal(t, input, out.String())
	assert.Equal(t, 1000, strings.Count(out.String(), "\n"))
}

func TestSlotPipelineKeepsEmptyLines(t *testing.T) {
	input := "a\n\nb\n\n"
	p := NewSlotPipeline(logger.NewDefaultLogger(), 2, []string{"cat"})

	var out bytes.Buffer
	err := p.Run(context.Background(), strings.NewReader(input), &out)
	require.NoError(t, err)
	assert.Equal(t, input, out.String())
}

func TestSlotPipelineChildExitStatus(t *testing.T) {
	input := lines(10)
	p := NewSlotPipeline(logger.NewDefaultLogger(), 2, []string{"sh", "-c", "cat; exit 3"})

	var out bytes.Buffer
	err := p.Run(context.Background(), strings.NewReader(input), &out)
	require.Error(t, err)
	var cerr *ChildError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, 3, cerr.Code)
	assert.Equal(t, input, out.String())
}

func TestSlotPipelineLaunchFailure(t *testing.T) {
	p := NewSlotPipeline(logger.NewDefaultLogger(), 2, []string{"/nonexistent-binary-for-test"})
	var out bytes.Buffer
	err := p.Run(context.Background(), strings.NewReader("x\n"), &out)
	assert.Error(t, err)
}

func TestQueuePipelineIdentity(t *testing.T) {
	input := lines(200)
	p := NewQueuePipeline(logger.NewDefaultLogger(), 3, []string{"cat"})

	var out bytes.Buffer
	err := p.Run(context.Background(), strings.NewReader(input), &out)
	require.NoError(t, err)
	assert.Equal(t, input, out.String())
}

func TestQueuePipelineChildExitStatus(t *testing.T) {
	p := NewQueuePipeline(logger.NewDefaultLogger(), 2, []string{"sh", "-c", "cat; exit 2"})

	var out bytes.Buffer
	err := p.Run(context.Background(), strings.NewReader(lines(8)), &out)
	require.Error(t, err)
	var cerr *ChildError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, 2, cerr.Code)
}

func TestRoundRobinPipelineIdentity(t *testing.T) {
	input := lines(100)
	p := NewRoundRobinPipeline(logger.NewDefaultLogger(), 3, []string{"cat"})

	var out bytes.Buffer
	err := p.Run(context.Background(), strings.NewReader(input), &out)
	require.NoError(t, err)
	assert.Equal(t, input, out.String())
}

func TestRoundRobinPipelineSingleWorker(t *testing.T) {
	input := "only\none\nworker\n"
	p := NewRoundRobinPipeline(logger.NewDefaultLogger(), 1, []string{"cat"})

	var out bytes.Buffer
	err := p.Run(context.Background(), strings.NewReader(input), &out)
	require.NoError(t, err)
	assert.Equal(t, input, out.String())
}

func TestChildErrorMessage(t *testing.T) {
	err := &ChildError{Pid: 42, Code: 3}
	assert.Contains(t, err.Error(), "42")
	assert.Contains(t, err.Error(), "3")
}
