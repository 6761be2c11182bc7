package parallel

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/goto/corpus-preprocess/internal/otel"
)

// Metrics carries the pipeline instruments. With no metric SDK configured the
// global provider is a no-op, so recording is always safe.
type Metrics struct {
	records      metric.Int64Counter
	recordBytes  metric.Int64Counter
	skippedBytes metric.Int64Counter
}

func NewMetrics(tool string) (*Metrics, error) {
	meter := otel.GetMeter(tool)
	m := &Metrics{}
	var err error
	if m.records, err = meter.Int64Counter(otel.PipelineRecords,
		metric.WithDescription("The total number of records processed"), metric.WithUnit("1")); err != nil {
		return nil, err
	}
	if m.recordBytes, err = meter.Int64Counter(otel.PipelineRecordBytes,
		metric.WithDescription("The total number of record bytes processed"), metric.WithUnit("bytes")); err != nil {
		return nil, err
	}
	if m.skippedBytes, err = meter.Int64Counter(otel.PipelineSkippedBytes,
		metric.WithDescription("The total number of bytes skipped during recovery"), metric.WithUnit("bytes")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) Record(ctx context.Context, bytes int64) {
	if m == nil {
		return
	}
	m.records.Add(ctx, 1)
	m.recordBytes.Add(ctx, bytes)
}

func (m *Metrics) Skipped(ctx context.Context, bytes int64) {
	if m == nil {
		return
	}
	m.skippedBytes.Add(ctx, bytes)
}
