package otel

const (
	InstrumentationVersion = "0.0.1"

	PipelineRecords      = "corpus_preprocess_pipeline_records"       // counter
	PipelineRecordBytes  = "corpus_preprocess_pipeline_record_bytes"  // counter
	PipelineSkippedBytes = "corpus_preprocess_pipeline_skipped_bytes" // counter
	PipelineWorkers      = "corpus_preprocess_pipeline_workers"       // gauge
)
