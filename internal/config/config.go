package config

// Config is the configuration shared by every tool.
type Config struct {
	LogLevel                  string `env:"LOG_LEVEL" envDefault:"INFO"`
	OtelCollectorGRPCEndpoint string `env:"OTEL_COLLECTOR_GRPC_ENDPOINT"`
	OtelAttributes            string `env:"OTEL_ATTRIBUTES"`
	BufferSize                int    `env:"BUFFER_SIZE" envDefault:"32768"`
	ReadBlockSize             int    `env:"READ_BLOCK_SIZE" envDefault:"16384"`
}

// NewConfig parses the environment variables and returns the common
// configuration.
func NewConfig(envs ...string) (*Config, error) {
	return parse[Config](envs...)
}

// ParallelConfig is the configuration for the line pipeline tools. Workers 0
// means one worker per CPU.
type ParallelConfig struct {
	Workers    int `env:"PARALLEL__WORKERS" envDefault:"0"`
	QueueDepth int `env:"PARALLEL__QUEUE_DEPTH" envDefault:"0"`
}

// Parallel parses the environment variables and returns the pipeline
// configuration.
func Parallel(envs ...string) (*ParallelConfig, error) {
	return parse[ParallelConfig](envs...)
}

// WarcConfig is the configuration for warc-parallel.
type WarcConfig struct {
	SizeLimit        int64 `env:"WARC__SIZE_LIMIT" envDefault:"20971520"`
	InputConcurrency int   `env:"WARC__INPUT_CONCURRENCY" envDefault:"0"`
}

// Warc parses the environment variables and returns the WARC pipeline
// configuration.
func Warc(envs ...string) (*WarcConfig, error) {
	return parse[WarcConfig](envs...)
}

// MergeSortConfig is the configuration for merge-sort.
type MergeSortConfig struct {
	Delimiter byte `env:"MERGESORT__DELIMITER" envDefault:"\\t"`
}

// MergeSort parses the environment variables and returns the merge-sort
// configuration.
func MergeSort(envs ...string) (*MergeSortConfig, error) {
	return parse[MergeSortConfig](envs...)
}
