package warcpipe

import (
	"sync/atomic"

	"github.com/goccy/go-json"
)

// Stats counts what the pipeline read, skipped, and wrote, so a run can be
// audited afterwards. All counters are updated concurrently by readers and
// collectors.
type Stats struct {
	recordsRead    atomic.Int64
	recordsSkipped atomic.Int64
	bytesSkipped   atomic.Int64
	recordsWritten atomic.Int64
	bytesWritten   atomic.Int64
}

type statsSnapshot struct {
	RecordsRead    int64 `json:"records_read"`
	RecordsSkipped int64 `json:"records_skipped"`
	BytesSkipped   int64 `json:"bytes_skipped"`
	RecordsWritten int64 `json:"records_written"`
	BytesWritten   int64 `json:"bytes_written"`
}

// Summary renders the counters as a JSON object.
func (s *Stats) Summary() ([]byte, error) {
	return json.Marshal(statsSnapshot{
		RecordsRead:    s.recordsRead.Load(),
		RecordsSkipped: s.recordsSkipped.Load(),
		BytesSkipped:   s.bytesSkipped.Load(),
		RecordsWritten: s.recordsWritten.Load(),
		BytesWritten:   s.bytesWritten.Load(),
	})
}
