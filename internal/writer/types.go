package writer

import "fmt"

// Mode selects how a frame is persisted.
type Mode int

const (
	// ModeAppend upserts rows on the primary key.
	ModeAppend Mode = iota
	// ModeReplace empties the table and bulk loads the frame.
	ModeReplace
)

func (m Mode) String() string {
	switch m {
	case ModeAppend:
		return "append"
	case ModeReplace:
		return "replace"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// WriterConfig contains configuration for table writers.
type WriterConfig struct {
	// BatchSize is the number of upserts sent per pgx.Batch. Whole-write
	// retries are configured on the store.
	BatchSize int
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize: 1000,
	}
}

// WriterMetrics holds metrics for a writer.
type WriterMetrics struct {
	Inserts int64 // append rows that were new
	Updates int64 // append rows that replaced an existing key
	Copied  int64 // rows bulk loaded in replace mode
	Batches int64
	Errors  int64 // writes that failed after every retry
	Retries int64
}
