package port

import "topicidx/internal/domain"

// RecordReader yields validated ingestion records.
type RecordReader interface {
	// Read streams records to fn. Malformed records are skipped and counted.
	Read(fn func(domain.IngestRecord) error) (ReadStats, error)
}

// ReadStats summarizes one ingestion read.
type ReadStats struct {
	Files   int
	Lines   int
	Skipped int
}
