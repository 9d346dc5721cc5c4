package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"topicidx/internal/adapter/search"
	"topicidx/internal/domain"
	"topicidx/internal/metrics"
	"topicidx/internal/port"
)

// IngestUseCase loads a document feed into the metadata store and rebuilds the
// keyword search index.
type IngestUseCase struct {
	reader       port.RecordReader
	store        port.MetadataStore
	indexDir     string
	searchFields []string
	logger       *slog.Logger
	metrics      *metrics.Metrics
	progress     func(records int)
}

// NewIngestUseCase creates a new ingest use case. An empty indexDir builds the
// search index in memory only.
func NewIngestUseCase(
	reader port.RecordReader,
	store port.MetadataStore,
	indexDir string,
	searchFields []string,
	logger *slog.Logger,
	m *metrics.Metrics,
) *IngestUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestUseCase{
		reader:       reader,
		store:        store,
		indexDir:     indexDir,
		searchFields: searchFields,
		logger:       logger,
		metrics:      m,
	}
}

// OnProgress registers a callback run after each accepted record.
func (u *IngestUseCase) OnProgress(fn func(records int)) {
	u.progress = fn
}

// IngestResult contains the results of an ingestion run.
type IngestResult struct {
	Files   int `json:"files"`
	Lines   int `json:"lines"`
	Stored  int `json:"stored"`
	Skipped int `json:"skipped"`
	Indexed int `json:"indexed"`
}

// Ingest reads every record, replaces the metadata table, verifies that the
// stored rows match what was read, then rebuilds the search index.
func (u *IngestUseCase) Ingest(ctx context.Context) (*IngestResult, error) {
	var records []domain.IngestRecord
	stats, err := u.reader.Read(func(rec domain.IngestRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		records = append(records, rec)
		if u.progress != nil {
			u.progress(len(records))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}

	stored, err := u.store.Rebuild(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("failed to store documents: %w", err)
	}
	if err := u.verify(ctx, records, stored); err != nil {
		return nil, err
	}

	docs := make([]search.Document, len(records))
	for i, rec := range records {
		docs[i] = search.Document{ID: rec.ID, Text: u.searchText(rec)}
	}
	idx, err := search.BuildIndex(ctx, u.indexDir, docs, u.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build search index: %w", err)
	}
	if err := idx.Close(); err != nil {
		return nil, fmt.Errorf("failed to close search index: %w", err)
	}

	result := &IngestResult{
		Files:   stats.Files,
		Lines:   stats.Lines,
		Stored:  stored,
		Skipped: stats.Skipped,
		Indexed: len(docs),
	}
	u.metrics.Ingested(result.Stored, result.Skipped)
	u.logger.Info("ingest_completed",
		slog.Int("files", result.Files),
		slog.Int("lines", result.Lines),
		slog.Int("stored", result.Stored),
		slog.Int("skipped", result.Skipped))
	return result, nil
}

// verify checks the stored row count and identity set against records.
func (u *IngestUseCase) verify(ctx context.Context, records []domain.IngestRecord, stored int) error {
	if stored != len(records) {
		return fmt.Errorf("stored %d documents, read %d", stored, len(records))
	}

	got, err := u.store.IDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stored documents: %w", err)
	}
	want := make([]string, len(records))
	for i, rec := range records {
		want[i] = rec.ID
	}
	sort.Strings(want)

	if len(got) != len(want) {
		return fmt.Errorf("table holds %d documents, read %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("stored document ids differ from the feed at %q", want[i])
		}
	}
	return nil
}

func (u *IngestUseCase) searchText(rec domain.IngestRecord) string {
	parts := []string{rec.Text}
	for _, field := range u.searchFields {
		if v, ok := rec.Values[field]; ok && v != nil {
			if s := fmt.Sprint(v); s != "" && s != rec.Text {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, " ")
}
