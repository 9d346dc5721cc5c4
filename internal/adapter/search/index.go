// Package search serves ranked keyword search over the corpus with bleve,
// exposed to other processes through a small JSON-RPC 2.0 server.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	index "github.com/blevesearch/bleve_index_api"

	"topicidx/internal/domain"
)

const (
	batchSize = 1000
	textField = "text"
)

// Document is one searchable document.
type Document struct {
	ID   string
	Text string
}

type bleveDocument struct {
	Text string `json:"text"`
}

// Index holds one bleve index per scoring model.
type Index struct {
	mu      sync.RWMutex
	dir     string
	indexes map[string]bleve.Index
	logger  *slog.Logger
}

// scoringModel names one bleve index: its directory and its scoring model.
type scoringModel struct {
	dir     string
	scoring string
}

var subdirs = map[string]scoringModel{
	domain.AlgorithmBM25:  {dir: "bm25", scoring: index.BM25Scoring},
	domain.AlgorithmTFIDF: {dir: "tfidf", scoring: index.TFIDFScoring},
}

func newMapping(scoring string) *mapping.IndexMappingImpl {
	m := bleve.NewIndexMapping()
	m.ScoringModel = scoring

	doc := bleve.NewDocumentMapping()
	field := bleve.NewTextFieldMapping()
	field.Store = false
	field.IncludeTermVectors = false
	doc.AddFieldMappingsAt(textField, field)
	m.DefaultMapping = doc
	return m
}

// BuildIndex recreates both indexes under dir from docs. An empty dir builds
// in-memory indexes.
func BuildIndex(ctx context.Context, dir string, docs []Document, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	idx := &Index{dir: dir, indexes: make(map[string]bleve.Index, len(subdirs)), logger: logger}

	for algorithm, model := range subdirs {
		var (
			bi  bleve.Index
			err error
		)
		if dir == "" {
			bi, err = bleve.NewMemOnly(newMapping(model.scoring))
		} else {
			path := filepath.Join(dir, model.dir)
			if err := os.RemoveAll(path); err != nil {
				idx.Close()
				return nil, fmt.Errorf("failed to clear %s index: %w", model.dir, err)
			}
			if err := os.MkdirAll(dir, 0755); err != nil {
				idx.Close()
				return nil, fmt.Errorf("failed to create index directory: %w", err)
			}
			bi, err = bleve.New(path, newMapping(model.scoring))
		}
		if err != nil {
			idx.Close()
			return nil, fmt.Errorf("failed to create %s index: %w", model.dir, err)
		}
		idx.indexes[algorithm] = bi

		if err := indexBatches(ctx, bi, docs); err != nil {
			idx.Close()
			return nil, err
		}
	}

	logger.Info("search_index_built",
		slog.String("dir", dir),
		slog.Int("documents", len(docs)))
	return idx, nil
}

func indexBatches(ctx context.Context, bi bleve.Index, docs []Document) error {
	batch := bi.NewBatch()
	for i, doc := range docs {
		if err := batch.Index(doc.ID, bleveDocument{Text: doc.Text}); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
		if batch.Size() >= batchSize || i == len(docs)-1 {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := bi.Batch(batch); err != nil {
				return fmt.Errorf("failed to execute batch: %w", err)
			}
			batch.Reset()
		}
	}
	return nil
}

// OpenIndex opens indexes previously written by BuildIndex.
func OpenIndex(dir string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	idx := &Index{dir: dir, indexes: make(map[string]bleve.Index, len(subdirs)), logger: logger}
	for algorithm, model := range subdirs {
		bi, err := bleve.Open(filepath.Join(dir, model.dir))
		if err != nil {
			idx.Close()
			return nil, fmt.Errorf("failed to open %s index (run ingest first): %w", model.dir, err)
		}
		idx.indexes[algorithm] = bi
	}
	return idx, nil
}

// Search returns up to size document ids ranked by algorithm.
func (i *Index) Search(ctx context.Context, algorithm string, size int, query string) ([]string, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	bi, ok := i.indexes[algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: unknown search algorithm %q", domain.ErrInvalidInput, algorithm)
	}
	if strings.TrimSpace(query) == "" || size <= 0 {
		return []string{}, nil
	}

	q := bleve.NewMatchQuery(query)
	q.SetField(textField)

	req := bleve.NewSearchRequest(q)
	req.Size = size

	result, err := bi.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// DocCount returns the number of indexed documents.
func (i *Index) DocCount() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	bi, ok := i.indexes[domain.AlgorithmBM25]
	if !ok {
		return 0, fmt.Errorf("index is closed")
	}
	return bi.DocCount()
}

// Close closes every open index.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	var firstErr error
	for algorithm, bi := range i.indexes {
		if err := bi.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(i.indexes, algorithm)
	}
	return firstErr
}
