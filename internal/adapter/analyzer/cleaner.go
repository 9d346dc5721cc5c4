package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"topicidx/internal/domain"
)

// ProgressFunc is called after each chunk completes. Calls are serialized.
type ProgressFunc func(done, total int)

// Cleaner cleans a corpus on a fixed pool of workers.
type Cleaner struct {
	tokenizer *Tokenizer
	workers   int
	logger    *slog.Logger
	progress  ProgressFunc
}

// NewCleaner creates a Cleaner. workers <= 0 uses runtime.NumCPU().
func NewCleaner(tokenizer *Tokenizer, workers int, logger *slog.Logger) *Cleaner {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{
		tokenizer: tokenizer,
		workers:   workers,
		logger:    logger,
	}
}

// OnProgress registers a progress callback.
func (c *Cleaner) OnProgress(fn ProgressFunc) {
	c.progress = fn
}

// Workers returns the pool size.
func (c *Cleaner) Workers() int {
	return c.workers
}

// Clean cleans docs in parallel and returns the surviving documents in input
// order. Invalid documents are dropped. sample > 0 keeps only the first sample
// cleaned documents.
func (c *Cleaner) Clean(ctx context.Context, docs []domain.RawDocument, sample int) ([]domain.CleanedDocument, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	chunks := Partition(len(docs), c.workers)
	results := make([][]domain.CleanedDocument, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	var (
		mu   sync.Mutex
		done int
	)

	for i, span := range chunks {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("cleaning chunk [%d,%d): %v", span.Start, span.End, r)
				}
			}()
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = c.cleanChunk(docs[span.Start:span.End], span.Start)

			if c.progress != nil {
				mu.Lock()
				done++
				c.progress(done, len(chunks))
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []domain.CleanedDocument
	for _, r := range results {
		merged = append(merged, r...)
	}

	cleaned := RestoreOrder(merged)
	if dropped := len(docs) - len(cleaned); dropped > 0 {
		c.logger.Warn("corpus_documents_dropped",
			slog.Int("dropped", dropped),
			slog.Int("total", len(docs)))
	}

	if sample > 0 && sample < len(cleaned) {
		cleaned = cleaned[:sample]
	}
	return cleaned, nil
}

// cleanChunk cleans one contiguous chunk. offset is the position of the
// chunk's first document in the full input.
func (c *Cleaner) cleanChunk(docs []domain.RawDocument, offset int) []domain.CleanedDocument {
	out := make([]domain.CleanedDocument, 0, len(docs))
	for i, doc := range docs {
		if reason := invalidReason(doc); reason != "" {
			c.logger.Debug("corpus_document_skipped",
				slog.String("id", doc.ID),
				slog.Int("position", offset+i),
				slog.String("reason", reason))
			continue
		}
		out = append(out, domain.CleanedDocument{
			ID:       doc.ID,
			Text:     c.tokenizer.Clean(doc.Text),
			Position: offset + i,
		})
	}
	return out
}

func invalidReason(doc domain.RawDocument) string {
	switch {
	case strings.TrimSpace(doc.ID) == "":
		return "missing id"
	case !utf8.ValidString(doc.Text):
		return "invalid utf-8"
	case strings.TrimSpace(doc.Text) == "":
		return "empty text"
	}
	return ""
}

// Span is a half-open range of corpus positions.
type Span struct {
	Start int
	End   int
}

// Partition splits n items into at most parts contiguous spans of
// ceil(n/parts) items each.
func Partition(n, parts int) []Span {
	if n <= 0 {
		return nil
	}
	if parts <= 0 {
		parts = 1
	}
	size := (n + parts - 1) / parts
	spans := make([]Span, 0, parts)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		spans = append(spans, Span{Start: start, End: end})
	}
	return spans
}

// RestoreOrder sorts cleaned documents by their original position. The
// result of a parallel phase must always pass through here before indices
// are assigned.
func RestoreOrder(docs []domain.CleanedDocument) []domain.CleanedDocument {
	out := make([]domain.CleanedDocument, len(docs))
	copy(out, docs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Position < out[j].Position
	})
	return out
}
