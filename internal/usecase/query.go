package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"topicidx/internal/domain"
	"topicidx/internal/metrics"
	"topicidx/internal/port"
)

// QueryOptions configure a QueryUseCase.
type QueryOptions struct {
	SearchAlgorithm   string
	SearchSize        int
	SimilarTopicCount int
	SimilarDocCount   int
	SimilarityFloor   float64
	ListLimit         int
	SortableFields    []string
	FilterableFields  []string
	TopRegion         []string
	BottomRegion      []string
}

// DisplayRegions lists the metadata fields shown above and below a document.
type DisplayRegions struct {
	Top    []string `json:"top"`
	Bottom []string `json:"bottom"`
}

// QueryUseCase answers client queries by composing the topic model with the
// keyword searcher and the metadata store.
type QueryUseCase struct {
	topics   *TopicUseCase
	searcher port.KeywordSearcher
	store    port.MetadataStore
	opts     QueryOptions
	metrics  *metrics.Metrics
}

// NewQueryUseCase creates a new query use case.
func NewQueryUseCase(
	topics *TopicUseCase,
	searcher port.KeywordSearcher,
	store port.MetadataStore,
	opts QueryOptions,
	m *metrics.Metrics,
) *QueryUseCase {
	if opts.SearchAlgorithm == "" {
		opts.SearchAlgorithm = domain.AlgorithmBM25
	}
	return &QueryUseCase{
		topics:   topics,
		searcher: searcher,
		store:    store,
		opts:     opts,
		metrics:  m,
	}
}

// Search runs a keyword search and hydrates the ranked identities. Without a
// sort field the search rank order is kept.
func (u *QueryUseCase) Search(ctx context.Context, query string, opts domain.SearchOptions) (records []domain.Record, err error) {
	defer u.observe("search", time.Now(), &err)

	algorithm := opts.Algorithm
	if algorithm == "" {
		algorithm = u.opts.SearchAlgorithm
	}
	size := opts.Size
	if size <= 0 {
		size = u.opts.SearchSize
	}

	ids, err := u.searcher.Search(ctx, algorithm, size, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search %q: %w", query, err)
	}
	return u.hydrate(ctx, ids, opts.LookupOptions)
}

// TopicDocuments returns the hydrated members of topicID.
func (u *QueryUseCase) TopicDocuments(ctx context.Context, topicID int, opts domain.LookupOptions) (records []domain.Record, err error) {
	defer u.observe("topic_documents", time.Now(), &err)

	ids, err := u.topics.DocumentIDsInTopic(topicID)
	if err != nil {
		return nil, err
	}
	return u.hydrate(ctx, ids, opts)
}

// SimilarTopics returns labels of the topics closest to query, best first.
// k <= 0 uses the configured count.
func (u *QueryUseCase) SimilarTopics(ctx context.Context, query string, k int) (labels []domain.TopicLabel, err error) {
	defer u.observe("similar_topics", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = u.opts.SimilarTopicCount
	}
	scored, err := u.topics.FindSimilarTopics(query, k, u.opts.SimilarityFloor)
	if err != nil {
		return nil, err
	}
	return u.topics.Labels(topicIDs(scored))
}

// SimilarDocuments returns hydrated documents sharing neighboring topics
// with identity.
func (u *QueryUseCase) SimilarDocuments(ctx context.Context, identity string) (records []domain.Record, err error) {
	defer u.observe("similar_documents", time.Now(), &err)

	ids, err := u.topics.SimilarDocuments(identity, u.opts.SimilarDocCount)
	if err != nil {
		return nil, err
	}
	return u.hydrate(ctx, ids, domain.LookupOptions{})
}

// SimilarTopicsForDocument returns labels of topics close to the topic of
// identity, not including it.
func (u *QueryUseCase) SimilarTopicsForDocument(ctx context.Context, identity string) (labels []domain.TopicLabel, err error) {
	defer u.observe("similar_topics_for_document", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scored, err := u.topics.SimilarTopicsForDocument(identity, u.opts.SimilarTopicCount)
	if err != nil {
		return nil, err
	}
	return u.topics.Labels(topicIDs(scored))
}

// AllTopicLabels returns a label for every assigned topic, ascending.
func (u *QueryUseCase) AllTopicLabels(ctx context.Context) (labels []domain.TopicLabel, err error) {
	defer u.observe("all_topic_labels", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return u.topics.AllTopicLabels()
}

// Document returns one hydrated record.
func (u *QueryUseCase) Document(ctx context.Context, id string) (record domain.Record, err error) {
	defer u.observe("document", time.Now(), &err)

	record, err = u.store.Get(ctx, id)
	if err != nil {
		return domain.Record{}, wrapStore(err)
	}
	return record, nil
}

// Documents lists stored records, at most the configured list limit. A
// non-positive limit means the configured list limit.
func (u *QueryUseCase) Documents(ctx context.Context, limit int) (records []domain.Record, err error) {
	defer u.observe("documents", time.Now(), &err)

	if u.opts.ListLimit <= 0 {
		return nil, fmt.Errorf("%w: list limit must be positive, got %d", domain.ErrInvalidInput, u.opts.ListLimit)
	}
	if limit <= 0 || limit > u.opts.ListLimit {
		limit = u.opts.ListLimit
	}
	records, err = u.store.List(ctx, limit)
	if err != nil {
		return nil, wrapStore(err)
	}
	return records, nil
}

// SortableFields lists the fields accepted as a sort key.
func (u *QueryUseCase) SortableFields() []string {
	return append([]string(nil), u.opts.SortableFields...)
}

// FilterableFields lists the fields accepted as a filter key.
func (u *QueryUseCase) FilterableFields() []string {
	return append([]string(nil), u.opts.FilterableFields...)
}

// DisplayRegions returns the document layout.
func (u *QueryUseCase) DisplayRegions() DisplayRegions {
	return DisplayRegions{
		Top:    append([]string(nil), u.opts.TopRegion...),
		Bottom: append([]string(nil), u.opts.BottomRegion...),
	}
}

func (u *QueryUseCase) hydrate(ctx context.Context, ids []string, opts domain.LookupOptions) ([]domain.Record, error) {
	if len(ids) == 0 {
		return []domain.Record{}, nil
	}
	records, err := u.store.Lookup(ctx, ids, opts)
	if err != nil {
		return nil, wrapStore(err)
	}
	return records, nil
}

func (u *QueryUseCase) observe(operation string, start time.Time, err *error) {
	u.metrics.ObserveQuery(operation, start, *err)
}

// wrapStore marks store failures as dependency failures, keeping the typed
// query errors intact.
func wrapStore(err error) error {
	if isQueryError(err) {
		return err
	}
	return fmt.Errorf("%w: metadata store: %v", domain.ErrDependencyUnavailable, err)
}

func isQueryError(err error) bool {
	for _, target := range []error{domain.ErrNotFound, domain.ErrInvalidInput, context.Canceled, context.DeadlineExceeded} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func topicIDs(scored []domain.ScoredTopic) []int {
	ids := make([]int, len(scored))
	for i, s := range scored {
		ids[i] = s.ID
	}
	return ids
}
