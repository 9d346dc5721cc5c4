package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"topicidx/internal/adapter/docmap"
	"topicidx/internal/adapter/store"
	"topicidx/internal/domain"
	"topicidx/internal/metrics"
	"topicidx/internal/port"
)

// Model lifecycle states.
const (
	StateUnloaded = "UNLOADED"
	StateReady    = "READY"
)

// neighborsPerTerm is how many similar topics each seed term contributes
// when expanding a document's neighborhood.
const neighborsPerTerm = 1

// generation is one trained or loaded model with the index mapping and
// assignment vector that belong to it. It is never mutated.
type generation struct {
	model       port.TopicModel
	docs        *docmap.Map
	assignments []int
	topics      []domain.Topic
	topicIndex  map[int]int
	info        domain.ArtifactInfo
}

func newGeneration(model port.TopicModel, docs *docmap.Map, info domain.ArtifactInfo) (*generation, error) {
	assignments := model.Assignments()
	if len(assignments) != docs.Len() {
		return nil, fmt.Errorf("%w: model assigned %d documents, corpus has %d",
			domain.ErrTraining, len(assignments), docs.Len())
	}
	topics := model.Topics()
	index := make(map[int]int, len(topics))
	for i, t := range topics {
		index[t.ID] = i
	}
	return &generation{
		model:       model,
		docs:        docs,
		assignments: assignments,
		topics:      topics,
		topicIndex:  index,
		info:        info,
	}, nil
}

// TopicOptions configure a TopicUseCase.
type TopicOptions struct {
	// SimilarityFloor is the strict lower bound on similar-topic scores.
	SimilarityFloor float64
	// ConfigHash is stored with persisted artifacts.
	ConfigHash string
	// Stale explains why a loaded artifact no longer matches the current
	// settings. A non-empty reason is logged, not fatal.
	Stale func(a *store.Artifact) string
}

// TopicUseCase owns the topic model lifecycle and the topic queries that
// compose the model with the index mapping.
type TopicUseCase struct {
	backend   port.TopicBackend
	tokenizer port.Tokenizer
	opts      TopicOptions
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu  sync.RWMutex
	gen *generation
}

// NewTopicUseCase creates a new topic use case in the UNLOADED state.
// tokenizer cleans free-text queries before similarity lookups and may be nil.
func NewTopicUseCase(
	backend port.TopicBackend,
	tokenizer port.Tokenizer,
	opts TopicOptions,
	logger *slog.Logger,
	m *metrics.Metrics,
) *TopicUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &TopicUseCase{
		backend:   backend,
		tokenizer: tokenizer,
		opts:      opts,
		logger:    logger,
		metrics:   m,
	}
}

// State returns UNLOADED or READY.
func (u *TopicUseCase) State() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.gen == nil {
		return StateUnloaded
	}
	return StateReady
}

func (u *TopicUseCase) current() (*generation, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.gen == nil {
		return nil, domain.ErrModelNotReady
	}
	return u.gen, nil
}

func (u *TopicUseCase) swap(gen *generation) {
	u.mu.Lock()
	u.gen = gen
	u.mu.Unlock()
}

// Train builds the index mapping from corpus and fits the model once.
func (u *TopicUseCase) Train(ctx context.Context, corpus []domain.CleanedDocument, opts domain.FitOptions) error {
	docs, err := docmap.FromCleaned(corpus)
	if err != nil {
		return fmt.Errorf("failed to build index mapping: %w", err)
	}

	texts := make([]string, len(corpus))
	for i, d := range corpus {
		texts[i] = d.Text
	}

	start := time.Now()
	model, err := u.backend.Fit(ctx, texts, opts)
	if err != nil {
		return fmt.Errorf("failed to train topic model: %w", err)
	}

	gen, err := newGeneration(model, docs, domain.ArtifactInfo{
		Family:     u.backend.Family(),
		Generation: uuid.NewString(),
		Documents:  docs.Len(),
		CreatedAt:  time.Now().UTC(),
		Version:    store.CurrentSchemaVersion,
	})
	if err != nil {
		return err
	}
	u.swap(gen)

	elapsed := time.Since(start)
	u.metrics.Trained(elapsed, docs.Len())
	u.logger.Info("topic_model_trained",
		slog.String("family", gen.info.Family),
		slog.String("generation", gen.info.Generation),
		slog.Int("documents", docs.Len()),
		slog.Int("topics", len(gen.topics)),
		slog.Duration("elapsed", elapsed))
	return nil
}

// Load reads the artifact under dir. Every failure is a *domain.ArtifactError.
func (u *TopicUseCase) Load(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	artifacts := store.NewArtifactStore(dir, u.backend.Family(), u.logger)
	a, err := artifacts.Load()
	if err != nil {
		return err
	}

	model, err := u.backend.Decode(a.Model)
	if err != nil {
		return &domain.ArtifactError{Path: artifacts.Dir(), Reason: "model blob unreadable", Err: err}
	}
	docs, err := docmap.Build(a.Identities)
	if err != nil {
		return &domain.ArtifactError{
			Path:   artifacts.Dir(),
			Reason: "index mapping invalid",
			Err:    fmt.Errorf("%w: %v", domain.ErrArtifactCorrupt, err),
		}
	}
	gen, err := newGeneration(model, docs, a.Info)
	if err != nil {
		return &domain.ArtifactError{
			Path:   artifacts.Dir(),
			Reason: "model and index mapping disagree",
			Err:    fmt.Errorf("%w: %v", domain.ErrArtifactCorrupt, err),
		}
	}

	if u.opts.Stale != nil {
		if reason := u.opts.Stale(a); reason != "" {
			u.logger.Warn("topic_model_stale",
				slog.String("generation", a.Info.Generation),
				slog.String("reason", reason))
		}
	}

	u.swap(gen)
	u.metrics.ModelLoaded(docs.Len())
	return nil
}

// Persist writes the current generation under dir.
func (u *TopicUseCase) Persist(ctx context.Context, dir string) error {
	gen, err := u.current()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	blob, err := gen.model.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode topic model: %w", err)
	}

	artifacts := store.NewArtifactStore(dir, u.backend.Family(), u.logger)
	return artifacts.Save(store.Artifact{
		Info:       gen.info,
		ConfigHash: u.opts.ConfigHash,
		Model:      blob,
		Identities: gen.docs.Identities(),
	})
}

// Info describes the current generation.
func (u *TopicUseCase) Info() (domain.ArtifactInfo, error) {
	gen, err := u.current()
	if err != nil {
		return domain.ArtifactInfo{}, err
	}
	return gen.info, nil
}

// Topics returns every topic, or the first count when count > 0, in the
// model's topic order.
func (u *TopicUseCase) Topics(count int) ([]domain.Topic, error) {
	gen, err := u.current()
	if err != nil {
		return nil, err
	}
	topics := gen.topics
	if count > 0 && count < len(topics) {
		topics = topics[:count]
	}
	return append([]domain.Topic(nil), topics...), nil
}

// Summaries returns Topics(count) with each topic's representative
// documents resolved to identities.
func (u *TopicUseCase) Summaries(count int) ([]domain.TopicSummary, error) {
	gen, err := u.current()
	if err != nil {
		return nil, err
	}
	topics := gen.topics
	if count > 0 && count < len(topics) {
		topics = topics[:count]
	}
	out := make([]domain.TopicSummary, 0, len(topics))
	for _, t := range topics {
		docs, err := resolveAll(gen, gen.model.RepresentativeDocs(t.ID))
		if err != nil {
			return nil, err
		}
		out = append(out, domain.TopicSummary{
			ID:                 t.ID,
			Terms:              append([]domain.Term(nil), t.Terms...),
			RepresentativeDocs: docs,
		})
	}
	return out, nil
}

// RepresentativeDocuments returns the identities that best represent
// topicID, most representative first.
func (u *TopicUseCase) RepresentativeDocuments(topicID int) ([]string, error) {
	gen, err := u.current()
	if err != nil {
		return nil, err
	}
	if _, ok := gen.topicIndex[topicID]; !ok {
		return nil, fmt.Errorf("%w: topic %d", domain.ErrNotFound, topicID)
	}
	return resolveAll(gen, gen.model.RepresentativeDocs(topicID))
}

// Identities returns the indexed document identities in index order.
func (u *TopicUseCase) Identities() ([]string, error) {
	gen, err := u.current()
	if err != nil {
		return nil, err
	}
	return gen.docs.Identities(), nil
}

// TopicTerms returns the ranked terms of topicID.
func (u *TopicUseCase) TopicTerms(topicID int) ([]domain.Term, error) {
	gen, err := u.current()
	if err != nil {
		return nil, err
	}
	i, ok := gen.topicIndex[topicID]
	if !ok {
		return nil, fmt.Errorf("%w: topic %d", domain.ErrNotFound, topicID)
	}
	return append([]domain.Term(nil), gen.topics[i].Terms...), nil
}

// DocumentsInTopic returns the indices assigned to topicID in index order.
func (u *TopicUseCase) DocumentsInTopic(topicID int) ([]int, error) {
	gen, err := u.current()
	if err != nil {
		return nil, err
	}
	return membersOf(gen, topicID), nil
}

// DocumentIDsInTopic is DocumentsInTopic resolved to identities.
func (u *TopicUseCase) DocumentIDsInTopic(topicID int) ([]string, error) {
	gen, err := u.current()
	if err != nil {
		return nil, err
	}
	return resolveAll(gen, membersOf(gen, topicID))
}

func membersOf(gen *generation, topicID int) []int {
	var members []int
	for i, t := range gen.assignments {
		if t == topicID {
			members = append(members, i)
		}
	}
	return members
}

func resolveAll(gen *generation, indices []int) ([]string, error) {
	ids := make([]string, 0, len(indices))
	for _, i := range indices {
		id, err := gen.docs.ResolveReverse(i)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// TopicOf returns the topic of one document. The outlier topic is returned
// as is.
func (u *TopicUseCase) TopicOf(identity string) (int, error) {
	gen, err := u.current()
	if err != nil {
		return 0, err
	}
	i, err := gen.docs.Resolve(identity)
	if err != nil {
		return 0, err
	}
	return gen.assignments[i], nil
}

// FindSimilarTopics returns at most k topics with score strictly above floor,
// best first, never the outlier topic.
func (u *TopicUseCase) FindSimilarTopics(text string, k int, floor float64) ([]domain.ScoredTopic, error) {
	gen, err := u.current()
	if err != nil {
		return nil, err
	}
	return u.findSimilar(gen, text, k, floor, nil)
}

func (u *TopicUseCase) findSimilar(gen *generation, text string, k int, floor float64, exclude map[int]bool) ([]domain.ScoredTopic, error) {
	if k <= 0 {
		return nil, nil
	}
	if u.tokenizer != nil {
		text = strings.Join(u.tokenizer.Tokenize(text), " ")
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	// Over-fetch so that dropping the outlier and excluded topics still
	// leaves k candidates.
	candidates, err := gen.model.FindTopics(text, k+1+len(exclude))
	if err != nil {
		return nil, fmt.Errorf("failed to find similar topics: %w", err)
	}

	out := make([]domain.ScoredTopic, 0, k)
	for _, c := range candidates {
		if c.ID == domain.OutlierTopic || exclude[c.ID] || c.Score <= floor {
			continue
		}
		out = append(out, c)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// SimilarDocuments expands the document's topic into neighboring topics
// through its top terms and returns their members, without duplicates and
// without the document itself, capped at maxResults.
func (u *TopicUseCase) SimilarDocuments(identity string, maxResults int) ([]string, error) {
	gen, err := u.current()
	if err != nil {
		return nil, err
	}
	self, err := gen.docs.Resolve(identity)
	if err != nil {
		return nil, fmt.Errorf("%w: document %q is not in the model", domain.ErrNoMatch, identity)
	}
	if maxResults <= 0 {
		return []string{}, nil
	}

	seed := gen.assignments[self]
	var terms []domain.Term
	if i, ok := gen.topicIndex[seed]; ok {
		terms = gen.topics[i].Terms
	}

	var neighbors []int
	seenTopic := make(map[int]bool)
	for _, term := range terms {
		found, err := u.findSimilar(gen, term.Word, neighborsPerTerm, u.opts.SimilarityFloor, nil)
		if err != nil {
			return nil, err
		}
		for _, t := range found {
			if !seenTopic[t.ID] {
				seenTopic[t.ID] = true
				neighbors = append(neighbors, t.ID)
			}
		}
	}

	out := make([]string, 0, maxResults)
	seenDoc := map[int]bool{self: true}
	for _, topicID := range neighbors {
		for _, i := range membersOf(gen, topicID) {
			if seenDoc[i] {
				continue
			}
			seenDoc[i] = true
			id, err := gen.docs.ResolveReverse(i)
			if err != nil {
				return nil, err
			}
			out = append(out, id)
			if len(out) == maxResults {
				return out, nil
			}
		}
	}
	return out, nil
}

// SimilarTopicsForDocument returns up to k topics similar to the document's
// own topic, excluding that topic. Outlier documents have no similar topics.
func (u *TopicUseCase) SimilarTopicsForDocument(identity string, k int) ([]domain.ScoredTopic, error) {
	gen, err := u.current()
	if err != nil {
		return nil, err
	}
	i, err := gen.docs.Resolve(identity)
	if err != nil {
		return nil, fmt.Errorf("%w: document %q is not in the model", domain.ErrNoMatch, identity)
	}

	seed := gen.assignments[i]
	ti, ok := gen.topicIndex[seed]
	if seed == domain.OutlierTopic || !ok {
		return []domain.ScoredTopic{}, nil
	}
	text := strings.Join(gen.topics[ti].Words(), " ")
	return u.findSimilar(gen, text, k, u.opts.SimilarityFloor, map[int]bool{seed: true})
}

// AllTopicLabels returns one label per distinct assigned topic, ascending,
// never the outlier topic.
func (u *TopicUseCase) AllTopicLabels() ([]domain.TopicLabel, error) {
	gen, err := u.current()
	if err != nil {
		return nil, err
	}

	distinct := make(map[int]bool)
	for _, t := range gen.assignments {
		if t != domain.OutlierTopic {
			distinct[t] = true
		}
	}
	ids := make([]int, 0, len(distinct))
	for id := range distinct {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return labelsOf(gen, ids), nil
}

// Labels returns the label of each topic id, skipping unknown ids.
func (u *TopicUseCase) Labels(ids []int) ([]domain.TopicLabel, error) {
	gen, err := u.current()
	if err != nil {
		return nil, err
	}
	return labelsOf(gen, ids), nil
}

func labelsOf(gen *generation, ids []int) []domain.TopicLabel {
	labels := make([]domain.TopicLabel, 0, len(ids))
	for _, id := range ids {
		i, ok := gen.topicIndex[id]
		if !ok {
			continue
		}
		labels = append(labels, domain.TopicLabel{ID: id, TopicList: gen.topics[i].Words()})
	}
	return labels
}

// IsArtifactError reports whether err is a fatal model artifact error.
func IsArtifactError(err error) bool {
	var artErr *domain.ArtifactError
	return errors.As(err, &artErr)
}
