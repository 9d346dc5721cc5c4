// Package lda fits Latent Dirichlet Allocation topic models with
// github.com/james-bowman/nlp.
package lda

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"

	"github.com/james-bowman/nlp"
	"gonum.org/v1/gonum/mat"

	"topicidx/internal/domain"
	"topicidx/internal/port"
)

// Family is the artifact directory name for this backend.
const Family = "lda"

// spaceTerms bounds the number of terms kept per topic for similarity.
const spaceTerms = 200

// Backend fits LDA models.
type Backend struct {
	logger *slog.Logger
}

// NewBackend creates a Backend.
func NewBackend(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{logger: logger}
}

// Family returns "lda".
func (b *Backend) Family() string {
	return Family
}

// Decode restores a model written by MarshalBinary.
func (b *Backend) Decode(data []byte) (port.TopicModel, error) {
	return decodeModel(data)
}

// Fit vectorises docs into n-gram counts and fits opts.Topics topics.
// Documents with no tokens, or whose dominant topic probability falls below
// opts.OutlierFloor, are assigned the outlier topic.
func (b *Backend) Fit(ctx context.Context, docs []string, opts domain.FitOptions) (model port.TopicModel, err error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: empty corpus", domain.ErrTraining)
	}
	if opts.Topics < 1 {
		return nil, fmt.Errorf("%w: topic count must be positive, got %d", domain.ErrTraining, opts.Topics)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tok := newNgramTokeniser(opts.NGramMin, opts.NGramMax)
	counts := make([]map[string]float64, len(docs))
	empty := 0
	for i, d := range docs {
		counts[i] = tok.counts(d)
		if len(counts[i]) == 0 {
			empty++
		}
	}
	if empty == len(docs) {
		return nil, fmt.Errorf("%w: no document produced any tokens", domain.ErrTraining)
	}

	defer func() {
		if r := recover(); r != nil {
			model, err = nil, fmt.Errorf("%w: %v", domain.ErrTraining, r)
		}
	}()

	vectoriser := nlp.NewCountVectoriser()
	vectoriser.Tokeniser = tok

	lda := nlp.NewLatentDirichletAllocation(opts.Topics)
	lda.Processes = opts.Processes
	if lda.Processes <= 0 {
		lda.Processes = runtime.NumCPU()
	}
	if opts.Iterations > 0 {
		lda.Iterations = opts.Iterations
		lda.TransformationPasses = opts.Iterations / 2
	}

	b.logger.Info("lda_fit_started",
		slog.Int("documents", len(docs)),
		slog.Int("topics", opts.Topics),
		slog.Int("processes", lda.Processes))

	pipeline := nlp.NewPipeline(vectoriser, lda)
	docsOverTopics, err := pipeline.FitTransform(docs...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTraining, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vocab := make([]string, len(vectoriser.Vocabulary))
	for word, i := range vectoriser.Vocabulary {
		vocab[i] = word
	}

	st := modelState{
		Version:  stateVersion,
		NGramMin: tok.min,
		NGramMax: tok.max,
	}
	st.Assignments, st.Weights = assign(docsOverTopics, counts, opts.OutlierFloor)
	if len(st.Assignments) != len(docs) {
		return nil, fmt.Errorf("%w: %d assignments for %d documents", domain.ErrTraining, len(st.Assignments), len(docs))
	}

	topWords := opts.TopWords
	if topWords <= 0 {
		topWords = 10
	}
	st.Topics = buildTopics(lda.Components(), vocab, st.Assignments, counts, topWords)

	b.logger.Info("lda_fit_completed",
		slog.Int("documents", len(docs)),
		slog.Int("vocabulary", len(vocab)),
		slog.Int("topics", len(st.Topics)))

	return newModel(st), nil
}

// assign picks the dominant topic of every document column.
func assign(docsOverTopics mat.Matrix, counts []map[string]float64, floor float64) ([]int, []float64) {
	topics, ndocs := docsOverTopics.Dims()
	assignments := make([]int, ndocs)
	weights := make([]float64, ndocs)

	for d := 0; d < ndocs; d++ {
		best, bestP := domain.OutlierTopic, 0.0
		for t := 0; t < topics; t++ {
			if p := docsOverTopics.At(t, d); p > bestP {
				best, bestP = t, p
			}
		}
		if d < len(counts) && len(counts[d]) == 0 {
			best = domain.OutlierTopic
		}
		if bestP < floor {
			best = domain.OutlierTopic
		}
		assignments[d] = best
		weights[d] = bestP
	}
	return assignments, weights
}

// buildTopics converts topic-word weights into ranked terms. The outlier
// topic, when any document carries it, is described by raw term frequency of
// its members.
func buildTopics(topicsOverWords mat.Matrix, vocab []string, assignments []int, counts []map[string]float64, topWords int) []topicState {
	rows, cols := topicsOverWords.Dims()
	var out []topicState

	outlierFreq := make(map[string]float64)
	hasOutlier := false
	for i, a := range assignments {
		if a != domain.OutlierTopic {
			continue
		}
		hasOutlier = true
		for term, c := range counts[i] {
			outlierFreq[term] += c
		}
	}
	if hasOutlier {
		out = append(out, rankTerms(domain.OutlierTopic, outlierFreq, topWords))
	}

	for t := 0; t < rows; t++ {
		row := make(map[string]float64, cols)
		for w := 0; w < cols && w < len(vocab); w++ {
			if v := topicsOverWords.At(t, w); v > 0 {
				row[vocab[w]] = v
			}
		}
		out = append(out, rankTerms(t, row, topWords))
	}
	return out
}

func rankTerms(id int, weights map[string]float64, topWords int) topicState {
	var total float64
	terms := make([]domain.Term, 0, len(weights))
	for word, w := range weights {
		total += w
		terms = append(terms, domain.Term{Word: word, Score: w})
	}
	if total > 0 {
		for i := range terms {
			terms[i].Score /= total
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Score != terms[j].Score {
			return terms[i].Score > terms[j].Score
		}
		return terms[i].Word < terms[j].Word
	})

	space := make(map[string]float64)
	for i := 0; i < len(terms) && i < spaceTerms; i++ {
		space[terms[i].Word] = terms[i].Score
	}
	if len(terms) > topWords {
		terms = terms[:topWords]
	}
	return topicState{ID: id, Terms: terms, Space: space}
}
