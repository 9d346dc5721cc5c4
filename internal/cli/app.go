package cli

import (
	"context"
	"fmt"

	"topicidx/internal/adapter/analyzer"
	"topicidx/internal/adapter/lda"
	"topicidx/internal/adapter/store"
	"topicidx/internal/domain"
	"topicidx/internal/metrics"
	"topicidx/internal/usecase"
)

func openStore() (*store.MetadataStore, error) {
	st, err := store.OpenMetadataStore(
		resolvePath(cfg.Dataset.DatabasePath),
		cfg.Dataset.Table,
		cfg.Document.Metadata,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}
	return st, nil
}

func newTokenizer() *analyzer.Tokenizer {
	return analyzer.NewTokenizer(cfg.Model.Stopwords...)
}

func newTopics(tok *analyzer.Tokenizer, m *metrics.Metrics) *usecase.TopicUseCase {
	return usecase.NewTopicUseCase(
		lda.NewBackend(logger),
		tok,
		usecase.TopicOptions{
			SimilarityFloor: cfg.Query.SimilarityFloor,
			ConfigHash:      store.ComputeConfigHash(cfg),
			Stale: func(a *store.Artifact) string {
				return store.StaleReason(a, cfg)
			},
		},
		logger,
		m,
	)
}

func fitOptions() domain.FitOptions {
	return domain.FitOptions{
		NGramMin:     cfg.Model.NGramMin,
		NGramMax:     cfg.Model.NGramMax,
		Topics:       cfg.Model.Topics,
		Iterations:   cfg.Model.Iterations,
		TopWords:     cfg.Model.TopWords,
		Processes:    cfg.Model.Workers,
		OutlierFloor: cfg.Model.OutlierThreshold,
	}
}

// loadModel loads the persisted model, reporting when none was trained yet.
func loadModel(ctx context.Context, tok *analyzer.Tokenizer, m *metrics.Metrics) (*usecase.TopicUseCase, error) {
	dir := resolvePath(cfg.Model.Dir)
	artifacts := store.NewArtifactStore(dir, lda.Family, logger)
	if !artifacts.Exists() {
		return nil, fmt.Errorf("no topic model found in %s. Run 'topicidx train' first", artifacts.Dir())
	}

	topics := newTopics(tok, m)
	if err := topics.Load(ctx, dir); err != nil {
		return nil, err
	}
	return topics, nil
}
