package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"topicidx/internal/adapter/analyzer"
	"topicidx/internal/domain"
	"topicidx/internal/port"
)

// PipelineOptions select between loading a persisted model and training a
// new one.
type PipelineOptions struct {
	TextField   string
	ModelDir    string
	Load        bool
	Save        bool
	SampleCount int
	Fit         domain.FitOptions
}

// PipelineResult describes how the model became ready.
type PipelineResult struct {
	Loaded     bool   `json:"loaded"`
	Saved      bool   `json:"saved"`
	Read       int    `json:"read"`
	Documents  int    `json:"documents"`
	Generation string `json:"generation"`
	Family     string `json:"family"`
}

// PipelineUseCase brings a TopicUseCase to READY: corpus, clean, train,
// persist, or a load of the persisted artifact.
type PipelineUseCase struct {
	store   port.MetadataStore
	cleaner *analyzer.Cleaner
	topics  *TopicUseCase
	opts    PipelineOptions
	logger  *slog.Logger
}

// NewPipelineUseCase creates a new pipeline use case.
func NewPipelineUseCase(
	store port.MetadataStore,
	cleaner *analyzer.Cleaner,
	topics *TopicUseCase,
	opts PipelineOptions,
	logger *slog.Logger,
) *PipelineUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineUseCase{
		store:   store,
		cleaner: cleaner,
		topics:  topics,
		opts:    opts,
		logger:  logger,
	}
}

// Run loads or trains the model.
func (u *PipelineUseCase) Run(ctx context.Context) (*PipelineResult, error) {
	if u.opts.Load {
		return u.load(ctx)
	}
	return u.train(ctx)
}

func (u *PipelineUseCase) load(ctx context.Context) (*PipelineResult, error) {
	if err := u.topics.Load(ctx, u.opts.ModelDir); err != nil {
		return nil, err
	}
	return u.result(&PipelineResult{Loaded: true})
}

func (u *PipelineUseCase) train(ctx context.Context) (*PipelineResult, error) {
	corpus, err := u.store.Corpus(ctx, u.opts.TextField)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read corpus: %v", domain.ErrDependencyUnavailable, err)
	}
	if len(corpus) == 0 {
		return nil, fmt.Errorf("%w: corpus is empty, run ingest first", domain.ErrTraining)
	}

	cleaned, err := u.cleaner.Clean(ctx, corpus, u.opts.SampleCount)
	if err != nil {
		return nil, fmt.Errorf("failed to clean corpus: %w", err)
	}
	u.logger.Info("corpus_cleaned",
		slog.Int("read", len(corpus)),
		slog.Int("cleaned", len(cleaned)),
		slog.Int("workers", u.cleaner.Workers()))

	if err := u.topics.Train(ctx, cleaned, u.opts.Fit); err != nil {
		return nil, err
	}

	res := &PipelineResult{Read: len(corpus)}
	if u.opts.Save {
		if err := u.topics.Persist(ctx, u.opts.ModelDir); err != nil {
			return nil, fmt.Errorf("failed to persist topic model: %w", err)
		}
		res.Saved = true
	}
	return u.result(res)
}

func (u *PipelineUseCase) result(res *PipelineResult) (*PipelineResult, error) {
	info, err := u.topics.Info()
	if err != nil {
		return nil, err
	}
	res.Documents = info.Documents
	res.Generation = info.Generation
	res.Family = info.Family
	return res, nil
}
