package port

import (
	"context"

	"topicidx/internal/domain"
)

// TopicModel is a fitted topic model. Document indices refer to positions in
// the corpus the model was fitted on.
type TopicModel interface {
	// Assignments returns one topic id per fitted document.
	Assignments() []int

	// Topics returns every topic in the model's id order.
	Topics() []domain.Topic

	// FindTopics returns up to k topics most similar to text, best first.
	FindTopics(text string, k int) ([]domain.ScoredTopic, error)

	// RepresentativeDocs returns the indices that best represent a topic.
	RepresentativeDocs(topicID int) []int

	// MarshalBinary serializes the model state.
	MarshalBinary() ([]byte, error)
}

// TopicBackend fits and decodes topic models of one family.
type TopicBackend interface {
	// Family names the model family; it selects the artifact directory.
	Family() string

	Fit(ctx context.Context, docs []string, opts domain.FitOptions) (TopicModel, error)

	Decode(data []byte) (TopicModel, error)
}
