package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"topicidx/internal/adapter/analyzer"
	"topicidx/internal/adapter/store"
	"topicidx/internal/domain"
	"topicidx/internal/logging"
	"topicidx/internal/port"
)

// stubModel scores a query by how many of its words appear in each topic.
type stubModel struct {
	Assign []int          `json:"assignments"`
	Tops   []domain.Topic `json:"topics"`
	Reps   map[int][]int  `json:"representatives"`
}

func (m *stubModel) Assignments() []int { return append([]int(nil), m.Assign...) }

func (m *stubModel) Topics() []domain.Topic { return append([]domain.Topic(nil), m.Tops...) }

func (m *stubModel) FindTopics(text string, k int) ([]domain.ScoredTopic, error) {
	words := strings.Fields(text)
	var out []domain.ScoredTopic
	for _, t := range m.Tops {
		hits := 0
		for _, w := range words {
			for _, term := range t.Terms {
				if term.Word == w {
					hits++
				}
			}
		}
		if hits > 0 {
			out = append(out, domain.ScoredTopic{ID: t.ID, Score: float64(hits) / float64(len(words))})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (m *stubModel) RepresentativeDocs(topicID int) []int {
	return append([]int(nil), m.Reps[topicID]...)
}

func (m *stubModel) MarshalBinary() ([]byte, error) { return json.Marshal(m) }

type stubBackend struct {
	model *stubModel
	fits  int
	err   error
}

func (b *stubBackend) Family() string { return "stub" }

func (b *stubBackend) Fit(_ context.Context, docs []string, _ domain.FitOptions) (port.TopicModel, error) {
	b.fits++
	if b.err != nil {
		return nil, b.err
	}
	return b.model, nil
}

func (b *stubBackend) Decode(data []byte) (port.TopicModel, error) {
	var m stubModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func terms(words ...string) []domain.Term {
	out := make([]domain.Term, len(words))
	for i, w := range words {
		out[i] = domain.Term{Word: w, Score: 1 / float64(i+1)}
	}
	return out
}

// fixtureModel: five documents over three topics plus one outlier.
func fixtureModel() *stubModel {
	return &stubModel{
		Assign: []int{1, 1, 0, 2, -1},
		Tops: []domain.Topic{
			{ID: -1, Terms: terms("misc", "noise")},
			{ID: 0, Terms: terms("neural", "network", "learning")},
			{ID: 1, Terms: terms("galaxy", "star", "learning")},
			{ID: 2, Terms: terms("protein", "cell", "galaxy")},
		},
		Reps: map[int][]int{1: {1, 0}, 2: {3}},
	}
}

func fixtureCorpus() []domain.CleanedDocument {
	ids := []string{"a", "b", "c", "d", "e"}
	docs := make([]domain.CleanedDocument, len(ids))
	for i, id := range ids {
		docs[i] = domain.CleanedDocument{ID: id, Text: "text " + id, Position: i}
	}
	return docs
}

func newTrainedTopics(t *testing.T) *TopicUseCase {
	t.Helper()
	uc := NewTopicUseCase(&stubBackend{model: fixtureModel()}, analyzer.NewTokenizer(),
		TopicOptions{ConfigHash: "h1"}, logging.Discard(), nil)
	require.NoError(t, uc.Train(context.Background(), fixtureCorpus(), domain.FitOptions{Topics: 3}))
	return uc
}

func TestTopicUseCase_NotReady(t *testing.T) {
	uc := NewTopicUseCase(&stubBackend{model: fixtureModel()}, nil, TopicOptions{}, logging.Discard(), nil)
	assert.Equal(t, StateUnloaded, uc.State())

	_, err := uc.DocumentsInTopic(0)
	assert.ErrorIs(t, err, domain.ErrModelNotReady)
	_, err = uc.AllTopicLabels()
	assert.ErrorIs(t, err, domain.ErrModelNotReady)
	_, err = uc.FindSimilarTopics("galaxy", 3, 0)
	assert.ErrorIs(t, err, domain.ErrModelNotReady)
	_, err = uc.SimilarDocuments("a", 5)
	assert.ErrorIs(t, err, domain.ErrModelNotReady)
	assert.ErrorIs(t, uc.Persist(context.Background(), t.TempDir()), domain.ErrModelNotReady)
}

func TestTopicUseCase_TrainFitsOnce(t *testing.T) {
	backend := &stubBackend{model: fixtureModel()}
	uc := NewTopicUseCase(backend, nil, TopicOptions{}, logging.Discard(), nil)

	require.NoError(t, uc.Train(context.Background(), fixtureCorpus(), domain.FitOptions{}))
	assert.Equal(t, 1, backend.fits)
	assert.Equal(t, StateReady, uc.State())

	info, err := uc.Info()
	require.NoError(t, err)
	assert.Equal(t, "stub", info.Family)
	assert.Equal(t, 5, info.Documents)
	assert.NotEmpty(t, info.Generation)
}

func TestTopicUseCase_TrainErrors(t *testing.T) {
	t.Run("backend failure", func(t *testing.T) {
		uc := NewTopicUseCase(&stubBackend{err: domain.ErrTraining}, nil, TopicOptions{}, logging.Discard(), nil)
		err := uc.Train(context.Background(), fixtureCorpus(), domain.FitOptions{})
		assert.ErrorIs(t, err, domain.ErrTraining)
		assert.Equal(t, StateUnloaded, uc.State())
	})

	t.Run("assignment count mismatch", func(t *testing.T) {
		model := fixtureModel()
		model.Assign = model.Assign[:3]
		uc := NewTopicUseCase(&stubBackend{model: model}, nil, TopicOptions{}, logging.Discard(), nil)
		err := uc.Train(context.Background(), fixtureCorpus(), domain.FitOptions{})
		assert.ErrorIs(t, err, domain.ErrTraining)
	})

	t.Run("duplicate identities", func(t *testing.T) {
		corpus := fixtureCorpus()
		corpus[1].ID = "a"
		uc := NewTopicUseCase(&stubBackend{model: fixtureModel()}, nil, TopicOptions{}, logging.Discard(), nil)
		err := uc.Train(context.Background(), corpus, domain.FitOptions{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestTopicUseCase_DocumentsInTopic(t *testing.T) {
	uc := newTrainedTopics(t)

	got, err := uc.DocumentsInTopic(1)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, got)

	ids, err := uc.DocumentIDsInTopic(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	outliers, err := uc.DocumentIDsInTopic(domain.OutlierTopic)
	require.NoError(t, err)
	assert.Equal(t, []string{"e"}, outliers)

	none, err := uc.DocumentsInTopic(42)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTopicUseCase_TopicOf(t *testing.T) {
	uc := newTrainedTopics(t)

	topic, err := uc.TopicOf("d")
	require.NoError(t, err)
	assert.Equal(t, 2, topic)

	topic, err = uc.TopicOf("e")
	require.NoError(t, err)
	assert.Equal(t, domain.OutlierTopic, topic)

	_, err = uc.TopicOf("zzz")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTopicUseCase_AllTopicLabels(t *testing.T) {
	uc := newTrainedTopics(t)

	labels, err := uc.AllTopicLabels()
	require.NoError(t, err)
	require.Len(t, labels, 3)
	for i, want := range []int{0, 1, 2} {
		assert.Equal(t, want, labels[i].ID)
	}
	assert.Equal(t, []string{"galaxy", "star", "learning"}, labels[1].TopicList)
}

func TestTopicUseCase_TopicsAndTerms(t *testing.T) {
	uc := newTrainedTopics(t)

	all, err := uc.Topics(0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	first, err := uc.Topics(2)
	require.NoError(t, err)
	assert.Equal(t, -1, first[0].ID)
	assert.Equal(t, 0, first[1].ID)

	ts, err := uc.TopicTerms(2)
	require.NoError(t, err)
	assert.Equal(t, "protein", ts[0].Word)

	_, err = uc.TopicTerms(9)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTopicUseCase_RepresentativeDocuments(t *testing.T) {
	uc := newTrainedTopics(t)

	reps, err := uc.RepresentativeDocuments(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, reps)

	none, err := uc.RepresentativeDocuments(0)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = uc.RepresentativeDocuments(9)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	summaries, err := uc.Summaries(0)
	require.NoError(t, err)
	require.Len(t, summaries, 4)
	assert.Equal(t, -1, summaries[0].ID)
	assert.Equal(t, 2, summaries[3].ID)
	assert.Equal(t, []string{"d"}, summaries[3].RepresentativeDocs)
	assert.Equal(t, "protein", summaries[3].Terms[0].Word)
	assert.NotNil(t, summaries[1].RepresentativeDocs)

	first, err := uc.Summaries(2)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	_, err = NewTopicUseCase(&stubBackend{}, nil, TopicOptions{}, logging.Discard(), nil).Summaries(0)
	assert.ErrorIs(t, err, domain.ErrModelNotReady)
}

func TestTopicUseCase_FindSimilarTopics(t *testing.T) {
	uc := newTrainedTopics(t)

	got, err := uc.FindSimilarTopics("The galaxy and the star", 5, 0)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, 1, got[0].ID)
	for _, s := range got {
		assert.NotEqual(t, domain.OutlierTopic, s.ID)
		assert.Greater(t, s.Score, 0.0)
	}

	t.Run("floor is strict", func(t *testing.T) {
		// "galaxy star" scores 1.0 for topic 1 and 0.5 for topic 2.
		got, err := uc.FindSimilarTopics("galaxy star", 5, 0.5)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 1, got[0].ID)
	})

	t.Run("outlier never returned", func(t *testing.T) {
		got, err := uc.FindSimilarTopics("misc noise", 5, 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("capped at k", func(t *testing.T) {
		got, err := uc.FindSimilarTopics("learning galaxy", 1, 0)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("stopwords only", func(t *testing.T) {
		got, err := uc.FindSimilarTopics("the and of", 3, 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestTopicUseCase_SimilarDocuments(t *testing.T) {
	uc := newTrainedTopics(t)

	got, err := uc.SimilarDocuments("a", 10)
	require.NoError(t, err)
	assert.NotContains(t, got, "a")
	assert.Contains(t, got, "b")

	seen := make(map[string]bool)
	for _, id := range got {
		assert.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}

	capped, err := uc.SimilarDocuments("a", 1)
	require.NoError(t, err)
	assert.Len(t, capped, 1)

	_, err = uc.SimilarDocuments("missing", 5)
	assert.ErrorIs(t, err, domain.ErrNoMatch)
}

func TestTopicUseCase_SimilarTopicsForDocument(t *testing.T) {
	uc := newTrainedTopics(t)

	got, err := uc.SimilarTopicsForDocument("a", 5)
	require.NoError(t, err)
	for _, s := range got {
		assert.NotEqual(t, 1, s.ID)
		assert.NotEqual(t, domain.OutlierTopic, s.ID)
	}

	outlier, err := uc.SimilarTopicsForDocument("e", 5)
	require.NoError(t, err)
	assert.Empty(t, outlier)

	_, err = uc.SimilarTopicsForDocument("missing", 5)
	assert.ErrorIs(t, err, domain.ErrNoMatch)
}

func TestTopicUseCase_PersistAndLoad(t *testing.T) {
	dir := t.TempDir()
	trained := newTrainedTopics(t)
	require.NoError(t, trained.Persist(context.Background(), dir))

	want, err := trained.Info()
	require.NoError(t, err)

	loaded := NewTopicUseCase(&stubBackend{}, nil, TopicOptions{ConfigHash: "h1"}, logging.Discard(), nil)
	require.NoError(t, loaded.Load(context.Background(), dir))
	assert.Equal(t, StateReady, loaded.State())

	info, err := loaded.Info()
	require.NoError(t, err)
	assert.Equal(t, want.Generation, info.Generation)

	ids, err := trained.Identities()
	require.NoError(t, err)
	loadedIDs, err := loaded.Identities()
	require.NoError(t, err)
	assert.Equal(t, ids, loadedIDs)

	for _, id := range ids {
		want, err := trained.TopicOf(id)
		require.NoError(t, err)
		got, err := loaded.TopicOf(id)
		require.NoError(t, err)
		assert.Equal(t, want, got, "topic of %s", id)
	}

	for _, topic := range []int{domain.OutlierTopic, 0, 1, 2} {
		want, err := trained.DocumentIDsInTopic(topic)
		require.NoError(t, err)
		got, err := loaded.DocumentIDsInTopic(topic)
		require.NoError(t, err)
		assert.Equal(t, want, got, "members of topic %d", topic)
	}

	wantLabels, err := trained.AllTopicLabels()
	require.NoError(t, err)
	labels, err := loaded.AllTopicLabels()
	require.NoError(t, err)
	assert.Equal(t, wantLabels, labels)

	reps, err := loaded.RepresentativeDocuments(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, reps)
}

func TestTopicUseCase_LoadMissing(t *testing.T) {
	uc := NewTopicUseCase(&stubBackend{}, nil, TopicOptions{}, logging.Discard(), nil)
	err := uc.Load(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.True(t, IsArtifactError(err))
	assert.True(t, errors.Is(err, domain.ErrArtifactMissing))
	assert.Equal(t, StateUnloaded, uc.State())
}

func TestTopicUseCase_LoadReportsStaleArtifact(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, newTrainedTopics(t).Persist(context.Background(), dir))

	var seen string
	uc := NewTopicUseCase(&stubBackend{}, nil, TopicOptions{
		ConfigHash: "h2",
		Stale: func(a *store.Artifact) string {
			seen = a.ConfigHash
			return "model configuration changed since training"
		},
	}, logging.Discard(), nil)

	require.NoError(t, uc.Load(context.Background(), dir))
	assert.Equal(t, "h1", seen)
	assert.Equal(t, StateReady, uc.State())
}

func TestTopicUseCase_FourDocumentScenario(t *testing.T) {
	model := fixtureModel()
	model.Assign = []int{1, 1, 0, 2}
	uc := NewTopicUseCase(&stubBackend{model: model}, nil, TopicOptions{}, logging.Discard(), nil)
	require.NoError(t, uc.Train(context.Background(), fixtureCorpus()[:4], domain.FitOptions{}))

	one, err := uc.DocumentsInTopic(1)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, one)

	zero, err := uc.DocumentsInTopic(0)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, zero)

	labels, err := uc.AllTopicLabels()
	require.NoError(t, err)
	ids := make([]int, len(labels))
	for i, l := range labels {
		ids[i] = l.ID
	}
	assert.Equal(t, []int{0, 1, 2}, ids)
}
