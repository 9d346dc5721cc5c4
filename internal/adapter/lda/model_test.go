package lda

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"topicidx/internal/domain"
)

func fixtureModel() *Model {
	return newModel(modelState{
		Version:     stateVersion,
		NGramMin:    1,
		NGramMax:    1,
		Assignments: []int{1, 1, 0, -1, 1, 1},
		Weights:     []float64{0.6, 0.9, 0.8, 0, 0.7, 0.95},
		Topics: []topicState{
			{ID: -1, Terms: []domain.Term{{Word: "misc", Score: 1}}, Space: map[string]float64{"misc": 1}},
			{ID: 0, Terms: []domain.Term{{Word: "graph", Score: 0.6}, {Word: "node", Score: 0.4}},
				Space: map[string]float64{"graph": 0.6, "node": 0.4}},
			{ID: 1, Terms: []domain.Term{{Word: "protein", Score: 0.7}, {Word: "cell", Score: 0.3}},
				Space: map[string]float64{"protein": 0.7, "cell": 0.3}},
		},
	})
}

func TestModel_Topics_OrderedOutlierFirst(t *testing.T) {
	topics := fixtureModel().Topics()
	require.Len(t, topics, 3)
	assert.Equal(t, -1, topics[0].ID)
	assert.Equal(t, 0, topics[1].ID)
	assert.Equal(t, 1, topics[2].ID)
	assert.Equal(t, []string{"graph", "node"}, topics[1].Words())
}

func TestModel_FindTopics(t *testing.T) {
	m := fixtureModel()

	scored, err := m.FindTopics("protein folding cell", 2)
	require.NoError(t, err)
	require.Len(t, scored, 2)
	assert.Equal(t, 1, scored[0].ID)
	assert.Greater(t, scored[0].Score, 0.0)
	assert.GreaterOrEqual(t, scored[0].Score, scored[1].Score)
}

func TestModel_FindTopics_NoTokens(t *testing.T) {
	scored, err := fixtureModel().FindTopics("   ", 5)
	require.NoError(t, err)
	assert.Empty(t, scored)
}

func TestModel_FindTopics_ZeroK(t *testing.T) {
	scored, err := fixtureModel().FindTopics("graph", 0)
	require.NoError(t, err)
	assert.Empty(t, scored)
}

func TestModel_RepresentativeDocs(t *testing.T) {
	m := fixtureModel()
	assert.Equal(t, []int{5, 1, 4}, m.RepresentativeDocs(1))
	assert.Equal(t, []int{2}, m.RepresentativeDocs(0))
	assert.Empty(t, m.RepresentativeDocs(7))
}

func TestModel_MarshalRoundTrip(t *testing.T) {
	m := fixtureModel()
	data, err := m.MarshalBinary()
	require.NoError(t, err)

	decoded, err := NewBackend(nil).Decode(data)
	require.NoError(t, err)
	assert.Equal(t, m.Assignments(), decoded.Assignments())
	assert.Equal(t, m.Topics(), decoded.Topics())
}

func TestDecode_Corrupt(t *testing.T) {
	_, err := NewBackend(nil).Decode([]byte("{not json"))
	assert.ErrorIs(t, err, domain.ErrArtifactCorrupt)

	_, err = NewBackend(nil).Decode([]byte(`{"version":99}`))
	assert.ErrorIs(t, err, domain.ErrArtifactCorrupt)
}

func TestBackend_Fit(t *testing.T) {
	docs := []string{
		"protein folding cell membrane protein",
		"cell biology protein expression",
		"graph theory node edge graph",
		"graph algorithms shortest path node",
		"",
		"membrane transport cell protein",
	}

	model, err := NewBackend(nil).Fit(context.Background(), docs, domain.FitOptions{
		NGramMin:   1,
		NGramMax:   1,
		Topics:     2,
		Iterations: 20,
		TopWords:   5,
		Processes:  1,
	})
	require.NoError(t, err)

	assignments := model.Assignments()
	require.Len(t, assignments, len(docs))
	assert.Equal(t, domain.OutlierTopic, assignments[4])
	for i, a := range assignments {
		if i == 4 {
			continue
		}
		assert.Contains(t, []int{0, 1}, a)
	}

	topics := model.Topics()
	assert.Equal(t, domain.OutlierTopic, topics[0].ID)
	for _, topic := range topics[1:] {
		assert.LessOrEqual(t, len(topic.Terms), 5)
		for i := 1; i < len(topic.Terms); i++ {
			assert.GreaterOrEqual(t, topic.Terms[i-1].Score, topic.Terms[i].Score)
		}
	}
}

func TestBackend_Fit_Errors(t *testing.T) {
	b := NewBackend(nil)

	_, err := b.Fit(context.Background(), nil, domain.FitOptions{Topics: 2})
	assert.ErrorIs(t, err, domain.ErrTraining)

	_, err = b.Fit(context.Background(), []string{"a b"}, domain.FitOptions{Topics: 0})
	assert.ErrorIs(t, err, domain.ErrTraining)

	_, err = b.Fit(context.Background(), []string{"", "  "}, domain.FitOptions{Topics: 2})
	assert.ErrorIs(t, err, domain.ErrTraining)
}
