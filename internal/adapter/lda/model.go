package lda

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"topicidx/internal/domain"
)

const stateVersion = 1

// representativeCount is the number of documents returned per topic by
// RepresentativeDocs.
const representativeCount = 3

type topicState struct {
	ID    int                `json:"id"`
	Terms []domain.Term      `json:"terms"`
	Space map[string]float64 `json:"space"`
}

type modelState struct {
	Version     int          `json:"version"`
	NGramMin    int          `json:"ngram_min"`
	NGramMax    int          `json:"ngram_max"`
	Assignments []int        `json:"assignments"`
	Weights     []float64    `json:"weights"`
	Topics      []topicState `json:"topics"`
}

// Model is a fitted LDA topic model reduced to what queries need: the
// per-document assignment, the ranked terms of each topic and a sparse term
// space used for similarity.
type Model struct {
	state     modelState
	tokeniser ngramTokeniser
	norms     map[int]float64
}

func newModel(st modelState) *Model {
	m := &Model{
		state:     st,
		tokeniser: newNgramTokeniser(st.NGramMin, st.NGramMax),
		norms:     make(map[int]float64, len(st.Topics)),
	}
	for _, t := range st.Topics {
		m.norms[t.ID] = norm(t.Space)
	}
	return m
}

// Assignments returns one topic id per fitted document.
func (m *Model) Assignments() []int {
	out := make([]int, len(m.state.Assignments))
	copy(out, m.state.Assignments)
	return out
}

// Topics returns the outlier topic first when present, then ascending ids.
func (m *Model) Topics() []domain.Topic {
	out := make([]domain.Topic, len(m.state.Topics))
	for i, t := range m.state.Topics {
		terms := make([]domain.Term, len(t.Terms))
		copy(terms, t.Terms)
		out[i] = domain.Topic{ID: t.ID, Terms: terms}
	}
	return out
}

// FindTopics scores every topic by cosine similarity between the n-gram
// counts of text and the topic's term space.
func (m *Model) FindTopics(text string, k int) ([]domain.ScoredTopic, error) {
	if k <= 0 {
		return nil, nil
	}
	query := m.tokeniser.counts(text)
	if len(query) == 0 {
		return nil, nil
	}
	qnorm := norm(query)

	scored := make([]domain.ScoredTopic, 0, len(m.state.Topics))
	for _, t := range m.state.Topics {
		tnorm := m.norms[t.ID]
		if tnorm == 0 {
			continue
		}
		var dot float64
		for term, count := range query {
			dot += count * t.Space[term]
		}
		scored = append(scored, domain.ScoredTopic{ID: t.ID, Score: dot / (qnorm * tnorm)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// RepresentativeDocs returns the indices of the documents most strongly
// assigned to topicID.
func (m *Model) RepresentativeDocs(topicID int) []int {
	var members []int
	for i, t := range m.state.Assignments {
		if t == topicID {
			members = append(members, i)
		}
	}
	sort.SliceStable(members, func(a, b int) bool {
		return m.state.Weights[members[a]] > m.state.Weights[members[b]]
	})
	if len(members) > representativeCount {
		members = members[:representativeCount]
	}
	return members
}

// MarshalBinary encodes the model state as JSON.
func (m *Model) MarshalBinary() ([]byte, error) {
	return json.Marshal(m.state)
}

func decodeModel(data []byte) (*Model, error) {
	var st modelState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: failed to decode lda model: %v", domain.ErrArtifactCorrupt, err)
	}
	if st.Version != stateVersion {
		return nil, fmt.Errorf("%w: lda model version %d, want %d", domain.ErrArtifactCorrupt, st.Version, stateVersion)
	}
	if len(st.Weights) != len(st.Assignments) {
		return nil, fmt.Errorf("%w: lda model has %d weights for %d documents",
			domain.ErrArtifactCorrupt, len(st.Weights), len(st.Assignments))
	}
	return newModel(st), nil
}

func norm(v map[string]float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}
