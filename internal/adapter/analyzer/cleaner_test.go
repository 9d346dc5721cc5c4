package analyzer

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"topicidx/internal/domain"
)

func makeCorpus(n int) []domain.RawDocument {
	docs := make([]domain.RawDocument, n)
	for i := range docs {
		docs[i] = domain.RawDocument{
			ID:   fmt.Sprintf("doc-%04d", i),
			Text: fmt.Sprintf("The Word%d and topic%d", i, i%7),
		}
	}
	return docs
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		parts int
		want  []Span
	}{
		{"empty", 0, 4, nil},
		{"even", 8, 4, []Span{{0, 2}, {2, 4}, {4, 6}, {6, 8}}},
		{"ceil", 10, 4, []Span{{0, 3}, {3, 6}, {6, 9}, {9, 10}}},
		{"more parts than items", 2, 8, []Span{{0, 1}, {1, 2}}},
		{"zero parts", 3, 0, []Span{{0, 3}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Partition(tt.n, tt.parts))
		})
	}
}

func TestCleaner_PreservesOrderForAnyWorkerCount(t *testing.T) {
	docs := makeCorpus(257)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 20; i++ {
		workers := 1 + rng.Intn(32)
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			c := NewCleaner(NewTokenizer(), workers, nil)
			cleaned, err := c.Clean(context.Background(), docs, 0)
			require.NoError(t, err)
			require.Len(t, cleaned, len(docs))

			for j, doc := range cleaned {
				assert.Equal(t, docs[j].ID, doc.ID)
				assert.Equal(t, j, doc.Position)
			}
		})
	}
}

func TestCleaner_CleansText(t *testing.T) {
	c := NewCleaner(NewTokenizer(), 2, nil)
	cleaned, err := c.Clean(context.Background(), []domain.RawDocument{
		{ID: "a", Text: "The Transformer is a Model"},
	}, 0)
	require.NoError(t, err)
	require.Len(t, cleaned, 1)
	assert.Equal(t, "transformer model", cleaned[0].Text)
}

func TestCleaner_DropsInvalidDocuments(t *testing.T) {
	docs := []domain.RawDocument{
		{ID: "a", Text: "graph theory"},
		{ID: "", Text: "no id"},
		{ID: "c", Text: "   "},
		{ID: "d", Text: string([]byte{0xff, 0xfe})},
		{ID: "e", Text: "number theory"},
	}

	c := NewCleaner(NewTokenizer(), 3, nil)
	cleaned, err := c.Clean(context.Background(), docs, 0)
	require.NoError(t, err)
	require.Len(t, cleaned, 2)
	assert.Equal(t, "a", cleaned[0].ID)
	assert.Equal(t, "e", cleaned[1].ID)
	assert.Equal(t, 4, cleaned[1].Position)
}

func TestCleaner_SampleKeepsPrefix(t *testing.T) {
	docs := makeCorpus(50)
	c := NewCleaner(NewTokenizer(), 7, nil)

	cleaned, err := c.Clean(context.Background(), docs, 5)
	require.NoError(t, err)
	require.Len(t, cleaned, 5)
	for i, doc := range cleaned {
		assert.Equal(t, docs[i].ID, doc.ID)
	}
}

func TestCleaner_Progress(t *testing.T) {
	c := NewCleaner(NewTokenizer(), 4, nil)
	var calls, lastTotal int
	c.OnProgress(func(done, total int) {
		calls++
		lastTotal = total
	})

	_, err := c.Clean(context.Background(), makeCorpus(16), 0)
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 4, lastTotal)
}

func TestCleaner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCleaner(NewTokenizer(), 4, nil)
	_, err := c.Clean(ctx, makeCorpus(16), 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRestoreOrder(t *testing.T) {
	in := []domain.CleanedDocument{
		{ID: "c", Position: 7},
		{ID: "a", Position: 0},
		{ID: "b", Position: 3},
	}

	out := RestoreOrder(in)
	assert.Equal(t, []string{"a", "b", "c"}, []string{out[0].ID, out[1].ID, out[2].ID})
	assert.Equal(t, "c", in[0].ID, "input must not be reordered in place")
}
