package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSearcher struct {
	calls int
	ids   []string
	err   error
}

func (s *countingSearcher) Search(_ context.Context, _ string, _ int, _ string) ([]string, error) {
	s.calls++
	return s.ids, s.err
}

func TestSearchCache_KeyIncludesAlgorithmAndSize(t *testing.T) {
	c := NewSearchCache(10, time.Minute)
	c.Put("BM-25", 10, "graph", []string{"a"})

	_, ok := c.Get("TF-IDF", 10, "graph")
	assert.False(t, ok)
	_, ok = c.Get("BM-25", 5, "graph")
	assert.False(t, ok)

	ids, ok := c.Get("BM-25", 10, "graph")
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, ids)
}

func TestSearchCache_Eviction(t *testing.T) {
	c := NewSearchCache(2, time.Minute)
	c.Put("BM-25", 1, "a", []string{"1"})
	c.Put("BM-25", 1, "b", []string{"2"})
	c.Put("BM-25", 1, "c", []string{"3"})

	assert.Equal(t, 2, c.Size())
	_, ok := c.Get("BM-25", 1, "a")
	assert.False(t, ok)
}

func TestSearchCache_TTL(t *testing.T) {
	c := NewSearchCache(10, 20*time.Millisecond)
	c.Put("BM-25", 1, "a", []string{"1"})
	time.Sleep(60 * time.Millisecond)

	_, ok := c.Get("BM-25", 1, "a")
	assert.False(t, ok)
}

func TestSearchCache_Invalidate(t *testing.T) {
	c := NewSearchCache(10, time.Minute)
	c.Put("BM-25", 1, "a", []string{"1"})
	c.Invalidate()
	assert.Equal(t, 0, c.Size())
}

func TestCachedSearcher(t *testing.T) {
	inner := &countingSearcher{ids: []string{"d1", "d2"}}
	s := NewCachedSearcher(inner, NewSearchCache(10, time.Minute), nil)
	ctx := context.Background()

	first, err := s.Search(ctx, "BM-25", 10, "protein")
	require.NoError(t, err)
	second, err := s.Search(ctx, "BM-25", 10, "protein")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)

	second[0] = "mutated"
	third, err := s.Search(ctx, "BM-25", 10, "protein")
	require.NoError(t, err)
	assert.Equal(t, "d1", third[0])
}

func TestCachedSearcher_ErrorsNotCached(t *testing.T) {
	inner := &countingSearcher{err: errors.New("down")}
	s := NewCachedSearcher(inner, NewSearchCache(10, time.Minute), nil)
	ctx := context.Background()

	_, err := s.Search(ctx, "BM-25", 10, "q")
	assert.Error(t, err)
	_, err = s.Search(ctx, "BM-25", 10, "q")
	assert.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}
