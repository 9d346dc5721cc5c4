package port

import "context"

// KeywordSearcher is the remote full-text search capability.
type KeywordSearcher interface {
	// Search returns document identities ranked by the given algorithm
	// ("BM-25" or "TF-IDF"), at most size of them.
	Search(ctx context.Context, algorithm string, size int, query string) ([]string, error)
}
