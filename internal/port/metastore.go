package port

import (
	"context"

	"topicidx/internal/domain"
)

// MetadataStore is the relational store holding one row per document.
type MetadataStore interface {
	// Lookup hydrates the given identities, applying optional sort and filter.
	Lookup(ctx context.Context, ids []string, opts domain.LookupOptions) ([]domain.Record, error)

	// Get returns a single record or domain.ErrNotFound.
	Get(ctx context.Context, id string) (domain.Record, error)

	// List returns up to limit records in storage order.
	List(ctx context.Context, limit int) ([]domain.Record, error)

	// Corpus returns (identity, text) pairs ordered by identity.
	Corpus(ctx context.Context, textField string) ([]domain.RawDocument, error)

	// Rebuild drops and recreates the table, then inserts the records.
	Rebuild(ctx context.Context, records []domain.IngestRecord) (int, error)

	// IDs returns every stored identity in ascending order.
	IDs(ctx context.Context) ([]string, error)

	Close() error
}
