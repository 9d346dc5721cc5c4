package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a requested document or topic does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoMatch indicates a similarity lookup had no resolvable seed.
	ErrNoMatch = errors.New("no match")

	// ErrInvalidInput indicates malformed or disallowed query input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrModelNotReady indicates a query arrived before train or load completed.
	ErrModelNotReady = errors.New("topic model not ready")

	// ErrDependencyUnavailable indicates the search server or metadata store failed.
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// ErrArtifactMissing indicates one of the paired artifact files is absent.
	ErrArtifactMissing = errors.New("model artifact missing")

	// ErrArtifactCorrupt indicates an artifact file is unreadable or does not
	// belong to the same generation as its pair.
	ErrArtifactCorrupt = errors.New("model artifact corrupt")

	// ErrArtifactLocked indicates another writer holds the artifact directory.
	ErrArtifactLocked = errors.New("model artifact locked by another writer")

	// ErrTraining indicates the topic backend failed to fit the corpus.
	ErrTraining = errors.New("topic model training failed")
)

// ArtifactError is returned when a persisted model cannot be loaded.
// It is fatal for the serving process.
type ArtifactError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ArtifactError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model artifact %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("model artifact %s: %s", e.Path, e.Reason)
}

func (e *ArtifactError) Unwrap() error {
	return e.Err
}
