package domain

import "time"

// OutlierTopic is the topic id reserved for documents without a topic.
const OutlierTopic = -1

// Keyword search algorithms understood by the search server.
const (
	AlgorithmBM25  = "BM-25"
	AlgorithmTFIDF = "TF-IDF"
)

// RawDocument is a document as read from the metadata store.
type RawDocument struct {
	ID   string
	Text string
}

// CleanedDocument is the output of corpus cleaning. Position is the index of
// the document in the sequence handed to the cleaner.
type CleanedDocument struct {
	ID       string
	Text     string
	Position int
}

// Term is one ranked word of a topic.
type Term struct {
	Word  string  `json:"word"`
	Score float64 `json:"score"`
}

// Topic is a topic id with its terms ordered by descending score.
type Topic struct {
	ID    int    `json:"id"`
	Terms []Term `json:"terms"`
}

// Words returns the topic's words in rank order.
func (t Topic) Words() []string {
	words := make([]string, len(t.Terms))
	for i, term := range t.Terms {
		words[i] = term.Word
	}
	return words
}

// ScoredTopic is a topic id paired with a similarity score.
type ScoredTopic struct {
	ID    int     `json:"id"`
	Score float64 `json:"score"`
}

// TopicSummary is a topic with the documents that best represent it.
type TopicSummary struct {
	ID                 int      `json:"id"`
	Terms              []Term   `json:"terms"`
	RepresentativeDocs []string `json:"representative_docs"`
}

// TopicLabel is the label list shown for a topic.
type TopicLabel struct {
	ID        int      `json:"id"`
	TopicList []string `json:"topic_list"`
}

// FitOptions are passed to a topic backend when fitting a corpus.
type FitOptions struct {
	NGramMin     int
	NGramMax     int
	Topics       int
	Iterations   int
	TopWords     int
	Processes    int
	OutlierFloor float64
}

// Record is a hydrated metadata row.
type Record struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata"`
}

// IngestRecord is one validated line of the ingestion feed.
type IngestRecord struct {
	ID       string
	Text     string
	ParentID string
	Values   map[string]any
}

// LookupOptions control sorting and filtering of hydrated records.
type LookupOptions struct {
	SortField       string
	SortOrder       string
	FilterField     string
	FilterSubstring string
}

// SearchOptions configure a keyword search.
type SearchOptions struct {
	Algorithm string
	Size      int
	LookupOptions
}

// ArtifactInfo describes a persisted model generation.
type ArtifactInfo struct {
	Family     string    `json:"family"`
	Generation string    `json:"generation"`
	Documents  int       `json:"documents"`
	CreatedAt  time.Time `json:"created_at"`
	Version    int       `json:"version"`
}
