package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"topicidx/config"
)

// CurrentSchemaVersion is the current artifact schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

// ComputeConfigHash computes a hash of training-relevant configuration.
// A loaded artifact whose hash differs was trained with other settings.
func ComputeConfigHash(cfg *config.Config) string {
	relevant := struct {
		Family      string   `json:"family"`
		Topics      int      `json:"topics"`
		NGramMin    int      `json:"ngram_min"`
		NGramMax    int      `json:"ngram_max"`
		Iterations  int      `json:"iterations"`
		TopWords    int      `json:"top_words"`
		Outlier     float64  `json:"outlier"`
		SampleCount int      `json:"sample_count"`
		TextField   string   `json:"text_field"`
		Stopwords   []string `json:"stopwords"`
	}{
		Family:      cfg.Model.Family,
		Topics:      cfg.Model.Topics,
		NGramMin:    cfg.Model.NGramMin,
		NGramMax:    cfg.Model.NGramMax,
		Iterations:  cfg.Model.Iterations,
		TopWords:    cfg.Model.TopWords,
		Outlier:     cfg.Model.OutlierThreshold,
		SampleCount: cfg.Model.SampleCount,
		TextField:   cfg.Dataset.TextField,
		Stopwords:   cfg.Model.Stopwords,
	}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

// StaleReason reports why a loaded artifact no longer matches cfg, or ""
// when it matches.
func StaleReason(a *Artifact, cfg *config.Config) string {
	if a.Info.Family != cfg.Model.Family {
		return fmt.Sprintf("artifact family %q, configured %q", a.Info.Family, cfg.Model.Family)
	}
	if a.ConfigHash != "" && a.ConfigHash != ComputeConfigHash(cfg) {
		return "model configuration changed since training"
	}
	return ""
}
