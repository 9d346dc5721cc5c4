package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Dataset.Table != "Dataset" {
		t.Errorf("expected Table=Dataset, got %s", cfg.Dataset.Table)
	}
	if cfg.Dataset.TextField != "abstract" {
		t.Errorf("expected TextField=abstract, got %s", cfg.Dataset.TextField)
	}
	if cfg.Model.Topics != 100 {
		t.Errorf("expected Topics=100, got %d", cfg.Model.Topics)
	}
	if cfg.Query.SearchAlgorithm != "BM-25" {
		t.Errorf("expected SearchAlgorithm=BM-25, got %s", cfg.Query.SearchAlgorithm)
	}
	if cfg.Search.Address != "127.0.0.1:25333" {
		t.Errorf("expected default search address, got %s", cfg.Search.Address)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Errorf("expected no error for non-existent file, got %v", err)
	}
	if cfg == nil {
		t.Error("expected default config, got nil")
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "topicidx.yaml")

	content := `
model:
  topics: 25
  ngram_max: 2
query:
  search_algorithm: TF-IDF
search:
  timeout: 3s
document:
  metadata:
    - name: title
      type: TEXT
      allow_sort: true
    - name: abstract
      type: TEXT
    - name: year
      type: INTEGER
      optional: true
      default: 1970
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Model.Topics != 25 {
		t.Errorf("expected Topics=25, got %d", cfg.Model.Topics)
	}
	if cfg.Model.NGramMin != 1 || cfg.Model.NGramMax != 2 {
		t.Errorf("expected ngram range [1,2], got [%d,%d]", cfg.Model.NGramMin, cfg.Model.NGramMax)
	}
	if cfg.Query.SearchAlgorithm != "TF-IDF" {
		t.Errorf("expected TF-IDF, got %s", cfg.Query.SearchAlgorithm)
	}
	if cfg.Search.Timeout != 3*time.Second {
		t.Errorf("expected timeout 3s, got %v", cfg.Search.Timeout)
	}
	if len(cfg.Document.Metadata) != 3 {
		t.Fatalf("expected 3 metadata fields, got %d", len(cfg.Document.Metadata))
	}
	if cfg.Document.Metadata[2].Default != 1970 {
		t.Errorf("expected year default 1970, got %v", cfg.Document.Metadata[2].Default)
	}
	if got := cfg.SortableFields(); len(got) != 1 || got[0] != "title" {
		t.Errorf("expected sortable [title], got %v", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topicidx.yaml")
	if err := os.WriteFile(path, []byte("model: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, DataDirName), 0755); err != nil {
		t.Fatal(err)
	}
	content := `
query:
  similar_doc_count: 7
`
	if err := os.WriteFile(filepath.Join(tmpDir, DataDirName, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Query.SimilarDocCount != 7 {
		t.Errorf("expected SimilarDocCount=7, got %d", cfg.Query.SimilarDocCount)
	}
}

func TestLoadFromDir_Defaults(t *testing.T) {
	cfg, err := LoadFromDir(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Model.Family != "lda" {
		t.Errorf("expected default family lda, got %s", cfg.Model.Family)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topicidx.yaml")

	cfg := DefaultConfig()
	cfg.Model.Topics = 42
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Model.Topics != 42 {
		t.Errorf("expected Topics=42, got %d", loaded.Model.Topics)
	}
	if len(loaded.Document.Metadata) != len(cfg.Document.Metadata) {
		t.Errorf("metadata schema not round-tripped")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TOPICIDX_TOPICS":         "12",
		"TOPICIDX_SEARCH_ADDRESS": "127.0.0.1:9999",
		"TOPICIDX_LOG_LEVEL":      "debug",
	}
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Model.Topics != 12 {
		t.Errorf("expected Topics=12, got %d", cfg.Model.Topics)
	}
	if cfg.Search.Address != "127.0.0.1:9999" {
		t.Errorf("expected overridden address, got %s", cfg.Search.Address)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected level debug, got %s", cfg.Logging.Level)
	}

	env["TOPICIDX_TOPICS"] = "many"
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err == nil {
		t.Error("expected error for non-numeric topic count")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad table", func(c *Config) { c.Dataset.Table = "Data set" }},
		{"reserved field", func(c *Config) { c.Document.Metadata = append(c.Document.Metadata, Field{Name: "id", Type: "TEXT"}) }},
		{"duplicate field", func(c *Config) { c.Document.Metadata = append(c.Document.Metadata, Field{Name: "Title", Type: "TEXT"}) }},
		{"bad type", func(c *Config) { c.Document.Metadata[0].Type = "BLOB" }},
		{"unknown text field", func(c *Config) { c.Dataset.TextField = "body" }},
		{"unknown region field", func(c *Config) { c.Document.TopRegion = []string{"nope"} }},
		{"zero topics", func(c *Config) { c.Model.Topics = 0 }},
		{"bad ngram", func(c *Config) { c.Model.NGramMin, c.Model.NGramMax = 2, 1 }},
		{"bad algorithm", func(c *Config) { c.Query.SearchAlgorithm = "cosine" }},
		{"bad network", func(c *Config) { c.Search.Network = "udp" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"empty family", func(c *Config) { c.Model.Family = "" }},
		{"unsupported family", func(c *Config) { c.Model.Family = "bertopic" }},
		{"zero list limit", func(c *Config) { c.Document.ListLimit = 0 }},
		{"negative list limit", func(c *Config) { c.Document.ListLimit = -5 }},
		{"text field case mismatch", func(c *Config) { c.Dataset.TextField = "TITLE" }},
		{"search field case mismatch", func(c *Config) { c.Dataset.SearchFields = []string{"Title"} }},
		{"region field case mismatch", func(c *Config) { c.Document.TopRegion = []string{"Title"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidate_ExactFieldNames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Document.Metadata = append(cfg.Document.Metadata, Field{Name: "Summary", Type: "TEXT"})
	cfg.Dataset.TextField = "Summary"
	cfg.Dataset.SearchFields = []string{"Summary"}
	cfg.Document.TopRegion = []string{"Summary", "id"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected exact field names to validate, got %v", err)
	}

	cfg.Dataset.TextField = "summary"
	if err := cfg.Validate(); err == nil {
		t.Error("expected text_field with different case to be rejected")
	}
}

func TestResolve(t *testing.T) {
	if got := Resolve("/root", "a/b"); got != filepath.Join("/root", "a/b") {
		t.Errorf("unexpected %s", got)
	}
	if got := Resolve("/root", "/abs"); got != "/abs" {
		t.Errorf("unexpected %s", got)
	}
}
