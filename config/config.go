package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DataDirName is the per-project directory holding databases, indexes and models.
const DataDirName = ".topicidx"

// Config holds all configuration for topicidx.
type Config struct {
	Dataset  DatasetConfig  `yaml:"dataset"`
	Document DocumentConfig `yaml:"document"`
	Model    ModelConfig    `yaml:"model"`
	Query    QueryConfig    `yaml:"query"`
	Search   SearchConfig   `yaml:"search"`
	Cache    CacheConfig    `yaml:"cache"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DatasetConfig describes where documents come from and where they are stored.
type DatasetConfig struct {
	Paths        []string `yaml:"paths"`         // doublestar globs of NDJSON files
	Excludes     []string `yaml:"excludes"`      // doublestar globs, relative to the project dir
	DatabasePath string   `yaml:"database_path"` // SQLite file
	Table        string   `yaml:"table"`
	TextField    string   `yaml:"text_field"`    // column fed to the topic model
	SearchFields []string `yaml:"search_fields"` // columns indexed for keyword search besides text
}

// Field declares one metadata column.
type Field struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"` // TEXT, INTEGER or REAL
	Optional    bool   `yaml:"optional"`
	Default     any    `yaml:"default,omitempty"`
	AllowSort   bool   `yaml:"allow_sort"`
	AllowFilter bool   `yaml:"allow_filter"`
}

// DocumentConfig holds the metadata schema and display layout.
type DocumentConfig struct {
	Metadata     []Field  `yaml:"metadata"`
	TopRegion    []string `yaml:"top_region"`
	BottomRegion []string `yaml:"bottom_region"`
	ListLimit    int      `yaml:"list_limit"`
}

// ModelConfig holds topic model configuration.
type ModelConfig struct {
	Family           string   `yaml:"family"`
	Dir              string   `yaml:"dir"`
	Load             bool     `yaml:"load"`
	Save             bool     `yaml:"save"`
	Topics           int      `yaml:"topics"`
	NGramMin         int      `yaml:"ngram_min"`
	NGramMax         int      `yaml:"ngram_max"`
	Iterations       int      `yaml:"iterations"`
	TopWords         int      `yaml:"top_words"`
	OutlierThreshold float64  `yaml:"outlier_threshold"`
	SampleCount      int      `yaml:"sample_count"` // 0 = whole corpus
	Workers          int      `yaml:"workers"`      // 0 = runtime.NumCPU()
	Stopwords        []string `yaml:"stopwords"`
}

// QueryConfig holds query engine configuration.
type QueryConfig struct {
	SimilarityFloor   float64 `yaml:"similarity_floor"`
	SimilarTopicCount int     `yaml:"similar_topic_count"`
	SimilarDocCount   int     `yaml:"similar_doc_count"`
	SearchSize        int     `yaml:"search_size"`
	SearchAlgorithm   string  `yaml:"search_algorithm"` // "BM-25" or "TF-IDF"
}

// SearchConfig holds keyword search server configuration.
type SearchConfig struct {
	IndexDir string        `yaml:"index_dir"`
	Network  string        `yaml:"network"` // "tcp" or "unix"
	Address  string        `yaml:"address"`
	Timeout  time.Duration `yaml:"timeout"`
}

// CacheConfig holds the search result cache configuration.
type CacheConfig struct {
	Size int           `yaml:"size"` // 0 disables the cache
	TTL  time.Duration `yaml:"ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
	File   string `yaml:"file"`   // empty = stderr
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	Address string `yaml:"address"` // empty disables /metrics
}

// DefaultFields returns the default document schema.
func DefaultFields() []Field {
	return []Field{
		{Name: "title", Type: "TEXT", AllowSort: true, AllowFilter: true},
		{Name: "abstract", Type: "TEXT", AllowFilter: true},
		{Name: "year", Type: "INTEGER", AllowSort: true, AllowFilter: true},
		{Name: "author", Type: "TEXT", Optional: true, AllowSort: true, AllowFilter: true},
		{Name: "uri", Type: "TEXT", Optional: true},
		{Name: "language", Type: "TEXT", Optional: true, Default: "en", AllowFilter: true},
	}
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Paths:        []string{"data/**/*.ndjson", "data/**/*.jsonl"},
			DatabasePath: filepath.Join(DataDirName, "metadata.db"),
			Table:        "Dataset",
			TextField:    "abstract",
			SearchFields: []string{"title", "abstract"},
		},
		Document: DocumentConfig{
			Metadata:     DefaultFields(),
			TopRegion:    []string{"title", "author", "year"},
			BottomRegion: []string{"abstract", "uri"},
			ListLimit:    3000,
		},
		Model: ModelConfig{
			Family:     "lda",
			Dir:        filepath.Join(DataDirName, "models"),
			Load:       false,
			Save:       true,
			Topics:     100,
			NGramMin:   1,
			NGramMax:   1,
			Iterations: 50,
			TopWords:   10,
		},
		Query: QueryConfig{
			SimilarityFloor:   0,
			SimilarTopicCount: 5,
			SimilarDocCount:   20,
			SearchSize:        100,
			SearchAlgorithm:   "BM-25",
		},
		Search: SearchConfig{
			IndexDir: filepath.Join(DataDirName, "search"),
			Network:  "tcp",
			Address:  "127.0.0.1:25333",
			Timeout:  10 * time.Second,
		},
		Cache: CacheConfig{
			Size: 256,
			TTL:  5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for topicidx.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "topicidx.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, DataDirName, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides selected settings from TOPICIDX_* environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("TOPICIDX_DATABASE_PATH"); v != "" {
		c.Dataset.DatabasePath = v
	}
	if v := getenv("TOPICIDX_MODEL_DIR"); v != "" {
		c.Model.Dir = v
	}
	if v := getenv("TOPICIDX_SEARCH_ADDRESS"); v != "" {
		c.Search.Address = v
	}
	if v := getenv("TOPICIDX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("TOPICIDX_METRICS_ADDRESS"); v != "" {
		c.Metrics.Address = v
	}
	if v := getenv("TOPICIDX_TOPICS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TOPICIDX_TOPICS %q: %w", v, err)
		}
		c.Model.Topics = n
	}
	if v := getenv("TOPICIDX_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TOPICIDX_WORKERS %q: %w", v, err)
		}
		c.Model.Workers = n
	}
	return nil
}

var supportedFamilies = map[string]bool{
	"lda": true,
}

var reservedColumns = map[string]bool{
	"id": true, "text": true, "parent_id": true, "inserted_at": true,
}

// Validate checks the configuration. It is called once after loading.
func (c *Config) Validate() error {
	if c.Dataset.Table == "" || !isIdentifier(c.Dataset.Table) {
		return fmt.Errorf("dataset.table %q is not a valid identifier", c.Dataset.Table)
	}

	// Field references are matched by exact name; duplicates are rejected
	// case-insensitively because SQLite column names are.
	declared := make(map[string]bool, len(c.Document.Metadata))
	folded := make(map[string]bool, len(c.Document.Metadata))
	for _, f := range c.Document.Metadata {
		if !isIdentifier(f.Name) {
			return fmt.Errorf("document.metadata: invalid field name %q", f.Name)
		}
		if reservedColumns[strings.ToLower(f.Name)] {
			return fmt.Errorf("document.metadata: field name %q is reserved", f.Name)
		}
		if folded[strings.ToLower(f.Name)] {
			return fmt.Errorf("document.metadata: duplicate field %q", f.Name)
		}
		folded[strings.ToLower(f.Name)] = true
		declared[f.Name] = true

		switch strings.ToUpper(f.Type) {
		case "TEXT", "INTEGER", "REAL":
		default:
			return fmt.Errorf("document.metadata: field %q has unsupported type %q", f.Name, f.Type)
		}
	}

	if c.Dataset.TextField != "text" && !declared[c.Dataset.TextField] {
		return fmt.Errorf("dataset.text_field %q is not a declared field", c.Dataset.TextField)
	}
	for _, name := range c.Dataset.SearchFields {
		if !declared[name] {
			return fmt.Errorf("dataset.search_fields references unknown field %q", name)
		}
	}
	for _, name := range append(append([]string{}, c.Document.TopRegion...), c.Document.BottomRegion...) {
		if !declared[name] && !reservedColumns[name] {
			return fmt.Errorf("document region references unknown field %q", name)
		}
	}
	if c.Document.ListLimit < 1 {
		return fmt.Errorf("document.list_limit must be positive, got %d", c.Document.ListLimit)
	}

	if !supportedFamilies[c.Model.Family] {
		return fmt.Errorf("model.family %q is not supported (supported: lda)", c.Model.Family)
	}
	if c.Model.Topics < 1 {
		return fmt.Errorf("model.topics must be positive, got %d", c.Model.Topics)
	}
	if c.Model.NGramMin < 1 || c.Model.NGramMax < c.Model.NGramMin {
		return fmt.Errorf("invalid model n-gram range [%d,%d]", c.Model.NGramMin, c.Model.NGramMax)
	}
	if c.Model.SampleCount < 0 {
		return fmt.Errorf("model.sample_count must not be negative")
	}

	switch c.Query.SearchAlgorithm {
	case "BM-25", "TF-IDF":
	default:
		return fmt.Errorf("query.search_algorithm must be BM-25 or TF-IDF, got %q", c.Query.SearchAlgorithm)
	}
	if c.Query.SimilarTopicCount < 1 || c.Query.SimilarDocCount < 1 || c.Query.SearchSize < 1 {
		return fmt.Errorf("query counts must be positive")
	}

	switch c.Search.Network {
	case "tcp", "unix":
	default:
		return fmt.Errorf("search.network must be tcp or unix, got %q", c.Search.Network)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// SortableFields returns the names of fields that allow sorting.
func (c *Config) SortableFields() []string {
	var out []string
	for _, f := range c.Document.Metadata {
		if f.AllowSort {
			out = append(out, f.Name)
		}
	}
	return out
}

// FilterableFields returns the names of fields that allow filtering.
func (c *Config) FilterableFields() []string {
	var out []string
	for _, f := range c.Document.Metadata {
		if f.AllowFilter {
			out = append(out, f.Name)
		}
	}
	return out
}

// Resolve returns p joined to dir unless p is absolute.
func Resolve(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// EnsureDataDir ensures the .topicidx directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, DataDirName), 0755)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
